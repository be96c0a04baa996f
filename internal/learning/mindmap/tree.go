package mindmap

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-studygen/internal/learning/prompts"
)

// Node is a persisted node as read back from the store.
type Node struct {
	ID         uuid.UUID
	ParentID   *uuid.UUID
	Title      string
	OrderIndex int
}

type Tree struct {
	Root     Node
	nodes    []Node
	depth    map[uuid.UUID]int
	children map[uuid.UUID]int
}

// Analyze indexes a persisted tree. The root is the parentless node with the
// lowest OrderIndex; nodes whose parent is missing count as children of it.
func Analyze(nodes []Node) (Tree, error) {
	if len(nodes) == 0 {
		return Tree{}, ErrEmptyTree
	}
	sorted := append([]Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })

	byID := make(map[uuid.UUID]Node, len(sorted))
	for _, n := range sorted {
		byID[n.ID] = n
	}
	var root *Node
	for i := range sorted {
		if sorted[i].ParentID == nil {
			root = &sorted[i]
			break
		}
	}
	if root == nil {
		root = &sorted[0]
	}

	t := Tree{
		Root:     *root,
		nodes:    sorted,
		depth:    make(map[uuid.UUID]int, len(sorted)),
		children: make(map[uuid.UUID]int, len(sorted)),
	}
	parentOf := func(n Node) (uuid.UUID, bool) {
		if n.ID == t.Root.ID {
			return uuid.Nil, false
		}
		if n.ParentID != nil {
			if _, ok := byID[*n.ParentID]; ok && *n.ParentID != n.ID {
				return *n.ParentID, true
			}
		}
		return t.Root.ID, true
	}
	for _, n := range sorted {
		if p, ok := parentOf(n); ok {
			t.children[p]++
		}
	}
	var depthOf func(id uuid.UUID, guard int) int
	depthOf = func(id uuid.UUID, guard int) int {
		if d, ok := t.depth[id]; ok {
			return d
		}
		p, ok := parentOf(byID[id])
		if !ok || guard > len(sorted) {
			return 0
		}
		d := depthOf(p, guard+1) + 1
		t.depth[id] = d
		return d
	}
	t.depth[t.Root.ID] = 0
	for _, n := range sorted {
		depthOf(n.ID, 0)
	}
	return t, nil
}

func (t Tree) Len() int { return len(t.nodes) }

func (t Tree) Depth(id uuid.UUID) int { return t.depth[id] }

func (t Tree) IsLeaf(id uuid.UUID) bool { return t.children[id] == 0 }

func (t Tree) MaxDepth() int {
	max := 0
	for _, d := range t.depth {
		if d > max {
			max = d
		}
	}
	return max
}

func (t Tree) NextOrderIndex() int {
	if len(t.nodes) == 0 {
		return 0
	}
	return t.nodes[len(t.nodes)-1].OrderIndex + 1
}

// Candidate is an existing node offered as an attachment point.
type Candidate struct {
	ID    uuid.UUID `json:"-"`
	Title string    `json:"title"`
	Depth int       `json:"depth"`
	Leaf  bool      `json:"leaf"`
}

// Candidates ranks attachment points: leaves before branches, deeper before
// shallower, then document order. At most limit are returned. A single-node
// tree offers its root, which is also its only leaf.
func (t Tree) Candidates(limit int) []Candidate {
	all := make([]Candidate, 0, len(t.nodes))
	order := make(map[uuid.UUID]int, len(t.nodes))
	for _, n := range t.nodes {
		order[n.ID] = n.OrderIndex
		all = append(all, Candidate{ID: n.ID, Title: n.Title, Depth: t.depth[n.ID], Leaf: t.IsLeaf(n.ID)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Leaf != b.Leaf {
			return a.Leaf
		}
		if a.Depth != b.Depth {
			return a.Depth > b.Depth
		}
		return order[a.ID] < order[b.ID]
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Vocabulary lists distinct node titles in document order, capped at limit.
func (t Tree) Vocabulary(limit int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, n := range t.nodes {
		key := strings.ToLower(strings.TrimSpace(n.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(n.Title))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// PlanExtension attaches each generated node directly to the candidate it names.
// An out-of-range candidate position falls back to the root. New nodes never
// reference each other.
func PlanExtension(t Tree, candidates []Candidate, nodes []prompts.ExtensionNodeOut) (planned []NewNode, fallbacks int) {
	base := t.NextOrderIndex()
	rootID := t.Root.ID
	planned = make([]NewNode, 0, len(nodes))
	for i, n := range nodes {
		parent := rootID
		if n.ParentCandidate >= 0 && n.ParentCandidate < len(candidates) {
			parent = candidates[n.ParentCandidate].ID
		} else {
			fallbacks++
		}
		p := parent
		planned = append(planned, NewNode{
			Title:      n.Title,
			Content:    n.Content,
			OrderIndex: base + i,
			ParentID:   &p,
		})
	}
	return planned, fallbacks
}
