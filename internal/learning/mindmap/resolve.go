// Package mindmap turns flat, index-referencing node lists into persisted trees
// and plans incremental growth of an existing tree.
package mindmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-studygen/internal/learning/prompts"
)

var ErrEmptyTree = errors.New("mindmap: empty tree")

// NewNode is a node ready for insertion. ParentID nil means root.
type NewNode struct {
	Title      string
	Content    string
	OrderIndex int
	ParentID   *uuid.UUID
}

// NodeStore is the persistence contract the resolver needs. InsertNodes must
// return ids in submission order.
type NodeStore interface {
	InsertNodes(ctx context.Context, nodes []NewNode) ([]uuid.UUID, error)
	UpdateParent(ctx context.Context, id uuid.UUID, parentID uuid.UUID) error
}

// Resolved maps every input position to its persisted id and effective parent
// position (-1 for the root).
type Resolved struct {
	IDs     []uuid.UUID
	Parents []int
	// Reattached counts nodes whose declared parent was unusable.
	Reattached int
}

// EffectiveParents returns, for every node, the parent position that will be
// persisted. Position 0 is the root. A missing, out-of-range or self parent,
// or one that would close a cycle, becomes 0.
func EffectiveParents(nodes []prompts.NodeOut) (parents []int, reattached int) {
	n := len(nodes)
	parents = make([]int, n)
	if n == 0 {
		return parents, 0
	}
	parents[0] = -1
	declared := make([]int, n)
	declared[0] = -1
	for i := 1; i < n; i++ {
		p := -1
		if nodes[i].ParentIndex != nil {
			p = *nodes[i].ParentIndex
		}
		if p < 0 || p >= n || p == i {
			p = -1
		}
		declared[i] = p
	}
	for i := 1; i < n; i++ {
		if declared[i] < 0 || !reachesRoot(declared, i) {
			parents[i] = 0
			reattached++
			continue
		}
		parents[i] = declared[i]
	}
	return parents, reattached
}

// reachesRoot follows declared parents from i and reports whether the walk
// ends at position 0 without looping.
func reachesRoot(declared []int, i int) bool {
	cur := i
	for steps := 0; steps < len(declared); steps++ {
		p := declared[cur]
		if p == 0 {
			return true
		}
		if p < 0 {
			return false
		}
		cur = p
	}
	return false
}

// Resolve persists nodes in two passes: every node is inserted as a provisional
// root in one ordered batch, then each non-root node is pointed at the id
// captured for its parent position. baseOrder offsets OrderIndex.
func Resolve(ctx context.Context, store NodeStore, nodes []prompts.NodeOut, baseOrder int) (Resolved, error) {
	if len(nodes) == 0 {
		return Resolved{}, ErrEmptyTree
	}
	parents, reattached := EffectiveParents(nodes)

	batch := make([]NewNode, len(nodes))
	for i, n := range nodes {
		batch[i] = NewNode{Title: n.Title, Content: n.Content, OrderIndex: baseOrder + i}
	}
	ids, err := store.InsertNodes(ctx, batch)
	if err != nil {
		return Resolved{}, fmt.Errorf("mindmap: insert nodes: %w", err)
	}
	if len(ids) != len(nodes) {
		return Resolved{}, fmt.Errorf("mindmap: store returned %d ids for %d nodes", len(ids), len(nodes))
	}

	for i := 1; i < len(nodes); i++ {
		if err := store.UpdateParent(ctx, ids[i], ids[parents[i]]); err != nil {
			return Resolved{IDs: ids, Parents: parents, Reattached: reattached},
				fmt.Errorf("mindmap: link node %d: %w", i, err)
		}
	}
	return Resolved{IDs: ids, Parents: parents, Reattached: reattached}, nil
}

// Rebase shifts a batch generated by a follow-up call onto an arena that
// already holds offset nodes. The batch's own root becomes a branch under the
// arena root; unresolved references stay out of range.
func Rebase(batch []prompts.NodeOut, offset int) []prompts.NodeOut {
	if offset == 0 {
		return batch
	}
	out := make([]prompts.NodeOut, len(batch))
	for i, n := range batch {
		p := 0
		if i > 0 {
			p = -1
			if n.ParentIndex != nil && *n.ParentIndex >= 0 {
				p = *n.ParentIndex + offset
			}
		}
		n.ParentIndex = &p
		out[i] = n
	}
	return out
}
