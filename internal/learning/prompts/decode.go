package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShape means the model output did not have the top-level shape the schema
// declares. Callers treat it as a failed attempt.
var ErrShape = errors.New("model output shape mismatch")

const (
	FlashcardKindQA    = "qa"
	FlashcardKindCloze = "cloze"

	QuizOptionCount = 4
)

type FlashcardOut struct {
	Front string
	Back  string
	Kind  string
	Topic string
}

type QuizItemOut struct {
	Question    string
	Options     []string
	Answer      string
	Explanation string
	Topic       string
}

// NodeOut is one mind-map node from a fresh build. ParentIndex is a position in
// the same decoded slice; nil only for the root at position 0. Positions that
// could not be resolved are left out of range (-1) for the resolver to reattach.
type NodeOut struct {
	Title       string
	Content     string
	ParentIndex *int
}

// ExtensionNodeOut is a node that attaches to a candidate by list position.
type ExtensionNodeOut struct {
	Title           string
	Content         string
	ParentCandidate int
}

func DecodeFlashcards(obj map[string]any) ([]FlashcardOut, error) {
	arr, err := topArray(obj, "flashcards")
	if err != nil {
		return nil, err
	}
	out := make([]FlashcardOut, 0, len(arr))
	for _, x := range arr {
		m, ok := x.(map[string]any)
		if !ok {
			continue
		}
		c := FlashcardOut{
			Front: strings.TrimSpace(stringFromAny(m["front"])),
			Back:  strings.TrimSpace(stringFromAny(m["back"])),
			Kind:  NormalizeFlashcardKind(stringFromAny(m["kind"])),
			Topic: strings.TrimSpace(stringFromAny(m["topic"])),
		}
		if c.Front == "" || c.Back == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// NormalizeFlashcardKind maps model spellings onto qa/cloze; anything else is qa.
func NormalizeFlashcardKind(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cloze", "fill_in", "fill-in", "fill_in_the_blank":
		return FlashcardKindCloze
	default:
		return FlashcardKindQA
	}
}

func DecodeQuizItems(obj map[string]any) ([]QuizItemOut, error) {
	arr, err := topArray(obj, "items")
	if err != nil {
		return nil, err
	}
	out := make([]QuizItemOut, 0, len(arr))
	for _, x := range arr {
		m, ok := x.(map[string]any)
		if !ok {
			continue
		}
		q := QuizItemOut{
			Question:    strings.TrimSpace(stringFromAny(m["question"])),
			Options:     stringSliceFromAny(m["options"]),
			Answer:      strings.TrimSpace(stringFromAny(m["answer"])),
			Explanation: strings.TrimSpace(stringFromAny(m["explanation"])),
			Topic:       strings.TrimSpace(stringFromAny(m["topic"])),
		}
		if ValidQuizItem(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

// ValidQuizItem reports whether q has a question, exactly four distinct
// non-empty options, and an answer equal to exactly one of them.
func ValidQuizItem(q QuizItemOut) bool {
	if q.Question == "" || len(q.Options) != QuizOptionCount {
		return false
	}
	seen := make(map[string]bool, len(q.Options))
	matches := 0
	for _, o := range q.Options {
		if o == "" || seen[o] {
			return false
		}
		seen[o] = true
		if o == q.Answer {
			matches++
		}
	}
	return matches == 1
}

// DecodeMindMap keeps nodes with a title and renumbers parent references past
// dropped nodes, forward references included. A list whose first node is unusable has no root and is a shape
// error. The root's parent is always cleared.
func DecodeMindMap(obj map[string]any) ([]NodeOut, error) {
	arr, err := topArray(obj, "nodes")
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return []NodeOut{}, nil
	}

	type raw struct {
		title, content string
		parent         *int
	}
	newIndex := make([]int, len(arr))
	kept := make([]raw, 0, len(arr))
	for i, x := range arr {
		newIndex[i] = -1
		m, ok := x.(map[string]any)
		if !ok {
			continue
		}
		title := strings.TrimSpace(stringFromAny(m["title"]))
		if title == "" {
			continue
		}
		newIndex[i] = len(kept)
		kept = append(kept, raw{
			title:   title,
			content: strings.TrimSpace(stringFromAny(m["content"])),
			parent:  intPtrFromAny(m["parent_index"]),
		})
	}
	if newIndex[0] != 0 {
		return nil, fmt.Errorf("%w: nodes[0] is not a usable root", ErrShape)
	}

	out := make([]NodeOut, len(kept))
	orig := 0
	for i, r := range kept {
		for newIndex[orig] != i {
			orig++
		}
		n := NodeOut{Title: r.title, Content: r.content}
		if i > 0 {
			p := -1
			if r.parent != nil {
				// any other surviving node is a valid parent; cycles are the resolver's job
				if op := *r.parent; op >= 0 && op < len(arr) && op != orig && newIndex[op] >= 0 {
					p = newIndex[op]
				}
			}
			n.ParentIndex = &p
		}
		out[i] = n
	}
	return out, nil
}

func DecodeMindMapExtension(obj map[string]any) ([]ExtensionNodeOut, error) {
	arr, err := topArray(obj, "nodes")
	if err != nil {
		return nil, err
	}
	out := make([]ExtensionNodeOut, 0, len(arr))
	for _, x := range arr {
		m, ok := x.(map[string]any)
		if !ok {
			continue
		}
		title := strings.TrimSpace(stringFromAny(m["title"]))
		if title == "" {
			continue
		}
		pc := -1
		if p := intPtrFromAny(m["parent_candidate"]); p != nil {
			pc = *p
		}
		out = append(out, ExtensionNodeOut{
			Title:           title,
			Content:         strings.TrimSpace(stringFromAny(m["content"])),
			ParentCandidate: pc,
		})
	}
	return out, nil
}

func topArray(obj map[string]any, key string) ([]any, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: empty object", ErrShape)
	}
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: missing %q", ErrShape, key)
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, want array", ErrShape, key, raw)
	}
	return arr, nil
}

func stringFromAny(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func stringSliceFromAny(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		out = append(out, strings.TrimSpace(stringFromAny(x)))
	}
	return out
}

// intPtrFromAny accepts JSON numbers (float64 after decoding) with no
// fractional part.
func intPtrFromAny(v any) *int {
	var n int
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return nil
		}
		n = int(t)
	case int:
		n = t
	case int64:
		n = int(t)
	default:
		return nil
	}
	return &n
}
