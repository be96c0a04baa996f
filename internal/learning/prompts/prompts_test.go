package prompts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestBuildRendersAndValidates(t *testing.T) {
	RegisterAll()
	RegisterAll()

	p, err := Build(PromptFlashcards, Input{PackTitle: "Biology", Excerpts: "[window 0]\nCells divide.", Count: 7})
	require.NoError(t, err)
	assert.Equal(t, "flashcards", p.SchemaName)
	assert.Contains(t, p.User, "Write exactly 7 new flashcards.")
	assert.Contains(t, p.User, "Cells divide.")
	assert.NotContains(t, p.User, "already written")
	assert.NotEmpty(t, p.Fingerprint())

	_, err = Build(PromptFlashcards, Input{Excerpts: "x", Count: 0})
	assert.Error(t, err)
	_, err = Build(PromptQuizItems, Input{Count: 3})
	assert.Error(t, err)
	_, err = Build(PromptMindMapExtend, Input{Excerpts: "x", Count: 3})
	assert.Error(t, err)
	_, err = Build(PromptName("nope"), Input{})
	assert.Error(t, err)
}

func TestSchemasAreStrict(t *testing.T) {
	RegisterAll()
	for _, name := range []PromptName{PromptFlashcards, PromptQuizItems, PromptMindMap, PromptFlashcardsExtend, PromptQuizItemsExtend, PromptMindMapExtend} {
		_, schema, ok := Schema(name)
		require.True(t, ok, name)
		assertStrict(t, schema)
	}
}

func assertStrict(t *testing.T, s map[string]any) {
	t.Helper()
	switch s["type"] {
	case "object":
		assert.Equal(t, false, s["additionalProperties"])
		props := s["properties"].(map[string]any)
		req := s["required"].([]string)
		assert.Len(t, req, len(props))
		for _, k := range req {
			assertStrict(t, props[k].(map[string]any))
		}
	case "array":
		assertStrict(t, s["items"].(map[string]any))
	}
}

func TestDecodeFlashcards(t *testing.T) {
	obj := decodeJSON(t, `{"flashcards":[
		{"front":"What divides?","back":"Cells","kind":"qa","topic":"cell cycle"},
		{"front":"  ","back":"dropped","kind":"qa","topic":""},
		{"front":"Cells ____.","back":"divide","kind":"Cloze","topic":"cell cycle"},
		{"front":"Odd kind","back":"x","kind":"essay","topic":""},
		"not an object"
	]}`)
	cards, err := DecodeFlashcards(obj)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, FlashcardKindQA, cards[0].Kind)
	assert.Equal(t, FlashcardKindCloze, cards[1].Kind)
	assert.Equal(t, FlashcardKindQA, cards[2].Kind)

	_, err = DecodeFlashcards(decodeJSON(t, `{"cards":[]}`))
	assert.ErrorIs(t, err, ErrShape)
	_, err = DecodeFlashcards(decodeJSON(t, `{"flashcards":"nope"}`))
	assert.ErrorIs(t, err, ErrShape)
}

func TestDecodeQuizItems(t *testing.T) {
	obj := decodeJSON(t, `{"items":[
		{"question":"Q1","options":["a","b","c","d"],"answer":"b","explanation":"","topic":"t"},
		{"question":"Q2","options":["a","b","c"],"answer":"b","explanation":"","topic":"t"},
		{"question":"Q3","options":["a","b","c","d"],"answer":"e","explanation":"","topic":"t"},
		{"question":"Q4","options":["a","a","c","d"],"answer":"a","explanation":"","topic":"t"},
		{"question":"","options":["a","b","c","d"],"answer":"a","explanation":"","topic":"t"}
	]}`)
	items, err := DecodeQuizItems(obj)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Q1", items[0].Question)
	assert.Equal(t, []string{"a", "b", "c", "d"}, items[0].Options)
}

func TestDecodeMindMap(t *testing.T) {
	obj := decodeJSON(t, `{"nodes":[
		{"title":"Root","content":"","parent_index":3},
		{"title":"A","content":"","parent_index":0},
		{"title":"","content":"dropped","parent_index":0},
		{"title":"B","content":"","parent_index":2},
		{"title":"C","content":"","parent_index":1},
		{"title":"D","content":"","parent_index":9},
		{"title":"E","content":"","parent_index":6},
		{"title":"F","content":"","parent_index":null}
	]}`)
	nodes, err := DecodeMindMap(obj)
	require.NoError(t, err)
	require.Len(t, nodes, 7)

	assert.Nil(t, nodes[0].ParentIndex)
	parents := []int{}
	for _, n := range nodes[1:] {
		require.NotNil(t, n.ParentIndex)
		parents = append(parents, *n.ParentIndex)
	}
	// A->0, B->dropped, C->A, D->out of range, E->self, F->null
	assert.Equal(t, []int{0, -1, 1, -1, -1, -1}, parents)

	_, err = DecodeMindMap(decodeJSON(t, `{"nodes":[{"title":"","content":"","parent_index":null},{"title":"x","content":"","parent_index":0}]}`))
	assert.ErrorIs(t, err, ErrShape)

	forward, err := DecodeMindMap(decodeJSON(t, `{"nodes":[
		{"title":"Root","content":"","parent_index":null},
		{"title":"Leaf","content":"","parent_index":3},
		{"title":"","content":"dropped","parent_index":0},
		{"title":"Branch","content":"","parent_index":0}
	]}`))
	require.NoError(t, err)
	require.Len(t, forward, 3)
	require.NotNil(t, forward[1].ParentIndex)
	assert.Equal(t, 2, *forward[1].ParentIndex)
	assert.Equal(t, 0, *forward[2].ParentIndex)

	empty, err := DecodeMindMap(decodeJSON(t, `{"nodes":[]}`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDecodeMindMapExtension(t *testing.T) {
	nodes, err := DecodeMindMapExtension(decodeJSON(t, `{"nodes":[
		{"title":"X","content":"c","parent_candidate":2},
		{"title":"Y","content":"","parent_candidate":1.5},
		{"title":"","content":"","parent_candidate":0}
	]}`))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, 2, nodes[0].ParentCandidate)
	assert.Equal(t, -1, nodes[1].ParentCandidate)
}
