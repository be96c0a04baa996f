package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-studygen/internal/config"
	materialrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/materials"
	packrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/redislock"
)

// fakeLLM answers by schema name with a per-schema call counter.
type fakeLLM struct {
	mu       sync.Mutex
	counts   map[string]int
	handlers map[string]func(call int) (map[string]any, error)
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{counts: map[string]int{}, handlers: map[string]func(int) (map[string]any, error){}}
}

func (f *fakeLLM) on(schema string, h func(call int) (map[string]any, error)) *fakeLLM {
	f.handlers[schema] = h
	return f
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, _ string, schemaName string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	call := f.counts[schemaName]
	f.counts[schemaName]++
	h := f.handlers[schemaName]
	f.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("no handler for %s", schemaName)
	}
	return h(call)
}

func (f *fakeLLM) calls(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[schema]
}

func cards(prefix string, from, n int) map[string]any {
	arr := make([]any, 0, n)
	for i := from; i < from+n; i++ {
		arr = append(arr, map[string]any{
			"front": fmt.Sprintf("%s %d?", prefix, i),
			"back":  "answer",
			"kind":  "qa",
			"topic": "topic " + prefix,
		})
	}
	return map[string]any{"flashcards": arr}
}

func quizItem(q string, options ...string) map[string]any {
	opts := make([]any, len(options))
	for i, o := range options {
		opts[i] = o
	}
	return map[string]any{"question": q, "options": opts, "answer": options[0], "explanation": "because", "topic": "t"}
}

func node(title string, parent any) map[string]any {
	return map[string]any{"title": title, "content": title + " content", "parent_index": parent}
}

type fixture struct {
	deps BuildAllDeps
	llm  *fakeLLM
	pack *types.StudyPack
}

func newFixture(t *testing.T, windows int) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	cfg := config.Default()
	cfg.Generation.PageSize = 2
	cfg.Generation.SamplesPerAttempt = 2

	pack := testutil.SeedStudyPack(t, ctx, db, "Cell Biology")
	if windows > 0 {
		doc := testutil.SeedDocument(t, ctx, db, pack.ID, "chapter 1")
		testutil.SeedWindows(t, ctx, db, doc.ID, "window", windows)
	}

	llm := newFakeLLM()
	return &fixture{
		llm:  llm,
		pack: pack,
		deps: BuildAllDeps{
			GenerationDeps: GenerationDeps{
				DB:         db,
				Log:        log,
				LLM:        llm,
				Packs:      packrepos.NewStudyPackRepo(db, log),
				Windows:    materialrepos.NewWindowRepo(db, log),
				Flashcards: packrepos.NewFlashcardRepo(db, log),
				Quizzes:    packrepos.NewQuizRepo(db, log),
				MindMaps:   packrepos.NewMindMapRepo(db, log),
				Config:     cfg,
			},
			Locks: redislock.NewLocal(),
		},
	}
}

func TestIngestWindowsIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	db := f.deps.DB
	log := f.deps.Log
	deps := IngestWindowsDeps{
		DB:        db,
		Log:       log,
		Packs:     f.deps.Packs,
		Documents: materialrepos.NewDocumentRepo(db, log),
		Windows:   f.deps.Windows,
		Chunking:  f.deps.Config.Chunking,
	}
	deps.Chunking.MinSize, deps.Chunking.MaxSize, deps.Chunking.OverlapSize = 10, 20, 5

	text := strings.Repeat("Mitochondria make energy for the cell. Ribosomes build proteins from amino acids.\n\n", 20)
	ctx := context.Background()
	first, err := IngestWindows(ctx, deps, IngestWindowsInput{StudyPackID: f.pack.ID, Title: "chapter", Text: text})
	require.NoError(t, err)
	require.False(t, first.Reused)
	require.Greater(t, first.WindowCount, 1)

	again, err := IngestWindows(ctx, deps, IngestWindowsInput{StudyPackID: f.pack.ID, Title: " chapter ", Text: "different text entirely."})
	require.NoError(t, err)
	require.True(t, again.Reused)
	require.Equal(t, first.DocumentID, again.DocumentID)
	require.Equal(t, first.WindowCount, again.WindowCount)

	rows, err := f.deps.Windows.ListByDocument(dbctx.Context{Ctx: ctx}, first.DocumentID)
	require.NoError(t, err)
	for i, w := range rows {
		require.Equal(t, i, w.OrderIndex)
		require.NotEmpty(t, w.Content)
		require.Positive(t, w.SizeEstimate)
	}

	_, err = IngestWindows(ctx, deps, IngestWindowsInput{StudyPackID: f.pack.ID, Title: "blank", Text: " \n\n "})
	require.True(t, convergence.IsCode(err, convergence.CodeEmptyInput))

	_, err = IngestWindows(ctx, deps, IngestWindowsInput{StudyPackID: uuid.New(), Title: "x", Text: text})
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuildFlashcardsConvergesToTarget(t *testing.T) {
	f := newFixture(t, 20)
	f.llm.on("flashcards", func(call int) (map[string]any, error) {
		if call == 0 {
			return cards("q", 0, 6), nil
		}
		return cards("q", 6, 7), nil
	})

	out, err := BuildFlashcards(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, f.llm.calls("flashcards"))
	assert.Equal(t, convergence.Converged.String(), out.Outcome.State)
	assert.Equal(t, 10, out.Outcome.Produced)
	assert.Equal(t, 10, out.Outcome.Inserted)
	assert.InDelta(t, 1.0, out.Outcome.Coverage(), 1e-9)

	stored, err := f.deps.Flashcards.ListCards(dbctx.Context{Ctx: context.Background()}, out.InstanceID)
	require.NoError(t, err)
	require.Len(t, stored, 10)
	for i, c := range stored {
		assert.Equal(t, i, c.OrderIndex)
		assert.Equal(t, fmt.Sprintf("q %d?", i), c.Front)
		assert.NotEmpty(t, c.Scheduling)
	}
}

func TestBuildFlashcardsReplacesLiveDeck(t *testing.T) {
	f := newFixture(t, 6)
	f.llm.on("flashcards", func(call int) (map[string]any, error) { return cards(fmt.Sprintf("run%d", call), 0, 4), nil })

	ctx := context.Background()
	first, err := BuildFlashcards(ctx, f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 4})
	require.NoError(t, err)
	second, err := BuildFlashcards(ctx, f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 4})
	require.NoError(t, err)
	require.NotEqual(t, first.InstanceID, second.InstanceID)

	live, err := f.deps.Flashcards.GetLiveDeck(dbctx.Context{Ctx: ctx}, f.pack.ID)
	require.NoError(t, err)
	require.Equal(t, second.InstanceID, live.ID)
	n, err := f.deps.Flashcards.CountCards(dbctx.Context{Ctx: ctx}, first.InstanceID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBuildFlashcardsDropsRepeatsWithinRun(t *testing.T) {
	f := newFixture(t, 20)
	f.llm.on("flashcards", func(call int) (map[string]any, error) {
		// second call repeats two cards from the first
		return cards("q", call*2, 4), nil
	})
	out, err := BuildFlashcards(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 6})
	require.NoError(t, err)
	stored, err := f.deps.Flashcards.ListCards(dbctx.Context{Ctx: context.Background()}, out.InstanceID)
	require.NoError(t, err)
	fronts := map[string]bool{}
	for _, c := range stored {
		require.False(t, fronts[c.Front], "duplicate %q", c.Front)
		fronts[c.Front] = true
	}
	require.Len(t, stored, 6)
}

func TestBuildFlashcardsZeroYield(t *testing.T) {
	f := newFixture(t, 20)
	f.llm.on("flashcards", func(int) (map[string]any, error) { return nil, errors.New("upstream 503") })

	_, err := BuildFlashcards(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 5})
	require.True(t, convergence.IsCode(err, convergence.CodeZeroYield))
	require.Equal(t, f.deps.Config.Generation.ZeroYieldCeiling, f.llm.calls("flashcards"))

	_, err = f.deps.Flashcards.GetLiveDeck(dbctx.Context{Ctx: context.Background()}, f.pack.ID)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuildWithoutWindowsIsEmptyInput(t *testing.T) {
	f := newFixture(t, 0)
	_, err := BuildQuizItems(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 3})
	require.True(t, convergence.IsCode(err, convergence.CodeEmptyInput))
	require.Zero(t, f.llm.calls("quiz_items"))
}

func TestBuildQuizItemsKeepsOnlyWellFormed(t *testing.T) {
	f := newFixture(t, 4)
	f.llm.on("quiz_items", func(call int) (map[string]any, error) {
		return map[string]any{"items": []any{
			quizItem(fmt.Sprintf("valid %d", call), "a", "b", "c", "d"),
			quizItem("three options", "a", "b", "c"),
			quizItem("duplicate options", "a", "a", "c", "d"),
			map[string]any{"question": "answer missing", "options": []any{"a", "b", "c", "d"}, "answer": "z"},
		}}, nil
	})

	out, err := BuildQuizItems(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 5})
	require.NoError(t, err)
	// two pages of two windows, one valid item each
	assert.Equal(t, convergence.Exhausted.String(), out.Outcome.State)
	assert.Equal(t, 2, out.Outcome.Produced)
	assert.True(t, out.Outcome.Degraded())

	items, err := f.deps.Quizzes.ListItems(dbctx.Context{Ctx: context.Background()}, out.InstanceID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		require.Len(t, it.Options, 4)
		require.Contains(t, []string(it.Options), it.Answer)
	}
}

func TestBuildMindMapAcrossAttempts(t *testing.T) {
	f := newFixture(t, 20)
	f.llm.on("mind_map", func(call int) (map[string]any, error) {
		if call == 0 {
			return map[string]any{"nodes": []any{
				node("Cell", nil),
				node("Organelles", float64(0)),
				node("Mitochondria", float64(1)),
			}}, nil
		}
		return map[string]any{"nodes": []any{
			node("Membrane", nil),
			node("Lipids", float64(0)),
			node("Dangling", float64(99)),
		}}, nil
	})

	out, err := BuildMindMap(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 6})
	require.NoError(t, err)
	require.Equal(t, 6, out.Outcome.Produced)

	nodes, err := f.deps.MindMaps.ListNodes(dbctx.Context{Ctx: context.Background()}, out.InstanceID)
	require.NoError(t, err)
	require.Len(t, nodes, 6)

	byTitle := map[string]*types.MindMapNode{}
	roots := 0
	for _, n := range nodes {
		byTitle[n.Title] = n
		if n.ParentID == nil {
			roots++
		}
	}
	require.Equal(t, 1, roots)
	root := byTitle["Cell"]
	require.Nil(t, root.ParentID)
	assert.Equal(t, root.ID, *byTitle["Organelles"].ParentID)
	assert.Equal(t, byTitle["Organelles"].ID, *byTitle["Mitochondria"].ParentID)
	assert.Equal(t, root.ID, *byTitle["Membrane"].ParentID)
	assert.Equal(t, byTitle["Membrane"].ID, *byTitle["Lipids"].ParentID)
	assert.Equal(t, root.ID, *byTitle["Dangling"].ParentID)
}

func TestBuildMindMapRejectsRootlessOutput(t *testing.T) {
	f := newFixture(t, 4)
	f.llm.on("mind_map", func(int) (map[string]any, error) {
		return map[string]any{"nodes": []any{map[string]any{"title": "", "parent_index": nil}}}, nil
	})
	_, err := BuildMindMap(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 3})
	require.True(t, convergence.IsCode(err, convergence.CodeZeroYield))
}

func TestBuildMindMapKeepsForwardParents(t *testing.T) {
	f := newFixture(t, 4)
	f.llm.on("mind_map", func(int) (map[string]any, error) {
		return map[string]any{"nodes": []any{
			node("Cell", nil),
			node("Cristae", float64(2)),
			node("Mitochondria", float64(0)),
			node("Loop A", float64(4)),
			node("Loop B", float64(3)),
		}}, nil
	})

	out, err := BuildMindMap(context.Background(), f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 5})
	require.NoError(t, err)
	nodes, err := f.deps.MindMaps.ListNodes(dbctx.Context{Ctx: context.Background()}, out.InstanceID)
	require.NoError(t, err)
	require.Len(t, nodes, 5)

	byTitle := map[string]*types.MindMapNode{}
	for _, n := range nodes {
		byTitle[n.Title] = n
	}
	root := byTitle["Cell"]
	assert.Equal(t, byTitle["Mitochondria"].ID, *byTitle["Cristae"].ParentID)
	assert.Equal(t, root.ID, *byTitle["Mitochondria"].ParentID)
	// a declared cycle is broken under the root
	assert.Equal(t, root.ID, *byTitle["Loop A"].ParentID)
	assert.Equal(t, root.ID, *byTitle["Loop B"].ParentID)
}

func TestExtendMindMapAttachesToCandidates(t *testing.T) {
	f := newFixture(t, 8)
	f.llm.on("mind_map", func(int) (map[string]any, error) {
		return map[string]any{"nodes": []any{
			node("Cell", nil),
			node("Organelles", float64(0)),
			node("Mitochondria", float64(1)),
			node("Nucleus", float64(0)),
		}}, nil
	})
	f.llm.on("mind_map_extend", func(int) (map[string]any, error) {
		return map[string]any{"nodes": []any{
			map[string]any{"title": "Cristae", "content": "folds", "parent_candidate": float64(0)},
			map[string]any{"title": "Orphan", "content": "x", "parent_candidate": float64(99)},
			map[string]any{"title": "nucleus", "content": "repeat", "parent_candidate": float64(1)},
		}}, nil
	})

	ctx := context.Background()
	built, err := BuildMindMap(ctx, f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 4})
	require.NoError(t, err)

	out, err := ExtendMindMap(ctx, f.deps.GenerationDeps, ExtendInput{StudyPackID: f.pack.ID, Count: 3})
	require.NoError(t, err)
	require.Equal(t, built.InstanceID, out.InstanceID)
	assert.Equal(t, 3, out.Outcome.Produced)
	assert.Equal(t, 2, out.Outcome.Inserted)

	nodes, err := f.deps.MindMaps.ListNodes(dbctx.Context{Ctx: ctx}, out.InstanceID)
	require.NoError(t, err)
	require.Len(t, nodes, 6)
	byTitle := map[string]*types.MindMapNode{}
	for _, n := range nodes {
		byTitle[n.Title] = n
	}
	// candidate 0 is the deepest leaf
	assert.Equal(t, byTitle["Mitochondria"].ID, *byTitle["Cristae"].ParentID)
	assert.Equal(t, byTitle["Cell"].ID, *byTitle["Orphan"].ParentID)
	assert.Equal(t, 4, byTitle["Cristae"].OrderIndex)
}

func TestExtendFlashcardsSkipsExistingFronts(t *testing.T) {
	f := newFixture(t, 8)
	f.llm.on("flashcards", func(int) (map[string]any, error) { return cards("q", 0, 5), nil })
	f.llm.on("flashcards_extend", func(int) (map[string]any, error) {
		obj := cards("new", 0, 2)
		obj["flashcards"] = append(obj["flashcards"].([]any), map[string]any{"front": "Q 0", "back": "dup", "kind": "cloze", "topic": "x"})
		return obj, nil
	})

	ctx := context.Background()
	built, err := BuildFlashcards(ctx, f.deps.GenerationDeps, BuildInput{StudyPackID: f.pack.ID, Target: 5})
	require.NoError(t, err)

	out, err := ExtendFlashcards(ctx, f.deps.GenerationDeps, ExtendInput{StudyPackID: f.pack.ID, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, built.InstanceID, out.InstanceID)
	assert.Equal(t, 3, out.Outcome.Produced)
	assert.Equal(t, 2, out.Outcome.Inserted)
	assert.LessOrEqual(t, out.Outcome.Inserted, out.Outcome.Produced)

	stored, err := f.deps.Flashcards.ListCards(dbctx.Context{Ctx: ctx}, out.InstanceID)
	require.NoError(t, err)
	require.Len(t, stored, 7)
	assert.Equal(t, 5, stored[5].OrderIndex)
	assert.Equal(t, "new 0?", stored[5].Front)
}

func TestExtendWithoutLiveInstance(t *testing.T) {
	f := newFixture(t, 4)
	_, err := ExtendQuizItems(context.Background(), f.deps.GenerationDeps, ExtendInput{StudyPackID: f.pack.ID, Count: 2})
	require.ErrorIs(t, err, types.ErrNotFound)
	_, err = ExtendQuizItems(context.Background(), f.deps.GenerationDeps, ExtendInput{StudyPackID: f.pack.ID})
	require.Error(t, err)
}

func TestBuildAllRunsKindsIndependently(t *testing.T) {
	f := newFixture(t, 8)
	f.llm.on("flashcards", func(int) (map[string]any, error) { return cards("q", 0, 3), nil })
	f.llm.on("mind_map", func(int) (map[string]any, error) {
		return map[string]any{"nodes": []any{node("Root", nil), node("Child", float64(0)), node("Leaf", float64(1))}}, nil
	})

	ctx := context.Background()
	release, err := f.deps.Locks.Acquire(ctx, LockKey(f.pack.ID, types.KindQuiz), time.Minute)
	require.NoError(t, err)
	defer release()

	out, err := BuildAll(ctx, f.deps, BuildAllInput{
		StudyPackID: f.pack.ID,
		Targets:     map[types.ArtifactKind]int{types.KindFlashcards: 3, types.KindMindMap: 3},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, redislock.ErrLocked)
	require.Len(t, out.Results, 3)

	assert.NoError(t, out.Results[types.KindFlashcards].Err)
	assert.Equal(t, 3, out.Results[types.KindFlashcards].Output.Outcome.Produced)
	assert.NoError(t, out.Results[types.KindMindMap].Err)
	assert.ErrorIs(t, out.Results[types.KindQuiz].Err, redislock.ErrLocked)
	assert.Zero(t, f.llm.calls("quiz_items"))
}

func TestBuildAllRunsRepeatedKindOnce(t *testing.T) {
	f := newFixture(t, 8)
	f.llm.on("flashcards", func(int) (map[string]any, error) { return cards("q", 0, 3), nil })

	out, err := BuildAll(context.Background(), f.deps, BuildAllInput{
		StudyPackID: f.pack.ID,
		Kinds:       []types.ArtifactKind{types.KindFlashcards, types.KindFlashcards},
		Targets:     map[types.ArtifactKind]int{types.KindFlashcards: 3},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.NoError(t, out.Results[types.KindFlashcards].Err)
	assert.Equal(t, 1, f.llm.calls("flashcards"))
}

func TestNormKey(t *testing.T) {
	assert.Equal(t, "what is atp", normKey("  What is ATP?? "))
	assert.Equal(t, normKey("cell-membrane"), normKey("Cell membrane"))
	assert.Equal(t, "", normKey("?!"))
}
