package steps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/redislock"
)

type BuildAllDeps struct {
	GenerationDeps
	Locks redislock.Locker
}

type BuildAllInput struct {
	StudyPackID uuid.UUID
	// Kinds defaults to every kind.
	Kinds []types.ArtifactKind
	// Targets overrides per-kind targets; missing kinds use the config.
	Targets map[types.ArtifactKind]int
}

// KindResult is one kind's result inside BuildAll. Err is set instead of
// Output when that kind failed.
type KindResult struct {
	Output ArtifactOutput `json:"output"`
	Err    error          `json:"-"`
}

type BuildAllOutput struct {
	Results map[types.ArtifactKind]KindResult `json:"results"`
}

// LockKey names the run lock guarding one artifact kind of one pack.
func LockKey(packID uuid.UUID, kind types.ArtifactKind) string {
	return fmt.Sprintf("studypack:%s:%s", packID.String(), kind)
}

// Build dispatches a single build under the pack's run lock for kind.
func Build(ctx context.Context, deps BuildAllDeps, kind types.ArtifactKind, in BuildInput) (ArtifactOutput, error) {
	return withLock(ctx, deps, in.StudyPackID, kind, func(ctx context.Context) (ArtifactOutput, error) {
		switch kind {
		case types.KindFlashcards:
			return BuildFlashcards(ctx, deps.GenerationDeps, in)
		case types.KindQuiz:
			return BuildQuizItems(ctx, deps.GenerationDeps, in)
		case types.KindMindMap:
			return BuildMindMap(ctx, deps.GenerationDeps, in)
		}
		return ArtifactOutput{}, fmt.Errorf("build: unknown kind %q", kind)
	})
}

// Extend dispatches a single extension under the same lock as Build.
func Extend(ctx context.Context, deps BuildAllDeps, kind types.ArtifactKind, in ExtendInput) (ArtifactOutput, error) {
	return withLock(ctx, deps, in.StudyPackID, kind, func(ctx context.Context) (ArtifactOutput, error) {
		switch kind {
		case types.KindFlashcards:
			return ExtendFlashcards(ctx, deps.GenerationDeps, in)
		case types.KindQuiz:
			return ExtendQuizItems(ctx, deps.GenerationDeps, in)
		case types.KindMindMap:
			return ExtendMindMap(ctx, deps.GenerationDeps, in)
		}
		return ArtifactOutput{}, fmt.Errorf("extend: unknown kind %q", kind)
	})
}

// BuildAll runs one independent build per kind concurrently. A failing kind
// does not cancel the others; the first error is also returned.
func BuildAll(ctx context.Context, deps BuildAllDeps, in BuildAllInput) (BuildAllOutput, error) {
	out := BuildAllOutput{Results: map[types.ArtifactKind]KindResult{}}
	if in.StudyPackID == uuid.Nil {
		return out, fmt.Errorf("build_all: missing study_pack_id")
	}
	kinds := distinctKinds(in.Kinds)
	if len(kinds) == 0 {
		kinds = types.AllKinds()
	}

	var (
		mu       sync.Mutex
		firstErr error
		g        errgroup.Group
	)
	for _, kind := range kinds {
		kind := kind
		g.Go(func() error {
			res, err := Build(ctx, deps, kind, BuildInput{StudyPackID: in.StudyPackID, Target: in.Targets[kind]})
			mu.Lock()
			defer mu.Unlock()
			out.Results[kind] = KindResult{Output: res, Err: err}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("build_all: %s: %w", kind, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, firstErr
}

func distinctKinds(in []types.ArtifactKind) []types.ArtifactKind {
	seen := make(map[types.ArtifactKind]bool, len(in))
	out := make([]types.ArtifactKind, 0, len(in))
	for _, k := range in {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func withLock(ctx context.Context, deps BuildAllDeps, packID uuid.UUID, kind types.ArtifactKind, fn func(context.Context) (ArtifactOutput, error)) (ArtifactOutput, error) {
	if deps.Locks == nil {
		return fn(ctx)
	}
	ttl := 15 * time.Minute
	if deps.Config != nil {
		ttl = deps.Config.Locks.TTL()
	}
	release, err := deps.Locks.Acquire(ctx, LockKey(packID, kind), ttl)
	if errors.Is(err, redislock.ErrLocked) {
		return ArtifactOutput{Kind: kind}, fmt.Errorf("%s run for pack %s: %w", kind, packID, err)
	}
	if err != nil {
		return ArtifactOutput{Kind: kind}, err
	}
	defer release()
	return fn(ctx)
}
