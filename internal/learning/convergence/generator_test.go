package convergence

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
)

func makeWindows(n int) []chunking.Window {
	out := make([]chunking.Window, n)
	for i := range out {
		out[i] = chunking.Window{OrderIndex: i, Content: fmt.Sprintf("window %d", i), SizeEstimate: 2}
	}
	return out
}

// scripted returns yields[i] fresh records on attempt i+1 and 0 afterwards.
// A negative yield is a transport error.
type scripted struct {
	yields []int
	calls  []Attempt[string]
	next   int
}

func (s *scripted) request(_ context.Context, a Attempt[string]) ([]string, error) {
	s.calls = append(s.calls, a)
	i := len(s.calls) - 1
	if i >= len(s.yields) {
		return nil, nil
	}
	y := s.yields[i]
	if y < 0 {
		return nil, errors.New("upstream 503")
	}
	out := make([]string, y)
	for j := range out {
		out[j] = fmt.Sprintf("r%d", s.next)
		s.next++
	}
	return out, nil
}

func cfg() Config {
	return Config{PageSize: 4, SamplesPerAttempt: 2, ZeroYieldCeiling: 3}
}

func TestTargetTenFromSixThenSeven(t *testing.T) {
	s := &scripted{yields: []int{6, 7}}
	res, err := Generate(context.Background(), "flashcards", makeWindows(20), 10, cfg(), s.request, nil)
	require.NoError(t, err)

	require.Len(t, res.Records, 10)
	for i, r := range res.Records {
		assert.Equal(t, fmt.Sprintf("r%d", i), r)
	}
	assert.Equal(t, "converged", res.Outcome.State)
	assert.Equal(t, 10, res.Outcome.Produced)
	assert.Equal(t, 2, res.Outcome.Attempts)
	assert.Equal(t, 4, res.Outcome.SourceWindows)

	require.Len(t, s.calls, 2)
	assert.Equal(t, 10, s.calls[0].Deficit)
	assert.Equal(t, 4, s.calls[1].Deficit)
	assert.Len(t, s.calls[1].Accumulated, 6)
	// second attempt samples the second page
	assert.Equal(t, []int{0, 2}, orderIndices(s.calls[0].Windows))
	assert.Equal(t, []int{4, 6}, orderIndices(s.calls[1].Windows))
}

func orderIndices(ws []chunking.Window) []int {
	out := make([]int, len(ws))
	for i, w := range ws {
		out[i] = w.OrderIndex
	}
	return out
}

func TestAllZeroYieldFails(t *testing.T) {
	s := &scripted{yields: []int{0, 0, 0, 0}}
	res, err := Generate(context.Background(), "quiz", makeWindows(20), 5, cfg(), s.request, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeZeroYield))
	assert.Empty(t, res.Records)
	assert.Equal(t, "failed", res.Outcome.State)
	assert.Len(t, s.calls, 3)
}

func TestFailuresAreSwallowedOnSinglePage(t *testing.T) {
	s := &scripted{yields: []int{-1, -1, 3}}
	res, err := Generate(context.Background(), "quiz", makeWindows(4), 3, cfg(), s.request, nil)
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.Equal(t, CodeModelCallFailure, CodeOf(f.Err))
	}
	// one page only: the cursor wraps back to it while nothing has been kept
	for _, c := range s.calls {
		assert.Equal(t, []int{0, 2}, orderIndices(c.Windows))
	}
}

func TestEmptyAttemptsAdvanceTheCursor(t *testing.T) {
	s := &scripted{yields: []int{0, 0, 4}}
	res, err := Generate(context.Background(), "quiz", makeWindows(12), 4, cfg(), s.request, nil)
	require.NoError(t, err)
	assert.Equal(t, "converged", res.Outcome.State)
	require.Len(t, s.calls, 3)
	assert.Equal(t, []int{0, 2}, orderIndices(s.calls[0].Windows))
	assert.Equal(t, []int{4, 6}, orderIndices(s.calls[1].Windows))
	assert.Equal(t, []int{8, 10}, orderIndices(s.calls[2].Windows))
	assert.Equal(t, 2, res.Outcome.SourceWindows)
}

func TestTransportFailuresUpToCeilingFail(t *testing.T) {
	s := &scripted{yields: []int{-1, -1, -1}}
	_, err := Generate(context.Background(), "mind_map", makeWindows(8), 3, cfg(), s.request, nil)
	require.Error(t, err)
	assert.Equal(t, CodeZeroYield, CodeOf(err))
	assert.Contains(t, err.Error(), "upstream 503")
}

func TestExhaustedKeepsPartialYield(t *testing.T) {
	s := &scripted{yields: []int{2, 3}}
	res, err := Generate(context.Background(), "flashcards", makeWindows(8), 20, cfg(), s.request, nil)
	require.NoError(t, err)
	assert.Equal(t, "exhausted", res.Outcome.State)
	assert.Len(t, res.Records, 5)
	assert.True(t, res.Outcome.Degraded())
	assert.InDelta(t, 0.25, res.Outcome.Coverage(), 1e-9)
}

func TestBarrenPagesDoNotStarveLaterPages(t *testing.T) {
	t.Run("converges past a barren stretch", func(t *testing.T) {
		s := &scripted{yields: []int{3, 0, 0, 0, 5, 5}}
		res, err := Generate(context.Background(), "flashcards", makeWindows(24), 10, cfg(), s.request, nil)
		require.NoError(t, err)
		assert.Equal(t, "converged", res.Outcome.State)
		assert.Len(t, res.Records, 10)
		require.Len(t, s.calls, 6)
		assert.Equal(t, []int{16, 18}, orderIndices(s.calls[4].Windows))
		assert.Equal(t, []int{20, 22}, orderIndices(s.calls[5].Windows))
	})

	t.Run("exhausts only at the last page", func(t *testing.T) {
		s := &scripted{yields: []int{3, 0, 0, 0, 5}}
		res, err := Generate(context.Background(), "flashcards", makeWindows(20), 10, cfg(), s.request, nil)
		require.NoError(t, err)
		assert.Equal(t, "exhausted", res.Outcome.State)
		assert.Len(t, res.Records, 8)
		assert.Len(t, s.calls, 5)
	})
}

func TestEmptyInput(t *testing.T) {
	_, err := Generate(context.Background(), "flashcards", nil, 10, cfg(), (&scripted{}).request, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeEmptyInput))
}

func TestStepExposesStates(t *testing.T) {
	s := &scripted{yields: []int{1}}
	run, err := NewRun("flashcards", makeWindows(2), 1, cfg(), s.request, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, Sampling, run.State)
	assert.Equal(t, Requesting, run.Step(ctx))
	assert.Equal(t, Accumulating, run.Step(ctx))
	assert.Equal(t, Converged, run.Step(ctx))
	assert.Equal(t, 1, run.Satisfied())
	assert.Equal(t, 0, run.Deficit())
	assert.True(t, run.State.Terminal())
}

func TestCanceledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Generate(ctx, "flashcards", makeWindows(4), 1, cfg(), (&scripted{yields: []int{1}}).request, nil)
	require.ErrorIs(t, err, context.Canceled)
}

// For any target and any yields with fewer than ceiling consecutive zeros and
// enough windows, the result holds min(t, sum) records, in generation order.
func TestPersistedCountIsMinOfTargetAndSum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 300; trial++ {
		n := 1 + rng.Intn(8)
		yields := make([]int, n)
		sum, zeros := 0, 0
		for i := range yields {
			y := rng.Intn(6)
			if y == 0 {
				zeros++
				if zeros == 3 {
					y = 1
					zeros = 0
				}
			} else {
				zeros = 0
			}
			yields[i] = y
			sum += y
		}
		target := 1 + rng.Intn(25)
		s := &scripted{yields: yields}
		res, err := Generate(context.Background(), "prop", makeWindows(4*(n+4)), target, cfg(), s.request, nil)

		want := sum
		if target < want {
			want = target
		}
		if want == 0 {
			require.Error(t, err, "trial %d", trial)
			assert.Empty(t, res.Records)
			continue
		}
		require.NoError(t, err, "trial %d yields %v", trial, yields)
		require.Len(t, res.Records, want, "trial %d yields %v target %d", trial, yields, target)
		assert.LessOrEqual(t, len(res.Records), target)
		for i, r := range res.Records {
			assert.Equal(t, fmt.Sprintf("r%d", i), r)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	err := PersistenceFailure("flashcards.insert", 7, errors.New("disk full"))
	assert.Equal(t, CodePersistenceFailure, CodeOf(err))
	assert.Contains(t, err.Error(), "7 records unpersisted")
	assert.Nil(t, Wrap(CodeZeroYield, "x", nil))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}
