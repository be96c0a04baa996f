// Package convergence drives a fallible generator toward a target record count.
//
// A Run is an explicit state machine over Sampling, Requesting, Accumulating
// and the terminal states Converged, Exhausted and Failed. Each attempt samples
// a page of unseen windows, asks for the current deficit, and keeps whatever
// well-formed records come back. The accumulated set is truncated to the target
// once the run stops.
package convergence

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type State int

const (
	Sampling State = iota
	Requesting
	Accumulating
	Converged
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Sampling:
		return "sampling"
	case Requesting:
		return "requesting"
	case Accumulating:
		return "accumulating"
	case Converged:
		return "converged"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == Converged || s == Exhausted || s == Failed
}

type Config struct {
	// PageSize is how many unseen windows one attempt draws from.
	PageSize int `yaml:"page_size" json:"page_size"`
	// SamplesPerAttempt caps the windows sent with one request.
	SamplesPerAttempt int `yaml:"samples_per_attempt" json:"samples_per_attempt"`
	// ZeroYieldCeiling is the number of empty attempts tolerated before the
	// first record arrives.
	ZeroYieldCeiling int `yaml:"zero_yield_ceiling" json:"zero_yield_ceiling"`
}

func DefaultConfig() Config {
	return Config{PageSize: 12, SamplesPerAttempt: 6, ZeroYieldCeiling: 3}
}

func (c Config) Validate() error {
	if c.PageSize <= 0 || c.SamplesPerAttempt <= 0 || c.ZeroYieldCeiling <= 0 {
		return fmt.Errorf("convergence: page_size, samples_per_attempt and zero_yield_ceiling must be > 0")
	}
	return nil
}

// Attempt is what a RequestFunc sees for one call.
type Attempt[T any] struct {
	Number  int
	Deficit int
	Windows []chunking.Window
	// Accumulated is the read-only result set so far, in generation order.
	Accumulated []T
}

// RequestFunc performs exactly one model call and returns the well-formed
// records it produced. Any error counts as a model call failure for that
// attempt only.
type RequestFunc[T any] func(ctx context.Context, a Attempt[T]) ([]T, error)

// AttemptFailure is a swallowed model call failure.
type AttemptFailure struct {
	Attempt int
	Err     error
}

// Run is the ephemeral state of one generation. Not safe for concurrent use.
type Run[T any] struct {
	Name    string
	Target  int
	Attempt int
	State   State
	// Cursor is the index of the first window not yet paged.
	Cursor int

	cfg     Config
	windows []chunking.Window
	request RequestFunc[T]
	log     *logger.Logger
	tracer  trace.Tracer

	records     []T
	failures    []AttemptFailure
	zeroStreak  int
	page        []chunking.Window
	sampled     []chunking.Window
	batch       []T
	batchErr    error
	sourceCount int
	started     time.Time
}

// Result is the terminal view of a run. Records never exceed Target.
type Result[T any] struct {
	Records  []T
	Outcome  Outcome
	Failures []AttemptFailure
}

func NewRun[T any](name string, windows []chunking.Window, target int, cfg Config, request RequestFunc[T], log *logger.Logger) (*Run[T], error) {
	if len(windows) == 0 {
		return nil, NewError(CodeEmptyInput, name, "no windows available", nil)
	}
	if target <= 0 {
		return nil, fmt.Errorf("%s: target must be > 0 (got %d)", name, target)
	}
	if request == nil {
		return nil, fmt.Errorf("%s: request func required", name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Run[T]{
		Name:    name,
		Target:  target,
		State:   Sampling,
		cfg:     cfg,
		windows: windows,
		request: request,
		log:     log.With("run", name),
		tracer:  otel.Tracer("studygen/convergence"),
		started: time.Now(),
	}, nil
}

// Satisfied is the number of records accumulated so far.
func (r *Run[T]) Satisfied() int { return len(r.records) }

// Deficit is how many more records the target still needs.
func (r *Run[T]) Deficit() int {
	d := r.Target - len(r.records)
	if d < 0 {
		return 0
	}
	return d
}

func (r *Run[T]) Failures() []AttemptFailure { return r.failures }

// Step performs one state transition and returns the new state.
func (r *Run[T]) Step(ctx context.Context) State {
	switch r.State {
	case Sampling:
		r.sample()
	case Requesting:
		r.requestOnce(ctx)
	case Accumulating:
		r.accumulate()
	}
	return r.State
}

func (r *Run[T]) sample() {
	if len(r.records) >= r.Target {
		r.State = Converged
		return
	}
	if r.Cursor >= len(r.windows) {
		r.finishShort()
		return
	}
	end := r.Cursor + r.cfg.PageSize
	if end > len(r.windows) {
		end = len(r.windows)
	}
	r.page = r.windows[r.Cursor:end]
	r.sampled = chunking.Sample(r.page, r.cfg.SamplesPerAttempt)
	r.Attempt++
	r.State = Requesting
}

func (r *Run[T]) requestOnce(ctx context.Context) {
	deficit := r.Deficit()
	ctx, span := r.tracer.Start(ctx, "convergence.attempt", trace.WithAttributes(
		attribute.String("run", r.Name),
		attribute.Int("attempt", r.Attempt),
		attribute.Int("deficit", deficit),
		attribute.Int("windows", len(r.sampled)),
	))
	defer span.End()

	acc := r.records[:len(r.records):len(r.records)]
	batch, err := r.request(ctx, Attempt[T]{
		Number:      r.Attempt,
		Deficit:     deficit,
		Windows:     r.sampled,
		Accumulated: acc,
	})
	r.batch, r.batchErr = batch, err
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeModelCallFailure))
	}
	span.SetAttributes(attribute.Int("yield", len(batch)))
	r.State = Accumulating
}

func (r *Run[T]) accumulate() {
	status := "ok"
	switch {
	case r.batchErr != nil:
		status = "error"
		r.failures = append(r.failures, AttemptFailure{
			Attempt: r.Attempt,
			Err:     Wrap(CodeModelCallFailure, r.Name, r.batchErr),
		})
		r.log.Warn("generation attempt failed",
			"attempt", r.Attempt,
			"deficit", r.Deficit(),
			"error", r.batchErr,
		)
	case len(r.batch) == 0:
		status = "empty"
		r.log.Warn("generation attempt yielded nothing", "attempt", r.Attempt, "deficit", r.Deficit())
	}
	observability.Current().ObserveGenerationAttempt(r.Name, status, len(r.batch))

	// every attempt consumes its page so a barren section never blocks later ones
	r.Cursor += len(r.page)
	if r.batchErr == nil && len(r.batch) > 0 {
		r.records = append(r.records, r.batch...)
		r.zeroStreak = 0
		r.sourceCount += len(r.sampled)
	} else {
		r.zeroStreak++
	}
	r.batch, r.batchErr = nil, nil

	switch {
	case len(r.records) >= r.Target:
		r.State = Converged
	case len(r.records) == 0 && r.zeroStreak >= r.cfg.ZeroYieldCeiling:
		r.State = Failed
	case r.Cursor >= len(r.windows) && len(r.records) == 0:
		// nothing yet and retries left: start over from the first page
		r.Cursor = 0
		r.State = Sampling
	case r.Cursor >= len(r.windows):
		r.State = Exhausted
	default:
		r.State = Sampling
	}
}

// finishShort ends a run that stopped before reaching the target.
func (r *Run[T]) finishShort() {
	if len(r.records) == 0 {
		r.State = Failed
		return
	}
	r.State = Exhausted
}

// Run steps until a terminal state. A Failed run returns a ZeroYield error and
// no records; otherwise the records are the first Target accumulated, in
// generation order.
func (r *Run[T]) Run(ctx context.Context) (Result[T], error) {
	ctx, span := r.tracer.Start(ctx, "convergence.run", trace.WithAttributes(
		attribute.String("run", r.Name),
		attribute.Int("target", r.Target),
		attribute.Int("windows", len(r.windows)),
	))
	defer span.End()

	for !r.State.Terminal() {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return Result[T]{}, fmt.Errorf("%s: %w", r.Name, err)
		}
		r.Step(ctx)
	}

	res := r.result()
	span.SetAttributes(
		attribute.String("state", r.State.String()),
		attribute.Int("attempts", r.Attempt),
		attribute.Int("produced", res.Outcome.Produced),
	)
	observability.Current().ObserveGenerationRun(r.Name, r.State.String(), time.Since(r.started))
	r.log.Info("generation run finished",
		"state", r.State.String(),
		"target", r.Target,
		"produced", res.Outcome.Produced,
		"attempts", r.Attempt,
		"failures", len(r.failures),
	)

	if r.State == Failed {
		span.SetStatus(codes.Error, string(CodeZeroYield))
		msg := fmt.Sprintf("no usable records after %d attempts", r.Attempt)
		var last error
		if n := len(r.failures); n > 0 {
			last = r.failures[n-1].Err
			msg += "; last failure: " + last.Error()
		}
		return res, NewError(CodeZeroYield, r.Name, msg, last)
	}
	return res, nil
}

func (r *Run[T]) result() Result[T] {
	records := r.records
	if len(records) > r.Target {
		records = records[:r.Target]
	}
	if r.State == Failed {
		records = nil
	}
	return Result[T]{
		Records:  records,
		Failures: r.failures,
		Outcome: Outcome{
			Target:        r.Target,
			Produced:      len(records),
			SourceWindows: r.sourceCount,
			Attempts:      r.Attempt,
			Failures:      len(r.failures),
			State:         r.State.String(),
		},
	}
}

// Generate is NewRun followed by Run.
func Generate[T any](ctx context.Context, name string, windows []chunking.Window, target int, cfg Config, request RequestFunc[T], log *logger.Logger) (Result[T], error) {
	run, err := NewRun(name, windows, target, cfg, request, log)
	if err != nil {
		return Result[T]{}, err
	}
	return run.Run(ctx)
}
