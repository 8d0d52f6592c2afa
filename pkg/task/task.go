// Package task implements the per-task harness: the glue that owns one
// walk's RNG, constructs its MHWalker/collectors/controllers from
// shared read-only CData, runs the MHRW driver, and packages the
// result for the dispatcher.
package task

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sampleforge/mhrw/pkg/collector"
	"github.com/sampleforge/mhrw/pkg/controller"
	"github.com/sampleforge/mhrw/pkg/histogram"
	"github.com/sampleforge/mhrw/pkg/mhrw"
	"github.com/sampleforge/mhrw/pkg/observability"
	"github.com/sampleforge/mhrw/pkg/status"
	"github.com/sampleforge/mhrw/pkg/walker"
)

// CData is the shared, read-only construction template every task
// derives its own private objects from: TaskCData in spec.md's data
// model.
type CData[P any, WP mhrw.StepSizer[WP]] struct {
	// BaseSeed plus the task index gives seed_i = BaseSeed + i.
	BaseSeed uint64

	// Params is the initial MHRWParams template; each task clones it so
	// controllers can mutate their own private copy.
	Params *mhrw.Params[WP]

	// NewWalker, NewCollector and NewController construct fresh,
	// task-exclusive instances given the task's own RNG. NewCollector's
	// result must implement collector.FinalHistogram so the dispatcher
	// can aggregate it.
	NewWalker     func(rng *rand.Rand) walker.Walker[P, WP]
	NewCollector  func(rng *rand.Rand) collector.Collector[P]
	NewController func(rng *rand.Rand) controller.Pipeline
	StartPoint    func(rng *rand.Rand) P

	// Tracer and Metrics are optional; when both are nil the task runs
	// with no observability overhead beyond a few nil checks. When set,
	// every task opens a "mhrw.task" span (with "mhrw.task.thermalise"
	// and "mhrw.task.live_sample" children) and records a TaskMetrics
	// sample on completion, per SPEC_FULL.md §4.8 EXPANDED.
	Tracer  trace.Tracer
	Metrics *observability.TaskMetrics
}

// Hooks wires a Task to its dispatcher: status-report polling/
// submission and cooperative interruption. All three must be
// wait-free and cheap; they are called at least once per raw_move.
type Hooks struct {
	StatusReportRequested func() bool
	Interrupted           func() bool
	SubmitStatus          func(status.TaskStatus)
}

// Result is what a Task hands back to the dispatcher: RunResult of
// spec.md's data model, specialised to the histogram headline result.
type Result struct {
	Index           int
	Histogram       *histogram.WithErrorBars
	AcceptanceRatio float64
	FinalNSweep     int64
	FinalNTherm     int64
	FinalNRun       int64
	Err             error
}

// Task runs one independent MHRW walk, deterministically seeded from
// CData.BaseSeed and its own index.
type Task[P any, WP mhrw.StepSizer[WP]] struct {
	index int
	cdata *CData[P, WP]
	hooks Hooks

	progress *progressTracker[P]
}

// New builds a Task for the given index. index must be in [0, N) for
// an N-task dispatch.
func New[P any, WP mhrw.StepSizer[WP]](index int, cdata *CData[P, WP], hooks Hooks) *Task[P, WP] {
	return &Task[P, WP]{index: index, cdata: cdata, hooks: hooks}
}

// Seed returns this task's deterministic RNG seed, base_seed + index.
func (t *Task[P, WP]) Seed() uint64 { return t.cdata.BaseSeed + uint64(t.index) }

// Run executes the full walk and returns its packaged Result. Run
// never panics on a walker/collector/controller error; it recovers
// cooperative interruption as ErrInterrupted and reports every other
// failure in Result.Err.
func (t *Task[P, WP]) Run() Result {
	start := time.Now()

	// The two PCG seed halves are derived from one seed_i so that
	// deterministic seeding (spec.md §5) needs only base_seed + index,
	// while still giving nearby task indices well-separated streams.
	seed := t.Seed()
	rng := rand.New(rand.NewPCG(seed, seed>>32|seed<<32))

	ctx := context.Background()

	var span trace.Span
	if t.cdata.Tracer != nil {
		ctx, span = t.cdata.Tracer.Start(ctx, "mhrw.task", trace.WithAttributes(
			attribute.Int("mhrw.task.index", t.index),
		))
		defer span.End()
	}

	domainColl := t.cdata.NewCollector(rng)

	fh, ok := domainColl.(collector.FinalHistogram)
	if !ok {
		err := fmt.Errorf("task %d: collector does not implement FinalHistogram", t.index)
		t.recordFailure(ctx, span, start, err)

		return Result{Index: t.index, Err: err}
	}

	params := t.cdata.Params.Clone()

	t.progress = newProgressTracker[P](params.NThermV, params.NRunV, params.NSweepV)

	emitter := collector.NewStatusReportEmitter[P](
		t.hooks.StatusReportRequested,
		t.progress.snapshot(t.index),
		t.hooks.SubmitStatus,
	)

	spanner := newPhaseSpanner[P](ctx, t.cdata.Tracer)

	pipeline := collector.NewMultiple[P](t.progress, spanner, domainColl, emitter)

	d := &mhrw.Driver[P, WP]{
		Walker:     t.cdata.NewWalker(rng),
		Collector:  pipeline,
		Controller: t.cdata.NewController(rng),
		RNG:        rng,
		Params:     params,
		Interrupt:  t.hooks.Interrupted,
	}

	runRes, err := d.Run(t.cdata.StartPoint(rng))
	if err != nil {
		t.recordFailure(ctx, span, start, err)

		return Result{Index: t.index, Err: err}
	}

	if span != nil {
		span.SetAttributes(
			attribute.Int64("mhrw.task.n_sweep", runRes.FinalParams.NSweep()),
			attribute.Int64("mhrw.task.n_therm", runRes.FinalParams.NTherm()),
			attribute.Int64("mhrw.task.n_run", runRes.FinalParams.NRun()),
			attribute.Float64("mhrw.task.acceptance_ratio", runRes.AcceptanceRatio),
		)
		span.SetStatus(codes.Ok, "")
	}

	t.cdata.Metrics.RecordTask(ctx, observability.TaskRunStats{
		TaskIndex:       t.index,
		Samples:         runRes.FinalParams.NRun(),
		AcceptanceRatio: runRes.AcceptanceRatio,
		Duration:        time.Since(start),
	})

	return Result{
		Index:           t.index,
		Histogram:       fh.FinalHistogram(),
		AcceptanceRatio: runRes.AcceptanceRatio,
		FinalNSweep:     runRes.FinalParams.NSweep(),
		FinalNTherm:     runRes.FinalParams.NTherm(),
		FinalNRun:       runRes.FinalParams.NRun(),
	}
}

// recordFailure marks span and metrics state for a task that ended in
// an error (including cooperative interruption).
func (t *Task[P, WP]) recordFailure(ctx context.Context, span trace.Span, start time.Time, err error) {
	errType := observability.ErrTypeInternal
	if errors.Is(err, mhrw.ErrInterrupted) {
		errType = observability.ErrTypeCancel
	} else if errors.Is(err, mhrw.ErrInvalidParameters) {
		errType = observability.ErrTypeValidation
	}

	if span != nil {
		observability.RecordSpanError(span, err, errType, observability.ErrSourceServer)
	}

	t.cdata.Metrics.RecordTask(ctx, observability.TaskRunStats{TaskIndex: t.index, Duration: time.Since(start), Err: err})
}

// phaseSpanner is an internal Collector that opens a "mhrw.task.thermalise"
// span on Init and a "mhrw.task.live_sample" span on ThermalizingDone,
// closing each at the next phase boundary. It is a no-op (nil tracer)
// when the task's CData has no Tracer configured.
type phaseSpanner[P any] struct {
	ctx    context.Context
	tracer trace.Tracer

	thermSpan trace.Span
	liveSpan  trace.Span
}

func newPhaseSpanner[P any](ctx context.Context, tracer trace.Tracer) *phaseSpanner[P] {
	return &phaseSpanner[P]{ctx: ctx, tracer: tracer}
}

func (p *phaseSpanner[P]) Init() {
	if p.tracer == nil {
		return
	}

	_, p.thermSpan = p.tracer.Start(p.ctx, "mhrw.task.thermalise")
}

func (p *phaseSpanner[P]) ThermalizingDone() {
	if p.tracer == nil {
		return
	}

	if p.thermSpan != nil {
		p.thermSpan.End()
	}

	_, p.liveSpan = p.tracer.Start(p.ctx, "mhrw.task.live_sample")
}

func (p *phaseSpanner[P]) Done() {
	if p.liveSpan != nil {
		p.liveSpan.End()
	}
}

func (p *phaseSpanner[P]) RawMove(collector.RawMove[P])    {}
func (p *phaseSpanner[P]) ProcessSample(collector.Sample[P]) {}

// progressTracker is a plain bookkeeping collector (not one of
// spec.md's named StatsCollector built-ins) that tracks phase and
// fraction-done for TaskStatus snapshots, composed into every task's
// collector pipeline ahead of the domain collector and the status
// emitter.
type progressTracker[P any] struct {
	nTherm, nRun, nSweep int64

	phase      status.Phase
	thermIterK int64
	liveIterK  int64

	accepted, total int64
}

func newProgressTracker[P any](nTherm, nRun, nSweep int64) *progressTracker[P] {
	return &progressTracker[P]{nTherm: nTherm, nRun: nRun, nSweep: nSweep, phase: status.PhaseInit}
}

func (p *progressTracker[P]) Init()             { p.phase = status.PhaseThermalising }
func (p *progressTracker[P]) ThermalizingDone()  { p.phase = status.PhaseLiveSampling }
func (p *progressTracker[P]) Done()              { p.phase = status.PhaseFinalised }
func (p *progressTracker[P]) ProcessSample(collector.Sample[P]) {}

func (p *progressTracker[P]) RawMove(m collector.RawMove[P]) {
	if m.IsTherm {
		p.thermIterK = m.K + 1
	} else {
		p.liveIterK = m.K + 1
	}

	p.total++

	if m.Accepted {
		p.accepted++
	}
}

// snapshot returns a closure StatusReportEmitter can call to build a
// TaskStatus from the current progress and the triggering RawMove.
func (p *progressTracker[P]) snapshot(index int) func(collector.RawMove[P]) status.TaskStatus {
	return func(collector.RawMove[P]) status.TaskStatus {
		totalSweeps := (p.nTherm + p.nRun) * p.nSweep
		done := p.thermIterK + p.liveIterK

		fraction := 0.0
		if totalSweeps > 0 {
			fraction = float64(done) / float64(totalSweeps)
		}

		ratio := 0.0
		if p.total > 0 {
			ratio = float64(p.accepted) / float64(p.total)
		}

		return status.TaskStatus{
			TaskIndex:       index,
			Phase:           p.phase,
			SweepsDone:      done / maxInt64(p.nSweep, 1),
			SweepsTotal:     totalSweeps / maxInt64(p.nSweep, 1),
			FractionDone:    fraction,
			AcceptanceRatio: ratio,
		}
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}

	return b
}
