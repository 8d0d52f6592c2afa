// Package collector implements the StatsCollector pipeline: the
// composable set of callbacks the MHRW driver invokes at well-defined
// points in its loop, plus the built-in collectors spec.md names.
package collector

import (
	"math/rand/v2"

	"github.com/sampleforge/mhrw/pkg/binning"
	"github.com/sampleforge/mhrw/pkg/histogram"
	"github.com/sampleforge/mhrw/pkg/mhrwutil"
	"github.com/sampleforge/mhrw/pkg/status"
	"github.com/sampleforge/mhrw/pkg/valuecalc"
)

// RawMove describes one Metropolis iteration, passed to every
// collector's RawMove in the exact order the driver performs them.
type RawMove[P any] struct {
	K        int64
	IsTherm  bool
	IsLive   bool
	Accepted bool
	Alpha    float64
	NewPt    P
	NewVal   float64
	CurPt    P
	CurVal   float64
	RNG      *rand.Rand
}

// Sample describes one accepted live-phase draw, passed to every
// collector's ProcessSample once per sweep during the live phase.
type Sample[P any] struct {
	K      int64
	N      int64
	CurPt  P
	CurVal float64
	RNG    *rand.Rand
}

// Collector is the StatsCollector contract: every implementation gets
// Init/ThermalizingDone/Done/RawMove/ProcessSample called, in this
// exact order, at the phases the driver defines.
type Collector[P any] interface {
	Init()
	ThermalizingDone()
	Done()
	RawMove(m RawMove[P])
	ProcessSample(s Sample[P])
}

// ResultCollector is a Collector that yields a result once Done has
// run. Not every collector has one (e.g. StatusReportEmitter doesn't),
// so it is a separate, narrower interface rather than part of
// Collector itself.
type ResultCollector[P any, R any] interface {
	Collector[P]
	Result() R
}

// FinalHistogram is implemented by every built-in collector that
// produces a headline histogram result: ValueHistogramCollector and
// ValueHistogramWithBinningCollector both expose one, uniformly
// normalised and carrying error bars (zero when no binning analysis
// backs them), so a dispatcher can aggregate either kind identically.
type FinalHistogram interface {
	FinalHistogram() *histogram.WithErrorBars
}

// Multiple composes a fixed-order list of collectors and forwards
// every call to each of them, in order, the "multiple collector" of
// spec.md §4.4.
type Multiple[P any] struct {
	collectors []Collector[P]
}

// NewMultiple builds a Multiple from collectors, preserving order.
func NewMultiple[P any](collectors ...Collector[P]) *Multiple[P] {
	return &Multiple[P]{collectors: collectors}
}

func (m *Multiple[P]) Init() {
	for _, c := range m.collectors {
		c.Init()
	}
}

func (m *Multiple[P]) ThermalizingDone() {
	for _, c := range m.collectors {
		c.ThermalizingDone()
	}
}

func (m *Multiple[P]) Done() {
	for _, c := range m.collectors {
		c.Done()
	}
}

func (m *Multiple[P]) RawMove(mv RawMove[P]) {
	for _, c := range m.collectors {
		c.RawMove(mv)
	}
}

func (m *Multiple[P]) ProcessSample(s Sample[P]) {
	for _, c := range m.collectors {
		c.ProcessSample(s)
	}
}

// ValueHistogramCollector records calc.Value(curPt) into a Histogram
// at every ProcessSample call.
type ValueHistogramCollector[P any] struct {
	calc valuecalc.Calculator[P]
	hist *histogram.Histogram
}

// NewValueHistogramCollector builds a collector over params, recording
// calc's output on every sample.
func NewValueHistogramCollector[P any](params histogram.Params, calc valuecalc.Calculator[P]) (*ValueHistogramCollector[P], error) {
	h, err := histogram.New(params)
	if err != nil {
		return nil, err
	}

	return &ValueHistogramCollector[P]{calc: calc, hist: h}, nil
}

func (c *ValueHistogramCollector[P]) Init()             {}
func (c *ValueHistogramCollector[P]) ThermalizingDone() {}
func (c *ValueHistogramCollector[P]) RawMove(RawMove[P]) {}

func (c *ValueHistogramCollector[P]) ProcessSample(s Sample[P]) {
	c.hist.Record(c.calc.Value(s.CurPt))
}

// Done normalises the histogram to sum 1, matching the shape a
// dispatcher's AveragedHistogram expects across collector kinds.
func (c *ValueHistogramCollector[P]) Done() {
	c.hist.Normalize()
}

// Result returns the accumulated, normalised Histogram.
func (c *ValueHistogramCollector[P]) Result() *histogram.Histogram { return c.hist }

// FinalHistogram implements collector.FinalHistogram: since this collector
// carries no binning analysis, every error bar is zero.
func (c *ValueHistogramCollector[P]) FinalHistogram() *histogram.WithErrorBars {
	return &histogram.WithErrorBars{Histogram: *c.hist, Delta: make([]float64, len(c.hist.Bins))}
}

// BinningResult is the yield of ValueHistogramWithBinningCollector:
// the normalised histogram with top-level error bars, the full
// level-by-level error table, and a per-bin convergence verdict.
type BinningResult struct {
	Histogram   *histogram.WithErrorBars
	LevelErrors [][]float64
	Verdicts    []binning.Verdict
}

// ValueHistogramWithBinningCollector composes a value histogram with a
// BinningAnalysis tracking the one-hot bin-indicator vector of each
// sample, yielding convergence-qualified error bars on Done.
type ValueHistogramWithBinningCollector[P any] struct {
	calc     valuecalc.Calculator[P]
	hist     *histogram.Histogram
	binning  *binning.Analysis
	params   histogram.Params

	result *BinningResult
}

// NewValueHistogramWithBinningCollector builds the composed collector.
// binParams.NumTracked must equal histParams.NumBins.
func NewValueHistogramWithBinningCollector[P any](
	histParams histogram.Params,
	binParams binning.Params,
	calc valuecalc.Calculator[P],
) (*ValueHistogramWithBinningCollector[P], error) {
	h, err := histogram.New(histParams)
	if err != nil {
		return nil, err
	}

	ba, err := binning.New(binParams)
	if err != nil {
		return nil, err
	}

	return &ValueHistogramWithBinningCollector[P]{
		calc:    calc,
		hist:    h,
		binning: ba,
		params:  histParams,
	}, nil
}

func (c *ValueHistogramWithBinningCollector[P]) Init()             {}
func (c *ValueHistogramWithBinningCollector[P]) ThermalizingDone() {}
func (c *ValueHistogramWithBinningCollector[P]) RawMove(RawMove[P]) {}

func (c *ValueHistogramWithBinningCollector[P]) ProcessSample(s Sample[P]) {
	v := c.calc.Value(s.CurPt)

	k, err := c.hist.Record(v)

	indicator := make([]float64, c.params.NumBins)
	if err == nil {
		indicator[k] = 1
	}

	c.binning.AddSample(indicator)
}

// Done normalises the histogram to sum 1, queries the binning
// analysis for per-bin error bars at every level, and classifies each
// bin's convergence.
func (c *ValueHistogramWithBinningCollector[P]) Done() {
	normalized := *c.hist
	normalized.Normalize()

	levelErrors, verdicts := c.verdicts()

	web := &histogram.WithErrorBars{
		Histogram: normalized,
		Delta:     make([]float64, c.params.NumBins),
	}

	for k, errs := range levelErrors {
		if len(errs) > 0 {
			web.Delta[k] = errs[len(errs)-1]
		}
	}

	c.result = &BinningResult{Histogram: web, LevelErrors: levelErrors, Verdicts: verdicts}
}

// verdicts computes the current level-by-level error table and
// per-bin convergence verdict directly from the live binning-analysis
// accumulator; unlike Result, it needs no prior Done call, so
// BinsConvergedController can poll it mid-run.
func (c *ValueHistogramWithBinningCollector[P]) verdicts() ([][]float64, []binning.Verdict) {
	levelErrors := make([][]float64, c.params.NumBins)
	verdicts := make([]binning.Verdict, c.params.NumBins)

	for k := 0; k < c.params.NumBins; k++ {
		levelErrors[k] = c.binning.LevelErrors(k)
		verdicts[k] = c.binning.Verdict(k)
	}

	return levelErrors, verdicts
}

// Result returns the final BinningResult. Valid only after Done.
func (c *ValueHistogramWithBinningCollector[P]) Result() *BinningResult { return c.result }

// ConvergenceCounts reports the live (unknown, notConverged,
// unknownIsolated) convergence-class tallies across all tracked bins,
// computed directly from the binning-analysis accumulator's current
// state. Unlike Result().ConvergenceCounts, this is valid at any point
// during the run, which is what lets BinsConvergedController poll it
// mid-live-phase via controller.ConvergenceSource.
func (c *ValueHistogramWithBinningCollector[P]) ConvergenceCounts() (unknown, notConverged, unknownIsolated int) {
	_, verdicts := c.verdicts()

	res := &BinningResult{Verdicts: verdicts}
	unknown, notConverged = res.ConvergenceCounts()
	unknownIsolated = res.UnknownIsolatedCount()

	return unknown, notConverged, unknownIsolated
}

// FinalHistogram implements collector.FinalHistogram, exposing the
// convergence-qualified per-bin error bars computed in Done.
func (c *ValueHistogramWithBinningCollector[P]) FinalHistogram() *histogram.WithErrorBars {
	return c.result.Histogram
}

// ConvergenceCounts tallies Result().Verdicts into per-class counts,
// as BinsConvergedController needs.
func (r *BinningResult) ConvergenceCounts() (unknown, notConverged int) {
	for _, v := range r.Verdicts {
		switch v {
		case binning.UnknownConvergence:
			unknown++
		case binning.NotConverged:
			notConverged++
		}
	}

	return unknown, notConverged
}

// UnknownIsolatedCount counts UNKNOWN_CONVERGENCE bins adjacent (by
// index) to a NOT_CONVERGED bin, the "bins_unknown_and_adjacent_to_
// not_converged" count BinsConvergedController vetoes on.
func (r *BinningResult) UnknownIsolatedCount() int {
	count := 0

	for k, v := range r.Verdicts {
		if v != binning.UnknownConvergence {
			continue
		}

		if k > 0 && r.Verdicts[k-1] == binning.NotConverged {
			count++

			continue
		}

		if k+1 < len(r.Verdicts) && r.Verdicts[k+1] == binning.NotConverged {
			count++
		}
	}

	return count
}

// MovingAverageAcceptanceRatioCollector is a fixed-capacity circular
// buffer of the last B accept/reject outcomes, accumulated for every
// RawMove regardless of thermalising/live phase, since it exists to
// feed the step-size controller during thermalisation too.
type MovingAverageAcceptanceRatioCollector[P any] struct {
	buf *mhrwutil.BoundedBuffer[bool]
}

// NewMovingAverageAcceptanceRatioCollector builds a collector with
// buffer capacity size.
func NewMovingAverageAcceptanceRatioCollector[P any](size int) *MovingAverageAcceptanceRatioCollector[P] {
	return &MovingAverageAcceptanceRatioCollector[P]{buf: mhrwutil.NewBoundedBuffer[bool](size)}
}

func (c *MovingAverageAcceptanceRatioCollector[P]) Init()             {}
func (c *MovingAverageAcceptanceRatioCollector[P]) ThermalizingDone() {}
func (c *MovingAverageAcceptanceRatioCollector[P]) Done()             {}
func (c *MovingAverageAcceptanceRatioCollector[P]) ProcessSample(Sample[P]) {}

func (c *MovingAverageAcceptanceRatioCollector[P]) RawMove(m RawMove[P]) {
	c.buf.Push(m.Accepted)
}

// Ready reports whether the buffer has seen at least its full
// capacity of moves.
func (c *MovingAverageAcceptanceRatioCollector[P]) Ready() bool {
	return c.buf.Full()
}

// Mean returns the current moving-average acceptance ratio. It is only
// meaningful once Ready() is true.
func (c *MovingAverageAcceptanceRatioCollector[P]) Mean() float64 {
	if c.buf.Len() == 0 {
		return 0
	}

	accepted := 0

	c.buf.Each(func(v bool) {
		if v {
			accepted++
		}
	})

	return float64(accepted) / float64(c.buf.Len())
}

// StatusReportEmitter fires a predicate on every RawMove and, when it
// returns true, assembles a TaskStatus snapshot via snapshot and hands
// it to submit.
type StatusReportEmitter[P any] struct {
	predicate func() bool
	snapshot  func(m RawMove[P]) status.TaskStatus
	submit    func(status.TaskStatus)
}

// NewStatusReportEmitter builds an emitter. predicate is polled on
// every RawMove; when it fires, snapshot builds the TaskStatus and
// submit receives it.
func NewStatusReportEmitter[P any](
	predicate func() bool,
	snapshot func(m RawMove[P]) status.TaskStatus,
	submit func(status.TaskStatus),
) *StatusReportEmitter[P] {
	return &StatusReportEmitter[P]{predicate: predicate, snapshot: snapshot, submit: submit}
}

func (c *StatusReportEmitter[P]) Init()             {}
func (c *StatusReportEmitter[P]) ThermalizingDone() {}
func (c *StatusReportEmitter[P]) Done()             {}
func (c *StatusReportEmitter[P]) ProcessSample(Sample[P]) {}

func (c *StatusReportEmitter[P]) RawMove(m RawMove[P]) {
	if c.predicate() {
		c.submit(c.snapshot(m))
	}
}
