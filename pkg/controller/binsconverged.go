package controller

import "math/rand/v2"

// Defaults for BinsConvergedController, adopted per spec.md §9's Open
// Question resolution (see DESIGN.md).
const (
	DefaultMaxUnknown         = 2
	DefaultMaxUnknownIsolated = 0
	DefaultMaxNotConverged    = 0
	DefaultPollPeriodSweeps   = 1024
)

// ConvergenceSource reports the current per-bin convergence tallies
// from a binning-analysis collector. A
// *collector.ValueHistogramWithBinningCollector's BinningResult
// implements the shape this needs via its ConvergenceCounts and
// UnknownIsolatedCount helpers; callers adapt with a small closure.
type ConvergenceSource interface {
	// Counts reports (unknown, notConverged, unknownIsolated) over all
	// tracked bins as of the most recent sample.
	Counts() (unknown, notConverged, unknownIsolated int)
}

// ConvergenceSourceFunc adapts a plain function to ConvergenceSource.
type ConvergenceSourceFunc func() (unknown, notConverged, unknownIsolated int)

// Counts implements ConvergenceSource.
func (f ConvergenceSourceFunc) Counts() (int, int, int) { return f() }

// BinsConvergedController is the binning-convergence-driven live-phase
// extender of spec.md §4.5. It queries source on every AllowDoneRuns
// call and vetoes ending the live phase while any convergence-class
// threshold is exceeded. The poll period (DefaultPollPeriodSweeps,
// WithPollPeriod) is stored but does not throttle these queries.
type BinsConvergedController struct {
	source ConvergenceSource

	pollPeriod         int64
	maxUnknown         int
	maxUnknownIsolated int
	maxNotConverged    int

	sweepsSincePoll int64
	lastUnknown     int
	lastNotConv     int
	lastUnkIsolated int
}

// NewBinsConvergedController builds a controller with the adopted
// default thresholds and poll period.
func NewBinsConvergedController(source ConvergenceSource) *BinsConvergedController {
	return &BinsConvergedController{
		source:             source,
		pollPeriod:         DefaultPollPeriodSweeps,
		maxUnknown:         DefaultMaxUnknown,
		maxUnknownIsolated: DefaultMaxUnknownIsolated,
		maxNotConverged:    DefaultMaxNotConverged,
	}
}

// WithThresholds overrides the default convergence-class thresholds.
func (c *BinsConvergedController) WithThresholds(maxUnknown, maxUnknownIsolated, maxNotConverged int) *BinsConvergedController {
	c.maxUnknown = maxUnknown
	c.maxUnknownIsolated = maxUnknownIsolated
	c.maxNotConverged = maxNotConverged

	return c
}

// WithPollPeriod overrides the default poll period, in sweeps.
func (c *BinsConvergedController) WithPollPeriod(sweeps int64) *BinsConvergedController {
	c.pollPeriod = sweeps

	return c
}

// Strategy implements Controller: this controller only acts (vetoes)
// during the live phase.
func (c *BinsConvergedController) Strategy() Strategy { return AdjustWhileRunning }

func (c *BinsConvergedController) InitParams(Params, *rand.Rand) {}

// AdjustParams counts live-phase sweeps since the last AllowDoneRuns
// query in sweepsSincePoll. The count is internal (no accessor reads
// it) and does not gate AllowDoneRuns, which always re-polls.
func (c *BinsConvergedController) AdjustParams(_ Params, isTherm, isAfterSample bool, _ int64, _ *rand.Rand) {
	if isTherm || !isAfterSample {
		return
	}

	c.sweepsSincePoll++
}

func (c *BinsConvergedController) ThermalizingDone(Params, *rand.Rand)             {}
func (c *BinsConvergedController) AllowDoneThermalization(Params, *rand.Rand) bool { return true }

// AllowDoneRuns vetoes ending the live phase while
// bins_unknown > maxUnknown, bins_unknown_and_adjacent_to_not_converged
// > maxUnknownIsolated, or bins_not_converged > maxNotConverged, per
// a fresh query of source. Every call queries source, whatever the
// poll period: the driver calls it once at the end of the live phase
// and again after each one-sweep extension of n_run, so while it vetoes
// the source is queried once per extra sweep.
func (c *BinsConvergedController) AllowDoneRuns(Params, *rand.Rand) bool {
	c.lastUnknown, c.lastNotConv, c.lastUnkIsolated = c.source.Counts()
	c.sweepsSincePoll = 0

	if c.lastUnknown > c.maxUnknown {
		return false
	}

	if c.lastUnkIsolated > c.maxUnknownIsolated {
		return false
	}

	if c.lastNotConv > c.maxNotConverged {
		return false
	}

	return true
}
