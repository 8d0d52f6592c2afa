package controller

import "math/rand/v2"

// Step-size adjustment factors and clamp, taken verbatim from the
// reference implementation's acceptance-ratio buckets.
const (
	factorFarAboveHigh  = 1.5
	factorWellAboveHigh = 1.2
	factorAboveHigh     = 1.05
	factorFarBelowLow   = 0.5
	factorWellBelowLow  = 0.8
	factorBelowLow      = 0.95

	clampLow  = 0.7
	clampHigh = 1.5
)

// DefaultRLo and DefaultRHi are the target acceptance-ratio band
// bounds; spec.md leaves the exact constants implementation-defined
// within "the middle third of a recommended range" (see DESIGN.md).
const (
	DefaultRLo = 0.25
	DefaultRHi = 0.35
	// DefaultPhi is the guaranteed fraction of n_therm_original sweeps
	// that must still run with the final step_size before
	// thermalisation may end.
	DefaultPhi = 0.5
)

// AcceptanceRatioSource reports the controller's moving-average
// acceptance ratio and whether it has accumulated enough samples to
// be trusted. A *collector.MovingAverageAcceptanceRatioCollector
// satisfies this directly via its Ready/Mean methods.
type AcceptanceRatioSource interface {
	Ready() bool
	Mean() float64
}

// StepSizeAdjuster is the acceptance-ratio-driven step-size/sweep-size
// controller of spec.md §4.5. It consumes an AcceptanceRatioSource,
// adjusts step_size to steer the acceptance ratio into [RLo, RHi], and
// grows n_therm after each adjustment so that enough post-adjustment
// sweeps run at the final step_size. It never vetoes leaving
// thermalisation; the driver re-reads the n_therm bound every
// iteration, so the growth alone keeps the guarantee.
type StepSizeAdjuster struct {
	source AcceptanceRatioSource
	period int64

	rLo, rHi float64
	phi      float64

	origNTherm        int64
	origStepTimesSweep float64
	lastAdjustIterK    int64
	haveAdjusted       bool
}

// NewStepSizeAdjuster builds a StepSizeAdjuster. period is the
// iteration cadence at which it considers adjusting (spec.md's
// iter_k % max(n_sweep, buffer_size) == 0); source supplies the
// moving-average acceptance ratio.
func NewStepSizeAdjuster(source AcceptanceRatioSource, period int64) *StepSizeAdjuster {
	return &StepSizeAdjuster{
		source: source,
		period: period,
		rLo:    DefaultRLo,
		rHi:    DefaultRHi,
		phi:    DefaultPhi,
	}
}

// WithBand overrides the target acceptance-ratio band.
func (a *StepSizeAdjuster) WithBand(rLo, rHi float64) *StepSizeAdjuster {
	a.rLo, a.rHi = rLo, rHi

	return a
}

// Strategy implements Controller: this adjuster acts during
// thermalisation only.
func (a *StepSizeAdjuster) Strategy() Strategy {
	return AdjustEveryIterationWhileThermalizing
}

// InitParams captures the original n_therm and step_size*n_sweep
// product used by the thermalisation guarantee and the sweep-size
// rescaling rule.
func (a *StepSizeAdjuster) InitParams(p Params, _ *rand.Rand) {
	a.origNTherm = p.NTherm()
	a.origStepTimesSweep = p.StepSize() * float64(p.NSweep())
}

// AdjustParams re-targets step_size when called on its period and the
// acceptance-ratio source has enough data.
func (a *StepSizeAdjuster) AdjustParams(p Params, isTherm, _ bool, iterK int64, _ *rand.Rand) {
	if !isTherm {
		return
	}

	period := a.period
	if period < 1 {
		period = 1
	}

	if iterK%period != 0 {
		return
	}

	if !a.source.Ready() {
		return
	}

	r := a.source.Mean()
	if r >= a.rLo && r <= a.rHi {
		return
	}

	factor := stepFactor(r, a.rLo, a.rHi)

	cur := p.StepSize()
	newStep := cur * factor

	if newStep < clampLow*cur {
		newStep = clampLow * cur
	}

	if newStep > clampHigh*cur {
		newStep = clampHigh * cur
	}

	p.SetStepSize(newStep)

	if newStep > 0 {
		p.SetNSweep(int64(a.origStepTimesSweep / newStep))
	}

	a.lastAdjustIterK = iterK
	a.haveAdjusted = true

	a.ensureEnoughThermalization(p, iterK)
}

// stepFactor implements the bucketed multiplicative rule.
func stepFactor(r, rLo, rHi float64) float64 {
	switch {
	case r >= 2*rHi:
		return factorFarAboveHigh
	case r >= 1.3*rHi:
		return factorWellAboveHigh
	case r >= rHi:
		return factorAboveHigh
	case r <= 0.5*rLo:
		return factorFarBelowLow
	case r <= 0.75*rLo:
		return factorWellBelowLow
	default:
		return factorBelowLow
	}
}

// ensureEnoughThermalization requires n_therm >= iter_k/n_sweep + 1 +
// phi*n_therm_original, growing n_therm when necessary.
func (a *StepSizeAdjuster) ensureEnoughThermalization(p Params, iterK int64) {
	nSweep := p.NSweep()
	if nSweep < 1 {
		nSweep = 1
	}

	minNTherm := iterK/nSweep + 1 + int64(a.phi*float64(a.origNTherm))

	if p.NTherm() < minNTherm {
		p.SetNTherm(minNTherm)
	}
}

// ThermalizingDone is a no-op; the adjustment-at-end-of-thermalisation
// strategy is not declared by this controller.
func (a *StepSizeAdjuster) ThermalizingDone(Params, *rand.Rand) {}

// AllowDoneThermalization always reports true. The guarantee that at
// least phi*n_therm_original sweeps run after the last adjustment is
// kept by ensureEnoughThermalization growing n_therm, which the
// driver's thermalisation loop bound already reflects.
func (a *StepSizeAdjuster) AllowDoneThermalization(p Params, _ *rand.Rand) bool {
	return true
}

// AllowDoneRuns never vetoes the live phase; this controller only acts
// during thermalisation.
func (a *StepSizeAdjuster) AllowDoneRuns(Params, *rand.Rand) bool { return true }
