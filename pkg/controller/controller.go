// Package controller implements the Controller pipeline: composable
// adjusters of MHRW walk parameters invoked by the driver during
// thermalisation and the live phase, plus the built-in step-size and
// binning-convergence controllers spec.md names.
package controller

import "math/rand/v2"

// Strategy is a bitmask of the phases at which a controller may mutate
// MHRWParams, declared once per controller.
type Strategy int

const (
	// AdjustEveryIterationWhileThermalizing permits fine-grained
	// adjustment during thermalisation, gated by the controller's own
	// internal period.
	AdjustEveryIterationWhileThermalizing Strategy = 1 << iota
	// AdjustOnceAtEndOfThermalizing permits a single adjustment at the
	// thermalising_done transition.
	AdjustOnceAtEndOfThermalizing
	// AdjustWhileRunning permits adjustment during the live phase,
	// including extending it.
	AdjustWhileRunning
)

// Has reports whether s includes phase.
func (s Strategy) Has(phase Strategy) bool { return s&phase != 0 }

// Params is the accessor surface a Controller mutates. pkg/mhrw's
// concrete MHRWParams implements it; controllers never see the
// walker-specific payload directly.
type Params interface {
	StepSize() float64
	SetStepSize(float64)
	NSweep() int64
	SetNSweep(int64)
	NTherm() int64
	SetNTherm(int64)
	NRun() int64
	SetNRun(int64)
}

// Pipeline is the subset of Controller the MHRW driver actually calls.
// It omits Strategy() because only Multiple (and the individual
// built-ins it wraps) need to know which phases a controller is
// permitted to act in; the driver just drives whatever Pipeline it is
// handed, single controller or Multiple alike.
type Pipeline interface {
	// InitParams is called once before any iteration.
	InitParams(p Params, rng *rand.Rand)
	// AdjustParams is called at every iteration of the phases the
	// driver is in; Controller implementations gate on their own
	// Strategy()/internal period. iterK is the current Metropolis
	// iteration counter (not sweep count); isAfterSample is true only
	// during the live phase, on sweep boundaries.
	AdjustParams(p Params, isTherm, isAfterSample bool, iterK int64, rng *rand.Rand)
	// ThermalizingDone is called once, right after thermalisation ends.
	ThermalizingDone(p Params, rng *rand.Rand)
	// AllowDoneThermalization vetoes ending thermalisation while it
	// returns false.
	AllowDoneThermalization(p Params, rng *rand.Rand) bool
	// AllowDoneRuns vetoes ending the live phase while it returns
	// false.
	AllowDoneRuns(p Params, rng *rand.Rand) bool
}

// Controller is a Pipeline that also declares which phases it may act
// in; this is the contract individual built-ins implement and Multiple
// composes over.
type Controller interface {
	Pipeline

	Strategy() Strategy
}

// Multiple composes a fixed-order list of controllers: vetoes are
// AND-ed, adjustments are applied in order, exactly as spec.md §4.5
// describes.
type Multiple struct {
	controllers []Controller
}

// NewMultiple builds a Multiple from controllers, preserving order.
func NewMultiple(controllers ...Controller) *Multiple {
	return &Multiple{controllers: controllers}
}

func (m *Multiple) InitParams(p Params, rng *rand.Rand) {
	for _, c := range m.controllers {
		c.InitParams(p, rng)
	}
}

func (m *Multiple) AdjustParams(p Params, isTherm, isAfterSample bool, iterK int64, rng *rand.Rand) {
	for _, c := range m.controllers {
		strategy := c.Strategy()

		permitted := (isTherm && strategy.Has(AdjustEveryIterationWhileThermalizing)) ||
			(!isTherm && strategy.Has(AdjustWhileRunning))

		if permitted {
			c.AdjustParams(p, isTherm, isAfterSample, iterK, rng)
		}
	}
}

func (m *Multiple) ThermalizingDone(p Params, rng *rand.Rand) {
	for _, c := range m.controllers {
		c.ThermalizingDone(p, rng)

		if c.Strategy().Has(AdjustOnceAtEndOfThermalizing) {
			c.AdjustParams(p, true, false, 0, rng)
		}
	}
}

func (m *Multiple) AllowDoneThermalization(p Params, rng *rand.Rand) bool {
	allow := true

	for _, c := range m.controllers {
		if !c.AllowDoneThermalization(p, rng) {
			allow = false
		}
	}

	return allow
}

func (m *Multiple) AllowDoneRuns(p Params, rng *rand.Rand) bool {
	allow := true

	for _, c := range m.controllers {
		if !c.AllowDoneRuns(p, rng) {
			allow = false
		}
	}

	return allow
}
