package mhrw

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sampleforge/mhrw/pkg/collector"
	"github.com/sampleforge/mhrw/pkg/controller"
	"github.com/sampleforge/mhrw/pkg/walker"
)

// ErrInvalidParameters mirrors the InvalidParameters error kind of
// spec.md §7: an MHRWParams invariant was violated.
var ErrInvalidParameters = errors.New("invalid mhrw parameters")

// ErrInvalidState mirrors the InternalInvariant error kind: the walker
// produced a non-finite target value, which a correct walker never
// does.
var ErrInvalidState = errors.New("invalid mhrw state")

// ErrInterrupted mirrors the TaskInterrupted error kind of spec.md §7:
// the driver observed Interrupt() return true and terminated early and
// cleanly, discarding the in-progress phase's partial work.
var ErrInterrupted = errors.New("mhrw task interrupted")

// RunResult packages the outcome of one driver run: the final
// MHRWParams actually used (after any controller adjustment) and the
// live-phase acceptance ratio.
type RunResult[WP StepSizer[WP]] struct {
	FinalParams     *Params[WP]
	AcceptanceRatio float64
}

// Driver owns the current point and target value for one walk and
// drives it through Init -> Thermalising -> ThermalisingDone ->
// LiveSampling -> Finalised, invoking Collector and Controller at the
// phases spec.md §4.7 specifies.
type Driver[P any, WP StepSizer[WP]] struct {
	Walker     walker.Walker[P, WP]
	Collector  collector.Collector[P]
	Controller controller.Pipeline
	RNG        *rand.Rand
	Params     *Params[WP]

	// Interrupt, when non-nil, is polled at least once per raw_move
	// (spec.md §5); a true result aborts the run with ErrInterrupted.
	// It must be wait-free and cheap, e.g. an atomic flag check.
	Interrupt func() bool

	curPt  P
	curVal float64
}

// Run executes the full thermalisation + live-phase loop starting from
// startPt, returning the final params and acceptance ratio.
func (d *Driver[P, WP]) Run(startPt P) (RunResult[WP], error) {
	if err := d.Params.Validate(); err != nil {
		return RunResult[WP]{}, err
	}

	// Phase 1: pre-loop.
	d.Walker.Init()
	d.Controller.InitParams(d.Params, d.RNG)
	d.Collector.Init()

	d.curPt = startPt

	v, err := d.evaluate(startPt)
	if err != nil {
		return RunResult[WP]{}, err
	}

	d.curVal = v

	// Phase 2: thermalisation. The loop bound is re-read every
	// iteration because StepSizeAdjuster may grow n_therm (and change
	// n_sweep) mid-pass; this lets a single pass absorb its own
	// extension instead of relying solely on the post-loop veto.
	var iterK int64

	for {
		bound := d.Params.NTherm() * d.Params.NSweep()
		if iterK >= bound {
			break
		}

		if d.interrupted() {
			return RunResult[WP]{}, ErrInterrupted
		}

		d.step(iterK, true, false)

		d.Controller.AdjustParams(d.Params, true, false, iterK, d.RNG)

		iterK++
	}

	for !d.Controller.AllowDoneThermalization(d.Params, d.RNG) {
		d.Params.SetNTherm(d.Params.NTherm() + 1)

		bound := d.Params.NTherm() * d.Params.NSweep()

		for iterK < bound {
			if d.interrupted() {
				return RunResult[WP]{}, ErrInterrupted
			}

			d.step(iterK, true, false)
			d.Controller.AdjustParams(d.Params, true, false, iterK, d.RNG)
			iterK++
		}
	}

	d.Walker.ThermalizingDone()
	d.Collector.ThermalizingDone()
	d.Controller.ThermalizingDone(d.Params, d.RNG)

	// Phase 3: live phase.
	var acceptedLive, liveIters int64

	var runIterK int64

	for {
		bound := d.Params.NRun() * d.Params.NSweep()
		if runIterK >= bound {
			break
		}

		if d.interrupted() {
			return RunResult[WP]{}, ErrInterrupted
		}

		accepted := d.step(runIterK, false, (runIterK+1)%d.Params.NSweep() == 0)
		liveIters++

		if accepted {
			acceptedLive++
		}

		isLiveIter := (runIterK+1)%d.Params.NSweep() == 0
		if isLiveIter {
			d.Collector.ProcessSample(collector.Sample[P]{
				K:      runIterK,
				N:      runIterK / d.Params.NSweep(),
				CurPt:  d.curPt,
				CurVal: d.curVal,
				RNG:    d.RNG,
			})
		}

		d.Controller.AdjustParams(d.Params, false, isLiveIter, runIterK, d.RNG)

		runIterK++
	}

	for !d.Controller.AllowDoneRuns(d.Params, d.RNG) {
		d.Params.SetNRun(d.Params.NRun() + 1)

		bound := d.Params.NRun() * d.Params.NSweep()

		for runIterK < bound {
			if d.interrupted() {
				return RunResult[WP]{}, ErrInterrupted
			}

			accepted := d.step(runIterK, false, (runIterK+1)%d.Params.NSweep() == 0)
			liveIters++

			if accepted {
				acceptedLive++
			}

			isLiveIter := (runIterK+1)%d.Params.NSweep() == 0
			if isLiveIter {
				d.Collector.ProcessSample(collector.Sample[P]{
					K:      runIterK,
					N:      runIterK / d.Params.NSweep(),
					CurPt:  d.curPt,
					CurVal: d.curVal,
					RNG:    d.RNG,
				})
			}

			d.Controller.AdjustParams(d.Params, false, isLiveIter, runIterK, d.RNG)

			runIterK++
		}
	}

	d.Walker.Done()
	d.Collector.Done()

	ratio := math.NaN()
	if liveIters > 0 {
		ratio = float64(acceptedLive) / float64(liveIters)
	}

	return RunResult[WP]{FinalParams: d.Params, AcceptanceRatio: ratio}, nil
}

// interrupted polls d.Interrupt, if set.
func (d *Driver[P, WP]) interrupted() bool {
	return d.Interrupt != nil && d.Interrupt()
}

// step performs one Metropolis iteration: propose, accept/reject,
// notify every collector's RawMove. It returns whether the move was
// accepted.
func (d *Driver[P, WP]) step(iterK int64, isTherm, isLive bool) bool {
	beforePt, beforeVal := d.curPt, d.curVal

	candidate := d.Walker.Jump(d.curPt, d.Params.Walker)

	alpha, newVal := d.acceptanceProbability(candidate, beforeVal)

	u := d.RNG.Float64()
	accepted := u < alpha

	if accepted {
		d.curPt = candidate
		d.curVal = newVal
	}

	d.Collector.RawMove(collector.RawMove[P]{
		K:        iterK,
		IsTherm:  isTherm,
		IsLive:   isLive,
		Accepted: accepted,
		Alpha:    alpha,
		NewPt:    candidate,
		NewVal:   newVal,
		CurPt:    beforePt,
		CurVal:   beforeVal,
		RNG:      d.RNG,
	})

	return accepted
}

// acceptanceProbability evaluates the candidate under the walker's
// declared convention and returns (alpha, newVal).
func (d *Driver[P, WP]) acceptanceProbability(candidate P, curVal float64) (float64, float64) {
	switch d.Walker.Convention() {
	case walker.FnLogValue:
		lv, ok := d.Walker.(walker.LogValueFunc[P])
		if !ok {
			panic("mhrw: walker declares FnLogValue but does not implement LogValueFunc")
		}

		newLogV := lv.FnLogValue(candidate)

		return math.Min(1, math.Exp(newLogV-curVal)), newLogV

	case walker.FnRelativeValue:
		rv, ok := d.Walker.(walker.RelValueFunc[P])
		if !ok {
			panic("mhrw: walker declares FnRelativeValue but does not implement RelValueFunc")
		}

		return math.Min(1, rv.FnRelValue(candidate, d.curPt)), 0

	default:
		vv, ok := d.Walker.(walker.ValueFunc[P])
		if !ok {
			panic("mhrw: walker declares FnValue but does not implement ValueFunc")
		}

		newV := vv.FnValue(candidate)

		if curVal == 0 {
			if newV > 0 {
				return 1, newV
			}

			return 0, newV
		}

		return math.Min(1, newV/curVal), newV
	}
}

// evaluate computes the initial target value at pt per the walker's
// convention, failing with ErrInvalidState on a non-finite result.
func (d *Driver[P, WP]) evaluate(pt P) (float64, error) {
	var v float64

	switch d.Walker.Convention() {
	case walker.FnLogValue:
		lv, ok := d.Walker.(walker.LogValueFunc[P])
		if !ok {
			return 0, fmt.Errorf("%w: walker declares FnLogValue but does not implement LogValueFunc", ErrInvalidState)
		}

		v = lv.FnLogValue(pt)
	case walker.FnRelativeValue:
		// FnRelativeValue walkers never evaluate an absolute starting
		// value; 0 is a neutral placeholder never read as a ratio
		// numerator/denominator.
		v = 0
	default:
		vv, ok := d.Walker.(walker.ValueFunc[P])
		if !ok {
			return 0, fmt.Errorf("%w: walker declares FnValue but does not implement ValueFunc", ErrInvalidState)
		}

		v = vv.FnValue(pt)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite initial target value", ErrInvalidState)
	}

	return v, nil
}
