// Package walker defines the MHWalker interface that the MHRW driver
// drives: the proposal/evaluation contract a concrete random walk must
// satisfy, tagged at construction with one of three target-function
// conventions.
package walker

import "fmt"

// Convention identifies which of the three target-function interfaces
// a Walker implements. It is a construction-time tag rather than a
// compile-time one so that the driver can select the acceptance-ratio
// formula once per task without a type switch on every iteration.
type Convention int

const (
	// FnValue walkers report the (unnormalised) target value directly;
	// acceptance uses the ratio new_v / cur_v.
	FnValue Convention = iota
	// FnLogValue walkers report the log of the target value;
	// acceptance uses exp(new_logv - cur_logv). Preferred whenever the
	// target spans many orders of magnitude.
	FnLogValue
	// FnRelativeValue walkers compute the acceptance ratio themselves,
	// for targets where ratios are cheaper or more stable to evaluate
	// than absolute values.
	FnRelativeValue
)

// String renders the convention name.
func (c Convention) String() string {
	switch c {
	case FnValue:
		return "FnValue"
	case FnLogValue:
		return "FnLogValue"
	case FnRelativeValue:
		return "FnRelativeValue"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// Walker is the contract the MHRW driver drives. P is the walker's
// point type, Params its jump-proposal parameters (e.g. step size). A
// concrete walker also implements exactly one of ValueFunc,
// LogValueFunc or RelValueFunc, matching what Convention() reports;
// the driver type-asserts to the right one once per task rather than
// forcing every walker to implement all three.
type Walker[P any, Params any] interface {
	// Convention reports which target-function interface this walker
	// implements.
	Convention() Convention

	// Init is called once before any iteration.
	Init()
	// ThermalizingDone is called once thermalisation has ended.
	ThermalizingDone()
	// Done is called once the live phase has ended.
	Done()

	// Jump proposes a new point from cur given the current walk
	// parameters. It must not mutate cur.
	Jump(cur P, params Params) P
}

// ValueFunc is implemented by walkers tagged FnValue: FnValue returns
// the (unnormalised) target value at pt.
type ValueFunc[P any] interface {
	FnValue(pt P) float64
}

// LogValueFunc is implemented by walkers tagged FnLogValue: FnLogValue
// returns the log of the target value at pt.
type LogValueFunc[P any] interface {
	FnLogValue(pt P) float64
}

// RelValueFunc is implemented by walkers tagged FnRelativeValue:
// FnRelValue returns the acceptance ratio new/cur directly, without an
// intermediate absolute or log value.
type RelValueFunc[P any] interface {
	FnRelValue(newPt, curPt P) float64
}
