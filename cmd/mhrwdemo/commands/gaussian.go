package commands

import (
	"math/rand/v2"

	"github.com/sampleforge/mhrw/pkg/walker"
)

// gaussianWalkerParams is the MHWalkerParams of the demo walk: a
// single scalar step size, which is all pkg/controller.StepSizeAdjuster
// needs to tune via the mhrw.StepSizer accessor.
type gaussianWalkerParams struct {
	Step float64
}

func (p *gaussianWalkerParams) StepSize() float64     { return p.Step }
func (p *gaussianWalkerParams) SetStepSize(v float64) { p.Step = v }

// Clone returns an independent copy so each task mutates its own step
// size instead of racing on CData's shared template.
func (p *gaussianWalkerParams) Clone() *gaussianWalkerParams {
	c := *p

	return &c
}

// gaussianWalker is the toy MHWalker of SPEC_FULL.md §10: it proposes
// x' = x + step_size*N(0,1) and reports the log-density of a standard
// normal, -x^2/2, so the engine exercises the FnLogValue acceptance
// convention end to end.
type gaussianWalker struct {
	rng *rand.Rand
}

func newGaussianWalker(rng *rand.Rand) *gaussianWalker {
	return &gaussianWalker{rng: rng}
}

func (w *gaussianWalker) Convention() walker.Convention { return walker.FnLogValue }
func (w *gaussianWalker) Init()                         {}
func (w *gaussianWalker) ThermalizingDone()              {}
func (w *gaussianWalker) Done()                          {}

func (w *gaussianWalker) Jump(cur float64, p *gaussianWalkerParams) float64 {
	return cur + p.Step*w.rng.NormFloat64()
}

func (w *gaussianWalker) FnLogValue(pt float64) float64 {
	return -pt * pt / 2
}
