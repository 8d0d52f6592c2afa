package controller

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeParams struct {
	stepSize           float64
	nSweep, nTherm, nRun int64
}

func (p *fakeParams) StepSize() float64    { return p.stepSize }
func (p *fakeParams) SetStepSize(v float64) { p.stepSize = v }
func (p *fakeParams) NSweep() int64        { return p.nSweep }
func (p *fakeParams) SetNSweep(v int64)    { p.nSweep = v }
func (p *fakeParams) NTherm() int64        { return p.nTherm }
func (p *fakeParams) SetNTherm(v int64)    { p.nTherm = v }
func (p *fakeParams) NRun() int64          { return p.nRun }
func (p *fakeParams) SetNRun(v int64)      { p.nRun = v }

type fakeRatioSource struct {
	ready bool
	mean  float64
}

func (f fakeRatioSource) Ready() bool  { return f.ready }
func (f fakeRatioSource) Mean() float64 { return f.mean }

func TestStepSizeAdjusterDecreasesBelowBand(t *testing.T) {
	p := &fakeParams{stepSize: 1.0, nSweep: 10, nTherm: 100, nRun: 0}
	src := fakeRatioSource{ready: true, mean: 0.05}

	a := NewStepSizeAdjuster(src, 1)
	a.InitParams(p, nil)
	a.AdjustParams(p, true, false, 0, nil)

	assert.Less(t, p.StepSize(), 1.0)
}

func TestStepSizeAdjusterIncreasesAboveBand(t *testing.T) {
	p := &fakeParams{stepSize: 1.0, nSweep: 10, nTherm: 100, nRun: 0}
	src := fakeRatioSource{ready: true, mean: 0.9}

	a := NewStepSizeAdjuster(src, 1)
	a.InitParams(p, nil)
	a.AdjustParams(p, true, false, 0, nil)

	assert.Greater(t, p.StepSize(), 1.0)
}

func TestStepSizeAdjusterWithinBandUnchanged(t *testing.T) {
	p := &fakeParams{stepSize: 1.0, nSweep: 10, nTherm: 100, nRun: 0}
	src := fakeRatioSource{ready: true, mean: 0.3}

	a := NewStepSizeAdjuster(src, 1)
	a.InitParams(p, nil)
	a.AdjustParams(p, true, false, 0, nil)

	assert.Equal(t, 1.0, p.StepSize())
}

func TestStepSizeAdjusterNotReadyNoop(t *testing.T) {
	p := &fakeParams{stepSize: 1.0, nSweep: 10, nTherm: 100, nRun: 0}
	src := fakeRatioSource{ready: false, mean: 0.01}

	a := NewStepSizeAdjuster(src, 1)
	a.InitParams(p, nil)
	a.AdjustParams(p, true, false, 0, nil)

	assert.Equal(t, 1.0, p.StepSize())
}

func TestStepSizeAdjusterGrowsNTherm(t *testing.T) {
	p := &fakeParams{stepSize: 1.0, nSweep: 10, nTherm: 4, nRun: 0}
	src := fakeRatioSource{ready: true, mean: 0.05}

	a := NewStepSizeAdjuster(src, 1)
	a.InitParams(p, nil)
	a.AdjustParams(p, true, false, 30, nil)

	// Factor 0.5 is clamped to 0.7, so the new n_sweep is int(10/0.7) = 14.
	// n_therm_min = iter_k/n_sweep + 1 + phi*orig_n_therm = 2 + 1 + 2 = 5
	assert.GreaterOrEqual(t, p.NTherm(), int64(5))
}

func TestStepSizeAdjusterClampedFactor(t *testing.T) {
	p := &fakeParams{stepSize: 1.0, nSweep: 10, nTherm: 100, nRun: 0}
	src := fakeRatioSource{ready: true, mean: 0.99} // -> factor 1.5, clamp to 1.5

	a := NewStepSizeAdjuster(src, 1)
	a.InitParams(p, nil)
	a.AdjustParams(p, true, false, 0, nil)

	assert.InDelta(t, 1.5, p.StepSize(), 1e-9)
}

func TestBinsConvergedControllerVetoesOnNotConverged(t *testing.T) {
	c := NewBinsConvergedController(ConvergenceSourceFunc(func() (int, int, int) {
		return 0, 3, 0
	}))

	assert.False(t, c.AllowDoneRuns(nil, nil))
}

func TestBinsConvergedControllerAllowsAllConverged(t *testing.T) {
	c := NewBinsConvergedController(ConvergenceSourceFunc(func() (int, int, int) {
		return 0, 0, 0
	}))

	assert.True(t, c.AllowDoneRuns(nil, nil))
}

func TestMultipleAndsVetoes(t *testing.T) {
	alwaysTrue := &fakeController{allowTherm: true, allowRuns: true}
	vetoRuns := &fakeController{allowTherm: true, allowRuns: false}

	m := NewMultiple(alwaysTrue, vetoRuns)

	assert.True(t, m.AllowDoneThermalization(nil, nil))
	assert.False(t, m.AllowDoneRuns(nil, nil))
}

type fakeController struct {
	allowTherm, allowRuns bool
}

func (f *fakeController) Strategy() Strategy                                          { return 0 }
func (f *fakeController) InitParams(Params, *rand.Rand)                                {}
func (f *fakeController) AdjustParams(Params, bool, bool, int64, *rand.Rand)           {}
func (f *fakeController) ThermalizingDone(Params, *rand.Rand)                          {}
func (f *fakeController) AllowDoneThermalization(Params, *rand.Rand) bool              { return f.allowTherm }
func (f *fakeController) AllowDoneRuns(Params, *rand.Rand) bool                        { return f.allowRuns }
