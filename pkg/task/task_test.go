package task

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sampleforge/mhrw/pkg/collector"
	"github.com/sampleforge/mhrw/pkg/controller"
	"github.com/sampleforge/mhrw/pkg/histogram"
	"github.com/sampleforge/mhrw/pkg/mhrw"
	"github.com/sampleforge/mhrw/pkg/status"
	"github.com/sampleforge/mhrw/pkg/valuecalc"
	"github.com/sampleforge/mhrw/pkg/walker"
)

type walkerParams struct{ Step float64 }

func (p *walkerParams) StepSize() float64     { return p.Step }
func (p *walkerParams) SetStepSize(v float64) { p.Step = v }
func (p *walkerParams) Clone() *walkerParams {
	c := *p

	return &c
}

type gaussWalker struct{ rng *rand.Rand }

func (gaussWalker) Convention() walker.Convention { return walker.FnLogValue }
func (gaussWalker) Init()                         {}
func (gaussWalker) ThermalizingDone()              {}
func (gaussWalker) Done()                          {}

func (w gaussWalker) Jump(cur float64, p *walkerParams) float64 {
	return cur + p.Step*w.rng.NormFloat64()
}

func (gaussWalker) FnLogValue(pt float64) float64 { return -pt * pt / 2 }

func newCData(baseSeed uint64) *CData[float64, *walkerParams] {
	return &CData[float64, *walkerParams]{
		BaseSeed: baseSeed,
		Params: &mhrw.Params[*walkerParams]{
			Walker:  &walkerParams{Step: 1},
			NSweepV: 4,
			NThermV: 20,
			NRunV:   50,
		},
		NewWalker: func(rng *rand.Rand) walker.Walker[float64, *walkerParams] {
			return gaussWalker{rng: rng}
		},
		NewCollector: func(rng *rand.Rand) collector.Collector[float64] {
			calc := valuecalc.Func[float64](func(pt float64) float64 { return pt })
			c, err := collector.NewValueHistogramCollector(histogram.Params{Min: -5, Max: 5, NumBins: 20}, calc)
			if err != nil {
				panic(err)
			}

			return c
		},
		NewController: func(rng *rand.Rand) controller.Pipeline {
			return controller.NewMultiple()
		},
		StartPoint: func(rng *rand.Rand) float64 { return 0 },
	}
}

func noHooks() Hooks {
	return Hooks{
		StatusReportRequested: func() bool { return false },
		Interrupted:           func() bool { return false },
		SubmitStatus:          func(status.TaskStatus) {},
	}
}

func TestTaskRunProducesHistogram(t *testing.T) {
	tk := New(0, newCData(42), noHooks())

	res := tk.Run()
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Index)
	assert.InDelta(t, 1.0, res.Histogram.Sum(), 1e-9)
}

func TestTaskDeterministicSeeding(t *testing.T) {
	cdata := newCData(100)

	res1 := New(3, cdata, noHooks()).Run()
	res2 := New(3, cdata, noHooks()).Run()

	require.NoError(t, res1.Err)
	require.NoError(t, res2.Err)
	assert.Equal(t, res1.Histogram.Bins, res2.Histogram.Bins)
}

func TestTaskDifferentIndexDifferentSeed(t *testing.T) {
	cdata := newCData(100)

	res1 := New(0, cdata, noHooks()).Run()
	res2 := New(1, cdata, noHooks()).Run()

	require.NoError(t, res1.Err)
	require.NoError(t, res2.Err)
	assert.NotEqual(t, res1.Histogram.Bins, res2.Histogram.Bins)
}

func TestTaskInterruption(t *testing.T) {
	hooks := Hooks{
		StatusReportRequested: func() bool { return false },
		Interrupted:           func() bool { return true },
		SubmitStatus:          func(status.TaskStatus) {},
	}

	res := New(0, newCData(1), hooks).Run()
	assert.ErrorIs(t, res.Err, mhrw.ErrInterrupted)
}

func TestTaskStatusReportFires(t *testing.T) {
	var got status.TaskStatus

	hooks := Hooks{
		StatusReportRequested: func() bool { return true },
		Interrupted:           func() bool { return false },
		SubmitStatus:          func(s status.TaskStatus) { got = s },
	}

	res := New(2, newCData(1), hooks).Run()
	require.NoError(t, res.Err)
	assert.Equal(t, 2, got.TaskIndex)
}
