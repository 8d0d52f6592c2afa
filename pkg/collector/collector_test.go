package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sampleforge/mhrw/pkg/binning"
	"github.com/sampleforge/mhrw/pkg/histogram"
	"github.com/sampleforge/mhrw/pkg/status"
	"github.com/sampleforge/mhrw/pkg/valuecalc"
)

func identity() valuecalc.Calculator[float64] {
	return valuecalc.Func[float64](func(pt float64) float64 { return pt })
}

func TestValueHistogramCollector(t *testing.T) {
	c, err := NewValueHistogramCollector(histogram.Params{Min: 0, Max: 10, NumBins: 10}, identity())
	require.NoError(t, err)

	c.Init()

	for _, v := range []float64{1.5, 2.5, 2.5} {
		c.ProcessSample(Sample[float64]{CurPt: v})
	}

	c.Done()

	h := c.Result()
	assert.Equal(t, 1.0/3, h.Bins[1])
	assert.Equal(t, 2.0/3, h.Bins[2])
}

func TestMultipleForwardsInOrder(t *testing.T) {
	var order []string

	rec := func(name string) Collector[float64] {
		return &recordingCollector{name: name, order: &order}
	}

	m := NewMultiple[float64](rec("a"), rec("b"))
	m.Init()
	m.ThermalizingDone()
	m.RawMove(RawMove[float64]{})
	m.ProcessSample(Sample[float64]{})
	m.Done()

	assert.Equal(t, []string{
		"a:Init", "b:Init",
		"a:ThermalizingDone", "b:ThermalizingDone",
		"a:RawMove", "b:RawMove",
		"a:ProcessSample", "b:ProcessSample",
		"a:Done", "b:Done",
	}, order)
}

type recordingCollector struct {
	name  string
	order *[]string
}

func (r *recordingCollector) Init()             { *r.order = append(*r.order, r.name+":Init") }
func (r *recordingCollector) ThermalizingDone()  { *r.order = append(*r.order, r.name+":ThermalizingDone") }
func (r *recordingCollector) Done()              { *r.order = append(*r.order, r.name+":Done") }
func (r *recordingCollector) RawMove(RawMove[float64]) {
	*r.order = append(*r.order, r.name+":RawMove")
}
func (r *recordingCollector) ProcessSample(Sample[float64]) {
	*r.order = append(*r.order, r.name+":ProcessSample")
}

func TestMovingAverageAcceptanceRatioCollector(t *testing.T) {
	c := NewMovingAverageAcceptanceRatioCollector[float64](4)

	assert.False(t, c.Ready())

	for _, acc := range []bool{true, true, false, false} {
		c.RawMove(RawMove[float64]{Accepted: acc})
	}

	assert.True(t, c.Ready())
	assert.InDelta(t, 0.5, c.Mean(), 1e-9)

	// buffer wraps: pushing one more "true" evicts the oldest "true".
	c.RawMove(RawMove[float64]{Accepted: true})
	assert.InDelta(t, 0.75, c.Mean(), 1e-9)
}

func TestStatusReportEmitterFiresOnPredicate(t *testing.T) {
	fire := false
	var got status.TaskStatus

	e := NewStatusReportEmitter[float64](
		func() bool { return fire },
		func(m RawMove[float64]) status.TaskStatus {
			return status.TaskStatus{TaskIndex: 7, Phase: status.PhaseLiveSampling}
		},
		func(s status.TaskStatus) { got = s },
	)

	e.RawMove(RawMove[float64]{})
	assert.Equal(t, status.TaskStatus{}, got)

	fire = true
	e.RawMove(RawMove[float64]{})
	assert.Equal(t, 7, got.TaskIndex)
}

func TestValueHistogramWithBinningCollectorConvergence(t *testing.T) {
	c, err := NewValueHistogramWithBinningCollector[float64](
		histogram.Params{Min: 0, Max: 4, NumBins: 4},
		binning.Params{NumTracked: 4, NumLevels: 12},
		identity(),
	)
	require.NoError(t, err)

	c.Init()

	for i := 0; i < 1<<13; i++ {
		c.ProcessSample(Sample[float64]{CurPt: float64(i % 4)})
	}

	c.Done()

	res := c.Result()
	require.NotNil(t, res)
	assert.Len(t, res.Verdicts, 4)
	assert.InDelta(t, 1.0, res.Histogram.Sum(), 1e-9)
}
