package binning

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, Params{NumTracked: 1, NumLevels: 1}.Validate())
	assert.ErrorIs(t, Params{NumTracked: 0, NumLevels: 1}.Validate(), ErrInvalidParameters)
	assert.ErrorIs(t, Params{NumTracked: 1, NumLevels: 0}.Validate(), ErrInvalidParameters)
}

func TestSamplesSize(t *testing.T) {
	p := Params{NumTracked: 1, NumLevels: 4}
	assert.Equal(t, int64(16), p.SamplesSize())
}

func TestAddSampleDimensionMismatch(t *testing.T) {
	a, err := New(Params{NumTracked: 2, NumLevels: 3})
	require.NoError(t, err)

	err = a.AddSample([]float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

// An i.i.d. (uncorrelated) sample stream should converge: the binning
// error bar plateaus quickly since pairwise averaging of independent
// samples halves the variance of block averages in the standard way,
// keeping error_l roughly constant with l.
func TestIIDConverges(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	a, err := New(Params{NumTracked: 1, NumLevels: 10})
	require.NoError(t, err)

	for i := 0; i < 1<<14; i++ {
		require.NoError(t, a.AddSample([]float64{rng.NormFloat64()}))
	}

	assert.Equal(t, Converged, a.Verdict(0))
}

// A strongly autocorrelated stream (a slow random walk, so consecutive
// samples are nearly identical) should show a rising error_l sequence
// through most of the available levels, since coarser blocks keep
// exposing more of the true variance.
func TestCorrelatedNotConverged(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	a, err := New(Params{NumTracked: 1, NumLevels: 8})
	require.NoError(t, err)

	x := 0.0

	for i := 0; i < 1<<12; i++ {
		x += rng.NormFloat64() * 0.01
		require.NoError(t, a.AddSample([]float64{x}))
	}

	errs := a.LevelErrors(0)
	assert.Greater(t, errs[len(errs)-1], errs[1])
}

func TestLevelErrorsMeanSanity(t *testing.T) {
	a, err := New(Params{NumTracked: 1, NumLevels: 2})
	require.NoError(t, err)

	for _, v := range []float64{2, 4, 2, 4, 2, 4, 2, 4} {
		require.NoError(t, a.AddSample([]float64{v}))
	}

	assert.InDelta(t, 3, a.levels[0][0].mean(), 1e-9)
	assert.False(t, math.IsNaN(a.levels[0][2].mean()))
}

func TestClassifyTooFewLevelsUnknown(t *testing.T) {
	assert.Equal(t, UnknownConvergence, classify([]float64{0.1}, DefaultConvergenceTailLevels, DefaultConvergenceRelTol))
	assert.Equal(t, UnknownConvergence, classify(nil, DefaultConvergenceTailLevels, DefaultConvergenceRelTol))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "CONVERGED", Converged.String())
	assert.Equal(t, "NOT_CONVERGED", NotConverged.String())
	assert.Equal(t, "UNKNOWN_CONVERGENCE", UnknownConvergence.String())
}
