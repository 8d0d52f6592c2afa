package histogram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTableContainsBinsAndOffChart(t *testing.T) {
	h, err := New(Params{Min: 0, Max: 4, NumBins: 4})
	require.NoError(t, err)

	_, _ = h.Record(0.5)
	_, _ = h.Record(0.5)
	_, _ = h.Record(3.5)
	_, _ = h.Record(10) // off-chart

	out := FormatTable(h, nil)
	assert.True(t, strings.Contains(out, "off-chart"))
	assert.True(t, strings.Contains(out, "bin"))
}

func TestFormatTableWithDeltaColumn(t *testing.T) {
	h, err := New(Params{Min: 0, Max: 2, NumBins: 2})
	require.NoError(t, err)

	_, _ = h.Record(0.5)

	out := FormatTable(h, []float64{0.1, 0.2})
	assert.True(t, strings.Contains(out, "±"))
}

func TestFormatHistogramHTMLRendersPage(t *testing.T) {
	h, err := New(Params{Min: 0, Max: 2, NumBins: 2})
	require.NoError(t, err)

	_, _ = h.Record(0.5)

	page := FormatHistogramHTML(h, nil, "test")
	assert.NotNil(t, page)
}
