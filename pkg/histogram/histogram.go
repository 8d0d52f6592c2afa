// Package histogram provides a uniform-bin histogram with optional error
// bars and order-insensitive aggregation across independent runs.
package histogram

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameters indicates a HistogramParams invariant was violated.
var ErrInvalidParameters = errors.New("invalid histogram parameters")

// ErrOutOfRange indicates a value could not be binned (non-finite or
// outside [min, max)). Recording such a value is not an error for the
// caller: Record routes it to OffChart and returns this sentinel so
// callers that care can observe it.
var ErrOutOfRange = errors.New("value out of histogram range")

// ErrFinalized is returned by AddHistogram when called after Finalize.
var ErrFinalized = errors.New("averaged histogram already finalized")

// ErrParamsMismatch is returned by Add/AddHistogram when the operand's
// params differ from the receiver's.
var ErrParamsMismatch = errors.New("histogram params mismatch")

// Params describes the bin layout of a Histogram: NumBins equal-width
// bins covering [Min, Max).
type Params struct {
	Min     float64
	Max     float64
	NumBins int
}

// Validate checks the Min < Max, NumBins >= 1 invariant.
func (p Params) Validate() error {
	if !(p.Min < p.Max) {
		return fmt.Errorf("%w: min (%v) must be < max (%v)", ErrInvalidParameters, p.Min, p.Max)
	}

	if p.NumBins < 1 {
		return fmt.Errorf("%w: num_bins (%d) must be >= 1", ErrInvalidParameters, p.NumBins)
	}

	return nil
}

// BinWidth returns (Max-Min)/NumBins.
func (p Params) BinWidth() float64 {
	return (p.Max - p.Min) / float64(p.NumBins)
}

// BinLowerValue returns the lower edge of bin k.
func (p Params) BinLowerValue(k int) float64 {
	return p.Min + float64(k)*p.BinWidth()
}

// BinUpperValue returns the upper edge of bin k.
func (p Params) BinUpperValue(k int) float64 {
	return p.Min + float64(k+1)*p.BinWidth()
}

// BinIndex returns the bin covering value, or ErrOutOfRange if value is
// non-finite or not in [Min, Max).
func (p Params) BinIndex(value float64) (int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return -1, ErrOutOfRange
	}

	if value < p.Min || value >= p.Max {
		return -1, ErrOutOfRange
	}

	k := int((value - p.Min) / p.BinWidth())

	// Guard against floating-point rounding pushing k to NumBins for
	// values just below Max.
	if k >= p.NumBins {
		k = p.NumBins - 1
	}

	return k, nil
}

// Histogram is a plain bin-count histogram: the "counts" entity of
// spec.md's data model.
type Histogram struct {
	Params   Params
	Bins     []float64
	OffChart float64
}

// New creates an empty Histogram for the given params.
func New(params Params) (*Histogram, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &Histogram{
		Params: params,
		Bins:   make([]float64, params.NumBins),
	}, nil
}

// Record adds one unit-weight observation of value. Non-finite or
// out-of-range values are routed to OffChart; Record still returns
// ErrOutOfRange in that case so callers that want to know can check it,
// but it is not a fatal condition.
func (h *Histogram) Record(value float64) (int, error) {
	return h.RecordWeighted(value, 1)
}

// RecordWeighted adds weight (>= 0) to the bin covering value.
func (h *Histogram) RecordWeighted(value, weight float64) (int, error) {
	k, err := h.Params.BinIndex(value)
	if err != nil {
		h.OffChart += weight

		return -1, err
	}

	h.Bins[k] += weight

	return k, nil
}

// Add accumulates other into h in place. Both histograms must share
// identical Params.
func (h *Histogram) Add(other *Histogram) error {
	if other.Params != h.Params {
		return ErrParamsMismatch
	}

	for k, v := range other.Bins {
		h.Bins[k] += v
	}

	h.OffChart += other.OffChart

	return nil
}

// Reset zeroes all bins and OffChart, keeping Params.
func (h *Histogram) Reset() {
	for k := range h.Bins {
		h.Bins[k] = 0
	}

	h.OffChart = 0
}

// Sum returns the sum of all bins plus OffChart, i.e. the total number
// of (possibly weighted) observations recorded.
func (h *Histogram) Sum() float64 {
	total := h.OffChart

	for _, v := range h.Bins {
		total += v
	}

	return total
}

// Normalize scales Bins and OffChart so Sum() == 1. It is a no-op (and
// returns false) when Sum() is zero.
func (h *Histogram) Normalize() bool {
	total := h.Sum()
	if total == 0 {
		return false
	}

	for k := range h.Bins {
		h.Bins[k] /= total
	}

	h.OffChart /= total

	return true
}

// WithErrorBars is a Histogram plus a per-bin error estimate, the
// "HistogramWithErrorBars" entity of spec.md's data model.
type WithErrorBars struct {
	Histogram
	Delta []float64
}

// NewWithErrorBars creates an empty WithErrorBars for the given params.
func NewWithErrorBars(params Params) (*WithErrorBars, error) {
	h, err := New(params)
	if err != nil {
		return nil, err
	}

	return &WithErrorBars{
		Histogram: *h,
		Delta:     make([]float64, params.NumBins),
	}, nil
}

// Averaged incrementally aggregates histograms sharing identical Params
// into an elementwise mean (and, for WithErrorBars inputs, a
// quadrature-combined error bar), the "AveragedHistogram" entity of
// spec.md's data model. AddHistogram must not be called after
// Finalize.
type Averaged struct {
	params Params

	// sumBins / sumSqBins accumulate per-bin sums for inputs without
	// their own error bars (finalize computes sample stddev of the mean).
	sumBins   []float64
	sumSqBins []float64

	// sumDeltaSq accumulates per-bin sum-of-squared-deltas for inputs
	// that carry their own error bars (finalize computes sqrt(sum)/n).
	sumDeltaSq []float64
	hasDeltas  bool

	sumOffChart   float64
	sumSqOffChart float64

	numHistograms int
	finalized     bool

	Bins     []float64
	Delta    []float64
	OffChart float64
}

// NewAveraged creates an empty Averaged accumulator for the given
// params.
func NewAveraged(params Params) (*Averaged, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &Averaged{
		params:     params,
		sumBins:    make([]float64, params.NumBins),
		sumSqBins:  make([]float64, params.NumBins),
		sumDeltaSq: make([]float64, params.NumBins),
	}, nil
}

// NumHistograms returns the number of histograms folded in so far.
func (a *Averaged) NumHistograms() int { return a.numHistograms }

// Params returns the bin layout this accumulator was built for.
func (a *Averaged) Params() Params { return a.params }

// AsHistogram returns a's Bins/OffChart wrapped as a plain Histogram,
// for callers (e.g. the pretty-printers) that operate on *Histogram
// rather than *Averaged directly. Valid only after Finalize.
func (a *Averaged) AsHistogram() *Histogram {
	return &Histogram{Params: a.params, Bins: a.Bins, OffChart: a.OffChart}
}

// AddHistogram folds h into the accumulator. h must share this
// Averaged's Params. Calling AddHistogram after Finalize is an error.
func (a *Averaged) AddHistogram(h *Histogram) error {
	if a.finalized {
		return ErrFinalized
	}

	if h.Params != a.params {
		return ErrParamsMismatch
	}

	for k, v := range h.Bins {
		a.sumBins[k] += v
		a.sumSqBins[k] += v * v
	}

	a.sumOffChart += h.OffChart
	a.sumSqOffChart += h.OffChart * h.OffChart
	a.numHistograms++

	return nil
}

// AddHistogramWithErrorBars folds h into the accumulator using the
// quadrature-combination rule for inputs that already carry error
// bars: delta[k] = sqrt(sum_i delta_i[k]^2) / n.
func (a *Averaged) AddHistogramWithErrorBars(h *WithErrorBars) error {
	if a.finalized {
		return ErrFinalized
	}

	if h.Params != a.params {
		return ErrParamsMismatch
	}

	a.hasDeltas = true

	for k, v := range h.Bins {
		a.sumBins[k] += v
		a.sumDeltaSq[k] += h.Delta[k] * h.Delta[k]
	}

	a.sumOffChart += h.OffChart
	a.numHistograms++

	return nil
}

// minHistogramsForSampleStdDev is the minimum n for which the (n-1)
// sample-variance denominator in Finalize is defined.
const minHistogramsForSampleStdDev = 2

// Finalize computes the final Bins/Delta/OffChart from everything fed
// via AddHistogram/AddHistogramWithErrorBars. It must be called exactly
// once.
func (a *Averaged) Finalize() error {
	if a.finalized {
		return ErrFinalized
	}

	a.finalized = true

	n := float64(a.numHistograms)

	a.Bins = make([]float64, a.params.NumBins)
	a.Delta = make([]float64, a.params.NumBins)

	if a.numHistograms == 0 {
		return nil
	}

	for k := range a.Bins {
		a.Bins[k] = a.sumBins[k] / n
	}

	a.OffChart = a.sumOffChart / n

	if a.hasDeltas {
		for k := range a.Delta {
			a.Delta[k] = math.Sqrt(a.sumDeltaSq[k]) / n
		}

		return nil
	}

	if a.numHistograms < minHistogramsForSampleStdDev {
		return nil
	}

	// delta[k] = sqrt((E[x^2]-E[x]^2)/(n-1)), per spec.md §3.
	for k := range a.Delta {
		ex := a.sumBins[k] / n
		ex2 := a.sumSqBins[k] / n
		v := ex2 - ex*ex

		if v < 0 {
			v = 0
		}

		a.Delta[k] = math.Sqrt(v / (n - 1))
	}

	return nil
}
