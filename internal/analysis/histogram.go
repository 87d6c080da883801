package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoData is returned when there is nothing positive to bin or too few
// points to fit.
var ErrNoData = errors.New("not enough data")

// Histogram is a log-binned histogram of positive values.
type Histogram struct {
	Edges   []float64 // len(Counts)+1, log-spaced
	Counts  []float64
	Density []float64 // Counts normalised by total count and bin width
	Dropped int       // values <= 0, which have no place on a log axis
}

// NewHistogram bins the positive entries of values into bins log-spaced
// bins spanning [min, max].
func NewHistogram(values []float64, bins int) (Histogram, error) {
	if bins < 1 {
		return Histogram{}, fmt.Errorf("histogram needs at least one bin, got %d", bins)
	}
	pos := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	h := Histogram{Dropped: len(values) - len(pos)}
	if len(pos) == 0 {
		return h, fmt.Errorf("histogram of %d values: %w", len(values), ErrNoData)
	}
	sort.Float64s(pos)

	lo, hi := pos[0], pos[len(pos)-1]
	if lo == hi {
		hi = lo * 10
	}
	h.Edges = floats.LogSpan(make([]float64, bins+1), lo, hi)
	h.Edges[0] = lo
	// stat.Histogram treats the last divider as exclusive.
	h.Edges[bins] = math.Nextafter(hi, math.Inf(1))
	h.Counts = stat.Histogram(nil, h.Edges, pos, nil)

	total := float64(len(pos))
	h.Density = make([]float64, bins)
	for i, c := range h.Counts {
		h.Density[i] = c / (total * (h.Edges[i+1] - h.Edges[i]))
	}
	return h, nil
}

// Centers returns the arithmetic midpoint of each bin.
func (h Histogram) Centers() []float64 {
	out := make([]float64, len(h.Counts))
	for i := range out {
		out[i] = (h.Edges[i] + h.Edges[i+1]) / 2
	}
	return out
}

// NonEmpty returns the centres and densities of bins with a positive count.
func (h Histogram) NonEmpty() (x, y []float64) {
	centers := h.Centers()
	for i, c := range h.Counts {
		if c > 0 {
			x = append(x, centers[i])
			y = append(y, h.Density[i])
		}
	}
	return x, y
}
