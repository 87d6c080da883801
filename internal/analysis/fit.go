package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/avalanche/internal/engine"
)

// Defaults for FitOptions.
const (
	DefaultBins     = 50
	DefaultD2Cutoff = 0.3
)

// FitOptions controls exponent estimation. Zero fields take defaults.
type FitOptions struct {
	Column      string
	Bins        int
	SmoothWidth int
	D2Cutoff    float64
	// Cutoffs selects the non-empty bins [Cutoffs[0], Cutoffs[1]) directly
	// and skips scaling-region detection.
	Cutoffs *[2]int
}

// DefaultFitOptions fits avalanche sizes with the default binning and smoothing.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Column:      ColumnAvalancheSize,
		Bins:        DefaultBins,
		SmoothWidth: DefaultSmoothWidth,
		D2Cutoff:    DefaultD2Cutoff,
	}
}

func (o FitOptions) withDefaults() FitOptions {
	d := DefaultFitOptions()
	if o.Column == "" {
		o.Column = d.Column
	}
	if o.Bins <= 0 {
		o.Bins = d.Bins
	}
	if o.SmoothWidth <= 0 {
		o.SmoothWidth = d.SmoothWidth
	}
	if o.D2Cutoff <= 0 {
		o.D2Cutoff = d.D2Cutoff
	}
	return o
}

// Fit is a straight-line fit in log10-log10 space over the scaling region.
type Fit struct {
	// Exponent is the slope of log10(density) against log10(size); it is
	// negative for a decaying power law.
	Exponent  float64
	Intercept float64
	RSquared  float64

	// Start and End bound the fitted range within the non-empty bins.
	Start, End int
	X, Y       []float64 // fitted bin centres and densities
	AllX, AllY []float64 // every non-empty bin

	Histogram Histogram
}

// Predict evaluates the fitted power law at x.
func (f Fit) Predict(x float64) float64 {
	return math.Pow(10, f.Intercept) * math.Pow(x, f.Exponent)
}

// FitExponent fits the column named in opts.
func FitExponent(recs []engine.Observables, opts FitOptions) (Fit, error) {
	opts = opts.withDefaults()
	values, err := Column(recs, opts.Column)
	if err != nil {
		return Fit{}, err
	}
	return FitValues(values, opts)
}

// FitValues fits raw positive samples.
func FitValues(values []float64, opts FitOptions) (Fit, error) {
	opts = opts.withDefaults()
	if opts.SmoothWidth >= opts.Bins {
		return Fit{}, fmt.Errorf("smooth width %d must be smaller than bin count %d", opts.SmoothWidth, opts.Bins)
	}

	h, err := NewHistogram(values, opts.Bins)
	if err != nil {
		return Fit{}, err
	}
	x, y := h.NonEmpty()
	f := Fit{Histogram: h, AllX: x, AllY: y}

	if opts.Cutoffs != nil {
		f.Start, f.End = opts.Cutoffs[0], opts.Cutoffs[1]
		if f.Start < 0 || f.End > len(x) || f.Start >= f.End {
			return f, fmt.Errorf("cutoffs [%d, %d) outside the %d non-empty bins", f.Start, f.End, len(x))
		}
	} else {
		logY := make([]float64, len(y))
		for i, v := range y {
			logY[i] = math.Log10(v)
		}
		d2 := SecondDerivative(logY, opts.SmoothWidth)
		flat := make([]bool, len(logY))
		for i := range flat {
			flat[i] = math.Abs(d2[i]) <= opts.D2Cutoff
		}
		f.Start, f.End = LargestTrueBlock(flat)
	}
	if f.End-f.Start < 2 {
		return f, fmt.Errorf("scaling region [%d, %d) has fewer than two bins: %w", f.Start, f.End, ErrNoData)
	}

	f.X, f.Y = x[f.Start:f.End], y[f.Start:f.End]
	lx := make([]float64, len(f.X))
	ly := make([]float64, len(f.Y))
	for i := range f.X {
		lx[i] = math.Log10(f.X[i])
		ly[i] = math.Log10(f.Y[i])
	}
	f.Intercept, f.Exponent = stat.LinearRegression(lx, ly, nil, false)
	f.RSquared = stat.RSquared(lx, ly, nil, f.Intercept, f.Exponent)
	return f, nil
}
