package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultSmoothWidth is the default length of the smoothing kernel.
const DefaultSmoothWidth = 20

// secondDerivKernel samples the scaled second derivative of a Gaussian,
// (4x²−2)·exp(−x²)·8/width, on width points spanning [−3, 3].
func secondDerivKernel(width int) []float64 {
	x := []float64{-3}
	if width > 1 {
		x = floats.Span(make([]float64, width), -3, 3)
	}
	k := make([]float64, width)
	for i, v := range x {
		k[i] = (4*v*v - 2) * math.Exp(-v*v) / float64(width) * 8
	}
	return k
}

// SecondDerivative estimates the curvature of y by convolving it with a
// smoothing second-derivative filter of the given width. The result has
// length max(len(y), width) and is centred on the input.
func SecondDerivative(y []float64, width int) []float64 {
	if width < 1 {
		width = DefaultSmoothWidth
	}
	return convolveSame(y, secondDerivKernel(width))
}

// convolveSame returns the central max(len(a), len(v)) samples of the
// full discrete convolution of a and v.
func convolveSame(a, v []float64) []float64 {
	if len(a) == 0 || len(v) == 0 {
		return nil
	}
	n, m := len(a), len(v)
	full := make([]float64, n+m-1)
	for i, ai := range a {
		for j, vj := range v {
			full[i+j] += ai * vj
		}
	}
	outLen := max(n, m)
	off := (min(n, m) - 1) / 2
	return full[off : off+outLen]
}

// LargestTrueBlock returns the half-open range [start, end) of the longest
// run of true values. The first run wins ties. Both are -1 when mask holds
// no true value.
func LargestTrueBlock(mask []bool) (start, end int) {
	start, end = -1, -1
	best := 0
	runStart := -1
	for i := 0; i <= len(mask); i++ {
		if i < len(mask) && mask[i] {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			if l := i - runStart; l > best {
				best, start, end = l, runStart, i
			}
			runStart = -1
		}
	}
	return start, end
}
