package analysis

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/avalanche/internal/engine"
)

// paretoQuantiles returns n deterministic samples of a density ∝ x^-2
// on [1, xmax].
func paretoQuantiles(n int, xmax float64) []float64 {
	umin := 1 / xmax
	out := make([]float64, n)
	for i := range out {
		u := umin + (1-umin)*(float64(i)+0.5)/float64(n)
		out[i] = 1 / u
	}
	return out
}

func TestNewHistogram(t *testing.T) {
	h, err := NewHistogram([]float64{0, -1, 1, 20, 100}, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, h.Dropped)
	assert.Equal(t, []float64{1, 2}, h.Counts)
	require.Len(t, h.Edges, 3)
	assert.Equal(t, 1.0, h.Edges[0])
	assert.InDelta(t, 10, h.Edges[1], 1e-9)
	assert.Greater(t, h.Edges[2], 100.0)
	assert.InDelta(t, 1.0/(3*9), h.Density[0], 1e-12)
	assert.InDelta(t, 2.0/(3*90), h.Density[1], 1e-9)
	assert.InDeltaSlice(t, []float64{5.5, 55}, h.Centers(), 1e-9)
}

func TestNewHistogram_SingleValue(t *testing.T) {
	h, err := NewHistogram([]float64{5, 5}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, h.Counts)
	assert.Equal(t, 5.0, h.Edges[0])
}

func TestNewHistogram_Errors(t *testing.T) {
	_, err := NewHistogram([]float64{1}, 0)
	assert.Error(t, err)

	_, err = NewHistogram([]float64{0, 0, -3}, 10)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestHistogram_NonEmpty(t *testing.T) {
	h := Histogram{
		Edges:   []float64{1, 2, 4, 8},
		Counts:  []float64{3, 0, 1},
		Density: []float64{0.75, 0, 0.0625},
	}
	x, y := h.NonEmpty()
	assert.Equal(t, []float64{1.5, 6}, x)
	assert.Equal(t, []float64{0.75, 0.0625}, y)
}

func TestSecondDerivKernel(t *testing.T) {
	k := secondDerivKernel(1)
	require.Len(t, k, 1)
	assert.InDelta(t, 34*math.Exp(-9)*8, k[0], 1e-12)

	k = secondDerivKernel(3)
	want := []float64{
		34 * math.Exp(-9) / 3 * 8,
		-2.0 / 3 * 8,
		34 * math.Exp(-9) / 3 * 8,
	}
	assert.InDeltaSlice(t, want, k, 1e-12)

	// A wide kernel approximates a zero-mean filter.
	var sum float64
	for _, v := range secondDerivKernel(DefaultSmoothWidth) {
		sum += v
	}
	assert.InDelta(t, 0, sum, 0.05)
}

func TestConvolveSame(t *testing.T) {
	cases := []struct {
		name string
		a, v []float64
		want []float64
	}{
		{"equal lengths", []float64{1, 2, 3}, []float64{0, 1, 0.5}, []float64{1, 2.5, 4}},
		{"short signal", []float64{1, 1}, []float64{1, 2, 3}, []float64{1, 3, 5}},
		{"short kernel", []float64{1, 2, 3, 4}, []float64{1, 1}, []float64{1, 3, 5, 7}},
		{"empty", nil, []float64{1}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, convolveSame(tc.a, tc.v))
		})
	}
}

func TestSecondDerivative_LinearInterior(t *testing.T) {
	y := make([]float64, 80)
	for i := range y {
		y[i] = 3 - 0.1*float64(i)
	}
	d2 := SecondDerivative(y, DefaultSmoothWidth)
	require.Len(t, d2, len(y))
	for i := 20; i < 60; i++ {
		assert.InDelta(t, 0, d2[i], 0.1, "bin %d", i)
	}
}

func TestLargestTrueBlock(t *testing.T) {
	cases := []struct {
		name       string
		mask       []bool
		start, end int
	}{
		{"empty", nil, -1, -1},
		{"all false", []bool{false, false}, -1, -1},
		{"all true", []bool{true, true, true}, 0, 3},
		{"trailing run", []bool{true, false, true, true}, 2, 4},
		{"tie keeps first", []bool{true, true, false, true, true}, 0, 2},
		{"middle", []bool{false, true, true, true, false, true}, 1, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, e := LargestTrueBlock(tc.mask)
			assert.Equal(t, tc.start, s)
			assert.Equal(t, tc.end, e)
		})
	}
}

func TestFitValues_ExplicitCutoffs(t *testing.T) {
	values := paretoQuantiles(100_000, 1e5)
	f, err := FitValues(values, FitOptions{Bins: 30, Cutoffs: &[2]int{0, 15}})
	require.NoError(t, err)

	assert.InDelta(t, -2, f.Exponent, 0.05)
	assert.Greater(t, f.RSquared, 0.99)
	assert.Equal(t, 0, f.Start)
	assert.Equal(t, 15, f.End)
	assert.Len(t, f.X, 15)
	assert.Len(t, f.Histogram.Counts, 30)
}

func TestFitValues_DetectsScalingRegion(t *testing.T) {
	values := paretoQuantiles(100_000, 1e3)
	f, err := FitValues(values, FitOptions{Bins: 60})
	require.NoError(t, err)

	assert.InDelta(t, -2, f.Exponent, 0.15)
	assert.GreaterOrEqual(t, f.End-f.Start, 10)
	assert.LessOrEqual(t, f.End, len(f.AllX))
}

func TestFitValues_Errors(t *testing.T) {
	values := paretoQuantiles(1000, 100)

	_, err := FitValues(values, FitOptions{Bins: 10, SmoothWidth: 10})
	assert.ErrorContains(t, err, "smooth width")

	_, err = FitValues(values, FitOptions{Bins: 30, Cutoffs: &[2]int{5, 2}})
	assert.ErrorContains(t, err, "cutoffs")

	_, err = FitValues(values, FitOptions{Bins: 30, Cutoffs: &[2]int{0, 1}})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = FitValues([]float64{0, 0}, FitOptions{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFitExponent_Column(t *testing.T) {
	values := paretoQuantiles(20_000, 1e3)
	recs := make([]engine.Observables, len(values))
	for i, v := range values {
		recs[i] = engine.Observables{AvalancheSize: int(v), Iterations: 1}
	}
	f, err := FitExponent(recs, FitOptions{Bins: 30, Cutoffs: &[2]int{2, 12}})
	require.NoError(t, err)
	assert.Less(t, f.Exponent, 0.0)

	_, err = FitExponent(recs, FitOptions{Column: "releases"})
	assert.ErrorContains(t, err, "no release count")
}

func TestFit_Predict(t *testing.T) {
	f := Fit{Intercept: 1, Exponent: -2}
	assert.InDelta(t, 0.1, f.Predict(10), 1e-12)
}

func TestColumn(t *testing.T) {
	recs := []engine.Observables{
		{AvalancheSize: 4, Iterations: 2, Releases: 5, HasReleases: true},
		{AvalancheSize: 0, Iterations: 0, Releases: 0, HasReleases: true},
	}
	for _, name := range []string{"avalanche_size", "AvalancheSize", "size"} {
		got, err := Column(recs, name)
		require.NoError(t, err, name)
		assert.Equal(t, []float64{4, 0}, got, name)
	}
	got, err := Column(recs, "NumberOfIterations")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, got)

	got, err = Column(recs, "releases")
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0}, got)

	_, err = Column(recs, "energy")
	assert.ErrorContains(t, err, "unknown column")
}

func TestCSV_RoundTrip(t *testing.T) {
	recs := []engine.Observables{
		{AvalancheSize: 12, Iterations: 3, Releases: 14, HasReleases: true},
		{AvalancheSize: 0, Iterations: 0},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs))
	assert.Equal(t, "avalanche_size,number_of_iterations,releases\n12,3,14\n0,0,\n", buf.String())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(recs, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSV_ReorderedColumns(t *testing.T) {
	in := "iterations,AvalancheSize\n2,7\n1,1\n"
	recs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []engine.Observables{
		{AvalancheSize: 7, Iterations: 2},
		{AvalancheSize: 1, Iterations: 1},
	}, recs)
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "avalanche_size\n1\n",
		"bad number":     "avalanche_size,number_of_iterations\nx,1\n",
		"ragged":         "avalanche_size,number_of_iterations\n1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, Summary{}, Describe(nil))
	assert.Equal(t, Summary{N: 1, Mean: 3, Max: 3}, Describe([]float64{3}))

	s := Describe([]float64{1, 2, 3, 4})
	assert.Equal(t, 4, s.N)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3), s.StdDev, 1e-12)
	assert.Equal(t, 4.0, s.Max)
}
