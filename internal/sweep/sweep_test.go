package sweep

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/models"
	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/timeutil"
)

func quiet(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = prev })
}

func readCSV(t *testing.T, b *bytes.Buffer) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(b.Bytes())).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSetParam(t *testing.T) {
	p := models.DefaultParams(8)
	require.NoError(t, SetParam(&p, "particles", 3.9))
	require.NoError(t, SetParam(&p, "Conservation-Level", 0.1))
	require.NoError(t, SetParam(&p, "abelian", 0))
	require.NoError(t, SetParam(&p, "f", 0.001))
	assert.Equal(t, 3, p.NumParticles)
	assert.Equal(t, 0.1, p.ConservationLevel)
	assert.False(t, p.Abelian)
	assert.Equal(t, 0.001, p.F)

	assert.ErrorContains(t, SetParam(&p, "temperature", 1), "unknown parameter")
	assert.Contains(t, ParamNames(), "critical_value")
}

func TestPlan_Points(t *testing.T) {
	plan := Plan{
		Model:  "btw",
		Base:   models.DefaultParams(4),
		Sizes:  []int{4, 6},
		Params: []Param{{Name: "particles", Values: []float64{1, 2}}},
		Steps:  10,
	}
	require.NoError(t, plan.Validate())
	assert.Equal(t, "num_particles", plan.Params[0].Name)
	assert.Equal(t, 1, plan.Repeats)

	pts, err := plan.Points()
	require.NoError(t, err)
	require.Len(t, pts, 4)
	assert.Equal(t, 4, pts[1].L)
	assert.Equal(t, 2, pts[1].Params.NumParticles)
	assert.Equal(t, 6, pts[2].Params.L)
	assert.Equal(t, 1, pts[2].Params.NumParticles)
	assert.Equal(t, "L=6 num_particles=2", pts[3].Label(plan.Params))
}

func TestPlan_Validate(t *testing.T) {
	cases := map[string]Plan{
		"no steps":      {Model: "btw", Sizes: []int{4}},
		"negative wait": {Model: "btw", Sizes: []int{4}, Steps: 1, Wait: -1},
		"bad size":      {Model: "btw", Sizes: []int{0}, Steps: 1},
		"bad param":     {Model: "btw", Sizes: []int{4}, Steps: 1, Params: []Param{{Name: "x", Values: []float64{1}}}},
		"empty param":   {Model: "btw", Sizes: []int{4}, Steps: 1, Params: []Param{{Name: "p"}}},
	}
	for name, plan := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, plan.Validate())
		})
	}

	p := Plan{Base: models.DefaultParams(12), Steps: 1}
	require.NoError(t, p.Validate())
	assert.Equal(t, []int{12}, p.Sizes)
}

func TestRun_WritesTables(t *testing.T) {
	quiet(t)
	plan := Plan{
		Model:   "btw",
		Base:    models.DefaultParams(4),
		Sizes:   []int{4, 6},
		Params:  []Param{{Name: "num_particles", Values: []float64{1, 2}}},
		Steps:   300,
		Wait:    50,
		Repeats: 2,
		Seed:    7,
		Fit:     analysis.FitOptions{Bins: 10, SmoothWidth: 3},
		Clock:   timeutil.NewMockClock(time.Unix(0, 0)),
	}
	var summary, raw bytes.Buffer
	results, err := Run(context.Background(), plan, NewCSVWriter(&summary, &raw))
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, r := range results {
		assert.Equal(t, uint64(7+i), r.Seed)
		assert.Equal(t, 350, r.Run.Steps)
		assert.Equal(t, 300, r.Run.Kept)
		assert.Equal(t, 300, r.Size.N)
	}
	assert.Equal(t, 1, results[1].Repeat)
	assert.Equal(t, 6, results[7].Point.L)

	rawRows := readCSV(t, &raw)
	require.Len(t, rawRows, 9)
	assert.Equal(t, RawHeader(plan.Params), rawRows[0])
	assert.Equal(t, []string{"btw", "4", "1", "0", "7"}, rawRows[1][:5])

	sumRows := readCSV(t, &summary)
	require.Len(t, sumRows, 5)
	assert.Equal(t, SummaryHeader(plan.Params), sumRows[0])
	assert.Equal(t, []string{"btw", "6", "2", "2"}, sumRows[4][:4])

	// same seed, same numbers
	again, err := Run(context.Background(), plan, nil)
	require.NoError(t, err)
	for i := range results {
		assert.Equal(t, results[i].Size, again[i].Size)
	}
}

func TestRun_UnknownModel(t *testing.T) {
	quiet(t)
	_, err := Run(context.Background(), Plan{Model: "nope", Base: models.DefaultParams(4), Steps: 1, Seed: 1}, nil)
	assert.ErrorContains(t, err, "unknown model")
}

func TestRun_Cancelled(t *testing.T) {
	quiet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Plan{Model: "btw", Base: models.DefaultParams(4), Steps: 5, Seed: 1}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVWriter_FitFailure(t *testing.T) {
	var summary, raw bytes.Buffer
	w := NewCSVWriter(&summary, &raw)
	require.NoError(t, w.WriteHeaders(nil))

	r := Result{
		Point:  Point{Model: "manna", L: 8},
		Size:   analysis.Summary{N: 2, Mean: 1.5, Max: 2},
		FitErr: analysis.ErrNoData,
	}
	require.NoError(t, w.WriteRawRow(r))
	require.NoError(t, w.WriteSummary([]Result{r}))
	assert.Error(t, w.WriteSummary(nil))

	rawRows := readCSV(t, &raw)
	last := rawRows[1]
	assert.Equal(t, "not enough data", last[len(last)-1])
	assert.Equal(t, "", last[len(last)-6], "exponent left blank")

	sumRows := readCSV(t, &summary)
	assert.Equal(t, []string{"manna", "8", "1", "0", "", "", ""}, sumRows[1][:7])
}
