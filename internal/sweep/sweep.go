package sweep

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/avalanche/internal/analysis"
	"github.com/banshee-data/avalanche/internal/models"
	"github.com/banshee-data/avalanche/internal/monitoring"
	"github.com/banshee-data/avalanche/internal/simulation"
	"github.com/banshee-data/avalanche/internal/timeutil"
)

// Param is one swept parameter.
type Param struct {
	Name   string
	Values []float64
}

// Plan describes a sweep: every size crossed with every parameter value,
// each run Repeats times.
type Plan struct {
	Model   string
	Base    models.Params
	Sizes   []int // defaults to Base.L
	Params  []Param
	Steps   int
	Wait    int
	Repeats int    // defaults to 1
	Seed    uint64 // zero draws a random base seed
	Fit     analysis.FitOptions
	Clock   timeutil.Clock
}

// Point is one parameter combination.
type Point struct {
	Model  string
	L      int
	Values []float64 // aligned with Plan.Params
	Params models.Params
}

// Label formats the swept values as name=value pairs.
func (pt Point) Label(params []Param) string {
	parts := []string{fmt.Sprintf("L=%d", pt.L)}
	for i, p := range params {
		parts = append(parts, fmt.Sprintf("%s=%g", p.Name, pt.Values[i]))
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of one run.
type Result struct {
	Point      Point
	Repeat     int
	Seed       uint64
	Run        simulation.Summary
	Size       analysis.Summary
	Iterations analysis.Summary
	Fit        analysis.Fit
	FitErr     error
}

// Validate normalises parameter names and checks the plan is runnable.
func (p *Plan) Validate() error {
	if p.Steps <= 0 {
		return fmt.Errorf("sweep needs a positive step count, got %d", p.Steps)
	}
	if p.Wait < 0 {
		return fmt.Errorf("negative warm-up %d", p.Wait)
	}
	if p.Repeats <= 0 {
		p.Repeats = 1
	}
	if len(p.Sizes) == 0 {
		p.Sizes = []int{p.Base.L}
	}
	for _, l := range p.Sizes {
		if l <= 0 {
			return fmt.Errorf("lattice size must be positive, got %d", l)
		}
	}
	for i := range p.Params {
		n, err := CanonicalParam(p.Params[i].Name)
		if err != nil {
			return err
		}
		p.Params[i].Name = n
		if len(p.Params[i].Values) == 0 {
			return fmt.Errorf("parameter %s has no values", n)
		}
	}
	return nil
}

// Points expands the plan, sizes varying slowest.
func (p Plan) Points() ([]Point, error) {
	lists := make([][]float64, 0, len(p.Params)+1)
	sizes := make([]float64, len(p.Sizes))
	for i, l := range p.Sizes {
		sizes[i] = float64(l)
	}
	lists = append(lists, sizes)
	for _, prm := range p.Params {
		lists = append(lists, prm.Values)
	}
	combos, err := ExpandRanges(lists...)
	if err != nil {
		return nil, err
	}

	out := make([]Point, len(combos))
	for i, c := range combos {
		pt := Point{Model: p.Model, L: int(c[0]), Values: c[1:], Params: p.Base}
		pt.Params.L = pt.L
		for j, prm := range p.Params {
			if err := SetParam(&pt.Params, prm.Name, c[j+1]); err != nil {
				return nil, err
			}
		}
		out[i] = pt
	}
	return out, nil
}

// Run executes the plan in order. Each run gets seed base+k for the k-th
// run. A failed fit is recorded on the Result and does not stop the sweep;
// a failed simulation does. out may be nil.
func Run(ctx context.Context, plan Plan, out *CSVWriter) ([]Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	points, err := plan.Points()
	if err != nil {
		return nil, err
	}
	base := plan.Seed
	if base == 0 {
		if base, err = models.NewSeed(); err != nil {
			return nil, err
		}
	}
	if out != nil {
		if err := out.WriteHeaders(plan.Params); err != nil {
			return nil, err
		}
	}

	monitoring.Logf("sweep %s: %d points x %d repeats", plan.Model, len(points), plan.Repeats)
	var all []Result
	k := uint64(0)
	for _, pt := range points {
		group := make([]Result, 0, plan.Repeats)
		for rep := 0; rep < plan.Repeats; rep++ {
			res, err := runOne(ctx, plan, pt, rep, base+k)
			k++
			if err != nil {
				return all, fmt.Errorf("%s repeat %d: %w", pt.Label(plan.Params), rep, err)
			}
			if res.FitErr != nil {
				monitoring.Logf("sweep %s %s repeat %d: fit failed: %v", plan.Model, pt.Label(plan.Params), rep, res.FitErr)
			} else {
				monitoring.Logf("sweep %s %s repeat %d: exponent %.3f (R² %.3f)", plan.Model, pt.Label(plan.Params), rep, res.Fit.Exponent, res.Fit.RSquared)
			}
			if out != nil {
				if err := out.WriteRawRow(res); err != nil {
					return all, err
				}
			}
			group = append(group, res)
			all = append(all, res)
		}
		if out != nil {
			if err := out.WriteSummary(group); err != nil {
				return all, err
			}
		}
	}
	return all, nil
}

func runOne(ctx context.Context, plan Plan, pt Point, rep int, seed uint64) (Result, error) {
	m, err := models.New(plan.Model, pt.Params, models.NewRand(seed))
	if err != nil {
		return Result{}, err
	}
	sim := simulation.New(m, simulation.Options{WaitForNIters: plan.Wait, Clock: plan.Clock})
	sum, err := sim.Run(ctx, plan.Steps)
	if err != nil {
		return Result{}, err
	}

	recs := sim.Records()
	res := Result{Point: pt, Repeat: rep, Seed: seed, Run: sum}
	sizes, _ := analysis.Column(recs, analysis.ColumnAvalancheSize)
	iters, _ := analysis.Column(recs, analysis.ColumnIterations)
	res.Size = analysis.Describe(sizes)
	res.Iterations = analysis.Describe(iters)
	res.Fit, res.FitErr = analysis.FitExponent(recs, plan.Fit)
	return res, nil
}
