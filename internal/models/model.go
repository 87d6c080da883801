// Package models holds the site-update rules for the SOC lattice models:
// BTW and Manna sandpiles, the OFC stress model and the forest-fire
// automaton.
//
// Each model owns its value grid and satisfies engine.Rule. Scratch
// buffers (visited mask, release counters) belong to the engine and are
// only borrowed for the duration of ToppleDissipate.
package models

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// Debug enables bounds and sign assertions inside the topple loops.
// A failed assertion panics: it means a rule is broken, not that the
// input was bad.
var Debug = false

// Model is a Rule that can also describe and export its lattice.
type Model interface {
	engine.Rule
	Name() string
	L() int
	// DType names the element type of the value grid.
	DType() string
	// Frame writes the full bordered grid into dst as float64 and returns it.
	Frame(dst []float64) []float64
}

// Params is the union of per-model constructor parameters.
// Fields that a model does not use are ignored.
type Params struct {
	L int `json:"l"`

	NumParticles      int     `json:"num_particles"`      // BTW, Manna
	CriticalValue     float64 `json:"critical_value"`     // Manna (integer part), OFC
	Abelian           bool    `json:"abelian"`            // Manna
	ConservationLevel float64 `json:"conservation_level"` // OFC
	MaxIterations     int     `json:"max_iterations"`     // OFC
	P                 float64 `json:"p"`                  // Forest
	F                 float64 `json:"f"`                  // Forest
}

// DefaultParams returns the documented defaults for interior size l.
func DefaultParams(l int) Params {
	return Params{
		L:                 l,
		NumParticles:      1,
		CriticalValue:     1,
		Abelian:           true,
		ConservationLevel: 0.25,
		MaxIterations:     DefaultMaxIterations,
		P:                 0.05,
		F:                 0,
	}
}

// Factory builds a model from params and a random source.
type Factory func(p Params, rng *rand.Rand) (Model, error)

var registry = map[string]Factory{}

// Register adds a model factory under name (case-insensitive).
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	registry[strings.ToLower(name)] = f
}

// Names lists registered models in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs the named model.
func New(name string, p Params, rng *rand.Rand) (Model, error) {
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if p.L <= 0 {
		return nil, fmt.Errorf("L must be positive, got %d", p.L)
	}
	if rng == nil {
		return nil, fmt.Errorf("model %s: nil random source", name)
	}
	return f(p, rng)
}

func init() {
	Register("btw", func(p Params, rng *rand.Rand) (Model, error) {
		m := NewBTW(p.L, rng)
		if p.NumParticles > 0 {
			m.NumParticles = p.NumParticles
		}
		return m, nil
	})
	Register("manna", func(p Params, rng *rand.Rand) (Model, error) {
		if p.CriticalValue < 0 {
			return nil, fmt.Errorf("manna: critical value must be non-negative, got %v", p.CriticalValue)
		}
		if p.CriticalValue != math.Trunc(p.CriticalValue) {
			return nil, fmt.Errorf("manna: critical value must be a whole number of grains, got %v", p.CriticalValue)
		}
		if p.Abelian && p.CriticalValue < 1 {
			// an active site must hold the two grains it sheds
			return nil, fmt.Errorf("manna: abelian variant needs critical value >= 1, got %v", p.CriticalValue)
		}
		m := NewManna(p.L, int(p.CriticalValue), p.Abelian, rng)
		if p.NumParticles > 0 {
			m.NumParticles = p.NumParticles
		}
		return m, nil
	})
	Register("ofc", func(p Params, rng *rand.Rand) (Model, error) {
		if p.CriticalValue <= 0 {
			return nil, fmt.Errorf("ofc: critical value must be positive, got %v", p.CriticalValue)
		}
		if p.ConservationLevel <= 0 || p.ConservationLevel > 0.25 {
			return nil, fmt.Errorf("ofc: conservation level must be in (0, 0.25], got %v", p.ConservationLevel)
		}
		m := NewOFC(p.L, p.CriticalValue, p.ConservationLevel, rng)
		if p.MaxIterations > 0 {
			m.MaxIterations = p.MaxIterations
		}
		return m, nil
	})
	Register("forest", func(p Params, rng *rand.Rand) (Model, error) {
		if p.P < 0 || p.P > 1 || p.F < 0 || p.F > 1 {
			return nil, fmt.Errorf("forest: probabilities must be in [0, 1], got p=%v f=%v", p.P, p.F)
		}
		return NewForest(p.L, p.P, p.F, rng), nil
	})
}

// activeSites evaluates pred over the whole grid into mask, forces the
// guard frame inactive and appends the offsets of the remaining active
// cells to dst.
func activeSites[T any](g *lattice.Grid[T], mask *lattice.Grid[bool], pred func(T) bool, dst []int) []int {
	for i, v := range g.Values {
		mask.Values[i] = pred(v)
	}
	mask.CleanBoundary(false)
	for i, on := range mask.Values {
		if on {
			dst = append(dst, i)
		}
	}
	return dst
}

// randomInterior returns the offset of a uniformly random interior cell.
func randomInterior[T any](g *lattice.Grid[T], rng *rand.Rand) int {
	r := lattice.BoundarySize + rng.IntN(g.L())
	c := lattice.BoundarySize + rng.IntN(g.L())
	return g.Idx(r, c)
}

func assertInterior[T any](g *lattice.Grid[T], idx int) {
	r, c := g.RowCol(idx)
	if !g.IsInterior(r, c) {
		panic(fmt.Sprintf("models: active site (%d,%d) outside interior of width %d", r, c, g.Width()))
	}
}

func framef64[T int | float64 | Cell](g *lattice.Grid[T], dst []float64) []float64 {
	if cap(dst) < len(g.Values) {
		dst = make([]float64, len(g.Values))
	}
	dst = dst[:len(g.Values)]
	for i, v := range g.Values {
		dst[i] = float64(v)
	}
	return dst
}
