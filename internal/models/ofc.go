package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// DefaultMaxIterations bounds a single OFC relaxation.
const DefaultMaxIterations = 1_000_000

// OFC is the Olami–Feder–Christensen continuous stress model.
//
// Instead of loading every site until the most stressed one fails, Drive
// lowers the firing threshold to the current interior maximum. Stored
// values therefore sit in a frame shifted by CriticalValue −
// CurrentThreshold relative to the physical stress.
type OFC struct {
	CriticalValue     float64
	ConservationLevel float64
	CurrentThreshold  float64
	MaxIterations     int

	grid   *lattice.Grid[float64]
	mask   *lattice.Grid[bool]
	active []int
}

// NewOFC seeds the interior uniformly in [0, criticalValue).
func NewOFC(l int, criticalValue, conservationLevel float64, rng *rand.Rand) *OFC {
	m := &OFC{
		CriticalValue:     criticalValue,
		ConservationLevel: conservationLevel,
		CurrentThreshold:  criticalValue,
		MaxIterations:     DefaultMaxIterations,
		grid:              lattice.New[float64](l),
		mask:              lattice.New[bool](l),
	}
	in := m.grid.Interior()
	for r := 0; r < in.Size(); r++ {
		row := in.Row(r)
		for c := range row {
			row[c] = rng.Float64() * criticalValue
		}
	}
	return m
}

func (m *OFC) Name() string                 { return "ofc" }
func (m *OFC) L() int                       { return m.grid.L() }
func (m *OFC) DType() string                { return "float64" }
func (m *OFC) TracksReleases() bool         { return true }
func (m *OFC) Grid() *lattice.Grid[float64] { return m.grid }

// Frame exports values relative to the current threshold, so a frame
// reads the same regardless of how far the threshold has drifted.
func (m *OFC) Frame(dst []float64) []float64 {
	dst = framef64(m.grid, dst)
	for i := range dst {
		dst[i] -= m.CurrentThreshold
	}
	return dst
}

// Drive lowers the firing threshold to the most stressed interior site.
func (m *OFC) Drive() {
	m.CurrentThreshold = lattice.Max(m.grid.Interior())
}

// ToppleDissipate fires every site at or above the current threshold,
// pass by pass, until none remain. Stress pushed onto the frame is lost.
func (m *OFC) ToppleDissipate(s *engine.Scratch) (int, error) {
	g := m.grid
	th := m.CurrentThreshold
	residual := th - m.CriticalValue
	iterations := 0
	for {
		m.active = activeSites(g, m.mask, func(v float64) bool { return v >= th }, m.active[:0])
		if len(m.active) == 0 {
			return iterations, nil
		}
		if iterations >= m.MaxIterations {
			return iterations, fmt.Errorf("%w: ofc still has %d active sites after %d passes (threshold %g)",
				engine.ErrRelaxationLimit, len(m.active), iterations, th)
		}
		for _, idx := range m.active {
			if Debug {
				assertInterior(g, idx)
			}
			push := m.ConservationLevel * (g.Values[idx] - residual)
			if Debug && push < 0 {
				panic(fmt.Sprintf("ofc: negative stress %g at %d", push, idx))
			}
			for _, n := range g.AxisIdx(idx) {
				g.Values[n] += push
				s.Visited.Values[n] = true
			}
			g.Values[idx] = residual
			s.Releases.Values[idx]++
		}
		iterations++
	}
}
