package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// BTWThreshold is the BTW toppling threshold 2·d for the 2-D square
// lattice. A site is active when it holds at least this many grains and
// loses exactly this many when it topples, one to each axis neighbour.
const BTWThreshold = 4

// BTW is the deterministic Bak–Tang–Wiesenfeld sandpile.
type BTW struct {
	NumParticles int

	grid   *lattice.Grid[int]
	mask   *lattice.Grid[bool]
	active []int
	rng    *rand.Rand
}

// NewBTW returns an empty BTW sandpile with interior size l.
func NewBTW(l int, rng *rand.Rand) *BTW {
	return &BTW{
		NumParticles: 1,
		grid:         lattice.New[int](l),
		mask:         lattice.New[bool](l),
		rng:          rng,
	}
}

func (m *BTW) Name() string                  { return "btw" }
func (m *BTW) L() int                        { return m.grid.L() }
func (m *BTW) DType() string                 { return "int64" }
func (m *BTW) TracksReleases() bool          { return true }
func (m *BTW) Grid() *lattice.Grid[int]      { return m.grid }
func (m *BTW) Frame(dst []float64) []float64 { return framef64(m.grid, dst) }

// Drive adds one grain to each of NumParticles random interior cells.
// Coordinates are drawn independently, so a cell may receive several.
func (m *BTW) Drive() {
	for i := 0; i < m.NumParticles; i++ {
		m.grid.Values[randomInterior(m.grid, m.rng)]++
	}
}

// ToppleDissipate relaxes the pile in synchronous passes. Every site
// active at the start of a pass topples exactly once in that pass.
// Grains pushed onto the frame are lost.
func (m *BTW) ToppleDissipate(s *engine.Scratch) (int, error) {
	g := m.grid
	iterations := 0
	for {
		m.active = activeSites(g, m.mask, func(v int) bool { return v >= BTWThreshold }, m.active[:0])
		if len(m.active) == 0 {
			return iterations, nil
		}
		for _, idx := range m.active {
			if Debug {
				assertInterior(g, idx)
			}
			g.Values[idx] -= BTWThreshold
			s.Releases.Values[idx]++
			for _, n := range g.AxisIdx(idx) {
				g.Values[n]++
				s.Visited.Values[n] = true
			}
			if Debug && g.Values[idx] < 0 {
				panic(fmt.Sprintf("btw: negative value %d after topple at %d", g.Values[idx], idx))
			}
		}
		iterations++
	}
}
