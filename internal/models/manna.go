package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// Manna is the stochastic Manna sandpile. In the abelian variant an active
// site sheds exactly two grains; otherwise it sheds everything it holds.
// Every shed grain picks one of the four axis neighbours uniformly.
type Manna struct {
	NumParticles  int
	CriticalValue int
	Abelian       bool

	grid   *lattice.Grid[int]
	mask   *lattice.Grid[bool]
	active []int
	rng    *rand.Rand
}

// NewManna returns an empty Manna pile. Sites holding more than
// criticalValue grains are active.
func NewManna(l, criticalValue int, abelian bool, rng *rand.Rand) *Manna {
	return &Manna{
		NumParticles:  1,
		CriticalValue: criticalValue,
		Abelian:       abelian,
		grid:          lattice.New[int](l),
		mask:          lattice.New[bool](l),
		rng:           rng,
	}
}

func (m *Manna) Name() string                  { return "manna" }
func (m *Manna) L() int                        { return m.grid.L() }
func (m *Manna) DType() string                 { return "int64" }
func (m *Manna) TracksReleases() bool          { return false }
func (m *Manna) Grid() *lattice.Grid[int]      { return m.grid }
func (m *Manna) Frame(dst []float64) []float64 { return framef64(m.grid, dst) }

// Drive adds one grain to each of NumParticles random interior cells.
func (m *Manna) Drive() {
	for i := 0; i < m.NumParticles; i++ {
		m.grid.Values[randomInterior(m.grid, m.rng)]++
	}
}

// shed returns how many grains leave the site at idx.
func (m *Manna) shed(idx int) int {
	if m.Abelian {
		return 2
	}
	return m.grid.Values[idx]
}

// ToppleDissipate re-scans and redistributes until no site exceeds the
// critical value.
func (m *Manna) ToppleDissipate(s *engine.Scratch) (int, error) {
	g := m.grid
	crit := m.CriticalValue
	iterations := 0
	for {
		m.active = activeSites(g, m.mask, func(v int) bool { return v > crit }, m.active[:0])
		if len(m.active) == 0 {
			return iterations, nil
		}
		for _, idx := range m.active {
			if Debug {
				assertInterior(g, idx)
			}
			n := m.shed(idx)
			g.Values[idx] -= n
			if Debug && g.Values[idx] < 0 {
				panic(fmt.Sprintf("manna: negative value %d after topple at %d", g.Values[idx], idx))
			}
			neighbours := g.AxisIdx(idx)
			for k := 0; k < n; k++ {
				to := neighbours[m.rng.IntN(len(neighbours))]
				g.Values[to]++
				s.Visited.Values[to] = true
			}
		}
		iterations++
	}
}
