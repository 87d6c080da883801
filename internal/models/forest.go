package models

import (
	"math/rand/v2"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
)

// Cell enumerates forest-fire site states.
type Cell uint8

const (
	Ash Cell = iota
	Tree
	Burning
)

func (c Cell) String() string {
	switch c {
	case Ash:
		return "ash"
	case Tree:
		return "tree"
	case Burning:
		return "burning"
	default:
		return "unknown"
	}
}

// Forest is the Drossel–Schwabl forest-fire automaton. It has no
// equilibrium: each ToppleDissipate advances exactly one tick.
type Forest struct {
	P float64 // growth probability per ash cell per tick
	F float64 // lightning probability per tree per tick

	cur   *lattice.Grid[Cell]
	next  *lattice.Grid[Cell]
	cells []int // interior offsets in row-major order
	rng   *rand.Rand
}

// NewForest plants each interior cell with probability p.
func NewForest(l int, p, f float64, rng *rand.Rand) *Forest {
	m := &Forest{P: p, F: f, cur: lattice.New[Cell](l), rng: rng}
	m.cells = m.cur.InteriorIndices(nil)
	for _, idx := range m.cells {
		if rng.Float64() < p {
			m.cur.Values[idx] = Tree
		}
	}
	m.next = m.cur.Clone()
	return m
}

func (m *Forest) Name() string                  { return "forest" }
func (m *Forest) L() int                        { return m.cur.L() }
func (m *Forest) DType() string                 { return "uint8" }
func (m *Forest) TracksReleases() bool          { return false }
func (m *Forest) Grid() *lattice.Grid[Cell]     { return m.cur }
func (m *Forest) Frame(dst []float64) []float64 { return framef64(m.cur, dst) }

// Drive does nothing: renewal happens inside the tick.
func (m *Forest) Drive() {}

// ToppleDissipate computes the next tick from the current one into the
// spare buffer and swaps. Cells that catch fire this tick are marked
// visited. It returns the number of burning cells after the tick.
func (m *Forest) ToppleDissipate(s *engine.Scratch) (int, error) {
	prev, next := m.cur, m.next
	burning := 0
	for _, idx := range m.cells {
		state := prev.Values[idx]
		switch state {
		case Ash:
			if m.rng.Float64() < m.P {
				state = Tree
			}
		case Tree:
			if m.nearFire(idx) || m.rng.Float64() < m.F {
				state = Burning
			}
		case Burning:
			state = Ash
		}
		next.Values[idx] = state
		if state == Burning {
			burning++
			s.Visited.Values[idx] = true
		}
	}
	next.CleanBoundary(Ash)
	m.cur, m.next = next, prev
	return burning, nil
}

func (m *Forest) nearFire(idx int) bool {
	for _, n := range m.cur.MooreIdx(idx) {
		if m.cur.Values[n] == Burning {
			return true
		}
	}
	return false
}
