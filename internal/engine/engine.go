// Package engine implements the drive → relax → measure loop shared by
// every lattice model.
//
// The engine owns the visited mask and release counters for one
// simulation and lends them to the active Rule for the duration of a
// single relaxation. It never branches on which model it is driving.
package engine

import (
	"errors"
	"fmt"

	"github.com/banshee-data/avalanche/internal/lattice"
)

// ErrRelaxationLimit is returned when a rule fails to reach a stable
// configuration within its iteration bound.
var ErrRelaxationLimit = errors.New("relaxation did not stabilise")

// Scratch holds the per-avalanche buffers a rule writes into.
type Scratch struct {
	Visited  *lattice.Grid[bool]
	Releases *lattice.Grid[int]
}

// NewScratch allocates buffers for interior size l.
func NewScratch(l int) *Scratch {
	return &Scratch{
		Visited:  lattice.New[bool](l),
		Releases: lattice.New[int](l),
	}
}

// Reset clears both buffers.
func (s *Scratch) Reset() {
	clear(s.Visited.Values)
	clear(s.Releases.Values)
}

// Rule is the per-model site-update strategy.
type Rule interface {
	// Drive applies one external perturbation.
	Drive()
	// ToppleDissipate relaxes the lattice and returns the number of
	// sub-iterations performed; 0 means it was already stable.
	ToppleDissipate(s *Scratch) (int, error)
}

// ReleaseTracker is implemented by rules that count per-site releases.
type ReleaseTracker interface {
	TracksReleases() bool
}

// Observables is the record produced by one avalanche.
type Observables struct {
	AvalancheSize int
	Iterations    int
	Releases      int
	HasReleases   bool
}

// State is the engine's position in the drive/relax cycle.
type State int

const (
	Driving State = iota
	Relaxing
)

func (s State) String() string {
	switch s {
	case Driving:
		return "driving"
	case Relaxing:
		return "relaxing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine runs avalanches for a single Rule.
type Engine struct {
	rule     Rule
	scratch  *Scratch
	releases bool
	state    State
}

// New binds rule to freshly allocated scratch buffers of interior size l.
// A nil rule is a programming error and panics.
func New(rule Rule, l int) *Engine {
	if rule == nil {
		panic("engine: drive/topple_dissipate not implemented: nil rule")
	}
	e := &Engine{rule: rule, scratch: NewScratch(l), state: Driving}
	if rt, ok := rule.(ReleaseTracker); ok {
		e.releases = rt.TracksReleases()
	}
	return e
}

// Rule returns the bound rule.
func (e *Engine) Rule() Rule { return e.rule }

// State reports whether the engine is between avalanches or inside one.
func (e *Engine) State() State { return e.state }

// Step drives the lattice once and relaxes it.
func (e *Engine) Step() (Observables, error) {
	e.rule.Drive()
	return e.AvalancheLoop()
}

// AvalancheLoop brings the lattice back to a stable configuration and
// measures the avalanche that did so.
func (e *Engine) AvalancheLoop() (Observables, error) {
	e.state = Relaxing
	defer func() { e.state = Driving }()

	e.scratch.Reset()
	n, err := e.rule.ToppleDissipate(e.scratch)
	if err != nil {
		return Observables{}, fmt.Errorf("avalanche: %w", err)
	}

	obs := Observables{
		AvalancheSize: lattice.CountTrue(e.scratch.Visited.Interior()),
		Iterations:    n,
	}
	if e.releases {
		obs.Releases = lattice.Sum(e.scratch.Releases.Interior())
		obs.HasReleases = true
	}
	return obs, nil
}
