package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/avalanche/internal/engine"
	"github.com/banshee-data/avalanche/internal/lattice"
	"github.com/banshee-data/avalanche/internal/models"
	"github.com/banshee-data/avalanche/internal/snapshot"
	"github.com/banshee-data/avalanche/internal/timeutil"
)

// ErrInvalidSaveEvery is returned before any work when the step count is
// not a multiple of the snapshot cadence.
var ErrInvalidSaveEvery = errors.New("invalid save_every")

// DefaultProgressInterval is how often Run reports progress on the diag stream.
const DefaultProgressInterval = 5 * time.Second

// Options configures a Simulation. The zero value keeps every record and
// takes no snapshots.
type Options struct {
	SaveEvery     int
	WaitForNIters int
	// Store receives snapshots and, if it implements
	// snapshot.ObservationSink, the kept records. When nil and SaveEvery
	// is positive a MemoryStore is used.
	Store            snapshot.Store
	Clock            timeutil.Clock
	ProgressInterval time.Duration
	// Params is recorded with each run in the store.
	Params any
}

// Summary describes one call to Run.
type Summary struct {
	Steps   int // driving steps performed, warm-up included
	Kept    int // records appended
	Frames  int // snapshots written
	Elapsed time.Duration
}

// Simulation owns one model, its engine and the observation table.
type Simulation struct {
	SaveEvery     int
	WaitForNIters int

	model    models.Model
	engine   *engine.Engine
	store    snapshot.Store
	clock    timeutil.Clock
	progress time.Duration
	params   any

	records []engine.Observables
	steps   int
	frame   []float64
}

// New binds m to a fresh engine.
func New(m models.Model, opts Options) *Simulation {
	s := &Simulation{
		SaveEvery:     opts.SaveEvery,
		WaitForNIters: opts.WaitForNIters,
		model:         m,
		engine:        engine.New(m, m.L()),
		store:         opts.Store,
		clock:         opts.Clock,
		progress:      opts.ProgressInterval,
		params:        opts.Params,
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.progress <= 0 {
		s.progress = DefaultProgressInterval
	}
	if s.store == nil && s.SaveEvery > 0 {
		s.store = snapshot.NewMemoryStore()
	}
	return s
}

func (s *Simulation) Model() models.Model   { return s.model }
func (s *Simulation) Store() snapshot.Store { return s.store }

// Steps returns the number of driving steps performed over all runs.
func (s *Simulation) Steps() int { return s.steps }

// Records returns a copy of the observation table in simulation order.
func (s *Simulation) Records() []engine.Observables {
	return append([]engine.Observables(nil), s.records...)
}

// Validate checks that n kept steps fit the snapshot cadence.
func (s *Simulation) Validate(n int) error {
	if n < 0 {
		return fmt.Errorf("negative step count %d", n)
	}
	if s.WaitForNIters < 0 {
		return fmt.Errorf("negative warm-up %d", s.WaitForNIters)
	}
	if s.SaveEvery < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidSaveEvery, s.SaveEvery)
	}
	total := n + s.WaitForNIters
	if s.SaveEvery > 0 && total%s.SaveEvery != 0 {
		return fmt.Errorf("%w: total steps %d (n=%d + wait=%d) is not divisible by save_every=%d",
			ErrInvalidSaveEvery, total, n, s.WaitForNIters, s.SaveEvery)
	}
	return nil
}

// Run drives n+WaitForNIters steps. The first WaitForNIters records are
// discarded. A snapshot is taken after every step i with
// i%SaveEvery == 0, stored at index i/SaveEvery.
//
// ctx is checked between steps only; an avalanche in progress always
// completes. On cancellation Run returns the partial Summary and an error
// wrapping ctx.Err().
func (s *Simulation) Run(ctx context.Context, n int) (Summary, error) {
	if err := s.Validate(n); err != nil {
		return Summary{}, err
	}
	total := n + s.WaitForNIters
	frames := 0
	if s.SaveEvery > 0 {
		frames = total / s.SaveEvery
	}

	if s.store != nil {
		err := s.store.Begin(snapshot.Meta{
			Model:       s.model.Name(),
			L:           s.model.L(),
			Boundary:    lattice.BoundarySize,
			SaveEvery:   s.SaveEvery,
			TotalFrames: frames,
			DType:       s.model.DType(),
			Params:      s.params,
		})
		if err != nil {
			return Summary{}, fmt.Errorf("begin run: %w", err)
		}
	}
	sink, _ := s.store.(snapshot.ObservationSink)

	diagf("%s L=%d: %d steps (%d warm-up), %d snapshots", s.model.Name(), s.model.L(), total, s.WaitForNIters, frames)
	start := s.clock.Now()
	ticker := s.clock.NewTicker(s.progress)
	defer ticker.Stop()

	var sum Summary
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = s.clock.Since(start)
			opsf("%s interrupted after %d of %d steps", s.model.Name(), i, total)
			return sum, fmt.Errorf("interrupted after %d of %d steps: %w", i, total, err)
		}

		obs, err := s.engine.Step()
		if err != nil {
			sum.Elapsed = s.clock.Since(start)
			return sum, fmt.Errorf("step %d: %w", i, err)
		}
		step := s.steps
		s.steps++
		sum.Steps++

		if i >= s.WaitForNIters {
			s.records = append(s.records, obs)
			sum.Kept++
			if sink != nil {
				err := sink.Observe(snapshot.Observation{
					Step:          step,
					AvalancheSize: obs.AvalancheSize,
					Iterations:    obs.Iterations,
					Releases:      obs.Releases,
					HasReleases:   obs.HasReleases,
				})
				if err != nil {
					return sum, fmt.Errorf("record step %d: %w", i, err)
				}
			}
		}

		if s.SaveEvery > 0 && i%s.SaveEvery == 0 {
			s.frame = s.model.Frame(s.frame)
			if err := s.store.Put(i/s.SaveEvery, s.frame); err != nil {
				return sum, fmt.Errorf("snapshot %d: %w", i/s.SaveEvery, err)
			}
			sum.Frames++
			tracef("snapshot %d at step %d", i/s.SaveEvery, i)
		}

		select {
		case <-ticker.C():
			elapsed := s.clock.Since(start)
			rate := 0.0
			if elapsed > 0 {
				rate = float64(i+1) / elapsed.Seconds()
			}
			diagf("%s: step %d/%d (%.0f steps/s)", s.model.Name(), i+1, total, rate)
		default:
		}
	}
	sum.Elapsed = s.clock.Since(start)
	diagf("%s: done, %d records kept in %s", s.model.Name(), sum.Kept, sum.Elapsed)
	return sum, nil
}

// ObservablesFrom converts stored observations back into engine records.
func ObservablesFrom(obs []snapshot.Observation) []engine.Observables {
	out := make([]engine.Observables, len(obs))
	for i, o := range obs {
		out[i] = engine.Observables{
			AvalancheSize: o.AvalancheSize,
			Iterations:    o.Iterations,
			Releases:      o.Releases,
			HasReleases:   o.HasReleases,
		}
	}
	return out
}
