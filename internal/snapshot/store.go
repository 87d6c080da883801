package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkSize is the number of frames stored per chunk along the time axis.
const ChunkSize = 100

// ErrNotFound is returned when a store file, run or frame does not exist.
var ErrNotFound = errors.New("snapshot not found")

// Meta describes one simulation run.
type Meta struct {
	RunID       string
	Model       string
	L           int
	Boundary    int
	SaveEvery   int
	TotalFrames int // expected; the store records how many actually arrived
	DType       string
	Params      any // marshalled to JSON by persistent stores
	CreatedAt   time.Time
}

// Width returns the side of a stored frame, guard frame included.
func (m Meta) Width() int { return m.L + 2*m.Boundary }

// Observation is one kept avalanche record. Step is the absolute driving
// step, warm-up included.
type Observation struct {
	Step          int
	AvalancheSize int
	Iterations    int
	Releases      int
	HasReleases   bool
}

// Store receives the frames of a run in index order.
type Store interface {
	// Begin starts a new run, finishing any run already in progress.
	Begin(meta Meta) error
	// Put appends the frame with the given index. Indices must be
	// consecutive from zero. The store copies frame.
	Put(index int, frame []float64) error
	Close() error
}

// ObservationSink is implemented by stores that also keep the observation table.
type ObservationSink interface {
	Observe(o Observation) error
}

func prepareMeta(meta Meta, now time.Time) (Meta, error) {
	if meta.L <= 0 {
		return meta, fmt.Errorf("begin run: L must be positive, got %d", meta.L)
	}
	if meta.SaveEvery < 0 {
		return meta, fmt.Errorf("begin run: negative save_every %d", meta.SaveEvery)
	}
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	return meta, nil
}

func checkFrame(meta Meta, next, index int, frame []float64) error {
	if index != next {
		return fmt.Errorf("run %s: frame index %d out of order, expected %d", meta.RunID, index, next)
	}
	if w := meta.Width(); len(frame) != w*w {
		return fmt.Errorf("run %s: frame %d has %d cells, expected %d", meta.RunID, index, len(frame), w*w)
	}
	return nil
}

// MemoryStore keeps a single run in memory.
type MemoryStore struct {
	meta   Meta
	frames [][]float64
	obs    []Observation
	begun  bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Begin discards anything previously held and starts a new run.
func (s *MemoryStore) Begin(meta Meta) error {
	meta, err := prepareMeta(meta, time.Now())
	if err != nil {
		return err
	}
	s.meta, s.frames, s.obs, s.begun = meta, nil, nil, true
	return nil
}

func (s *MemoryStore) Put(index int, frame []float64) error {
	if !s.begun {
		return errors.New("memory store: Put before Begin")
	}
	if err := checkFrame(s.meta, len(s.frames), index, frame); err != nil {
		return err
	}
	s.frames = append(s.frames, append([]float64(nil), frame...))
	return nil
}

func (s *MemoryStore) Observe(o Observation) error {
	if !s.begun {
		return errors.New("memory store: Observe before Begin")
	}
	s.obs = append(s.obs, o)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Meta returns the current run description.
func (s *MemoryStore) Meta() Meta { return s.meta }

// Len returns the number of frames stored.
func (s *MemoryStore) Len() int { return len(s.frames) }

// Frame returns frame i. The slice aliases store memory.
func (s *MemoryStore) Frame(i int) ([]float64, error) {
	if i < 0 || i >= len(s.frames) {
		return nil, fmt.Errorf("frame %d of %d: %w", i, len(s.frames), ErrNotFound)
	}
	return s.frames[i], nil
}

// Final returns the last frame, or nil when none were stored.
func (s *MemoryStore) Final() []float64 {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Observations returns the observation table in insertion order.
func (s *MemoryStore) Observations() []Observation { return s.obs }
