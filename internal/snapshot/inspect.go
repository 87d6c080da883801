package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// Inspection is a read view of one stored run.
type Inspection struct {
	RunID      string
	Model      string
	DType      string
	L          int
	Boundary   int
	SaveEvery  int
	Frames     int
	ParamsJSON string
	CreatedAt  time.Time

	// SchemaVersion is the store's migration version, 0 when unrecorded.
	SchemaVersion uint

	// Final is the last stored frame, nil when the run holds none.
	Final []float64

	db          *sql.DB
	cachedChunk int
	cached      [][]float64
}

const runColumns = `run_id, model, dtype, l, boundary, save_every, total_frames, params_json, created_at`

// Open reopens the run with the given id.
func Open(path, runID string) (*Inspection, error) {
	return open(path, `SELECT `+runColumns+` FROM soc_runs WHERE run_id = ?`, runID)
}

// OpenLatest reopens the most recently created run in path.
func OpenLatest(path string) (*Inspection, error) {
	return open(path, `SELECT `+runColumns+` FROM soc_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`)
}

func open(path, query string, args ...any) (*Inspection, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	in := &Inspection{db: db, cachedChunk: -1}
	var created int64
	err = db.QueryRow(query, args...).Scan(&in.RunID, &in.Model, &in.DType, &in.L, &in.Boundary,
		&in.SaveEvery, &in.Frames, &in.ParamsJSON, &created)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) || missingSchema(err) {
			return nil, fmt.Errorf("run in %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read run from %s: %w", path, err)
	}
	in.CreatedAt = time.Unix(0, created)
	if in.SchemaVersion, err = schemaVersion(db); err != nil && !missingSchema(err) {
		db.Close()
		return nil, err
	}

	if in.Frames > 0 {
		final, err := in.Frame(in.Frames - 1)
		if err != nil {
			db.Close()
			return nil, err
		}
		in.Final = final
		// the stored frame is authoritative for the lattice size
		w := int(math.Round(math.Sqrt(float64(len(final)))))
		if w*w != len(final) {
			db.Close()
			return nil, fmt.Errorf("run %s: final frame of %d cells is not square", in.RunID, len(final))
		}
		in.L = w - 2*in.Boundary
	}
	return in, nil
}

// Width returns the side of a stored frame, guard frame included.
func (in *Inspection) Width() int { return in.L + 2*in.Boundary }

// Frame returns frame i. Frames of the most recently read chunk are cached.
func (in *Inspection) Frame(i int) ([]float64, error) {
	if i < 0 || i >= in.Frames {
		return nil, fmt.Errorf("frame %d of %d in run %s: %w", i, in.Frames, in.RunID, ErrNotFound)
	}
	chunk := i / ChunkSize
	if chunk != in.cachedChunk {
		var blob []byte
		err := in.db.QueryRow(`SELECT frames_blob FROM soc_frame_chunks WHERE run_id = ? AND chunk_index = ?`,
			in.RunID, chunk).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chunk %d of run %s: %w", chunk, in.RunID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("read chunk %d of run %s: %w", chunk, in.RunID, err)
		}
		frames, err := decodeFrames(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of run %s: %w", chunk, in.RunID, err)
		}
		in.cachedChunk, in.cached = chunk, frames
	}
	off := i % ChunkSize
	if off >= len(in.cached) {
		return nil, fmt.Errorf("frame %d missing from chunk %d of run %s: %w", i, chunk, in.RunID, ErrNotFound)
	}
	return in.cached[off], nil
}

// Observations returns the stored observation table ordered by step.
func (in *Inspection) Observations() ([]Observation, error) {
	rows, err := in.db.Query(`SELECT step, avalanche_size, iterations, releases
		FROM soc_observations WHERE run_id = ? ORDER BY step`, in.RunID)
	if err != nil {
		return nil, fmt.Errorf("query observations of run %s: %w", in.RunID, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var releases sql.NullInt64
		if err := rows.Scan(&o.Step, &o.AvalancheSize, &o.Iterations, &releases); err != nil {
			return nil, err
		}
		if releases.Valid {
			o.Releases, o.HasReleases = int(releases.Int64), true
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (in *Inspection) Close() error { return in.db.Close() }

// RunSummary is a row of ListRuns.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Model     string    `json:"model"`
	L         int       `json:"l"`
	SaveEvery int       `json:"save_every"`
	Frames    int       `json:"frames"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRuns returns every run in path, newest first.
func ListRuns(path string) ([]RunSummary, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT run_id, model, l, save_every, total_frames, created_at
		FROM soc_runs ORDER BY created_at DESC, rowid DESC`)
	if missingSchema(err) {
		return nil, fmt.Errorf("runs in %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs in %s: %w", path, err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var created int64
		if err := rows.Scan(&r.RunID, &r.Model, &r.L, &r.SaveEvery, &r.Frames, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
