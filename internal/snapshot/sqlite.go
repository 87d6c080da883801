package snapshot

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/avalanche/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// observationBatch bounds how many observations are buffered before a flush.
const observationBatch = 1000

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// SQLiteStore writes runs into a SQLite file. It is single-writer.
type SQLiteStore struct {
	db    *sql.DB
	clock timeutil.Clock

	meta    Meta
	active  bool
	written int // frames persisted or buffered for the active run
	chunk   [][]float64
	chunkNo int
	obs     []Observation
}

// OpenSQLite opens or creates the store at path and migrates its schema to
// the latest version. A nil clock means the wall clock.
func OpenSQLite(path string, clock timeutil.Clock) (*SQLiteStore, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

// OpenDB opens an existing store read-only for direct SQL access. The
// schema is not migrated and the file is left untouched.
func OpenDB(path string) (*sql.DB, error) {
	return openReadOnly(path)
}

// openReadOnly opens an existing store without switching its journal mode
// or running migrations.
func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("store %s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// missingSchema reports whether err comes from querying a file that holds
// no store tables.
func missingSchema(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}

// migrateUp runs all pending migrations up to the latest version.
func migrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m is not closed: closing it would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger on the diag stream.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	diagf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// schemaVersion reads the applied migration version. It queries the
// migrate bookkeeping table directly so it also works on read-only handles.
func schemaVersion(db *sql.DB) (uint, error) {
	var (
		v     int64
		dirty bool
	)
	err := db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&v, &dirty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return uint(v), fmt.Errorf("schema version %d is dirty", v)
	}
	return uint(v), nil
}

// Begin inserts a run row. A run already in progress is finished first.
func (s *SQLiteStore) Begin(meta Meta) error {
	if err := s.finish(); err != nil {
		return err
	}
	meta, err := prepareMeta(meta, s.clock.Now())
	if err != nil {
		return err
	}
	params := []byte("{}")
	if meta.Params != nil {
		if params, err = json.Marshal(meta.Params); err != nil {
			return fmt.Errorf("encode params for run %s: %w", meta.RunID, err)
		}
	}
	_, err = s.db.Exec(`INSERT INTO soc_runs (
			run_id, model, l, boundary, save_every, total_frames, dtype, params_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.Model, meta.L, meta.Boundary, meta.SaveEvery, meta.TotalFrames,
		meta.DType, string(params), meta.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", meta.RunID, err)
	}
	s.meta, s.active = meta, true
	s.written, s.chunkNo = 0, 0
	s.chunk, s.obs = s.chunk[:0], s.obs[:0]
	diagf("run %s: model=%s L=%d save_every=%d expecting %d frames",
		meta.RunID, meta.Model, meta.L, meta.SaveEvery, meta.TotalFrames)
	return nil
}

// Meta returns the active (or last) run description.
func (s *SQLiteStore) Meta() Meta { return s.meta }

// Put buffers a frame and writes a chunk when ChunkSize frames are pending.
func (s *SQLiteStore) Put(index int, frame []float64) error {
	if !s.active {
		return errors.New("sqlite store: Put before Begin")
	}
	if err := checkFrame(s.meta, s.written, index, frame); err != nil {
		return err
	}
	s.chunk = append(s.chunk, append([]float64(nil), frame...))
	s.written++
	if len(s.chunk) == ChunkSize {
		return s.flushChunk()
	}
	return nil
}

// Observe buffers an observation row.
func (s *SQLiteStore) Observe(o Observation) error {
	if !s.active {
		return errors.New("sqlite store: Observe before Begin")
	}
	s.obs = append(s.obs, o)
	if len(s.obs) >= observationBatch {
		return s.flushObservations()
	}
	return nil
}

func (s *SQLiteStore) flushChunk() error {
	if len(s.chunk) == 0 {
		return nil
	}
	blob, err := encodeFrames(s.chunk)
	if err != nil {
		return fmt.Errorf("encode chunk %d of run %s: %w", s.chunkNo, s.meta.RunID, err)
	}
	_, err = s.db.Exec(`INSERT INTO soc_frame_chunks (run_id, chunk_index, frame_count, frames_blob)
		VALUES (?, ?, ?, ?)`, s.meta.RunID, s.chunkNo, len(s.chunk), blob)
	if err != nil {
		return fmt.Errorf("insert chunk %d of run %s: %w", s.chunkNo, s.meta.RunID, err)
	}
	tracef("run %s: chunk %d (%d frames, %d bytes)", s.meta.RunID, s.chunkNo, len(s.chunk), len(blob))
	s.chunkNo++
	s.chunk = s.chunk[:0]
	return nil
}

func (s *SQLiteStore) flushObservations() (err error) {
	if len(s.obs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin observation batch: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	stmt, err := tx.Prepare(`INSERT INTO soc_observations (run_id, step, avalanche_size, iterations, releases)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range s.obs {
		var releases sql.NullInt64
		if o.HasReleases {
			releases = sql.NullInt64{Int64: int64(o.Releases), Valid: true}
		}
		if _, err = stmt.Exec(s.meta.RunID, o.Step, o.AvalancheSize, o.Iterations, releases); err != nil {
			return fmt.Errorf("insert observation at step %d: %w", o.Step, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit observation batch: %w", err)
	}
	tracef("run %s: %d observations", s.meta.RunID, len(s.obs))
	s.obs = s.obs[:0]
	return nil
}

// finish flushes the active run and records how many frames it holds.
func (s *SQLiteStore) finish() error {
	if !s.active {
		return nil
	}
	s.active = false
	if err := s.flushChunk(); err != nil {
		opsf("run %s: final chunk lost: %v", s.meta.RunID, err)
		return err
	}
	if err := s.flushObservations(); err != nil {
		opsf("run %s: observations lost: %v", s.meta.RunID, err)
		return err
	}
	if _, err := s.db.Exec(`UPDATE soc_runs SET total_frames = ? WHERE run_id = ?`, s.written, s.meta.RunID); err != nil {
		return fmt.Errorf("update frame count for run %s: %w", s.meta.RunID, err)
	}
	if s.meta.TotalFrames > 0 && s.written != s.meta.TotalFrames {
		opsf("run %s closed with %d of %d frames", s.meta.RunID, s.written, s.meta.TotalFrames)
	}
	s.meta.TotalFrames = s.written
	diagf("run %s: closed with %d frames", s.meta.RunID, s.written)
	return nil
}

// Close finishes the active run and closes the database.
func (s *SQLiteStore) Close() error {
	err := s.finish()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
