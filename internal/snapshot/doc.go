// Package snapshot persists simulation runs: periodic full-grid frames and
// the per-avalanche observation table.
//
// Frames are stored as a three-axis stack [t, row, col] chunked along t in
// groups of ChunkSize. Each chunk is a gob+gzip blob of float64 frames that
// include the guard frame. A run carries its save_every cadence, so frame i
// corresponds to driving step i*save_every.
//
// Two stores implement Store: MemoryStore for in-process use and
// SQLiteStore backed by modernc.org/sqlite with golang-migrate managed
// schema. Open and OpenLatest reopen a SQLite file for inspection.
package snapshot
