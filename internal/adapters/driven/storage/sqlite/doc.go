// Package sqlite provides the SQLite implementation of the metadata store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. The database holds four tables:
//
//   - segments: one row per corpus line, keyed by query_id = position + 1
//   - website, file: where a batch of segments was collected
//   - ycc_domains: the domain taxonomy referenced by sources
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.tmsearch/data/metadata.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode, and a single connection pool is shared by all callers.
package sqlite
