package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/tmsearch/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// recordsChunk bounds the number of bind variables per Records query.
const recordsChunk = 500

// Ensure Store implements the interface.
var _ driven.MetadataStore = (*Store)(nil)

// Store is the SQLite-backed metadata store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.tmsearch/data/metadata.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".tmsearch", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations, recording each applied version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// unavailable marks a database failure as distinct from "no row".
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrMetadataUnavailable, op, err)
}

// ImportCorpus replaces every segment with lines, all attributed to prov.
// The whole import runs in a single transaction.
func (s *Store) ImportCorpus(ctx context.Context, lines []domain.CorpusLine, prov domain.Provenance) error {
	if !prov.Kind.IsValid() {
		return fmt.Errorf("%w: source kind %q", domain.ErrInvalidInput, prov.Kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning import", err)
	}
	defer tx.Rollback()

	yccID, err := upsertDomain(ctx, tx, prov.Domain)
	if err != nil {
		return unavailable("saving domain", err)
	}

	table := string(prov.Kind)
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (uri, owner, size, last_update, ycc_id, note) VALUES (?, ?, ?, ?, ?, ?)`, table),
		prov.URI, prov.Owner, prov.Size, formatDate(prov.LastUpdate), yccID, prov.Note)
	if err != nil {
		return unavailable("saving source", err)
	}
	sourceID, err := res.LastInsertId()
	if err != nil {
		return unavailable("saving source", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments`); err != nil {
		return unavailable("clearing segments", err)
	}

	var websiteID, fileID sql.NullInt64
	if prov.Kind == domain.SourceKindWebsite {
		websiteID = sql.NullInt64{Int64: sourceID, Valid: true}
	} else {
		fileID = sql.NullInt64{Int64: sourceID, Valid: true}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (query_id, position, src_lang, tgt_lang, src_text, tgt_text,
			quality, type, website_id, file_id, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return unavailable("preparing segment insert", err)
	}
	defer stmt.Close()

	for _, line := range lines {
		_, err := stmt.ExecContext(ctx,
			line.QueryID(), line.Position, prov.SourceLang, prov.TargetLang, line.Source, line.Target,
			prov.Quality, prov.Type, websiteID, fileID, prov.Note)
		if err != nil {
			return unavailable(fmt.Sprintf("inserting segment %d", line.Position), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing import", err)
	}
	return nil
}

// upsertDomain returns the ycc_id for d, creating the row if needed.
// An empty code yields a NULL reference.
func upsertDomain(ctx context.Context, tx *sql.Tx, d domain.YCCDomain) (sql.NullInt64, error) {
	if d.Code == "" {
		return sql.NullInt64{}, nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ycc_domains (ycc, ycc_gloss, domain, note) VALUES (?, ?, ?, ?)
		ON CONFLICT(ycc) DO UPDATE SET
			ycc_gloss = excluded.ycc_gloss,
			domain = excluded.domain,
			note = excluded.note
	`, d.Code, d.Gloss, d.Domain, d.Note)
	if err != nil {
		return sql.NullInt64{}, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT ycc_id FROM ycc_domains WHERE ycc = ?`, d.Code).Scan(&id); err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

// recordsQuery joins a segment with whichever source it came from and that
// source's domain.
const recordsQuery = `
	SELECT s.query_id, s.src_lang, s.src_text, s.tgt_lang, s.tgt_text, s.quality, s.type,
		COALESCE(w.uri, f.uri, ''),
		COALESCE(w.last_update, f.last_update, ''),
		COALESCE(y.domain, ''),
		COALESCE(y.ycc, '')
	FROM segments s
	LEFT JOIN website w ON s.website_id = w.website_id
	LEFT JOIN file f ON s.file_id = f.file_id
	LEFT JOIN ycc_domains y ON y.ycc_id = COALESCE(w.ycc_id, f.ycc_id)
	WHERE s.query_id IN (?)
`

// Records fetches the records for queryIDs. Ids without a row are omitted.
func (s *Store) Records(ctx context.Context, queryIDs []int) (map[int]domain.Record, error) {
	out := make(map[int]domain.Record, len(queryIDs))
	for start := 0; start < len(queryIDs); start += recordsChunk {
		chunk := queryIDs[start:min(start+recordsChunk, len(queryIDs))]

		query, args, err := sqlx.In(recordsQuery, chunk)
		if err != nil {
			return nil, fmt.Errorf("building records query: %w", err)
		}
		if err := s.scanRecords(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanRecords(ctx context.Context, query string, args []any, out map[int]domain.Record) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return unavailable("querying records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Record
		if err := rows.Scan(&r.QueryID, &r.SrcLang, &r.SrcText, &r.TgtLang, &r.TgtText,
			&r.Quality, &r.Type, &r.URI, &r.LastUpdate, &r.Domain, &r.YCC); err != nil {
			return unavailable("scanning record", err)
		}
		out[r.QueryID] = r
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterating records", err)
	}
	return nil
}

// Count returns the number of segments.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, unavailable("counting segments", err)
	}
	return n, nil
}

// ValidatePositions checks that the segments cover positions 0..n-1 exactly,
// each with query_id = position + 1.
func (s *Store) ValidatePositions(ctx context.Context, n int) error {
	var span domain.PositionSpan
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(position), -1), COALESCE(MAX(position), -1),
			COALESCE(SUM(CASE WHEN query_id != position + 1 THEN 1 ELSE 0 END), 0)
		FROM segments
	`).Scan(&span.Count, &span.Min, &span.Max, &span.Skewed)
	if err != nil {
		return unavailable("validating positions", err)
	}
	return span.Check(n)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
