// Package postgres provides the PostgreSQL implementation of the metadata store.
// It shares the segments/website/file/ycc_domains schema of the SQLite adapter.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements the interface.
var _ driven.MetadataStore = (*Store)(nil)

// Store is the PostgreSQL-backed metadata store.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", domain.ErrInvalidInput)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("connecting", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range splitStatements(string(content)) {
			if _, err := s.db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, q := range strings.Split(script, ";") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrMetadataUnavailable, op, err)
}

// ImportCorpus replaces every segment with lines in one transaction,
// streaming rows through COPY.
func (s *Store) ImportCorpus(ctx context.Context, lines []domain.CorpusLine, prov domain.Provenance) error {
	if !prov.Kind.IsValid() {
		return fmt.Errorf("%w: source kind %q", domain.ErrInvalidInput, prov.Kind)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("beginning import", err)
	}
	defer tx.Rollback()

	var yccID sql.NullInt64
	if prov.Domain.Code != "" {
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO ycc_domains (ycc, ycc_gloss, domain, note) VALUES ($1, $2, $3, $4)
			ON CONFLICT (ycc) DO UPDATE SET
				ycc_gloss = EXCLUDED.ycc_gloss,
				domain = EXCLUDED.domain,
				note = EXCLUDED.note
			RETURNING ycc_id
		`, prov.Domain.Code, prov.Domain.Gloss, prov.Domain.Domain, prov.Domain.Note).Scan(&yccID)
		if err != nil {
			return unavailable("saving domain", err)
		}
	}

	var lastUpdate sql.NullTime
	if !prov.LastUpdate.IsZero() {
		lastUpdate = sql.NullTime{Time: prov.LastUpdate, Valid: true}
	}

	table := string(prov.Kind)
	var sourceID int64
	err = tx.QueryRowxContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (uri, owner, size, last_update, ycc_id, note)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING %s_id`, table, table),
		prov.URI, prov.Owner, prov.Size, lastUpdate, yccID, prov.Note).Scan(&sourceID)
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

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("segments",
		"query_id", "position", "src_lang", "tgt_lang", "src_text", "tgt_text",
		"quality", "type", "website_id", "file_id", "note"))
	if err != nil {
		return unavailable("preparing copy", err)
	}
	for _, line := range lines {
		_, err := stmt.ExecContext(ctx,
			line.QueryID(), line.Position, prov.SourceLang, prov.TargetLang, line.Source, line.Target,
			prov.Quality, prov.Type, websiteID, fileID, prov.Note)
		if err != nil {
			stmt.Close()
			return unavailable(fmt.Sprintf("copying segment %d", line.Position), err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		if isConflict(err) {
			return fmt.Errorf("%w: duplicate corpus position: %v", domain.ErrInvalidInput, err)
		}
		return unavailable("flushing copy", err)
	}
	if err := stmt.Close(); err != nil {
		return unavailable("closing copy", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing import", err)
	}
	return nil
}

// recordRow is the scan target of the records join.
type recordRow struct {
	QueryID    int          `db:"query_id"`
	SrcLang    string       `db:"src_lang"`
	SrcText    string       `db:"src_text"`
	TgtLang    string       `db:"tgt_lang"`
	TgtText    string       `db:"tgt_text"`
	Quality    string       `db:"quality"`
	Type       string       `db:"type"`
	URI        string       `db:"uri"`
	LastUpdate sql.NullTime `db:"last_update"`
	Domain     string       `db:"domain"`
	YCC        string       `db:"ycc"`
}

func (r recordRow) record() domain.Record {
	rec := domain.Record{
		QueryID: r.QueryID,
		SrcLang: r.SrcLang,
		SrcText: r.SrcText,
		TgtLang: r.TgtLang,
		TgtText: r.TgtText,
		Quality: r.Quality,
		Type:    r.Type,
		URI:     r.URI,
		Domain:  r.Domain,
		YCC:     r.YCC,
	}
	if r.LastUpdate.Valid {
		rec.LastUpdate = r.LastUpdate.Time.Format(time.DateOnly)
	}
	return rec
}

const recordsQuery = `
	SELECT s.query_id, s.src_lang, s.src_text, s.tgt_lang, s.tgt_text, s.quality, s.type,
		COALESCE(w.uri, f.uri, '') AS uri,
		COALESCE(w.last_update, f.last_update) AS last_update,
		COALESCE(y.domain, '') AS domain,
		COALESCE(y.ycc, '') AS ycc
	FROM segments s
	LEFT JOIN website w ON s.website_id = w.website_id
	LEFT JOIN file f ON s.file_id = f.file_id
	LEFT JOIN ycc_domains y ON y.ycc_id = COALESCE(w.ycc_id, f.ycc_id)
	WHERE s.query_id IN (?)
`

// Records fetches the records for queryIDs in one round trip.
func (s *Store) Records(ctx context.Context, queryIDs []int) (map[int]domain.Record, error) {
	out := make(map[int]domain.Record, len(queryIDs))
	if len(queryIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(recordsQuery, queryIDs)
	if err != nil {
		return nil, fmt.Errorf("building records query: %w", err)
	}
	query = s.db.Rebind(query)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, unavailable("querying records", err)
	}
	for _, r := range rows {
		out[r.QueryID] = r.record()
	}
	return out, nil
}

// Count returns the number of segments.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM segments`); err != nil {
		return 0, unavailable("counting segments", err)
	}
	return n, nil
}

// ValidatePositions checks the segments cover positions 0..n-1 with query_id = position + 1.
func (s *Store) ValidatePositions(ctx context.Context, n int) error {
	var span struct {
		Count  int `db:"count"`
		Min    int `db:"min_pos"`
		Max    int `db:"max_pos"`
		Skewed int `db:"skewed"`
	}
	err := s.db.GetContext(ctx, &span, `
		SELECT COUNT(*) AS count,
			COALESCE(MIN(position), -1) AS min_pos,
			COALESCE(MAX(position), -1) AS max_pos,
			COUNT(*) FILTER (WHERE query_id <> position + 1) AS skewed
		FROM segments
	`)
	if err != nil {
		return unavailable("validating positions", err)
	}
	return domain.PositionSpan{Count: span.Count, Min: span.Min, Max: span.Max, Skewed: span.Skewed}.Check(n)
}

// isConflict reports whether err is a unique-constraint violation.
func isConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
