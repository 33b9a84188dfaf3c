package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driving"
	"github.com/custodia-labs/tmsearch/internal/corpus"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// verifyChunk bounds the ids fetched per Records call during Verify.
const verifyChunk = 1000

// IngestService loads the corpus pair into the metadata store.
type IngestService struct {
	cfg   domain.Config
	store driven.MetadataStore
}

// NewIngestService creates a new ingest service.
func NewIngestService(cfg domain.Config, store driven.MetadataStore) *IngestService {
	return &IngestService{cfg: cfg, store: store}
}

// Ingest imports the corpus pair under prov. Empty language tags fall back
// to the configured language pair.
func (s *IngestService) Ingest(ctx context.Context, prov domain.Provenance) (int, error) {
	logger.Section("Corpus Ingest")

	lines, err := s.readPair()
	if err != nil {
		return 0, err
	}

	if prov.SourceLang == "" {
		prov.SourceLang = s.cfg.Language.SourceLang
	}
	if prov.TargetLang == "" {
		prov.TargetLang = s.cfg.Language.TargetLang
	}
	if prov.Kind == "" {
		prov.Kind = domain.SourceKindFile
	}
	if !prov.Kind.IsValid() {
		return 0, fmt.Errorf("ingest: %w: source kind %q", domain.ErrInvalidInput, prov.Kind)
	}

	if err := s.store.ImportCorpus(ctx, lines, prov); err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	logger.Info("ingested %d segments from %s", len(lines), s.cfg.Training.SrcCorpusPath)
	return len(lines), nil
}

// Verify checks that the store holds exactly one row per corpus line and that
// row p+1 carries line p.
func (s *IngestService) Verify(ctx context.Context) error {
	logger.Section("Corpus Verify")

	lines, err := s.readPair()
	if err != nil {
		return err
	}
	if err := s.store.ValidatePositions(ctx, len(lines)); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	for start := 0; start < len(lines); start += verifyChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+verifyChunk, len(lines))
		ids := make([]int, 0, end-start)
		for _, l := range lines[start:end] {
			ids = append(ids, l.QueryID())
		}

		rows, err := s.store.Records(ctx, ids)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		for _, l := range lines[start:end] {
			rec, ok := rows[l.QueryID()]
			if !ok {
				return fmt.Errorf("verify: %w: position %d has no row", domain.ErrPositionMismatch, l.Position)
			}
			if rec.SrcText != l.Source || rec.TgtText != l.Target {
				return fmt.Errorf("verify: %w: position %d differs from query_id %d",
					domain.ErrPositionMismatch, l.Position, l.QueryID())
			}
		}
	}
	logger.Info("verified %d segments", len(lines))
	return nil
}

func (s *IngestService) readPair() ([]domain.CorpusLine, error) {
	t := s.cfg.Training
	if t.SrcCorpusPath == "" || t.TgtCorpusPath == "" {
		return nil, fmt.Errorf("%w: training.src_corpus_path and training.tgt_corpus_path are required",
			domain.ErrInvalidInput)
	}
	return corpus.ReadPair(t.SrcCorpusPath, t.TgtCorpusPath)
}
