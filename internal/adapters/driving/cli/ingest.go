package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

var ingestFlags struct {
	uri        string
	owner      string
	quality    string
	segType    string
	kind       string
	domain     string
	ycc        string
	gloss      string
	note       string
	lastUpdate string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the corpus into the metadata database",
	Long: `Imports the configured source and target corpus files into the metadata
database. Line p of the corpus is stored as segment query_id p+1, sharing one
provenance record built from the flags below.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.uri, "uri", "", "where the corpus was collected from")
	f.StringVar(&ingestFlags.owner, "owner", "", "owner of the source")
	f.StringVar(&ingestFlags.quality, "quality", "", `quality flag, e.g. "machine cleaned"`)
	f.StringVar(&ingestFlags.segType, "type", "TM", "segment type")
	f.StringVar(&ingestFlags.kind, "kind", string(domain.SourceKindFile), "source kind (website or file)")
	f.StringVar(&ingestFlags.domain, "domain", "", "domain of the segments")
	f.StringVar(&ingestFlags.ycc, "ycc", "", "domain taxonomy code")
	f.StringVar(&ingestFlags.gloss, "gloss", "", "gloss of the taxonomy code")
	f.StringVar(&ingestFlags.note, "note", "", "free-form note on the source")
	f.StringVar(&ingestFlags.lastUpdate, "last-update", "", "date the source was last updated (YYYY-MM-DD)")
	rootCmd.AddCommand(ingestCmd)
}

func provenanceFromFlags() (domain.Provenance, error) {
	prov := domain.Provenance{
		Quality: ingestFlags.quality,
		Type:    ingestFlags.segType,
		Kind:    domain.SourceKind(ingestFlags.kind),
		URI:     ingestFlags.uri,
		Owner:   ingestFlags.owner,
		Note:    ingestFlags.note,
		Domain: domain.YCCDomain{
			Code:   ingestFlags.ycc,
			Gloss:  ingestFlags.gloss,
			Domain: ingestFlags.domain,
		},
	}
	if ingestFlags.lastUpdate != "" {
		t, err := time.Parse(time.DateOnly, ingestFlags.lastUpdate)
		if err != nil {
			return domain.Provenance{}, fmt.Errorf("%w: --last-update must be YYYY-MM-DD", domain.ErrInvalidInput)
		}
		prov.LastUpdate = t
	}
	return prov, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	prov, err := provenanceFromFlags()
	if err != nil {
		return err
	}

	n, err := ingestService.Ingest(cmd.Context(), prov)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	cmd.Printf("Ingested %d segments\n", n)
	return nil
}
