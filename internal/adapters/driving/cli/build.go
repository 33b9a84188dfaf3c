package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Train the model and build the search index",
	Long: `Runs the offline pipeline over the configured corpus:

  tokenize -> BM25 weights -> subword embeddings -> document vectors -> index

Artifacts whose inputs are unchanged since the last build are reloaded
instead of recomputed. Use --verbose to follow each stage.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	if buildService == nil {
		return errors.New("build service not configured")
	}

	report, err := buildService.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	printBuildReport(cmd, report)
	return nil
}

func printBuildReport(cmd *cobra.Command, r domain.BuildReport) {
	cmd.Printf("Build %s complete\n", r.BuildID)
	cmd.Printf("  Documents: %d\n", r.Documents)
	cmd.Printf("  Dimension: %d\n", r.Dimension)
	if len(r.Computed) > 0 {
		cmd.Printf("  Computed:  %s\n", joinKinds(r.Computed))
	}
	if len(r.Reused) > 0 {
		cmd.Printf("  Reused:    %s\n", joinKinds(r.Reused))
	}
	if len(r.Degraded) > 0 {
		cmd.Printf("  Degraded:  %d segment(s) indexed as zero vectors %v\n", len(r.Degraded), r.Degraded)
	}
}

func joinKinds(kinds []domain.ArtifactKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
