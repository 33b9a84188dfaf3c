package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find translated segments similar to a sentence",
	Long: `Embeds the query with the trained subword model and returns the closest
segments of the translation memory, nearest first, with their translations.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of matches")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output matches as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}
	if err := loadQuery(cmd.Context()); err != nil {
		return err
	}

	records, err := searchService.Search(cmd.Context(), args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, records)
	}
	outputSearchTable(cmd, records)
	return nil
}

func outputSearchJSON(cmd *cobra.Command, records []domain.Record) error {
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal matches: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, records []domain.Record) {
	if len(records) == 0 {
		cmd.Println("No matches found.")
		return
	}

	cmd.Println("Matches:")
	cmd.Println()
	for i := range records {
		r := &records[i]
		cmd.Printf("  [%d] %s (%.4f)\n", r.Rank, r.SrcText, r.Distance)
		cmd.Printf("      => %s\n", r.TgtText)
		if r.URI != "" {
			cmd.Printf("      Source: %s\n", r.URI)
		}
		cmd.Println()
	}
}
