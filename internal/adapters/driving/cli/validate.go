package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the corpus, database and index agree",
	Long: `Verifies that every corpus line matches the database row at the same
position, then loads the model and index and checks the index covers
exactly the stored segments.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	if err := ingestService.Verify(cmd.Context()); err != nil {
		return fmt.Errorf("corpus check failed: %w", err)
	}
	cmd.Println("Corpus and database are aligned.")

	if err := loadQuery(cmd.Context()); err != nil {
		return err
	}
	if statusService != nil {
		s := statusService.Status()
		cmd.Printf("Index ready: %d documents, dimension %d\n", s.Documents, s.Dimension)
	}
	return nil
}
