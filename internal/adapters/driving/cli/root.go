// Package cli provides the tmsearch command line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driving"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

// annotationOffline marks commands that run without loading the configuration.
const annotationOffline = "offline"

// Loader brings the query path to Ready.
type Loader interface {
	Load(ctx context.Context) error
}

// Services holds everything the commands run against.
type Services struct {
	Config  domain.Config
	Search  driving.SearchService
	Status  driving.StatusService
	Segment driving.SegmentService
	Build   driving.BuildService
	Ingest  driving.IngestService
	Loader  Loader

	// Close releases connections once the command has finished.
	Close func() error
}

// Opener constructs the services from a configuration file path.
type Opener func(ctx context.Context, configPath string) (*Services, error)

var (
	version = "dev"

	configPath string
	verbose    bool

	opener Opener
	closer func() error

	cfg            domain.Config
	searchService  driving.SearchService
	statusService  driving.StatusService
	segmentService driving.SegmentService
	buildService   driving.BuildService
	ingestService  driving.IngestService
	queryLoader    Loader
)

var rootCmd = &cobra.Command{
	Use:   "tmsearch",
	Short: "Fuzzy-match search over a translation memory",
	Long: `tmsearch finds previously translated segments similar to a source sentence.

The offline build trains subword embeddings over the source corpus, turns every
segment into a BM25-weighted document vector and indexes the vectors for
approximate nearest-neighbour search. The search, serve and mcp commands answer
queries from the persisted artifacts, joined with the metadata database.`,
	SilenceUsage:      true,
	PersistentPreRunE: openServices,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return closeServices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config/search.toml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline progress and debug output")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetOpener installs the function used to build services before a command runs.
func SetOpener(o Opener) {
	opener = o
}

// SetServices injects services directly, bypassing the opener.
func SetServices(s *Services) {
	cfg = s.Config
	searchService = s.Search
	statusService = s.Status
	segmentService = s.Segment
	buildService = s.Build
	ingestService = s.Ingest
	queryLoader = s.Loader
	closer = s.Close
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func openServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if opener == nil || !needsServices(cmd) {
		return nil
	}
	s, err := opener(cmd.Context(), configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}
	SetServices(s)
	return nil
}

// needsServices reports whether cmd runs against the engine. Help, shell
// completion and commands annotated offline do not.
func needsServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "help" || c.Name() == cobra.ShellCompRequestCmd || c.Name() == "completion" {
			return false
		}
	}
	return cmd.Annotations[annotationOffline] != "true"
}

func closeServices() error {
	if closer == nil {
		return nil
	}
	err := closer()
	closer = nil
	return err
}

// loadQuery brings the query path to Ready before a command serves queries.
func loadQuery(ctx context.Context) error {
	if queryLoader == nil {
		return nil
	}
	if err := queryLoader.Load(ctx); err != nil {
		return fmt.Errorf("loading search index: %w", err)
	}
	return nil
}
