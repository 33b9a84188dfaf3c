package cli

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/tmsearch/internal/adapters/driving/rest"
	"github.com/custodia-labs/tmsearch/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Loads the model and index, then serves:

  GET /search?src_text=...&n_best=5
  GET /advanced_search?src_text=...&n_best=5&type=1&domain=1&quality=1&ycc=1
  GET /segments/:id
  GET /healthz

The MCP streamable HTTP transport is mounted under /mcp.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from configuration)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	mcpServer, err := newMCPServer()
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := rest.NewServer(rest.Ports{
		Search:  searchService,
		Status:  statusService,
		Segment: segmentService,
		MCP:     mcpServer.Handler(),
	}, rest.Config{
		Addr:      addr,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
	})
	if err != nil {
		return err
	}

	// The listener comes up first so /healthz can report loading progress.
	loaded := make(chan error, 1)
	go func() { loaded <- loadQuery(cmd.Context()) }()
	go func() {
		if err := <-loaded; err != nil {
			logger.Error("%v", err)
			return
		}
		logger.Info("index loaded, serving queries")
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", displayAddr(server.Addr()))
	return server.Run(cmd.Context())
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
