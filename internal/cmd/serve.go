package cmd

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupService,
	Short:   "Serve the roster over HTTP",
	Long: `Run the HTTP API until interrupted.

Reads:
  GET    /roster, /roster/:category, /pseudonyms/:pseudonym, /image
  GET    /healthz, /metrics

Changes (rate limited per client):
  PUT    /roster/:category/:pseudonym
  POST   /roster/:category            {"pseudonym": "..."}
  DELETE /roster/:category/:pseudonym
  PUT    /image
  POST   /retry                       persist changes after a failed publish

The X-Actor header is recorded with each change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String(config.KeyListen, "", "Listen address (default from server.address)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	h := server.NewHandler(a.facade, logger.Named("http"))
	router := server.NewRouter(h, cfg.Server, reg)
	return server.Run(ctx, cfg.Server, router, logger)
}
