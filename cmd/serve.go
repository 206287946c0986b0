package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	apihttp "github.com/Tanay2104/Smart-Email/adapter/in/http"
	"github.com/Tanay2104/Smart-Email/internal/bootstrap"
)

const shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown

var servePort string

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scoring, results and metrics over HTTP",
		Long: `Start the HTTP API:

  GET  /health           liveness
  GET  /ready            backend checks
  GET  /metrics          Prometheus metrics
  POST /api/v1/score     score one message (JSON)
  GET  /api/v1/results   ranked output of the latest run

The server still starts when the catalog cannot be loaded; scoring then
answers 503 until the index is built and the server restarted.`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&servePort, "port", "", "Listen port (overrides PORT)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if servePort != "" {
		cfg.Port = servePort
	}

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer cleanup()

	var scorer apihttp.Scorer
	pipeline, err := deps.NewPipeline(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("catalog unavailable, scoring disabled")
	} else {
		scorer = pipeline
	}

	app := bootstrap.NewAPI(deps, scorer)

	// Graceful shutdown with timeout
	go func() {
		<-ctx.Done()
		zlog.Info().Dur("timeout", shutdownTimeout).Msg("shutting down API server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zlog.Error().Err(err).Msg("error shutting down")
		}
	}()

	addr := ":" + cfg.Port
	zlog.Info().Str("addr", addr).Msg("starting API server")
	return app.Listen(addr)
}
