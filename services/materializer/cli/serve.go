package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crewboard/materializer/pkg/telemetry"
	"github.com/crewboard/materializer/services/materializer/api"
	"github.com/crewboard/materializer/services/materializer/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger API",
	Long: `Expose POST /api/v1/runs so operators and backfill tooling can fire a
materialization batch for an arbitrary date without shell access.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", ":8085", "HTTP listen address for the trigger API")
	bindFlag("http_addr", serveCmd.Flags(), "http-addr")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "materializer")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "materializer", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	d, err := buildDeps(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	handler := api.NewHandler(d.engine, d.lock, d.location, logger)
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a triggered batch runs synchronously
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		logger.Info("trigger API starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
