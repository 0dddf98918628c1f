package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crewboard/materializer/pkg/telemetry"
	"github.com/crewboard/materializer/services/materializer/config"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the materializer on a cron schedule",
	Long: `Stay resident and fire a materialization batch on the configured
cron schedule, in the configured timezone. The per-date Redis lock keeps
overlapping instances from double-running a date.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().String("cron-schedule", "0 5 * * *", "cron expression for the daily batch")
	bindFlag("cron_schedule", daemonCmd.Flags(), "cron-schedule")
}

func runDaemon(_ *cobra.Command, _ []string) error {
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

	c := cron.New(cron.WithLocation(d.location))
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		fireScheduled(runCtx, d, logger)
	})
	if err != nil {
		return fmt.Errorf("cron schedule %q: %w", cfg.CronSchedule, err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	logger.Info("daemon starting",
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
	)
	c.Start()

	<-quit
	logger.Info("shutting down, waiting for in-flight batch...")

	// Let a running batch drain before its context is cancelled; cancelling
	// first would abort the very work the grace period is for.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("batch did not finish within shutdown grace period, cancelling")
	}
	runCancel()
	logger.Info("stopped")
	return nil
}

// fireScheduled runs one batch for today, skipping quietly when another
// instance already holds the date's lock. The lock is advisory: an
// unreachable Redis degrades to a lockless run, which the instance
// store's idempotency key keeps correct.
func fireScheduled(ctx context.Context, d *deps, logger *slog.Logger) {
	now := time.Now().In(d.location)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.location)

	acquired, err := d.lock.TryAcquire(ctx, date)
	switch {
	case err != nil:
		logger.Warn("run lock unavailable, proceeding without it",
			slog.String("error", err.Error()),
		)
	case !acquired:
		telemetry.RunsTotal.WithLabelValues("lock_held").Inc()
		logger.Info("skipping scheduled batch, lock held elsewhere",
			slog.String("date", date.Format("2006-01-02")))
		return
	default:
		defer func() { _ = d.lock.Release(ctx, date) }()
	}

	if _, err := d.engine.Run(ctx, date); err != nil {
		logger.Error("scheduled batch failed", slog.String("error", err.Error()))
	}
}
