package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crewboard/materializer/pkg/telemetry"
	"github.com/crewboard/materializer/services/materializer/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one materialization batch and exit",
	Long: `Expand every active task definition for a single date and exit.

The date defaults to today in the configured timezone. Re-running for a
date that was already materialized is safe and creates nothing new.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().String("date", "", "target date as YYYY-MM-DD (default: today in the configured timezone)")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "materializer")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "materializer", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	ctx := context.Background()
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	date, err := resolveDate(cmd.Flags().Lookup("date").Value.String(), d.location)
	if err != nil {
		return err
	}

	// The lock is advisory: an unreachable Redis must not block the batch,
	// since the instance store's idempotency key keeps a lockless run correct.
	acquired, err := d.lock.TryAcquire(ctx, date)
	switch {
	case err != nil:
		logger.Warn("run lock unavailable, proceeding without it",
			slog.String("error", err.Error()),
		)
	case !acquired:
		telemetry.RunsTotal.WithLabelValues("lock_held").Inc()
		return fmt.Errorf("a run for %s is already in progress", date.Format("2006-01-02"))
	default:
		defer func() { _ = d.lock.Release(ctx, date) }()
	}

	report, err := d.engine.Run(ctx, date)
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// resolveDate parses an explicit --date or falls back to today in loc.
func resolveDate(flag string, loc *time.Location) (time.Time, error) {
	if flag == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	date, err := time.ParseInLocation("2006-01-02", flag, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", flag, err)
	}
	return date, nil
}
