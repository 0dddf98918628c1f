package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewboard/materializer/internal/domain"
)

// RunRepository persists materialization run reports so operators can
// answer "why didn't my recurring task show up today" after the fact.
type RunRepository interface {
	RecordRun(ctx context.Context, report *domain.RunReport) error
}

type runRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository wraps a pgxpool with the RunRepository interface.
func NewRunRepository(pool *pgxpool.Pool) RunRepository {
	return &runRepository{pool: pool}
}

func (r *runRepository) RecordRun(ctx context.Context, report *domain.RunReport) error {
	errorsJSON, err := json.Marshal(report.Errors)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO materialization_runs
			(id, run_date, started_at, finished_at,
			 definitions_evaluated, definitions_due, definitions_skipped,
			 instances_created, suppressed, already_materialized,
			 error_count, errors)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		report.RunID, dateArg(report.Date), report.StartedAt, report.FinishedAt,
		report.DefinitionsEvaluated, report.DefinitionsDue, report.DefinitionsSkipped,
		report.InstancesCreated, report.Suppressed, report.AlreadyMaterialized,
		len(report.Errors), errorsJSON,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", report.RunID, err)
	}
	return nil
}
