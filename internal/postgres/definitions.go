package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewboard/materializer/internal/domain"
)

// DefinitionRepository reads recurring task definitions. The engine never
// writes them; the CRUD surface owns their lifecycle.
type DefinitionRepository interface {
	ListActive(ctx context.Context) ([]*domain.TaskDefinition, error)
	GetByID(ctx context.Context, id string) (*domain.TaskDefinition, error)
}

type definitionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDefinitionRepository wraps a pgxpool with the DefinitionRepository
// interface. The logger receives one warning per definition whose stored
// recurrence or assignment config cannot be decoded; such rows are dropped
// from ListActive instead of failing the batch.
func NewDefinitionRepository(pool *pgxpool.Pool, logger *slog.Logger) DefinitionRepository {
	return &definitionRepository{pool: pool, logger: logger}
}

const definitionColumns = `
	id, org_id, creator_id, name, description,
	recurrence, scheduled_time, assignment, active, created_at, updated_at
`

func (r *definitionRepository) ListActive(ctx context.Context) ([]*domain.TaskDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM task_definitions
		WHERE active = TRUE
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active definitions: %w", err)
	}
	defer rows.Close()

	var defs []*domain.TaskDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			var ruleErr *domain.MalformedRuleError
			var asgErr *domain.MalformedAssignmentError
			if errors.As(err, &ruleErr) || errors.As(err, &asgErr) {
				r.logger.Warn("skipping definition with malformed config",
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (r *definitionRepository) GetByID(ctx context.Context, id string) (*domain.TaskDefinition, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+definitionColumns+`
		FROM task_definitions
		WHERE id = $1
	`, id)

	def, err := scanDefinition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, &domain.DefinitionNotFoundError{DefinitionID: id}
		}
		return nil, err
	}
	return def, nil
}

// scanDefinition reads a definition row from any pgx row type, decoding
// the jsonb recurrence/assignment configs into their typed variants.
func scanDefinition(row interface {
	Scan(...any) error
}) (*domain.TaskDefinition, error) {
	var (
		def           domain.TaskDefinition
		recurrenceRaw []byte
		assignmentRaw []byte
		scheduledTime string
	)
	err := row.Scan(
		&def.ID, &def.OrgID, &def.CreatorID, &def.Name, &def.Description,
		&recurrenceRaw, &scheduledTime, &assignmentRaw, &def.Active,
		&def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan definition: %w", err)
	}

	if def.Recurrence, err = domain.DecodeRecurrence(def.ID, recurrenceRaw); err != nil {
		return nil, err
	}
	if def.Assignment, err = domain.DecodeAssignment(def.ID, assignmentRaw); err != nil {
		return nil, err
	}
	if def.ScheduledTime, err = domain.ParseTimeOfDay(scheduledTime); err != nil {
		return nil, &domain.MalformedRuleError{DefinitionID: def.ID, Reason: err.Error()}
	}
	return &def, nil
}
