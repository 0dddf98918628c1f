package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewboard/materializer/internal/domain"
)

// InstanceRepository persists materialized task instances. Uniqueness on
// (task_definition_id, personnel_id, deadline_date) is enforced by the
// store itself, so two concurrent workers racing for the same key resolve
// to exactly one row.
type InstanceRepository interface {
	// Exists reports whether an instance already exists for the idempotency
	// key. Cheap pre-check; InsertIfAbsent remains the authoritative guard.
	Exists(ctx context.Context, definitionID, personnelID string, date time.Time) (bool, error)
	// InsertIfAbsent inserts the instance unless one already exists for its
	// idempotency key. Returns false (and no error) when the row was
	// already present — the expected outcome of a re-run or a lost race.
	InsertIfAbsent(ctx context.Context, inst *domain.TaskInstance) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.TaskInstance, error)
	ListForDate(ctx context.Context, definitionID string, date time.Time) ([]*domain.TaskInstance, error)
}

type instanceRepository struct {
	pool *pgxpool.Pool
}

// NewInstanceRepository wraps a pgxpool with the InstanceRepository interface.
func NewInstanceRepository(pool *pgxpool.Pool) InstanceRepository {
	return &instanceRepository{pool: pool}
}

func (r *instanceRepository) Exists(ctx context.Context, definitionID, personnelID string, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM task_instances
			WHERE task_definition_id = $1 AND personnel_id = $2 AND deadline_date = $3
		)
	`, definitionID, personnelID, dateArg(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("instance exists check for %s/%s: %w", definitionID, personnelID, err)
	}
	return exists, nil
}

func (r *instanceRepository) InsertIfAbsent(ctx context.Context, inst *domain.TaskInstance) (bool, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO task_instances
			(id, task_definition_id, org_id, personnel_id, author_id,
			 description, deadline, deadline_date, status, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (task_definition_id, personnel_id, deadline_date)
			WHERE task_definition_id IS NOT NULL
			DO NOTHING
	`,
		inst.ID, inst.DefinitionID, inst.OrgID, inst.PersonnelID, inst.AuthorID,
		inst.Description, inst.Deadline, dateArg(inst.Deadline),
		string(inst.Status), inst.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert instance for %s: %w", inst.PersonnelID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *instanceRepository) GetByID(ctx context.Context, id string) (*domain.TaskInstance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM task_instances
		WHERE id = $1
	`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("task instance %s: not found", id)
		}
		return nil, err
	}
	return inst, nil
}

func (r *instanceRepository) ListForDate(ctx context.Context, definitionID string, date time.Time) ([]*domain.TaskInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+instanceColumns+`
		FROM task_instances
		WHERE task_definition_id = $1 AND deadline_date = $2
		ORDER BY personnel_id ASC
	`, definitionID, dateArg(date))
	if err != nil {
		return nil, fmt.Errorf("list instances for %s: %w", definitionID, err)
	}
	defer rows.Close()

	var out []*domain.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

const instanceColumns = `
	id, task_definition_id, org_id, personnel_id, author_id,
	description, deadline, status, created_at, completed_at, rating
`

func scanInstance(row interface {
	Scan(...any) error
}) (*domain.TaskInstance, error) {
	var inst domain.TaskInstance
	var statusStr string
	err := row.Scan(
		&inst.ID, &inst.DefinitionID, &inst.OrgID, &inst.PersonnelID, &inst.AuthorID,
		&inst.Description, &inst.Deadline, &statusStr,
		&inst.CreatedAt, &inst.CompletedAt, &inst.Rating,
	)
	if err != nil {
		return nil, err
	}
	inst.Status = domain.InstanceStatus(statusStr)
	return &inst, nil
}
