package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewboard/materializer/internal/domain"
)

// ExceptionRepository reads skip-date and leave-date overrides. Both are
// keyed on calendar dates; callers pass any time on the relevant day.
type ExceptionRepository interface {
	// SkipExists reports whether generation is suppressed for the whole
	// definition on the given date.
	SkipExists(ctx context.Context, definitionID string, date time.Time) (bool, error)
	// GetLeave returns the leave entry for one assignee on one date, or nil
	// when there is none.
	GetLeave(ctx context.Context, definitionID, personnelID string, date time.Time) (*domain.LeaveDate, error)
}

type exceptionRepository struct {
	pool *pgxpool.Pool
}

// NewExceptionRepository wraps a pgxpool with the ExceptionRepository interface.
func NewExceptionRepository(pool *pgxpool.Pool) ExceptionRepository {
	return &exceptionRepository{pool: pool}
}

func (r *exceptionRepository) SkipExists(ctx context.Context, definitionID string, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM skip_dates
			WHERE task_definition_id = $1 AND skip_date = $2
		)
	`, definitionID, dateArg(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("skip date lookup for definition %s: %w", definitionID, err)
	}
	return exists, nil
}

func (r *exceptionRepository) GetLeave(ctx context.Context, definitionID, personnelID string, date time.Time) (*domain.LeaveDate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT task_definition_id, personnel_id, leave_date, delegate_personnel_id
		FROM leave_dates
		WHERE task_definition_id = $1 AND personnel_id = $2 AND leave_date = $3
	`, definitionID, personnelID, dateArg(date))

	var leave domain.LeaveDate
	err := row.Scan(&leave.DefinitionID, &leave.PersonnelID, &leave.Date, &leave.DelegateID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("leave date lookup for %s/%s: %w", definitionID, personnelID, err)
	}
	return &leave, nil
}

// dateArg formats a time as the DATE column value for its calendar day.
// Formatting in the time's own location avoids the off-by-one a UTC
// conversion would introduce for runs in other timezones.
func dateArg(t time.Time) string {
	return t.Format("2006-01-02")
}
