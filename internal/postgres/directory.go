package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewboard/materializer/internal/domain"
)

// PersonnelDirectory reads the personnel directory. The Assignee Resolver
// queries it fresh on every run; results are never cached across runs.
type PersonnelDirectory interface {
	List(ctx context.Context, orgID string) ([]domain.Personnel, error)
	ListByRole(ctx context.Context, orgID string, role domain.Role) ([]domain.Personnel, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type personnelDirectory struct {
	pool *pgxpool.Pool
}

// NewPersonnelDirectory wraps a pgxpool with the PersonnelDirectory interface.
func NewPersonnelDirectory(pool *pgxpool.Pool) PersonnelDirectory {
	return &personnelDirectory{pool: pool}
}

func (d *personnelDirectory) List(ctx context.Context, orgID string) ([]domain.Personnel, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, org_id, name, role
		FROM personnel
		WHERE org_id = $1
		ORDER BY name ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list personnel for org %s: %w", orgID, err)
	}
	defer rows.Close()
	return scanPersonnel(rows)
}

func (d *personnelDirectory) ListByRole(ctx context.Context, orgID string, role domain.Role) ([]domain.Personnel, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, org_id, name, role
		FROM personnel
		WHERE org_id = $1 AND role = $2
		ORDER BY name ASC
	`, orgID, string(role))
	if err != nil {
		return nil, fmt.Errorf("list personnel by role %s for org %s: %w", role, orgID, err)
	}
	defer rows.Close()
	return scanPersonnel(rows)
}

func (d *personnelDirectory) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM personnel WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("personnel exists %s: %w", id, err)
	}
	return exists, nil
}

func scanPersonnel(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]domain.Personnel, error) {
	var people []domain.Personnel
	for rows.Next() {
		var p domain.Personnel
		var roleStr string
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &roleStr); err != nil {
			return nil, fmt.Errorf("scan personnel: %w", err)
		}
		role, err := domain.ParseRole(roleStr)
		if err != nil {
			return nil, fmt.Errorf("scan personnel %s: %w", p.ID, err)
		}
		p.Role = role
		people = append(people, p)
	}
	return people, rows.Err()
}
