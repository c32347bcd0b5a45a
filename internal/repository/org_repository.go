package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ehs-handlers/internal/database"
	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
)

// OrgRepository reads the department tree and user roster.
type OrgRepository struct {
	db *database.DB
}

// NewOrgRepository creates a new OrgRepository.
func NewOrgRepository(db *database.DB) *OrgRepository {
	return &OrgRepository{db: db}
}

// Snapshot loads departments and active users for an entity in one read-only
// transaction so both halves come from the same point in time.
func (r *OrgRepository) Snapshot(ctx context.Context, entityID string) (*orggraph.Graph, error) {
	var (
		depts []orggraph.Department
		users []orggraph.User
	)
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if depts, err = r.listDepartments(ctx, tx, entityID); err != nil {
			return err
		}
		users, err = r.listUsers(ctx, tx, entityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orggraph.New(depts, users), nil
}

func (r *OrgRepository) listDepartments(ctx context.Context, tx pgx.Tx, entityID string) ([]orggraph.Department, error) {
	query := `
		SELECT id, name, COALESCE(parent_id, ''), COALESCE(manager_id, ''), level
		FROM org_departments
		WHERE entity_id = $1
		ORDER BY level ASC, sort_order ASC, name ASC
	`

	rows, err := tx.Query(ctx, query, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list departments")
	}
	defer rows.Close()

	var depts []orggraph.Department
	for rows.Next() {
		var d orggraph.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.ParentID, &d.ManagerID, &d.Level); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan department")
		}
		depts = append(depts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate departments")
	}
	return depts, nil
}

func (r *OrgRepository) listUsers(ctx context.Context, tx pgx.Tx, entityID string) ([]orggraph.User, error) {
	query := `
		SELECT id, name, COALESCE(department_id, ''), COALESCE(job_title, ''),
		       COALESCE(direct_manager_id, '')
		FROM org_users
		WHERE entity_id = $1 AND is_active = TRUE
		ORDER BY name ASC, id ASC
	`

	rows, err := tx.Query(ctx, query, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list users")
	}
	defer rows.Close()

	var users []orggraph.User
	for rows.Next() {
		var u orggraph.User
		if err := rows.Scan(&u.ID, &u.Name, &u.DepartmentID, &u.Role, &u.DirectManagerID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate users")
	}
	return users, nil
}
