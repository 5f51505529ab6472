package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
)

// RoleRepo implements RoleRepository using PostgreSQL.
type RoleRepo struct{ db *DB }

// NewRoleRepo constructs a role repository.
func NewRoleRepo(db *DB) *RoleRepo { return &RoleRepo{db: db} }

const roleCols = `id, name, created_at, updated_at, created_by, updated_by`

func scanRole(row scanner) (*model.Role, error) {
	var (
		rl   model.Role
		name string
	)
	if err := row.Scan(&rl.ID, &name, &rl.CreatedAt, &rl.UpdatedAt, &rl.CreatedBy, &rl.UpdatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	rl.Name = model.RoleName(name)
	return &rl, nil
}

// Create inserts a role row attributed to r.CreatedBy.
func (r *RoleRepo) Create(ctx context.Context, rl *model.Role) error {
	const q = `
INSERT INTO roles (name, created_by, updated_by)
VALUES ($1, $2, $2)
RETURNING id, created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, string(rl.Name), rl.CreatedBy).Scan(&rl.ID, &rl.CreatedAt, &rl.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("role %s: %w", rl.Name, errs.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}
	rl.UpdatedBy = rl.CreatedBy
	return nil
}

// List returns active roles ordered by id.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	const q = `SELECT ` + roleCols + ` FROM roles WHERE deleted_at IS NULL ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		rl, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rl)
	}
	return out, rows.Err()
}

// GetByID loads an active role.
func (r *RoleRepo) GetByID(ctx context.Context, id int64) (*model.Role, error) {
	const q = `SELECT ` + roleCols + ` FROM roles WHERE id = $1 AND deleted_at IS NULL`
	return scanRole(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByName loads an active role by name.
func (r *RoleRepo) GetByName(ctx context.Context, name model.RoleName) (*model.Role, error) {
	const q = `SELECT ` + roleCols + ` FROM roles WHERE name = $1 AND deleted_at IS NULL`
	return scanRole(r.db.Pool.QueryRow(ctx, q, string(name)))
}

// Rename changes the name of an active role.
func (r *RoleRepo) Rename(ctx context.Context, id int64, name model.RoleName, actor uuid.UUID) (*model.Role, error) {
	const q = `
UPDATE roles
SET name = $2, updated_by = $3, updated_at = now()
WHERE id = $1 AND deleted_at IS NULL
RETURNING ` + roleCols
	rl, err := scanRole(r.db.Pool.QueryRow(ctx, q, id, string(name), actor))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("role %s: %w", name, errs.ErrAlreadyExists)
	}
	return rl, err
}

// SoftDelete marks an active role deleted by actor.
func (r *RoleRepo) SoftDelete(ctx context.Context, id int64, actor uuid.UUID) error {
	const q = `
UPDATE roles
SET deleted_at = now(), deleted_by = $2, updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id, actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Holders returns the active users associated with role id.
func (r *RoleRepo) Holders(ctx context.Context, id int64) ([]uuid.UUID, error) {
	const q = `
SELECT ur.user_id
FROM user_roles ur
JOIN users u ON u.id = ur.user_id
WHERE ur.role_id = $1 AND u.deleted_at IS NULL`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}
