package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userSelect = `
SELECT u.id, u.email, u.username, u.password_hash, u.created_at, u.updated_at, u.deleted_at,
       COALESCE(array_agg(r.name ORDER BY r.id) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id AND r.deleted_at IS NULL`

const assignRoles = `
INSERT INTO user_roles (user_id, role_id)
SELECT $1, id FROM roles WHERE name = ANY($2) AND deleted_at IS NULL`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u     model.User
		del   *time.Time
		names []string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &del, &names); err != nil {
		return nil, err
	}
	u.DeletedAt = del
	u.Roles = make([]model.RoleName, 0, len(names))
	for _, n := range names {
		u.Roles = append(u.Roles, model.RoleName(n))
	}
	return &u, nil
}

func roleStrings(rs []model.RoleName) []string {
	seen := make(map[model.RoleName]struct{}, len(rs))
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, string(r))
	}
	return out
}

// setRoles replaces the user's role set; every name must resolve to an active role.
func setRoles(ctx context.Context, tx pgx.Tx, id uuid.UUID, rs []model.RoleName, replace bool) error {
	if replace {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
	}
	names := roleStrings(rs)
	if len(names) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, assignRoles, id, names)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(names)) {
		return fmt.Errorf("role in %v: %w", names, errs.ErrNotFound)
	}
	return nil
}

// Create inserts a user row and its initial role in one transaction.
func (r *UserRepo) Create(ctx context.Context, u *model.User, role model.RoleName) error {
	const q = `
INSERT INTO users (id, email, username, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, q, u.ID, u.Email, u.Username, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("email %q: %w", u.Email, errs.ErrAlreadyExists)
			}
			return err
		}
		if err := setRoles(ctx, tx, u.ID, []model.RoleName{role}, false); err != nil {
			return err
		}
		u.Roles = []model.RoleName{role}
		return nil
	})
}

// GetByID selects a user by ID, including soft-deleted rows.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = userSelect + `
WHERE u.id = $1
GROUP BY u.id`
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return u, err
}

// GetByEmail selects a user by email, including soft-deleted rows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = userSelect + `
WHERE u.email = $1
GROUP BY u.id`
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return u, err
}

// Update applies the present fields of ch and, if given, replaces the role set.
// Both happen in one transaction; the returned user is read inside it.
func (r *UserRepo) Update(ctx context.Context, id uuid.UUID, ch model.UserChanges) (out *model.User, err error) {
	const upd = `
UPDATE users
SET email         = COALESCE($2::text, email),
    username      = COALESCE($3::text, username),
    password_hash = COALESCE($4::text, password_hash),
    updated_at    = now()
WHERE id = $1 AND deleted_at IS NULL`
	const sel = userSelect + `
WHERE u.id = $1
GROUP BY u.id`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upd, id, ch.Email, ch.Username, ch.PasswordHash)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("email: %w", errs.ErrAlreadyExists)
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		if ch.Roles != nil {
			if err := setRoles(ctx, tx, id, *ch.Roles, true); err != nil {
				return err
			}
		}
		out, err = scanUser(tx.QueryRow(ctx, sel, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SoftDelete marks an active user deleted; the row is retained.
func (r *UserRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE users
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListActive pages active users newest first using a (created_at, id) keyset.
func (r *UserRepo) ListActive(ctx context.Context, after *model.UserCursor, limit int) ([]model.User, error) {
	const first = userSelect + `
WHERE u.deleted_at IS NULL
GROUP BY u.id
ORDER BY u.created_at DESC, u.id DESC
LIMIT $1`
	const next = userSelect + `
WHERE u.deleted_at IS NULL AND (u.created_at, u.id) < ($2, $3)
GROUP BY u.id
ORDER BY u.created_at DESC, u.id DESC
LIMIT $1`

	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.db.Pool.Query(ctx, first, limit)
	} else {
		rows, err = r.db.Pool.Query(ctx, next, limit, after.CreatedAt, after.ID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
