// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/sukryu/auth-service/internal/model"
)

// UserRepository provides durable access to users and their role associations.
// Reads return soft-deleted rows as well; callers decide how to treat DeletedAt.
type UserRepository interface {
	// Create inserts u and associates it with role in one transaction.
	Create(ctx context.Context, u *model.User, role model.RoleName) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update applies ch to an active user in one transaction and returns the fresh row.
	Update(ctx context.Context, id uuid.UUID, ch model.UserChanges) (*model.User, error)
	// SoftDelete sets deleted_at on an active user.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// ListActive returns up to limit active users older than after (nil = from the newest).
	ListActive(ctx context.Context, after *model.UserCursor, limit int) ([]model.User, error)
}

// RoleRepository manages the role catalog.
type RoleRepository interface {
	// Create inserts a role row.
	Create(ctx context.Context, r *model.Role) error
	// List returns all active roles.
	List(ctx context.Context) ([]model.Role, error)
	// GetByID loads an active role.
	GetByID(ctx context.Context, id int64) (*model.Role, error)
	// GetByName loads an active role by name.
	GetByName(ctx context.Context, name model.RoleName) (*model.Role, error)
	// Rename changes an active role's name.
	Rename(ctx context.Context, id int64, name model.RoleName, actor uuid.UUID) (*model.Role, error)
	// SoftDelete marks an active role deleted.
	SoftDelete(ctx context.Context, id int64, actor uuid.UUID) error
	// Holders returns the IDs of active users associated with the role.
	Holders(ctx context.Context, id int64) ([]uuid.UUID, error)
}

// RevokedTokenRepository is the append-only revocation store.
type RevokedTokenRepository interface {
	// Insert stores all records in one transaction; a duplicate token value fails
	// with errs.ErrAlreadyRevoked and nothing is stored.
	Insert(ctx context.Context, recs ...model.RevokedToken) error
	// Exists reports whether token has been revoked.
	Exists(ctx context.Context, token string) (bool, error)
}
