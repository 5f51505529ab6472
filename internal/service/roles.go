package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sukryu/auth-service/internal/audit"
	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
	"github.com/sukryu/auth-service/internal/repository"
	"github.com/sukryu/auth-service/internal/roles"
)

// RoleService manages the role catalog and role grants.
type RoleService interface {
	// Create adds a catalog role. SuperAdmin only.
	Create(ctx context.Context, actor *model.User, name model.RoleName) (*model.Role, error)
	// List returns active roles.
	List(ctx context.Context) ([]model.Role, error)
	// Get returns one active role.
	Get(ctx context.Context, id int64) (*model.Role, error)
	// Update renames a role. SuperAdmin only.
	Update(ctx context.Context, actor *model.User, id int64, name model.RoleName) (*model.Role, error)
	// Delete soft-deletes a role. SuperAdmin only.
	Delete(ctx context.Context, actor *model.User, id int64) error
	// AssignRole grants role to the target user.
	AssignRole(ctx context.Context, actor *model.User, targetID uuid.UUID, role model.RoleName) (*model.User, error)
}

// RoleServiceImpl implements RoleService.
type RoleServiceImpl struct {
	roles repository.RoleRepository
	users UserService
	audit audit.Publisher
	log   *zap.Logger
}

var _ RoleService = (*RoleServiceImpl)(nil)

// NewRoleService constructs a RoleService.
func NewRoleService(rr repository.RoleRepository, users UserService, pub audit.Publisher, log *zap.Logger) *RoleServiceImpl {
	return &RoleServiceImpl{roles: rr, users: users, audit: pub, log: log.Named("roles")}
}

func requireSuperAdmin(actor *model.User) error {
	if actor == nil || !roles.IsSuperAdmin(actor.Roles) {
		return fmt.Errorf("only SUPERADMIN can manage roles: %w", errs.ErrForbidden)
	}
	return nil
}

func validRole(name model.RoleName) error {
	if !name.Valid() {
		return errs.Invalid("name", "must be one of SUPERADMIN, ADMIN, USER, COMPANY")
	}
	return nil
}

// Create implements RoleService.
func (s *RoleServiceImpl) Create(ctx context.Context, actor *model.User, name model.RoleName) (*model.Role, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	if err := validRole(name); err != nil {
		return nil, err
	}
	rl := &model.Role{Name: name, CreatedBy: &actor.ID}
	if err := s.roles.Create(ctx, rl); err != nil {
		return nil, err
	}
	return rl, nil
}

// List implements RoleService.
func (s *RoleServiceImpl) List(ctx context.Context) ([]model.Role, error) {
	return s.roles.List(ctx)
}

// Get implements RoleService.
func (s *RoleServiceImpl) Get(ctx context.Context, id int64) (*model.Role, error) {
	return s.roles.GetByID(ctx, id)
}

// Update implements RoleService.
func (s *RoleServiceImpl) Update(ctx context.Context, actor *model.User, id int64, name model.RoleName) (*model.Role, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	if err := validRole(name); err != nil {
		return nil, err
	}
	var rl *model.Role
	err := s.withHoldersInvalidated(ctx, id, func() (err error) {
		rl, err = s.roles.Rename(ctx, id, name, actor.ID)
		return err
	})
	return rl, err
}

// Delete implements RoleService.
func (s *RoleServiceImpl) Delete(ctx context.Context, actor *model.User, id int64) error {
	if err := requireSuperAdmin(actor); err != nil {
		return err
	}
	return s.withHoldersInvalidated(ctx, id, func() error {
		return s.roles.SoftDelete(ctx, id, actor.ID)
	})
}

// withHoldersInvalidated runs write, a change to catalog role id, with every
// holder's cached user dropped before and after it. The second pass covers
// reads that repopulated the cache while write was in flight.
func (s *RoleServiceImpl) withHoldersInvalidated(ctx context.Context, id int64, write func() error) error {
	before, err := s.roles.Holders(ctx, id)
	if err != nil {
		return err
	}
	s.users.Invalidate(ctx, before...)

	if err := write(); err != nil {
		return err
	}

	after, err := s.roles.Holders(ctx, id)
	if err != nil {
		s.log.Warn("role holders after write", zap.Int64("role_id", id), zap.Error(err))
		after = before
	}
	s.users.Invalidate(ctx, after...)
	return nil
}

// AssignRole implements RoleService. The actor's highest role must rank above
// role, also when granting to themself.
func (s *RoleServiceImpl) AssignRole(ctx context.Context, actor *model.User, targetID uuid.UUID, role model.RoleName) (*model.User, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if _, err := s.roles.GetByName(ctx, role); err != nil {
		return nil, fmt.Errorf("role %s: %w", role, err)
	}
	if !roles.CanAssign(actor.Roles, role) {
		return nil, fmt.Errorf("%s may not assign %s: %w", roles.Highest(actor.Roles), role, errs.ErrForbidden)
	}
	if target.HasRole(role) {
		return target, nil
	}

	next := append(append([]model.RoleName(nil), target.Roles...), role)
	u, err := s.users.Update(ctx, target.ID, model.UserPatch{Roles: &next})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.audit, s.log, audit.Event{
		Kind:    audit.UserRoleAssigned,
		ActorID: &actor.ID,
		Subject: target.ID.String(),
		Detail:  string(role),
		At:      time.Now().UTC(),
	})
	return u, nil
}

// BootstrapSuperAdmin grants SUPERADMIN to the registered user with email,
// bypassing the hierarchy check. It is an operator action run at startup and
// is a no-op when the user already holds the role.
func (s *RoleServiceImpl) BootstrapSuperAdmin(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.HasRole(model.RoleSuperAdmin) {
		return u, nil
	}
	if _, err := s.roles.GetByName(ctx, model.RoleSuperAdmin); err != nil {
		return nil, fmt.Errorf("role %s: %w", model.RoleSuperAdmin, err)
	}

	next := append(append([]model.RoleName(nil), u.Roles...), model.RoleSuperAdmin)
	u, err = s.users.Update(ctx, u.ID, model.UserPatch{Roles: &next})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.audit, s.log, audit.Event{
		Kind:    audit.UserRoleAssigned,
		Subject: u.ID.String(),
		Detail:  string(model.RoleSuperAdmin),
		At:      time.Now().UTC(),
	})
	return u, nil
}

// publish hands ev to pub and logs, rather than returns, a delivery failure.
func publish(ctx context.Context, pub audit.Publisher, log *zap.Logger, ev audit.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("audit publish failed", zap.String("kind", ev.Kind), zap.String("subject", ev.Subject), zap.Error(err))
	}
}
