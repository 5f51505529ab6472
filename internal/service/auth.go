// Package service contains application services for authentication, users and roles.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sukryu/auth-service/internal/audit"
	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/limiter"
	"github.com/sukryu/auth-service/internal/model"
	"github.com/sukryu/auth-service/internal/roles"
	"github.com/sukryu/auth-service/internal/token"
)

// Revocation reasons recorded with each revoked token.
const (
	ReasonLogout   = "logout"
	ReasonRevoke   = "revoke"
	ReasonRotation = "rotation"
)

// TokenService is the token lifecycle used by AuthService.
type TokenService interface {
	IssuePair(p token.Payload) (model.Tokens, error)
	Validate(raw string, t model.TokenType) (*token.Claims, error)
	IsRevoked(ctx context.Context, raw string) (bool, error)
	Revoke(ctx context.Context, recs ...model.RevokedToken) error
}

// AuthService defines authentication and account operations.
type AuthService interface {
	// Register creates a new user with the default role.
	Register(ctx context.Context, in model.NewUser) (*model.User, error)
	// Login applies rate-limiting, verifies credentials and issues a token pair.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, *model.User, error)
	// Logout revokes the access token and, when it verifies, the refresh token in one step.
	Logout(ctx context.Context, accessToken, refreshToken, ip string) error
	// RevokeToken revokes a single token belonging to actor.
	RevokeToken(ctx context.Context, actor *model.User, raw string, t model.TokenType, ip string) error
	// Refresh exchanges a refresh token for a new pair.
	Refresh(ctx context.Context, refreshToken, ip string) (model.Tokens, *model.User, error)
	// Authenticate resolves the active user behind an unrevoked access token.
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
	// Profile returns the active user with roles.
	Profile(ctx context.Context, id uuid.UUID) (*model.User, error)
	// UpdateUser patches target on behalf of actor.
	UpdateUser(ctx context.Context, actor *model.User, targetID uuid.UUID, patch model.UserPatch) (*model.User, error)
	// DeleteUser soft-deletes target on behalf of actor.
	DeleteUser(ctx context.Context, actor *model.User, targetID uuid.UUID, ip string) error
}

// AuthOptions tunes AuthService behaviour.
type AuthOptions struct {
	// RotationRevokesRefresh revokes the presented refresh token on Refresh.
	RotationRevokesRefresh bool
}

// AuthServiceImpl implements AuthService.
type AuthServiceImpl struct {
	users  UserService
	tokens TokenService
	hasher PasswordHasher
	lim    limiter.Limiter
	audit  audit.Publisher
	opts   AuthOptions
	log    *zap.Logger
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users UserService, tokens TokenService, hasher PasswordHasher,
	lim limiter.Limiter, pub audit.Publisher, opts AuthOptions, log *zap.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users: users, tokens: tokens, hasher: hasher,
		lim: lim, audit: pub, opts: opts, log: log.Named("auth"),
	}
}

func payloadFor(u *model.User) token.Payload {
	top := roles.Highest(u.Roles)
	return token.Payload{
		UserID: u.ID,
		Email:  u.Email,
		Admin:  top == model.RoleSuperAdmin || top == model.RoleAdmin,
	}
}

func optIP(ip string) *string {
	if ip == "" {
		return nil
	}
	return &ip
}

// Register implements AuthService.
func (s *AuthServiceImpl) Register(ctx context.Context, in model.NewUser) (*model.User, error) {
	return s.users.Create(ctx, in)
}

// Login implements AuthService.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, *model.User, error) {
	if email == "" || password == "" {
		return model.Tokens{}, nil, errs.Invalid("credentials", "email and password are required")
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if !allowed {
		return model.Tokens{}, nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && s.hasher.Verify(password, u.PasswordHash):
	case err == nil:
		err = errs.ErrUnauthorized
		fallthrough
	case errors.Is(err, errs.ErrNotFound):
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr != nil {
			s.log.Warn("limiter failure record", zap.Error(ferr))
		} else if blocked {
			return model.Tokens{}, nil, errs.ErrRateLimited
		}
		return model.Tokens{}, nil, err
	default:
		return model.Tokens{}, nil, err
	}

	// Success: reset counters (best-effort).
	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset", zap.Error(err))
	}

	s.maybeRehash(ctx, u, password)

	pair, err := s.tokens.IssuePair(payloadFor(u))
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return pair, public(u), nil
}

type rehasher interface {
	NeedsRehash(hash string) bool
}

// maybeRehash upgrades a hash made with an old work factor. Best effort.
func (s *AuthServiceImpl) maybeRehash(ctx context.Context, u *model.User, password string) {
	rh, ok := s.hasher.(rehasher)
	if !ok || !rh.NeedsRehash(u.PasswordHash) {
		return
	}
	if _, err := s.users.Update(ctx, u.ID, model.UserPatch{Password: &password}); err != nil {
		s.log.Warn("password rehash", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
}

// claimsUser resolves the active user named by c.
func (s *AuthServiceImpl) claimsUser(ctx context.Context, c *token.Claims) (*model.User, error) {
	id, err := c.UserID()
	if err != nil {
		return nil, errs.ErrInvalidToken
	}
	return s.users.GetByID(ctx, id)
}

// Logout implements AuthService. Both tokens are revoked in one store transaction;
// a refresh token that does not verify, is already revoked or belongs to someone
// else is left alone. When the access token was revoked earlier, a live refresh
// token of the same subject is still revoked before ErrAlreadyRevoked is returned.
func (s *AuthServiceImpl) Logout(ctx context.Context, accessToken, refreshToken, ip string) error {
	claims, err := s.tokens.Validate(accessToken, model.AccessToken)
	if err != nil {
		return err
	}
	actor, err := s.claimsUser(ctx, claims)
	if err != nil {
		return err
	}
	accessRevoked, err := s.tokens.IsRevoked(ctx, accessToken)
	if err != nil {
		return err
	}

	var recs []model.RevokedToken
	if !accessRevoked {
		recs = append(recs, model.RevokedToken{
			Token: accessToken, Type: model.AccessToken, Reason: ReasonLogout,
			RevokedByUserID: &actor.ID, RevokedFromIP: optIP(ip),
		})
	}
	if refreshToken != "" {
		if rc, err := s.tokens.Validate(refreshToken, model.RefreshToken); err == nil && rc.Subject == claims.Subject {
			revoked, err := s.tokens.IsRevoked(ctx, refreshToken)
			if err != nil {
				return err
			}
			if !revoked {
				recs = append(recs, model.RevokedToken{
					Token: refreshToken, Type: model.RefreshToken, Reason: ReasonLogout,
					RevokedByUserID: &actor.ID, RevokedFromIP: optIP(ip),
				})
			}
		}
	}

	if len(recs) > 0 {
		if err := s.tokens.Revoke(ctx, recs...); err != nil {
			return err
		}
		for _, r := range recs {
			s.auditRevoke(ctx, actor.ID, r)
		}
	}
	if accessRevoked {
		return fmt.Errorf("%s: %w", model.AccessToken, errs.ErrAlreadyRevoked)
	}
	return nil
}

// RevokeToken implements AuthService.
func (s *AuthServiceImpl) RevokeToken(ctx context.Context, actor *model.User, raw string, t model.TokenType, ip string) error {
	if raw == "" {
		return errs.Invalid("token", "is required")
	}
	claims, err := s.tokens.Validate(raw, t)
	if err != nil {
		return err
	}
	if claims.Subject != actor.ID.String() {
		return fmt.Errorf("token belongs to another user: %w", errs.ErrForbidden)
	}
	rec := model.RevokedToken{
		Token: raw, Type: t, Reason: ReasonRevoke,
		RevokedByUserID: &actor.ID, RevokedFromIP: optIP(ip),
	}
	if err := s.tokens.Revoke(ctx, rec); err != nil {
		return err
	}
	s.auditRevoke(ctx, actor.ID, rec)
	return nil
}

// Refresh implements AuthService. With rotation enabled the presented token is
// revoked before the new pair is minted, so of two concurrent refreshes with
// the same token only one succeeds.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken, ip string) (model.Tokens, *model.User, error) {
	claims, err := s.tokens.Validate(refreshToken, model.RefreshToken)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	revoked, err := s.tokens.IsRevoked(ctx, refreshToken)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if revoked {
		return model.Tokens{}, nil, errs.ErrInvalidToken
	}
	u, err := s.claimsUser(ctx, claims)
	if err != nil {
		return model.Tokens{}, nil, err
	}

	// Mint first so a signing failure leaves the presented token usable.
	pair, err := s.tokens.IssuePair(payloadFor(u))
	if err != nil {
		return model.Tokens{}, nil, err
	}

	if s.opts.RotationRevokesRefresh {
		rec := model.RevokedToken{
			Token: refreshToken, Type: model.RefreshToken, Reason: ReasonRotation,
			RevokedByUserID: &u.ID, RevokedFromIP: optIP(ip),
		}
		if err := s.tokens.Revoke(ctx, rec); err != nil {
			if errors.Is(err, errs.ErrAlreadyRevoked) {
				return model.Tokens{}, nil, errs.ErrInvalidToken
			}
			return model.Tokens{}, nil, err
		}
	}
	return pair, u, nil
}

// Authenticate implements AuthService. Any failure to resolve an active
// user is reported as an invalid token.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.tokens.Validate(accessToken, model.AccessToken)
	if err != nil {
		return nil, err
	}
	revoked, err := s.tokens.IsRevoked(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errs.ErrInvalidToken
	}
	u, err := s.claimsUser(ctx, claims)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrInvalidToken
	}
	return u, err
}

// Profile implements AuthService.
func (s *AuthServiceImpl) Profile(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// authorizeOn loads target and checks that actor may act on it.
func (s *AuthServiceImpl) authorizeOn(ctx context.Context, actor *model.User, targetID uuid.UUID) (*model.User, error) {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if actor.ID != target.ID && !roles.CanManage(actor.Roles, target.Roles) {
		return nil, fmt.Errorf("%s may not manage %s: %w",
			roles.Highest(actor.Roles), roles.Highest(target.Roles), errs.ErrForbidden)
	}
	return target, nil
}

// UpdateUser implements AuthService. Changing the role set additionally
// requires that the actor may assign every role added or removed.
func (s *AuthServiceImpl) UpdateUser(ctx context.Context, actor *model.User, targetID uuid.UUID, patch model.UserPatch) (*model.User, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	target, err := s.authorizeOn(ctx, actor, targetID)
	if err != nil {
		return nil, err
	}
	if patch.Roles != nil {
		for _, r := range roleDiff(target.Roles, *patch.Roles) {
			if !roles.CanAssign(actor.Roles, r) {
				return nil, fmt.Errorf("%s may not assign %s: %w", roles.Highest(actor.Roles), r, errs.ErrForbidden)
			}
		}
	}
	return s.users.Update(ctx, target.ID, patch)
}

// DeleteUser implements AuthService.
func (s *AuthServiceImpl) DeleteUser(ctx context.Context, actor *model.User, targetID uuid.UUID, ip string) error {
	target, err := s.authorizeOn(ctx, actor, targetID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, target.ID); err != nil {
		return err
	}
	publish(ctx, s.audit, s.log, audit.Event{
		Kind:    audit.UserDeleted,
		ActorID: &actor.ID,
		Subject: target.ID.String(),
		IP:      ip,
		At:      time.Now().UTC(),
	})
	return nil
}

func (s *AuthServiceImpl) auditRevoke(ctx context.Context, actor uuid.UUID, r model.RevokedToken) {
	ev := audit.Event{
		Kind:    audit.TokenRevoked,
		ActorID: &actor,
		Subject: string(r.Type),
		Detail:  r.Reason,
		At:      time.Now().UTC(),
	}
	if r.RevokedFromIP != nil {
		ev.IP = *r.RevokedFromIP
	}
	publish(ctx, s.audit, s.log, ev)
}

// roleDiff returns the roles present in exactly one of a and b.
func roleDiff(a, b []model.RoleName) []model.RoleName {
	in := func(set []model.RoleName, r model.RoleName) bool {
		for _, x := range set {
			if x == r {
				return true
			}
		}
		return false
	}
	var out []model.RoleName
	for _, r := range a {
		if !in(b, r) {
			out = append(out, r)
		}
	}
	for _, r := range b {
		if !in(a, r) && !in(out, r) {
			out = append(out, r)
		}
	}
	return out
}
