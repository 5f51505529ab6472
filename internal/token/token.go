// Package token issues and verifies HS256 access/refresh tokens and records revocations.
//
// Access and refresh tokens are signed with different secrets. A token of one
// class never validates as the other.
package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
	"github.com/sukryu/auth-service/internal/repository"
)

// ClaimsVersion is the schema version stamped into every token.
const ClaimsVersion = 1

// leeway tolerates small clock skew between issuers and verifiers.
const leeway = 30 * time.Second

// Claims is the fixed token payload.
type Claims struct {
	Version int             `json:"ver"`
	Type    model.TokenType `json:"typ"`
	Email   string          `json:"email"`
	Admin   bool            `json:"admin"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) { return uuid.FromString(c.Subject) }

// Payload is what callers supply when minting a token.
type Payload struct {
	UserID uuid.UUID
	Email  string
	Admin  bool
}

// Config holds signing material and lifetimes for both classes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Service issues, validates and revokes tokens.
type Service struct {
	cfg     Config
	revoked repository.RevokedTokenRepository
	now     func() time.Time
}

// New validates cfg and constructs a Service.
func New(cfg Config, revoked repository.RevokedTokenRepository) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both signing secrets are required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	return &Service{cfg: cfg, revoked: revoked, now: time.Now}, nil
}

// AccessTTL returns the access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

func (s *Service) class(t model.TokenType) ([]byte, time.Duration, error) {
	switch t {
	case model.AccessToken:
		return s.cfg.AccessSecret, s.cfg.AccessTTL, nil
	case model.RefreshToken:
		return s.cfg.RefreshSecret, s.cfg.RefreshTTL, nil
	}
	return nil, 0, fmt.Errorf("unknown token type %q", t)
}

func (s *Service) generate(p Payload, t model.TokenType) (string, time.Time, error) {
	key, ttl, err := s.class(t)
	if err != nil {
		return "", time.Time{}, err
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Version: ClaimsVersion,
		Type:    t,
		Email:   p.Email,
		Admin:   p.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti.String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s: %w", t, err)
	}
	return signed, exp, nil
}

// GenerateAccess signs a short-lived access token.
func (s *Service) GenerateAccess(p Payload) (string, time.Time, error) {
	return s.generate(p, model.AccessToken)
}

// GenerateRefresh signs a long-lived refresh token.
func (s *Service) GenerateRefresh(p Payload) (string, time.Time, error) {
	return s.generate(p, model.RefreshToken)
}

// IssuePair mints a fresh access and refresh token for p.
func (s *Service) IssuePair(p Payload) (model.Tokens, error) {
	access, aexp, err := s.GenerateAccess(p)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, rexp, err := s.GenerateRefresh(p)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  aexp,
		RefreshExpiresAt: rexp,
	}, nil
}

// Validate verifies signature, expiry and schema of raw as a token of class t.
// Every failure is reported as errs.ErrInvalidToken.
func (s *Service) Validate(raw string, t model.TokenType) (*Claims, error) {
	key, _, err := s.class(t)
	if err != nil {
		return nil, errs.ErrInvalidToken
	}
	var claims Claims
	_, err = jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errs.ErrInvalidToken
	}
	if claims.Version != ClaimsVersion || claims.Type != t {
		return nil, errs.ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, errs.ErrInvalidToken
	}
	return &claims, nil
}

// IsRevoked reports whether raw has a revocation record.
func (s *Service) IsRevoked(ctx context.Context, raw string) (bool, error) {
	return s.revoked.Exists(ctx, raw)
}

// Revoke records recs atomically. A token that is already revoked fails with
// errs.ErrAlreadyRevoked. The lookup only short-circuits the common case; the
// store's uniqueness constraint settles concurrent calls.
func (s *Service) Revoke(ctx context.Context, recs ...model.RevokedToken) error {
	for _, r := range recs {
		if r.Token == "" {
			return errs.Invalid("token", "must not be empty")
		}
		if _, _, err := s.class(r.Type); err != nil {
			return errs.Invalid("token_type", err.Error())
		}
		revoked, err := s.revoked.Exists(ctx, r.Token)
		if err != nil {
			return fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return fmt.Errorf("%s: %w", r.Type, errs.ErrAlreadyRevoked)
		}
	}
	return s.revoked.Insert(ctx, recs...)
}
