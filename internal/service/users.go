package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sukryu/auth-service/internal/cache"
	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
	"github.com/sukryu/auth-service/internal/repository"
)

// Listing bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// UserService is the cache-aside user store. Reads by id go through the cache;
// every write invalidates the cached copy before touching the durable store.
type UserService interface {
	// GetByID returns an active user. The password hash is never populated.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail reads the store directly and returns the full active record.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Create registers a user with the default role.
	Create(ctx context.Context, in model.NewUser) (*model.User, error)
	// Update merges the present fields of patch.
	Update(ctx context.Context, id uuid.UUID, patch model.UserPatch) (*model.User, error)
	// Delete soft-deletes the user.
	Delete(ctx context.Context, id uuid.UUID) error
	// List pages active users newest first.
	List(ctx context.Context, cursor string, limit int) (model.UserPage, error)
	// Invalidate drops cached copies of the given users. Failures are logged only.
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// UserServiceImpl implements UserService over a UserRepository and a Cache.
type UserServiceImpl struct {
	repo   repository.UserRepository
	cache  cache.Cache
	hasher PasswordHasher
	ttl    time.Duration
	log    *zap.Logger
}

var _ UserService = (*UserServiceImpl)(nil)

// NewUserService constructs a UserService; ttl bounds how long cached users live.
func NewUserService(repo repository.UserRepository, c cache.Cache, hasher PasswordHasher, ttl time.Duration, log *zap.Logger) *UserServiceImpl {
	return &UserServiceImpl{repo: repo, cache: c, hasher: hasher, ttl: ttl, log: log.Named("users")}
}

func userKey(id uuid.UUID) string { return "user:" + id.String() }

// cachedUserVersion is bumped whenever cachedUser changes shape.
const cachedUserVersion = 1

// cachedUser is the cache serialization of a user. The password hash is never part of it.
type cachedUser struct {
	V         int              `json:"v"`
	ID        uuid.UUID        `json:"id"`
	Email     string           `json:"email"`
	Username  string           `json:"username"`
	Roles     []model.RoleName `json:"roles"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	DeletedAt *time.Time       `json:"deleted_at,omitempty"`
}

func encodeUser(u *model.User) (string, error) {
	b, err := json.Marshal(cachedUser{
		V:         cachedUserVersion,
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		DeletedAt: u.DeletedAt,
	})
	return string(b), err
}

func decodeUser(raw string) (*model.User, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var c cachedUser
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	if c.V != cachedUserVersion {
		return nil, fmt.Errorf("cached user schema v%d", c.V)
	}
	if c.ID == uuid.Nil || c.Email == "" {
		return nil, errors.New("cached user incomplete")
	}
	for _, r := range c.Roles {
		if !r.Valid() {
			return nil, fmt.Errorf("cached user role %q", r)
		}
	}
	return &model.User{
		ID:        c.ID,
		Email:     c.Email,
		Username:  c.Username,
		Roles:     c.Roles,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		DeletedAt: c.DeletedAt,
	}, nil
}

// public returns a copy of u without the password hash.
func public(u *model.User) *model.User {
	c := *u
	c.PasswordHash = ""
	c.Roles = append([]model.RoleName(nil), u.Roles...)
	return &c
}

func (s *UserServiceImpl) cacheGet(ctx context.Context, id uuid.UUID) *model.User {
	key := userKey(id)
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	u, err := decodeUser(raw)
	if err != nil || u.ID != id {
		s.log.Warn("cache entry undecodable, treating as miss", zap.String("key", key), zap.Error(err))
		s.cacheDel(ctx, id)
		return nil
	}
	return u
}

func (s *UserServiceImpl) cacheSet(ctx context.Context, u *model.User) {
	key := userKey(u.ID)
	raw, err := encodeUser(u)
	if err != nil {
		s.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *UserServiceImpl) cacheDel(ctx context.Context, id uuid.UUID) {
	key := userKey(id)
	if err := s.cache.Del(ctx, key); err != nil {
		s.log.Warn("cache del failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate implements UserService.
func (s *UserServiceImpl) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, userKey(id))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("cache invalidate failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// GetByID implements UserService.
func (s *UserServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if u := s.cacheGet(ctx, id); u != nil {
		if !u.Active() {
			return nil, errs.ErrAccountDeleted
		}
		return u, nil
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, errs.ErrAccountDeleted
	}
	s.cacheSet(ctx, u)
	return public(u), nil
}

// GetByEmail implements UserService.
func (s *UserServiceImpl) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, errs.ErrAccountDeleted
	}
	return u, nil
}

// Create implements UserService.
func (s *UserServiceImpl) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	if err := validateNewUser(in); err != nil {
		return nil, err
	}
	switch _, err := s.repo.GetByEmail(ctx, in.Email); {
	case err == nil:
		return nil, fmt.Errorf("email %q: %w", in.Email, errs.ErrAlreadyExists)
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{ID: id, Email: in.Email, Username: in.Username, PasswordHash: hash}
	if err := s.repo.Create(ctx, u, model.RoleUser); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, u)
	return public(u), nil
}

// Update implements UserService. The cached copy is dropped before the write
// and repopulated from the committed row afterwards.
func (s *UserServiceImpl) Update(ctx context.Context, id uuid.UUID, patch model.UserPatch) (*model.User, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.GetByID(ctx, id)
	}

	ch := model.UserChanges{Email: patch.Email, Username: patch.Username, Roles: patch.Roles}
	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		ch.PasswordHash = &hash
	}

	s.cacheDel(ctx, id)
	u, err := s.repo.Update(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, u)
	return public(u), nil
}

// Delete implements UserService.
func (s *UserServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	s.cacheDel(ctx, id)
	return s.repo.SoftDelete(ctx, id)
}

// List implements UserService.
func (s *UserServiceImpl) List(ctx context.Context, cursor string, limit int) (model.UserPage, error) {
	switch {
	case limit == 0:
		limit = DefaultPageSize
	case limit < 1 || limit > MaxPageSize:
		return model.UserPage{}, errs.Invalid("limit", "must be between 1 and 100")
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return model.UserPage{}, err
	}

	rows, err := s.repo.ListActive(ctx, after, limit+1)
	if err != nil {
		return model.UserPage{}, err
	}
	page := model.UserPage{Users: make([]model.User, 0, min(len(rows), limit))}
	for i := range rows {
		if i == limit {
			last := rows[limit-1]
			page.NextCursor = EncodeCursor(model.UserCursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Users = append(page.Users, *public(&rows[i]))
	}
	return page, nil
}

// EncodeCursor renders c as an opaque URL-safe string.
func EncodeCursor(c model.UserCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "," + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor; "" means the first page.
func DecodeCursor(s string) (*model.UserCursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Invalid("cursor", "malformed")
	}
	ts, id, ok := bytes.Cut(raw, []byte(","))
	if !ok {
		return nil, errs.Invalid("cursor", "malformed")
	}
	nanos, err := strconv.ParseInt(string(ts), 10, 64)
	if err != nil {
		return nil, errs.Invalid("cursor", "malformed")
	}
	uid, err := uuid.FromString(string(id))
	if err != nil {
		return nil, errs.Invalid("cursor", "malformed")
	}
	return &model.UserCursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: uid}, nil
}
