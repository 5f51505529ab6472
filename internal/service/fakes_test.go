package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/sukryu/auth-service/internal/audit"
	"github.com/sukryu/auth-service/internal/cache"
	pkgcrypto "github.com/sukryu/auth-service/internal/crypto"
	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/limiter"
	"github.com/sukryu/auth-service/internal/model"
	"github.com/sukryu/auth-service/internal/repository"
	"github.com/sukryu/auth-service/internal/token"
)

// journal records the order of side effects across fakes.
type journal struct {
	mu  sync.Mutex
	ops []string
}

func (j *journal) add(op string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.ops = append(j.ops, op)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ops...)
}

/************ users ************/

type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.User
	j    *journal

	createErr error
	getErr    error
	updateErr error
	getCalls  int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(j *journal) *fakeUsers { return &fakeUsers{byID: map[uuid.UUID]*model.User{}, j: j} }

func clone(u *model.User) *model.User {
	c := *u
	c.Roles = append([]model.RoleName(nil), u.Roles...)
	return &c
}

func (f *fakeUsers) put(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = clone(u)
}

func (f *fakeUsers) Create(_ context.Context, u *model.User, role model.RoleName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.j.add("repo.create")
	if f.createErr != nil {
		return f.createErr
	}
	for _, have := range f.byID {
		if have.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	u.Roles = []model.RoleName{role}
	f.byID[u.ID] = clone(u)
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	f.j.add("repo.get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(u), nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) Update(_ context.Context, id uuid.UUID, ch model.UserChanges) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.j.add("repo.update")
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.byID[id]
	if !ok || !u.Active() {
		return nil, errs.ErrNotFound
	}
	if ch.Email != nil {
		for oid, o := range f.byID {
			if oid != id && o.Email == *ch.Email {
				return nil, errs.ErrAlreadyExists
			}
		}
		u.Email = *ch.Email
	}
	if ch.Username != nil {
		u.Username = *ch.Username
	}
	if ch.PasswordHash != nil {
		u.PasswordHash = *ch.PasswordHash
	}
	if ch.Roles != nil {
		u.Roles = append([]model.RoleName(nil), *ch.Roles...)
	}
	u.UpdatedAt = time.Now()
	return clone(u), nil
}

func (f *fakeUsers) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.j.add("repo.delete")
	u, ok := f.byID[id]
	if !ok || !u.Active() {
		return errs.ErrNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}

func (f *fakeUsers) ListActive(_ context.Context, after *model.UserCursor, limit int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.User
	for _, u := range f.byID {
		if u.Active() {
			all = append(all, *clone(u))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})
	var out []model.User
	for _, u := range all {
		if after != nil {
			if u.CreatedAt.After(after.CreatedAt) ||
				(u.CreatedAt.Equal(after.CreatedAt) && u.ID.String() >= after.ID.String()) {
				continue
			}
		}
		if len(out) == limit {
			break
		}
		out = append(out, u)
	}
	return out, nil
}

/************ cache ************/

type fakeCache struct {
	mu   sync.Mutex
	m    map[string]string
	ttls map[string]time.Duration
	j    *journal

	getErr, setErr, delErr error
}

var _ cache.Cache = (*fakeCache)(nil)

func newFakeCache(j *journal) *fakeCache {
	return &fakeCache{m: map[string]string{}, ttls: map[string]time.Duration{}, j: j}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.j.add("cache.set")
	if c.setErr != nil {
		return c.setErr
	}
	c.m[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.j.add("cache.del")
	if c.delErr != nil {
		return c.delErr
	}
	for _, k := range keys {
		delete(c.m, k)
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[key]
	return ok
}

/************ roles ************/

type fakeRoles struct {
	byID   map[int64]*model.Role
	nextID int64
	users  *fakeUsers

	holdersCalls int
}

var _ repository.RoleRepository = (*fakeRoles)(nil)

func newFakeRoles() *fakeRoles {
	f := &fakeRoles{byID: map[int64]*model.Role{}}
	for _, n := range []model.RoleName{model.RoleSuperAdmin, model.RoleAdmin, model.RoleUser, model.RoleCompany} {
		_ = f.Create(context.Background(), &model.Role{Name: n})
	}
	return f
}

func (f *fakeRoles) Create(_ context.Context, r *model.Role) error {
	for _, have := range f.byID {
		if have.Name == r.Name && have.DeletedAt == nil {
			return errs.ErrAlreadyExists
		}
	}
	f.nextID++
	r.ID = f.nextID
	c := *r
	f.byID[r.ID] = &c
	return nil
}

func (f *fakeRoles) List(context.Context) ([]model.Role, error) {
	var out []model.Role
	for id := int64(1); id <= f.nextID; id++ {
		if r, ok := f.byID[id]; ok && r.DeletedAt == nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRoles) GetByID(_ context.Context, id int64) (*model.Role, error) {
	r, ok := f.byID[id]
	if !ok || r.DeletedAt != nil {
		return nil, errs.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeRoles) GetByName(_ context.Context, name model.RoleName) (*model.Role, error) {
	for _, r := range f.byID {
		if r.Name == name && r.DeletedAt == nil {
			c := *r
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeRoles) Rename(ctx context.Context, id int64, name model.RoleName, actor uuid.UUID) (*model.Role, error) {
	r, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if other, err := f.GetByName(ctx, name); err == nil && other.ID != id {
		return nil, errs.ErrAlreadyExists
	}
	r.Name, r.UpdatedBy = name, &actor
	f.byID[id] = r
	return r, nil
}

func (f *fakeRoles) SoftDelete(_ context.Context, id int64, actor uuid.UUID) error {
	r, ok := f.byID[id]
	if !ok || r.DeletedAt != nil {
		return errs.ErrNotFound
	}
	now := time.Now()
	r.DeletedAt, r.DeletedBy = &now, &actor
	return nil
}

func (f *fakeRoles) Holders(_ context.Context, id int64) ([]uuid.UUID, error) {
	f.holdersCalls++
	r, ok := f.byID[id]
	if !ok || f.users == nil {
		return nil, nil
	}
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	var out []uuid.UUID
	for uid, u := range f.users.byID {
		if u.Active() && u.HasRole(r.Name) {
			out = append(out, uid)
		}
	}
	return out, nil
}

/************ revocations ************/

type fakeRevoked struct {
	mu      sync.Mutex
	byToken map[string]model.RevokedToken
	inserts int
}

var _ repository.RevokedTokenRepository = (*fakeRevoked)(nil)

func (f *fakeRevoked) Insert(_ context.Context, recs ...model.RevokedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byToken == nil {
		f.byToken = map[string]model.RevokedToken{}
	}
	for _, r := range recs {
		if _, dup := f.byToken[r.Token]; dup {
			return errs.ErrAlreadyRevoked
		}
	}
	for _, r := range recs {
		f.byToken[r.Token] = r
	}
	f.inserts++
	return nil
}

func (f *fakeRevoked) Exists(_ context.Context, tok string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byToken[tok]
	return ok, nil
}

func (f *fakeRevoked) get(tok string) (model.RevokedToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byToken[tok]
	return r, ok
}

/************ limiter ************/

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

/************ audit ************/

type fakePublisher struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

/************ fixture ************/

type fixture struct {
	j       *journal
	repo    *fakeUsers
	cache   *fakeCache
	roles   *fakeRoles
	revoked *fakeRevoked
	lim     *fakeLimiter
	pub     *fakePublisher
	hasher  *pkgcrypto.PasswordHasher
	tokens  *token.Service

	users    *UserServiceImpl
	roleSvc  *RoleServiceImpl
	auth     *AuthServiceImpl
	cacheTTL time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	j := &journal{}
	f := &fixture{
		j:        j,
		repo:     newFakeUsers(j),
		cache:    newFakeCache(j),
		roles:    newFakeRoles(),
		revoked:  &fakeRevoked{},
		lim:      &fakeLimiter{allowOK: true},
		pub:      &fakePublisher{},
		cacheTTL: time.Hour,
	}
	h, err := pkgcrypto.NewPasswordHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	f.hasher = h
	ts, err := token.New(token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	}, f.revoked)
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	f.tokens = ts
	f.roles.users = f.repo
	f.users = NewUserService(f.repo, f.cache, h, f.cacheTTL, log)
	f.roleSvc = NewRoleService(f.roles, f.users, f.pub, log)
	f.auth = NewAuthService(f.users, ts, h, f.lim, f.pub, AuthOptions{RotationRevokesRefresh: true}, log)
	return f
}

const goodPassword = "Secret1!"

// seed stores an active user with the given roles and returns it.
func (f *fixture) seed(t *testing.T, email string, rs ...model.RoleName) *model.User {
	t.Helper()
	hash, err := f.hasher.Hash(goodPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(rs) == 0 {
		rs = []model.RoleName{model.RoleUser}
	}
	now := time.Now()
	u := &model.User{
		ID: uuid.Must(uuid.NewV4()), Email: email, Username: "user",
		PasswordHash: hash, Roles: rs, CreatedAt: now, UpdatedAt: now,
	}
	f.repo.put(u)
	return clone(u)
}
