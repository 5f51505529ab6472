package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
	"github.com/sukryu/auth-service/internal/service"
)

// stubAuth overrides only the calls a test needs; anything else panics on the nil embed.
type stubAuth struct {
	service.AuthService

	users map[string]*model.User // access token -> user

	register  func(model.NewUser) (*model.User, error)
	login     func(email, password, ip string) (model.Tokens, *model.User, error)
	logout    func(access, refresh, ip string) error
	revoke    func(actor *model.User, raw string, t model.TokenType) error
	refresh   func(raw string) (model.Tokens, *model.User, error)
	update    func(actor *model.User, id uuid.UUID, p model.UserPatch) (*model.User, error)
	deleteFn  func(actor *model.User, id uuid.UUID) error
}

func (s *stubAuth) Authenticate(_ context.Context, tok string) (*model.User, error) {
	if u, ok := s.users[tok]; ok {
		return u, nil
	}
	return nil, errs.ErrInvalidToken
}

func (s *stubAuth) Register(_ context.Context, in model.NewUser) (*model.User, error) {
	return s.register(in)
}

func (s *stubAuth) Login(_ context.Context, email, password, ip string) (model.Tokens, *model.User, error) {
	return s.login(email, password, ip)
}

func (s *stubAuth) Logout(_ context.Context, access, refresh, ip string) error {
	return s.logout(access, refresh, ip)
}

func (s *stubAuth) RevokeToken(_ context.Context, actor *model.User, raw string, t model.TokenType, _ string) error {
	return s.revoke(actor, raw, t)
}

func (s *stubAuth) Refresh(_ context.Context, raw, _ string) (model.Tokens, *model.User, error) {
	return s.refresh(raw)
}

func (s *stubAuth) Profile(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *stubAuth) UpdateUser(_ context.Context, actor *model.User, id uuid.UUID, p model.UserPatch) (*model.User, error) {
	return s.update(actor, id, p)
}

func (s *stubAuth) DeleteUser(_ context.Context, actor *model.User, id uuid.UUID, _ string) error {
	return s.deleteFn(actor, id)
}

type stubUsers struct {
	service.UserService
	list func(cursor string, limit int) (model.UserPage, error)
	get  func(id uuid.UUID) (*model.User, error)
}

func (s *stubUsers) List(_ context.Context, cursor string, limit int) (model.UserPage, error) {
	return s.list(cursor, limit)
}

func (s *stubUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return s.get(id)
}

type stubRoles struct {
	service.RoleService
	create func(actor *model.User, name model.RoleName) (*model.Role, error)
	get    func(id int64) (*model.Role, error)
	assign func(actor *model.User, id uuid.UUID, r model.RoleName) (*model.User, error)
}

func (s *stubRoles) Create(_ context.Context, actor *model.User, name model.RoleName) (*model.Role, error) {
	return s.create(actor, name)
}

func (s *stubRoles) Get(_ context.Context, id int64) (*model.Role, error) { return s.get(id) }

func (s *stubRoles) AssignRole(_ context.Context, actor *model.User, id uuid.UUID, r model.RoleName) (*model.User, error) {
	return s.assign(actor, id, r)
}

type harness struct {
	auth  *stubAuth
	users *stubUsers
	roles *stubRoles
	h     http.Handler

	alice *model.User
}

const aliceToken = "alice-access"

func newHarness(t *testing.T) *harness {
	t.Helper()
	alice := &model.User{
		ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Username: "alice",
		Roles: []model.RoleName{model.RoleUser}, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	h := &harness{
		auth:  &stubAuth{users: map[string]*model.User{aliceToken: alice}},
		users: &stubUsers{},
		roles: &stubRoles{},
		alice: alice,
	}
	srv := New(h.auth, h.users, h.roles, Options{AccessTTL: time.Hour, RefreshTTL: 7 * 24 * time.Hour}, zaptest.NewLogger(t))
	h.h = srv.Handler()
	return h
}

// do issues a request; a non-empty token is sent as the access-token cookie.
func (h *harness) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func httptestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(h *harness, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}
