// Package httpserver exposes the auth, user and role services over HTTP.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sukryu/auth-service/internal/service"
)

// Cookie names for the two token classes.
const (
	AccessCookie  = "access-token"
	RefreshCookie = "refresh-token"
)

// Options tunes transport details.
type Options struct {
	// AccessTTL and RefreshTTL set cookie Max-Age and should equal the signing TTLs.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// CookieSecure marks auth cookies Secure.
	CookieSecure bool
}

// Server wires services into HTTP handlers.
type Server struct {
	auth  service.AuthService
	users service.UserService
	roles service.RoleService
	opts  Options
	log   *zap.Logger
}

// New constructs an HTTP server with injected services.
func New(auth service.AuthService, users service.UserService, roles service.RoleService, opts Options, log *zap.Logger) *Server {
	return &Server{auth: auth, users: users, roles: roles, opts: opts, log: log.Named("http")}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, RequestID, Logging(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, "ok", nil)
	})

	authed := RequireAuth(s.auth, s.log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)
			r.Post("/refresh-token", s.refresh)

			r.Group(func(r chi.Router) {
				r.Use(authed)
				r.Get("/profile", s.profile)
				r.Patch("/update-profile", s.updateProfile)
				r.Delete("/delete-account", s.deleteAccount)
				r.Post("/revoke/access-token", s.revokeAccess)
				r.Post("/revoke/refresh-token", s.revokeRefresh)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authed)
			r.Get("/pagination", s.listUsers)
			r.Get("/{id}", s.getUser)
			r.Patch("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
			r.Post("/{id}/roles", s.assignRole)
		})

		r.Route("/roles", func(r chi.Router) {
			r.Use(authed)
			r.Post("/", s.createRole)
			r.Get("/", s.listRoles)
			r.Get("/{id}", s.getRole)
			r.Patch("/{id}", s.updateRole)
			r.Delete("/{id}", s.deleteRole)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, "route not found", nil)
	})
	return r
}

func (s *Server) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *Server) setAccessCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, s.cookie(AccessCookie, tok, s.opts.AccessTTL))
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, s.cookie(RefreshCookie, tok, s.opts.RefreshTTL))
}

// clearCookie expires name on the client.
func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	c := s.cookie(name, "", 0)
	c.MaxAge = -1
	http.SetCookie(w, c)
}
