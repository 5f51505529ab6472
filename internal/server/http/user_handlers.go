package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/sukryu/auth-service/internal/errs"
)

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errs.Invalid("id", "Invalid user ID")
	}
	return id, nil
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, s.log, errs.Invalid("limit", "must be a number"))
			return
		}
		limit = n
	}
	page, err := s.users.List(r.Context(), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	views := make([]userView, 0, len(page.Users))
	for i := range page.Users {
		views = append(views, toUserView(&page.Users[i]))
	}
	data := map[string]any{"users": views}
	if page.NextCursor != "" {
		data["next_cursor"] = page.NextCursor
	}
	writeJSON(w, http.StatusOK, "Returns paginated users", data)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	u, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "Successfully fetched user", map[string]any{"user": toUserView(u)})
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req updateUserRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	actor, _ := ActorFromCtx(r.Context())
	u, err := s.auth.UpdateUser(r.Context(), actor, id, req.patch())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "Successfully updated user", map[string]any{"user": toUserView(u)})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	actor, _ := ActorFromCtx(r.Context())
	if err := s.auth.DeleteUser(r.Context(), actor, id, clientIP(r)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "User successfully deleted", nil)
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req assignRoleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	actor, _ := ActorFromCtx(r.Context())
	u, err := s.roles.AssignRole(r.Context(), actor, id, req.Role)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "Role successfully assigned", map[string]any{"user": toUserView(u)})
}
