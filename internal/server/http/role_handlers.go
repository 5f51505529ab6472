package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sukryu/auth-service/internal/errs"
)

func roleIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Invalid("id", "Invalid role ID")
	}
	return id, nil
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	actor, _ := ActorFromCtx(r.Context())
	rl, err := s.roles.Create(r.Context(), actor, req.Name)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, "The role has been successfully created", map[string]any{"role": toRoleView(rl)})
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	all, err := s.roles.List(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	views := make([]roleView, 0, len(all))
	for i := range all {
		views = append(views, toRoleView(&all[i]))
	}
	writeJSON(w, http.StatusOK, "Return all roles", map[string]any{"roles": views})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	rl, err := s.roles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "Return the role", map[string]any{"role": toRoleView(rl)})
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	actor, _ := ActorFromCtx(r.Context())
	rl, err := s.roles.Update(r.Context(), actor, id, req.Name)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "The role has been successfully updated", map[string]any{"role": toRoleView(rl)})
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	actor, _ := ActorFromCtx(r.Context())
	if err := s.roles.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "The role has been successfully deleted", nil)
}
