package httpserver

import (
	"fmt"
	"net/http"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	u, err := s.auth.Register(r.Context(), model.NewUser{Email: req.Email, Username: req.Username, Password: req.Password})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, "User successfully registered", map[string]any{"user": toUserView(u)})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	pair, u, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.setAccessCookie(w, pair.AccessToken)
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, "Login Success", map[string]any{
		"user":   toUserView(u),
		"tokens": toTokensView(pair),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	access := accessTokenFrom(r)
	if access == "" {
		writeError(w, r, s.log, fmt.Errorf("no access token: %w", errs.ErrUnauthorized))
		return
	}
	if err := s.auth.Logout(r.Context(), access, refreshTokenFrom(r), clientIP(r)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.clearCookie(w, AccessCookie)
	s.clearCookie(w, RefreshCookie)
	writeJSON(w, http.StatusOK, "Successfully logged out", nil)
}

func (s *Server) revokeAccess(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromCtx(r.Context())
	if err := s.auth.RevokeToken(r.Context(), actor, accessTokenFrom(r), model.AccessToken, clientIP(r)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.clearCookie(w, AccessCookie)
	writeJSON(w, http.StatusOK, "Successfully revoked AccessToken", nil)
}

func (s *Server) revokeRefresh(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromCtx(r.Context())
	if err := s.auth.RevokeToken(r.Context(), actor, refreshTokenFrom(r), model.RefreshToken, clientIP(r)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.clearCookie(w, RefreshCookie)
	writeJSON(w, http.StatusOK, "Successfully revoked RefreshToken", nil)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	tok := refreshTokenFrom(r)
	if tok == "" {
		writeError(w, r, s.log, errs.Invalid("refresh-token", "Refresh token not found"))
		return
	}
	pair, u, err := s.auth.Refresh(r.Context(), tok, clientIP(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.setAccessCookie(w, pair.AccessToken)
	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, "Token refreshed successfully", map[string]any{
		"user":   toUserView(u),
		"tokens": toTokensView(pair),
	})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromCtx(r.Context())
	u, err := s.auth.Profile(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "User profile fetched successfully", map[string]any{"user": toUserView(u)})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromCtx(r.Context())
	var req updateUserRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	u, err := s.auth.UpdateUser(r.Context(), actor, actor.ID, req.patch())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, "User successfully updated", map[string]any{"user": toUserView(u)})
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromCtx(r.Context())
	if err := s.auth.DeleteUser(r.Context(), actor, actor.ID, clientIP(r)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.clearCookie(w, AccessCookie)
	s.clearCookie(w, RefreshCookie)
	writeJSON(w, http.StatusOK, "User successfully deleted", nil)
}
