package httpserver

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sukryu/auth-service/internal/model"
)

type userView struct {
	ID        uuid.UUID        `json:"id"`
	Email     string           `json:"email"`
	Username  string           `json:"username"`
	Roles     []model.RoleName `json:"roles"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toUserView(u *model.User) userView {
	rs := u.Roles
	if rs == nil {
		rs = []model.RoleName{}
	}
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Roles:     rs,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type roleView struct {
	ID        int64          `json:"id"`
	Name      model.RoleName `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	CreatedBy *uuid.UUID     `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID     `json:"updated_by,omitempty"`
}

func toRoleView(r *model.Role) roleView {
	return roleView{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		CreatedBy: r.CreatedBy,
		UpdatedBy: r.UpdatedBy,
	}
}

type tokensView struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func toTokensView(t model.Tokens) tokensView {
	return tokensView{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: t.RefreshExpiresAt,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Email    *string           `json:"email"`
	Username *string           `json:"username"`
	Password *string           `json:"password"`
	Roles    *[]model.RoleName `json:"roles"`
}

func (r updateUserRequest) patch() model.UserPatch {
	return model.UserPatch{Email: r.Email, Username: r.Username, Password: r.Password, Roles: r.Roles}
}

type roleRequest struct {
	Name model.RoleName `json:"name"`
}

type assignRoleRequest struct {
	Role model.RoleName `json:"role"`
}
