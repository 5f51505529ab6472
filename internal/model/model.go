// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// RoleName is one of the fixed permission levels.
type RoleName string

// Role names as stored in the roles table.
const (
	RoleSuperAdmin RoleName = "SUPERADMIN"
	RoleAdmin      RoleName = "ADMIN"
	RoleUser       RoleName = "USER"
	RoleCompany    RoleName = "COMPANY"
)

// Valid reports whether r is one of the known role names.
func (r RoleName) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RoleCompany:
		return true
	}
	return false
}

// ParseRoleName normalizes s (case-insensitive) into a known role name.
func ParseRoleName(s string) (RoleName, bool) {
	r := RoleName(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// User is an account record. DeletedAt != nil marks a soft-deleted, inactive user.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string // bcrypt; never cached or serialized to clients
	Roles        []RoleName
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Active reports whether the user has not been soft-deleted.
func (u *User) Active() bool { return u.DeletedAt == nil }

// HasRole reports whether r is among the user's roles.
func (u *User) HasRole(r RoleName) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Role is a catalog row for a permission level.
type Role struct {
	ID        int64
	Name      RoleName
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	CreatedBy *uuid.UUID
	UpdatedBy *uuid.UUID
	DeletedBy *uuid.UUID
}

// TokenType distinguishes the two token classes.
type TokenType string

// Token classes, stored verbatim in revoked_tokens.token_type.
const (
	AccessToken  TokenType = "AccessToken"
	RefreshToken TokenType = "RefreshToken"
)

// RevokedToken records that a raw token value may no longer be used.
type RevokedToken struct {
	ID              uuid.UUID
	Token           string
	Type            TokenType
	Reason          string
	RevokedAt       time.Time
	RevokedByUserID *uuid.UUID
	RevokedFromIP   *string
}

// Tokens collects an issued access/refresh pair.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// NewUser is the registration / creation input.
type NewUser struct {
	Email    string
	Username string
	Password string
}

// UserPatch is a partial update; nil fields are left unchanged.
type UserPatch struct {
	Email    *string
	Username *string
	Password *string
	Roles    *[]RoleName
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.Username == nil && p.Password == nil && p.Roles == nil
}

// UserChanges is the storage-level form of UserPatch with the password already hashed.
type UserChanges struct {
	Email        *string
	Username     *string
	PasswordHash *string
	Roles        *[]RoleName
}

// UserCursor is a keyset position in the newest-first user listing.
type UserCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// UserPage is one page of active users; NextCursor is empty on the last page.
type UserPage struct {
	Users      []User
	NextCursor string
}
