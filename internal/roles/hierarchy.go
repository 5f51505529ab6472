// Package roles implements the static role hierarchy used for authorization decisions.
//
// Decisions are pure functions of role names passed in by value; the package never
// reads users or roles from storage.
package roles

import "github.com/sukryu/auth-service/internal/model"

// precedence lists roles from most to least privileged.
var precedence = []model.RoleName{
	model.RoleSuperAdmin,
	model.RoleAdmin,
	model.RoleUser,
	model.RoleCompany,
}

// assignable maps each role to the roles strictly below it.
var assignable = map[model.RoleName]map[model.RoleName]struct{}{
	model.RoleSuperAdmin: {model.RoleAdmin: {}, model.RoleUser: {}, model.RoleCompany: {}},
	model.RoleAdmin:      {model.RoleUser: {}, model.RoleCompany: {}},
	model.RoleUser:       {},
	model.RoleCompany:    {},
}

// Highest returns the most privileged role in set, or User when set holds no known role.
func Highest(set []model.RoleName) model.RoleName {
	for _, r := range precedence {
		for _, have := range set {
			if have == r {
				return r
			}
		}
	}
	return model.RoleUser
}

// CanAssign reports whether an actor holding actorRoles may grant or revoke target.
func CanAssign(actorRoles []model.RoleName, target model.RoleName) bool {
	_, ok := assignable[Highest(actorRoles)][target]
	return ok
}

// CanManage reports whether the actor may mutate or delete a user holding targetRoles.
func CanManage(actorRoles, targetRoles []model.RoleName) bool {
	return CanAssign(actorRoles, Highest(targetRoles))
}

// IsSuperAdmin reports whether the highest role in set is SuperAdmin.
func IsSuperAdmin(set []model.RoleName) bool {
	return Highest(set) == model.RoleSuperAdmin
}

// Assignable returns the roles the given role may assign, in precedence order.
func Assignable(r model.RoleName) []model.RoleName {
	out := make([]model.RoleName, 0, len(assignable[r]))
	for _, p := range precedence {
		if _, ok := assignable[r][p]; ok {
			out = append(out, p)
		}
	}
	return out
}
