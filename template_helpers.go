package accounts

import (
	"github.com/goliatone/go-router"
)

// TemplateUserKey is the global template variable holding the resolved user.
var TemplateUserKey = LocalsUserKey

// TemplateHelpers returns helper functions and data for template engines
// that accept a global data map. Role checks take the viewer's role in the
// account being rendered, since roles are scoped per membership rather than
// per user.
//
// In templates:
//
//	{% if is_authenticated(current_user) %}
//	{% if is_guest(current_user) %}
//	{% if can_manage(role) %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticatedUser,
		"is_guest":         isGuestUser,
		"has_role":         hasRole,
		"is_at_least":      RoleIsAtLeast,
		"can_read":         RoleCanRead,
		"can_edit":         RoleCanEdit,
		"can_manage":       RoleCanManage,

		// Role constants for easy template access
		"roles": map[string]string{
			"read_only": RoleReadOnly,
			"member":    RoleMember,
			"admin":     RoleAdmin,
		},
	}
}

// TemplateHelpersWithUser returns template helpers with a specific user set
// as current_user.
func TemplateHelpersWithUser(user *User) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateUserKey] = user
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with the current user
// extracted from the router context, as stored there by RequestIdentity.
// Pass userKey to override the default locals key.
func TemplateHelpersWithRouter(c router.Context, userKey string) map[string]any {
	helpers := TemplateHelpers()

	if user, ok := GetTemplateUser(c, userKey); ok {
		helpers[TemplateUserKey] = user
	}

	return helpers
}

// GetTemplateUser extracts the resolved user from the router context.
func GetTemplateUser(c router.Context, userKey string) (*User, bool) {
	if userKey == "" {
		userKey = LocalsUserKey
	}

	user, ok := c.Locals(userKey).(*User)
	if !ok || user == nil {
		return nil, false
	}

	return user, true
}

func isAuthenticatedUser(user *User) bool {
	return user != nil && !user.IsGuest()
}

func isGuestUser(user *User) bool {
	return user == nil || user.IsGuest()
}

func hasRole(role Role, want Role) bool {
	return role == want
}
