package models

// Role is a portal role carried in the JWT "roles" claim
type Role string

const (
	RoleAdmin Role = "Uyenet_Admin"
	RoleStaff Role = "Uyenet_Staff"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// AuthenticatedUser is the identity extracted from a validated JWT
type AuthenticatedUser struct {
	IdpUserID string `json:"idpUserId"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	ClientID  string `json:"clientId"`
	OrgName   string `json:"orgName"`
	Roles     []Role `json:"roles"`
}

// HasRole reports whether the user carries the given role
func (u *AuthenticatedUser) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user has the admin role
func (u *AuthenticatedUser) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}
