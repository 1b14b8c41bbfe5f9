package session

import "strings"

// Role is the account type chosen at registration.
type Role string

const (
	RoleFarmer Role = "FARMER"
	RoleUser   Role = "USER"
)

// ParseRole maps a backend role string to a Role. Anything other than a
// farmer is treated as a regular user.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleFarmer)) {
		return RoleFarmer
	}
	return RoleUser
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleUser
}

// UserInfo identifies the authenticated user. It is built once from a
// successful login response and never changed.
type UserInfo struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// IsFarmer reports whether the user registered as a farmer.
func (u UserInfo) IsFarmer() bool { return u.Role == RoleFarmer }

// Snapshot is a consistent copy of the store's contents.
type Snapshot struct {
	Token string
	User  UserInfo
}

// Redact shortens a bearer token for log output.
func Redact(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "…"
}
