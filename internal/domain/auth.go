package domain

// Role enumerates account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent || r == RoleAdmin
}

// IsStaff reports whether r is an agent or admin.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// Principal is the authenticated caller attached to every request.
type Principal struct {
	UserID     int64
	Role       Role
	IsVerified bool
}
