package rbac

import "time"

// BaseRole is the coarse tier tag carried by every role, independent of its
// fine-grained permissions.
type BaseRole string

const (
	BaseRoleAdmin BaseRole = "ADMIN"
	BaseRoleDept  BaseRole = "DEPT"
	BaseRoleUser  BaseRole = "USER"
)

// Valid reports whether the tag belongs to the closed base-role set.
func (b BaseRole) Valid() bool {
	switch b {
	case BaseRoleAdmin, BaseRoleDept, BaseRoleUser:
		return true
	}
	return false
}

// Logic selects how a set of required codes is evaluated against a held set.
type Logic string

const (
	// LogicAll requires every code in the required set to be held.
	LogicAll Logic = "AND"
	// LogicAny requires at least one code in the required set to be held.
	LogicAny Logic = "OR"
)

// Role represents a named bundle of permissions assignable to users.
type Role struct {
	ID        int64
	Name      string
	Code      string
	BaseRole  BaseRole
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Permission represents an atomic named capability.
type Permission struct {
	ID        int64
	Name      string
	Code      string
	SortOrder int32
	CreatedAt time.Time
	DeletedAt *time.Time
}

// RolePermission ties a permission to a role. Existence of the pair means
// "role grants permission".
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserRole links a user to a role. A user may hold several roles; the
// effective permission set is the union across all held roles.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}
