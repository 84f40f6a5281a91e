package authz

import "time"

// User is an authenticated identity. PasswordHash is empty for accounts
// created through federated login.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role groups permissions. Name is unique after trim/lowercase normalization.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a registered (URL pattern, HTTP method) pair. At most one
// permission exists per pair. UsageCount is additive-only accounting and
// carries no access-control weight.
type Permission struct {
	ID         string    `json:"id"`
	URLPattern string    `json:"url_pattern"`
	Method     string    `json:"method"`
	UsageCount int64     `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserRole associates a user with a role. Duplicate associations are
// tolerated as idempotent grants.
type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission records that a role grants a permission.
type RolePermission struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}
