package authz

import "context"

// Store describes the credential store the decision engine reads from.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Delete(ctx context.Context, id string) error

	// Assign is idempotent: assigning an already-held role returns the
	// existing association.
	Assign(ctx context.Context, userID, roleID string) (UserRole, error)
	Unassign(ctx context.Context, userID, roleID string) error
	AssignmentsForUser(ctx context.Context, userID string) ([]UserRole, error)
}

// PermissionStore manages the permission catalog and role-permission grants.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByPattern(ctx context.Context, urlPattern, method string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	ListByUsage(ctx context.Context) ([]*Permission, error)
	Delete(ctx context.Context, id string) error

	Grant(ctx context.Context, roleID, permissionID string) (RolePermission, error)
	Revoke(ctx context.Context, roleID, permissionID string) error
	GrantExists(ctx context.Context, roleID, permissionID string) (bool, error)
	ForRole(ctx context.Context, roleID string) ([]*Permission, error)

	// IncrementUsage bumps the usage counter by one. Implementations should
	// prefer a single atomic statement over read-modify-write.
	IncrementUsage(ctx context.Context, permissionID string) error
}
