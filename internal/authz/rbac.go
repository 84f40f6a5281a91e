package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RBACService provides the management surface for users, roles,
// permissions and their associations. It normalizes input; persistence
// invariants (unique email, unique role name, one permission per
// pattern/method pair) are enforced by the store.
type RBACService struct {
	store      Store
	normalizer *Normalizer
}

// NewRBACService constructs the management service. The normalizer is used
// to canonicalize permission URL patterns on registration, so stored
// patterns always match what the engine produces at request time.
func NewRBACService(store Store, normalizer *Normalizer) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	return &RBACService{store: store, normalizer: normalizer}, nil
}

// CreateUser registers a password-holding user. The plaintext password is
// hashed immediately and never retained.
func (s *RBACService) CreateUser(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{Name: name, Email: email, PasswordHash: hash}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *RBACService) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

func (s *RBACService) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, id)
}

func (s *RBACService) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Delete(ctx, id)
}

// CreateRole registers a role. Names are case/whitespace-normalized so
// "Admin " and "admin" are the same role.
func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = NormalizeRoleName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *RBACService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

func (s *RBACService) GetRole(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Find(ctx, id)
}

func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Delete(ctx, id)
}

// CreatePermission registers a (URL pattern, method) pair. The pattern is
// canonicalized through the normalizer first, so registering a literal
// route like /api/users/42 lands as /api/users/?.
func (s *RBACService) CreatePermission(ctx context.Context, urlPattern, method string) (*Permission, error) {
	urlPattern = strings.TrimSpace(urlPattern)
	if urlPattern == "" || !strings.HasPrefix(urlPattern, "/") {
		return nil, fmt.Errorf("%w: url pattern must start with /", ErrInvalidInput)
	}
	if !CanonicalMethod(method) {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidInput, method)
	}
	perm := &Permission{URLPattern: s.normalizer.Normalize(urlPattern), Method: method}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

func (s *RBACService) GetPermission(ctx context.Context, id string) (*Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).Find(ctx, id)
}

func (s *RBACService) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).Delete(ctx, id)
}

// AssignRole grants a role to a user. Repeating the grant is idempotent.
func (s *RBACService) AssignRole(ctx context.Context, userID, roleID string) (UserRole, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRole{}, fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Assign(ctx, userID, roleID)
}

func (s *RBACService) RemoveRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Unassign(ctx, userID, roleID)
}

func (s *RBACService) RolesForUser(ctx context.Context, userID string) ([]UserRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).AssignmentsForUser(ctx, userID)
}

// GrantPermission links a role to a permission.
func (s *RBACService) GrantPermission(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return RolePermission{}, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).Grant(ctx, roleID, permissionID)
}

func (s *RBACService) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).Revoke(ctx, roleID, permissionID)
}

func (s *RBACService) PermissionsForRole(ctx context.Context, roleID string) ([]*Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).ForRole(ctx, roleID)
}

// MostUsed lists permissions ordered by usage count descending.
func (s *RBACService) MostUsed(ctx context.Context) ([]*Permission, error) {
	return s.store.Permissions(ctx).ListByUsage(ctx)
}

// MostUsedByRank returns the permissions at the given positions in the
// usage-descending ranking. Out-of-range indices are skipped, not errors.
func (s *RBACService) MostUsedByRank(ctx context.Context, indices []int) ([]*Permission, error) {
	ranked, err := s.store.Permissions(ctx).ListByUsage(ctx)
	if err != nil {
		return nil, err
	}
	selected := make([]*Permission, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(ranked) {
			continue
		}
		selected = append(selected, ranked[idx])
	}
	return selected, nil
}

// NormalizeRoleName applies the role natural-key normalization.
func NormalizeRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
