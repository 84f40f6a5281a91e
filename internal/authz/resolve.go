package authz

import "context"

// GrantResolver decides whether any role held by a user grants a
// permission. This is a set-membership test: the first matching association
// wins and roles carry no precedence.
type GrantResolver struct {
	store Store
}

// NewGrantResolver constructs a GrantResolver over the credential store.
func NewGrantResolver(store Store) *GrantResolver {
	return &GrantResolver{store: store}
}

// IsGranted returns true if any of the user's roles is linked to the
// permission. A user with no roles is never granted anything.
func (r *GrantResolver) IsGranted(ctx context.Context, userID, permissionID string) (bool, error) {
	assignments, err := r.store.Roles(ctx).AssignmentsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	perms := r.store.Permissions(ctx)
	for _, a := range assignments {
		granted, err := perms.GrantExists(ctx, a.RoleID, permissionID)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}
