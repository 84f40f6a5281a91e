package authz_test

import (
	"context"
	"errors"
	"testing"

	"authgate.org/internal/authz"
	"authgate.org/internal/store/mem"
)

func newRBACService(t *testing.T) (*authz.RBACService, *mem.Store) {
	t.Helper()
	store := mem.New()
	svc, err := authz.NewRBACService(store, authz.NewNormalizer())
	if err != nil {
		t.Fatalf("rbac service: %v", err)
	}
	return svc, store
}

func TestCreateUserNormalizesEmail(t *testing.T) {
	svc, _ := newRBACService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, " Ada ", " Ada@Example.COM ", "s3cret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "s3cret" {
		t.Fatal("expected hashed password")
	}
	if _, err := svc.CreateUser(ctx, "Dup", "ada@example.com", "other"); !errors.Is(err, authz.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, "NoMail", "not-an-email", "pw"); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateRoleNormalizesName(t *testing.T) {
	svc, _ := newRBACService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "  Admin ", "full access")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if role.Name != "admin" {
		t.Fatalf("expected normalized name, got %q", role.Name)
	}
	if _, err := svc.CreateRole(ctx, "ADMIN", ""); !errors.Is(err, authz.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for case variant, got %v", err)
	}
}

func TestCreatePermissionCanonicalizesPattern(t *testing.T) {
	svc, _ := newRBACService(t)
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, "/api/users/42", "GET")
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if perm.URLPattern != "/api/users/?" {
		t.Fatalf("expected canonical pattern, got %q", perm.URLPattern)
	}

	// A literal id pattern and its canonical form are the same permission.
	if _, err := svc.CreatePermission(ctx, "/api/users/?", "GET"); !errors.Is(err, authz.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	// Same pattern, different method is distinct.
	if _, err := svc.CreatePermission(ctx, "/api/users/?", "DELETE"); err != nil {
		t.Fatalf("create permission with other method: %v", err)
	}

	if _, err := svc.CreatePermission(ctx, "no-slash", "GET"); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad pattern, got %v", err)
	}
	if _, err := svc.CreatePermission(ctx, "/x", "get"); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-canonical method, got %v", err)
	}
}

func TestAssignRoleIdempotent(t *testing.T) {
	svc, _ := newRBACService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "Ada", "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	role, err := svc.CreateRole(ctx, "admin", "")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	first, err := svc.AssignRole(ctx, user.ID, role.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	second, err := svc.AssignRole(ctx, user.ID, role.ID)
	if err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same association, got %s and %s", first.ID, second.ID)
	}

	assignments, err := svc.RolesForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("roles for user: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected one assignment, got %d", len(assignments))
	}
}

func TestMostUsedByRank(t *testing.T) {
	svc, store := newRBACService(t)
	ctx := context.Background()

	a, err := svc.CreatePermission(ctx, "/a", "GET")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.CreatePermission(ctx, "/b", "GET")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := svc.CreatePermission(ctx, "/c", "GET"); err != nil {
		t.Fatalf("create c: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Permissions(ctx).IncrementUsage(ctx, b.ID); err != nil {
			t.Fatalf("increment b: %v", err)
		}
	}
	if err := store.Permissions(ctx).IncrementUsage(ctx, a.ID); err != nil {
		t.Fatalf("increment a: %v", err)
	}

	ranked, err := svc.MostUsed(ctx)
	if err != nil {
		t.Fatalf("most used: %v", err)
	}
	if len(ranked) != 3 || ranked[0].ID != b.ID || ranked[1].ID != a.ID {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}

	// Out-of-range indices are skipped, not errors.
	selected, err := svc.MostUsedByRank(ctx, []int{0, 7, 2, -1})
	if err != nil {
		t.Fatalf("most used by rank: %v", err)
	}
	if len(selected) != 2 || selected[0].ID != b.ID {
		t.Fatalf("unexpected selection: %+v", selected)
	}
}
