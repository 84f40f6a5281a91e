package authz_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"authgate.org/internal/authz"
	"authgate.org/internal/store/mem"
)

type fixture struct {
	store  *mem.Store
	tokens *authz.TokenService
	engine *authz.Engine
	user   *authz.User
	role   *authz.Role
	perm   *authz.Permission
}

// newFixture builds a store holding one user with the admin role granted
// GET /api/users/?.
func newFixture(t *testing.T, opts ...authz.TokenOption) *fixture {
	t.Helper()
	ctx := context.Background()
	store := mem.New()

	tokens, err := authz.NewTokenService("engine-test-secret", opts...)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	user := &authz.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "x"}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	role := &authz.Role{Name: "admin"}
	if err := store.Roles(ctx).Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	perm := &authz.Permission{URLPattern: "/api/users/?", Method: "GET"}
	if err := store.Permissions(ctx).Create(ctx, perm); err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if _, err := store.Roles(ctx).Assign(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if _, err := store.Permissions(ctx).Grant(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("grant permission: %v", err)
	}

	return &fixture{
		store:  store,
		tokens: tokens,
		engine: authz.NewEngine(tokens, store),
		user:   user,
		role:   role,
		perm:   perm,
	}
}

func (f *fixture) bearer(t *testing.T) string {
	t.Helper()
	token, _, err := f.tokens.Issue(f.user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func TestAuthorizeAllows(t *testing.T) {
	f := newFixture(t)
	if !f.engine.Authorize(context.Background(), f.bearer(t), "/api/users/42", "GET") {
		t.Fatal("expected allow")
	}
}

func TestAuthorizeDenies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	header := f.bearer(t)

	cases := []struct {
		name   string
		header string
		path   string
		method string
	}{
		{"missing header", "", "/api/users/42", "GET"},
		{"wrong scheme", "Basic abc", "/api/users/42", "GET"},
		{"garbage token", "Bearer garbage", "/api/users/42", "GET"},
		{"unregistered route", header, "/api/orders/42", "GET"},
		{"wrong method", header, "/api/users/42", "DELETE"},
		{"non-canonical method", header, "/api/users/42", "get"},
	}
	for _, tc := range cases {
		if f.engine.Authorize(ctx, tc.header, tc.path, tc.method) {
			t.Errorf("%s: expected deny", tc.name)
		}
	}
}

func TestAuthorizeDeniesExpiredToken(t *testing.T) {
	now := time.Now()
	clock := now
	f := newFixture(t,
		authz.WithTokenTTL(time.Minute),
		authz.WithClock(func() time.Time { return clock }),
	)
	header := f.bearer(t)

	clock = now.Add(2 * time.Minute)
	if f.engine.Authorize(context.Background(), header, "/api/users/42", "GET") {
		t.Fatal("expected deny for expired token")
	}
}

func TestAuthorizeDeniesDeletedSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	header := f.bearer(t)

	// The token stays cryptographically valid, but the account is gone.
	if err := f.store.Users(ctx).Delete(ctx, f.user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if f.engine.Authorize(ctx, header, "/api/users/42", "GET") {
		t.Fatal("expected deny for deleted subject")
	}
}

func TestAuthorizeDeniesWithoutGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &authz.User{Name: "Bob", Email: "bob@example.com", PasswordHash: "x"}
	if err := f.store.Users(ctx).Create(ctx, other); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, _, err := f.tokens.Issue(other)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if f.engine.Authorize(ctx, "Bearer "+token, "/api/users/42", "GET") {
		t.Fatal("expected deny for user without roles")
	}
}

func TestAuthorizeIncrementsUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if !f.engine.Authorize(ctx, f.bearer(t), "/api/users/42", "GET") {
		t.Fatal("expected allow")
	}

	// The increment is dispatched out-of-band, so poll for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		perm, err := f.store.Permissions(ctx).Find(ctx, f.perm.ID)
		if err != nil {
			t.Fatalf("find permission: %v", err)
		}
		if perm.UsageCount == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("usage count = %d, want 1", perm.UsageCount)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUsageIncrementExactUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tracker := authz.NewTracker(f.store)

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := tracker.Increment(ctx, f.perm.ID); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	perm, err := f.store.Permissions(ctx).Find(ctx, f.perm.ID)
	if err != nil {
		t.Fatalf("find permission: %v", err)
	}
	if perm.UsageCount != n {
		t.Fatalf("usage count = %d, want %d", perm.UsageCount, n)
	}
}

func TestUsageIncrementFailureDoesNotAffectDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A failing increment surfaces as an error from the tracker alone; the
	// engine's decision path never sees it.
	if err := authz.NewTracker(f.store).Increment(ctx, "missing"); err == nil {
		t.Fatal("expected increment error for unknown permission")
	}
	if !f.engine.Authorize(ctx, f.bearer(t), "/api/users/42", "GET") {
		t.Fatal("expected allow")
	}
}
