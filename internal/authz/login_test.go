package authz_test

import (
	"context"
	"errors"
	"testing"

	"authgate.org/internal/authz"
	"authgate.org/internal/store/mem"
)

func newLoginFixture(t *testing.T) (*authz.LoginService, *authz.User) {
	t.Helper()
	ctx := context.Background()
	store := mem.New()
	tokens, err := authz.NewTokenService("login-test-secret")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	hash, err := authz.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &authz.User{Name: "Ada", Email: "ada@example.com", PasswordHash: hash}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return authz.NewLoginService(store, tokens), user
}

func TestLoginSuccess(t *testing.T) {
	svc, user := newLoginFixture(t)
	token, expiresAt, got, err := svc.Login(context.Background(), "Ada@Example.com", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || expiresAt.IsZero() {
		t.Fatal("expected token and expiry")
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, got.ID)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newLoginFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ada@example.com", "nope"},
		{"unknown email", "ghost@example.com", "s3cret"},
		{"empty password", "ada@example.com", ""},
		{"empty email", "", "s3cret"},
	}
	for _, tc := range cases {
		if _, err := svc.VerifyCredentials(ctx, tc.email, tc.password); !errors.Is(err, authz.ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", tc.name, err)
		}
	}
}

func TestLoginRejectsFederatedAccount(t *testing.T) {
	ctx := context.Background()
	store := mem.New()
	tokens, err := authz.NewTokenService("login-test-secret")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	// No password hash: the account was created through federated login.
	user := &authz.User{Name: "Fed", Email: "fed@example.com"}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := authz.NewLoginService(store, tokens)
	if _, err := svc.VerifyCredentials(ctx, "fed@example.com", "anything"); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenForUser(t *testing.T) {
	svc, user := newLoginFixture(t)
	ctx := context.Background()

	token, _, got, err := svc.TokenForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("token for user: %v", err)
	}
	if token == "" || got.ID != user.ID {
		t.Fatal("expected token for known user")
	}
	if _, _, _, err := svc.TokenForUser(ctx, "missing"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserExists(t *testing.T) {
	svc, _ := newLoginFixture(t)
	ctx := context.Background()

	exists, err := svc.UserExists(ctx, "ADA@example.com")
	if err != nil || !exists {
		t.Fatalf("expected existing user, got %v %v", exists, err)
	}
	exists, err = svc.UserExists(ctx, "ghost@example.com")
	if err != nil || exists {
		t.Fatalf("expected no user, got %v %v", exists, err)
	}
	if _, err := svc.UserExists(ctx, "  "); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
