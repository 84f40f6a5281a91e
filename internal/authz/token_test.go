package authz

import (
	"errors"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret-0123456789abcdef", opts...)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(t)
	user := &User{ID: "507f1f77bcf86cd799439011", Email: "a@example.com"}

	token, expiresAt, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	subject, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != user.ID {
		t.Fatalf("expected subject %q, got %q", user.ID, subject)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	clock := now
	svc := newTestTokenService(t,
		WithTokenTTL(time.Minute),
		WithClock(func() time.Time { return clock }),
	)

	token, _, err := svc.Issue(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if _, err := svc.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := newTestTokenService(t)
	verifier, err := NewTokenService("another-secret-entirely-here")
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}

	token, _, err := issuer.Issue(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature, got %v", err)
	}
}

func TestTokenMalformed(t *testing.T) {
	svc := newTestTokenService(t)
	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.Verify(raw); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("verify(%q): expected ErrTokenMalformed, got %v", raw, err)
		}
	}
}

func TestTokenVerifyIsPure(t *testing.T) {
	// Verification must not touch any store: a service constructed with
	// nothing but a secret can verify what it issued.
	svc := newTestTokenService(t)
	token, _, err := svc.Issue(&User{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
