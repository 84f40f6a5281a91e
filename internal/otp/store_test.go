package otp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache()
	store, err := NewStore(cache, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, cache
}

func TestGenerateAndValidateSingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code, err := store.Generate(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}

	ok, err := store.Validate(ctx, "User@Example.com", code)
	if err != nil || !ok {
		t.Fatalf("expected valid code, got %v %v", ok, err)
	}

	// A successful validation consumes the code.
	ok, err = store.Validate(ctx, "user@example.com", code)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if ok {
		t.Fatal("expected code to be single-use")
	}
}

func TestValidateWrongCode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code, err := store.Generate(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ok, err := store.Validate(ctx, "user@example.com", "000000")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok && code != "000000" {
		t.Fatal("expected wrong code to fail")
	}
	// The stored code survives a failed attempt.
	if code != "000000" {
		ok, err = store.Validate(ctx, "user@example.com", code)
		if err != nil || !ok {
			t.Fatalf("expected original code still valid, got %v %v", ok, err)
		}
	}
}

func TestValidateEmptyInputs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if ok, err := store.Validate(ctx, "", "123456"); err != nil || ok {
		t.Fatalf("expected false for empty identifier, got %v %v", ok, err)
	}
	if ok, err := store.Validate(ctx, "user@example.com", ""); err != nil || ok {
		t.Fatalf("expected false for empty code, got %v %v", ok, err)
	}
}

func TestCodeExpires(t *testing.T) {
	store, cache := newTestStore(t, WithTTL(5*time.Minute))
	ctx := context.Background()

	now := time.Now()
	cache.SetClock(func() time.Time { return now })

	code, err := store.Generate(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	now = now.Add(5*time.Minute + time.Second)
	ok, err := store.Validate(ctx, "user@example.com", code)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("expected expired code to fail")
	}
}

func TestGenerateOverwrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Generate(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := store.Generate(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if first != second {
		if ok, _ := store.Validate(ctx, "user@example.com", first); ok {
			t.Fatal("expected first code to be replaced")
		}
	}
	if ok, err := store.Validate(ctx, "user@example.com", second); err != nil || !ok {
		t.Fatalf("expected latest code valid, got %v %v", ok, err)
	}
}

func TestSaveAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "user@example.com", "424242"); err != nil {
		t.Fatalf("save: %v", err)
	}
	code, found, err := store.Get(ctx, "user@example.com")
	if err != nil || !found || code != "424242" {
		t.Fatalf("expected stored code, got %q %v %v", code, found, err)
	}

	deleted, err := store.Delete(ctx, "user@example.com")
	if err != nil || !deleted {
		t.Fatalf("expected delete to report true, got %v %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "user@example.com")
	if err != nil || deleted {
		t.Fatalf("expected second delete to report false, got %v %v", deleted, err)
	}
}

func TestIdentifierRequired(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "  "); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	if _, err := store.Delete(ctx, ""); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestStoreOptions(t *testing.T) {
	store, _ := newTestStore(t, WithCodeLength(8), WithTTL(time.Minute))
	code, err := store.Generate(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8-digit code, got %q", code)
	}
	if store.TTL() != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", store.TTL())
	}

	if _, err := NewStore(NewMemoryCache(), WithCodeLength(3)); err == nil {
		t.Fatal("expected error for short code length")
	}
	if _, err := NewStore(nil); err == nil {
		t.Fatal("expected error for nil cache")
	}
}
