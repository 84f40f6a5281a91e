package authz

import (
	"strings"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	n := NewNormalizer()
	cases := []struct {
		in   string
		want string
	}{
		{"/api/users/507f1f77bcf86cd799439011", "/api/users/?"},
		{"/api/users/42", "/api/users/?"},
		{"/api/users/42/roles/507f1f77bcf86cd799439011", "/api/users/?/roles/?"},
		{"/api/public/otp", "/api/public/otp"},
		{"/", "/"},
		{"", ""},
		// 23 hex chars is not an object id, and g is not a hex digit
		{"/api/users/507f1f77bcf86cd79943901", "/api/users/507f1f77bcf86cd79943901"},
		{"/api/users/g07f1f77bcf86cd799439011", "/api/users/g07f1f77bcf86cd799439011"},
		// mixed alphanumeric segments stay as-is
		{"/api/orders/ord-123", "/api/orders/ord-123"},
	}
	for _, tc := range cases {
		if got := n.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer()
	once := n.Normalize("/api/users/42/photos/507f1f77bcf86cd799439011")
	twice := n.Normalize(once)
	if once != twice {
		t.Fatalf("normalization is not idempotent: %q != %q", once, twice)
	}
}

func TestNormalizeCustomMatcher(t *testing.T) {
	n := NewNormalizer()
	n.Register(SegmentMatcher{
		Name:  "uuid",
		Match: func(s string) bool { return len(s) == 36 && strings.Count(s, "-") == 4 },
	})
	got := n.Normalize("/api/docs/123e4567-e89b-12d3-a456-426614174000")
	if got != "/api/docs/?" {
		t.Fatalf("expected custom matcher to apply, got %q", got)
	}
	// defaults still active
	if got := n.Normalize("/api/docs/42"); got != "/api/docs/?" {
		t.Fatalf("expected numeric default to apply, got %q", got)
	}
}

func TestCanonicalMethod(t *testing.T) {
	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"} {
		if !CanonicalMethod(m) {
			t.Errorf("expected %s to be canonical", m)
		}
	}
	for _, m := range []string{"get", "TRACE", "", "FOO"} {
		if CanonicalMethod(m) {
			t.Errorf("expected %s to be rejected", m)
		}
	}
}
