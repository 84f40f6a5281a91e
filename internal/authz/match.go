package authz

import (
	"context"
	"errors"
)

// canonicalMethods is the closed set of HTTP verbs permissions may be
// registered under. Comparison is case-sensitive; "get" never matches.
var canonicalMethods = map[string]struct{}{
	"GET":     {},
	"POST":    {},
	"PUT":     {},
	"PATCH":   {},
	"DELETE":  {},
	"HEAD":    {},
	"OPTIONS": {},
}

// CanonicalMethod reports whether method is one of the canonical verbs.
func CanonicalMethod(method string) bool {
	_, ok := canonicalMethods[method]
	return ok
}

// Matcher resolves a normalized (pattern, method) pair to a registered
// permission. A miss is ErrNotFound, never a fault: unregistered routes are
// a legitimate outcome the caller must treat as deny.
type Matcher struct {
	store Store
}

// NewMatcher constructs a Matcher over the credential store.
func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Match performs an exact lookup keyed by (pattern, method). No partial or
// prefix matching.
func (m *Matcher) Match(ctx context.Context, pattern, method string) (*Permission, error) {
	if pattern == "" || !CanonicalMethod(method) {
		return nil, ErrNotFound
	}
	perm, err := m.store.Permissions(ctx).FindByPattern(ctx, pattern, method)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return perm, nil
}
