// Package otp issues and validates short-lived one-time codes kept in a
// volatile key-value store. Codes are single-use: a successful validation
// deletes the entry atomically, and expiry is enforced by the store's own
// time-to-live rather than application timestamp comparison.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"
)

const (
	keyPrefix = "otp:"

	defaultCodeLength = 6
	defaultTTL        = 5 * time.Minute
)

var ErrInvalidIdentifier = errors.New("otp: identifier is required")

// Cache is the volatile KV backing the store. Implementations must make
// CompareAndDelete atomic: a validation racing an expiry or a duplicate
// validation on the same key must not both succeed.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// Store issues, validates and invalidates one-time codes.
type Store struct {
	cache      Cache
	codeLength int
	ttl        time.Duration
}

// Option configures Store behavior.
type Option func(*Store) error

// WithCodeLength sets the number of digits in generated codes.
func WithCodeLength(n int) Option {
	return func(s *Store) error {
		if n < 4 || n > 10 {
			return errors.New("otp: code length must be between 4 and 10")
		}
		s.codeLength = n
		return nil
	}
}

// WithTTL sets the code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) error {
		if ttl <= 0 {
			return errors.New("otp: ttl must be greater than zero")
		}
		s.ttl = ttl
		return nil
	}
}

// NewStore constructs a Store over the given cache.
func NewStore(cache Cache, opts ...Option) (*Store, error) {
	if cache == nil {
		return nil, errors.New("otp: cache is required")
	}
	s := &Store{cache: cache, codeLength: defaultCodeLength, ttl: defaultTTL}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Generate produces a random numeric code and stores it keyed by the
// identifier, overwriting any prior active code. At most one code is
// active per identifier.
func (s *Store) Generate(ctx context.Context, identifier string) (string, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return "", ErrInvalidIdentifier
	}
	code, err := randomCode(s.codeLength)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, keyPrefix+identifier, code, s.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Save stores a caller-provided code, overwriting any active one.
func (s *Store) Save(ctx context.Context, identifier, code string) error {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("otp: code is required")
	}
	return s.cache.Set(ctx, keyPrefix+identifier, code, s.ttl)
}

// Get returns the active code for the identifier, if any. Intended for the
// service-to-service retrieval endpoint, not for validation.
func (s *Store) Get(ctx context.Context, identifier string) (string, bool, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return "", false, ErrInvalidIdentifier
	}
	return s.cache.Get(ctx, keyPrefix+identifier)
}

// Validate reports whether a stored, unexpired code exactly matches. A
// successful validation consumes the entry: a repeated submission of the
// same code fails.
func (s *Store) Validate(ctx context.Context, identifier, code string) (bool, error) {
	identifier = normalizeIdentifier(identifier)
	code = strings.TrimSpace(code)
	if identifier == "" || code == "" {
		return false, nil
	}
	return s.cache.CompareAndDelete(ctx, keyPrefix+identifier, code)
}

// Delete discards any active code for the identifier and reports whether
// one existed.
func (s *Store) Delete(ctx context.Context, identifier string) (bool, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return false, ErrInvalidIdentifier
	}
	return s.cache.Delete(ctx, keyPrefix+identifier)
}

// TTL reports the configured code lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func normalizeIdentifier(identifier string) string {
	return strings.TrimSpace(strings.ToLower(identifier))
}

// randomCode draws n digits from crypto/rand. The leading digit may be
// zero; codes are strings, not integers.
func randomCode(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
