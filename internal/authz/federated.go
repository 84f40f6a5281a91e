package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Provider identifies a supported federated identity provider. The set is
// closed: unknown providers are rejected with ErrUnknownProvider instead of
// falling through to a generic failure.
type Provider int

const (
	ProviderUnknown Provider = iota
	ProviderGoogle
	ProviderMicrosoft
)

// String returns the wire name of the provider.
func (p Provider) String() string {
	switch p {
	case ProviderGoogle:
		return "google"
	case ProviderMicrosoft:
		return "microsoft"
	default:
		return "unknown"
	}
}

// ParseProvider maps a wire name to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "google":
		return ProviderGoogle, nil
	case "microsoft":
		return ProviderMicrosoft, nil
	default:
		return ProviderUnknown, fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// FederatedIdentity is the verified subject a provider vouches for.
type FederatedIdentity struct {
	Email string
	Name  string
}

// FederatedVerifier validates a raw provider token and yields the verified
// identity. Implementations wrap the provider SDK; the engine treats them
// as a black box.
type FederatedVerifier interface {
	VerifyFederatedToken(ctx context.Context, raw string) (FederatedIdentity, error)
}

// FederatedLogin exchanges verified federated identities for local tokens,
// creating a passwordless user account on first login.
type FederatedLogin struct {
	store  Store
	tokens *TokenService

	mu        sync.Mutex
	verifiers map[Provider]FederatedVerifier
}

// NewFederatedLogin constructs a FederatedLogin with no verifiers
// registered.
func NewFederatedLogin(store Store, tokens *TokenService) *FederatedLogin {
	return &FederatedLogin{
		store:     store,
		tokens:    tokens,
		verifiers: make(map[Provider]FederatedVerifier),
	}
}

// RegisterVerifier installs the verifier for a provider. Registration
// happens once during bootstrap; re-registering a provider is an error.
func (f *FederatedLogin) RegisterVerifier(p Provider, v FederatedVerifier) error {
	if p == ProviderUnknown || v == nil {
		return ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.verifiers[p]; ok {
		return fmt.Errorf("%w: verifier for %s already registered", ErrAlreadyExists, p)
	}
	f.verifiers[p] = v
	return nil
}

// Login verifies the provider token, finds or creates the user, and issues
// a local bearer token.
func (f *FederatedLogin) Login(ctx context.Context, p Provider, rawToken string) (string, time.Time, *User, error) {
	f.mu.Lock()
	verifier, ok := f.verifiers[p]
	f.mu.Unlock()
	if !ok {
		return "", time.Time{}, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}

	identity, err := verifier.VerifyFederatedToken(ctx, rawToken)
	if err != nil {
		return "", time.Time{}, nil, ErrUnauthorized
	}
	email := strings.TrimSpace(strings.ToLower(identity.Email))
	if email == "" {
		return "", time.Time{}, nil, ErrUnauthorized
	}

	users := f.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil, err
		}
		user = &User{
			Name:  strings.TrimSpace(identity.Name),
			Email: email,
		}
		if err := users.Create(ctx, user); err != nil {
			return "", time.Time{}, nil, err
		}
	}

	token, expiresAt, err := f.tokens.Issue(user)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, user, nil
}
