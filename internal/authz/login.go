package authz

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LoginService verifies password credentials and issues tokens for known
// users. Credential failures collapse to ErrUnauthorized without detail.
type LoginService struct {
	store  Store
	tokens *TokenService
}

// NewLoginService constructs a LoginService.
func NewLoginService(store Store, tokens *TokenService) *LoginService {
	return &LoginService{store: store, tokens: tokens}
}

// VerifyCredentials checks an email/password pair and returns the user on
// success. Unknown email, passwordless (federated) accounts, and wrong
// passwords are indistinguishable to the caller.
func (s *LoginService) VerifyCredentials(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if user.PasswordHash == "" {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// Login verifies credentials and issues a token in one step.
func (s *LoginService) Login(ctx context.Context, email, password string) (string, time.Time, *User, error) {
	user, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, user, nil
}

// UserExists reports whether an account is registered under the email.
func (s *LoginService) UserExists(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return false, ErrInvalidInput
	}
	_, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TokenForUser issues a token for an already-authenticated user id.
func (s *LoginService) TokenForUser(ctx context.Context, userID string) (string, time.Time, *User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, nil, ErrInvalidInput
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, user, nil
}
