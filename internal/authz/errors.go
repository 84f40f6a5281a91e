package authz

import "errors"

var (
	ErrNotFound      = errors.New("authz: not found")
	ErrAlreadyExists = errors.New("authz: already exists")
	ErrInvalidInput  = errors.New("authz: invalid input")
	ErrUnauthorized  = errors.New("authz: unauthorized")

	// Token verification failures. All of them collapse to a deny at the
	// decision boundary; the split exists for internal diagnostics only.
	ErrTokenExpired   = errors.New("authz: token expired")
	ErrTokenMalformed = errors.New("authz: token malformed")
	ErrTokenSignature = errors.New("authz: token signature invalid")

	ErrUnknownProvider = errors.New("authz: unknown identity provider")
)
