package authz

import (
	"context"
	"errors"
	"strings"
	"time"

	"authgate.org/internal/obs"
)

const bearerPrefix = "Bearer "

// Engine composes token verification, path normalization, permission
// matching and grant resolution into a single allow/deny decision. Every
// failure in the chain degrades to deny: the engine is fail-closed and
// never lets an internal error escape to the caller.
type Engine struct {
	tokens     *TokenService
	store      Store
	normalizer *Normalizer
	matcher    *Matcher
	resolver   *GrantResolver
	tracker    *Tracker
}

// EngineOption configures Engine construction.
type EngineOption func(*Engine)

// WithNormalizer replaces the default path normalizer, e.g. to register
// additional segment matchers.
func WithNormalizer(n *Normalizer) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// WithTracker replaces the default usage tracker.
func WithTracker(t *Tracker) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

// NewEngine constructs the decision engine.
func NewEngine(tokens *TokenService, store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		tokens:     tokens,
		store:      store,
		normalizer: NewNormalizer(),
		matcher:    NewMatcher(store),
		resolver:   NewGrantResolver(store),
		tracker:    NewTracker(store),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalizer exposes the engine's path normalizer, shared with the metrics
// layer for label canonicalization.
func (e *Engine) Normalizer() *Normalizer { return e.normalizer }

// Authorize decides whether the bearer of the Authorization header may
// perform method on path. On allow, the matched permission's usage counter
// is incremented out-of-band; the increment never alters the decision nor
// blocks the caller.
func (e *Engine) Authorize(ctx context.Context, authHeader, path, method string) bool {
	token, err := extractBearerToken(authHeader)
	if err != nil {
		e.deny("missing_token", path, method, err)
		return false
	}

	userID, err := e.tokens.Verify(token)
	if err != nil {
		e.deny("token_invalid", path, method, err)
		return false
	}

	// The token is self-contained, but the subject may have been deleted
	// since issuance.
	user, err := e.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		e.deny("unknown_subject", path, method, err)
		return false
	}

	pattern := e.normalizer.Normalize(path)
	permission, err := e.matcher.Match(ctx, pattern, method)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.deny("unregistered_route", path, method, nil)
		} else {
			e.deny("match_failed", path, method, err)
		}
		return false
	}

	granted, err := e.resolver.IsGranted(ctx, user.ID, permission.ID)
	if err != nil {
		e.deny("resolve_failed", path, method, err)
		return false
	}
	if !granted {
		e.deny("no_grant", path, method, nil)
		return false
	}

	obs.IncDecision(true)
	e.tracker.Record(permission.ID)
	return true
}

func (e *Engine) deny(reason, path, method string, err error) {
	obs.IncDecision(false)
	entry := map[string]any{
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"level":  "info",
		"msg":    "authz_deny",
		"reason": reason,
		"path":   path,
		"method": method,
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	obs.Log(entry)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
