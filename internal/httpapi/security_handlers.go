package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/authz"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type generateTokenRequest struct {
	UserID string `json:"user_id"`
}

type federatedLoginRequest struct {
	Token string `json:"token"`
}

type validationRequest struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *authz.User `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.login == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login service unavailable")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, user, err := a.login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(authz.ContextWithUser(r.Context(), user.ID), "security.login", map[string]any{
		"email":      user.Email,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (a *API) handleVerifyCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.login == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login service unavailable")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.login.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.login == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login service unavailable")
		return
	}
	var req generateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, user, err := a.login.TokenForUser(r.Context(), req.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(authz.ContextWithUser(r.Context(), user.ID), "security.token.issued", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// handlePermissionsValidation answers whether the caller's token grants the
// given (url, method). The deny branch carries no cause.
func (a *API) handlePermissionsValidation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.engine == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authorization engine unavailable")
		return
	}
	var req validationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	req.Method = strings.TrimSpace(req.Method)
	if req.URL == "" || req.Method == "" {
		writeError(w, r, http.StatusBadRequest, "url and method are required")
		return
	}
	if !a.engine.Authorize(r.Context(), r.Header.Get("Authorization"), req.URL, req.Method) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": true})
}

func (a *API) handleUserExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.login == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login service unavailable")
		return
	}
	email := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/public/security/user/"), "/")
	if email == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	exists, err := a.login.UserExists(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

func (a *API) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.federated == nil {
		writeError(w, r, http.StatusServiceUnavailable, "federated login unavailable")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/public/auth/"), "/")
	if name == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	provider, err := authz.ParseProvider(name)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown provider")
		return
	}
	var req federatedLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, user, err := a.federated.Login(r.Context(), provider, req.Token)
	if err != nil {
		if errors.Is(err, authz.ErrUnknownProvider) {
			writeError(w, r, http.StatusBadRequest, "unknown provider")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(authz.ContextWithUser(r.Context(), user.ID), "security.federated_login", map[string]any{
		"provider": provider.String(),
		"email":    user.Email,
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}
