// Package httpapi is the HTTP surface of authgate-api: health and info
// endpoints, the public security/otp routes, and the guarded admin routes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/authz"
	"authgate.org/internal/mail"
	"authgate.org/internal/obs"
	"authgate.org/internal/otp"
)

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Authorizer decides whether a request may pass the guard middleware.
// *authz.Engine satisfies it; tests substitute stubs.
type Authorizer interface {
	Authorize(ctx context.Context, authHeader, path, method string) bool
}

// Config wires the API's collaborators. Engine is required; the rest may
// be nil, in which case the matching routes answer 503.
type Config struct {
	Version   string
	Ready     ReadyProbe
	Engine    Authorizer
	Login     *authz.LoginService
	Federated *authz.FederatedLogin
	RBAC      *authz.RBACService
	OTP       *otp.Store
	Mail      *mail.Client
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	cfg       Config
	engine    Authorizer
	login     *authz.LoginService
	federated *authz.FederatedLogin
	rbac      *authz.RBACService
	otp       *otp.Store
	mail      *mail.Client
}

func New(cfg Config) *API {
	a := &API{
		mux:       http.NewServeMux(),
		cfg:       cfg,
		engine:    cfg.Engine,
		login:     cfg.Login,
		federated: cfg.Federated,
		rbac:      cfg.RBAC,
		otp:       cfg.OTP,
		mail:      cfg.Mail,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// public security surface
	a.mux.HandleFunc("/api/public/security/login", a.handleLogin)
	a.mux.HandleFunc("/api/public/security/verify-credentials", a.handleVerifyCredentials)
	a.mux.HandleFunc("/api/public/security/generate-token", a.handleGenerateToken)
	a.mux.HandleFunc("/api/public/security/permissions-validation", a.handlePermissionsValidation)
	a.mux.HandleFunc("/api/public/security/user/", a.handleUserExists)
	a.mux.HandleFunc("/api/public/auth/", a.handleFederatedLogin)

	// public OTP surface
	a.mux.HandleFunc("/api/public/otp/generate", a.handleOTPGenerate)
	a.mux.HandleFunc("/api/public/otp/validate", a.handleOTPValidate)
	a.mux.HandleFunc("/api/public/otp/save", a.handleOTPSave)
	a.mux.HandleFunc("/api/public/otp/", a.handleOTPResource)

	// guarded admin surface
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/permissions/", a.handlePermissionResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full handler: guard inside, metrics outside.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withGuard(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authgate-api",
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.cfg.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "authgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.cfg.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
