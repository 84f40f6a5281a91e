package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"authgate.org/internal/audit"
	"authgate.org/internal/obs"
	"authgate.org/internal/otp"
)

type otpGenerateRequest struct {
	Identifier string `json:"identifier"`
	Subject    string `json:"subject,omitempty"`
}

type otpCodeRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

func (a *API) handleOTPGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.otp == nil {
		writeError(w, r, http.StatusServiceUnavailable, "otp store unavailable")
		return
	}
	var req otpGenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	code, err := a.otp.Generate(r.Context(), req.Identifier)
	if err != nil {
		handleOTPError(w, r, err)
		return
	}

	// Delivery is best effort: a generated code stays valid even when the
	// notification fails, the caller can retry generate.
	delivered := false
	if a.mail != nil {
		subject := strings.TrimSpace(req.Subject)
		if subject == "" {
			subject = "Your verification code"
		}
		content := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
			code, int(a.otp.TTL().Minutes()))
		if err := a.mail.Send(r.Context(), []string{req.Identifier}, subject, content, false); err != nil {
			obs.Log(map[string]any{
				"level": "warn",
				"msg":   "otp_delivery_failed",
				"error": err.Error(),
			})
		} else {
			delivered = true
		}
	}
	_ = audit.LogEvent(r.Context(), "otp.generated", map[string]any{
		"identifier": req.Identifier,
		"delivered":  delivered,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "generated",
		"delivered": delivered,
	})
}

func (a *API) handleOTPValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.otp == nil {
		writeError(w, r, http.StatusServiceUnavailable, "otp store unavailable")
		return
	}
	var req otpCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ok, err := a.otp.Validate(r.Context(), req.Identifier, req.Code)
	if err != nil {
		handleOTPError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "otp.validated", map[string]any{
		"identifier": req.Identifier,
		"valid":      ok,
	})
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "invalid code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (a *API) handleOTPSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.otp == nil {
		writeError(w, r, http.StatusServiceUnavailable, "otp store unavailable")
		return
	}
	var req otpCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.otp.Save(r.Context(), req.Identifier, req.Code); err != nil {
		handleOTPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved"})
}

// handleOTPResource serves GET (existence check) and DELETE for
// /api/public/otp/{identifier}. The stored code is never returned.
func (a *API) handleOTPResource(w http.ResponseWriter, r *http.Request) {
	if a.otp == nil {
		writeError(w, r, http.StatusServiceUnavailable, "otp store unavailable")
		return
	}
	identifier := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/public/otp/"), "/")
	if identifier == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		_, found, err := a.otp.Get(r.Context(), identifier)
		if err != nil {
			handleOTPError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exists": found})
	case http.MethodDelete:
		deleted, err := a.otp.Delete(r.Context(), identifier)
		if err != nil {
			handleOTPError(w, r, err)
			return
		}
		if !deleted {
			writeError(w, r, http.StatusNotFound, "no code stored")
			return
		}
		_ = audit.LogEvent(r.Context(), "otp.deleted", map[string]any{
			"identifier": identifier,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func handleOTPError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, otp.ErrInvalidIdentifier):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "otp operation failed")
	}
}
