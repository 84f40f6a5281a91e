package httpapi

import (
	"net/http"
	"strings"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
}

var publicPrefixes = []string{
	"/api/public/",
}

// withGuard fronts every non-public route with an authorization decision.
// A denied request gets a bare 403; the cause stays in the server log.
func (a *API) withGuard(next http.Handler) http.Handler {
	if a == nil || a.engine == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !a.engine.Authorize(r.Context(), r.Header.Get("Authorization"), r.URL.Path, r.Method) {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
