package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// AdminAuth guards the admin REST surface with a single static bearer
// token from PH_ADMIN_TOKEN. An empty token disables the surface outright:
// every guarded request is rejected until one is configured.
//
// The MCP surface never consults this middleware. Project API keys are
// useless here and the admin token is useless there.
type AdminAuth struct {
	token string
}

// NewAdminAuth creates the admin-token middleware.
func NewAdminAuth(token string) *AdminAuth {
	if token == "" {
		log.Warn().Msg("PH_ADMIN_TOKEN is not set; the admin API is disabled")
	}
	return &AdminAuth{token: token}
}

// Enabled reports whether a token is configured.
func (a *AdminAuth) Enabled() bool {
	return a.token != ""
}

// Middleware enforces the admin token on everything beneath it.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			respondAdminError(w, http.StatusForbidden, "admin_disabled",
				"The admin API is disabled. Set PH_ADMIN_TOKEN to enable it.")
			return
		}

		candidate := bearerToken(r)
		if candidate == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="producthelper-admin"`)
			respondAdminError(w, http.StatusUnauthorized, "unauthorized",
				"Admin token required. Set Authorization: Bearer <token>.")
			return
		}

		if subtle.ConstantTimeCompare([]byte(candidate), []byte(a.token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="producthelper-admin"`)
			respondAdminError(w, http.StatusUnauthorized, "unauthorized",
				"Invalid admin token.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func respondAdminError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
