package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/producthelper/producthelper/internal/auth"
	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/internal/ratelimit"
	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/contracts"
	pkgmw "github.com/producthelper/producthelper/pkg/middleware"
	"github.com/producthelper/producthelper/pkg/models"
)

// KeyAuth is the access-control tier in front of the MCP endpoint:
// bearer-key validation against the path project, then fixed-window rate
// limiting on the key prefix. Both run before any JSON-RPC parsing, and
// denials are plain transport responses (401, 429) carrying the stable
// taxonomy code, never protocol error envelopes.
type KeyAuth struct {
	auth    *auth.Service
	limiter *ratelimit.Limiter
	audit   store.AuditStore
}

// NewKeyAuth creates the MCP access-control middleware.
func NewKeyAuth(authSvc *auth.Service, limiter *ratelimit.Limiter, auditStore store.AuditStore) *KeyAuth {
	return &KeyAuth{auth: authSvc, limiter: limiter, audit: auditStore}
}

// Middleware guards /mcp/{projectID}. On success the request context
// carries the validated Identity and the project scope, and the response
// carries the post-admit rate limit headers.
func (ka *KeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
		if err != nil || projectID < 0 || projectID > models.MaxProjectID {
			respondNotFound(w, "Unknown project path.")
			return
		}

		key := bearerKey(r)
		if key == "" {
			ka.record(r.Context(), projectID, "anonymous", models.AuditAccessDenied, "missing bearer key")
			respondDenied(w, http.StatusUnauthorized, "unauthorized", mcp.ErrCodeUnauthorized,
				"API key required. Set Authorization: Bearer <key> or X-API-Key.")
			return
		}

		// Fail-closed validation runs before any counter is touched, so
		// garbage keys cannot consume a project's budget.
		rec, ok := ka.auth.Validate(r.Context(), key, projectID)
		if !ok {
			actor := "anonymous"
			if p, pok := auth.ExtractKeyPrefix(key); pok {
				actor = p
			}
			ka.record(r.Context(), projectID, actor, models.AuditAccessDenied, "invalid, revoked, or wrong-project key")
			respondDenied(w, http.StatusUnauthorized, "unauthorized", mcp.ErrCodeUnauthorized,
				"Invalid, revoked, or wrong-project API key.")
			return
		}

		// All keys of a project share the prefix and therefore the window.
		snap := ka.limiter.Check(rec.KeyPrefix)
		setRateHeaders(w, snap)
		if !snap.Allowed {
			ka.record(r.Context(), projectID, rec.KeyPrefix, models.AuditRateLimited, "window exhausted")
			respondDenied(w, http.StatusTooManyRequests, "rate_limited", mcp.ErrCodeRateLimited,
				"Rate limit exceeded for this project. Retry after the window resets.")
			return
		}

		identity := &contracts.Identity{
			KeyID:     rec.ID,
			ProjectID: rec.ProjectID,
			KeyPrefix: rec.KeyPrefix,
			Name:      rec.Name,
		}
		ctx := pkgmw.SetIdentity(r.Context(), identity)
		ctx = pkgmw.SetProjectID(ctx, rec.ProjectID)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("producthelper.project_id", rec.ProjectID),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// record appends a denied-access audit event. Best effort: a failed audit
// write never changes the response.
func (ka *KeyAuth) record(ctx context.Context, projectID int64, actor, action, detail string) {
	ev := &models.AuditEvent{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Actor:     actor,
		Action:    action,
		Resource:  "mcp",
		Detail:    detail,
	}
	if err := ka.audit.CreateAuditEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

func bearerKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func setRateHeaders(w http.ResponseWriter, snap ratelimit.Snapshot) {
	for k, v := range ratelimit.Headers(snap) {
		w.Header().Set(k, v)
	}
}

func respondDenied(w http.ResponseWriter, status int, label string, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="producthelper-mcp"`)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   label,
		"code":    code,
		"message": msg,
	})
}

func respondNotFound(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "not_found",
		"message": msg,
	})
}
