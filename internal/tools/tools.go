// Package tools ships the built-in MCP toolset of the Product Helper
// control plane: project overview, tech-stack lookup, and document
// CRUD plus search over the backing store.
//
// Every tool declares a JSON Schema for its arguments. The dispatcher
// rejects non-conforming calls before a handler runs, so handlers only
// see shape-valid input and return plain errors for domain failures
// (missing document, storage fault), which the dispatcher reports as
// tool-execution errors on the wire.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/middleware"
	"github.com/producthelper/producthelper/pkg/models"
)

// Service implements the built-in tool handlers over the document store.
type Service struct {
	store store.Store
}

// NewService returns a tool service backed by st.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// RegisterAll wires the built-in toolset into reg in display order.
// Called once at startup; an invalid or duplicate definition fails the boot.
func RegisterAll(reg *mcp.Registry, st store.Store) error {
	s := NewService(st)
	for _, t := range s.Tools() {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register built-in tools: %w", err)
		}
	}
	return nil
}

// ── Listing rows ────────────────────────────────────────────

// documentInfo is the content-free listing row shared by the overview
// and list_documents tools.
type documentInfo struct {
	Slug      string              `json:"slug"`
	Title     string              `json:"title,omitempty"`
	Kind      models.DocumentKind `json:"kind"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func listingOf(d *models.Document) documentInfo {
	return documentInfo{Slug: d.Slug, Title: d.Title, Kind: d.Kind, UpdatedAt: d.UpdatedAt}
}

// searchHit is one search_documents result with an excerpt around the
// first match.
type searchHit struct {
	Slug      string              `json:"slug"`
	Title     string              `json:"title,omitempty"`
	Kind      models.DocumentKind `json:"kind"`
	Excerpt   string              `json:"excerpt"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ── Audit ───────────────────────────────────────────────────

// audit appends a trail event for a tool-initiated write. The actor is the
// key prefix of the authenticated caller. Audit failures are logged, not
// returned: the write being recorded has already succeeded.
func (s *Service) audit(ctx context.Context, projectID int64, action, resource, detail string) {
	actor := "mcp"
	if id := middleware.GetIdentity(ctx); id != nil {
		actor = id.KeyPrefix
	}
	ev := &models.AuditEvent{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Detail:    detail,
	}
	if err := s.store.CreateAuditEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("action", action).Str("resource", resource).
			Msg("audit write failed")
	}
}

// ── Argument extraction ─────────────────────────────────────

// The schemas guarantee types and required keys; these helpers only
// supply defaults for optional arguments.

func getString(args map[string]interface{}, key, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

func getInt(args map[string]interface{}, key string, defaultVal int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return defaultVal
}

// ── Excerpts ────────────────────────────────────────────────

// excerptRadius is how many bytes of context surround the first match.
const excerptRadius = 60

// excerpt returns a short window of content around the first
// case-insensitive occurrence of query, whitespace flattened and ellipses
// marking trimmed ends. When the match was in the title only, the head of
// the content serves as the excerpt.
func excerpt(content, query string) string {
	flat := strings.Join(strings.Fields(content), " ")
	idx := strings.Index(strings.ToLower(flat), strings.ToLower(query))
	if idx < 0 {
		return truncate(flat, 2*excerptRadius)
	}
	start := idx - excerptRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + excerptRadius
	if end > len(flat) {
		end = len(flat)
	}
	// Settle on rune boundaries so the slice never splits a character.
	for start > 0 && !utf8.RuneStart(flat[start]) {
		start--
	}
	for end < len(flat) && !utf8.RuneStart(flat[end]) {
		end++
	}
	out := flat[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(flat) {
		out += "…"
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
