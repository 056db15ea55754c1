// Package models defines the shared domain types for the Product Helper
// control plane: projects, API keys, documents, audit events, and the MCP
// wire format. Types here are persistence- and transport-agnostic.
package models

import (
	"encoding/json"
	"regexp"
	"time"
)

// ── Project ──────────────────────────────────────────────────

// Project is a single product workspace. Its numeric ID is embedded in
// every API key minted for it (zero-padded to eight digits).
type Project struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// MaxProjectID is the largest project ID representable in a key prefix
// (eight decimal digits).
const MaxProjectID = 99999999

// ── API Key ──────────────────────────────────────────────────

// APIKey is the stored form of an issued key. The plaintext key is
// returned exactly once at generation time and never persisted; only the
// SHA-256 digest (KeyHash) and the routing prefix (KeyPrefix) are kept.
type APIKey struct {
	ID        string     `json:"id" db:"id"`
	ProjectID int64      `json:"project_id" db:"project_id"`
	Name      string     `json:"name" db:"name"`
	KeyHash   string     `json:"-" db:"key_hash"`
	KeyPrefix string     `json:"key_prefix" db:"key_prefix"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Revoked reports whether the key has been soft-deleted.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// ── Document ─────────────────────────────────────────────────

// DocumentKind classifies a project document.
type DocumentKind string

const (
	KindPRD       DocumentKind = "prd"
	KindTechStack DocumentKind = "tech-stack"
	KindDecision  DocumentKind = "decision"
	KindNote      DocumentKind = "note"
)

// ValidKind reports whether k is one of the known document kinds.
func ValidKind(k DocumentKind) bool {
	switch k {
	case KindPRD, KindTechStack, KindDecision, KindNote:
		return true
	}
	return false
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSlug reports whether s is a well-formed document slug:
// lowercase alphanumerics separated by single hyphens, max 64 chars.
func IsValidSlug(s string) bool {
	return len(s) > 0 && len(s) <= 64 && slugPattern.MatchString(s)
}

// Document is a unit of project knowledge (a PRD, the tech-stack sheet,
// a decision record, a free-form note). Documents are addressed by
// (project, slug); saving an existing slug overwrites the content.
type Document struct {
	ID        string       `json:"id" db:"id"`
	ProjectID int64        `json:"project_id" db:"project_id"`
	Slug      string       `json:"slug" db:"slug"`
	Title     string       `json:"title" db:"title"`
	Kind      DocumentKind `json:"kind" db:"kind"`
	Content   string       `json:"content" db:"content"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// TechStackSlug is the well-known slug served by the get_tech_stack tool.
const TechStackSlug = "tech-stack"

// ── Audit ────────────────────────────────────────────────────

// Audit actions recorded by the control plane.
const (
	AuditKeyGenerated    = "key.generated"
	AuditKeyRevoked      = "key.revoked"
	AuditDocumentSaved   = "document.saved"
	AuditDocumentDeleted = "document.deleted"
	AuditAccessDenied    = "access.denied"
	AuditRateLimited     = "access.rate_limited"
)

// AuditActorAdmin marks events performed through the admin API rather
// than by an issued key.
const AuditActorAdmin = "admin"

// AuditEvent is an append-only record of a sensitive action. Actor is a
// key prefix (never a full key) or AuditActorAdmin.
type AuditEvent struct {
	ID        string    `json:"id" db:"id"`
	ProjectID int64     `json:"project_id" db:"project_id"`
	Actor     string    `json:"actor" db:"actor"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource,omitempty" db:"resource"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ── MCP Protocol Types ───────────────────────────────────────

type MCPRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// IsNotification reports whether the request carries no id and therefore
// expects no response body.
func (r *MCPRequest) IsNotification() bool {
	return r.ID == nil
}

type MCPResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return e.Message
}

type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type MCPContent struct {
	Type string `json:"type"` // text, image, resource
	Text string `json:"text,omitempty"`
}

// TextResult wraps a single text block into a tool result.
func TextResult(text string) *MCPToolResult {
	return &MCPToolResult{Content: []MCPContent{{Type: "text", Text: text}}}
}

// JSONResult marshals v and wraps it as a single text block, the MCP
// convention for structured tool output. Marshal failures degrade to the
// error string so a tool result is always produced.
func JSONResult(v interface{}) *MCPToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return TextResult(err.Error())
	}
	return TextResult(string(b))
}
