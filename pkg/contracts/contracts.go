// Package contracts defines the public interfaces of the Product Helper
// control plane.
//
// These types live in pkg/ (not internal/) so that embedders building on
// pkg/server can reference the store boundary, the authenticated identity,
// and the archive driver without importing internal/ directly.
package contracts

import (
	"context"

	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/models"
)

// Store is a type alias for the internal Store interface.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Identity ────────────────────────────────────────────────

// Identity is the authenticated caller on the MCP surface, produced by the
// key-auth middleware after a successful validation. Handlers and tools only
// ever see the identity — never the plaintext key.
type Identity struct {
	// KeyID is the stored record id of the validated key.
	KeyID string `json:"key_id"`

	// ProjectID is the project the key is scoped to.
	ProjectID int64 `json:"project_id"`

	// KeyPrefix is the routing prefix ("ph_" + 8 digits). Safe to log.
	KeyPrefix string `json:"key_prefix"`

	// Name is the human-assigned label of the key, if any.
	Name string `json:"name,omitempty"`
}

// ── Archive Driver ──────────────────────────────────────────

// ArchiveDriver writes expired audit events to durable cold storage before
// the retention janitor purges them from the hot store.
//
// The janitor is fail-safe: when ArchiveAuditEvents returns an error the
// batch is NOT purged.
type ArchiveDriver interface {
	// Kind returns the driver identifier (e.g. "local").
	Kind() string

	// ArchiveAuditEvents persists a batch for one project and returns the
	// URI of the written archive.
	ArchiveAuditEvents(ctx context.Context, projectID int64, events []models.AuditEvent) (string, error)

	// HealthCheck verifies the backend is writable.
	HealthCheck(ctx context.Context) error
}
