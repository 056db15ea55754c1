// Package store provides the storage interface and implementations for the
// Product Helper control plane. The memory store backs tests and local
// development; sqlite is the production default.
package store

import (
	"context"
	"time"

	"github.com/producthelper/producthelper/pkg/models"
)

// Store is the primary storage interface for the control plane.
// All handler and service code depends on this interface, making it easy
// to swap between in-memory (tests) and sqlite (production) implementations.
type Store interface {
	ProjectStore
	APIKeyStore
	DocumentStore
	AuditStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate bootstraps the schema (no-op for the memory store).
	Migrate(ctx context.Context) error
}

// ── Project Store ───────────────────────────────────────────

type ProjectStore interface {
	// CreateProject persists a project and assigns its numeric ID.
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
}

// ── API Key Store ───────────────────────────────────────────

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)

	// GetAPIKeyByHash returns the non-revoked key whose stored digest
	// matches. Revoked records are indistinguishable from absent ones.
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)

	ListAPIKeys(ctx context.Context, projectID int64) ([]models.APIKey, error)

	// RevokeAPIKey soft-deletes a key: the record is retained with
	// RevokedAt set. Revoking an already-revoked key is a no-op.
	RevokeAPIKey(ctx context.Context, id string, at time.Time) error
}

// ── Document Store ──────────────────────────────────────────

type DocumentStore interface {
	// UpsertDocument inserts or overwrites the document addressed by
	// (ProjectID, Slug), preserving CreatedAt on overwrite.
	UpsertDocument(ctx context.Context, doc *models.Document) error

	GetDocument(ctx context.Context, projectID int64, slug string) (*models.Document, error)

	// ListDocuments returns a project's documents ordered by slug.
	// An empty kind matches all kinds.
	ListDocuments(ctx context.Context, projectID int64, kind models.DocumentKind) ([]models.Document, error)

	DeleteDocument(ctx context.Context, projectID int64, slug string) error

	// SearchDocuments runs a case-insensitive substring match over titles
	// and content, newest first.
	SearchDocuments(ctx context.Context, projectID int64, query string, limit int) ([]models.Document, error)
}

// ── Audit Store ─────────────────────────────────────────────

// AuditFilter defines optional filters for listing audit events.
type AuditFilter struct {
	ProjectID int64      // 0 matches all projects
	Actor     string     // exact match
	Action    string     // exact match
	Before    *time.Time // only events created before this instant
	Limit     int        // max results (default 100)
}

type AuditStore interface {
	// CreateAuditEvent persists an audit event.
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error

	// ListAuditEvents returns filtered audit events, newest first.
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error)

	// CountAuditEvents returns the count of events matching the filter.
	CountAuditEvents(ctx context.Context, filter AuditFilter) (int64, error)

	// DeleteAuditEvent removes an audit event by ID.
	DeleteAuditEvent(ctx context.Context, id string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrConflict is returned when a write collides with an existing record,
// e.g. two keys hashing to the same digest.
type ErrConflict struct {
	Entity string
	Key    string
}

func (e *ErrConflict) Error() string {
	return e.Entity + " already exists: " + e.Key
}
