package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/models"
)

// newSQLiteStore opens a throwaway database file and bootstraps the schema.
func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteProjectRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "atlas", Description: "internal tools"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.ID == 0 {
		t.Fatal("CreateProject() did not assign an ID")
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got.Name != "atlas" {
		t.Errorf("GetProject().Name = %q, want %q", got.Name, "atlas")
	}

	_, err = s.GetProject(ctx, p.ID+100)
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("GetProject(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteAPIKeyLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "p"}
	s.CreateProject(ctx, p)

	k := &models.APIKey{
		ID:        "key-1",
		ProjectID: p.ID,
		Name:      "ci",
		KeyHash:   "deadbeef",
		KeyPrefix: "ph_00000001",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateAPIKey(ctx, k); err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	// Duplicate digest violates the UNIQUE constraint.
	dup := *k
	dup.ID = "key-2"
	err := s.CreateAPIKey(ctx, &dup)
	var conflict *store.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("CreateAPIKey(duplicate) error = %v, want ErrConflict", err)
	}

	got, err := s.GetAPIKeyByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash() error = %v", err)
	}
	if got.ProjectID != p.ID {
		t.Errorf("GetAPIKeyByHash().ProjectID = %d, want %d", got.ProjectID, p.ID)
	}

	if err := s.RevokeAPIKey(ctx, "key-1", time.Now()); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}

	// Hash lookup must not resurrect revoked keys.
	_, err = s.GetAPIKeyByHash(ctx, "deadbeef")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("GetAPIKeyByHash() after revoke error = %v, want ErrNotFound", err)
	}

	// Record survives soft delete.
	rec, err := s.GetAPIKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetAPIKey() after revoke error = %v", err)
	}
	if rec.RevokedAt == nil {
		t.Error("GetAPIKey().RevokedAt = nil after revoke, want timestamp")
	}

	// Second revoke is a no-op, unknown id is ErrNotFound.
	if err := s.RevokeAPIKey(ctx, "key-1", time.Now()); err != nil {
		t.Errorf("RevokeAPIKey() second call error = %v", err)
	}
	err = s.RevokeAPIKey(ctx, "missing", time.Now())
	if !errors.As(err, &nf) {
		t.Errorf("RevokeAPIKey(missing) error = %v, want ErrNotFound", err)
	}

	keys, err := s.ListAPIKeys(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("ListAPIKeys() returned %d, want 1", len(keys))
	}
}

func TestSQLiteDocumentUpsertAndSearch(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	p := &models.Project{Name: "p"}
	s.CreateProject(ctx, p)

	doc := &models.Document{
		ID:        "doc-1",
		ProjectID: p.ID,
		Slug:      "tech-stack",
		Title:     "Tech Stack",
		Kind:      models.KindTechStack,
		Content:   "Go, sqlite, chi router",
	}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	created := doc.CreatedAt

	// Overwrite by slug keeps identity and created_at.
	doc2 := &models.Document{ID: "doc-x", ProjectID: p.ID, Slug: "tech-stack", Title: "Tech Stack", Kind: models.KindTechStack, Content: "Go 1.24, sqlite, chi"}
	if err := s.UpsertDocument(ctx, doc2); err != nil {
		t.Fatalf("UpsertDocument() overwrite error = %v", err)
	}
	if doc2.ID != "doc-1" {
		t.Errorf("overwrite ID = %q, want %q", doc2.ID, "doc-1")
	}

	got, err := s.GetDocument(ctx, p.ID, "tech-stack")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.Content != "Go 1.24, sqlite, chi" {
		t.Errorf("GetDocument().Content = %q, want updated content", got.Content)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("GetDocument().CreatedAt = %v, want original %v", got.CreatedAt, created)
	}

	s.UpsertDocument(ctx, &models.Document{ID: "doc-2", ProjectID: p.ID, Slug: "billing", Title: "Billing", Kind: models.KindNote, Content: "invoices"})

	found, err := s.SearchDocuments(ctx, p.ID, "SQLITE", 10)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(found) != 1 || found[0].Slug != "tech-stack" {
		t.Errorf("SearchDocuments() = %v, want [tech-stack]", found)
	}

	docs, _ := s.ListDocuments(ctx, p.ID, models.KindTechStack)
	if len(docs) != 1 {
		t.Errorf("ListDocuments(kind) returned %d, want 1", len(docs))
	}

	if err := s.DeleteDocument(ctx, p.ID, "billing"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	var nf *store.ErrNotFound
	if err := s.DeleteDocument(ctx, p.ID, "billing"); !errors.As(err, &nf) {
		t.Errorf("DeleteDocument() repeat error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteAuditEvents(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	events := []*models.AuditEvent{
		{ID: "e1", ProjectID: 1, Actor: "admin", Action: models.AuditKeyGenerated, CreatedAt: old},
		{ID: "e2", ProjectID: 1, Actor: "ph_00000001", Action: models.AuditAccessDenied},
		{ID: "e3", ProjectID: 2, Actor: "admin", Action: models.AuditKeyGenerated},
	}
	for _, e := range events {
		if err := s.CreateAuditEvent(ctx, e); err != nil {
			t.Fatalf("CreateAuditEvent(%s) error = %v", e.ID, err)
		}
	}

	got, err := s.ListAuditEvents(ctx, store.AuditFilter{ProjectID: 1})
	if err != nil {
		t.Fatalf("ListAuditEvents() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListAuditEvents(project 1) returned %d, want 2", len(got))
	}
	// Newest first.
	if len(got) == 2 && got[0].ID != "e2" {
		t.Errorf("ListAuditEvents() first = %q, want newest %q", got[0].ID, "e2")
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	expired, err := s.ListAuditEvents(ctx, store.AuditFilter{Before: &cutoff})
	if err != nil {
		t.Fatalf("ListAuditEvents(before) error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "e1" {
		t.Fatalf("ListAuditEvents(before) = %v, want [e1]", expired)
	}

	n, err := s.CountAuditEvents(ctx, store.AuditFilter{Action: models.AuditKeyGenerated})
	if err != nil {
		t.Fatalf("CountAuditEvents() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountAuditEvents(key.generated) = %d, want 2", n)
	}

	if err := s.DeleteAuditEvent(ctx, "e1"); err != nil {
		t.Fatalf("DeleteAuditEvent() error = %v", err)
	}
	total, _ := s.CountAuditEvents(ctx, store.AuditFilter{})
	if total != 2 {
		t.Errorf("after delete, CountAuditEvents() = %d, want 2", total)
	}
}
