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

// newTestStore creates a fresh in-memory store with no persistence.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── Project CRUD ────────────────────────────────────────────

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
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
	if got.Description != "internal tools" {
		t.Errorf("GetProject().Description = %q, want %q", got.Description, "internal tools")
	}
}

func TestCreateProject_SequentialIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := &models.Project{Name: "one"}
	p2 := &models.Project{Name: "two"}
	s.CreateProject(ctx, p1)
	s.CreateProject(ctx, p2)

	if p2.ID != p1.ID+1 {
		t.Errorf("second project ID = %d, want %d", p2.ID, p1.ID+1)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background(), 9999)
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("GetProject() error = %v, want ErrNotFound", err)
	}
}

func TestListProjects_OrderedByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		s.CreateProject(ctx, &models.Project{Name: name})
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("ListProjects() returned %d, want 3", len(projects))
	}
	for i := 1; i < len(projects); i++ {
		if projects[i].ID <= projects[i-1].ID {
			t.Errorf("ListProjects() not ordered by ID: %d then %d", projects[i-1].ID, projects[i].ID)
		}
	}
}

// ─── API Key CRUD ────────────────────────────────────────────

func testKey(projectID int64, hash, prefix string) *models.APIKey {
	id := hash
	if len(id) > 8 {
		id = id[:8]
	}
	return &models.APIKey{
		ID:        "key-" + id,
		ProjectID: projectID,
		Name:      "ci",
		KeyHash:   hash,
		KeyPrefix: prefix,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetAPIKeyByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k := testKey(42, "aaaabbbbccccdddd", "ph_00000042")
	if err := s.CreateAPIKey(ctx, k); err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	got, err := s.GetAPIKeyByHash(ctx, "aaaabbbbccccdddd")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash() error = %v", err)
	}
	if got.ProjectID != 42 {
		t.Errorf("GetAPIKeyByHash().ProjectID = %d, want 42", got.ProjectID)
	}
	if got.KeyPrefix != "ph_00000042" {
		t.Errorf("GetAPIKeyByHash().KeyPrefix = %q, want %q", got.KeyPrefix, "ph_00000042")
	}
}

func TestCreateAPIKey_DuplicateHashConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAPIKey(ctx, testKey(1, "samehash", "ph_00000001")); err != nil {
		t.Fatalf("CreateAPIKey() first call error = %v", err)
	}
	err := s.CreateAPIKey(ctx, testKey(1, "samehash", "ph_00000001"))
	var conflict *store.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("CreateAPIKey() duplicate error = %v, want ErrConflict", err)
	}
}

func TestRevokeAPIKey_HidesFromHashLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k := testKey(7, "revocable", "ph_00000007")
	s.CreateAPIKey(ctx, k)

	if err := s.RevokeAPIKey(ctx, k.ID, time.Now()); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}

	// Revoked keys are indistinguishable from absent ones on the hash path.
	_, err := s.GetAPIKeyByHash(ctx, "revocable")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("GetAPIKeyByHash() after revoke error = %v, want ErrNotFound", err)
	}

	// The record itself survives with RevokedAt set.
	got, err := s.GetAPIKey(ctx, k.ID)
	if err != nil {
		t.Fatalf("GetAPIKey() after revoke error = %v", err)
	}
	if got.RevokedAt == nil {
		t.Error("GetAPIKey().RevokedAt = nil after revoke, want timestamp")
	}
}

func TestRevokeAPIKey_SecondRevokeKeepsFirstTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k := testKey(7, "twice", "ph_00000007")
	s.CreateAPIKey(ctx, k)

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.RevokeAPIKey(ctx, k.ID, first); err != nil {
		t.Fatalf("RevokeAPIKey() first call error = %v", err)
	}
	if err := s.RevokeAPIKey(ctx, k.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeAPIKey() second call error = %v", err)
	}

	got, _ := s.GetAPIKey(ctx, k.ID)
	if got.RevokedAt == nil || !got.RevokedAt.Equal(first) {
		t.Errorf("RevokedAt = %v, want %v", got.RevokedAt, first)
	}
}

func TestRevokeAPIKey_UnknownID(t *testing.T) {
	s := newTestStore(t)

	err := s.RevokeAPIKey(context.Background(), "nope", time.Now())
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("RevokeAPIKey() error = %v, want ErrNotFound", err)
	}
}

func TestListAPIKeys_ScopedToProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateAPIKey(ctx, testKey(1, "hash-a", "ph_00000001"))
	s.CreateAPIKey(ctx, testKey(1, "hash-b", "ph_00000001"))
	s.CreateAPIKey(ctx, testKey(2, "hash-c", "ph_00000002"))

	keys, err := s.ListAPIKeys(ctx, 1)
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ListAPIKeys(1) returned %d, want 2", len(keys))
	}
}

// ─── Document Store ─────────────────────────────────────────

func TestUpsertAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:        "doc-1",
		ProjectID: 1,
		Slug:      "tech-stack",
		Title:     "Tech Stack",
		Kind:      models.KindTechStack,
		Content:   "Go 1.24, sqlite, chi",
	}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	got, err := s.GetDocument(ctx, 1, "tech-stack")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.Content != "Go 1.24, sqlite, chi" {
		t.Errorf("GetDocument().Content = %q, want %q", got.Content, "Go 1.24, sqlite, chi")
	}
}

func TestUpsertDocument_OverwriteKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{ID: "doc-1", ProjectID: 1, Slug: "overview", Content: "v1"}
	s.UpsertDocument(ctx, doc)
	created := doc.CreatedAt

	doc2 := &models.Document{ID: "doc-2", ProjectID: 1, Slug: "overview", Content: "v2"}
	if err := s.UpsertDocument(ctx, doc2); err != nil {
		t.Fatalf("UpsertDocument() overwrite error = %v", err)
	}

	got, _ := s.GetDocument(ctx, 1, "overview")
	if got.Content != "v2" {
		t.Errorf("after overwrite, Content = %q, want %q", got.Content, "v2")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("after overwrite, CreatedAt = %v, want original %v", got.CreatedAt, created)
	}
	if got.ID != "doc-1" {
		t.Errorf("after overwrite, ID = %q, want original %q", got.ID, "doc-1")
	}
}

func TestListDocuments_KindFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertDocument(ctx, &models.Document{ID: "d1", ProjectID: 1, Slug: "prd-login", Kind: models.KindPRD})
	s.UpsertDocument(ctx, &models.Document{ID: "d2", ProjectID: 1, Slug: "tech-stack", Kind: models.KindTechStack})
	s.UpsertDocument(ctx, &models.Document{ID: "d3", ProjectID: 2, Slug: "prd-other", Kind: models.KindPRD})

	all, err := s.ListDocuments(ctx, 1, "")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListDocuments(1, all) returned %d, want 2", len(all))
	}

	prds, _ := s.ListDocuments(ctx, 1, models.KindPRD)
	if len(prds) != 1 || prds[0].Slug != "prd-login" {
		t.Errorf("ListDocuments(1, prd) = %v, want [prd-login]", prds)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertDocument(ctx, &models.Document{ID: "d1", ProjectID: 1, Slug: "tmp"})
	if err := s.DeleteDocument(ctx, 1, "tmp"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	_, err := s.GetDocument(ctx, 1, "tmp")
	if err == nil {
		t.Error("GetDocument() after delete should return error, got nil")
	}

	err = s.DeleteDocument(ctx, 1, "tmp")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("DeleteDocument() repeat error = %v, want ErrNotFound", err)
	}
}

func TestSearchDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertDocument(ctx, &models.Document{ID: "d1", ProjectID: 1, Slug: "auth", Title: "Auth design", Content: "OAuth flows and API keys"})
	s.UpsertDocument(ctx, &models.Document{ID: "d2", ProjectID: 1, Slug: "billing", Title: "Billing", Content: "invoices"})
	s.UpsertDocument(ctx, &models.Document{ID: "d3", ProjectID: 2, Slug: "auth2", Title: "Other auth", Content: "api keys elsewhere"})

	got, err := s.SearchDocuments(ctx, 1, "API KEYS", 10)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(got) != 1 || got[0].Slug != "auth" {
		t.Errorf("SearchDocuments() = %v, want [auth]", got)
	}
}

// ─── Audit Store ────────────────────────────────────────────

func TestAuditEvents_FilterAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []*models.AuditEvent{
		{ID: "e1", ProjectID: 1, Actor: "admin", Action: models.AuditKeyGenerated},
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

	n, err := s.CountAuditEvents(ctx, store.AuditFilter{Action: models.AuditKeyGenerated})
	if err != nil {
		t.Fatalf("CountAuditEvents() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountAuditEvents(key.generated) = %d, want 2", n)
	}
}

func TestAuditEvents_BeforeFilterAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	s.CreateAuditEvent(ctx, &models.AuditEvent{ID: "old", ProjectID: 1, Actor: "admin", Action: models.AuditKeyRevoked, CreatedAt: old})
	s.CreateAuditEvent(ctx, &models.AuditEvent{ID: "new", ProjectID: 1, Actor: "admin", Action: models.AuditKeyRevoked})

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	expired, err := s.ListAuditEvents(ctx, store.AuditFilter{Before: &cutoff})
	if err != nil {
		t.Fatalf("ListAuditEvents(before) error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("ListAuditEvents(before) = %v, want [old]", expired)
	}

	if err := s.DeleteAuditEvent(ctx, "old"); err != nil {
		t.Fatalf("DeleteAuditEvent() error = %v", err)
	}
	n, _ := s.CountAuditEvents(ctx, store.AuditFilter{})
	if n != 1 {
		t.Errorf("after delete, CountAuditEvents() = %d, want 1", n)
	}
}

// ─── Close / Snapshot ───────────────────────────────────────

func TestCloseFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s := store.NewMemoryStore(path)

	ctx := context.Background()
	p := &models.Project{Name: "persist-me"}
	s.CreateProject(ctx, p)
	s.CreateAPIKey(ctx, testKey(p.ID, "persisted-hash", "ph_00000001"))

	// Close should flush to disk
	s.Close()

	// Reopen and verify data survived
	s2 := store.NewMemoryStore(path)
	defer s2.Close()

	got, err := s2.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("After reopen, GetProject() error = %v", err)
	}
	if got.Name != "persist-me" {
		t.Errorf("After reopen, project name = %q, want %q", got.Name, "persist-me")
	}

	if _, err := s2.GetAPIKeyByHash(ctx, "persisted-hash"); err != nil {
		t.Errorf("After reopen, GetAPIKeyByHash() error = %v", err)
	}

	// IDs keep advancing past the restored counter.
	p2 := &models.Project{Name: "next"}
	s2.CreateProject(ctx, p2)
	if p2.ID != p.ID+1 {
		t.Errorf("After reopen, next project ID = %d, want %d", p2.ID, p.ID+1)
	}
}
