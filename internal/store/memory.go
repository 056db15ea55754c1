// Package store — in-memory Store implementation.
// Used for tests and local development when no sqlite file is wanted.
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	NextProjectID int64                       `json:"next_project_id"`
	Projects      map[string]*models.Project  `json:"projects"`  // key: id (decimal string)
	APIKeys       map[string]*models.APIKey   `json:"api_keys"`  // key: id
	Documents     map[string]*models.Document `json:"documents"` // key: project:slug
	AuditEvents   []*models.AuditEvent        `json:"audit_events"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	projects    map[int64]*models.Project
	apiKeys     map[string]*models.APIKey   // key: id
	keyIDByHash map[string]string           // key digest → record id
	documents   map[string]*models.Document // key: project:slug
	auditEvents []*models.AuditEvent        // append-only log

	nextProjectID int64

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store. If snapshotPath is
// non-empty, data is persisted there as JSON and reloaded on startup.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	m := &MemoryStore{
		projects:      make(map[int64]*models.Project),
		apiKeys:       make(map[string]*models.APIKey),
		keyIDByHash:   make(map[string]string),
		documents:     make(map[string]*models.Document),
		auditEvents:   make([]*models.AuditEvent, 0),
		nextProjectID: 1,
		snapshotPath:  snapshotPath,
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	if m.snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0755); err != nil {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Cannot create snapshot dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		NextProjectID: m.nextProjectID,
		Projects:      make(map[string]*models.Project, len(m.projects)),
		APIKeys:       m.apiKeys,
		Documents:     m.documents,
		AuditEvents:   m.auditEvents,
	}
	for id, p := range m.projects {
		snap.Projects[strconv.FormatInt(id, 10)] = p
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for idStr, p := range snap.Projects {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		m.projects[id] = p
	}
	if snap.APIKeys != nil {
		m.apiKeys = snap.APIKeys
		for id, k := range m.apiKeys {
			m.keyIDByHash[k.KeyHash] = id
		}
	}
	if snap.Documents != nil {
		m.documents = snap.Documents
	}
	if snap.AuditEvents != nil {
		m.auditEvents = snap.AuditEvents
	}
	if snap.NextProjectID > 0 {
		m.nextProjectID = snap.NextProjectID
	}

	log.Info().
		Int("projects", len(m.projects)).
		Int("api_keys", len(m.apiKeys)).
		Int("documents", len(m.documents)).
		Int("audit_events", len(m.auditEvents)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		// Already closed
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

func docKey(projectID int64, slug string) string {
	return strconv.FormatInt(projectID, 10) + ":" + slug
}

// ── Project Store ───────────────────────────────────────────

func (m *MemoryStore) CreateProject(_ context.Context, project *models.Project) error {
	m.mu.Lock()
	project.ID = m.nextProjectID
	m.nextProjectID++
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	cp := *project
	m.projects[cp.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetProject(_ context.Context, id int64) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "project", Key: strconv.FormatInt(id, 10)}
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListProjects(_ context.Context) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ── API Key Store ───────────────────────────────────────────

func (m *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	if _, exists := m.keyIDByHash[key.KeyHash]; exists {
		m.mu.Unlock()
		return &ErrConflict{Entity: "api key", Key: key.KeyPrefix}
	}
	cp := *key
	m.apiKeys[cp.ID] = &cp
	m.keyIDByHash[cp.KeyHash] = cp.ID
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAPIKey(_ context.Context, id string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "api key", Key: id}
	}
	cp := *k
	return &cp, nil
}

func (m *MemoryStore) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keyIDByHash[hash]
	if !ok {
		return nil, &ErrNotFound{Entity: "api key", Key: "digest"}
	}
	k := m.apiKeys[id]
	if k == nil || k.Revoked() {
		return nil, &ErrNotFound{Entity: "api key", Key: "digest"}
	}
	cp := *k
	return &cp, nil
}

func (m *MemoryStore) ListAPIKeys(_ context.Context, projectID int64) ([]models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.APIKey
	for _, k := range m.apiKeys {
		if k.ProjectID == projectID {
			result = append(result, *k)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) RevokeAPIKey(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	k, ok := m.apiKeys[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "api key", Key: id}
	}
	if k.RevokedAt == nil {
		t := at.UTC()
		k.RevokedAt = &t
	}
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Document Store ──────────────────────────────────────────

func (m *MemoryStore) UpsertDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	now := time.Now().UTC()
	dk := docKey(doc.ProjectID, doc.Slug)
	if existing, ok := m.documents[dk]; ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
	}
	doc.UpdatedAt = now
	cp := *doc
	m.documents[dk] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, projectID int64, slug string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[docKey(projectID, slug)]
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: slug}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, projectID int64, kind models.DocumentKind) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Document
	for _, d := range m.documents {
		if d.ProjectID != projectID {
			continue
		}
		if kind != "" && d.Kind != kind {
			continue
		}
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, projectID int64, slug string) error {
	m.mu.Lock()
	dk := docKey(projectID, slug)
	if _, ok := m.documents[dk]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "document", Key: slug}
	}
	delete(m.documents, dk)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) SearchDocuments(_ context.Context, projectID int64, query string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var matches []models.Document
	for _, d := range m.documents {
		if d.ProjectID != projectID {
			continue
		}
		if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Content), q) {
			matches = append(matches, *d)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].UpdatedAt.After(matches[j].UpdatedAt) })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ── Audit Store ─────────────────────────────────────────────

func (m *MemoryStore) CreateAuditEvent(_ context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	cp := *event
	m.auditEvents = append(m.auditEvents, &cp)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListAuditEvents(_ context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.AuditEvent
	for _, e := range m.auditEvents {
		if !auditMatches(e, filter) {
			continue
		}
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) CountAuditEvents(_ context.Context, filter AuditFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, e := range m.auditEvents {
		if auditMatches(e, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteAuditEvent(_ context.Context, id string) error {
	m.mu.Lock()
	for i, e := range m.auditEvents {
		if e.ID == id {
			m.auditEvents = append(m.auditEvents[:i], m.auditEvents[i+1:]...)
			m.mu.Unlock()
			m.requestSave()
			return nil
		}
	}
	m.mu.Unlock()
	return &ErrNotFound{Entity: "audit event", Key: id}
}

func auditMatches(e *models.AuditEvent, filter AuditFilter) bool {
	if filter.ProjectID != 0 && e.ProjectID != filter.ProjectID {
		return false
	}
	if filter.Actor != "" && e.Actor != filter.Actor {
		return false
	}
	if filter.Action != "" && e.Action != filter.Action {
		return false
	}
	if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
		return false
	}
	return true
}
