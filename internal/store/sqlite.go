// Package store — sqlite Store implementation (modernc.org/sqlite, no cgo).
// The production default: a single-file database with WAL journaling.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/producthelper/producthelper/pkg/models"
)

// SQLiteStore implements Store on a local sqlite file.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Call Migrate before first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	log.Info().Str("path", dbPath).Msg("SQLite store opened")
	return &SQLiteStore{db: db}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		id         TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		key_hash   TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		revoked_at DATETIME,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);

	CREATE INDEX IF NOT EXISTS idx_api_keys_project ON api_keys(project_id);
	CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		slug       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL DEFAULT 'note',
		content    TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (project_id, slug),
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);

	CREATE TABLE IF NOT EXISTS audit_events (
		id         TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		actor      TEXT NOT NULL,
		action     TEXT NOT NULL,
		resource   TEXT NOT NULL DEFAULT '',
		detail     TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_project_created ON audit_events(project_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// ── Project Store ───────────────────────────────────────────

func (s *SQLiteStore) CreateProject(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, description, created_at) VALUES (?, ?, ?)
	`, project.Name, project.Description, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	project.ID = id
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p models.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "project", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM projects ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ── API Key Store ───────────────────────────────────────────

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, project_id, name, key_hash, key_prefix, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.ID, key.ProjectID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.RevokedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &ErrConflict{Entity: "api key", Key: key.KeyPrefix}
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, err := s.scanAPIKey(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, key_hash, key_prefix, created_at, revoked_at
		FROM api_keys WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "api key", Key: id}
	}
	return k, err
}

func (s *SQLiteStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, err := s.scanAPIKey(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, key_hash, key_prefix, created_at, revoked_at
		FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL
	`, hash))
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "api key", Key: "digest"}
	}
	return k, err
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context, projectID int64) ([]models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, key_hash, key_prefix, created_at, revoked_at
		FROM api_keys WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.APIKey
	for rows.Next() {
		var k models.APIKey
		var revokedAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &revokedAt); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			k.RevokedAt = &t
		}
		result = append(result, k)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either unknown or already revoked. Already-revoked is a no-op.
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM api_keys WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return &ErrNotFound{Entity: "api key", Key: id}
		}
		return err
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	var revokedAt sql.NullTime
	err := row.Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}
	return &k, nil
}

// ── Document Store ──────────────────────────────────────────

func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var existingID string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM documents WHERE project_id = ? AND slug = ?
	`, doc.ProjectID, doc.Slug).Scan(&existingID, &createdAt)

	switch {
	case err == sql.ErrNoRows:
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO documents (id, project_id, slug, title, kind, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, doc.ID, doc.ProjectID, doc.Slug, doc.Title, doc.Kind, doc.Content, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	case err != nil:
		return err
	default:
		doc.ID = existingID
		doc.CreatedAt = createdAt
		doc.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, `
			UPDATE documents SET title = ?, kind = ?, content = ?, updated_at = ?
			WHERE id = ?
		`, doc.Title, doc.Kind, doc.Content, doc.UpdatedAt, doc.ID)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return nil
	}
}

func (s *SQLiteStore) GetDocument(ctx context.Context, projectID int64, slug string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d models.Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, slug, title, kind, content, created_at, updated_at
		FROM documents WHERE project_id = ? AND slug = ?
	`, projectID, slug).Scan(&d.ID, &d.ProjectID, &d.Slug, &d.Title, &d.Kind, &d.Content, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "document", Key: slug}
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, projectID int64, kind models.DocumentKind) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, project_id, slug, title, kind, content, created_at, updated_at
		FROM documents WHERE project_id = ?`
	args := []interface{}{projectID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY slug`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, projectID int64, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE project_id = ? AND slug = ?
	`, projectID, slug)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Entity: "document", Key: slug}
	}
	return nil
}

func (s *SQLiteStore) SearchDocuments(ctx context.Context, projectID int64, query string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, slug, title, kind, content, created_at, updated_at
		FROM documents
		WHERE project_id = ? AND (LOWER(title) LIKE ? OR LOWER(content) LIKE ?)
		ORDER BY updated_at DESC LIMIT ?
	`, projectID, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]models.Document, error) {
	var result []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Slug, &d.Title, &d.Kind, &d.Content, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// ── Audit Store ─────────────────────────────────────────────

func (s *SQLiteStore) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, project_id, actor, action, resource, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.ProjectID, event.Actor, event.Action, event.Resource, event.Detail, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query, args := buildAuditWhere(`
		SELECT id, project_id, actor, action, resource, detail, created_at
		FROM audit_events`, filter)
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Actor, &e.Action, &e.Resource, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) CountAuditEvents(ctx context.Context, filter AuditFilter) (int64, error) {
	query, args := buildAuditWhere(`SELECT COUNT(*) FROM audit_events`, filter)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) DeleteAuditEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete audit event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Entity: "audit event", Key: id}
	}
	return nil
}

func buildAuditWhere(base string, filter AuditFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if filter.ProjectID != 0 {
		clauses = append(clauses, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Before != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, filter.Before.UTC())
	}
	if len(clauses) > 0 {
		base += " WHERE " + strings.Join(clauses, " AND ")
	}
	return base, args
}
