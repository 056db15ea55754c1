// Package handlers implements the HTTP handlers of the Product Helper
// control plane: the admin REST surface (projects, keys, documents, audit)
// and the per-project MCP endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/internal/auth"
	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/internal/store"
	pkgmw "github.com/producthelper/producthelper/pkg/middleware"
	"github.com/producthelper/producthelper/pkg/models"
)

// maxMCPBodyBytes caps an MCP request body. Oversized bodies surface as a
// parse error, not a connection reset.
const maxMCPBodyBytes = 1 << 20

// Handlers holds all handler dependencies.
type Handlers struct {
	Store   store.Store
	Auth    *auth.Service
	MCP     *mcp.Server
	Version string
}

// New creates a Handlers instance with all dependencies.
func New(st store.Store, authSvc *auth.Service, mcpSrv *mcp.Server, version string) *Handlers {
	return &Handlers{Store: st, Auth: authSvc, MCP: mcpSrv, Version: version}
}

// ══════════════════════════════════════════════════════════════
// ── Health & Info ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "producthelper",
	})
}

func (h *Handlers) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
		"service": "producthelper",
	})
}

// ══════════════════════════════════════════════════════════════
// ── Project Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Project name is required")
		return
	}

	p := &models.Project{Name: req.Name, Description: strings.TrimSpace(req.Description)}
	if err := h.Store.CreateProject(r.Context(), p); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Int64("project_id", p.ID).Str("name", p.Name).Msg("project created")
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	respondJSON(w, http.StatusOK, projects)
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ══════════════════════════════════════════════════════════════
// ── API Key Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type generateKeyRequest struct {
	Name string `json:"name"`
}

// GenerateKey mints a new API key for the project. The plaintext key
// appears in this response and nowhere else, ever.
func (h *Handlers) GenerateKey(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, rec, err := h.Auth.Generate(r.Context(), p.ID, strings.TrimSpace(req.Name))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.auditEvent(r.Context(), p.ID, models.AuditKeyGenerated, "key:"+rec.ID, "prefix "+rec.KeyPrefix)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"key":     key,
		"api_key": rec,
		"warning": "Store this key now. It cannot be retrieved again.",
	})
}

func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}
	keys, err := h.Store.ListAPIKeys(r.Context(), p.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	respondJSON(w, http.StatusOK, keys)
}

// RevokeKey soft-deletes a key. Revoking an already-revoked key returns
// the record unchanged, keeping the first revocation timestamp.
func (h *Handlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	keyID := chi.URLParam(r, "keyID")
	rec, err := h.Store.GetAPIKey(r.Context(), keyID)
	var nf *store.ErrNotFound
	if errors.As(err, &nf) || (err == nil && rec.ProjectID != p.ID) {
		respondError(w, http.StatusNotFound, "API key not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec.Revoked() {
		respondJSON(w, http.StatusOK, rec)
		return
	}

	revoked, err := h.Auth.Revoke(r.Context(), keyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.auditEvent(r.Context(), p.ID, models.AuditKeyRevoked, "key:"+keyID, "prefix "+revoked.KeyPrefix)
	respondJSON(w, http.StatusOK, revoked)
}

// ══════════════════════════════════════════════════════════════
// ── Document Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	kind := models.DocumentKind(r.URL.Query().Get("kind"))
	if kind != "" && !models.ValidKind(kind) {
		respondError(w, http.StatusBadRequest, "Unknown document kind")
		return
	}

	docs, err := h.Store.ListDocuments(r.Context(), p.ID, kind)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), p.ID, chi.URLParam(r, "slug"))
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

type putDocumentRequest struct {
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// PutDocument replaces the document at the slug. Unlike the MCP
// save_document tool, PUT is declarative: title and kind are taken as
// given, with an omitted kind defaulting to "note" ("tech-stack" for the
// tech-stack slug).
func (h *Handlers) PutDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")
	if !models.IsValidSlug(slug) {
		respondError(w, http.StatusBadRequest, "Invalid document slug")
		return
	}

	var req putDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "Document content is required")
		return
	}

	kind := models.DocumentKind(req.Kind)
	switch {
	case kind == "" && slug == models.TechStackSlug:
		kind = models.KindTechStack
	case kind == "":
		kind = models.KindNote
	case !models.ValidKind(kind):
		respondError(w, http.StatusBadRequest, "Unknown document kind")
		return
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		ProjectID: p.ID,
		Slug:      slug,
		Title:     strings.TrimSpace(req.Title),
		Kind:      kind,
		Content:   req.Content,
	}
	if err := h.Store.UpsertDocument(r.Context(), doc); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.auditEvent(r.Context(), p.ID, models.AuditDocumentSaved, "document:"+slug, "kind "+string(kind))
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")
	err := h.Store.DeleteDocument(r.Context(), p.ID, slug)
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.auditEvent(r.Context(), p.ID, models.AuditDocumentDeleted, "document:"+slug, "")
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Audit Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.projectFromPath(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := store.AuditFilter{
		ProjectID: p.ID,
		Actor:     q.Get("actor"),
		Action:    q.Get("action"),
	}
	if lim := q.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = n
	}
	if b := q.Get("before"); b != "" {
		t, err := time.Parse(time.RFC3339, b)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid before timestamp, want RFC 3339")
			return
		}
		filter.Before = &t
	}

	events, err := h.Store.ListAuditEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// ══════════════════════════════════════════════════════════════
// ── MCP Endpoint ─────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// MCPEndpoint serves the MCP protocol for one project. The key-auth gate
// has already validated the caller and applied the rate limit; here the
// body is parsed and dispatched as JSON-RPC.
func (h *Handlers) MCPEndpoint(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pkgmw.GetProjectID(r.Context())
	if !ok {
		// The gate always sets the scope; reaching here without one is a
		// routing bug, not a client error.
		respondError(w, http.StatusInternalServerError, "project scope missing")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMCPBodyBytes))
	if err != nil {
		respondJSON(w, http.StatusOK, mcp.ErrorResponse(nil, mcp.ParseError("request body unreadable or too large")))
		return
	}

	resp := h.MCP.HandleRaw(r.Context(), projectID, body)
	if resp == nil {
		// Notification: no response body at all.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// projectFromPath parses {projectID} and loads the project, writing the
// error response itself when either step fails.
func (h *Handlers) projectFromPath(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid project id")
		return nil, false
	}

	p, err := h.Store.GetProject(r.Context(), id)
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, "Project not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return p, true
}

// auditEvent appends an admin-surface audit record. Best effort: a failed
// audit write never changes the response.
func (h *Handlers) auditEvent(ctx context.Context, projectID int64, action, resource, detail string) {
	ev := &models.AuditEvent{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Actor:     models.AuditActorAdmin,
		Action:    action,
		Resource:  resource,
		Detail:    detail,
	}
	if err := h.Store.CreateAuditEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
