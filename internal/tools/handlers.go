package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/models"
)

// defaultSearchLimit caps search_documents results when no limit is given.
const defaultSearchLimit = 20

func (s *Service) handleProjectOverview(ctx context.Context, _ map[string]interface{}, tc *mcp.ToolContext) (*models.MCPToolResult, error) {
	project, err := s.store.GetProject(ctx, tc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", tc.ProjectID, err)
	}
	docs, err := s.store.ListDocuments(ctx, tc.ProjectID, "")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	index := make([]documentInfo, 0, len(docs))
	for i := range docs {
		index = append(index, listingOf(&docs[i]))
	}
	return models.JSONResult(map[string]interface{}{
		"project": map[string]interface{}{
			"id":          project.ID,
			"name":        project.Name,
			"description": project.Description,
			"created_at":  project.CreatedAt,
		},
		"documents":      index,
		"document_count": len(index),
	}), nil
}

func (s *Service) handleTechStack(ctx context.Context, _ map[string]interface{}, tc *mcp.ToolContext) (*models.MCPToolResult, error) {
	doc, err := s.store.GetDocument(ctx, tc.ProjectID, models.TechStackSlug)
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		return nil, fmt.Errorf("no tech stack recorded for this project: save a %q document first", models.TechStackSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("load tech stack: %w", err)
	}
	return models.TextResult(doc.Content), nil
}

func (s *Service) handleListDocuments(ctx context.Context, args map[string]interface{}, tc *mcp.ToolContext) (*models.MCPToolResult, error) {
	kind := models.DocumentKind(getString(args, "kind", ""))
	docs, err := s.store.ListDocuments(ctx, tc.ProjectID, kind)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	index := make([]documentInfo, 0, len(docs))
	for i := range docs {
		index = append(index, listingOf(&docs[i]))
	}
	return models.JSONResult(map[string]interface{}{
		"documents": index,
		"count":     len(index),
	}), nil
}

func (s *Service) handleGetDocument(ctx context.Context, args map[string]interface{}, tc *mcp.ToolContext) (*models.MCPToolResult, error) {
	slug := getString(args, "slug", "")
	doc, err := s.store.GetDocument(ctx, tc.ProjectID, slug)
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		return nil, fmt.Errorf("document %q not found", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %q: %w", slug, err)
	}
	return models.JSONResult(doc), nil
}

func (s *Service) handleSaveDocument(ctx context.Context, args map[string]interface{}, tc *mcp.ToolContext) (*models.MCPToolResult, error) {
	slug := getString(args, "slug", "")
	content := getString(args, "content", "")

	doc := &models.Document{
		ID:        uuid.New().String(),
		ProjectID: tc.ProjectID,
		Slug:      slug,
		Title:     getString(args, "title", ""),
		Content:   content,
	}

	// Title and kind fall back to the stored document on overwrite, so a
	// content-only save never untitles or reclassifies an existing doc.
	existing, err := s.store.GetDocument(ctx, tc.ProjectID, slug)
	var nf *store.ErrNotFound
	switch {
	case err == nil:
		if doc.Title == "" {
			doc.Title = existing.Title
		}
		doc.Kind = existing.Kind
	case errors.As(err, &nf):
		doc.Kind = models.KindNote
		if slug == models.TechStackSlug {
			doc.Kind = models.KindTechStack
		}
	default:
		return nil, fmt.Errorf("load document %q: %w", slug, err)
	}
	if k := getString(args, "kind", ""); k != "" {
		doc.Kind = models.DocumentKind(k)
	}

	if err := s.store.UpsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document %q: %w", slug, err)
	}
	s.audit(ctx, tc.ProjectID, models.AuditDocumentSaved, "document:"+slug,
		fmt.Sprintf("kind %s, %d bytes", doc.Kind, len(content)))

	return models.JSONResult(map[string]interface{}{
		"saved":      true,
		"slug":       doc.Slug,
		"kind":       doc.Kind,
		"updated_at": doc.UpdatedAt,
	}), nil
}

func (s *Service) handleSearchDocuments(ctx context.Context, args map[string]interface{}, tc *mcp.ToolContext) (*models.MCPToolResult, error) {
	query := getString(args, "query", "")
	limit := getInt(args, "limit", defaultSearchLimit)
	docs, err := s.store.SearchDocuments(ctx, tc.ProjectID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	hits := make([]searchHit, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		hits = append(hits, searchHit{
			Slug:      d.Slug,
			Title:     d.Title,
			Kind:      d.Kind,
			Excerpt:   excerpt(d.Content, query),
			UpdatedAt: d.UpdatedAt,
		})
	}
	return models.JSONResult(map[string]interface{}{
		"query":   query,
		"results": hits,
		"count":   len(hits),
	}), nil
}
