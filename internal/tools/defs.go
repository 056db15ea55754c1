package tools

import (
	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/pkg/models"
)

// slugPattern mirrors models.IsValidSlug so malformed slugs are rejected
// at the schema tier, before a handler runs.
const slugPattern = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

var kindEnum = []string{
	string(models.KindPRD),
	string(models.KindTechStack),
	string(models.KindDecision),
	string(models.KindNote),
}

// Tools returns the built-in definitions in display order. tools/list
// reports them in exactly this order.
func (s *Service) Tools() []mcp.Tool {
	return []mcp.Tool{
		s.defProjectOverview(),
		s.defTechStack(),
		s.defListDocuments(),
		s.defGetDocument(),
		s.defSaveDocument(),
		s.defSearchDocuments(),
	}
}

func (s *Service) defProjectOverview() mcp.Tool {
	return mcp.Tool{
		Name:        "get_project_overview",
		Description: "Summarize the current project: name, description, and an index of stored documents with their kinds. Call this first to orient yourself.",
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
		},
		Handler: s.handleProjectOverview,
	}
}

func (s *Service) defTechStack() mcp.Tool {
	return mcp.Tool{
		Name:        "get_tech_stack",
		Description: "Return the project's tech-stack sheet (languages, frameworks, infrastructure) as text. Fails when no tech-stack document has been saved yet.",
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
		},
		Handler: s.handleTechStack,
	}
}

func (s *Service) defListDocuments() mcp.Tool {
	return mcp.Tool{
		Name:        "list_documents",
		Description: "List the project's documents (slug, title, kind, last update), optionally filtered by kind. Content is not included; fetch it with get_document.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Only list documents of this kind",
					"enum":        kindEnum,
				},
			},
			"additionalProperties": false,
		},
		Handler: s.handleListDocuments,
	}
}

func (s *Service) defGetDocument() mcp.Tool {
	return mcp.Tool{
		Name:        "get_document",
		Description: "Fetch one document by slug, including its full content.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"slug": map[string]interface{}{
					"type":        "string",
					"description": "Document slug, e.g. \"tech-stack\" or \"launch-plan\"",
					"pattern":     slugPattern,
					"maxLength":   64,
				},
			},
			"required":             []string{"slug"},
			"additionalProperties": false,
		},
		Handler: s.handleGetDocument,
	}
}

func (s *Service) defSaveDocument() mcp.Tool {
	return mcp.Tool{
		Name:        "save_document",
		Description: "Create or overwrite the document at a slug. Title and kind are preserved on overwrite when omitted; new documents default to kind \"note\" (the \"tech-stack\" slug defaults to kind \"tech-stack\").",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"slug": map[string]interface{}{
					"type":        "string",
					"description": "Lowercase hyphenated identifier the document is addressed by",
					"pattern":     slugPattern,
					"maxLength":   64,
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Human-readable title",
					"maxLength":   200,
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Document classification",
					"enum":        kindEnum,
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full document body, replacing any previous content",
					"minLength":   1,
				},
			},
			"required":             []string{"slug", "content"},
			"additionalProperties": false,
		},
		Handler: s.handleSaveDocument,
	}
}

func (s *Service) defSearchDocuments() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Case-insensitive substring search over document titles and content, newest first. Each hit carries a short excerpt around the first match.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to look for",
					"minLength":   1,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (default 20)",
					"minimum":     1,
					"maximum":     100,
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
		Handler: s.handleSearchDocuments,
	}
}
