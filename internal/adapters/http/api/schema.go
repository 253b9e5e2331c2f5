package api

import (
	"net/http"

	"github.com/okian/tabulator/internal/domain/schema"
)

// SchemaProvider exposes the compiled category schema.
type SchemaProvider interface {
	Schema() *schema.Schema
}

// SchemaHandler serves the category schema and filter catalog.
type SchemaHandler struct {
	provider SchemaProvider
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(p SchemaProvider) *SchemaHandler {
	return &SchemaHandler{provider: p}
}

type schemaResponse struct {
	Edition       string            `json:"edition"`
	Categories    []schema.Category `json:"categories"`
	Totals        []schema.Total    `json:"totals"`
	Filters       []schema.Filter   `json:"filters"`
	DefaultFilter string            `json:"default_filter"`
	Finals        *schema.Finals    `json:"finals,omitempty"`
}

// HandleSchema handles GET /schema.
func (h *SchemaHandler) HandleSchema(w http.ResponseWriter, _ *http.Request) {
	s := h.provider.Schema()
	resp := schemaResponse{
		Edition:       s.Edition(),
		Categories:    s.Categories(),
		Totals:        s.Totals(),
		Filters:       s.Catalog().Filters(),
		DefaultFilter: s.Catalog().Default().Name,
	}
	if f, ok := s.Finals(); ok {
		resp.Finals = &f
	}
	writeJSON(w, http.StatusOK, resp)
}
