package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/tabulator/internal/domain/types"
)

// ResultsDependencies defines the ranking and export operations.
type ResultsDependencies interface {
	Rank(ctx context.Context, filter, gender string) (types.Report, error)
	Export(ctx context.Context, filter, gender, format string) (types.Attachment, error)
	Finalists(ctx context.Context, gender string) ([]types.Report, error)
}

// ResultsHandler serves leaderboards.
type ResultsHandler struct {
	deps ResultsDependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultsDependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleResults handles GET /results?filter=&gender=. Unknown filters and
// genders are coerced; the report echoes what was used.
func (h *ResultsHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_results"
	q := r.URL.Query()
	report, err := h.deps.Rank(r.Context(), q.Get("filter"), q.Get("gender"))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleExport handles GET /results/export?filter=&gender=&format=csv|json.
func (h *ResultsHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_results"
	q := r.URL.Query()
	out, err := h.deps.Export(r.Context(), q.Get("filter"), q.Get("gender"), q.Get("format"))
	if err != nil {
		fail(w, op, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}

// HandleFinalists handles GET /finalists?gender=.
func (h *ResultsHandler) HandleFinalists(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_finalists"
	reports, err := h.deps.Finalists(r.Context(), r.URL.Query().Get("gender"))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
