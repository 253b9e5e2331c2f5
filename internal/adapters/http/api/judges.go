package api

import (
	"context"
	"net/http"

	"github.com/okian/tabulator/internal/domain/types"
)

// JudgeDependencies defines the judging support operations.
type JudgeDependencies interface {
	Progress(ctx context.Context, judgeID string) (types.Progress, error)
	Slate(ctx context.Context, judgeID, category string) (types.Slate, error)
}

// JudgesHandler serves judge progress and slates.
type JudgesHandler struct {
	deps JudgeDependencies
}

// NewJudgesHandler creates a new judges handler.
func NewJudgesHandler(deps JudgeDependencies) *JudgesHandler {
	return &JudgesHandler{deps: deps}
}

// HandleProgress handles GET /judges/{id}/progress.
func (h *JudgesHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_progress"
	p, err := h.deps.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleSlate handles GET /judges/{id}/slate?category=.
func (h *JudgesHandler) HandleSlate(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_slate"
	category := r.URL.Query().Get("category")
	if category == "" {
		fail(w, op, NewKind(op, ErrBadRequest))
		return
	}
	s, err := h.deps.Slate(r.Context(), r.PathValue("id"), category)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
