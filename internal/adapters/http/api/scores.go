package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/tabulator/internal/domain/model"
)

// ScoreDependencies defines the submission operation.
type ScoreDependencies interface {
	Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error)
}

// ScoresHandler accepts judges' marks.
type ScoresHandler struct {
	deps     ScoreDependencies
	validate *validator.Validate
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, v *validator.Validate) *ScoresHandler {
	return &ScoresHandler{deps: deps, validate: v}
}

// scoreRequest mirrors the OpenAPI schema for POST /scores.
type scoreRequest struct {
	CandidateID string             `json:"candidate_id" validate:"required"`
	JudgeID     string             `json:"judge_id" validate:"required"`
	Category    string             `json:"category" validate:"required"`
	Value       *float64           `json:"value" validate:"required_without=Criteria"`
	Criteria    map[string]float64 `json:"criteria" validate:"required_without=Value"`
	TS          string             `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type ackResponse struct {
	Status string            `json:"status"`
	Record model.ScoreRecord `json:"record"`
}

// HandlePostScore handles POST /scores. Accepted marks are persisted
// asynchronously.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := decodeJSON(w, r, &req, h.validate); err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	sub := model.Submission{
		CandidateID: req.CandidateID,
		JudgeID:     req.JudgeID,
		Category:    req.Category,
		Value:       req.Value,
		Criteria:    req.Criteria,
	}
	if req.TS != "" {
		// Already validated as RFC3339.
		sub.TS, _ = time.Parse(time.RFC3339, req.TS)
	}

	rec, err := h.deps.Submit(r.Context(), sub)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Record: rec})
}
