package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/tabulator/internal/domain/model"
)

// CandidateDependencies defines the candidate registry operations.
type CandidateDependencies interface {
	AddCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error)
	DeactivateCandidate(ctx context.Context, id string) error
	Candidates(ctx context.Context, gender string) ([]model.Candidate, error)
}

// CandidatesHandler manages the candidate registry.
type CandidatesHandler struct {
	deps     CandidateDependencies
	validate *validator.Validate
}

// NewCandidatesHandler creates a new candidates handler.
func NewCandidatesHandler(deps CandidateDependencies, v *validator.Validate) *CandidatesHandler {
	return &CandidatesHandler{deps: deps, validate: v}
}

type candidateRequest struct {
	Number   int    `json:"number" validate:"gte=1"`
	Name     string `json:"name" validate:"required"`
	Gender   string `json:"gender" validate:"required"`
	ImageURL string `json:"image_url" validate:"omitempty,url"`
}

// HandleList handles GET /candidates?gender=.
func (h *CandidatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_candidates"
	list, err := h.deps.Candidates(r.Context(), r.URL.Query().Get("gender"))
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleAdd handles POST /candidates.
func (h *CandidatesHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_candidate"
	var req candidateRequest
	if err := decodeJSON(w, r, &req, h.validate); err != nil {
		fail(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	c, err := h.deps.AddCandidate(r.Context(), model.Candidate{
		Number:   req.Number,
		Name:     req.Name,
		Gender:   model.Gender(req.Gender),
		ImageURL: req.ImageURL,
	})
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleDelete handles DELETE /candidates/{id}. The candidate is withdrawn;
// its marks are kept.
func (h *CandidatesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_candidate"
	if err := h.deps.DeactivateCandidate(r.Context(), r.PathValue("id")); err != nil {
		fail(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
