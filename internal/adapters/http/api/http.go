// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ResultsDependencies
	ScoreDependencies
	CandidateDependencies
	JudgeDependencies
	SchemaProvider
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	resultsHandler   *ResultsHandler
	scoresHandler    *ScoresHandler
	candidateHandler *CandidatesHandler
	judgesHandler    *JudgesHandler
	schemaHandler    *SchemaHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	v := validator.New()
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		resultsHandler:   NewResultsHandler(deps),
		scoresHandler:    NewScoresHandler(deps, v),
		candidateHandler: NewCandidatesHandler(deps, v),
		judgesHandler:    NewJudgesHandler(deps),
		schemaHandler:    NewSchemaHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /schema", MetricsMiddleware(s.schemaHandler.HandleSchema, "schema"))

	mux.HandleFunc("GET /results", MetricsMiddleware(s.resultsHandler.HandleResults, "results"))
	mux.HandleFunc("GET /results/export", MetricsMiddleware(s.resultsHandler.HandleExport, "results_export"))
	mux.HandleFunc("GET /finalists", MetricsMiddleware(s.resultsHandler.HandleFinalists, "finalists"))

	mux.HandleFunc("POST /scores", MetricsMiddleware(s.scoresHandler.HandlePostScore, "scores"))

	mux.HandleFunc("GET /candidates", MetricsMiddleware(s.candidateHandler.HandleList, "candidates"))
	mux.HandleFunc("POST /candidates", MetricsMiddleware(s.candidateHandler.HandleAdd, "candidates"))
	mux.HandleFunc("DELETE /candidates/{id}", MetricsMiddleware(s.candidateHandler.HandleDelete, "candidates"))

	mux.HandleFunc("GET /judges/{id}/progress", MetricsMiddleware(s.judgesHandler.HandleProgress, "judge_progress"))
	mux.HandleFunc("GET /judges/{id}/slate", MetricsMiddleware(s.judgesHandler.HandleSlate, "judge_slate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, validate *validator.Validate) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

