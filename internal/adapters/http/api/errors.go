package api

import (
	"errors"
	"net/http"

	"github.com/okian/tabulator/internal/adapters/export"
	"github.com/okian/tabulator/internal/adapters/repository"
	service "github.com/okian/tabulator/internal/app"
	"github.com/okian/tabulator/internal/domain/judging"
	"github.com/okian/tabulator/internal/domain/ranking"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("backpressure")
)

// opError records the handler that failed, the kind of failure and the
// underlying cause.
type opError struct {
	Op   string
	Kind error
	Err  error
}

func (e *opError) Error() string {
	switch {
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	case e.Kind == nil:
		return e.Op + ": " + e.Err.Error()
	default:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
}

func (e *opError) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &opError{Op: op, Kind: kind}
}

// Wrap attaches op to err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{Op: op, Err: err}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &opError{Op: op, Kind: kind, Err: err}
}

// classify maps an error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, repository.ErrInvalidCandidate),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, judging.ErrUnknownCategory),
		errors.Is(err, ranking.ErrNoFinals):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrDuplicateSubmission),
		errors.Is(err, repository.ErrDuplicateCandidate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, service.ErrNotEligible):
		return http.StatusUnprocessableEntity, "not_eligible"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with the status derived from its kind.
func fail(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	var oe *opError
	if !errors.As(err, &oe) {
		err = Wrap(op, err)
	}
	writeError(w, status, code, err)
}
