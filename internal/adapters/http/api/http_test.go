package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tabulator/internal/adapters/export"
	"github.com/okian/tabulator/internal/adapters/repository"
	service "github.com/okian/tabulator/internal/app"
	"github.com/okian/tabulator/internal/domain/judging"
	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/ranking"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/types"
)

// mockDeps records calls and returns canned answers.
type mockDeps struct {
	mu sync.Mutex

	schema *schema.Schema

	submitErr error
	submitted []model.Submission

	rankErr      error
	rankArgs     [2]string
	exportErr    error
	exportFormat string
	finalsErr    error

	candidates    []model.Candidate
	addErr        error
	deactivated   []string
	deactivateErr error

	slateErr      error
	slateArgs     [2]string
	progressJudge string
}

func (m *mockDeps) Submit(_ context.Context, sub model.Submission) (model.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, sub)
	if m.submitErr != nil {
		return model.ScoreRecord{}, m.submitErr
	}
	v := 0.0
	if sub.Value != nil {
		v = *sub.Value
	}
	for _, c := range sub.Criteria {
		v += c
	}
	return model.ScoreRecord{
		ID:          "rec-1",
		CandidateID: sub.CandidateID,
		JudgeID:     sub.JudgeID,
		Category:    sub.Category,
		Value:       v,
		SubmittedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockDeps) Rank(_ context.Context, filter, gender string) (types.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rankArgs = [2]string{filter, gender}
	if m.rankErr != nil {
		return types.Report{}, m.rankErr
	}
	return types.Report{
		Title:  "Overall",
		Filter: "overall",
		Gender: model.PartitionAll,
		Count:  1,
		Shape:  schema.ShapeBreakdown,
		Results: []types.RankedResult{{
			Rank:      1,
			Candidate: model.Candidate{ID: "f1", Number: 1, Name: "Ana", Gender: "female", Active: true},
			Metric:    91.5,
		}},
	}, nil
}

func (m *mockDeps) Export(_ context.Context, _, _, format string) (types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportFormat = format
	if m.exportErr != nil {
		return types.Attachment{}, m.exportErr
	}
	return types.Attachment{
		Filename:    "overall_all_20240501-100000.csv",
		ContentType: "text/csv; charset=utf-8",
		Body:        []byte("Rank,Number,Name\n1,1,Ana\n"),
	}, nil
}

func (m *mockDeps) Finalists(_ context.Context, _ string) ([]types.Report, error) {
	if m.finalsErr != nil {
		return nil, m.finalsErr
	}
	return []types.Report{{Title: "Finalists", Gender: "female"}, {Title: "Finalists", Gender: "male"}}, nil
}

func (m *mockDeps) AddCandidate(_ context.Context, c model.Candidate) (model.Candidate, error) {
	if m.addErr != nil {
		return model.Candidate{}, m.addErr
	}
	c.ID = "new-id"
	c.Active = true
	return c, nil
}

func (m *mockDeps) DeactivateCandidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *mockDeps) Candidates(_ context.Context, gender string) ([]model.Candidate, error) {
	var out []model.Candidate
	for _, c := range m.candidates {
		if gender == "" || gender == model.PartitionAll || string(c.Gender) == gender {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockDeps) Progress(_ context.Context, judgeID string) (types.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressJudge = judgeID
	return types.Progress{
		JudgeID:    judgeID,
		Categories: []types.CategoryProgress{{Category: "gown", Label: "Gown", Total: 4, Completed: 1, Remaining: 3, Percentage: 25}},
	}, nil
}

func (m *mockDeps) Slate(_ context.Context, judgeID, category string) (types.Slate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slateArgs = [2]string{judgeID, category}
	if m.slateErr != nil {
		return types.Slate{}, m.slateErr
	}
	return types.Slate{JudgeID: judgeID, Category: category, Order: schema.OrderInterleaved}, nil
}

func (m *mockDeps) Schema() *schema.Schema { return m.schema }

func (m *mockDeps) Stats(context.Context) types.Stats {
	return types.Stats{Started: true, Edition: m.schema.Edition(), WorkerCount: 2, QueueCapacity: 10}
}

func newTestMux(t *testing.T, deps *mockDeps) *http.ServeMux {
	t.Helper()
	def, err := schema.Edition(schema.DefaultEdition)
	if err != nil {
		t.Fatalf("edition: %v", err)
	}
	s, err := schema.Compile(def, []model.Gender{"female", "male"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	deps.schema = s
	mux := http.NewServeMux()
	NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) errorResponse {
	var e errorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &e)
	return e
}

func TestClassify(t *testing.T) {
	convey.Convey("Given domain errors", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{NewKind("op", ErrBadRequest), http.StatusBadRequest, "bad_request"},
			{service.ErrInvalidSubmission, http.StatusBadRequest, "bad_request"},
			{repository.ErrInvalidCandidate, http.StatusBadRequest, "bad_request"},
			{export.ErrUnsupportedFormat, http.StatusBadRequest, "bad_request"},
			{repository.ErrNotFound, http.StatusNotFound, "not_found"},
			{judging.ErrUnknownCategory, http.StatusNotFound, "not_found"},
			{ranking.ErrNoFinals, http.StatusNotFound, "not_found"},
			{service.ErrDuplicateSubmission, http.StatusConflict, "duplicate"},
			{repository.ErrDuplicateCandidate, http.StatusConflict, "duplicate"},
			{service.ErrNotEligible, http.StatusUnprocessableEntity, "not_eligible"},
			{service.ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
			{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		}
		for _, tc := range cases {
			convey.Convey("Then "+tc.err.Error()+" maps to "+http.StatusText(tc.status), func() {
				status, code := classify(fmt.Errorf("wrapped: %w", tc.err))
				convey.So(status, convey.ShouldEqual, tc.status)
				convey.So(code, convey.ShouldEqual, tc.code)
			})
		}
	})

	convey.Convey("Given an opError", t, func() {
		err := WrapKind("api.x", ErrBadRequest, errors.New("bad json"))

		convey.Convey("Then it unwraps to both kind and cause", func() {
			convey.So(errors.Is(err, ErrBadRequest), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldEqual, "api.x: bad request: bad json")
		})

		convey.Convey("Then fail does not wrap it twice", func() {
			w := httptest.NewRecorder()
			fail(w, "api.y", err)
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(decodeError(w).Message, convey.ShouldEqual, "api.x: bad request: bad json")
		})

		convey.Convey("Then Wrap of nil is nil", func() {
			convey.So(Wrap("op", nil), convey.ShouldBeNil)
		})
	})
}

func TestResultsEndpoints(t *testing.T) {
	convey.Convey("Given an API server", t, func() {
		deps := &mockDeps{}
		mux := newTestMux(t, deps)

		convey.Convey("When requesting results", func() {
			w := do(mux, "GET", "/results?filter=top_gown&gender=female", "")

			convey.Convey("Then the report is returned with the query forwarded", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/json; charset=utf-8")
				convey.So(deps.rankArgs, convey.ShouldResemble, [2]string{"top_gown", "female"})
				var report types.Report
				convey.So(json.Unmarshal(w.Body.Bytes(), &report), convey.ShouldBeNil)
				convey.So(report.Filter, convey.ShouldEqual, "overall")
				convey.So(report.Results, convey.ShouldHaveLength, 1)
				convey.So(report.Results[0].Metric, convey.ShouldEqual, 91.5)
			})
		})

		convey.Convey("When ranking fails", func() {
			deps.rankErr = service.ErrNotStarted
			w := do(mux, "GET", "/results", "")

			convey.Convey("Then the service is unavailable", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
				convey.So(decodeError(w).Code, convey.ShouldEqual, "unavailable")
			})
		})

		convey.Convey("When exporting results", func() {
			w := do(mux, "GET", "/results/export?format=csv", "")

			convey.Convey("Then an attachment is served", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/csv; charset=utf-8")
				convey.So(w.Header().Get("Content-Disposition"), convey.ShouldEqual, `attachment; filename="overall_all_20240501-100000.csv"`)
				convey.So(w.Header().Get("Content-Length"), convey.ShouldEqual, "25")
				convey.So(w.Body.String(), convey.ShouldStartWith, "Rank,Number,Name")
				convey.So(deps.exportFormat, convey.ShouldEqual, "csv")
			})
		})

		convey.Convey("When exporting an unsupported format", func() {
			deps.exportErr = fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, "xml")
			w := do(mux, "GET", "/results/export?format=xml", "")

			convey.Convey("Then it is a bad request", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When requesting finalists", func() {
			w := do(mux, "GET", "/finalists", "")

			convey.Convey("Then one report per partition is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var reports []types.Report
				convey.So(json.Unmarshal(w.Body.Bytes(), &reports), convey.ShouldBeNil)
				convey.So(reports, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When the schema has no finals", func() {
			deps.finalsErr = ranking.ErrNoFinals
			w := do(mux, "GET", "/finalists", "")

			convey.Convey("Then finalists are not found", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestScoreEndpoint(t *testing.T) {
	convey.Convey("Given an API server", t, func() {
		deps := &mockDeps{}
		mux := newTestMux(t, deps)

		convey.Convey("When posting a valid value", func() {
			w := do(mux, "POST", "/scores", `{"candidate_id":"f1","judge_id":"j1","category":"gown","value":88.5,"ts":"2024-05-01T10:00:00Z"}`)

			convey.Convey("Then it is accepted", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)
				var ack ackResponse
				convey.So(json.Unmarshal(w.Body.Bytes(), &ack), convey.ShouldBeNil)
				convey.So(ack.Status, convey.ShouldEqual, "accepted")
				convey.So(ack.Record.Value, convey.ShouldEqual, 88.5)
				convey.So(deps.submitted, convey.ShouldHaveLength, 1)
				convey.So(deps.submitted[0].TS.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When posting criteria instead of a value", func() {
			w := do(mux, "POST", "/scores", `{"candidate_id":"f1","judge_id":"j1","category":"talent","criteria":{"skill":40,"stage":30}}`)

			convey.Convey("Then the criteria are forwarded", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)
				convey.So(deps.submitted[0].Value, convey.ShouldBeNil)
				convey.So(deps.submitted[0].Criteria, convey.ShouldResemble, map[string]float64{"skill": 40, "stage": 30})
			})
		})

		convey.Convey("When the body is invalid", func() {
			bodies := []struct{ name, body string }{
				{"malformed", `{"candidate_id":`},
				{"missing judge", `{"candidate_id":"f1","category":"gown","value":1}`},
				{"no mark", `{"candidate_id":"f1","judge_id":"j1","category":"gown"}`},
				{"unknown field", `{"candidate_id":"f1","judge_id":"j1","category":"gown","value":1,"extra":true}`},
				{"bad ts", `{"candidate_id":"f1","judge_id":"j1","category":"gown","value":1,"ts":"yesterday"}`},
			}
			for _, tc := range bodies {
				convey.Convey("Then "+tc.name+" is a bad request", func() {
					w := do(mux, "POST", "/scores", tc.body)
					convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
					convey.So(decodeError(w).Code, convey.ShouldEqual, "bad_request")
					convey.So(deps.submitted, convey.ShouldBeEmpty)
				})
			}
		})

		convey.Convey("When the service rejects the mark", func() {
			cases := []struct {
				name   string
				err    error
				status int
			}{
				{"duplicate", service.ErrDuplicateSubmission, http.StatusConflict},
				{"not eligible", fmt.Errorf("%w: finals", service.ErrNotEligible), http.StatusUnprocessableEntity},
				{"backpressure", service.ErrBackpressure, http.StatusTooManyRequests},
				{"unknown", repository.ErrNotFound, http.StatusNotFound},
				{"invalid", fmt.Errorf("%w: value above max", service.ErrInvalidSubmission), http.StatusBadRequest},
			}
			for _, tc := range cases {
				convey.Convey("Then "+tc.name+" maps to "+http.StatusText(tc.status), func() {
					deps.submitErr = tc.err
					w := do(mux, "POST", "/scores", `{"candidate_id":"f1","judge_id":"j1","category":"gown","value":1}`)
					convey.So(w.Code, convey.ShouldEqual, tc.status)
					convey.So(decodeError(w).Message, convey.ShouldStartWith, "api.post_score: ")
				})
			}
		})

		convey.Convey("When using the wrong method", func() {
			w := do(mux, "GET", "/scores", "")

			convey.Convey("Then it is not allowed", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestCandidateEndpoints(t *testing.T) {
	convey.Convey("Given an API server with candidates", t, func() {
		deps := &mockDeps{candidates: []model.Candidate{
			{ID: "f1", Number: 1, Name: "Ana", Gender: "female", Active: true},
			{ID: "m1", Number: 1, Name: "Carl", Gender: "male", Active: true},
		}}
		mux := newTestMux(t, deps)

		convey.Convey("When listing by gender", func() {
			w := do(mux, "GET", "/candidates?gender=male", "")

			convey.Convey("Then only that partition is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var list []model.Candidate
				convey.So(json.Unmarshal(w.Body.Bytes(), &list), convey.ShouldBeNil)
				convey.So(list, convey.ShouldHaveLength, 1)
				convey.So(list[0].ID, convey.ShouldEqual, "m1")
			})
		})

		convey.Convey("When adding a candidate", func() {
			w := do(mux, "POST", "/candidates", `{"number":2,"name":"Bea","gender":"female"}`)

			convey.Convey("Then it is created", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusCreated)
				var c model.Candidate
				convey.So(json.Unmarshal(w.Body.Bytes(), &c), convey.ShouldBeNil)
				convey.So(c.ID, convey.ShouldEqual, "new-id")
				convey.So(c.Gender, convey.ShouldEqual, model.Gender("female"))
			})
		})

		convey.Convey("When adding a candidate with a bad number", func() {
			w := do(mux, "POST", "/candidates", `{"number":0,"name":"Bea","gender":"female"}`)

			convey.Convey("Then it is rejected", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When the number is taken", func() {
			deps.addErr = repository.ErrDuplicateCandidate
			w := do(mux, "POST", "/candidates", `{"number":1,"name":"Ann","gender":"female"}`)

			convey.Convey("Then it conflicts", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusConflict)
			})
		})

		convey.Convey("When withdrawing a candidate", func() {
			w := do(mux, "DELETE", "/candidates/f1", "")

			convey.Convey("Then no content is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusNoContent)
				convey.So(deps.deactivated, convey.ShouldResemble, []string{"f1"})
			})
		})

		convey.Convey("When withdrawing an unknown candidate", func() {
			deps.deactivateErr = repository.ErrNotFound
			w := do(mux, "DELETE", "/candidates/zz", "")

			convey.Convey("Then it is not found", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestJudgeEndpoints(t *testing.T) {
	convey.Convey("Given an API server", t, func() {
		deps := &mockDeps{}
		mux := newTestMux(t, deps)

		convey.Convey("When requesting progress", func() {
			w := do(mux, "GET", "/judges/j7/progress", "")

			convey.Convey("Then the judge's progress is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.progressJudge, convey.ShouldEqual, "j7")
				var p types.Progress
				convey.So(json.Unmarshal(w.Body.Bytes(), &p), convey.ShouldBeNil)
				convey.So(p.Categories[0].Percentage, convey.ShouldEqual, 25)
			})
		})

		convey.Convey("When requesting a slate", func() {
			w := do(mux, "GET", "/judges/j7/slate?category=gown", "")

			convey.Convey("Then the slate is returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.slateArgs, convey.ShouldResemble, [2]string{"j7", "gown"})
			})
		})

		convey.Convey("When the slate category is missing", func() {
			w := do(mux, "GET", "/judges/j7/slate", "")

			convey.Convey("Then it is a bad request", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
				convey.So(decodeError(w).Message, convey.ShouldEqual, "api.judge_slate: bad request")
			})
		})

		convey.Convey("When the slate category is unknown", func() {
			deps.slateErr = judging.ErrUnknownCategory
			w := do(mux, "GET", "/judges/j7/slate?category=nope", "")

			convey.Convey("Then it is not found", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServiceEndpoints(t *testing.T) {
	convey.Convey("Given an API server", t, func() {
		deps := &mockDeps{}
		mux := newTestMux(t, deps)

		convey.Convey("When requesting the schema", func() {
			w := do(mux, "GET", "/schema", "")

			convey.Convey("Then the edition and catalog are returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var resp schemaResponse
				convey.So(json.Unmarshal(w.Body.Bytes(), &resp), convey.ShouldBeNil)
				convey.So(resp.Edition, convey.ShouldEqual, schema.DefaultEdition)
				convey.So(resp.DefaultFilter, convey.ShouldEqual, deps.schema.Catalog().Default().Name)
				convey.So(len(resp.Filters), convey.ShouldEqual, len(deps.schema.Catalog().Filters()))
				convey.So(len(resp.Categories), convey.ShouldEqual, len(deps.schema.Categories()))
			})
		})

		convey.Convey("When requesting stats", func() {
			w := do(mux, "GET", "/stats", "")

			convey.Convey("Then the service statistics are returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var st types.Stats
				convey.So(json.Unmarshal(w.Body.Bytes(), &st), convey.ShouldBeNil)
				convey.So(st.Started, convey.ShouldBeTrue)
				convey.So(st.WorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When scraping healthz after a request", func() {
			_ = do(mux, "GET", "/stats", "")
			w := do(mux, "GET", "/healthz", "")

			convey.Convey("Then HTTP metrics are exposed", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "tabulator_")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `endpoint="stats"`)
			})
		})
	})
}

func TestMiddlewareErrorTypes(t *testing.T) {
	convey.Convey("Given HTTP status codes", t, func() {
		convey.So(getErrorType(http.StatusInternalServerError), convey.ShouldEqual, "server_error")
		convey.So(getErrorType(http.StatusTooManyRequests), convey.ShouldEqual, "backpressure")
		convey.So(getErrorType(http.StatusNotFound), convey.ShouldEqual, "not_found")
		convey.So(getErrorType(http.StatusConflict), convey.ShouldEqual, "duplicate")
		convey.So(getErrorType(http.StatusUnprocessableEntity), convey.ShouldEqual, "not_eligible")
		convey.So(getErrorType(http.StatusBadRequest), convey.ShouldEqual, "client_error")
		convey.So(getErrorType(http.StatusOK), convey.ShouldEqual, "unknown")
		convey.So(getErrorSeverity(http.StatusInternalServerError), convey.ShouldEqual, "high")
	})
}
