package simulate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tabulator/internal/adapters/http/api"
	service "github.com/okian/tabulator/internal/app"
	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/types"
)

func startServer(t *testing.T, edition string) *httptest.Server {
	t.Helper()
	def, err := schema.Edition(edition)
	if err != nil {
		t.Fatalf("edition: %v", err)
	}
	s, err := schema.Compile(def, []model.Gender{"male", "female"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	svc := service.New(s, service.WithWorkerCount(4), service.WithQueueSize(64))
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(ctx)
	})
	return srv
}

func TestRun(t *testing.T) {
	convey.Convey("Given a fresh service with finals", t, func() {
		srv := startServer(t, "prelim-7")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		convey.Convey("When a simulation runs against it", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:             srv.URL,
				Judges:              3,
				CandidatesPerGender: 7,
				DuplicateRate:       0.25,
				Workers:             8,
				Seed:                42,
			})

			convey.Convey("Then every check passes", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Registered, convey.ShouldEqual, 14)
				convey.So(stats.Accepted, convey.ShouldBeGreaterThan, 0)
				convey.So(stats.Duplicates, convey.ShouldBeGreaterThan, 0)
				convey.So(stats.Accepted+stats.Duplicates, convey.ShouldEqual, stats.Planned)
				convey.So(stats.NotEligible, convey.ShouldEqual, 1)
				convey.So(stats.Failed, convey.ShouldEqual, 0)
				convey.So(stats.ReportsChecked, convey.ShouldBeGreaterThan, 0)
			})
		})
	})

	convey.Convey("Given a service without finals", t, func() {
		srv := startServer(t, "classic-5")

		convey.Convey("Then a small queue and no duplicates still verify", func() {
			stats, err := Run(context.Background(), &Config{
				BaseURL:             srv.URL,
				Judges:              2,
				CandidatesPerGender: 3,
				Genders:             []string{"Female", "male"},
				Workers:             16,
				Seed:                7,
			})
			convey.So(err, convey.ShouldBeNil)
			convey.So(stats.Duplicates, convey.ShouldEqual, 0)
			convey.So(stats.NotEligible, convey.ShouldEqual, 0)
			convey.So(stats.Accepted, convey.ShouldEqual, stats.Planned)
		})
	})

	convey.Convey("Given no service", t, func() {
		convey.Convey("Then the health check fails", func() {
			_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
			convey.So(errors.Is(err, ErrUnhealthy), convey.ShouldBeTrue)
		})
	})
}

func report(gender string, rows ...types.RankedResult) types.Report {
	return types.Report{Filter: "overall", Gender: model.Gender(gender), Count: len(rows), Results: rows}
}

func result(rank int, id, gender string, metric float64) types.RankedResult {
	return types.RankedResult{Rank: rank, Candidate: model.Candidate{ID: id, Gender: model.Gender(gender)}, Metric: metric}
}

func TestChecks(t *testing.T) {
	convey.Convey("Given a well formed report", t, func() {
		rep := report("all", result(1, "a", "female", 90), result(2, "b", "male", 90), result(3, "c", "male", 10))

		convey.Convey("Then it passes the ordering checks", func() {
			convey.So(checkReport(rep, "overall", "all"), convey.ShouldBeEmpty)
			convey.So(sameRanking(rep, rep), convey.ShouldBeNil)
		})

		convey.Convey("Then partitions that split it pass", func() {
			byPartition := map[string]types.Report{
				"all":    rep,
				"female": report("female", result(1, "a", "female", 90)),
				"male":   report("male", result(1, "b", "male", 90), result(2, "c", "male", 10)),
			}
			convey.So(checkPartitions(byPartition, []string{"female", "male"}, 3), convey.ShouldBeEmpty)
		})
	})

	convey.Convey("Given broken reports", t, func() {
		convey.Convey("Then an increasing metric is caught", func() {
			rep := report("all", result(1, "a", "female", 10), result(2, "b", "male", 20))
			convey.So(checkReport(rep, "overall", "all"), convey.ShouldHaveLength, 1)
		})

		convey.Convey("Then a gap in ranks is caught", func() {
			rep := report("all", result(1, "a", "female", 20), result(3, "b", "male", 10))
			convey.So(checkReport(rep, "overall", "all"), convey.ShouldHaveLength, 1)
		})

		convey.Convey("Then a foreign gender in a partition is caught", func() {
			rep := report("male", result(1, "a", "female", 20))
			convey.So(checkReport(rep, "overall", "male"), convey.ShouldHaveLength, 1)
		})

		convey.Convey("Then a reordered repeat is caught", func() {
			a := report("all", result(1, "a", "female", 20), result(2, "b", "male", 20))
			b := report("all", result(1, "b", "male", 20), result(2, "a", "female", 20))
			convey.So(sameRanking(a, b), convey.ShouldNotBeNil)
		})

		convey.Convey("Then a candidate missing from a partition is caught", func() {
			byPartition := map[string]types.Report{
				"all":    report("all", result(1, "a", "female", 90), result(2, "b", "male", 80)),
				"female": report("female", result(1, "a", "female", 90)),
				"male":   report("male"),
			}
			convey.So(checkPartitions(byPartition, []string{"female", "male"}, 2), convey.ShouldHaveLength, 1)
		})
	})
}

func TestLedgerMetric(t *testing.T) {
	convey.Convey("Given accepted values", t, func() {
		l := newLedger()
		l.add("c1", "gown", 80)
		l.add("c1", "gown", 90)
		l.add("c1", "qa", 70)
		info := &SchemaInfo{Totals: []schema.Total{
			{Key: "overall_total", Filter: "overall", Policy: schema.PolicyMean, Categories: []string{"gown", "qa", "talent"}},
			{Key: "sum_total", Filter: "summed", Policy: schema.PolicySum, Categories: []string{"gown", "qa", "talent"}},
		}}

		convey.Convey("Then category filters use the mean", func() {
			convey.So(l.metric(info, schema.Filter{Name: "top_gown", Metric: "gown"}, "c1"), convey.ShouldEqual, 85)
		})

		convey.Convey("Then the mean policy skips empty categories", func() {
			convey.So(l.metric(info, schema.Filter{Name: "overall", Metric: "overall_total"}, "c1"), convey.ShouldEqual, 77.5)
		})

		convey.Convey("Then the sum policy adds every category", func() {
			convey.So(l.metric(info, schema.Filter{Name: "summed", Metric: "sum_total"}, "c1"), convey.ShouldEqual, 155)
		})

		convey.Convey("Then a candidate without marks scores zero", func() {
			convey.So(l.metric(info, schema.Filter{Name: "overall", Metric: "overall_total"}, "c2"), convey.ShouldEqual, 0)
		})
	})
}

func TestPlanner(t *testing.T) {
	convey.Convey("Given a seeded planner", t, func() {
		cats := []schema.Category{
			{Key: "gown", Max: 100},
			{Key: "talent", Max: 100, Criteria: []schema.Criterion{{Key: "skill", Max: 60}, {Key: "stage", Max: 40}}},
		}
		cands := []model.Candidate{{ID: "a"}, {ID: "b"}}
		judges := judgeIDs(3)

		convey.Convey("Then the same seed yields the same plan", func() {
			p1 := newPlanner(9, 0.5).plan(cats, cands, judges)
			p2 := newPlanner(9, 0.5).plan(cats, cands, judges)
			convey.So(p1, convey.ShouldResemble, p2)
		})

		convey.Convey("Then every key is planned at least once and values stay in range", func() {
			marks := newPlanner(3, 0.3).plan(cats, cands, judges)
			keys := map[model.SubmissionKey]bool{}
			for _, m := range marks {
				keys[m.key()] = true
				convey.So(m.expected(100), convey.ShouldBeBetweenOrEqual, 0, 100)
				convey.So(m.Value == nil, convey.ShouldEqual, m.Criteria != nil)
			}
			convey.So(len(keys), convey.ShouldEqual, len(cats)*len(cands)*len(judges))
			convey.So(len(marks), convey.ShouldBeGreaterThanOrEqualTo, len(keys))
		})
	})
}
