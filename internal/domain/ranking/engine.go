// Package ranking produces ordered leaderboards for a filter and a gender
// partition. It resolves filters through the schema catalog and evaluates every
// recipe through scoring.Scorer, so adding a category needs no change here.
package ranking

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/scoring"
	"github.com/okian/tabulator/internal/domain/types"
	"github.com/okian/tabulator/pkg/logger"
)

// Source is a consistent, read-only view of candidates and marks.
type Source interface {
	scoring.ScoreRepository
	// ActiveCandidates returns the active candidates in any order.
	ActiveCandidates() []model.Candidate
}

// Snapshotter hands out a consistent Source per ranking.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Source, error)
}

// SnapshotFunc adapts a function to Snapshotter.
type SnapshotFunc func(ctx context.Context) (Source, error)

// Snapshot calls f(ctx).
func (f SnapshotFunc) Snapshot(ctx context.Context) (Source, error) { return f(ctx) }

// Engine ranks candidates. Safe for concurrent use.
type Engine struct {
	schema      *schema.Schema
	snap        Snapshotter
	logger      logger.Logger
	now         func() time.Time
	concurrency int
	genders     []model.Gender
	genderOrder map[model.Gender]int
}

// NewEngine creates a ranking engine over s.
func NewEngine(s *schema.Schema, snap Snapshotter, opts ...Option) *Engine {
	e := &Engine{
		schema:      s,
		snap:        snap,
		logger:      logger.Get().Named("ranking"),
		now:         time.Now,
		concurrency: runtime.GOMAXPROCS(0),
		genders:     []model.Gender{"male", "female"},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.genderOrder = make(map[model.Gender]int, len(e.genders))
	for i, g := range e.genders {
		e.genderOrder[g] = i
	}
	return e
}

// ResolveGender maps a raw partition value to a configured gender, or to
// "all" when it is empty or unknown.
func (e *Engine) ResolveGender(raw string) model.Gender {
	g := model.Gender(raw).Normalize()
	if _, ok := e.genderOrder[g]; ok {
		return g
	}
	return model.Gender(model.PartitionAll)
}

// Rank computes the leaderboard for a filter and gender partition. Unknown
// filters fall back to the catalog default and the report echoes the filter
// actually used.
func (e *Engine) Rank(ctx context.Context, filter, gender string) (types.Report, error) {
	f, known := e.schema.Catalog().ResolveOrDefault(filter)
	if !known {
		e.logger.Debug(ctx, "unknown filter, using default",
			logger.String("requested", filter),
			logger.String("filter", f.Name))
	}
	src, err := e.snap.Snapshot(ctx)
	if err != nil {
		return types.Report{}, fmt.Errorf("snapshot: %w", err)
	}
	return e.rank(ctx, src, f, e.ResolveGender(gender))
}

// Finalists returns, per gender partition, the top candidates by the finals
// qualifier total. Candidates without any qualifying score are left out.
func (e *Engine) Finalists(ctx context.Context, gender string) ([]types.Report, error) {
	finals, ok := e.schema.Finals()
	if !ok {
		return nil, ErrNoFinals
	}
	total, _ := e.schema.Total(finals.QualifierTotal)
	f, _ := e.schema.Catalog().Resolve(total.Filter)
	cat, _ := e.schema.Category(finals.Category)

	partitions := e.genders
	if g := e.ResolveGender(gender); g != model.Gender(model.PartitionAll) {
		partitions = []model.Gender{g}
	}

	src, err := e.snap.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out := make([]types.Report, 0, len(partitions))
	for _, g := range partitions {
		r, err := e.rank(ctx, src, f, g)
		if err != nil {
			return nil, err
		}
		kept := r.Results[:0]
		for _, res := range r.Results {
			if len(kept) == finals.Size {
				break
			}
			if res.Metric > 0 {
				kept = append(kept, res)
			}
		}
		r.Results = kept
		r.Count = len(kept)
		r.Title = e.title(cat.Label+" Finalists", g)
		out = append(out, r)
	}
	return out, nil
}

type row struct {
	candidate model.Candidate
	metric    float64
	values    []float64
}

func (e *Engine) rank(ctx context.Context, src Source, f schema.Filter, gender model.Gender) (types.Report, error) {
	all := src.ActiveCandidates()
	rows := make([]row, 0, len(all))
	for _, c := range all {
		if gender == model.Gender(model.PartitionAll) || c.Gender.Normalize() == gender {
			rows = append(rows, row{candidate: c})
		}
	}

	scorer := scoring.NewScorer(e.schema, src)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			metric, values, err := scorer.Evaluate(gctx, rows[i].candidate.ID, f)
			if err != nil {
				return fmt.Errorf("evaluate %s for %s: %w", f.Name, rows[i].candidate.ID, err)
			}
			rows[i].metric, rows[i].values = metric, values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Report{}, err
	}

	sort.SliceStable(rows, func(a, b int) bool { return e.less(rows[a], rows[b]) })

	results := make([]types.RankedResult, len(rows))
	for i, r := range rows {
		scores := make([]types.Score, len(f.Columns))
		for j, col := range f.Columns {
			scores[j] = types.Score{Key: col.Key, Label: col.Label, Value: r.values[j]}
		}
		results[i] = types.RankedResult{
			Rank:      i + 1,
			Candidate: r.candidate,
			Metric:    r.metric,
			Scores:    scores,
		}
	}

	return types.Report{
		Title:       e.title(f.Title, gender),
		Filter:      f.Name,
		Gender:      gender,
		GeneratedAt: e.now(),
		Count:       len(results),
		Shape:       f.Shape,
		Columns:     append([]schema.Column(nil), f.Columns...),
		Results:     results,
	}, nil
}

// less orders by metric descending, then number, gender order and id.
func (e *Engine) less(a, b row) bool {
	if a.metric != b.metric {
		return a.metric > b.metric
	}
	if a.candidate.Number != b.candidate.Number {
		return a.candidate.Number < b.candidate.Number
	}
	ga, gb := e.genderRank(a.candidate.Gender), e.genderRank(b.candidate.Gender)
	if ga != gb {
		return ga < gb
	}
	return a.candidate.ID < b.candidate.ID
}

func (e *Engine) genderRank(g model.Gender) int {
	if i, ok := e.genderOrder[g.Normalize()]; ok {
		return i
	}
	return len(e.genderOrder)
}

func (e *Engine) title(base string, gender model.Gender) string {
	if gender == model.Gender(model.PartitionAll) || gender == "" {
		return base
	}
	// Casers keep state and are not shared between goroutines.
	return fmt.Sprintf("%s (%s Only)", base, cases.Title(language.English).String(string(gender)))
}
