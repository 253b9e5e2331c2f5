// Package scoring turns raw judge marks into category averages and composite
// totals. Every filter recipe is evaluated through Scorer.Evaluate so that the
// leaderboard, the exporter and the finals qualifier cannot diverge.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/tabulator/internal/domain/schema"
)

// ScoreRepository supplies the raw mark values of a (candidate, category)
// pair. Implementations must return every stored value exactly once.
type ScoreRepository interface {
	Scores(ctx context.Context, candidateID, category string) ([]float64, error)
}

// Aggregator computes per-category averages.
type Aggregator struct {
	repo ScoreRepository
}

// NewAggregator creates an aggregator reading from repo.
func NewAggregator(repo ScoreRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// AverageScore returns the arithmetic mean of all marks for the pair, or 0
// when there are none.
func (a *Aggregator) AverageScore(ctx context.Context, candidateID, category string) (float64, error) {
	values, err := a.repo.Scores(ctx, candidateID, category)
	if err != nil {
		return 0, fmt.Errorf("load scores for %s/%s: %w", candidateID, category, err)
	}
	return Mean(values), nil
}

// Mean is the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Combine applies a total policy to a set of category averages.
//
// The mean policy averages only the strictly positive values and yields 0 when
// none qualify; the sum policy adds every value.
func Combine(policy schema.Policy, averages []float64) float64 {
	switch policy {
	case schema.PolicySum:
		sum := 0.0
		for _, v := range averages {
			sum += v
		}
		return sum
	default:
		sum, n := 0.0, 0
		for _, v := range averages {
			if v > 0 {
				sum += v
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
}

// Scorer computes composite totals and filter metrics over a schema.
type Scorer struct {
	schema *schema.Schema
	agg    *Aggregator
}

// NewScorer creates a scorer for s reading marks from repo.
func NewScorer(s *schema.Schema, repo ScoreRepository) *Scorer {
	return &Scorer{schema: s, agg: NewAggregator(repo)}
}

// AverageScore delegates to the underlying aggregator.
func (s *Scorer) AverageScore(ctx context.Context, candidateID, category string) (float64, error) {
	if _, ok := s.schema.Category(category); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return s.agg.AverageScore(ctx, candidateID, category)
}

// Breakdown returns the averages of the given categories in order.
func (s *Scorer) Breakdown(ctx context.Context, candidateID string, categories []string) ([]float64, error) {
	out := make([]float64, len(categories))
	for i, key := range categories {
		avg, err := s.AverageScore(ctx, candidateID, key)
		if err != nil {
			return nil, err
		}
		out[i] = avg
	}
	return out, nil
}

// Total computes a named composite total.
func (s *Scorer) Total(ctx context.Context, candidateID, totalKey string) (float64, error) {
	t, ok := s.schema.Total(totalKey)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTotal, totalKey)
	}
	averages, err := s.Breakdown(ctx, candidateID, t.Categories)
	if err != nil {
		return 0, err
	}
	return Combine(t.Policy, averages), nil
}

// Evaluate computes the ranking metric of a filter for one candidate together
// with the value of every presentation column, in column order.
func (s *Scorer) Evaluate(ctx context.Context, candidateID string, f schema.Filter) (float64, []float64, error) {
	switch f.Kind {
	case schema.MetricCategory:
		avg, err := s.AverageScore(ctx, candidateID, f.Metric)
		if err != nil {
			return 0, nil, err
		}
		return avg, []float64{avg}, nil
	case schema.MetricTotal:
		t, ok := s.schema.Total(f.Metric)
		if !ok {
			return 0, nil, fmt.Errorf("%w: %q", ErrUnknownTotal, f.Metric)
		}
		averages := make(map[string]float64, len(f.Columns))
		for _, col := range f.Columns {
			if col.Total {
				continue
			}
			avg, err := s.AverageScore(ctx, candidateID, col.Key)
			if err != nil {
				return 0, nil, err
			}
			averages[col.Key] = avg
		}
		parts := make([]float64, len(t.Categories))
		for i, key := range t.Categories {
			avg, ok := averages[key]
			if !ok {
				var err error
				if avg, err = s.AverageScore(ctx, candidateID, key); err != nil {
					return 0, nil, err
				}
			}
			parts[i] = avg
		}
		metric := Combine(t.Policy, parts)
		values := make([]float64, len(f.Columns))
		for i, col := range f.Columns {
			if col.Total {
				values[i] = metric
			} else {
				values[i] = averages[col.Key]
			}
		}
		return metric, values, nil
	default:
		return 0, nil, fmt.Errorf("%w: filter %q", ErrUnknownMetric, f.Name)
	}
}
