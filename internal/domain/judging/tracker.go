// Package judging supports the judges' side of an event: which candidates a
// judge sees for a category and in what order, how far each judge has got, and
// who may be scored in the finals round.
package judging

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/types"
	"github.com/okian/tabulator/pkg/logger"
)

// Ledger is a consistent view of who is competing and who has been scored.
type Ledger interface {
	ActiveCandidates() []model.Candidate
	// ScoredBy returns the ids of candidates the judge has scored in category.
	ScoredBy(judgeID, category string) map[string]bool
}

// LedgerSource hands out a Ledger per request.
type LedgerSource interface {
	Ledger(ctx context.Context) (Ledger, error)
}

// LedgerFunc adapts a function to LedgerSource.
type LedgerFunc func(ctx context.Context) (Ledger, error)

// Ledger calls f(ctx).
func (f LedgerFunc) Ledger(ctx context.Context) (Ledger, error) { return f(ctx) }

// Qualifier reports the finalists of the finals round per gender partition.
type Qualifier interface {
	Finalists(ctx context.Context, gender string) ([]types.Report, error)
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithLogger sets the logger for the tracker.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithGenders sets the configured gender order used when a category does not
// name its own sequence.
func WithGenders(genders ...model.Gender) Option {
	return func(t *Tracker) {
		if len(genders) > 0 {
			t.genders = make([]model.Gender, 0, len(genders))
			for _, g := range genders {
				t.genders = append(t.genders, g.Normalize())
			}
		}
	}
}

// Tracker computes judging slates and progress.
type Tracker struct {
	schema    *schema.Schema
	ledger    LedgerSource
	qualifier Qualifier
	genders   []model.Gender
	logger    logger.Logger
}

// NewTracker creates a tracker. qualifier may be nil when the schema has no
// finals round.
func NewTracker(s *schema.Schema, ledger LedgerSource, qualifier Qualifier, opts ...Option) *Tracker {
	t := &Tracker{
		schema:    s,
		ledger:    ledger,
		qualifier: qualifier,
		genders:   []model.Gender{"male", "female"},
		logger:    logger.Get().Named("judging"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Progress reports, per category, how many eligible candidates the judge has
// scored.
func (t *Tracker) Progress(ctx context.Context, judgeID string) (types.Progress, error) {
	l, err := t.ledger.Ledger(ctx)
	if err != nil {
		return types.Progress{}, fmt.Errorf("ledger: %w", err)
	}
	active := l.ActiveCandidates()
	out := types.Progress{JudgeID: judgeID}
	for _, cat := range t.schema.Categories() {
		eligible, err := t.eligible(ctx, cat.Key, active)
		if err != nil {
			return types.Progress{}, err
		}
		scored := l.ScoredBy(judgeID, cat.Key)
		p := types.CategoryProgress{Category: cat.Key, Label: cat.Label, Total: len(eligible)}
		for _, c := range eligible {
			if scored[c.ID] {
				p.Completed++
			}
		}
		p.Remaining = p.Total - p.Completed
		if p.Total > 0 {
			p.Percentage = math.Round(float64(p.Completed) * 100 / float64(p.Total))
		}
		out.Categories = append(out.Categories, p)
	}
	return out, nil
}

// Slate lists the candidates a judge scores in category, in judging order.
func (t *Tracker) Slate(ctx context.Context, judgeID, category string) (types.Slate, error) {
	cat, ok := t.schema.Category(category)
	if !ok {
		return types.Slate{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	l, err := t.ledger.Ledger(ctx)
	if err != nil {
		return types.Slate{}, fmt.Errorf("ledger: %w", err)
	}
	eligible, err := t.eligible(ctx, category, l.ActiveCandidates())
	if err != nil {
		return types.Slate{}, err
	}
	t.order(cat, eligible)

	scored := l.ScoredBy(judgeID, category)
	entries := make([]types.SlateEntry, len(eligible))
	for i, c := range eligible {
		entries[i] = types.SlateEntry{Position: i + 1, Candidate: c, HasVoted: scored[c.ID]}
	}
	return types.Slate{
		JudgeID:  judgeID,
		Category: category,
		Order:    cat.JudgingOrder,
		Finals:   t.isFinals(category),
		Entries:  entries,
	}, nil
}

// CheckEligible returns ErrNotEligible when candidateID may not be scored in
// category.
func (t *Tracker) CheckEligible(ctx context.Context, candidateID, category string) error {
	if _, ok := t.schema.Category(category); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if !t.isFinals(category) {
		return nil
	}
	ids, err := t.finalistIDs(ctx)
	if err != nil {
		return err
	}
	if !ids[candidateID] {
		t.logger.Debug(ctx, "rejecting non-finalist",
			logger.String("candidate_id", candidateID),
			logger.String("category", category))
		return fmt.Errorf("%w: %s in %s", ErrNotEligible, candidateID, category)
	}
	return nil
}

func (t *Tracker) isFinals(category string) bool {
	finals, ok := t.schema.Finals()
	return ok && t.qualifier != nil && finals.Category == category
}

func (t *Tracker) finalistIDs(ctx context.Context) (map[string]bool, error) {
	reports, err := t.qualifier.Finalists(ctx, model.PartitionAll)
	if err != nil {
		return nil, fmt.Errorf("finalists: %w", err)
	}
	ids := make(map[string]bool)
	for _, r := range reports {
		for _, res := range r.Results {
			ids[res.Candidate.ID] = true
		}
	}
	return ids, nil
}

func (t *Tracker) eligible(ctx context.Context, category string, active []model.Candidate) ([]model.Candidate, error) {
	if !t.isFinals(category) {
		return append([]model.Candidate(nil), active...), nil
	}
	ids, err := t.finalistIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candidate, 0, len(ids))
	for _, c := range active {
		if ids[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// order sorts candidates in place by the category's judging order.
func (t *Tracker) order(cat schema.Category, cs []model.Candidate) {
	rank := t.sequenceRank(cat)
	less := func(a, b model.Candidate) bool {
		ga, gb := rank(a.Gender), rank(b.Gender)
		switch cat.JudgingOrder {
		case schema.OrderGrouped:
			if ga != gb {
				return ga < gb
			}
			if a.Number != b.Number {
				return a.Number < b.Number
			}
		default:
			if a.Number != b.Number {
				return a.Number < b.Number
			}
			if ga != gb {
				return ga < gb
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(cs, func(i, j int) bool { return less(cs[i], cs[j]) })
}

// sequenceRank ranks genders by the category sequence; genders it does not
// name follow in configured order. Number order ignores the sequence.
func (t *Tracker) sequenceRank(cat schema.Category) func(model.Gender) int {
	pos := make(map[model.Gender]int, len(t.genders))
	next := 0
	if cat.JudgingOrder != schema.OrderNumber {
		for _, g := range cat.GenderSequence {
			pos[g] = next
			next++
		}
	}
	for _, g := range t.genders {
		if _, ok := pos[g]; !ok {
			pos[g] = next
			next++
		}
	}
	return func(g model.Gender) int {
		if i, ok := pos[g.Normalize()]; ok {
			return i
		}
		return next
	}
}
