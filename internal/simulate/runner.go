// Package simulate drives a running tabulator over HTTP: it registers a
// roster, submits judges' marks concurrently (duplicates included), waits for
// them to persist and checks every ranked view against values recomputed
// locally. It expects a service with no marks recorded yet.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/pkg/logger"
)

// runner holds the state of one simulation.
type runner struct {
	cfg    Config
	client *Client
	log    logger.Logger

	info       *SchemaInfo
	candidates []model.Candidate
	judges     []string
	ledger     *ledger
	counts     counters
	baseline   int

	mu       sync.Mutex
	problems []error
}

// Run executes a full simulation and returns its statistics. A non-nil error
// wrapping ErrVerification lists every inconsistency found.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	c := cfg.withDefaults()
	r := &runner{
		cfg:    c,
		client: NewClient(c.BaseURL, c.Timeout),
		log:    logger.Get().Named("simulate"),
		judges: judgeIDs(c.Judges),
		ledger: newLedger(),
	}
	start := time.Now()
	stats, err := r.run(ctx)
	stats.Duration = time.Since(start)
	r.counts.fill(&stats)
	return stats, err
}

func (r *runner) run(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := r.client.Health(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	info, err := r.client.Schema(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch schema: %w", err)
	}
	r.info = info
	st, err := r.client.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch stats: %w", err)
	}
	r.baseline = st.Records

	r.log.Info(ctx, "starting simulation",
		logger.String("url", r.cfg.BaseURL),
		logger.String("edition", info.Edition),
		logger.Int("judges", r.cfg.Judges),
		logger.Int("candidates_per_gender", r.cfg.CandidatesPerGender),
		logger.Float64("duplicate_rate", r.cfg.DuplicateRate),
		logger.Int("workers", r.cfg.Workers),
	)

	registered, err := r.register(ctx)
	stats.Registered = registered
	if err != nil {
		return stats, err
	}

	p := newPlanner(r.cfg.Seed, r.cfg.DuplicateRate)
	prelims := r.prelimCategories()
	marks := p.plan(prelims, r.candidates, r.judges)
	stats.Planned = len(marks)
	if err := r.submitAll(ctx, marks); err != nil {
		return stats, err
	}
	if err := r.drain(ctx); err != nil {
		return stats, err
	}

	if info.Finals != nil {
		planned, err := r.runFinals(ctx, p)
		stats.Planned += planned
		if err != nil {
			return stats, err
		}
	}

	checked, err := r.verify(ctx)
	stats.ReportsChecked = checked
	if err != nil {
		return stats, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.problems) > 0 {
		return stats, fmt.Errorf("%w: %w", ErrVerification, errors.Join(r.problems...))
	}
	r.log.Info(ctx, "simulation passed", logger.Int("reports", checked))
	return stats, nil
}

// register adds CandidatesPerGender candidates to every partition, numbered
// after the existing ones, then loads the full active roster.
func (r *runner) register(ctx context.Context) (int, error) {
	added := 0
	for _, g := range r.cfg.Genders {
		existing, err := r.client.Candidates(ctx, g)
		if err != nil {
			return added, fmt.Errorf("list %s candidates: %w", g, err)
		}
		next := 1
		for _, c := range existing {
			if c.Number >= next {
				next = c.Number + 1
			}
		}
		for i := 0; i < r.cfg.CandidatesPerGender; i++ {
			n := next + i
			if _, err := r.client.AddCandidate(ctx, n, g+" "+strconv.Itoa(n), g); err != nil {
				return added, fmt.Errorf("register %s #%d: %w", g, n, err)
			}
			added++
		}
	}
	all, err := r.client.Candidates(ctx, model.PartitionAll)
	if err != nil {
		return added, fmt.Errorf("list candidates: %w", err)
	}
	r.candidates = all
	r.log.Info(ctx, "roster ready", logger.Int("registered", added), logger.Int("active", len(all)))
	return added, nil
}

func (r *runner) prelimCategories() []schema.Category {
	out := make([]schema.Category, 0, len(r.info.Categories))
	for _, c := range r.info.Categories {
		if r.info.Finals != nil && c.Key == r.info.Finals.Category {
			continue
		}
		out = append(out, c)
	}
	return out
}

// runFinals marks the finals category for the qualifiers and checks that a
// non-qualifier is turned away.
func (r *runner) runFinals(ctx context.Context, p *planner) (int, error) {
	reports, err := r.client.Finalists(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch finalists: %w", err)
	}
	qualified := make(map[string]bool)
	var finalists []model.Candidate
	for _, rep := range reports {
		for _, res := range rep.Results {
			qualified[res.Candidate.ID] = true
			finalists = append(finalists, res.Candidate)
		}
	}
	cat, ok := r.category(r.info.Finals.Category)
	if !ok {
		return 0, fmt.Errorf("finals category %q not in schema", r.info.Finals.Category)
	}
	r.log.Info(ctx, "finals", logger.String("category", cat.Key), logger.Int("finalists", len(finalists)))

	if outsider, ok := r.firstOutside(qualified); ok {
		_, err := r.client.Submit(ctx, p.mark(cat, outsider.ID, r.judges[0]))
		var se *StatusError
		switch {
		case errors.As(err, &se) && se.Status == http.StatusUnprocessableEntity:
			r.counts.notEligible.Add(1)
		case err == nil:
			r.problem(fmt.Errorf("non-finalist %s was accepted in %s", outsider.ID, cat.Key))
		default:
			r.problem(fmt.Errorf("non-finalist %s in %s: %w", outsider.ID, cat.Key, err))
		}
	}

	marks := p.plan([]schema.Category{cat}, finalists, r.judges)
	if err := r.submitAll(ctx, marks); err != nil {
		return len(marks), err
	}
	return len(marks), r.drain(ctx)
}

func (r *runner) firstOutside(qualified map[string]bool) (model.Candidate, bool) {
	for _, c := range r.candidates {
		if !qualified[c.ID] {
			return c, true
		}
	}
	return model.Candidate{}, false
}

func (r *runner) category(key string) (schema.Category, bool) {
	for _, c := range r.info.Categories {
		if c.Key == key {
			return c, true
		}
	}
	return schema.Category{}, false
}

// submitAll posts marks with at most Workers requests in flight.
func (r *runner) submitAll(ctx context.Context, marks []Mark) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, m := range marks {
		g.Go(func() error { return r.submit(gctx, m) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	r.log.Info(ctx, "marks submitted",
		logger.Int("planned", len(marks)),
		logger.Int64("accepted", r.counts.accepted.Load()),
		logger.Int64("duplicates", r.counts.duplicates.Load()),
		logger.Int64("failed", r.counts.failed.Load()),
	)
	return nil
}

// submit sends one mark, retrying while the service pushes back. Only
// context cancellation is returned; other outcomes are counted.
func (r *runner) submit(ctx context.Context, m Mark) error {
	for attempt := 0; ; attempt++ {
		rec, err := r.client.Submit(ctx, m)
		if err == nil {
			r.counts.accepted.Add(1)
			cat, _ := r.category(m.Category)
			want := m.expected(cat.Max)
			if math.Abs(rec.Value-want) > metricTolerance {
				r.problem(fmt.Errorf("%s recorded %.4f, want %.4f", m.key(), rec.Value, want))
			}
			r.ledger.add(m.CandidateID, m.Category, want)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var se *StatusError
		if !errors.As(err, &se) {
			r.counts.failed.Add(1)
			r.problem(fmt.Errorf("%s: %w", m.key(), err))
			return nil
		}
		switch se.Status {
		case http.StatusConflict:
			r.counts.duplicates.Add(1)
			return nil
		case http.StatusTooManyRequests:
			r.counts.backpressured.Add(1)
			if attempt >= maxBackpressureRetries {
				r.counts.failed.Add(1)
				r.problem(fmt.Errorf("%s: %w", m.key(), err))
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backpressureBackoff):
			}
		default:
			r.counts.failed.Add(1)
			r.problem(fmt.Errorf("%s: %w: %w", m.key(), ErrRejected, err))
			return nil
		}
	}
}

// drain waits until every accepted mark is persisted.
func (r *runner) drain(ctx context.Context) error {
	want := r.baseline + r.ledger.count()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DrainTimeout)
	defer cancel()
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		st, err := r.client.Stats(ctx)
		if err == nil && st.QueueLength == 0 && st.Records >= want {
			if st.Records > want {
				r.problem(fmt.Errorf("service holds %d records, expected %d", st.Records, want))
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: want %d records, have %d", ErrDrainTimeout, want, st.Records)
		case <-ticker.C:
		}
	}
}

func (r *runner) problem(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems = append(r.problems, err)
	if r.cfg.Verbose {
		r.log.Warn(context.Background(), "check failed", logger.Error(err))
	}
}
