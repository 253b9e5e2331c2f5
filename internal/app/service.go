// Package service wires the tabulation components together and implements
// the operations the HTTP API depends on.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tabulator/internal/adapters/export"
	eventqueue "github.com/okian/tabulator/internal/adapters/mq/queue"
	workerpool "github.com/okian/tabulator/internal/adapters/mq/worker"
	"github.com/okian/tabulator/internal/adapters/repository"
	"github.com/okian/tabulator/internal/domain/dedupe"
	"github.com/okian/tabulator/internal/domain/judging"
	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/ranking"
	"github.com/okian/tabulator/internal/domain/schema"
	"github.com/okian/tabulator/internal/domain/types"
	"github.com/okian/tabulator/pkg/logger"
	"github.com/okian/tabulator/pkg/metrics"
)

const (
	defaultQueueSize    = 10_000
	defaultDedupeShards = 64
	percent             = 100
)

// Service implements the API dependencies for the tabulation system.
type Service struct {
	mu sync.RWMutex

	schema *schema.Schema

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   eventqueue.Queue
	pool    *workerpool.Pool
	engine  *ranking.Engine
	tracker *judging.Tracker

	// Configuration
	workerCount        int
	queueSize          int
	dedupeShards       int
	rankingConcurrency int
	genders            []model.Gender
	roster             []model.Candidate
	now                func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service over a compiled schema.
func New(s *schema.Schema, opts ...Option) *Service {
	svc := &Service{
		schema:             s,
		workerCount:        runtime.NumCPU() * 2,
		queueSize:          defaultQueueSize,
		dedupeShards:       defaultDedupeShards,
		rankingConcurrency: runtime.NumCPU(),
		genders:            []model.Gender{"male", "female"},
		now:                time.Now,
		logger:             logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(svc)
	}

	for i, g := range svc.genders {
		svc.genders[i] = g.Normalize()
	}

	return svc
}

// Start builds the components, starts the workers and seeds the roster.
// The workers outlive ctx cancellation so that Stop can drain the queue.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.schema == nil {
		return fmt.Errorf("%w: no schema", ErrNotStarted)
	}

	s.logger.Info(ctx, "starting tabulation service...", logger.String("edition", s.schema.Edition()))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	store := repository.NewMemStore(runCtx, repository.WithClock(s.now))
	s.store = store
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithShards(s.dedupeShards))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	snapshot := ranking.SnapshotFunc(func(ctx context.Context) (ranking.Source, error) {
		return store.Snapshot(ctx), nil
	})
	s.engine = ranking.NewEngine(s.schema, snapshot,
		ranking.WithLogger(s.logger.Named("ranking")),
		ranking.WithClock(s.now),
		ranking.WithConcurrency(s.rankingConcurrency),
		ranking.WithGenders(s.genders...),
	)

	ledger := judging.LedgerFunc(func(ctx context.Context) (judging.Ledger, error) {
		return store.Snapshot(ctx), nil
	})
	var qualifier judging.Qualifier
	if _, ok := s.schema.Finals(); ok {
		qualifier = s.engine
	}
	s.tracker = judging.NewTracker(s.schema, ledger, qualifier,
		judging.WithLogger(s.logger.Named("judging")),
		judging.WithGenders(s.genders...),
	)

	s.pool = workerpool.NewPool(s.workerCount, s.queue, &storePersister{store: store},
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithReleaser(&claimReleaser{deduper: s.deduper, logger: s.logger}),
	)
	s.pool.Start(runCtx)
	s.cancel = cancel

	for _, c := range s.roster {
		added, err := s.store.AddCandidate(ctx, c)
		if err != nil {
			_ = s.shutdown(ctx)
			return fmt.Errorf("seed roster: %w", err)
		}
		s.logger.Debug(ctx, "registered candidate",
			logger.String("id", added.ID),
			logger.Int("number", added.Number),
			logger.String("gender", string(added.Gender)))
	}

	s.started = true
	metrics.UpdateQueueCapacity(s.queueSize)
	s.logger.Info(ctx, "tabulation service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_shards", s.dedupeShards),
		logger.Int("roster", len(s.roster)),
	)

	return nil
}

// Stop closes the queue, waits for the workers to persist what is queued and
// releases the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping tabulation service...")
	err := s.shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "tabulation service stopped", logger.Int64("persisted", s.pool.Processed()))
	return err
}

// shutdown must be called with s.mu held.
func (s *Service) shutdown(ctx context.Context) error {
	var errs []error
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	return errors.Join(errs...)
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Schema returns the compiled category schema.
func (s *Service) Schema() *schema.Schema { return s.schema }

// Submit validates a judge's mark, claims its (candidate, judge, category)
// slot and queues it for persistence.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
	if err := s.running(); err != nil {
		return model.ScoreRecord{}, err
	}

	rec, err := s.validate(sub)
	if err != nil {
		metrics.RecordScoreSubmission(sub.Category, metrics.OutcomeRejected)
		return model.ScoreRecord{}, err
	}

	c, err := s.store.Candidate(ctx, rec.CandidateID)
	if err != nil {
		metrics.RecordScoreSubmission(rec.Category, metrics.OutcomeRejected)
		return model.ScoreRecord{}, err
	}
	if !c.Active {
		metrics.RecordScoreSubmission(rec.Category, metrics.OutcomeNotEligible)
		return model.ScoreRecord{}, fmt.Errorf("%w: candidate %s is withdrawn", ErrNotEligible, c.ID)
	}
	if err := s.tracker.CheckEligible(ctx, rec.CandidateID, rec.Category); err != nil {
		metrics.RecordScoreSubmission(rec.Category, metrics.OutcomeNotEligible)
		return model.ScoreRecord{}, err
	}

	key := rec.Key().String()
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordScoreSubmission(rec.Category, metrics.OutcomeDuplicate)
		s.logger.Debug(ctx, "duplicate submission", logger.String("key", key))
		return model.ScoreRecord{}, fmt.Errorf("%w: %s", ErrDuplicateSubmission, key)
	}

	if !s.queue.Enqueue(ctx, rec) {
		s.deduper.Unrecord(ctx, key)
		metrics.RecordScoreSubmission(rec.Category, metrics.OutcomeBackpressure)
		s.logger.Warn(ctx, "submission queue full", logger.String("key", key))
		return model.ScoreRecord{}, ErrBackpressure
	}

	metrics.RecordScoreSubmission(rec.Category, metrics.OutcomeAccepted)
	return rec, nil
}

// validate turns a submission into a record. Sub-criteria are summed and the
// sum is capped at the category maximum.
func (s *Service) validate(sub model.Submission) (model.ScoreRecord, error) {
	switch {
	case strings.TrimSpace(sub.CandidateID) == "":
		return model.ScoreRecord{}, fmt.Errorf("%w: missing candidate_id", ErrInvalidSubmission)
	case strings.TrimSpace(sub.JudgeID) == "":
		return model.ScoreRecord{}, fmt.Errorf("%w: missing judge_id", ErrInvalidSubmission)
	}
	cat, ok := s.schema.Category(sub.Category)
	if !ok {
		return model.ScoreRecord{}, fmt.Errorf("%w: unknown category %q", ErrInvalidSubmission, sub.Category)
	}

	rec := model.ScoreRecord{
		ID:          uuid.NewString(),
		CandidateID: sub.CandidateID,
		JudgeID:     sub.JudgeID,
		Category:    cat.Key,
		SubmittedAt: sub.TS,
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = s.now()
	}

	switch {
	case sub.Value != nil && len(sub.Criteria) > 0:
		return model.ScoreRecord{}, fmt.Errorf("%w: give either value or criteria", ErrInvalidSubmission)
	case sub.Value != nil:
		v := *sub.Value
		if !inRange(v, cat.Max) {
			return model.ScoreRecord{}, fmt.Errorf("%w: value %v outside [0, %v]", ErrInvalidSubmission, v, cat.Max)
		}
		rec.Value = v
	case len(sub.Criteria) > 0:
		if len(cat.Criteria) == 0 {
			return model.ScoreRecord{}, fmt.Errorf("%w: category %q has no criteria", ErrInvalidSubmission, cat.Key)
		}
		sum := 0.0
		criteria := make(map[string]float64, len(sub.Criteria))
		for key, v := range sub.Criteria {
			cr, ok := cat.Criterion(key)
			if !ok {
				return model.ScoreRecord{}, fmt.Errorf("%w: unknown criterion %q", ErrInvalidSubmission, key)
			}
			if !inRange(v, cr.Max) {
				return model.ScoreRecord{}, fmt.Errorf("%w: %s %v outside [0, %v]", ErrInvalidSubmission, key, v, cr.Max)
			}
			criteria[key] = v
			sum += v
		}
		rec.Criteria = criteria
		rec.Value = math.Min(sum, cat.Max)
	default:
		return model.ScoreRecord{}, fmt.Errorf("%w: missing value", ErrInvalidSubmission)
	}
	return rec, nil
}

func inRange(v, maxValue float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= maxValue
}

// Rank returns the leaderboard for a filter and gender partition.
func (s *Service) Rank(ctx context.Context, filter, gender string) (types.Report, error) {
	if err := s.running(); err != nil {
		return types.Report{}, err
	}
	start := time.Now()
	if _, known := s.schema.Catalog().Resolve(filter); !known && filter != "" {
		metrics.RecordFilterFallback()
	}
	r, err := s.engine.Rank(ctx, filter, gender)
	if err != nil {
		metrics.RecordErrorByComponent("ranking", "rank_error")
		return types.Report{}, err
	}
	metrics.RecordRanking(r.Filter, string(r.Gender), float64(time.Since(start).Microseconds())/1000)
	return r, nil
}

// Export ranks and renders the result in the requested format.
func (s *Service) Export(ctx context.Context, filter, gender, format string) (types.Attachment, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		metrics.RecordExportFailure(format)
		return types.Attachment{}, err
	}
	r, err := s.Rank(ctx, filter, gender)
	if err != nil {
		metrics.RecordExportFailure(string(f))
		return types.Attachment{}, err
	}
	var buf bytes.Buffer
	if err := export.Render(&buf, &r, f); err != nil {
		metrics.RecordExportFailure(string(f))
		s.logger.Error(ctx, "export failed",
			logger.String("filter", r.Filter),
			logger.String("gender", string(r.Gender)),
			logger.String("format", string(f)),
			logger.Error(err))
		return types.Attachment{}, err
	}
	metrics.RecordExport(string(f))
	return types.Attachment{
		Filename:    export.Filename(&r, f),
		ContentType: f.ContentType(),
		Body:        buf.Bytes(),
	}, nil
}

// Finalists returns the finals qualifiers per gender partition.
func (s *Service) Finalists(ctx context.Context, gender string) ([]types.Report, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.engine.Finalists(ctx, gender)
}

// AddCandidate registers a candidate. Its gender must belong to the
// configured enumeration.
func (s *Service) AddCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	if err := s.running(); err != nil {
		return model.Candidate{}, err
	}
	if g := c.Gender.Normalize(); !s.knownGender(g) {
		return model.Candidate{}, fmt.Errorf("%w: unknown gender %q", repository.ErrInvalidCandidate, c.Gender)
	}
	added, err := s.store.AddCandidate(ctx, c)
	if err != nil {
		return model.Candidate{}, err
	}
	s.logger.Info(ctx, "candidate registered",
		logger.String("id", added.ID),
		logger.Int("number", added.Number),
		logger.String("gender", string(added.Gender)))
	return added, nil
}

// DeactivateCandidate withdraws a candidate from rankings and judging.
func (s *Service) DeactivateCandidate(ctx context.Context, id string) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.store.DeactivateCandidate(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "candidate withdrawn", logger.String("id", id))
	return nil
}

// Candidates lists active candidates of a gender; unknown genders list all.
func (s *Service) Candidates(ctx context.Context, gender string) ([]model.Candidate, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.Candidates(ctx, s.engine.ResolveGender(gender))
}

// Progress reports a judge's progress across categories.
func (s *Service) Progress(ctx context.Context, judgeID string) (types.Progress, error) {
	if err := s.running(); err != nil {
		return types.Progress{}, err
	}
	return s.tracker.Progress(ctx, judgeID)
}

// Slate returns the candidates a judge scores in a category, in judging order.
func (s *Service) Slate(ctx context.Context, judgeID, category string) (types.Slate, error) {
	if err := s.running(); err != nil {
		return types.Slate{}, err
	}
	return s.tracker.Slate(ctx, judgeID, category)
}

// Stats returns service statistics and refreshes the service gauges.
func (s *Service) Stats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.Stats{
		Started:       s.started,
		Edition:       s.schema.Edition(),
		WorkerCount:   s.workerCount,
		QueueCapacity: s.queueSize,
	}
	if !s.started {
		return st
	}

	snap := s.store.Snapshot(ctx)
	st.WorkerCount = s.pool.Size()
	st.QueueLength = s.queue.Len(ctx)
	st.Candidates = len(snap.ActiveCandidates())
	st.Records = snap.Records()
	st.Claims = s.deduper.Size()
	st.Persisted = s.pool.Processed()

	metrics.UpdateQueueSize(st.QueueLength)
	if s.queueSize > 0 {
		metrics.UpdateQueueUtilization(float64(st.QueueLength) * percent / float64(s.queueSize))
	}
	metrics.UpdateActiveCandidates(st.Candidates)
	metrics.UpdateRepositoryRecordsTotal(st.Records)
	metrics.UpdateClaimsHeld(st.Claims)
	return st
}

func (s *Service) knownGender(g model.Gender) bool {
	for _, known := range s.genders {
		if known == g {
			return true
		}
	}
	return false
}
