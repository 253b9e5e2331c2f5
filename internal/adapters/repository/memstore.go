package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/pkg/metrics"
)

const defaultMetricsInterval = 5 * time.Second

// MemStore is an in-memory Store. Writes take an exclusive lock; reads are
// served from a snapshot that is rebuilt lazily after a write.
type MemStore struct {
	mu         sync.RWMutex
	candidates map[string]model.Candidate
	records    map[model.SubmissionKey]model.ScoreRecord
	// marks and voted mirror records for cheap snapshot copies.
	marks map[string]map[string][]float64
	voted map[string]map[string]bool

	snapshot atomic.Pointer[Snapshot]
	now      func() time.Time

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an in-memory store with configuration options. The
// background metrics updater stops when ctx is done or Close is called.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		candidates:            make(map[string]model.Candidate),
		records:               make(map[model.SubmissionKey]model.ScoreRecord),
		marks:                 make(map[string]map[string][]float64),
		voted:                 make(map[string]map[string]bool),
		now:                   time.Now,
		metricsUpdateInterval: defaultMetricsInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// AddCandidate implements CandidateStore.
func (s *MemStore) AddCandidate(_ context.Context, c model.Candidate) (model.Candidate, error) {
	c.Gender = c.Gender.Normalize()
	if c.Number < 1 {
		return model.Candidate{}, fmt.Errorf("%w: number must be at least 1, got %d", ErrInvalidCandidate, c.Number)
	}
	if c.Gender == "" || c.Gender == model.Gender(model.PartitionAll) {
		return model.Candidate{}, fmt.Errorf("%w: gender is required", ErrInvalidCandidate)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.candidates[c.ID]; exists {
		return model.Candidate{}, fmt.Errorf("%w: id %s already registered", ErrDuplicateCandidate, c.ID)
	}
	for _, other := range s.candidates {
		if other.Active && other.SameSlot(c) {
			return model.Candidate{}, fmt.Errorf("%w: %s #%d", ErrDuplicateCandidate, c.Gender, c.Number)
		}
	}
	s.candidates[c.ID] = c
	s.invalidate()
	return c, nil
}

// DeactivateCandidate implements CandidateStore.
func (s *MemStore) DeactivateCandidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.Active = false
	s.candidates[id] = c
	s.invalidate()
	return nil
}

// Candidate implements CandidateStore.
func (s *MemStore) Candidate(_ context.Context, id string) (model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return model.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// Candidates implements CandidateStore.
func (s *MemStore) Candidates(ctx context.Context, gender model.Gender) ([]model.Candidate, error) {
	gender = gender.Normalize()
	all := gender == "" || gender == model.Gender(model.PartitionAll)
	out := make([]model.Candidate, 0)
	for _, c := range s.Snapshot(ctx).candidates {
		if all || c.Gender == gender {
			out = append(out, c)
		}
	}
	return out, nil
}

// InsertScore implements ScoreStore.
func (s *MemStore) InsertScore(_ context.Context, r model.ScoreRecord) (model.ScoreRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[r.CandidateID]
	if !ok || !c.Active {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.ScoreRecord{}, fmt.Errorf("%w: %s", ErrNotFound, r.CandidateID)
	}
	key := r.Key()
	if _, dup := s.records[key]; dup {
		metrics.RecordErrorByComponent("repository", "duplicate_score")
		return model.ScoreRecord{}, fmt.Errorf("%w: %s", ErrDuplicateScore, key)
	}
	s.records[key] = r

	byCat, ok := s.marks[r.CandidateID]
	if !ok {
		byCat = make(map[string][]float64)
		s.marks[r.CandidateID] = byCat
	}
	byCat[r.Category] = append(byCat[r.Category], r.Value)

	vk := votedKey(r.JudgeID, r.Category)
	if s.voted[vk] == nil {
		s.voted[vk] = make(map[string]bool)
	}
	s.voted[vk][r.CandidateID] = true

	s.invalidate()
	return r, nil
}

// Count implements ScoreStore.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns the current immutable view, rebuilding it if a write
// happened since the last one.
func (s *MemStore) Snapshot(_ context.Context) *Snapshot {
	if snap := s.snapshot.Load(); snap != nil {
		return snap
	}
	start := time.Now()
	s.mu.RLock()
	snap := s.buildSnapshot()
	// A writer cannot run while the read lock is held, so storing here never
	// publishes a stale view.
	s.snapshot.CompareAndSwap(nil, snap)
	s.mu.RUnlock()

	metrics.RecordRepositorySnapshotRebuildDuration(float64(time.Since(start).Milliseconds()))
	metrics.IncrementRepositorySnapshotCount()
	return snap
}

// invalidate drops the published snapshot. Must be called with s.mu held.
func (s *MemStore) invalidate() {
	s.snapshot.Store(nil)
}

// buildSnapshot copies the live state. Must be called with s.mu held.
func (s *MemStore) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		candidates: make([]model.Candidate, 0, len(s.candidates)),
		marks:      make(map[string]map[string][]float64, len(s.marks)),
		voted:      make(map[string]map[string]bool, len(s.voted)),
		records:    len(s.records),
	}
	for _, c := range s.candidates {
		if c.Active {
			snap.candidates = append(snap.candidates, c)
		}
	}
	sortCandidates(snap.candidates)
	for id, byCat := range s.marks {
		cp := make(map[string][]float64, len(byCat))
		for cat, values := range byCat {
			cp[cat] = append([]float64(nil), values...)
		}
		snap.marks[id] = cp
	}
	for k, ids := range s.voted {
		cp := make(map[string]bool, len(ids))
		for id := range ids {
			cp[id] = true
		}
		snap.voted[k] = cp
	}
	return snap
}

// Close stops the background metrics updater.
func (s *MemStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater periodically publishes store gauges.
func (s *MemStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics(ctx)
			}
		}
	}()
}

func (s *MemStore) updateMetrics(ctx context.Context) {
	snap := s.Snapshot(ctx)
	metrics.UpdateRepositoryRecordsTotal(snap.Records())
	metrics.UpdateActiveCandidates(len(snap.candidates))
}
