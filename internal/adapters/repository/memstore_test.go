package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tabulator/internal/domain/model"
)

func newTestStore(t *testing.T) *MemStore {
	t.Helper()
	s := NewMemStore(context.Background(), WithMetricsUpdateInterval(10*time.Millisecond))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return s
}

func mustAdd(t *testing.T, s *MemStore, number int, gender model.Gender) model.Candidate {
	t.Helper()
	c, err := s.AddCandidate(context.Background(), model.Candidate{Number: number, Name: fmt.Sprintf("%s %d", gender, number), Gender: gender})
	if err != nil {
		t.Fatalf("add candidate: %v", err)
	}
	return c
}

func TestMemStore_Candidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1 := mustAdd(t, s, 1, "Male")
	f1 := mustAdd(t, s, 1, "female")
	if m1.ID == "" || !m1.Active {
		t.Fatalf("expected id and active flag, got %+v", m1)
	}
	if m1.Gender != "male" {
		t.Errorf("expected normalized gender, got %q", m1.Gender)
	}

	// same number, same gender
	if _, err := s.AddCandidate(ctx, model.Candidate{Number: 1, Gender: "male"}); !errors.Is(err, ErrDuplicateCandidate) {
		t.Errorf("expected ErrDuplicateCandidate, got %v", err)
	}
	if _, err := s.AddCandidate(ctx, model.Candidate{ID: f1.ID, Number: 7, Gender: "female"}); !errors.Is(err, ErrDuplicateCandidate) {
		t.Errorf("expected ErrDuplicateCandidate for reused id, got %v", err)
	}
	if _, err := s.AddCandidate(ctx, model.Candidate{Number: 0, Gender: "male"}); !errors.Is(err, ErrInvalidCandidate) {
		t.Errorf("expected ErrInvalidCandidate, got %v", err)
	}
	if _, err := s.AddCandidate(ctx, model.Candidate{Number: 3}); !errors.Is(err, ErrInvalidCandidate) {
		t.Errorf("expected ErrInvalidCandidate for missing gender, got %v", err)
	}

	males, err := s.Candidates(ctx, "male")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(males) != 1 || males[0].ID != m1.ID {
		t.Errorf("expected only %s, got %+v", m1.ID, males)
	}
	all, _ := s.Candidates(ctx, model.PartitionAll)
	if len(all) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(all))
	}

	if err := s.DeactivateCandidate(ctx, m1.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	all, _ = s.Candidates(ctx, "")
	if len(all) != 1 {
		t.Errorf("expected deactivated candidate to be hidden, got %d", len(all))
	}
	// the slot is free again
	mustAdd(t, s, 1, "male")

	if err := s.DeactivateCandidate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Candidate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	got, err := s.Candidate(ctx, m1.ID)
	if err != nil || got.Active {
		t.Errorf("expected inactive candidate, got %+v err=%v", got, err)
	}
}

func TestMemStore_InsertScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustAdd(t, s, 1, "male")

	rec, err := s.InsertScore(ctx, model.ScoreRecord{CandidateID: c.ID, JudgeID: "j1", Category: "gown", Value: 90})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec.ID == "" || rec.SubmittedAt.IsZero() {
		t.Errorf("expected id and timestamp to be assigned, got %+v", rec)
	}

	_, err = s.InsertScore(ctx, model.ScoreRecord{CandidateID: c.ID, JudgeID: "j1", Category: "gown", Value: 50})
	if !errors.Is(err, ErrDuplicateScore) {
		t.Errorf("expected ErrDuplicateScore, got %v", err)
	}
	if _, err := s.InsertScore(ctx, model.ScoreRecord{CandidateID: "missing", JudgeID: "j1", Category: "gown"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.InsertScore(ctx, model.ScoreRecord{CandidateID: c.ID, JudgeID: "j2", Category: "gown", Value: 94}); err != nil {
		t.Fatalf("insert second judge: %v", err)
	}
	if n := s.Count(ctx); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}

	snap := s.Snapshot(ctx)
	values, _ := snap.Scores(ctx, c.ID, "gown")
	if len(values) != 2 || values[0]+values[1] != 184 {
		t.Errorf("unexpected values %v", values)
	}
	if !snap.ScoredBy("j1", "gown")[c.ID] {
		t.Error("expected j1 to have scored the candidate")
	}
	if snap.ScoredBy("j3", "gown")[c.ID] {
		t.Error("j3 did not score")
	}
}

func TestMemStore_SnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustAdd(t, s, 1, "female")
	if _, err := s.InsertScore(ctx, model.ScoreRecord{CandidateID: c.ID, JudgeID: "j1", Category: "gown", Value: 80}); err != nil {
		t.Fatal(err)
	}

	before := s.Snapshot(ctx)
	if again := s.Snapshot(ctx); again != before {
		t.Error("expected the cached snapshot to be reused without writes")
	}

	if _, err := s.InsertScore(ctx, model.ScoreRecord{CandidateID: c.ID, JudgeID: "j2", Category: "gown", Value: 60}); err != nil {
		t.Fatal(err)
	}
	mustAdd(t, s, 2, "female")

	old, _ := before.Scores(ctx, c.ID, "gown")
	if len(old) != 1 || len(before.ActiveCandidates()) != 1 || before.Records() != 1 {
		t.Errorf("old snapshot changed: values=%v candidates=%d", old, len(before.ActiveCandidates()))
	}
	after := s.Snapshot(ctx)
	fresh, _ := after.Scores(ctx, c.ID, "gown")
	if len(fresh) != 2 || len(after.ActiveCandidates()) != 2 {
		t.Errorf("new snapshot missing writes: values=%v", fresh)
	}
}

func TestMemStore_ConcurrentInsertsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustAdd(t, s, 1, "male")

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.InsertScore(ctx, model.ScoreRecord{CandidateID: c.ID, JudgeID: "j1", Category: "gown", Value: float64(i)})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			_ = s.Snapshot(ctx)
		}(i)
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("expected exactly one accepted insert, got %d", accepted)
	}
	if n := s.Count(ctx); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}
