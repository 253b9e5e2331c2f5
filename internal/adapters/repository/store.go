// Package repository stores candidates and score records and serves
// immutable snapshots of them for ranking.
package repository

import (
	"context"
	"sort"

	"github.com/okian/tabulator/internal/domain/model"
)

// CandidateStore is the candidate registry.
type CandidateStore interface {
	// AddCandidate registers a candidate, assigning an id when none is set.
	// Returns ErrDuplicateCandidate when an active candidate holds the same
	// (number, gender) slot.
	AddCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error)
	// DeactivateCandidate hides a candidate from rankings and judging. Its
	// score records are kept.
	DeactivateCandidate(ctx context.Context, id string) error
	// Candidate returns a candidate by id or ErrNotFound.
	Candidate(ctx context.Context, id string) (model.Candidate, error)
	// Candidates lists active candidates of a gender ("all" or empty for every
	// gender) ordered by number.
	Candidates(ctx context.Context, gender model.Gender) ([]model.Candidate, error)
}

// ScoreStore holds immutable score records.
type ScoreStore interface {
	// InsertScore persists a record. The uniqueness of (candidate, judge,
	// category) is checked atomically with the insert and violations return
	// ErrDuplicateScore.
	InsertScore(ctx context.Context, r model.ScoreRecord) (model.ScoreRecord, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) int
}

// Store provides read/write access to the tabulation state.
type Store interface {
	CandidateStore
	ScoreStore
	// Snapshot returns an immutable view of active candidates and marks.
	Snapshot(ctx context.Context) *Snapshot
	Close() error
}

// Snapshot is a point-in-time, read-only copy of the store. Safe for
// concurrent use.
type Snapshot struct {
	candidates []model.Candidate
	marks      map[string]map[string][]float64 // candidate -> category -> values
	voted      map[string]map[string]bool      // judge|category -> candidate ids
	records    int
}

// ActiveCandidates returns the active candidates ordered by number and id.
func (s *Snapshot) ActiveCandidates() []model.Candidate {
	return append([]model.Candidate(nil), s.candidates...)
}

// Scores returns the stored values for a (candidate, category) pair.
func (s *Snapshot) Scores(_ context.Context, candidateID, category string) ([]float64, error) {
	return s.marks[candidateID][category], nil
}

// ScoredBy returns the candidates a judge has scored in category.
func (s *Snapshot) ScoredBy(judgeID, category string) map[string]bool {
	return s.voted[votedKey(judgeID, category)]
}

// Records returns the number of records captured by the snapshot.
func (s *Snapshot) Records() int { return s.records }

func votedKey(judgeID, category string) string { return judgeID + "|" + category }

func sortCandidates(cs []model.Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Number != cs[j].Number {
			return cs[i].Number < cs[j].Number
		}
		if cs[i].Gender != cs[j].Gender {
			return cs[i].Gender < cs[j].Gender
		}
		return cs[i].ID < cs[j].ID
	})
}
