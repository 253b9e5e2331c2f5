package model

import (
	"strconv"
	"time"
)

// SubmissionKey identifies the (candidate, judge, category) triple a judge may
// score at most once.
type SubmissionKey struct {
	CandidateID string
	JudgeID     string
	Category    string
}

// String renders the key in a stable form used for claims and logging. The
// candidate and judge ids carry a length prefix so ids containing the
// separator cannot collide.
func (k SubmissionKey) String() string {
	return strconv.Itoa(len(k.CandidateID)) + ":" + k.CandidateID + "|" +
		strconv.Itoa(len(k.JudgeID)) + ":" + k.JudgeID + "|" + k.Category
}

// Submission is a judge's inbound mark before validation. Exactly one of
// Value or Criteria is expected; criteria are summed into the final value.
type Submission struct {
	CandidateID string
	JudgeID     string
	Category    string
	Value       *float64
	Criteria    map[string]float64
	TS          time.Time
}

// Key returns the uniqueness key of the submission.
func (s Submission) Key() SubmissionKey {
	return SubmissionKey{CandidateID: s.CandidateID, JudgeID: s.JudgeID, Category: s.Category}
}

// ScoreRecord is an accepted, immutable mark.
type ScoreRecord struct {
	ID          string             `json:"id"`
	CandidateID string             `json:"candidate_id"`
	JudgeID     string             `json:"judge_id"`
	Category    string             `json:"category"`
	Value       float64            `json:"value"`              // in [0, category max]
	Criteria    map[string]float64 `json:"criteria,omitempty"` // optional sub-criteria breakdown
	SubmittedAt time.Time          `json:"submitted_at"`
}

// Key returns the uniqueness key of the record.
func (r ScoreRecord) Key() SubmissionKey {
	return SubmissionKey{CandidateID: r.CandidateID, JudgeID: r.JudgeID, Category: r.Category}
}
