// Package types contains the result contract shared by the ranking engine,
// the exporter and the HTTP adapter.
package types

import (
	"time"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
)

// Score is one presentation column of a result row.
type Score struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// RankedResult is one row of a leaderboard. It is computed per query and never
// persisted.
type RankedResult struct {
	Rank      int             `json:"rank"`
	Candidate model.Candidate `json:"candidate"`
	Metric    float64         `json:"metric"`
	Scores    []Score         `json:"scores"`
}

// Report is a ranked view together with its metadata. Filter and Gender echo
// the resolved values, so an unknown filter reports the default one.
type Report struct {
	Title       string          `json:"title"`
	Filter      string          `json:"filter"`
	Gender      model.Gender    `json:"gender"`
	GeneratedAt time.Time       `json:"generated_at"`
	Count       int             `json:"count"`
	Shape       schema.Shape    `json:"shape"`
	Columns     []schema.Column `json:"columns"`
	Results     []RankedResult  `json:"results"`
}

// CategoryProgress tracks how far a judge is through one category.
type CategoryProgress struct {
	Category   string  `json:"category"`
	Label      string  `json:"label"`
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Progress is a judge's progress across every category.
type Progress struct {
	JudgeID    string             `json:"judge_id"`
	Categories []CategoryProgress `json:"categories"`
}

// SlateEntry is a candidate as presented to a judge for one category.
type SlateEntry struct {
	Position  int             `json:"position"`
	Candidate model.Candidate `json:"candidate"`
	HasVoted  bool            `json:"has_voted"`
}

// Slate is the ordered list of candidates a judge scores in a category.
type Slate struct {
	JudgeID  string       `json:"judge_id"`
	Category string       `json:"category"`
	Order    schema.Order `json:"order"`
	Finals   bool         `json:"finals"`
	Entries  []SlateEntry `json:"entries"`
}

// Attachment is a rendered export ready to be downloaded.
type Attachment struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Stats is a point-in-time summary of the running service.
type Stats struct {
	Started       bool   `json:"started"`
	Edition       string `json:"edition"`
	WorkerCount   int    `json:"worker_count"`
	QueueCapacity int    `json:"queue_capacity"`
	QueueLength   int    `json:"queue_length"`
	Candidates    int    `json:"candidates"`
	Records       int    `json:"records"`
	Claims        int64  `json:"claims"`
	Persisted     int64  `json:"persisted"`
}
