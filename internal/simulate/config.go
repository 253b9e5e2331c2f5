package simulate

import (
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Defaults applied to zero Config fields.
const (
	defaultJudges              = 5
	defaultCandidatesPerGender = 8
	defaultDuplicateRate       = 0.1
	defaultTimeout             = 10 * time.Second
	defaultDrainTimeout        = 30 * time.Second
	drainPollInterval          = 50 * time.Millisecond
	maxBackpressureRetries     = 50
	backpressureBackoff        = 20 * time.Millisecond
	metricTolerance            = 1e-6
)

// Config controls a simulation run.
type Config struct {
	BaseURL             string        // service base URL
	Judges              int           // number of judges marking every candidate
	CandidatesPerGender int           // candidates registered per gender; 0 keeps the existing roster
	Genders             []string      // partitions to register and verify
	DuplicateRate       float64       // share of marks submitted a second time
	Workers             int           // concurrent submitters
	Timeout             time.Duration // per request
	DrainTimeout        time.Duration // wait for the queue to persist
	Seed                uint64        // value generator seed
	Verbose             bool
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Judges < 1 {
		out.Judges = defaultJudges
	}
	if out.CandidatesPerGender < 0 {
		out.CandidatesPerGender = defaultCandidatesPerGender
	}
	genders := make([]string, 0, len(out.Genders))
	for _, g := range out.Genders {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "" {
			genders = append(genders, g)
		}
	}
	if len(genders) == 0 {
		genders = []string{"male", "female"}
	}
	out.Genders = genders
	if out.DuplicateRate < 0 || out.DuplicateRate > 1 {
		out.DuplicateRate = defaultDuplicateRate
	}
	if out.Workers < 1 {
		out.Workers = runtime.NumCPU() * 2
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	if out.DrainTimeout <= 0 {
		out.DrainTimeout = defaultDrainTimeout
	}
	return out
}

// Stats summarizes a run.
type Stats struct {
	Registered     int
	Planned        int
	Accepted       int
	Duplicates     int
	NotEligible    int
	Backpressured  int
	Failed         int
	ReportsChecked int
	Duration       time.Duration
}

// counters are updated by concurrent submitters.
type counters struct {
	accepted      atomic.Int64
	duplicates    atomic.Int64
	notEligible   atomic.Int64
	backpressured atomic.Int64
	failed        atomic.Int64
}

func (c *counters) fill(s *Stats) {
	s.Accepted = int(c.accepted.Load())
	s.Duplicates = int(c.duplicates.Load())
	s.NotEligible = int(c.notEligible.Load())
	s.Backpressured = int(c.backpressured.Load())
	s.Failed = int(c.failed.Load())
}
