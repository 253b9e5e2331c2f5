package service

import (
	"time"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeShards sets the number of shards of the submission guard.
func WithDedupeShards(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeShards = n
		}
	}
}

// WithRankingConcurrency bounds parallel evaluations per ranking.
func WithRankingConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankingConcurrency = n
		}
	}
}

// WithGenders sets the gender enumeration in tie-break order.
func WithGenders(genders ...model.Gender) Option {
	return func(s *Service) {
		if len(genders) > 0 {
			s.genders = genders
		}
	}
}

// WithRoster registers candidates when the service starts.
func WithRoster(candidates ...model.Candidate) Option {
	return func(s *Service) {
		s.roster = append(s.roster, candidates...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source for records and reports.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
