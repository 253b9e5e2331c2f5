package ranking

import (
	"time"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConcurrency bounds the number of candidates evaluated in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithGenders sets the gender enumeration. Its order is the tie-break order
// and the order of the partitions returned by Finalists.
func WithGenders(genders ...model.Gender) Option {
	return func(e *Engine) {
		if len(genders) == 0 {
			return
		}
		e.genders = make([]model.Gender, 0, len(genders))
		for _, g := range genders {
			e.genders = append(e.genders, g.Normalize())
		}
	}
}
