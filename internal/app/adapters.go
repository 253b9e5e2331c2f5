package service

import (
	"context"
	"errors"

	eventqueue "github.com/okian/tabulator/internal/adapters/mq/queue"
	"github.com/okian/tabulator/internal/adapters/repository"
	"github.com/okian/tabulator/internal/domain/dedupe"
	"github.com/okian/tabulator/pkg/logger"
	"github.com/okian/tabulator/pkg/metrics"
)

// storePersister adapts the score store to workerpool.Persister.
type storePersister struct {
	store repository.ScoreStore
}

func (p *storePersister) Persist(ctx context.Context, e eventqueue.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	_, err := p.store.InsertScore(ctx, e)
	return err
}

// claimReleaser frees the claim of a record that failed to persist so the
// judge can submit again. A record rejected as a duplicate by the store keeps
// its claim.
type claimReleaser struct {
	deduper dedupe.Deduper
	logger  logger.Logger
}

func (r *claimReleaser) Release(ctx context.Context, e eventqueue.Event, cause error) { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	if errors.Is(cause, repository.ErrDuplicateScore) {
		return
	}
	key := e.Key().String()
	r.deduper.Unrecord(ctx, key)
	metrics.RecordErrorByComponent("service", "claim_released")
	r.logger.Warn(ctx, "released claim after failed persist",
		logger.String("key", key),
		logger.Error(cause))
}
