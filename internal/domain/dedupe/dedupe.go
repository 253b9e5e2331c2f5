// Package dedupe guards the (candidate, judge, category) uniqueness of score
// submissions before they enter the asynchronous pipeline.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 64

// Deduper records claimed submission keys so a judge scores a pair at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if key was claimed and claims it if not.
	// Returns true if key was already claimed, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases a claim so the submission can be retried. Used when an
	// accepted submission could not be queued or persisted.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type shard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// shardedDeduper spreads keys over independently locked shards by xxhash so
// claims on different keys rarely contend. Claims are never evicted: a score
// stays claimed for the lifetime of the process.
type shardedDeduper struct {
	shards []*shard
	size   atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := config{shards: defaultShards}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &shardedDeduper{shards: make([]*shard, cfg.shards)}
	for i := range d.shards {
		d.shards[i] = &shard{seen: make(map[string]struct{})}
	}
	return d
}

func (d *shardedDeduper) shardFor(key string) *shard {
	return d.shards[xxhash.Sum64String(key)%uint64(len(d.shards))]
}

// SeenAndRecord atomically checks if key was claimed and claims it if not.
func (d *shardedDeduper) SeenAndRecord(_ context.Context, key string) bool {
	s := d.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return true
	}
	s.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

// Unrecord releases a claim.
func (d *shardedDeduper) Unrecord(_ context.Context, key string) {
	s := d.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		delete(s.seen, key)
		d.size.Add(-1)
	}
}

// Size returns the current number of claims.
func (d *shardedDeduper) Size() int64 {
	return d.size.Load()
}
