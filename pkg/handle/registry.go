// Package handle implements the sharded, TTL-reclaiming table of open
// file handles backing a single tenant's namespace.
package handle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fs9fs/fs9/internal/logger"
	"github.com/fs9fs/fs9/pkg/provider"
)

const shardCount = 64

// ID is a VFS-global, monotonically increasing handle identifier. It is
// never reused, even after the handle it named is closed.
type ID uint64

// Record describes one open handle.
type Record struct {
	ID              ID
	Provider        provider.FsProvider
	ProviderType    string
	ProviderHandle  provider.Handle
	Tenant          string
	MountPoint      string
	Flags           provider.OpenFlags
	CreatedAt       time.Time
	LastUsed        time.Time
}

type shard struct {
	mu      sync.RWMutex
	records map[ID]*Record
}

// Registry is the sharded active-handle table for one tenant.
type Registry struct {
	shards  [shardCount]*shard
	counter atomic.Uint64
	ttl     time.Duration

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithTTL overrides the default handle idle TTL (60 minutes).
func WithTTL(d time.Duration) Option { return func(r *Registry) { r.ttl = d } }

// WithCleanupInterval overrides the default background sweep period (60s).
func WithCleanupInterval(d time.Duration) Option {
	return func(r *Registry) { r.cleanupInterval = d }
}

// New constructs a registry and starts its background cleanup task.
func New(opts ...Option) *Registry {
	r := &Registry{
		ttl:             60 * time.Minute,
		cleanupInterval: 60 * time.Second,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{records: make(map[ID]*Record)}
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.cleanupLoop()
	return r
}

func (r *Registry) shardFor(id ID) *shard {
	return r.shards[uint64(id)%shardCount]
}

// Register mints a new HandleId and inserts a record for it.
func (r *Registry) Register(prov provider.FsProvider, providerType, tenant, mountPoint string, flags provider.OpenFlags, ph provider.Handle) ID {
	id := ID(r.counter.Add(1))
	now := time.Now()
	rec := &Record{
		ID:             id,
		Provider:       prov,
		ProviderType:   providerType,
		ProviderHandle: ph,
		Tenant:         tenant,
		MountPoint:     mountPoint,
		Flags:          flags,
		CreatedAt:      now,
		LastUsed:       now,
	}

	sh := r.shardFor(id)
	sh.mu.Lock()
	sh.records[id] = rec
	sh.mu.Unlock()

	return id
}

// Lookup returns the record for id, or InvalidHandle if it is not open.
func (r *Registry) Lookup(id ID) (*Record, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	rec, ok := sh.records[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, provider.InvalidHandle("no such handle")
	}
	return rec, nil
}

// Touch bumps a handle's last-used timestamp.
func (r *Registry) Touch(id ID) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	if rec, ok := sh.records[id]; ok {
		rec.LastUsed = time.Now()
	}
	sh.mu.Unlock()
}

// Close removes id from the registry and invokes provider.Close outside
// any shard lock. A second close of the same id returns InvalidHandle.
func (r *Registry) Close(ctx context.Context, id ID) error {
	sh := r.shardFor(id)
	sh.mu.Lock()
	rec, ok := sh.records[id]
	if ok {
		delete(sh.records, id)
	}
	sh.mu.Unlock()

	if !ok {
		return provider.InvalidHandle("no such handle")
	}

	return rec.Provider.Close(ctx, rec.ProviderHandle)
}

// Count returns the number of open handles across all shards.
func (r *Registry) Count() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.records)
		sh.mu.RUnlock()
	}
	return total
}

// DrainAll closes every open handle across all shards. Intended for
// shutdown and namespace teardown; close failures are logged, never
// propagated, since a failing provider close must not block shutdown.
func (r *Registry) DrainAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, sh := range r.shards {
		sh.mu.Lock()
		recs := make([]*Record, 0, len(sh.records))
		for _, rec := range sh.records {
			recs = append(recs, rec)
		}
		sh.records = make(map[ID]*Record)
		sh.mu.Unlock()

		for _, rec := range recs {
			wg.Add(1)
			go func(rec *Record) {
				defer wg.Done()
				if err := rec.Provider.Close(ctx, rec.ProviderHandle); err != nil {
					logger.WarnCtx(ctx, "handle drain close failed",
						logger.HandleID(uint64(rec.ID)), logger.Err(err))
				}
			}(rec)
		}
	}

	wg.Wait()
}

// Stop terminates the background cleanup task. Safe to call once.
func (r *Registry) Stop() {
	close(r.stopCleanup)
	<-r.cleanupDone
}

func (r *Registry) cleanupLoop() {
	defer close(r.cleanupDone)

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCleanup:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep performs the three-phase TTL sweep described for the handle
// registry: collect expired IDs under a read lock, remove them and take
// ownership of their provider handles under a write lock, then close them
// without holding any lock so a slow provider close never blocks other
// handle operations.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.ttl)

	for _, sh := range r.shards {
		sh.mu.RLock()
		var expired []ID
		for id, rec := range sh.records {
			if rec.LastUsed.Before(cutoff) {
				expired = append(expired, id)
			}
		}
		sh.mu.RUnlock()

		if len(expired) == 0 {
			continue
		}

		sh.mu.Lock()
		toClose := make([]*Record, 0, len(expired))
		for _, id := range expired {
			if rec, ok := sh.records[id]; ok {
				toClose = append(toClose, rec)
				delete(sh.records, id)
			}
		}
		sh.mu.Unlock()

		for _, rec := range toClose {
			if err := rec.Provider.Close(context.Background(), rec.ProviderHandle); err != nil {
				logger.Warn("handle TTL cleanup close failed",
					logger.HandleID(uint64(rec.ID)), logger.Err(err))
			}
		}
	}
}
