package commandqueue

import (
	"context"
	"sync"
	"time"
)

const defaultDedupTTL = 5 * time.Minute

// cachedResult stores a resolved task result for idempotent replays.
type cachedResult struct {
	result    taskResult
	timestamp time.Time
}

// resultCache is a TTL-bounded cache keyed by request ID. A repeated
// request within the TTL gets the original result instead of a re-run.
type resultCache struct {
	entries map[string]*cachedResult
	ttl     time.Duration
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func newResultCache(ctx context.Context, ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	ctx, cancel := context.WithCancel(ctx)
	cache := &resultCache{
		entries: make(map[string]*cachedResult),
		ttl:     ttl,
		ctx:     ctx,
		cancel:  cancel,
	}

	go cache.sweep()

	return cache
}

func (rc *resultCache) Stop() {
	if rc.cancel != nil {
		rc.cancel()
	}
}

// Get retrieves a cached result if it exists and is not expired
func (rc *resultCache) Get(requestID string) (taskResult, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	entry, exists := rc.entries[requestID]
	if !exists {
		return taskResult{}, false
	}

	if time.Since(entry.timestamp) > rc.ttl {
		return taskResult{}, false
	}

	return entry.result, true
}

// Set stores a result in the cache
func (rc *resultCache) Set(requestID string, result taskResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.entries[requestID] = &cachedResult{
		result:    result,
		timestamp: time.Now(),
	}
}

// sweep periodically removes expired entries
func (rc *resultCache) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.mu.Lock()
			now := time.Now()
			for requestID, entry := range rc.entries {
				if now.Sub(entry.timestamp) > rc.ttl {
					delete(rc.entries, requestID)
				}
			}
			rc.mu.Unlock()
		}
	}
}

// Size returns the number of entries in the cache
func (rc *resultCache) Size() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}
