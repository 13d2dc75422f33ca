package completion

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

// Reason names the event that made a cached summary stale.
type Reason string

// Invalidation reasons.
const (
	ReasonResultCreated      Reason = "result_created"
	ReasonSignatureCommitted Reason = "signature_committed"
	ReasonRosterReloaded     Reason = "roster_reloaded"
)

// Invalidation is delivered to listeners.
type Invalidation struct {
	EmployeeID int64
	Reason     Reason
}

// Invalidator is the narrow view handed to code that only signals staleness.
type Invalidator interface {
	Invalidate(ctx context.Context, employeeID int64, reason Reason)
}

// Cache holds derived summaries keyed by employee id. Entries are written by
// Put after a recomputation and removed only through Invalidate.
//
// Every invalidation bumps the employee's version. A writer reads Version
// before fetching and passes it to Put; a summary computed before the last
// invalidation is dropped.
type Cache struct {
	mu        sync.RWMutex
	entries   map[int64]Summary
	versions  map[int64]uint64
	epoch     uint64
	listeners []func(Invalidation)
	logger    logger.Logger
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[int64]Summary),
		versions: make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("completion")
	}
	return c
}

// Get returns the cached summary of an employee.
func (c *Cache) Get(employeeID int64) (Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[employeeID]
	return s, ok
}

// Version returns the employee's current version. Both counters only grow,
// so any invalidation changes the sum.
func (c *Cache) Version(employeeID int64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch + c.versions[employeeID]
}

// Put stores a summary computed from data fetched at version. It reports
// false and keeps the cache as is when the employee was invalidated since.
func (c *Cache) Put(employeeID int64, version uint64, s Summary) bool {
	c.mu.Lock()
	if c.epoch+c.versions[employeeID] != version {
		c.mu.Unlock()
		return false
	}
	c.entries[employeeID] = s
	n := len(c.entries)
	c.mu.Unlock()
	metrics.UpdateCacheEntries(n)
	return true
}

// Invalidate drops an employee's summary and notifies listeners.
func (c *Cache) Invalidate(ctx context.Context, employeeID int64, reason Reason) {
	c.mu.Lock()
	delete(c.entries, employeeID)
	c.versions[employeeID]++
	n := len(c.entries)
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	metrics.UpdateCacheEntries(n)
	metrics.RecordCacheInvalidation(string(reason))
	c.logger.Debug(ctx, "level summary invalidated",
		logger.Int64("employee", employeeID),
		logger.String("reason", string(reason)),
	)
	for _, fn := range listeners {
		fn(Invalidation{EmployeeID: employeeID, Reason: reason})
	}
}

// InvalidateAll drops every entry, e.g. when a roster is reloaded. Writes
// already in flight for employees without an entry are dropped too.
func (c *Cache) InvalidateAll(ctx context.Context, reason Reason) {
	c.mu.Lock()
	c.epoch++
	ids := make([]int64, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.Invalidate(ctx, id, reason)
	}
}

// Len returns the number of cached summaries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
