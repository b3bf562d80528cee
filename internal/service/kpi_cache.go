package service

import (
	"context"
	"sync"
	"time"

	"gymcore-backend/internal/domain"
)

type kpiEntry struct {
	kpis    domain.KPIs
	expires time.Time
}

// MemoryKPICache is a process-local TTL cache keyed by day.
type MemoryKPICache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]kpiEntry
}

func NewMemoryKPICache(ttl time.Duration, now func() time.Time) *MemoryKPICache {
	if now == nil {
		now = time.Now
	}
	return &MemoryKPICache{ttl: ttl, now: now, entries: make(map[string]kpiEntry)}
}

func kpiKey(day time.Time) string {
	return day.UTC().Format(time.DateOnly)
}

func (c *MemoryKPICache) Get(_ context.Context, day time.Time) (domain.KPIs, bool) {
	c.mu.RLock()
	e, ok := c.entries[kpiKey(day)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return domain.KPIs{}, false
	}
	return e.kpis, true
}

func (c *MemoryKPICache) Set(_ context.Context, day time.Time, kpis domain.KPIs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// expired entries are dropped on write so the map stays small
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[kpiKey(day)] = kpiEntry{kpis: kpis, expires: now.Add(c.ttl)}
}

func (c *MemoryKPICache) Invalidate(_ context.Context, day time.Time) error {
	c.mu.Lock()
	delete(c.entries, kpiKey(day))
	c.mu.Unlock()
	return nil
}
