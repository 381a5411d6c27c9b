package cache

import (
	"context"
	"sync"
	"time"

	"bakerypos/backend/internal/domain"
)

type ForecastCache interface {
	Get(ctx context.Context, key string) (*domain.ForecastReport, bool, error)
	Set(ctx context.Context, key string, value *domain.ForecastReport, ttl time.Duration) error
}

type NoopForecastCache struct{}

func (NoopForecastCache) Get(_ context.Context, _ string) (*domain.ForecastReport, bool, error) {
	return nil, false, nil
}

func (NoopForecastCache) Set(_ context.Context, _ string, _ *domain.ForecastReport, _ time.Duration) error {
	return nil
}

// MemoryForecastCache keeps reports in process. Used when no redis is configured.
type MemoryForecastCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	report    domain.ForecastReport
	expiresAt time.Time
}

func NewMemoryForecastCache() *MemoryForecastCache {
	return &MemoryForecastCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryForecastCache) Get(_ context.Context, key string) (*domain.ForecastReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	report := entry.report
	return &report, true, nil
}

func (c *MemoryForecastCache) Set(_ context.Context, key string, value *domain.ForecastReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evictExpired(now)

	entry := memoryEntry{report: *value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// evictExpired drops entries past their deadline. Callers hold c.mu.
func (c *MemoryForecastCache) evictExpired(now time.Time) {
	for key, entry := range c.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
