// Package pricing resolves unit prices for (region, instance type, OS) keys
// through a TTL cache backed by the external pricing service.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	agenterrors "github.com/costscope/costscope-agent/internal/errors"
	"github.com/costscope/costscope-agent/internal/observability"
	"github.com/costscope/costscope-agent/pkg/model"
)

// DefaultTTL is how long a fetched price is served from cache before the
// next lookup re-fetches it.
const DefaultTTL = 300 * time.Second

// Key identifies a cached price.
type Key struct {
	Region          string
	InstanceType    string
	OperatingSystem string
}

type entry struct {
	price     model.Price
	fetchedAt time.Time
}

// Cache is a thread-safe, time-expiring price store. A single mutex guards
// the map for every read-and-possibly-evict sequence; the upstream fetch
// happens outside the lock, so concurrent misses for the same key may issue
// duplicate upstream calls. Failed fetches are not cached; the next lookup
// retries immediately.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry

	ttl     time.Duration
	clock   agenterrors.Clock
	lookup  Lookup
	errs    *agenterrors.ErrorCollector
	metrics *observability.Metrics
}

// NewCache creates a Cache over the given lookup client.
// errs and metrics may be nil.
func NewCache(lookup Lookup, ttl time.Duration, clock agenterrors.Clock, errs *agenterrors.ErrorCollector, metrics *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[Key]entry),
		ttl:     ttl,
		clock:   clock,
		lookup:  lookup,
		errs:    errs,
		metrics: metrics,
	}
}

// ResolvePrice returns the unit price for the key, serving a fresh cached
// entry when one exists and otherwise fetching from the pricing service.
// An unresolvable price is returned as model.UnknownPrice, never an error:
// unknown prices degrade cost output to zero rather than failing a cycle.
//
// Callers must not hold unrelated locks across this call: a miss performs
// network I/O on the calling goroutine.
func (c *Cache) ResolvePrice(ctx context.Context, region, instanceType, operatingSystem string) model.Price {
	k := Key{Region: region, InstanceType: instanceType, OperatingSystem: operatingSystem}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		if c.clock.Now().Sub(e.fetchedAt) < c.ttl {
			c.mu.Unlock()
			c.countLookup("hit")
			return e.price
		}
		// Expired. Evict now so a failed re-fetch leaves no stale entry.
		delete(c.entries, k)
	}
	c.mu.Unlock()

	price, err := c.fetch(ctx, k)
	if err != nil {
		c.countLookup("error")
		if c.errs != nil {
			c.errs.Report(agenterrors.AgentError{
				Code:      agenterrors.ErrPricingUnreachable,
				Message:   fmt.Sprintf("price fetch failed for %s/%s/%s: %v", region, instanceType, operatingSystem, err),
				Component: "pricing",
				Timestamp: time.Now().UnixMilli(),
				Err:       err,
			})
		}
		slog.Error("price fetch failed",
			"region", region,
			"instance_type", instanceType,
			"operating_system", operatingSystem,
			"error", err,
		)
		return model.UnknownPrice
	}

	c.mu.Lock()
	c.entries[k] = entry{price: price, fetchedAt: c.clock.Now()}
	size := len(c.entries)
	c.mu.Unlock()

	c.countLookup("miss")
	if c.metrics != nil {
		c.metrics.PriceCacheEntries.Set(float64(size))
	}
	return price
}

// Evict removes the entry for the key, if present.
func (c *Cache) Evict(region, instanceType, operatingSystem string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key{Region: region, InstanceType: instanceType, OperatingSystem: operatingSystem})
}

// Len returns the number of cached entries, fresh or expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) fetch(ctx context.Context, k Key) (model.Price, error) {
	start := time.Now()
	price, err := c.lookup.FetchPrice(ctx, k.Region, k.InstanceType, k.OperatingSystem)
	if c.metrics != nil {
		c.metrics.PricingFetchDuration.Observe(time.Since(start).Seconds())
	}
	return price, err
}

func (c *Cache) countLookup(outcome string) {
	if c.metrics != nil {
		c.metrics.PricingLookupsTotal.WithLabelValues(outcome).Inc()
	}
}
