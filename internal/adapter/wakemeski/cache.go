package wakemeski

import (
	"context"
	"sync"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

// LocationSource is the lookup surface shared by Finder and CachedFinder.
type LocationSource interface {
	Regions(ctx context.Context) ([]string, error)
	Locations(ctx context.Context, region string) ([]domain.Location, error)
}

// CachedFinder wraps a LocationSource with an in-memory LRU cache.
type CachedFinder struct {
	inner   LocationSource
	regions *lruCache[[]string]
	byArea  *lruCache[[]domain.Location]
	metrics *observability.Metrics
}

// NewCachedFinder creates a cache decorator around a location source.
func NewCachedFinder(inner LocationSource, maxEntries int, metrics *observability.Metrics) *CachedFinder {
	return &CachedFinder{
		inner:   inner,
		regions: newLRUCache[[]string](1),
		byArea:  newLRUCache[[]domain.Location](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedFinder) Regions(ctx context.Context) ([]string, error) {
	if regions, ok := c.regions.get(""); ok {
		c.metrics.LocationCache.WithLabelValues("hit").Inc()
		return regions, nil
	}
	c.metrics.LocationCache.WithLabelValues("miss").Inc()
	regions, err := c.inner.Regions(ctx)
	if err != nil {
		return nil, err
	}
	// Empty answers are not cached so they can be retried.
	if len(regions) > 0 {
		c.regions.put("", regions)
	}
	return regions, nil
}

func (c *CachedFinder) Locations(ctx context.Context, region string) ([]domain.Location, error) {
	if locations, ok := c.byArea.get(region); ok {
		c.metrics.LocationCache.WithLabelValues("hit").Inc()
		return locations, nil
	}
	c.metrics.LocationCache.WithLabelValues("miss").Inc()
	locations, err := c.inner.Locations(ctx, region)
	if err != nil {
		return nil, err
	}
	if len(locations) > 0 {
		c.byArea.put(region, locations)
	}
	return locations, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
