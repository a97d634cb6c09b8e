// Package status implements the backend status-response cache: TTL-based
// expiry, singleflight request coalescing so a burst of simultaneous status
// pings to the same backend only triggers one upstream fetch, and a
// synthesized fallback response when that fetch fails or times out.
package status

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"go.wardproxy.dev/ward/internal/wire"
)

// DefaultTTL is how long a fetched status response is served from cache
// before the next request triggers a refetch.
const DefaultTTL = 5 * time.Second

// QuickLookupTimeout bounds how long Get will wait on the cache's lock
// before treating a hit as a miss, so a pathological lock holder can never
// stall the status ping path.
const QuickLookupTimeout = 100 * time.Millisecond

// FetchTimeout bounds how long a coalesced upstream fetch is allowed to
// run before Get falls back to the unreachable response.
const FetchTimeout = 5 * time.Second

// Fetcher dials the backend and returns its status response.
type Fetcher func(ctx context.Context) (wire.Packet, error)

// FallbackFunc synthesizes a response to serve (and briefly cache) when a
// Fetcher fails or times out.
type FallbackFunc func(err error) wire.Packet

type entry struct {
	packet    wire.Packet
	expiresAt time.Time
}

// Cache holds one status-response TTL cache, keyed by the caller (hash of
// backend address + protocol version, as the caller decides to construct
// it).
type Cache struct {
	mu    sync.RWMutex
	byKey map[string]entry

	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
}

// New returns an empty Cache with the default TTL and fetch timeout.
func New() *Cache {
	return &Cache{
		byKey:        make(map[string]entry),
		ttl:          DefaultTTL,
		fetchTimeout: FetchTimeout,
	}
}

// SetTTL overrides the cache entry lifetime.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// Get returns the cached response for key if fresh, otherwise coalesces
// concurrent callers behind a single Fetcher invocation. If the fetch
// fails or exceeds the cache's fetch timeout, fallback synthesizes the
// response returned (and cached briefly, to damp repeated failures).
func (c *Cache) Get(ctx context.Context, key string, fetch Fetcher, fallback FallbackFunc) (wire.Packet, error) {
	if p, ok := c.quickLookup(key); ok {
		return p, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()

		p, ferr := fetch(fetchCtx)
		if ferr != nil {
			fb := fallback(ferr)
			c.store(key, fb, shortNegativeTTL)
			return fb, nil
		}
		c.store(key, p, c.currentTTL())
		return p, nil
	})
	if err != nil {
		return wire.Packet{}, err
	}
	return v.(wire.Packet), nil
}

// shortNegativeTTL keeps a synthesized failure response from being served
// stale for as long as a real success would be.
const shortNegativeTTL = 2 * time.Second

func (c *Cache) currentTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

func (c *Cache) quickLookup(key string) (wire.Packet, bool) {
	done := make(chan entry, 1)
	go func() {
		c.mu.RLock()
		e, ok := c.byKey[key]
		c.mu.RUnlock()
		if ok {
			done <- e
		} else {
			close(done)
		}
	}()

	select {
	case e, ok := <-done:
		if !ok {
			return wire.Packet{}, false
		}
		if time.Now().After(e.expiresAt) {
			return wire.Packet{}, false
		}
		return e.packet, true
	case <-time.After(QuickLookupTimeout):
		return wire.Packet{}, false
	}
}

func (c *Cache) store(key string, p wire.Packet, ttl time.Duration) {
	c.mu.Lock()
	c.byKey[key] = entry{packet: p, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate drops a cached entry, forcing the next Get to refetch.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.byKey, key)
	c.mu.Unlock()
}
