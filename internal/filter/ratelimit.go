package filter

import (
	"context"
	"net"
	"net/netip"
	"sync"

	lru "github.com/golang/groupcache/lru"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP token-bucket limiter.
type RateLimitConfig struct {
	// RatePerSecond is the steady-state token refill rate per bucket.
	RatePerSecond float64
	// Burst is the bucket capacity.
	Burst int
	// MaxTrackedIPs bounds memory use; the least-recently-used bucket is
	// evicted once the cache is full.
	MaxTrackedIPs int
}

// RateLimiter denies connection attempts once a canonical IP (an IPv6
// address is canonicalized to its /64) has exhausted its token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets *lru.Cache
}

// NewRateLimiter builds a RateLimiter; zero-value fields in cfg fall back to
// permissive defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxTrackedIPs <= 0 {
		cfg.MaxTrackedIPs = 16384
	}
	return &RateLimiter{
		cfg:     cfg,
		buckets: lru.New(cfg.MaxTrackedIPs),
	}
}

// Name implements Filter.
func (r *RateLimiter) Name() string { return "rate-limit" }

// Check implements Filter.
func (r *RateLimiter) Check(_ context.Context, req Request) Decision {
	key := canonicalKey(req.RemoteAddr)
	if key == "" {
		return allow()
	}

	r.mu.Lock()
	limiter := r.bucketFor(key)
	r.mu.Unlock()

	if !limiter.Allow() {
		return deny("rate limit exceeded")
	}
	return allow()
}

func (r *RateLimiter) bucketFor(key string) *rate.Limiter {
	if v, ok := r.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(r.cfg.RatePerSecond), r.cfg.Burst)
	r.buckets.Add(key, limiter)
	return limiter
}

// canonicalKey reduces an address to the bucket it should share with other
// connections from the same network: a /64 for IPv6, the bare address for
// IPv4.
func canonicalKey(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	if ip.Is6() && !ip.Is4In6() {
		prefix, err := ip.Prefix(64)
		if err == nil {
			return prefix.String()
		}
	}
	return ip.String()
}
