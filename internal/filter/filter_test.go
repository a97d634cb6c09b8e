package filter

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(host string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(host), Port: 25565}
}

func TestRateLimiter_AllowsUpToBurstThenDenies(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RatePerSecond: 1, Burst: 3})

	req := Request{RemoteAddr: addr("198.51.100.9")}
	for i := 0; i < 3; i++ {
		d := rl.Check(context.Background(), req)
		assert.True(t, d.Allow, "request %d should be allowed within burst", i)
	}
	d := rl.Check(context.Background(), req)
	assert.False(t, d.Allow)
}

func TestRateLimiter_SeparateIPsHaveIndependentBuckets(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RatePerSecond: 1, Burst: 1})

	assert.True(t, rl.Check(context.Background(), Request{RemoteAddr: addr("198.51.100.1")}).Allow)
	assert.True(t, rl.Check(context.Background(), Request{RemoteAddr: addr("198.51.100.2")}).Allow)
}

func TestRateLimiter_IPv6CanonicalizesToSlash64(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RatePerSecond: 1, Burst: 1})

	a := Request{RemoteAddr: addr("2001:db8::1")}
	b := Request{RemoteAddr: addr("2001:db8::2")}

	assert.True(t, rl.Check(context.Background(), a).Allow)
	// Same /64 prefix as a, so the bucket is already exhausted.
	assert.False(t, rl.Check(context.Background(), b).Allow)
}

type fakeBanStore struct {
	bannedAddrs map[string]string
	bannedUUIDs map[string]string
}

func (f *fakeBanStore) IsBannedAddr(addr net.Addr) (bool, string) {
	host, _, _ := net.SplitHostPort(addr.String())
	reason, ok := f.bannedAddrs[host]
	return ok, reason
}

func (f *fakeBanStore) IsBannedUUID(uuid string) (bool, string) {
	reason, ok := f.bannedUUIDs[uuid]
	return ok, reason
}

func TestBanFilter_DeniesBannedAddr(t *testing.T) {
	store := &fakeBanStore{bannedAddrs: map[string]string{"203.0.113.5": "griefing"}}
	f := NewBanFilter(store)

	d := f.Check(context.Background(), Request{RemoteAddr: addr("203.0.113.5")})
	assert.False(t, d.Allow)
	assert.Equal(t, "griefing", d.Reason)
}

func TestBanFilter_AllowsUnbannedAddr(t *testing.T) {
	store := &fakeBanStore{bannedAddrs: map[string]string{}}
	f := NewBanFilter(store)

	d := f.Check(context.Background(), Request{RemoteAddr: addr("203.0.113.9")})
	assert.True(t, d.Allow)
}

func TestChain_ShortCircuitsOnFirstDenial(t *testing.T) {
	banStore := &fakeBanStore{bannedAddrs: map[string]string{"203.0.113.5": "banned"}}
	chain := NewChain(NewRateLimiter(RateLimitConfig{RatePerSecond: 1000, Burst: 1000}), NewBanFilter(banStore))

	d := chain.Check(context.Background(), Request{RemoteAddr: addr("203.0.113.5")})
	assert.False(t, d.Allow)
	assert.Equal(t, "banned", d.Reason)
}

func TestChain_SetEnabledDisablesAFilter(t *testing.T) {
	banStore := &fakeBanStore{bannedAddrs: map[string]string{"203.0.113.5": "banned"}}
	chain := NewChain(NewBanFilter(banStore))

	require.NoError(t, chain.SetEnabled("ban-check", false))
	d := chain.Check(context.Background(), Request{RemoteAddr: addr("203.0.113.5")})
	assert.True(t, d.Allow)
}

func TestChain_SetEnabledUnknownFilterErrors(t *testing.T) {
	chain := NewChain()
	assert.Error(t, chain.SetEnabled("does-not-exist", false))
}
