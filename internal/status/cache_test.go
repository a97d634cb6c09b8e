package status

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wardproxy.dev/ward/internal/wire"
)

func TestCache_FetchesOnceThenServesFromCache(t *testing.T) {
	c := New()
	c.SetTTL(time.Hour)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (wire.Packet, error) {
		calls.Add(1)
		return wire.Packet{ID: 0, Data: []byte("motd")}, nil
	}
	fallback := func(error) wire.Packet { return wire.Packet{} }

	for i := 0; i < 5; i++ {
		p, err := c.Get(context.Background(), "backend-1", fetch, fallback)
		require.NoError(t, err)
		assert.Equal(t, []byte("motd"), p.Data)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_CoalescesConcurrentFetches(t *testing.T) {
	c := New()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (wire.Packet, error) {
		calls.Add(1)
		close(started)
		<-release
		return wire.Packet{ID: 1}, nil
	}
	fallback := func(error) wire.Packet { return wire.Packet{} }

	resultCh := make(chan wire.Packet, 2)
	go func() {
		p, _ := c.Get(context.Background(), "backend-2", fetch, fallback)
		resultCh <- p
	}()
	<-started
	go func() {
		p, _ := c.Get(context.Background(), "backend-2", fetch, fallback)
		resultCh <- p
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)

	<-resultCh
	<-resultCh
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_FallbackUsedOnFetchError(t *testing.T) {
	c := New()
	fetch := func(ctx context.Context) (wire.Packet, error) {
		return wire.Packet{}, errors.New("dial failed")
	}
	fallback := func(err error) wire.Packet {
		return wire.Packet{ID: 0, Data: []byte("unreachable: " + err.Error())}
	}

	p, err := c.Get(context.Background(), "backend-3", fetch, fallback)
	require.NoError(t, err)
	assert.Equal(t, []byte("unreachable: dial failed"), p.Data)
}

func TestCache_EntryExpiresAfterTTL(t *testing.T) {
	c := New()
	c.SetTTL(10 * time.Millisecond)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (wire.Packet, error) {
		calls.Add(1)
		return wire.Packet{ID: int32(calls.Load())}, nil
	}
	fallback := func(error) wire.Packet { return wire.Packet{} }

	_, err := c.Get(context.Background(), "backend-4", fetch, fallback)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(context.Background(), "backend-4", fetch, fallback)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	c := New()
	c.SetTTL(time.Hour)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (wire.Packet, error) {
		calls.Add(1)
		return wire.Packet{}, nil
	}
	fallback := func(error) wire.Packet { return wire.Packet{} }

	_, _ = c.Get(context.Background(), "backend-5", fetch, fallback)
	c.Invalidate("backend-5")
	_, _ = c.Get(context.Background(), "backend-5", fetch, fallback)

	assert.Equal(t, int32(2), calls.Load())
}
