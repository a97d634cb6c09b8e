package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wardproxy.dev/ward/internal/actor"
	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/servermanager"
)

type fakeManager struct {
	status   servermanager.Status
	stopped  chan struct{}
	stopErr  error
}

func (m *fakeManager) GetStatus(context.Context) (servermanager.Status, error) { return m.status, nil }
func (m *fakeManager) Start(context.Context) error                            { return nil }
func (m *fakeManager) Stop(context.Context) error {
	if m.stopped != nil {
		close(m.stopped)
	}
	return m.stopErr
}
func (m *fakeManager) Restart(context.Context) error { return nil }

func newTestPair(t *testing.T, label string) *actor.Pair {
	t.Helper()
	c1, c2 := net.Pipe()
	s1, s2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close(); s1.Close(); s2.Close() })
	return actor.NewPair(label, conn.New(c1, uuid.New()), conn.New(s1, uuid.New()))
}

func TestCreateActorPair_TracksActiveSession(t *testing.T) {
	s := New(nil)
	p := newTestPair(t, "sess-1")
	s.CreateActorPair("survival", p)

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Equal(t, 1, s.activeAt["survival"])
}

func TestLogPlayerDisconnect_StartsIdleCountdownWhenLastSession(t *testing.T) {
	s := New(nil)
	p := newTestPair(t, "sess-1")
	s.CreateActorPair("survival", p)
	s.LogPlayerDisconnect("sess-1")

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Equal(t, 0, s.activeAt["survival"])
	_, idle := s.idleSince["survival"]
	assert.True(t, idle)
}

func TestCheckAndMarkEmptyServers_StopsServerPastIdleDeadline(t *testing.T) {
	s := New(nil)
	mgr := &fakeManager{stopped: make(chan struct{})}
	s.RegisterServerManager("survival", mgr, time.Minute)

	p := newTestPair(t, "sess-1")
	s.CreateActorPair("survival", p)
	s.LogPlayerDisconnect("sess-1")

	s.CheckAndMarkEmptyServers(context.Background(), time.Now().Add(2*time.Minute))

	select {
	case <-mgr.stopped:
	case <-time.After(time.Second):
		t.Fatal("expected Stop to be called")
	}
}

func TestCheckAndMarkEmptyServers_SkipsServersStillWithinGracePeriod(t *testing.T) {
	s := New(nil)
	mgr := &fakeManager{stopped: make(chan struct{})}
	s.RegisterServerManager("survival", mgr, time.Hour)

	p := newTestPair(t, "sess-1")
	s.CreateActorPair("survival", p)
	s.LogPlayerDisconnect("sess-1")

	s.CheckAndMarkEmptyServers(context.Background(), time.Now())

	select {
	case <-mgr.stopped:
		t.Fatal("did not expect Stop to be called yet")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdownActors_ShutsDownOnlyMatchingConfigID(t *testing.T) {
	s := New(nil)
	p1 := newTestPair(t, "sess-1")
	p2 := newTestPair(t, "sess-2")
	s.CreateActorPair("survival", p1)
	s.CreateActorPair("creative", p2)

	s.ShutdownActors("survival")

	assert.True(t, p1.ShuttingDown())
	assert.False(t, p2.ShuttingDown())
}

func TestHealthCheck_DoesNotPanicOnHealthyManager(t *testing.T) {
	s := New(nil)
	s.RegisterServerManager("survival", &fakeManager{status: servermanager.StatusRunning}, 0)
	require.NotPanics(t, func() { s.HealthCheck(context.Background()) })
}
