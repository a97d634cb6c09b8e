// Package supervisor owns every live session's actor pair and every
// backend's server-manager binding, registries guarded by sync.RWMutex in
// the same style as the teacher's player/connection registries, plus the
// periodic health-check and idle-shutdown sweeps spec.md's gateway leans on.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/actor"
	"go.wardproxy.dev/ward/internal/servermanager"
	"go.wardproxy.dev/ward/internal/telemetry"
)

// SweepInterval is how often the background health-check and
// empty-server sweeps run, matching spec.md's "every 60 seconds" cadence.
const SweepInterval = 60 * time.Second

// managedServer bundles one backend's optional server-manager binding with
// its idle tracking; configIDs with no ServerManagerConfig never get an
// entry here.
type managedServer struct {
	manager servermanager.Manager
	after   time.Duration
}

// Supervisor is the single registry the gateway hands every accepted
// session and every configured backend through.
type Supervisor struct {
	mu        sync.RWMutex
	pairs     map[string]*actor.Pair   // keyed by session label
	configIDs map[string]string        // session label -> configID, for player-count accounting
	servers   map[string]managedServer // keyed by configID
	activeAt  map[string]int           // configID -> count of live sessions
	idleSince map[string]time.Time     // configID -> when it last had zero sessions

	recorder telemetry.Recorder

	tasksMu sync.Mutex
	tasks   map[string]context.CancelFunc

	stopSweep context.CancelFunc
}

// New builds an empty Supervisor. recorder may be telemetry.NoOp{}.
func New(recorder telemetry.Recorder) *Supervisor {
	if recorder == nil {
		recorder = telemetry.NoOp{}
	}
	return &Supervisor{
		pairs:     make(map[string]*actor.Pair),
		configIDs: make(map[string]string),
		servers:   make(map[string]managedServer),
		activeAt:  make(map[string]int),
		idleSince: make(map[string]time.Time),
		recorder:  recorder,
		tasks:     make(map[string]context.CancelFunc),
	}
}

// RegisterServerManager binds a backend's configID to its server-manager
// provider, so the idle sweep can later stop it. after<=0 disables
// auto-shutdown for this backend.
func (s *Supervisor) RegisterServerManager(configID string, mgr servermanager.Manager, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[configID] = managedServer{manager: mgr, after: after}
}

// ServerManager returns the provider bound to configID, if any.
func (s *Supervisor) ServerManager(configID string) (servermanager.Manager, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.servers[configID]
	if !ok {
		return nil, false
	}
	return ms.manager, true
}

// CreateActorPair registers a freshly built actor.Pair under configID and
// marks its backend active, canceling any pending idle-shutdown countdown.
func (s *Supervisor) CreateActorPair(configID string, p *actor.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[p.SessionLabel] = p
	s.configIDs[p.SessionLabel] = configID
	s.activeAt[configID]++
	delete(s.idleSince, configID)
	s.recorder.RecordPlayerConnect(configID)
}

// LogPlayerDisconnect removes a finished session's bookkeeping. If this
// was the backend's last active session, the idle-shutdown countdown for
// that configID starts now.
func (s *Supervisor) LogPlayerDisconnect(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configID, ok := s.configIDs[label]
	if !ok {
		return
	}
	delete(s.pairs, label)
	delete(s.configIDs, label)

	if s.activeAt[configID] > 0 {
		s.activeAt[configID]--
	}
	if s.activeAt[configID] == 0 {
		s.idleSince[configID] = time.Now()
	}
	s.recorder.RecordPlayerDisconnect(configID)
	zap.L().Debug("supervisor: session ended", zap.String("session", label), zap.String("config_id", configID))
}

// ShutdownActors force-closes every live session bound to configID, e.g.
// when a backend is removed from the running config.
func (s *Supervisor) ShutdownActors(configID string) {
	s.mu.RLock()
	var victims []*actor.Pair
	for label, id := range s.configIDs {
		if id == configID {
			victims = append(victims, s.pairs[label])
		}
	}
	s.mu.RUnlock()

	for _, p := range victims {
		p.Shutdown()
	}
}

// ShutdownAllActors force-closes every live session, used on proxy
// shutdown.
func (s *Supervisor) ShutdownAllActors() {
	s.mu.RLock()
	victims := make([]*actor.Pair, 0, len(s.pairs))
	for _, p := range s.pairs {
		victims = append(victims, p)
	}
	s.mu.RUnlock()

	for _, p := range victims {
		p.Shutdown()
	}
}

// RegisterTask tracks a long-running background goroutine's cancel func
// under name, so Stop can unwind every task the supervisor has spawned.
func (s *Supervisor) RegisterTask(name string, cancel context.CancelFunc) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	s.tasks[name] = cancel
}

// Start launches the periodic health-check and empty-server sweeps as a
// background task registered with the supervisor; Stop cancels it. Safe to
// call once.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.stopSweep = cancel
	s.RegisterTask("supervisor-sweep", cancel)

	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.HealthCheck(ctx)
				s.CheckAndMarkEmptyServers(ctx, time.Now())
			}
		}
	}()
}

// Stop cancels every registered background task and force-closes every
// live session.
func (s *Supervisor) Stop() {
	s.tasksMu.Lock()
	for _, cancel := range s.tasks {
		cancel()
	}
	s.tasksMu.Unlock()
	s.ShutdownAllActors()
}

// HealthCheck polls every registered server manager's status once,
// logging failures. Each GetStatus call is bounded only by ctx and the
// provider's own timeouts; the sweep loop started by Start passes its
// long-lived context, not a per-sweep deadline.
func (s *Supervisor) HealthCheck(ctx context.Context) {
	s.mu.RLock()
	snapshot := make(map[string]servermanager.Manager, len(s.servers))
	for id, ms := range s.servers {
		snapshot[id] = ms.manager
	}
	s.mu.RUnlock()

	for configID, mgr := range snapshot {
		status, err := mgr.GetStatus(ctx)
		if err != nil {
			zap.L().Warn("supervisor: health check failed", zap.String("config_id", configID), zap.Error(err))
			continue
		}
		zap.L().Debug("supervisor: health check", zap.String("config_id", configID), zap.String("status", status.String()))
	}
}

// CheckAndMarkEmptyServers stops every server-managed backend that has sat
// idle past its configured AutoShutdownAfter.
func (s *Supervisor) CheckAndMarkEmptyServers(ctx context.Context, now time.Time) {
	s.mu.RLock()
	var toStop []string
	for configID, ms := range s.servers {
		if ms.after <= 0 {
			continue
		}
		since, idle := s.idleSince[configID]
		if !idle {
			continue
		}
		if now.Sub(since) >= ms.after {
			toStop = append(toStop, configID)
		}
	}
	s.mu.RUnlock()

	for _, configID := range toStop {
		mgr, ok := s.ServerManager(configID)
		if !ok {
			continue
		}
		if err := mgr.Stop(ctx); err != nil {
			zap.L().Warn("supervisor: auto-shutdown failed", zap.String("config_id", configID), zap.Error(err))
			continue
		}
		zap.L().Info("supervisor: auto-shutdown idle server", zap.String("config_id", configID))
		s.mu.Lock()
		delete(s.idleSince, configID)
		s.mu.Unlock()
	}
}
