// Package gateway is the entry point a listener hands every accepted
// connection to: filter, detect legacy-vs-modern, resolve the backend,
// gate on server-manager status, then either serve a status response
// directly or dial the backend and run an actor pair over both connections.
package gateway

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/actor"
	"go.wardproxy.dev/ward/internal/ban"
	"go.wardproxy.dev/ward/internal/config"
	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/dialer"
	"go.wardproxy.dev/ward/internal/filter"
	"go.wardproxy.dev/ward/internal/legacy"
	"go.wardproxy.dev/ward/internal/mode"
	"go.wardproxy.dev/ward/internal/motd"
	"go.wardproxy.dev/ward/internal/servermanager"
	"go.wardproxy.dev/ward/internal/status"
	"go.wardproxy.dev/ward/internal/supervisor"
	"go.wardproxy.dev/ward/internal/telemetry"
	"go.wardproxy.dev/ward/internal/wire"
)

// HandshakeTimeout bounds how long the gateway waits for the first byte
// and the handshake/second packet before giving up on a connection.
const HandshakeTimeout = 10 * time.Second

// StatusPingWait bounds how long the gateway waits for an optional
// following ping packet on the status path.
const StatusPingWait = 2 * time.Second

// DialTaskTimeout bounds the backend dial for a login session. The dial runs
// on the session's own goroutine before any actor pair exists; it is not a
// separate task. The status path's own dial is bounded by internal/status's
// shorter FetchTimeout instead.
const DialTaskTimeout = 30 * time.Second

// ServerStartTimeout bounds an opportunistically triggered server-manager
// Start call issued when a connection finds its backend stopped.
const ServerStartTimeout = 30 * time.Second

// Gateway owns the routable backend set and every collaborator a
// connection's pipeline needs: filters, ban store, server managers, the
// status cache, and the supervisor registry.
type Gateway struct {
	mu          sync.RWMutex
	byConfigID  map[string]*config.BackendConfig
	byDomain    map[string]*config.BackendConfig // lowercased domain -> backend

	Bans        ban.Store
	Filters     *filter.Chain
	Supervisor  *supervisor.Supervisor
	StatusCache *status.Cache
	Telemetry   telemetry.Recorder
	UnknownMOTD config.MOTDTemplates

	// AcceptProxyProtocol, if true, tries to consume an ingress
	// PROXY-protocol header before any Minecraft framing.
	AcceptProxyProtocol bool
	ProxyProtocolTimeout time.Duration
}

// New builds an empty Gateway; callers populate backends via
// UpdateConfiguration or Watch before accepting connections.
func New(bans ban.Store, filters *filter.Chain, sup *supervisor.Supervisor, recorder telemetry.Recorder) *Gateway {
	if recorder == nil {
		recorder = telemetry.NoOp{}
	}
	return &Gateway{
		byConfigID:           make(map[string]*config.BackendConfig),
		byDomain:             make(map[string]*config.BackendConfig),
		Bans:                 bans,
		Filters:              filters,
		Supervisor:           sup,
		StatusCache:          status.New(),
		Telemetry:            recorder,
		ProxyProtocolTimeout: 2 * time.Second,
	}
}

// UpdateConfiguration adds or replaces a backend's routing entry.
func (g *Gateway) UpdateConfiguration(b config.BackendConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.byConfigID[b.ConfigID]; ok {
		for _, d := range prev.Domains {
			key := strings.ToLower(d)
			if g.byDomain[key] == prev {
				delete(g.byDomain, key)
			}
		}
	}

	cp := b
	g.byConfigID[b.ConfigID] = &cp
	for _, d := range b.Domains {
		g.byDomain[strings.ToLower(d)] = &cp
	}
}

// RemoveConfiguration drops a backend's routing entry and force-closes any
// of its live sessions.
func (g *Gateway) RemoveConfiguration(configID string) {
	g.mu.Lock()
	b, ok := g.byConfigID[configID]
	if ok {
		delete(g.byConfigID, configID)
		for _, d := range b.Domains {
			delete(g.byDomain, strings.ToLower(d))
		}
	}
	g.mu.Unlock()

	if ok && g.Supervisor != nil {
		g.Supervisor.ShutdownActors(configID)
	}
}

// Watch consumes a config.Provider's event stream until ctx is canceled or
// the provider's channel closes, reconciling the gateway's routing table.
func (g *Gateway) Watch(ctx context.Context, provider config.Provider) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-provider.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case config.EventAdd, config.EventUpdate:
				g.UpdateConfiguration(ev.Backend)
			case config.EventRemove:
				g.RemoveConfiguration(ev.ConfigID)
			}
		}
	}
}

// RequestServer forces a configured backend's server manager to start,
// the entry point an external admin surface uses to pre-warm a server
// without waiting for a player connection.
func (g *Gateway) RequestServer(ctx context.Context, configID string) error {
	if _, ok := g.findByConfigID(configID); !ok {
		return fmt.Errorf("gateway: backend %q is not configured", configID)
	}
	mgr, ok := g.Supervisor.ServerManager(configID)
	if !ok {
		return fmt.Errorf("gateway: backend %q has no server manager configured", configID)
	}
	return mgr.Start(ctx)
}

func (g *Gateway) findByDomain(domain string) (*config.BackendConfig, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.byDomain[strings.ToLower(domain)]
	return b, ok
}

func (g *Gateway) findByConfigID(id string) (*config.BackendConfig, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.byConfigID[id]
	return b, ok
}

// firstBackend returns an arbitrary configured backend, used by both legacy
// paths (ping and login) as the fallback when the client sends no hostname
// or its hostname matches no backend.
func (g *Gateway) firstBackend() (*config.BackendConfig, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, b := range g.byConfigID {
		return b, true
	}
	return nil, false
}

// HandleConnection runs the full accept pipeline for one freshly accepted
// socket: filtering, legacy/modern detection, backend resolution, and
// either a direct status reply or a dialed actor pair.
func (g *Gateway) HandleConnection(ctx context.Context, nc net.Conn) {
	remoteAddr := nc.RemoteAddr()

	if d := g.Filters.Check(ctx, filter.Request{RemoteAddr: remoteAddr}); !d.Allow {
		zap.L().Debug("gateway: connection rejected by filter chain",
			zap.Stringer("remote", remoteAddr), zap.String("reason", d.Reason))
		_ = nc.Close()
		return
	}

	c := conn.New(nc, uuid.New())
	c.SetTimeout(HandshakeTimeout)

	if g.AcceptProxyProtocol {
		if addr, err := conn.ReadProxyProtocolHeader(c.BufferedReader(), g.ProxyProtocolTimeout); err == nil && addr != nil {
			c.OriginalAddr = addr
		}
	}

	_ = nc.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	first, err := c.PeekFirstByte()
	if err != nil {
		g.Telemetry.IncProtocolError("peek-first-byte")
		_ = c.Close()
		return
	}
	_ = nc.SetReadDeadline(time.Time{})

	switch first {
	case 0xFE:
		g.handleLegacyPing(ctx, c)
		return
	case 0x02:
		g.handleLegacyLogin(ctx, c)
		return
	default:
		g.handleModern(ctx, c)
	}
}

func (g *Gateway) handleLegacyPing(ctx context.Context, c *conn.Connection) {
	lookup := func(hostname string) (string, bool) {
		if hostname != "" {
			if b, ok := g.findByDomain(hostname); ok && len(b.Addresses) > 0 {
				return b.Addresses[0], true
			}
		}
		if b, ok := g.firstBackend(); ok && len(b.Addresses) > 0 {
			return b.Addresses[0], true
		}
		return "", false
	}
	fallback := func(v legacy.PingVariant) []byte {
		return motd.ForLegacyState(motd.StateUnreachable, g.UnknownMOTD, v)
	}
	if err := legacy.HandlePing(ctx, c, lookup, fallback); err != nil {
		zap.L().Debug("gateway: legacy ping failed", zap.Error(err))
	}
}

func (g *Gateway) handleLegacyLogin(ctx context.Context, c *conn.Connection) {
	lookup := func(hostname string) (string, bool) {
		if hostname != "" {
			if b, ok := g.findByDomain(hostname); ok && len(b.Addresses) > 0 {
				return b.Addresses[0], true
			}
		}
		if b, ok := g.firstBackend(); ok && len(b.Addresses) > 0 {
			return b.Addresses[0], true
		}
		return "", false
	}
	if err := legacy.HandleLogin(ctx, c, lookup, dialer.Options{}); err != nil {
		zap.L().Debug("gateway: legacy login failed", zap.Error(err))
	}
}

func (g *Gateway) handleModern(ctx context.Context, c *conn.Connection) {
	hsCtx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	hs, second, err := readHandshakeAndSecond(hsCtx, c)
	if err != nil {
		g.Telemetry.IncProtocolError("handshake-read")
		_ = c.Close()
		return
	}

	backend, found := g.findByDomain(hs.ServerAddress)
	if !found {
		if hs.IsLogin() {
			g.rejectLogin(c, "No server found for this address.")
			return
		}
		g.serveStatus(ctx, c, nil, motd.StateUnknownServer)
		return
	}

	var username string
	if hs.IsLogin() {
		ls, err := ParseLoginStart(second.Packet.Data)
		if err != nil {
			_ = c.Close()
			return
		}
		username = ls.Username

		if banned, reason := g.Bans.IsBannedUsername(username); banned {
			zap.L().Info("gateway: rejecting banned player", zap.String("username", username), zap.String("reason", reason))
			g.rejectLogin(c, "You are banned: "+reason)
			return
		}
	}

	if backend.ServerManager != nil && backend.ServerManager.Kind != config.ServerManagerNone {
		if !g.gateServerManager(ctx, c, backend, hs) {
			return
		}
	}

	if !hs.IsLogin() {
		g.serveStatus(ctx, c, backend, StateForBackend(backend))
		return
	}

	g.runSession(ctx, c, backend, hs, username)
}

// gateServerManager checks a server-managed backend's status and, when it
// is stopped, opportunistically starts it. It returns false (having already
// responded to and/or closed c) when the connection should not proceed
// further.
func (g *Gateway) gateServerManager(ctx context.Context, c *conn.Connection, backend *config.BackendConfig, hs Handshake) bool {
	mgr, ok := g.Supervisor.ServerManager(backend.ConfigID)
	if !ok {
		return true
	}

	st, err := mgr.GetStatus(ctx)
	if err != nil {
		zap.L().Warn("gateway: server manager status check failed", zap.String("config_id", backend.ConfigID), zap.Error(err))
		g.serveStatus(ctx, c, backend, motd.StateUnreachable)
		return false
	}

	switch st {
	case servermanager.StatusCrashed:
		g.serveStatus(ctx, c, backend, motd.StateCrashed)
		return false
	case servermanager.StatusStopped:
		go func() {
			startCtx, cancel := context.WithTimeout(context.Background(), ServerStartTimeout)
			defer cancel()
			if err := mgr.Start(startCtx); err != nil {
				zap.L().Warn("gateway: opportunistic start failed", zap.String("config_id", backend.ConfigID), zap.Error(err))
			}
		}()
		if !hs.IsLogin() {
			g.serveStatus(ctx, c, backend, motd.StateStarting)
			return false
		}
		// Login requests proceed straight to the dial while the start runs;
		// the session is not held until the server reports running.
		return true
	case servermanager.StatusStarting:
		if !hs.IsLogin() {
			g.serveStatus(ctx, c, backend, motd.StateStarting)
			return false
		}
		return true
	case servermanager.StatusStopping:
		if !hs.IsLogin() {
			g.serveStatus(ctx, c, backend, motd.StateStopping)
			return false
		}
		return true
	case servermanager.StatusRunning:
		return true
	default:
		if !hs.IsLogin() {
			g.serveStatus(ctx, c, backend, motd.StateUnreachable)
			return false
		}
		return true
	}
}

// StateForBackend reports the motd.State a status-ping should answer with
// absent any server-manager gating (i.e. when no manager is configured).
func StateForBackend(b *config.BackendConfig) motd.State {
	if b == nil {
		return motd.StateUnknownServer
	}
	return motd.StateUnreachable
}

// rejectLogin writes a login-disconnect packet with reason before closing
// c, so the client shows a message instead of a bare connection reset.
func (g *Gateway) rejectLogin(c *conn.Connection, reason string) {
	if p, err := wire.DisconnectPacket(reason); err == nil {
		_ = c.WritePacket(p)
	}
	_ = c.Close()
}

func (g *Gateway) serveStatus(ctx context.Context, c *conn.Connection, backend *config.BackendConfig, fallbackState motd.State) {
	var templates config.MOTDTemplates
	if backend != nil {
		templates = backend.MOTD
	} else {
		templates = g.UnknownMOTD
	}

	handler := mode.StatusHandler{
		Lookup: func(lookupCtx context.Context) (wire.Packet, error) {
			if backend == nil || len(backend.Addresses) == 0 {
				return motd.ForState(fallbackState, templates)
			}
			key := fmt.Sprintf("%s:%d", backend.ConfigID, 0)
			return g.StatusCache.Get(lookupCtx, key, func(fetchCtx context.Context) (wire.Packet, error) {
				return dialAndFetchStatus(fetchCtx, backend.Addresses)
			}, func(error) wire.Packet {
				p, _ := motd.ForState(fallbackState, templates)
				return p
			})
		},
	}

	statusCtx, cancel := context.WithTimeout(ctx, StatusPingWait)
	defer cancel()
	if err := handler.ServeStatus(statusCtx, c); err != nil {
		zap.L().Debug("gateway: serve status failed", zap.Error(err))
	}
	_ = c.Close()
}

// dialAndFetchStatus opens a short-lived connection to the first reachable
// address in addrs, replays a minimal modern handshake plus status-request,
// and returns the backend's status-response packet.
func dialAndFetchStatus(ctx context.Context, addrs []string) (wire.Packet, error) {
	nc, err := dialer.DialAny(ctx, addrs, dialer.Options{})
	if err != nil {
		return wire.Packet{}, err
	}
	defer nc.Close()

	bc := conn.New(nc, uuid.New())
	bc.SetTimeout(status.FetchTimeout)

	var hsData []byte
	hsData = wire.PutVarInt(hsData, -1)
	hsData = wire.PutString(hsData, "ward")
	hsData = wire.PutUint16(hsData, 0)
	hsData = wire.PutVarInt(hsData, nextStateStatus)
	if err := bc.WritePacket(wire.Packet{ID: packetHandshake, Data: hsData}); err != nil {
		return wire.Packet{}, err
	}
	if err := bc.WritePacket(wire.Packet{ID: 0x00}); err != nil {
		return wire.Packet{}, err
	}

	rv, err := bc.Read()
	if err != nil {
		return wire.Packet{}, err
	}
	if rv.Kind != conn.ReadPacket {
		return wire.Packet{}, fmt.Errorf("gateway: backend %v sent no status response", addrs)
	}
	return rv.Packet, nil
}

// readHandshakeAndSecond reads the handshake packet and the packet that
// follows it (status-request or login-start), both framed.
func readHandshakeAndSecond(ctx context.Context, c *conn.Connection) (Handshake, readResult, error) {
	type result struct {
		hs     Handshake
		second readResult
		err    error
	}
	done := make(chan result, 1)
	go func() {
		rv, err := c.Read()
		if err != nil || rv.Kind != conn.ReadPacket {
			done <- result{err: fmt.Errorf("gateway: read handshake packet: %w", firstNonNil(err, errNoPacket))}
			return
		}
		hs, err := ParseHandshake(rv.Packet.Data)
		if err != nil {
			done <- result{err: err}
			return
		}

		rv2, err := c.Read()
		if err != nil || rv2.Kind != conn.ReadPacket {
			done <- result{err: fmt.Errorf("gateway: read second packet: %w", firstNonNil(err, errNoPacket))}
			return
		}
		done <- result{hs: hs, second: readResult{Packet: rv2.Packet}}
	}()

	select {
	case r := <-done:
		return r.hs, r.second, r.err
	case <-ctx.Done():
		return Handshake{}, readResult{}, ctx.Err()
	}
}

type readResult struct {
	Packet wire.Packet
}

var errNoPacket = fmt.Errorf("no framed packet available")

func firstNonNil(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// runSession dials the backend for a login connection on the calling
// goroutine (bounded by DialTaskTimeout) and, only once the dial succeeds,
// creates the actor pair, replays the handshake and runs the pair's
// proxy-mode handler until the session ends. No actor pair exists while the
// dial is in flight.
func (g *Gateway) runSession(ctx context.Context, c *conn.Connection, backend *config.BackendConfig, hs Handshake, username string) {
	label := fmt.Sprintf("%s/%s/%s", backend.ConfigID, username, c.SessionID)

	dialCtx, cancel := context.WithTimeout(context.Background(), DialTaskTimeout)
	defer cancel()

	if len(backend.Addresses) == 0 {
		_ = c.Close()
		return
	}

	opts := dialer.Options{
		SendProxyProtocol:    backend.SendProxyProtocol,
		ProxyProtocolVersion: proxyProtoVersionByte(backend.ProxyProtocolVersion),
		ClientAddr:           c.ClientAddr(),
	}
	backendConn, err := dialer.DialAny(dialCtx, backend.Addresses, opts)
	if err != nil {
		zap.L().Warn("gateway: backend dial failed", zap.String("config_id", backend.ConfigID), zap.Error(err))
		g.Telemetry.ObserveDialLatency(0, false)
		_ = c.Close()
		return
	}

	sc := conn.New(backendConn, uuid.New())
	p := actor.NewPair(label, c, sc)

	if g.Supervisor != nil {
		g.Supervisor.CreateActorPair(backend.ConfigID, p)
	}

	var handler actor.Handler
	switch backend.ProxyMode {
	case mode.ClientOnly:
		handler = &mode.ClientOnlyHandler{Username: username}
	case mode.Offline:
		handler = mode.OfflineHandler{}
	default:
		handler = mode.PassthroughHandler{}
	}

	if err := replayHandshake(sc, hs, username); err != nil {
		zap.L().Warn("gateway: replay handshake to backend failed", zap.Error(err))
		p.Shutdown()
		_ = c.Close()
		_ = sc.Close()
		return
	}

	actor.Run(ctx, p, handler)
	if g.Supervisor != nil {
		g.Supervisor.LogPlayerDisconnect(label)
	}
}

// replayHandshake re-encodes and forwards the handshake and login-start
// packets to the backend, matching spec.md's "read_packets: [handshake,
// second_packet]" relay requirement for non-status sessions.
func replayHandshake(sc *conn.Connection, hs Handshake, username string) error {
	var hsData []byte
	hsData = wire.PutVarInt(hsData, hs.ProtocolVersion)
	hsData = wire.PutString(hsData, hs.ServerAddress)
	hsData = wire.PutUint16(hsData, hs.ServerPort)
	hsData = wire.PutVarInt(hsData, nextStateLogin)
	if err := sc.WritePacket(wire.Packet{ID: packetHandshake, Data: hsData}); err != nil {
		return err
	}

	var lsData []byte
	lsData = wire.PutString(lsData, username)
	return sc.WritePacket(wire.Packet{ID: 0x00, Data: lsData})
}

func proxyProtoVersionByte(v config.ProxyProtoVersion) byte {
	switch v {
	case config.ProxyProtoV1:
		return 1
	case config.ProxyProtoV2:
		return 2
	default:
		return 0
	}
}
