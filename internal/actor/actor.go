// Package actor implements the actor-pair concurrency model a live session
// runs under once a gateway has accepted a client and dialed its backend:
// one goroutine relays in the client->server direction and one in the
// server->client direction, joined by bounded channels and a shared
// shutdown flag, so either side tearing down promptly stops the other.
package actor

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/wire"
)

// ChannelCapacity bounds the client<->server relay channels so a slow
// reader applies backpressure instead of letting memory grow unbounded.
const ChannelCapacity = 64

// ShutdownGrace is how long Run waits for both actor goroutines to notice
// a cancellation before forcing the underlying connections closed.
const ShutdownGrace = 300 * time.Millisecond

// MsgKind tags the payload carried by a Msg.
type MsgKind int

const (
	MsgPacket MsgKind = iota
	MsgRaw
	MsgCustom
	MsgShutdown
)

// Msg is the unit exchanged between the client and server actor goroutines.
type Msg struct {
	Kind   MsgKind
	Packet wire.Packet
	Raw    []byte
	Custom any
}

// Pair joins a client-facing and server-facing Connection for the lifetime
// of one session.
type Pair struct {
	SessionLabel string
	ClientConn   *conn.Connection
	ServerConn   *conn.Connection

	ToServer chan Msg
	ToClient chan Msg

	shutdown atomic.Bool
}

// NewPair allocates the bounded relay channels for a fresh session.
func NewPair(label string, client, server *conn.Connection) *Pair {
	return &Pair{
		SessionLabel: label,
		ClientConn:   client,
		ServerConn:   server,
		ToServer:     make(chan Msg, ChannelCapacity),
		ToClient:     make(chan Msg, ChannelCapacity),
	}
}

// Shutdown marks the pair as tearing down; actor loops check this at their
// select boundaries and exit promptly rather than blocking forever.
func (p *Pair) Shutdown() {
	p.shutdown.Store(true)
}

// ShuttingDown reports whether Shutdown has been called.
func (p *Pair) ShuttingDown() bool {
	return p.shutdown.Load()
}

// Handler supplies the two goroutine bodies a proxy mode runs the pair
// with: ClientLoop owns reads from the client and writes arriving from the
// server; ServerLoop is the mirror image.
type Handler interface {
	ClientLoop(ctx context.Context, p *Pair) error
	ServerLoop(ctx context.Context, p *Pair) error
}

// Run drives a Pair through a Handler until either side's loop returns,
// then cooperatively cancels the other and waits up to ShutdownGrace before
// forcing both connections closed.
func Run(ctx context.Context, p *Pair, h Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 2)
	runOne := func(name string, fn func(context.Context, *Pair) error) {
		defer func() { done <- struct{}{} }()
		if err := fn(ctx, p); err != nil {
			zap.L().Debug("actor: loop exited", zap.String("session", p.SessionLabel),
				zap.String("side", name), zap.Error(err))
		}
	}

	go runOne("client", h.ClientLoop)
	go runOne("server", h.ServerLoop)

	<-done
	p.Shutdown()
	cancel()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		zap.L().Debug("actor: grace period elapsed, forcing close",
			zap.String("session", p.SessionLabel))
	}

	_ = p.ClientConn.Close()
	_ = p.ServerConn.Close()
}
