package mode

import (
	"context"
	"time"

	"go.wardproxy.dev/ward/internal/actor"
	"go.wardproxy.dev/ward/internal/conn"
)

// serverIdleCheck bounds how long the server-side drain loop will block
// waiting for an outgoing message before re-checking shutdown/cancellation;
// the client side never needs this since a client socket closing is itself
// the signal to tear the pair down.
const serverIdleCheck = 5 * time.Second

// relayFromConn reads values off src until it closes, shuts down, or ctx is
// cancelled, forwarding each as a Msg on out. It returns on the first read
// error (including a clean EOF) so the caller can tear the pair down.
func relayFromConn(ctx context.Context, p *actor.Pair, src *conn.Connection, out chan<- actor.Msg) error {
	for {
		if p.ShuttingDown() {
			return nil
		}

		rv, err := src.Read()
		if err != nil {
			return err
		}

		var msg actor.Msg
		switch rv.Kind {
		case conn.ReadEOF:
			return nil
		case conn.ReadPacket:
			msg = actor.Msg{Kind: actor.MsgPacket, Packet: rv.Packet}
		case conn.ReadRaw:
			msg = actor.Msg{Kind: actor.MsgRaw, Raw: rv.Raw}
		default:
			continue
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// duplex runs the read-and-forward and drain-and-write halves of one side
// of a Pair concurrently, returning as soon as either half ends.
func duplex(ctx context.Context, p *actor.Pair, local *conn.Connection, out chan<- actor.Msg, in <-chan actor.Msg) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- relayFromConn(ctx, p, local, out) }()
	go func() { errCh <- relayToConn(ctx, p, local, in) }()

	return <-errCh
}

// relayToConn drains in and writes each Msg to dst until in closes, ctx is
// cancelled, or a write fails.
func relayToConn(ctx context.Context, p *actor.Pair, dst *conn.Connection, in <-chan actor.Msg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if p.ShuttingDown() {
				return nil
			}
			switch msg.Kind {
			case actor.MsgShutdown:
				return nil
			case actor.MsgPacket:
				if err := dst.WritePacket(msg.Packet); err != nil {
					return err
				}
			case actor.MsgRaw:
				if err := dst.WriteRaw(msg.Raw); err != nil {
					return err
				}
			}
		}
	}
}

// relayToConnIdle is relayToConn with an added idle-timeout select arm: the
// server side of a pair re-checks shutdown/cancellation every
// serverIdleCheck even with no traffic, so a client that vanishes without
// closing its socket doesn't pin the server actor open indefinitely.
func relayToConnIdle(ctx context.Context, p *actor.Pair, dst *conn.Connection, in <-chan actor.Msg) error {
	timer := time.NewTimer(serverIdleCheck)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if p.ShuttingDown() {
				return nil
			}
			timer.Reset(serverIdleCheck)
		case msg, ok := <-in:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(serverIdleCheck)
			if !ok {
				return nil
			}
			if p.ShuttingDown() {
				return nil
			}
			switch msg.Kind {
			case actor.MsgShutdown:
				return nil
			case actor.MsgPacket:
				if err := dst.WritePacket(msg.Packet); err != nil {
					return err
				}
			case actor.MsgRaw:
				if err := dst.WriteRaw(msg.Raw); err != nil {
					return err
				}
			}
		}
	}
}

// duplexWithIdleCheck is duplex but uses relayToConnIdle for the
// drain-and-write half, matching the server actor's additional idle-timeout
// select arm.
func duplexWithIdleCheck(ctx context.Context, p *actor.Pair, local *conn.Connection, out chan<- actor.Msg, in <-chan actor.Msg) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- relayFromConn(ctx, p, local, out) }()
	go func() { errCh <- relayToConnIdle(ctx, p, local, in) }()

	return <-errCh
}
