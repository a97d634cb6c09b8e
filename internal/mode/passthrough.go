package mode

import (
	"context"

	"go.wardproxy.dev/ward/internal/actor"
)

// PassthroughHandler switches both connections to raw mode and relays bytes
// unmodified in both directions once the initial handshake has been
// forwarded by the gateway; it performs no inspection, compression
// renegotiation, or encryption of its own.
type PassthroughHandler struct{}

var _ actor.Handler = PassthroughHandler{}

func (PassthroughHandler) ClientLoop(ctx context.Context, p *actor.Pair) error {
	p.ClientConn.EnableRawMode()
	return duplex(ctx, p, p.ClientConn, p.ToServer, p.ToClient)
}

func (PassthroughHandler) ServerLoop(ctx context.Context, p *actor.Pair) error {
	p.ServerConn.EnableRawMode()
	return duplexWithIdleCheck(ctx, p, p.ServerConn, p.ToClient, p.ToServer)
}
