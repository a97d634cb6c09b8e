package mode

import (
	"context"

	"go.wardproxy.dev/ward/internal/actor"
)

// OfflineHandler relays raw bytes once past the handshake, performing no
// authentication of its own; the backend is expected to run in
// offline/cracked mode and trust whatever username the client claims.
type OfflineHandler struct{}

var _ actor.Handler = OfflineHandler{}

func (OfflineHandler) ClientLoop(ctx context.Context, p *actor.Pair) error {
	p.ClientConn.EnableRawMode()
	return duplex(ctx, p, p.ClientConn, p.ToServer, p.ToClient)
}

func (OfflineHandler) ServerLoop(ctx context.Context, p *actor.Pair) error {
	p.ServerConn.EnableRawMode()
	return duplexWithIdleCheck(ctx, p, p.ServerConn, p.ToClient, p.ToServer)
}
