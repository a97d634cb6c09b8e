package mode

import (
	"context"

	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/wire"
)

// StatusHandler answers server-list pings straight out of a status cache
// and never joins a backend actor pair; the gateway calls ServeStatus
// directly on the client connection instead of constructing a Pair.
type StatusHandler struct {
	// Lookup resolves the current status response packet, dialing the
	// backend only on a cache miss.
	Lookup func(ctx context.Context) (wire.Packet, error)
}

// ServeStatus writes the cached status response, then replies to a
// following ping packet with its payload echoed back unchanged, matching
// the vanilla status sequence (Request -> Response, Ping -> Pong).
func (h StatusHandler) ServeStatus(ctx context.Context, c *conn.Connection) error {
	resp, err := h.Lookup(ctx)
	if err != nil {
		return err
	}
	if err := c.WritePacket(resp); err != nil {
		return err
	}

	rv, err := c.Read()
	if err != nil {
		return nil //nolint:nilerr // client closing after status is normal
	}
	if rv.Kind != conn.ReadPacket {
		return nil
	}
	return c.WritePacket(rv.Packet)
}
