package legacy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/dialer"
)

// pingForwardTimeout bounds how long we wait for a backend to answer a
// forwarded raw legacy ping before falling back to a synthesized response.
const pingForwardTimeout = 5 * time.Second

// ErrNoServer means HandleLogin's lookup found no backend for the legacy
// login's hostname. HandlePing never returns it; it answers with the
// fallback MOTD instead.
var ErrNoServer = errors.New("legacy: no matching server")

// ServerLookup resolves a legacy hostname (possibly empty) to a backend
// address to dial, matching the same routing the modern handshake path
// uses.
type ServerLookup func(hostname string) (addr string, ok bool)

// FallbackMOTD synthesizes a reply when no backend could be reached.
type FallbackMOTD func(v PingVariant) []byte

// HandlePing answers a legacy 0xFE server-list ping: it forwards the raw
// ping bytes to the resolved backend and relays its 0xFF kick-formatted
// reply verbatim (any Minecraft server, legacy or modern, answers a raw
// 0xFE ping this way), falling back to a synthesized response if the
// backend can't be reached or doesn't answer the legacy ping in time.
func HandlePing(ctx context.Context, c *conn.Connection, lookup ServerLookup, fallback FallbackMOTD) error {
	raw, err := ReadPingData(c)
	if err != nil {
		return fmt.Errorf("legacy: read ping: %w", err)
	}

	variant, err := ParsePingVariant(raw)
	if err != nil {
		return fmt.Errorf("legacy: parse ping: %w", err)
	}

	addr, ok := lookup(variant.Hostname)
	var response []byte
	if !ok {
		response = fallback(variant)
	} else {
		response, err = forwardPing(ctx, addr, raw)
		if err != nil {
			zap.L().Debug("legacy: ping passthrough failed, using fallback",
				zap.String("addr", addr), zap.Error(err))
			response = fallback(variant)
		}
	}

	if err := c.WriteRaw(response); err != nil {
		return err
	}
	return c.Close()
}

func forwardPing(ctx context.Context, addr string, raw []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pingForwardTimeout)
	defer cancel()

	backend, err := dialer.Dial(ctx, addr, dialer.Options{})
	if err != nil {
		return nil, fmt.Errorf("dial backend: %w", err)
	}
	defer backend.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = backend.SetDeadline(dl)
	}

	if _, err := backend.Write(raw); err != nil {
		return nil, fmt.Errorf("write ping: %w", err)
	}

	return readKickFrame(backend)
}

// readKickFrame reads a 0xFF legacy kick/ping-response frame verbatim.
func readKickFrame(r io.Reader) ([]byte, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if header[0] != 0xFF {
		return nil, fmt.Errorf("legacy: expected 0xFF kick frame, got 0x%02X", header[0])
	}
	strLen := int(header[1])<<8 | int(header[2])
	if strLen > 32767 {
		return nil, errors.New("legacy: kick frame string too large")
	}
	payload := make([]byte, strLen*2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 3+len(payload))
	out = append(out, header[:]...)
	return append(out, payload...), nil
}

// HandleLogin answers a legacy 0x02 login handshake: it dials the resolved
// backend, replays the raw handshake bytes verbatim (the backend must
// itself understand the legacy protocol — ward does not translate between
// legacy and modern here), and relays bytes bidirectionally until either
// side closes.
func HandleLogin(ctx context.Context, c *conn.Connection, lookup ServerLookup, opts dialer.Options) error {
	raw, err := ReadHandshakeData(c)
	if err != nil {
		return fmt.Errorf("legacy: read handshake: %w", err)
	}

	hs, err := ParseHandshake(raw)
	if err != nil {
		return fmt.Errorf("legacy: parse handshake: %w", err)
	}

	addr, ok := lookup(hs.Hostname)
	if !ok {
		return fmt.Errorf("%w: hostname %q", ErrNoServer, hs.Hostname)
	}

	backend, err := dialer.Dial(ctx, addr, opts)
	if err != nil {
		return fmt.Errorf("legacy: dial backend: %w", err)
	}
	defer backend.Close()

	if _, err := backend.Write(raw); err != nil {
		return fmt.Errorf("legacy: replay handshake: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(backend, c.BufferedReader())
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(c.Underlying(), backend)
		errCh <- err
	}()

	return <-errCh
}
