package conn

import (
	"bufio"
	"errors"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// ErrProxyProtocolTimeout is returned when no PROXY-protocol header arrives
// within the configured deadline.
var ErrProxyProtocolTimeout = errors.New("conn: timed out waiting for proxy-protocol header")

// ReadProxyProtocolHeader peeks the connection's buffered reader for a
// PROXY-protocol v1 or v2 header (accepting either, mirroring the ingress
// side's permissive stance) and returns the source address it carries. If
// the leading bytes do not form a valid header it returns a nil address and
// the library's error, so callers should call it before any Minecraft
// framing begins.
func ReadProxyProtocolHeader(br *bufio.Reader, timeout time.Duration) (net.Addr, error) {
	type result struct {
		addr net.Addr
		err  error
	}
	done := make(chan result, 1)
	go func() {
		header, err := proxyproto.Read(br)
		if err != nil {
			done <- result{nil, err}
			return
		}
		done <- result{header.SourceAddr, nil}
	}()

	select {
	case r := <-done:
		return r.addr, r.err
	case <-time.After(timeout):
		return nil, ErrProxyProtocolTimeout
	}
}
