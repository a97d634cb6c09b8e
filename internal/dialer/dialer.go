// Package dialer connects to backend Minecraft servers, optionally emitting
// a PROXY-protocol header so the backend can recover the real client
// address instead of seeing every connection arrive from ward itself.
package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// DialTimeout bounds how long a backend dial may take.
const DialTimeout = 5 * time.Second

// Options configures a single dial.
type Options struct {
	// SendProxyProtocol emits a PROXY-protocol header immediately after
	// connecting, before any Minecraft bytes.
	SendProxyProtocol bool
	// ProxyProtocolVersion selects the v1 (text) or v2 (binary) header
	// encoding; only meaningful when SendProxyProtocol is set.
	ProxyProtocolVersion byte
	// ClientAddr is the address to report as the connection's true
	// source: the PROXY-protocol-derived original client address if one
	// was recovered on ingress, else the direct socket peer.
	ClientAddr net.Addr
}

// Dial connects to addr with a bounded timeout, TCP no-delay, and (if
// requested) a PROXY-protocol header describing the original client.
func Dial(ctx context.Context, addr string, opts Options) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if opts.SendProxyProtocol {
		if err := writeProxyHeader(conn, opts); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// DialAny attempts each address in order, giving each its own bounded
// DialTimeout, and returns the first successful connection. If every
// address fails, it returns the last error encountered.
func DialAny(ctx context.Context, addrs []string, opts Options) (net.Conn, error) {
	var lastErr error
	for _, addr := range addrs {
		conn, err := Dial(ctx, addr, opts)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("dialer: no addresses configured")
	}
	return nil, lastErr
}

func writeProxyHeader(conn net.Conn, opts Options) error {
	transport := proxyproto.TCPv4
	if isIPv6(opts.ClientAddr) {
		transport = proxyproto.TCPv6
	}

	version := opts.ProxyProtocolVersion
	if version == 0 {
		version = 2
	}

	header := &proxyproto.Header{
		Version:           version,
		Command:           proxyproto.PROXY,
		TransportProtocol: transport,
		SourceAddr:        opts.ClientAddr,
		DestinationAddr:   conn.LocalAddr(),
	}
	_, err := header.WriteTo(conn)
	return err
}

func isIPv6(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil
}
