// Package conn implements the per-socket connection abstraction shared by
// client- and server-facing actors: buffered framing over the wire codec,
// idempotent close, and the raw/protocol mode switch used once a connection
// has been handed off to straight byte relaying.
package conn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/wire"
)

// ErrClosed is returned by any operation attempted on an already-closed
// Connection.
var ErrClosed = errors.New("conn: connection is closed")

// DefaultTimeout is the write deadline applied to each flush absent a
// SetTimeout call. Reads are not bounded by it.
const DefaultTimeout = 30 * time.Second

// ReadKind tags the variant held by a ReadValue.
type ReadKind int

const (
	// ReadNothing means the call returned without new data (used by
	// callers that poll rather than block).
	ReadNothing ReadKind = iota
	// ReadPacket means a framed Packet was decoded.
	ReadPacket
	// ReadRaw means raw, non-framed bytes were read (raw mode only).
	ReadRaw
	// ReadEOF means the peer closed the connection cleanly.
	ReadEOF
)

// ReadValue is the result of Connection.Read: exactly one of Packet or Raw
// is meaningful, gated by Kind.
type ReadValue struct {
	Kind   ReadKind
	Packet wire.Packet
	Raw    []byte
}

// Connection wraps a net.Conn with the framed wire protocol, switching to
// raw byte relaying once EnableRawMode is called (used for the passthrough
// and offline proxy modes, which never parse packets past the handshake).
type Connection struct {
	SessionID uuid.UUID

	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	dec *wire.Decoder
	enc *wire.Encoder

	raw     atomic.Bool
	closed  atomic.Bool
	closeMu sync.Once

	timeout time.Duration

	// OriginalAddr is the client address recovered from an ingress
	// PROXY-protocol header, nil if the connection was not proxied or
	// the feature is disabled.
	OriginalAddr net.Addr
}

// New wraps an already-accepted or already-dialed net.Conn.
func New(nc net.Conn, sessionID uuid.UUID) *Connection {
	br := bufio.NewReader(nc)
	bw := bufio.NewWriter(nc)
	return &Connection{
		SessionID: sessionID,
		nc:        nc,
		br:        br,
		bw:        bw,
		dec:       wire.NewDecoder(br),
		enc:       wire.NewEncoder(bw),
		timeout:   DefaultTimeout,
	}
}

// SetTimeout adjusts the write deadline applied before each flush; reads
// carry no deadline from it.
func (c *Connection) SetTimeout(d time.Duration) {
	c.timeout = d
}

// EnableRawMode switches Read to byte-relay semantics, bypassing packet
// framing entirely. Irreversible for the lifetime of the Connection.
func (c *Connection) EnableRawMode() {
	c.raw.Store(true)
}

// PeekFirstByte returns the first unread byte without consuming it, used by
// the gateway to distinguish the legacy 0xFE/0x02 prefixes from a modern
// varint frame length.
func (c *Connection) PeekFirstByte() (byte, error) {
	b, err := c.br.Peek(1)
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return b[0], nil
}

// ReadRawUpTo reads at most maxLen bytes without framing, stopping early (a
// short read) if the peer has nothing more buffered right now.
func (c *Connection) ReadRawUpTo(maxLen int) ([]byte, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	buf := make([]byte, maxLen)
	n, err := c.br.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return buf[:0], nil
}

// ReadExact reads exactly len(buf) raw bytes.
func (c *Connection) ReadExact(buf []byte) error {
	if c.Closed() {
		return ErrClosed
	}
	_, err := io.ReadFull(c.br, buf)
	return err
}

// Read consumes the next unit from the connection: a framed Packet in
// protocol mode, or a raw chunk in raw mode, translating a clean peer close
// into ReadEOF rather than an error.
func (c *Connection) Read() (ReadValue, error) {
	if c.Closed() {
		return ReadValue{}, ErrClosed
	}

	if c.raw.Load() {
		buf, err := c.ReadRawUpTo(4096)
		if err != nil {
			if isCleanClose(err) {
				_ = c.Close()
				return ReadValue{Kind: ReadEOF}, nil
			}
			_ = c.Close()
			return ReadValue{}, err
		}
		if len(buf) == 0 {
			return ReadValue{Kind: ReadNothing}, nil
		}
		return ReadValue{Kind: ReadRaw, Raw: buf}, nil
	}

	p, err := c.dec.ReadPacket()
	if err != nil {
		if errors.Is(err, wire.ErrEndOfStream) {
			c.closed.Store(true)
			return ReadValue{Kind: ReadEOF}, nil
		}
		return ReadValue{}, err
	}
	return ReadValue{Kind: ReadPacket, Packet: p}, nil
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// WritePacket encodes and flushes a single framed packet. The connection is
// closed on any write error, matching the teacher's closeOnErr idiom.
func (c *Connection) WritePacket(p wire.Packet) (err error) {
	if c.Closed() {
		return ErrClosed
	}
	defer func() { c.closeOnErr(err) }()
	if err = c.enc.WritePacket(p); err != nil {
		return err
	}
	return c.flush()
}

// WriteRaw writes and flushes pre-framed or raw-mode bytes verbatim.
func (c *Connection) WriteRaw(data []byte) (err error) {
	if c.Closed() {
		return ErrClosed
	}
	defer func() { c.closeOnErr(err) }()
	if _, err = c.bw.Write(data); err != nil {
		return err
	}
	return c.flush()
}

func (c *Connection) flush() (err error) {
	deadline := time.Now().Add(c.timeout)
	if err = c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Connection) closeOnErr(err error) {
	if err == nil {
		return
	}
	_ = c.Close()
	if errors.Is(err, ErrClosed) {
		return
	}
	zap.L().Debug("conn: write error, closing connection",
		zap.Stringer("session", c.SessionID), zap.Error(err))
}

// EnableCompression turns on zlib compression at or above threshold bytes on both
// directions. The caller must have already told the peer to expect it.
func (c *Connection) EnableCompression(threshold int) {
	c.dec.SetCompressionThreshold(threshold)
	c.enc.SetCompression(threshold)
}

// DisableCompression turns compression back off.
func (c *Connection) DisableCompression() {
	c.dec.DisableCompression()
	c.enc.DisableCompression()
}

// EnableEncryption installs a matching AES-128-CFB8 stream pair keyed by the
// negotiated shared secret on both directions.
func (c *Connection) EnableEncryption(sharedSecret []byte) error {
	encStream, err := wire.NewEncryptStream(sharedSecret)
	if err != nil {
		return err
	}
	decStream, err := wire.NewDecryptStream(sharedSecret)
	if err != nil {
		return err
	}
	c.enc.EnableEncryption(encStream)
	c.dec.EnableEncryption(decStream)
	return nil
}

// Closed reports whether Close has already run.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Close shuts down the underlying socket. Safe to call more than once; only
// the first call has effect.
func (c *Connection) Close() (err error) {
	alreadyClosed := true
	c.closeMu.Do(func() {
		alreadyClosed = false
		c.closed.Store(true)
		_ = c.bw.Flush()
		err = c.nc.Close()
	})
	if alreadyClosed {
		return ErrClosed
	}
	return err
}

// RemoteAddr returns the socket peer address (the load balancer or direct
// client, regardless of any PROXY-protocol header).
func (c *Connection) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// LocalAddr returns the local socket address.
func (c *Connection) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// ClientAddr returns OriginalAddr if a PROXY-protocol header supplied one,
// else falls back to the socket's RemoteAddr.
func (c *Connection) ClientAddr() net.Addr {
	if c.OriginalAddr != nil {
		return c.OriginalAddr
	}
	return c.RemoteAddr()
}

// Underlying exposes the raw net.Conn, used by the legacy login relay to
// copy backend bytes straight to the client socket.
func (c *Connection) Underlying() net.Conn {
	return c.nc
}

// BufferedReader exposes the buffered reader for components (PROXY-protocol
// parsing, legacy handling) that must consume bytes before any packet
// framing begins.
func (c *Connection) BufferedReader() *bufio.Reader {
	return c.br
}
