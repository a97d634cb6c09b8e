// Package legacy handles the two pre-1.7 wire formats a connection can open
// with instead of the modern varint-framed handshake: a 0xFE server-list
// ping (three sub-variants: Beta, 1.4-1.5, 1.6) and a 0x02 login request
// (two sub-formats: pre-1.3, 1.3+). Both are detected by PeekFirstByte
// before any modern framing is attempted.
package legacy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf16"

	"go.wardproxy.dev/ward/internal/conn"
)

// probeTimeout bounds how long we wait for the optional extra bytes that
// distinguish the Beta ping from the 1.4+/1.6 variants; legacy clients send
// their whole ping in one flight, so a short, fixed wait is sufficient.
const probeTimeout = 100 * time.Millisecond

// PingVariantKind distinguishes the three legacy ping shapes.
type PingVariantKind int

const (
	PingBeta PingVariantKind = iota
	PingV1_4
	PingV1_6
)

// PingVariant is a parsed 0xFE ping, carrying the hostname/port a 1.6
// client supplied via its MC|PingHost plugin message, if any.
type PingVariant struct {
	Kind     PingVariantKind
	Hostname string
	Port     int32
}

// UsesV1_4ResponseFormat reports whether the kick response must use the
// richer 1.4+ format (protocol, motd, players, max) rather than the bare
// Beta "motd" string.
func (v PingVariant) UsesV1_4ResponseFormat() bool {
	return v.Kind != PingBeta
}

var errShortRead = errors.New("legacy: short read during probe")

// ReadPingData consumes and returns the raw bytes of a legacy ping: the
// leading 0xFE (already peeked by the caller, still unconsumed) plus
// whatever additional bytes arrive within probeTimeout.
func ReadPingData(c *conn.Connection) ([]byte, error) {
	data := make([]byte, 0, 64)

	var fe [1]byte
	if err := c.ReadExact(fe[:]); err != nil {
		return nil, err
	}
	data = append(data, fe[0])

	next, ok := tryReadByte(c)
	if !ok {
		return data, nil
	}
	data = append(data, next)

	if next == 0x01 {
		more, err := readRemainingV16(c)
		if err == nil {
			data = append(data, more...)
		}
	}
	return data, nil
}

// readRemainingV16 reads the 0xFA + MC|PingHost payload of a 1.6 ping, if
// present; a short/missing read just means the client was 1.4/1.5.
func readRemainingV16(c *conn.Connection) ([]byte, error) {
	data := make([]byte, 0, 64)

	b, ok := tryReadByteN(c, 1)
	if !ok || len(b) == 0 {
		return data, errShortRead
	}
	data = append(data, b[0])
	if b[0] != 0xFA {
		return data, nil
	}

	lenBytes, ok := tryReadByteN(c, 2)
	if !ok {
		return data, errShortRead
	}
	data = append(data, lenBytes...)
	strLen := int(binary.BigEndian.Uint16(lenBytes))

	strData, ok := tryReadByteN(c, strLen*2)
	if !ok {
		return data, errShortRead
	}
	data = append(data, strData...)

	dataLenBytes, ok := tryReadByteN(c, 2)
	if !ok {
		return data, errShortRead
	}
	data = append(data, dataLenBytes...)
	dataLen := int(binary.BigEndian.Uint16(dataLenBytes))

	rest, ok := tryReadByteN(c, dataLen)
	if !ok {
		return data, errShortRead
	}
	data = append(data, rest...)

	return data, nil
}

func tryReadByte(c *conn.Connection) (byte, bool) {
	buf, ok := tryReadByteN(c, 1)
	if !ok || len(buf) == 0 {
		return 0, false
	}
	return buf[0], true
}

// tryReadByteN reads exactly n bytes, reporting failure if they have not
// arrived within probeTimeout; the connection's own timeout is left
// untouched. n == 0 trivially succeeds.
func tryReadByteN(c *conn.Connection, n int) ([]byte, bool) {
	if n == 0 {
		return nil, true
	}
	buf := make([]byte, n)
	done := make(chan error, 1)
	go func() { done <- c.ReadExact(buf) }()

	select {
	case err := <-done:
		return buf, err == nil
	case <-time.After(probeTimeout):
		return nil, false
	}
}

// ParsePingVariant classifies a ReadPingData result.
func ParsePingVariant(data []byte) (PingVariant, error) {
	if len(data) == 0 || data[0] != 0xFE {
		return PingVariant{}, errors.New("legacy: not a legacy ping")
	}
	if len(data) == 1 {
		return PingVariant{Kind: PingBeta}, nil
	}
	if data[1] != 0x01 {
		return PingVariant{}, errors.New("legacy: malformed 1.4+ ping")
	}
	if len(data) == 2 {
		return PingVariant{Kind: PingV1_4}, nil
	}
	if len(data) < 3 || data[2] != 0xFA {
		return PingVariant{Kind: PingV1_4}, nil
	}

	rest := data[3:]
	if len(rest) < 2 {
		return PingVariant{Kind: PingV1_4}, nil
	}
	channelLen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < channelLen*2 {
		return PingVariant{Kind: PingV1_4}, nil
	}
	rest = rest[channelLen*2:]
	if len(rest) < 2 {
		return PingVariant{Kind: PingV1_4}, nil
	}
	rest = rest[2:]

	// rest now holds: [byte protocol][short+UTF16 hostname][int32 port]
	if len(rest) < 3 {
		return PingVariant{Kind: PingV1_4}, nil
	}
	rest = rest[1:] // skip protocol version byte
	hostLen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < hostLen*2+4 {
		return PingVariant{Kind: PingV1_4}, nil
	}
	hostname := utf16BEToString(rest[:hostLen*2])
	rest = rest[hostLen*2:]
	port := int32(binary.BigEndian.Uint32(rest[:4]))

	return PingVariant{Kind: PingV1_6, Hostname: hostname, Port: port}, nil
}

// Handshake is a parsed legacy (0x02) login request.
type Handshake struct {
	ProtocolVersion int
	Username        string
	Hostname        string
	Port            int32
}

// ReadHandshakeData consumes the raw bytes of a legacy login handshake: the
// leading 0x02 (unconsumed from the caller's peek) plus either the pre-1.3
// "username;hostname:port" string or the 1.3+ structured fields.
func ReadHandshakeData(c *conn.Connection) ([]byte, error) {
	data := make([]byte, 0, 128)

	var header [2]byte
	if err := c.ReadExact(header[:]); err != nil {
		return nil, err
	}
	data = append(data, header[:]...)

	if header[1] == 0x00 {
		var low [1]byte
		if err := c.ReadExact(low[:]); err != nil {
			return nil, err
		}
		data = append(data, low[0])
		strLen := int(binary.BigEndian.Uint16([]byte{0x00, low[0]}))
		str := make([]byte, strLen*2)
		if err := c.ReadExact(str); err != nil {
			return nil, err
		}
		return append(data, str...), nil
	}

	userBytes, err := readLegacyStringBytes(c)
	if err != nil {
		return nil, err
	}
	data = append(data, userBytes...)

	hostBytes, err := readLegacyStringBytes(c)
	if err != nil {
		return nil, err
	}
	data = append(data, hostBytes...)

	var port [4]byte
	if err := c.ReadExact(port[:]); err != nil {
		return nil, err
	}
	return append(data, port[:]...), nil
}

func readLegacyStringBytes(c *conn.Connection) ([]byte, error) {
	var lenBytes [2]byte
	if err := c.ReadExact(lenBytes[:]); err != nil {
		return nil, err
	}
	charCount := int(binary.BigEndian.Uint16(lenBytes[:]))
	str := make([]byte, charCount*2)
	if err := c.ReadExact(str); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+len(str))
	out = append(out, lenBytes[:]...)
	return append(out, str...), nil
}

// ParseHandshake decodes a ReadHandshakeData result per spec: the second
// byte being 0x00 means pre-1.3's single "username;hostname:port" string,
// anything else means the 1.3+ three-field layout.
func ParseHandshake(data []byte) (Handshake, error) {
	if len(data) < 2 || data[0] != 0x02 {
		return Handshake{}, errors.New("legacy: not a legacy handshake")
	}

	if data[1] == 0x00 {
		if len(data) < 3 {
			return Handshake{}, errors.New("legacy: truncated pre-1.3 handshake")
		}
		strLen := int(binary.BigEndian.Uint16([]byte{0x00, data[2]}))
		if len(data) < 3+strLen*2 {
			return Handshake{}, errors.New("legacy: truncated pre-1.3 connection string")
		}
		combined := utf16BEToString(data[3 : 3+strLen*2])
		user, hostport, ok := splitLast(combined, ';')
		if !ok {
			return Handshake{}, errors.New("legacy: malformed pre-1.3 connection string")
		}
		host, portStr, ok := splitLast(hostport, ':')
		if !ok {
			return Handshake{}, errors.New("legacy: malformed pre-1.3 host:port")
		}
		var port int32
		for _, r := range portStr {
			if r < '0' || r > '9' {
				return Handshake{}, errors.New("legacy: non-numeric pre-1.3 port")
			}
			port = port*10 + int32(r-'0')
		}
		return Handshake{ProtocolVersion: 0, Username: user, Hostname: host, Port: port}, nil
	}

	rest := data[1:]
	proto := int(rest[0])
	rest = rest[1:]

	user, rest, err := takeLegacyString(rest)
	if err != nil {
		return Handshake{}, err
	}
	host, rest, err := takeLegacyString(rest)
	if err != nil {
		return Handshake{}, err
	}
	if len(rest) < 4 {
		return Handshake{}, errors.New("legacy: truncated 1.3+ port field")
	}
	port := int32(binary.BigEndian.Uint32(rest[:4]))

	return Handshake{ProtocolVersion: proto, Username: user, Hostname: host, Port: port}, nil
}

func takeLegacyString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errors.New("legacy: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n*2 {
		return "", nil, errors.New("legacy: truncated string data")
	}
	return utf16BEToString(b[:n*2]), b[n*2:], nil
}

func splitLast(s string, sep rune) (string, string, bool) {
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == sep {
			return string(runes[:i]), string(runes[i+1:]), true
		}
	}
	return "", "", false
}

func utf16BEToString(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(units))
}

func stringToUTF16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.BigEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

// BuildKickBeta builds the Beta-era kick/ping response: 0xFF followed by a
// UTF-16BE length-prefixed string, here encoding "motd§playerCount§maxPlayers".
func BuildKickBeta(motd string, online, max int) []byte {
	msg := fmt.Sprintf("%s§%d§%d", motd, online, max)
	return buildKickFrame(msg)
}

// BuildKickV1_4 builds the 1.4+ kick response: the same 0xFF frame, but the
// payload is "§1 protocol motd online max" per the
// richer legacy ping reply format introduced in 1.4.
func BuildKickV1_4(protocol int32, motd, extraMotd string, online, max int) []byte {
	full := motd
	if extraMotd != "" {
		full = motd + " " + extraMotd
	}
	msg := fmt.Sprintf("§1\x00%d\x00%s\x00%d\x00%d", protocol, full, online, max)
	return buildKickFrame(msg)
}

func buildKickFrame(msg string) []byte {
	payload := stringToUTF16BE(msg)
	out := make([]byte, 0, 3+len(payload))
	out = append(out, 0xFF)
	lenBytes := [2]byte{}
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len([]rune(msg))))
	out = append(out, lenBytes[:]...)
	return append(out, payload...)
}
