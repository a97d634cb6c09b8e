package gateway

import (
	"bytes"
	"fmt"
	"strings"

	"go.wardproxy.dev/ward/internal/wire"
)

// nextState values carried by the modern handshake packet.
const (
	nextStateStatus = 1
	nextStateLogin  = 2
)

const packetHandshake = 0x00

// Handshake is the parsed body of the client's first modern packet.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// IsLogin reports whether this handshake requests the login state rather
// than a status ping.
func (h Handshake) IsLogin() bool {
	return h.NextState == nextStateLogin
}

// ParseHandshake decodes a modern handshake packet's data field:
// {protocol_version: varint, server_address: string, server_port: u16 BE,
// next_state: varint}.
func ParseHandshake(data []byte) (Handshake, error) {
	r := bytes.NewReader(data)

	protocol, err := wire.ReadVarInt(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("gateway: read handshake protocol version: %w", err)
	}
	addr, err := wire.ReadString(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("gateway: read handshake server address: %w", err)
	}
	port, err := wire.ReadUint16(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("gateway: read handshake server port: %w", err)
	}
	nextState, err := wire.ReadVarInt(r)
	if err != nil {
		return Handshake{}, fmt.Errorf("gateway: read handshake next state: %w", err)
	}
	if nextState != nextStateStatus && nextState != nextStateLogin {
		return Handshake{}, fmt.Errorf("gateway: unknown handshake next state %d", nextState)
	}

	return Handshake{
		ProtocolVersion: protocol,
		ServerAddress:   stripSRVSuffix(addr),
		ServerPort:      port,
		NextState:       nextState,
	}, nil
}

// stripSRVSuffix drops a Forge/FML marker or trailing dot some clients
// append to the handshake's server-address field, so domain matching
// against configured backends isn't thrown off by it.
func stripSRVSuffix(addr string) string {
	if i := strings.IndexByte(addr, '\x00'); i >= 0 {
		addr = addr[:i]
	}
	return strings.TrimSuffix(addr, ".")
}

// LoginStart is the parsed body of the client's login-start packet; fields
// beyond the username (signature data, profile UUID) are version-specific
// and irrelevant to backend routing, so they're left unparsed.
type LoginStart struct {
	Username string
}

// ParseLoginStart decodes only the username prefix of a login-start packet.
func ParseLoginStart(data []byte) (LoginStart, error) {
	r := bytes.NewReader(data)
	username, err := wire.ReadString(r)
	if err != nil {
		return LoginStart{}, fmt.Errorf("gateway: read login start username: %w", err)
	}
	return LoginStart{Username: username}, nil
}
