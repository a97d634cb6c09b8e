package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wardproxy.dev/ward/internal/wire"
)

func buildHandshake(protocol int32, addr string, port uint16, nextState int32) []byte {
	var buf []byte
	buf = wire.PutVarInt(buf, protocol)
	buf = wire.PutString(buf, addr)
	buf = wire.PutUint16(buf, port)
	buf = wire.PutVarInt(buf, nextState)
	return buf
}

func TestParseHandshake_StatusRequest(t *testing.T) {
	data := buildHandshake(765, "play.example.com", 25565, nextStateStatus)
	hs, err := ParseHandshake(data)
	require.NoError(t, err)
	assert.Equal(t, int32(765), hs.ProtocolVersion)
	assert.Equal(t, "play.example.com", hs.ServerAddress)
	assert.Equal(t, uint16(25565), hs.ServerPort)
	assert.False(t, hs.IsLogin())
}

func TestParseHandshake_LoginRequest(t *testing.T) {
	data := buildHandshake(765, "play.example.com", 25565, nextStateLogin)
	hs, err := ParseHandshake(data)
	require.NoError(t, err)
	assert.True(t, hs.IsLogin())
}

func TestParseHandshake_StripsForgeMarkerAndTrailingDot(t *testing.T) {
	data := buildHandshake(765, "play.example.com.\x00FML3\x00", 25565, nextStateStatus)
	hs, err := ParseHandshake(data)
	require.NoError(t, err)
	assert.Equal(t, "play.example.com", hs.ServerAddress)
}

func TestParseHandshake_RejectsUnknownNextState(t *testing.T) {
	data := buildHandshake(765, "play.example.com", 25565, 9)
	_, err := ParseHandshake(data)
	assert.Error(t, err)
}

func TestParseLoginStart_ReadsUsername(t *testing.T) {
	var buf []byte
	buf = wire.PutString(buf, "Notch")
	ls, err := ParseLoginStart(buf)
	require.NoError(t, err)
	assert.Equal(t, "Notch", ls.Username)
}

func TestStripSRVSuffix(t *testing.T) {
	assert.Equal(t, "play.example.com", stripSRVSuffix("play.example.com."))
	assert.Equal(t, "play.example.com", stripSRVSuffix("play.example.com\x00FML3\x00"))
	assert.Equal(t, "play.example.com", stripSRVSuffix("play.example.com"))
}
