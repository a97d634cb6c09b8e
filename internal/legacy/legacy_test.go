package legacy

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePingVariant_Beta(t *testing.T) {
	v, err := ParsePingVariant([]byte{0xFE})
	require.NoError(t, err)
	assert.Equal(t, PingBeta, v.Kind)
	assert.False(t, v.UsesV1_4ResponseFormat())
}

func TestParsePingVariant_V1_4(t *testing.T) {
	v, err := ParsePingVariant([]byte{0xFE, 0x01})
	require.NoError(t, err)
	assert.Equal(t, PingV1_4, v.Kind)
	assert.True(t, v.UsesV1_4ResponseFormat())
}

func buildV16Ping(hostname string, port int32) []byte {
	hostBytes := stringToUTF16BE(hostname)
	buf := []byte{0xFE, 0x01, 0xFA}
	channel := stringToUTF16BE("MC|PingHost")
	chanLen := make([]byte, 2)
	binary.BigEndian.PutUint16(chanLen, uint16(len([]rune("MC|PingHost"))))
	buf = append(buf, chanLen...)
	buf = append(buf, channel...)

	var body []byte
	body = append(body, 74) // protocol version byte
	hostLen := make([]byte, 2)
	binary.BigEndian.PutUint16(hostLen, uint16(len([]rune(hostname))))
	body = append(body, hostLen...)
	body = append(body, hostBytes...)
	portBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(portBytes, uint32(port))
	body = append(body, portBytes...)

	dataLen := make([]byte, 2)
	binary.BigEndian.PutUint16(dataLen, uint16(len(body)))
	buf = append(buf, dataLen...)
	buf = append(buf, body...)
	return buf
}

func TestParsePingVariant_V1_6(t *testing.T) {
	data := buildV16Ping("play.example.com", 25565)
	v, err := ParsePingVariant(data)
	require.NoError(t, err)
	assert.Equal(t, PingV1_6, v.Kind)
	assert.Equal(t, "play.example.com", v.Hostname)
	assert.Equal(t, int32(25565), v.Port)
}

func TestParseHandshake_Pre13Format(t *testing.T) {
	combined := "Notch;play.example.com:25565"
	str := stringToUTF16BE(combined)
	data := []byte{0x02, 0x00, byte(len([]rune(combined)))}
	data = append(data, str...)

	hs, err := ParseHandshake(data)
	require.NoError(t, err)
	assert.Equal(t, "Notch", hs.Username)
	assert.Equal(t, "play.example.com", hs.Hostname)
	assert.Equal(t, int32(25565), hs.Port)
}

func TestParseHandshake_1_3PlusFormat(t *testing.T) {
	var data []byte
	data = append(data, 0x02, 39)

	user := stringToUTF16BE("jeb_")
	userLen := make([]byte, 2)
	binary.BigEndian.PutUint16(userLen, uint16(len([]rune("jeb_"))))
	data = append(data, userLen...)
	data = append(data, user...)

	host := stringToUTF16BE("creative.example.com")
	hostLen := make([]byte, 2)
	binary.BigEndian.PutUint16(hostLen, uint16(len([]rune("creative.example.com"))))
	data = append(data, hostLen...)
	data = append(data, host...)

	port := make([]byte, 4)
	binary.BigEndian.PutUint32(port, 25566)
	data = append(data, port...)

	hs, err := ParseHandshake(data)
	require.NoError(t, err)
	assert.Equal(t, 39, hs.ProtocolVersion)
	assert.Equal(t, "jeb_", hs.Username)
	assert.Equal(t, "creative.example.com", hs.Hostname)
	assert.Equal(t, int32(25566), hs.Port)
}

func TestBuildKickBeta_ProducesWellFormedFrame(t *testing.T) {
	frame := BuildKickBeta("A Minecraft Server", 3, 20)
	require.NotEmpty(t, frame)
	assert.Equal(t, byte(0xFF), frame[0])
	strLen := int(binary.BigEndian.Uint16(frame[1:3]))
	assert.Equal(t, len(frame)-3, strLen*2)
}

func TestBuildKickV1_4_ProducesWellFormedFrame(t *testing.T) {
	frame := BuildKickV1_4(47, "A Minecraft Server", "", 3, 20)
	require.NotEmpty(t, frame)
	assert.Equal(t, byte(0xFF), frame[0])
}
