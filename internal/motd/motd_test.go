package motd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wardproxy.dev/ward/internal/config"
	"go.wardproxy.dev/ward/internal/legacy"
	"go.wardproxy.dev/ward/internal/wire"
)

func TestGenerate_ProducesDecodableStatusJSON(t *testing.T) {
	p, err := Generate(Template{
		Text:        "hello",
		VersionName: "ward",
		Protocol:    47,
		MaxPlayers:  20,
		Online:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(packetStatusResponse), p.ID)

	r := bytes.NewReader(p.Data)
	body, err := wire.ReadString(r)
	require.NoError(t, err)

	var resp responseJSON
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "hello", resp.Description.Text)
	assert.Equal(t, 20, resp.Players.Max)
	assert.Empty(t, resp.Favicon)
}

func TestGenerate_EmbedsFaviconAsDataURI(t *testing.T) {
	p, err := Generate(Template{Text: "x", FaviconPNG: []byte{1, 2, 3}})
	require.NoError(t, err)

	r := bytes.NewReader(p.Data)
	body, err := wire.ReadString(r)
	require.NoError(t, err)

	var resp responseJSON
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Contains(t, resp.Favicon, "data:image/png;base64,")
}

func TestForState_UsesConfiguredOverrideWhenPresent(t *testing.T) {
	m := config.MOTDTemplates{Starting: "custom starting text"}
	p, err := ForState(StateStarting, m)
	require.NoError(t, err)

	r := bytes.NewReader(p.Data)
	body, err := wire.ReadString(r)
	require.NoError(t, err)
	assert.Contains(t, body, "custom starting text")
}

func TestForState_FallsBackToDefaultWhenBlank(t *testing.T) {
	p, err := ForState(StateCrashed, config.MOTDTemplates{})
	require.NoError(t, err)

	r := bytes.NewReader(p.Data)
	body, err := wire.ReadString(r)
	require.NoError(t, err)

	var resp responseJSON
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, defaultText(StateCrashed), resp.Description.Text)
}

func TestResizeFavicon_ScalesToVanillaDimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := ResizeFavicon(buf.Bytes())
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, faviconSize, decoded.Bounds().Dx())
	assert.Equal(t, faviconSize, decoded.Bounds().Dy())
}

func TestForLegacyState_BetaUsesBareMotdFrame(t *testing.T) {
	out := ForLegacyState(StateUnreachable, config.MOTDTemplates{}, legacy.PingVariant{Kind: legacy.PingBeta})
	require.NotEmpty(t, out)
	assert.Equal(t, byte(0xFF), out[0])
}

func TestForLegacyState_V1_4UsesStructuredFrame(t *testing.T) {
	out := ForLegacyState(StateStopping, config.MOTDTemplates{}, legacy.PingVariant{Kind: legacy.PingV1_4})
	require.NotEmpty(t, out)
	assert.Equal(t, byte(0xFF), out[0])
}
