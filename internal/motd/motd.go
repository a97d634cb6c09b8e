// Package motd synthesizes the JSON status-response packet a backend shows
// for each reachability state (unreachable, unknown, starting, stopping,
// crashed), including favicon embedding, grounded on the teacher's packet
// construction style and Infrarust's per-state MOTD generator functions.
package motd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"go.wardproxy.dev/ward/internal/config"
	"go.wardproxy.dev/ward/internal/wire"
)

// packetStatusResponse is the clientbound status-response packet ID,
// shared across every Minecraft protocol version since its introduction.
const packetStatusResponse = 0x00

// version and players sub-objects of the vanilla server-list-ping schema.
type versionJSON struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type playerSampleJSON struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type playersJSON struct {
	Max    int                `json:"max"`
	Online int                `json:"online"`
	Sample []playerSampleJSON `json:"sample,omitempty"`
}

type descriptionJSON struct {
	Text string `json:"text"`
}

// responseJSON is the full server-list-ping response body.
type responseJSON struct {
	Version     versionJSON     `json:"version"`
	Players     playersJSON     `json:"players"`
	Description descriptionJSON `json:"description"`
	Favicon     string          `json:"favicon,omitempty"`
}

// Template describes one synthesized status response: the MOTD text, a
// version name to display, and an optional favicon (raw PNG bytes, encoded
// to the data-URI form the client expects).
type Template struct {
	Text        string
	VersionName string
	Protocol    int
	MaxPlayers  int
	Online      int
	FaviconPNG  []byte
}

// Generate builds the wire packet for t. An empty FaviconPNG omits the
// favicon field entirely, matching vanilla servers that don't configure one.
func Generate(t Template) (wire.Packet, error) {
	resp := responseJSON{
		Version:     versionJSON{Name: t.VersionName, Protocol: t.Protocol},
		Players:     playersJSON{Max: t.MaxPlayers, Online: t.Online},
		Description: descriptionJSON{Text: t.Text},
	}
	if len(t.FaviconPNG) > 0 {
		resp.Favicon = "data:image/png;base64," + base64.StdEncoding.EncodeToString(t.FaviconPNG)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return wire.Packet{}, fmt.Errorf("motd: marshal status json: %w", err)
	}

	var data []byte
	data = wire.PutString(data, string(body))
	return wire.Packet{ID: packetStatusResponse, Data: data}, nil
}

// loadFavicon reads a backend's configured favicon PNG and resizes it to
// the vanilla favicon dimensions, or returns nil (and no error) if path is
// empty.
func loadFavicon(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("motd: read favicon %q: %w", path, err)
	}
	resized, err := ResizeFavicon(b)
	if err != nil {
		return nil, err
	}
	return resized, nil
}

// State names the reachability state a backend is in, selecting which of
// config.MOTDTemplates' fields (or a built-in default) supplies the text.
type State int

const (
	StateUnreachable State = iota
	StateUnknownServer
	StateStarting
	StateStopping
	StateCrashed
)

// defaultText returns the built-in fallback text for state when the
// backend's MOTDTemplates leaves the corresponding field blank, matching
// Infrarust's per-state default strings.
func defaultText(state State) string {
	switch state {
	case StateUnreachable:
		return "§cServer is unreachable.§r\n§8§oContact an admin if the issue persists."
	case StateUnknownServer:
		return "§cUnknown server.§r\n§8§oCheck the address and try again."
	case StateStarting:
		return "§6Server is starting...§r\n§8§oPlease wait a moment"
	case StateStopping:
		return "§6Server is shutting down...\n§8§oConnect to cancel it!"
	case StateCrashed:
		return "§4Server is in a crashing state...§r\n§8§oContact an admin if the issue persists."
	default:
		return "§cUnknown server status..."
	}
}

// templateText picks the configured override for state, falling back to
// defaultText when the field is blank.
func templateText(m config.MOTDTemplates, state State) string {
	var override string
	switch state {
	case StateUnreachable:
		override = m.Unreachable
	case StateUnknownServer:
		override = m.Unknown
	case StateStarting:
		override = m.Starting
	case StateStopping:
		override = m.Stopping
	case StateCrashed:
		override = m.Crashed
	}
	if override != "" {
		return override
	}
	return defaultText(state)
}

// ForState builds the status packet shown for a backend currently in
// state, using m's configured text override (or the built-in default) and
// favicon, with zero online/max players and protocol 0 -- matching
// Infrarust's placeholder-status convention for non-running backends.
func ForState(state State, m config.MOTDTemplates) (wire.Packet, error) {
	favicon, err := loadFavicon(m.FaviconPath)
	if err != nil {
		// A missing/unreadable favicon shouldn't block the status response.
		favicon = nil
	}
	return Generate(Template{
		Text:        templateText(m, state),
		VersionName: "ward",
		Protocol:    0,
		MaxPlayers:  0,
		Online:      0,
		FaviconPNG:  favicon,
	})
}
