// Package mode implements the four backend proxy modes a BackendConfig can
// select: status (answer server-list pings without ever dialing the
// backend unless the cache is cold), passthrough (relay raw bytes unmodified
// once past the handshake), offline (relay raw bytes once past the
// handshake, no auth),
// and client-only (terminate Mojang online-mode auth at the proxy itself so
// the backend can run in offline mode).
package mode

import "fmt"

// Mode names one of the four supported proxy modes.
type Mode string

const (
	Status      Mode = "status"
	Passthrough Mode = "passthrough"
	Offline     Mode = "offline"
	ClientOnly  Mode = "client_only"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case Status, Passthrough, Offline, ClientOnly:
		return true
	default:
		return false
	}
}

// ParseMode validates and normalizes a configured mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("mode: unknown proxy mode %q", s)
	}
	return m, nil
}
