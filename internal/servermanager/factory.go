package servermanager

import (
	"fmt"
)

// Kind names which provider backs a ServerManagerConfig. Mirrors the values
// of internal/config.ServerManagerKind; this package does not import
// internal/config.
type Kind string

const (
	KindLocal       Kind = "local"
	KindPterodactyl Kind = "pterodactyl"
	KindCrafty      Kind = "crafty"
)

// NewFunc constructs a provider-specific Manager from its configuration
// fields; providers register themselves via RegisterProvider to keep this
// package free of a direct import cycle with the provider subpackages
// (which callers import explicitly in cmd/ward's wiring).
type NewFunc func(opts Options) (Manager, error)

// Options carries every field any provider might need; unused fields are
// ignored by providers that don't need them.
type Options struct {
	StartCommand string
	StopCommand  string
	WorkDir      string

	PanelURL string
	APIKey   string
	ServerID string
}

var providers = map[Kind]NewFunc{}

// RegisterProvider installs a provider constructor under kind. Called from
// each provider subpackage's init(), or explicitly from cmd/ward if a
// caller prefers to opt into providers one at a time.
func RegisterProvider(kind Kind, fn NewFunc) {
	providers[kind] = fn
}

// New constructs a Manager for kind using the registered provider
// constructor.
func New(kind Kind, opts Options) (Manager, error) {
	fn, ok := providers[kind]
	if !ok {
		return nil, fmt.Errorf("servermanager: no provider registered for kind %q", kind)
	}
	return fn(opts)
}
