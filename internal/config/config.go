// Package config defines ward's configuration types and the event-stream
// abstraction the gateway reconciles against. The gateway consumes only the
// Event channel defined here; FileProvider, also in this package, produces
// that stream from a watched YAML file.
package config

import (
	"time"

	"go.wardproxy.dev/ward/internal/mode"
)

// ProxyProtoVersion selects whether and how a PROXY-protocol header is sent
// to the backend.
type ProxyProtoVersion int

const (
	ProxyProtoNone ProxyProtoVersion = iota
	ProxyProtoV1
	ProxyProtoV2
)

// ServerManagerKind names which provider backs a BackendConfig's
// ServerManagerConfig.
type ServerManagerKind string

const (
	ServerManagerNone        ServerManagerKind = ""
	ServerManagerLocal       ServerManagerKind = "local"
	ServerManagerPterodactyl ServerManagerKind = "pterodactyl"
	ServerManagerCrafty      ServerManagerKind = "crafty"
)

// ServerManagerConfig configures the optional start/stop/restart provider a
// backend can be placed under.
type ServerManagerConfig struct {
	Kind ServerManagerKind `yaml:"kind" mapstructure:"kind"`

	// AutoShutdownAfter, if nonzero, is how long a server may sit with no
	// connected players before the supervisor stops it.
	AutoShutdownAfter time.Duration `yaml:"auto_shutdown_after" mapstructure:"auto_shutdown_after"`

	// Local provider fields.
	StartCommand string `yaml:"start_command" mapstructure:"start_command"`
	StopCommand  string `yaml:"stop_command" mapstructure:"stop_command"`
	WorkDir      string `yaml:"work_dir" mapstructure:"work_dir"`

	// Pterodactyl/Crafty provider fields.
	PanelURL string `yaml:"panel_url" mapstructure:"panel_url"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	ServerID string `yaml:"server_id" mapstructure:"server_id"`
}

// MOTDTemplates names the status-response templates a backend uses for
// each reachability state; empty fields fall back to the package default.
type MOTDTemplates struct {
	Unreachable string `yaml:"unreachable" mapstructure:"unreachable"`
	Unknown     string `yaml:"unknown" mapstructure:"unknown"`
	Starting    string `yaml:"starting" mapstructure:"starting"`
	Stopping    string `yaml:"stopping" mapstructure:"stopping"`
	Crashed     string `yaml:"crashed" mapstructure:"crashed"`
	FaviconPath string `yaml:"favicon_path" mapstructure:"favicon_path"`
}

// BackendConfig is one routable backend: the domains/addresses it answers
// for, which proxy mode handles its connections, and its optional
// server-manager binding.
type BackendConfig struct {
	ConfigID             string               `yaml:"config_id" mapstructure:"config_id"`
	Domains              []string             `yaml:"domains" mapstructure:"domains"`
	Addresses            []string             `yaml:"addresses" mapstructure:"addresses"`
	ProxyMode            mode.Mode            `yaml:"proxy_mode" mapstructure:"proxy_mode"`
	SendProxyProtocol    bool                 `yaml:"send_proxy_protocol" mapstructure:"send_proxy_protocol"`
	ProxyProtocolVersion ProxyProtoVersion    `yaml:"proxy_protocol_version" mapstructure:"proxy_protocol_version"`
	MOTD                 MOTDTemplates        `yaml:"motd" mapstructure:"motd"`
	ServerManager        *ServerManagerConfig `yaml:"server_manager" mapstructure:"server_manager"`
}

// Config is the top-level, fully-loaded proxy configuration.
type Config struct {
	Debug        bool            `yaml:"debug" mapstructure:"debug"`
	Bind         string          `yaml:"bind" mapstructure:"bind"`
	BanStorePath string          `yaml:"ban_store_path" mapstructure:"ban_store_path"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Backends     []BackendConfig `yaml:"backends" mapstructure:"backends"`
}

// RateLimitConfig mirrors internal/filter.RateLimitConfig so the ambient
// config layer doesn't have to import the filter package just for this
// small struct shape at the YAML boundary.
type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	MaxTrackedIPs int     `yaml:"max_tracked_ips" mapstructure:"max_tracked_ips"`
}

// EventKind tags what a ConfigEvent describes.
type EventKind int

const (
	EventAdd EventKind = iota
	EventUpdate
	EventRemove
)

// Event is one reconciliation instruction the gateway consumes: a backend
// was added/updated (Backend populated) or removed (only ConfigID set).
type Event struct {
	Kind     EventKind
	ConfigID string
	Backend  BackendConfig
}

// Provider streams configuration events until Close is called or the
// provider encounters a fatal error.
type Provider interface {
	Events() <-chan Event
	Close() error
}
