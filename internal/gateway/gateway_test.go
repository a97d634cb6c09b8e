package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.wardproxy.dev/ward/internal/ban"
	"go.wardproxy.dev/ward/internal/config"
	"go.wardproxy.dev/ward/internal/filter"
	"go.wardproxy.dev/ward/internal/mode"
	"go.wardproxy.dev/ward/internal/motd"
	"go.wardproxy.dev/ward/internal/supervisor"
	"go.wardproxy.dev/ward/internal/telemetry"
)

func newTestGateway() *Gateway {
	return New(ban.NewMemoryStore(), filter.NewChain(), supervisor.New(telemetry.NoOp{}), telemetry.NoOp{})
}

func TestUpdateConfiguration_IndexesByDomainAndConfigID(t *testing.T) {
	g := newTestGateway()
	g.UpdateConfiguration(config.BackendConfig{
		ConfigID:  "survival",
		Domains:   []string{"Play.Example.com"},
		Addresses: []string{"10.0.0.1:25565"},
		ProxyMode: mode.Passthrough,
	})

	b, ok := g.findByDomain("play.example.com")
	require.True(t, ok)
	assert.Equal(t, "survival", b.ConfigID)

	b2, ok := g.findByConfigID("survival")
	require.True(t, ok)
	assert.Equal(t, b, b2)
}

func TestRemoveConfiguration_DropsDomainAndConfigIDEntries(t *testing.T) {
	g := newTestGateway()
	g.UpdateConfiguration(config.BackendConfig{
		ConfigID:  "survival",
		Domains:   []string{"play.example.com"},
		Addresses: []string{"10.0.0.1:25565"},
	})
	g.RemoveConfiguration("survival")

	_, ok := g.findByDomain("play.example.com")
	assert.False(t, ok)
	_, ok = g.findByConfigID("survival")
	assert.False(t, ok)
}

func TestFirstBackend_ReturnsAnEntryWhenAnyConfigured(t *testing.T) {
	g := newTestGateway()
	_, ok := g.firstBackend()
	assert.False(t, ok)

	g.UpdateConfiguration(config.BackendConfig{ConfigID: "lobby", Domains: []string{"lobby.example.com"}})
	b, ok := g.firstBackend()
	require.True(t, ok)
	assert.Equal(t, "lobby", b.ConfigID)
}

func TestRequestServer_ErrorsWhenBackendNotConfigured(t *testing.T) {
	g := newTestGateway()
	err := g.RequestServer(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRequestServer_ErrorsWhenNoServerManagerBound(t *testing.T) {
	g := newTestGateway()
	g.UpdateConfiguration(config.BackendConfig{ConfigID: "survival"})
	err := g.RequestServer(context.Background(), "survival")
	assert.Error(t, err)
}

func TestStateForBackend_UnknownWhenNilOtherwiseUnreachable(t *testing.T) {
	assert.Equal(t, motd.StateUnknownServer, StateForBackend(nil))
	assert.Equal(t, motd.StateUnreachable, StateForBackend(&config.BackendConfig{ConfigID: "survival"}))
}

func TestProxyProtoVersionByte(t *testing.T) {
	assert.Equal(t, byte(0), proxyProtoVersionByte(config.ProxyProtoNone))
	assert.Equal(t, byte(1), proxyProtoVersionByte(config.ProxyProtoV1))
	assert.Equal(t, byte(2), proxyProtoVersionByte(config.ProxyProtoV2))
}
