package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialYAML = `
bind: "0.0.0.0:25565"
backends:
  - config_id: survival
    domains: ["survival.example.com"]
    addresses: ["127.0.0.1:25566"]
    proxy_mode: passthrough
`

const updatedYAML = `
bind: "0.0.0.0:25565"
backends:
  - config_id: survival
    domains: ["survival.example.com", "play.example.com"]
    addresses: ["127.0.0.1:25566"]
    proxy_mode: passthrough
  - config_id: creative
    domains: ["creative.example.com"]
    addresses: ["127.0.0.1:25567"]
    proxy_mode: offline
`

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func drainEvents(t *testing.T, fp *FileProvider, n int, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case e := <-fp.Events():
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(got))
		}
	}
	return got
}

func TestFileProvider_InitialLoadEmitsAddPerBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ward.yaml")
	writeFile(t, path, initialYAML)

	fp, err := NewFileProvider(path)
	require.NoError(t, err)
	defer fp.Close()

	events := drainEvents(t, fp, 1, 2*time.Second)
	assert.Equal(t, EventAdd, events[0].Kind)
	assert.Equal(t, "survival", events[0].ConfigID)
}

func TestFileProvider_ReloadEmitsUpdateAndAdd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ward.yaml")
	writeFile(t, path, initialYAML)

	fp, err := NewFileProvider(path)
	require.NoError(t, err)
	defer fp.Close()
	drainEvents(t, fp, 1, 2*time.Second)

	writeFile(t, path, updatedYAML)

	events := drainEvents(t, fp, 2, 2*time.Second)
	kinds := map[string]EventKind{}
	for _, e := range events {
		kinds[e.ConfigID] = e.Kind
	}
	assert.Equal(t, EventUpdate, kinds["survival"])
	assert.Equal(t, EventAdd, kinds["creative"])
}

func TestFileProvider_RemovingBackendEmitsRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ward.yaml")
	writeFile(t, path, updatedYAML)

	fp, err := NewFileProvider(path)
	require.NoError(t, err)
	defer fp.Close()
	drainEvents(t, fp, 2, 2*time.Second)

	writeFile(t, path, initialYAML)

	// survival lost a domain, so an Update for it precedes the Remove.
	events := drainEvents(t, fp, 2, 2*time.Second)
	kinds := map[string]EventKind{}
	for _, e := range events {
		kinds[e.ConfigID] = e.Kind
	}
	assert.Equal(t, EventUpdate, kinds["survival"])
	assert.Equal(t, EventRemove, kinds["creative"])
}
