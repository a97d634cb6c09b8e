package config

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// fileDocument is the on-disk shape a FileProvider reads: a flat list of
// backends plus the top-level proxy settings.
type fileDocument struct {
	Config `yaml:",inline"`
}

// FileProvider watches a single YAML file and, whenever it changes, emits an
// Add event for each new backend, an Update event for each backend whose
// configuration changed, and then a Remove event for each config_id that
// disappeared since the last read. Unchanged backends produce no event.
type FileProvider struct {
	path string

	mu       sync.Mutex
	lastByID map[string]BackendConfig

	events  chan Event
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileProvider loads path once, starts watching it for changes, and
// returns the provider. The caller must range over Events() to receive the
// initial load as a batch of EventAdd events.
func NewFileProvider(path string) (*FileProvider, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}

	fp := &FileProvider{
		path:     path,
		lastByID: make(map[string]BackendConfig),
		events:   make(chan Event, 64),
		watcher:  watcher,
		done:     make(chan struct{}),
	}

	if err := fp.reload(); err != nil {
		watcher.Close()
		return nil, err
	}

	go fp.watchLoop()
	return fp, nil
}

// Events returns the channel of reconciliation events.
func (fp *FileProvider) Events() <-chan Event {
	return fp.events
}

// Close stops watching the file and closes the event channel.
func (fp *FileProvider) Close() error {
	close(fp.done)
	err := fp.watcher.Close()
	close(fp.events)
	return err
}

func (fp *FileProvider) watchLoop() {
	for {
		select {
		case <-fp.done:
			return
		case ev, ok := <-fp.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := fp.reload(); err != nil {
				zap.L().Warn("config: reload failed", zap.String("path", fp.path), zap.Error(err))
			}
		case err, ok := <-fp.watcher.Errors:
			if !ok {
				return
			}
			zap.L().Warn("config: file watcher error", zap.Error(err))
		}
	}
}

func (fp *FileProvider) reload() error {
	data, err := os.ReadFile(fp.path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", fp.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %q: %w", fp.path, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	seen := make(map[string]struct{}, len(doc.Backends))
	for _, b := range doc.Backends {
		seen[b.ConfigID] = struct{}{}
		if prev, ok := fp.lastByID[b.ConfigID]; !ok {
			fp.events <- Event{Kind: EventAdd, ConfigID: b.ConfigID, Backend: b}
		} else if !reflect.DeepEqual(prev, b) {
			fp.events <- Event{Kind: EventUpdate, ConfigID: b.ConfigID, Backend: b}
		}
		fp.lastByID[b.ConfigID] = b
	}

	for id := range fp.lastByID {
		if _, ok := seen[id]; !ok {
			fp.events <- Event{Kind: EventRemove, ConfigID: id}
			delete(fp.lastByID, id)
		}
	}

	return nil
}
