package ban

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FileStore wraps a MemoryStore with best-effort JSON persistence: every
// mutation marks the store dirty, and a background ticker flushes to disk
// via a write-to-temp-then-rename so a crash mid-write never corrupts the
// existing file.
type FileStore struct {
	*MemoryStore

	path     string
	dirty    atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

const flushInterval = 30 * time.Second

// NewFileStore loads path if it exists (an empty store otherwise) and
// starts the background flush loop. Call Close to stop it and flush once
// more.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		stopCh:      make(chan struct{}),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	go fs.flushLoop()
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		fs.MemoryStore.insertLocked(e)
	}
	return nil
}

func (fs *FileStore) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if fs.dirty.CompareAndSwap(true, false) {
				if err := fs.flush(); err != nil {
					zap.L().Warn("ban: failed to flush store", zap.Error(err))
					fs.dirty.Store(true)
				}
			}
		case <-fs.stopCh:
			return
		}
	}
}

func (fs *FileStore) flush() error {
	entries := fs.MemoryStore.List(0, 0)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".bans-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, fs.path)
}

// Close stops the flush loop and performs one final synchronous flush.
func (fs *FileStore) Close() error {
	fs.stopOnce.Do(func() { close(fs.stopCh) })
	return fs.flush()
}

func (fs *FileStore) Add(e Entry) error {
	if err := fs.MemoryStore.Add(e); err != nil {
		return err
	}
	fs.dirty.Store(true)
	return nil
}

func (fs *FileStore) RemoveByID(id, removedBy string) (Entry, error) {
	e, err := fs.MemoryStore.RemoveByID(id, removedBy)
	if err == nil {
		fs.dirty.Store(true)
	}
	return e, err
}

func (fs *FileStore) RemoveByIP(ip, removedBy string) ([]Entry, error) {
	es, err := fs.MemoryStore.RemoveByIP(ip, removedBy)
	if err == nil {
		fs.dirty.Store(true)
	}
	return es, err
}

func (fs *FileStore) RemoveByUUID(playerUUID, removedBy string) ([]Entry, error) {
	es, err := fs.MemoryStore.RemoveByUUID(playerUUID, removedBy)
	if err == nil {
		fs.dirty.Store(true)
	}
	return es, err
}

func (fs *FileStore) RemoveByUsername(username, removedBy string) ([]Entry, error) {
	es, err := fs.MemoryStore.RemoveByUsername(username, removedBy)
	if err == nil {
		fs.dirty.Store(true)
	}
	return es, err
}

func (fs *FileStore) ClearExpired() int {
	n := fs.MemoryStore.ClearExpired()
	if n > 0 {
		fs.dirty.Store(true)
	}
	return n
}

var _ Store = (*FileStore)(nil)
var _ Store = (*MemoryStore)(nil)
