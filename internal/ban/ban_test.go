package ban

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpAddr(host string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(host), Port: 25565}
}

func TestMemoryStore_AddAndCheckByIP(t *testing.T) {
	s := NewMemoryStore()
	e := NewEntry("203.0.113.5", "", "", "griefing", "admin", 0)
	require.NoError(t, s.Add(e))

	banned, reason := s.IsBannedAddr(tcpAddr("203.0.113.5"))
	assert.True(t, banned)
	assert.Equal(t, "griefing", reason)

	banned, _ = s.IsBannedAddr(tcpAddr("203.0.113.6"))
	assert.False(t, banned)
}

func TestMemoryStore_UsernameLookupIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Add(NewEntry("", "", "Notch", "spam", "admin", 0)))

	banned, _ := s.IsBannedUsername("NOTCH")
	assert.True(t, banned)
	banned, _ = s.IsBannedUsername("notch")
	assert.True(t, banned)
}

func TestMemoryStore_ExpiredBanDoesNotApply(t *testing.T) {
	s := NewMemoryStore()
	e := NewEntry("203.0.113.7", "", "", "temp", "admin", time.Millisecond)
	require.NoError(t, s.Add(e))

	time.Sleep(5 * time.Millisecond)
	banned, _ := s.IsBannedAddr(tcpAddr("203.0.113.7"))
	assert.False(t, banned)
}

func TestMemoryStore_ClearExpiredRemovesOnlyExpired(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Add(NewEntry("203.0.113.8", "", "", "temp", "admin", time.Millisecond)))
	require.NoError(t, s.Add(NewEntry("203.0.113.9", "", "", "perm", "admin", 0)))

	time.Sleep(5 * time.Millisecond)
	n := s.ClearExpired()
	assert.Equal(t, 1, n)
	assert.Len(t, s.List(0, 0), 1)
}

func TestMemoryStore_RemoveByUUID(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Add(NewEntry("", "11111111-2222-3333-4444-555555555555", "", "cheating", "admin", 0)))

	removed, err := s.RemoveByUUID("11111111-2222-3333-4444-555555555555", "admin")
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	banned, _ := s.IsBannedUUID("11111111-2222-3333-4444-555555555555")
	assert.False(t, banned)
}

func TestMemoryStore_RemoveByID_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.RemoveByID("nonexistent", "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AuditLogRecordsOperations(t *testing.T) {
	s := NewMemoryStore()
	e := NewEntry("203.0.113.10", "", "", "test", "admin", 0)
	require.NoError(t, s.Add(e))
	_, err := s.RemoveByID(e.ID, "admin")
	require.NoError(t, err)

	audit := s.Audit(10)
	require.Len(t, audit, 2)
	// newest first
	assert.Equal(t, OpRemove, audit[0].Operation)
	assert.Equal(t, OpAdd, audit[1].Operation)
}

func TestMemoryStore_AuditLogIsBounded(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < maxAuditLogSize+50; i++ {
		require.NoError(t, s.Add(NewEntry("", "", "", "spam", "admin", 0)))
	}
	assert.LessOrEqual(t, s.audit.Len(), maxAuditLogSize)
}

func TestFileStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bans.json")

	fs, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Add(NewEntry("203.0.113.20", "", "", "persisted", "admin", 0)))
	require.NoError(t, fs.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	fs2, err := NewFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs2.Close() })

	banned, reason := fs2.IsBannedAddr(tcpAddr("203.0.113.20"))
	assert.True(t, banned)
	assert.Equal(t, "persisted", reason)
}

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	fs, err := NewFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	assert.Empty(t, fs.List(0, 0))
}
