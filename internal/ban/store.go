package ban

import (
	"errors"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// ErrNotFound is returned when a ban removal by ID, IP, UUID or username
// finds no matching ban.
var ErrNotFound = errors.New("ban: not found")

// Store is the persistence-agnostic ban API the filter chain and gateway
// depend on.
type Store interface {
	Add(e Entry) error
	RemoveByID(id, removedBy string) (Entry, error)
	RemoveByIP(ip, removedBy string) ([]Entry, error)
	RemoveByUUID(playerUUID, removedBy string) ([]Entry, error)
	RemoveByUsername(username, removedBy string) ([]Entry, error)
	IsBannedAddr(addr net.Addr) (bool, string)
	IsBannedUUID(playerUUID string) (bool, string)
	IsBannedUsername(username string) (bool, string)
	List(offset, limit int) []Entry
	ClearExpired() int
	Audit(limit int) []AuditLogEntry
}

const maxAuditLogSize = 1000

// MemoryStore is an in-process Store indexed by IP, UUID, and lowercased
// username for O(1) ban checks on the hot connect path.
type MemoryStore struct {
	mu sync.RWMutex

	byID       map[string]Entry
	byIP       map[string]map[string]struct{}
	byUUID     map[string]map[string]struct{}
	byUsername map[string]map[string]struct{}

	audit *deque.Deque[AuditLogEntry]
}

// NewMemoryStore returns an empty ban store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]Entry),
		byIP:       make(map[string]map[string]struct{}),
		byUUID:     make(map[string]map[string]struct{}),
		byUsername: make(map[string]map[string]struct{}),
		audit:      deque.New[AuditLogEntry](),
	}
}

// Add inserts (or replaces, if e.ID already exists) a ban entry.
func (s *MemoryStore) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(e)
	s.recordLocked(OpAdd, e, e.BannedBy)
	return nil
}

func (s *MemoryStore) insertLocked(e Entry) {
	s.byID[e.ID] = e
	if e.IP != "" {
		index(s.byIP, e.IP, e.ID)
	}
	if e.UUID != "" {
		index(s.byUUID, e.UUID, e.ID)
	}
	if e.Username != "" {
		index(s.byUsername, strings.ToLower(e.Username), e.ID)
	}
}

func index(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func unindex(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func (s *MemoryStore) removeLocked(e Entry) {
	delete(s.byID, e.ID)
	if e.IP != "" {
		unindex(s.byIP, e.IP, e.ID)
	}
	if e.UUID != "" {
		unindex(s.byUUID, e.UUID, e.ID)
	}
	if e.Username != "" {
		unindex(s.byUsername, strings.ToLower(e.Username), e.ID)
	}
}

// RemoveByID deletes a single ban by its ID.
func (s *MemoryStore) RemoveByID(id, removedBy string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	s.removeLocked(e)
	s.recordLocked(OpRemove, e, removedBy)
	return e, nil
}

// RemoveByIP deletes every ban entry matching ip.
func (s *MemoryStore) RemoveByIP(ip, removedBy string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byIP[ip]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.removeAllLocked(ids, removedBy), nil
}

// RemoveByUUID deletes every ban entry matching playerUUID.
func (s *MemoryStore) RemoveByUUID(playerUUID, removedBy string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byUUID[playerUUID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.removeAllLocked(ids, removedBy), nil
}

// RemoveByUsername deletes every ban entry matching username (case-insensitive).
func (s *MemoryStore) RemoveByUsername(username, removedBy string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byUsername[strings.ToLower(username)]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.removeAllLocked(ids, removedBy), nil
}

func (s *MemoryStore) removeAllLocked(ids map[string]struct{}, removedBy string) []Entry {
	removed := make([]Entry, 0, len(ids))
	for id := range ids {
		if e, ok := s.byID[id]; ok {
			s.removeLocked(e)
			s.recordLocked(OpRemove, e, removedBy)
			removed = append(removed, e)
		}
	}
	return removed
}

// IsBannedAddr checks the IP index for a non-expired ban matching addr.
func (s *MemoryStore) IsBannedAddr(addr net.Addr) (bool, string) {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return s.isBanned(s.byIP, host)
}

// IsBannedUUID checks the UUID index for a non-expired ban.
func (s *MemoryStore) IsBannedUUID(playerUUID string) (bool, string) {
	return s.isBanned(s.byUUID, playerUUID)
}

// IsBannedUsername checks the username index (case-insensitive) for a
// non-expired ban.
func (s *MemoryStore) IsBannedUsername(username string) (bool, string) {
	return s.isBanned(s.byUsername, strings.ToLower(username))
}

func (s *MemoryStore) isBanned(m map[string]map[string]struct{}, key string) (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range m[key] {
		if e, ok := s.byID[id]; ok && !e.Expired() {
			return true, e.Reason
		}
	}
	return false, ""
}

// List returns up to limit entries starting at offset, ordered by ID for
// stable pagination.
func (s *MemoryStore) List(offset, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Entry, 0, len(s.byID))
	for _, e := range s.byID {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ClearExpired removes every entry whose TTL has elapsed, returning the
// count removed.
func (s *MemoryStore) ClearExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Entry
	for _, e := range s.byID {
		if e.Expired() {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		s.removeLocked(e)
		s.recordLocked(OpExpire, e, "auto-cleanup")
	}
	return len(expired)
}

// Audit returns the most recent limit audit log entries, newest first.
func (s *MemoryStore) Audit(limit int) []AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.audit.Len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuditLogEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.audit.At(n - 1 - i)
	}
	return out
}

// recordLocked appends to the bounded audit ring, evicting the oldest entry
// once maxAuditLogSize is exceeded. Caller must hold s.mu.
func (s *MemoryStore) recordLocked(op Operation, e Entry, performedBy string) {
	s.audit.PushBack(AuditLogEntry{Operation: op, Entry: e, Timestamp: time.Now(), PerformedBy: performedBy})
	for s.audit.Len() > maxAuditLogSize {
		s.audit.PopFront()
	}
}
