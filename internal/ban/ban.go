// Package ban implements the in-memory (optionally file-backed) ban store:
// three-index lookups by IP, player UUID, and lowercased username, entry
// expiry, and a bounded audit log of recent ban operations.
package ban

import (
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is a single ban record. Exactly one of IP, UUID, Username is
// typically set, though all three may be to cover every identifier a player
// presents.
type Entry struct {
	ID        string     `json:"id"`
	IP        string     `json:"ip,omitempty"`
	UUID      string     `json:"uuid,omitempty"`
	Username  string     `json:"username,omitempty"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	BannedBy  string     `json:"banned_by"`
}

// NewEntry constructs a ban with a fresh ID and CreatedAt set to now. A zero
// ttl means the ban never expires.
func NewEntry(ip, playerUUID, username, reason, bannedBy string, ttl time.Duration) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		IP:        ip,
		UUID:      playerUUID,
		Username:  strings.ToLower(username),
		Reason:    reason,
		CreatedAt: time.Now(),
		BannedBy:  bannedBy,
	}
	if ttl > 0 {
		expires := e.CreatedAt.Add(ttl)
		e.ExpiresAt = &expires
	}
	return e
}

// Expired reports whether the ban's TTL has elapsed.
func (e Entry) Expired() bool {
	return e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt)
}

// MatchesIP reports whether the ban targets the given remote address's host.
func (e Entry) MatchesIP(addr net.Addr) bool {
	if e.IP == "" {
		return false
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return e.IP == host
}

// Operation tags an AuditLogEntry's kind.
type Operation int

const (
	OpAdd Operation = iota
	OpRemove
	OpExpire
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// AuditLogEntry records one mutation of the ban store for operator review.
type AuditLogEntry struct {
	Operation   Operation
	Entry       Entry
	Timestamp   time.Time
	PerformedBy string
}
