package filter

import (
	"context"
	"net"
)

// BanChecker is the subset of internal/ban.Store the filter chain depends
// on, kept narrow so filter never imports the storage layer directly.
type BanChecker interface {
	IsBannedAddr(addr net.Addr) (bool, string)
	IsBannedUUID(uuid string) (bool, string)
}

// BanFilter denies connections from a banned IP; username/UUID bans are
// checked later once the gateway has parsed the login packet, since the
// filter chain only sees the remote address at accept time.
type BanFilter struct {
	store BanChecker
}

// NewBanFilter wraps a ban store as a Filter.
func NewBanFilter(store BanChecker) *BanFilter {
	return &BanFilter{store: store}
}

// Name implements Filter.
func (f *BanFilter) Name() string { return "ban-check" }

// Check implements Filter.
func (f *BanFilter) Check(_ context.Context, req Request) Decision {
	if banned, reason := f.store.IsBannedAddr(req.RemoteAddr); banned {
		return deny(reason)
	}
	if req.UUID != "" {
		if banned, reason := f.store.IsBannedUUID(req.UUID); banned {
			return deny(reason)
		}
	}
	return allow()
}
