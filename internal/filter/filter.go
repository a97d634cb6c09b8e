// Package filter implements the ordered, named connection-filter chain that
// runs before a gateway accepts a session: rate limiting and ban checks.
package filter

import (
	"context"
	"fmt"
	"net"
)

// Decision is the verdict a Filter renders for a connection attempt.
type Decision struct {
	Allow  bool
	Reason string
}

func allow() Decision { return Decision{Allow: true} }

func deny(reason string) Decision { return Decision{Allow: false, Reason: reason} }

// Request carries everything a Filter needs to judge a connection attempt.
type Request struct {
	RemoteAddr net.Addr
	Username   string
	UUID       string
}

// Filter is a single named, independently toggleable check in the chain.
type Filter interface {
	Name() string
	Check(ctx context.Context, req Request) Decision
}

// Chain runs an ordered list of filters, short-circuiting at the first
// denial so that cheaper checks (rate limiting) run before costlier ones.
type Chain struct {
	filters []namedFilter
}

type namedFilter struct {
	f       Filter
	enabled bool
}

// NewChain builds a chain from filters in evaluation order.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	for _, f := range filters {
		c.filters = append(c.filters, namedFilter{f: f, enabled: true})
	}
	return c
}

// SetEnabled toggles a named filter on or off without rebuilding the chain.
func (c *Chain) SetEnabled(name string, enabled bool) error {
	for i := range c.filters {
		if c.filters[i].f.Name() == name {
			c.filters[i].enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("filter: unknown filter %q", name)
}

// Check evaluates every enabled filter in order, returning the first denial
// or an overall allow if none object.
func (c *Chain) Check(ctx context.Context, req Request) Decision {
	for _, nf := range c.filters {
		if !nf.enabled {
			continue
		}
		if d := nf.f.Check(ctx, req); !d.Allow {
			return d
		}
	}
	return allow()
}
