// Package authz holds the two trust anchors for inbound updates: the
// transport the registry listens to at all, and the logical origin allowed
// to produce updates over it. One transport can carry many logical senders,
// so trusting the transport alone is insufficient.
package authz

import (
	"sync"

	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
)

// OriginChange carries the old and new authorized origin for observers.
type OriginChange struct {
	Old feed.Identity
	New feed.Identity
}

// Policy authorizes update calls. The trusted transport identity is fixed
// at construction; the authorized origin identity is operator-settable and
// takes effect on the next call.
type Policy struct {
	transport feed.Identity

	mu     sync.RWMutex
	origin feed.Identity
}

// NewPolicy constructs a policy trusting the given transport and origin.
func NewPolicy(trustedTransport, authorizedOrigin feed.Identity) *Policy {
	return &Policy{
		transport: trustedTransport,
		origin:    authorizedOrigin,
	}
}

// TrustedTransport returns the fixed transport identity.
func (p *Policy) TrustedTransport() feed.Identity {
	return p.transport
}

// AuthorizedOrigin returns the currently authorized origin identity.
func (p *Policy) AuthorizedOrigin() feed.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.origin
}

// SetAuthorizedOrigin replaces the authorized origin and returns the
// old/new pair for the change notification. Single-writer by convention.
func (p *Policy) SetAuthorizedOrigin(origin feed.Identity) OriginChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	change := OriginChange{Old: p.origin, New: origin}
	p.origin = origin
	return change
}

// Check evaluates the three authorization predicates in order, returning
// the first failure. Evaluated before any registry lookup so an unknown
// feed from an unauthorized caller fails authorization, not lookup.
func (p *Policy) Check(transport, origin feed.Identity, version uint8) error {
	if transport != p.transport {
		return feed.ErrUntrustedTransport
	}
	p.mu.RLock()
	authorized := p.origin
	p.mu.RUnlock()
	if origin != authorized {
		return feed.ErrUntrustedOrigin
	}
	if version != feed.ExpectedMessageVersion {
		return feed.ErrVersionMismatch
	}
	return nil
}
