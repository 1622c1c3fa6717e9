// Package auth defines the narrow surface the sync core consumes from the
// authentication layer: who the current principal is, and a stream of
// transitions. Token acquisition and provider linking live elsewhere.
package auth

import "sync"

// Provider reports the acting principal. An empty id means the session is
// anonymous/local-only. A transition from empty to non-empty triggers the
// engine's initial sync; non-empty to empty stops remote flow.
type Provider interface {
	// CurrentPrincipalID returns the signed-in principal id, or "" when
	// the session is anonymous.
	CurrentPrincipalID() string
	// Changes streams principal transitions. The value sent is the new
	// principal id ("" for sign-out).
	Changes() <-chan string
}

// Static is a Provider with an explicit, settable principal. The composition
// root signs principals in and out through it; tests drive transitions
// directly.
type Static struct {
	mu        sync.Mutex
	principal string
	subs      []chan string
}

var _ Provider = (*Static)(nil)

// NewStatic creates a provider starting at the given principal ("" for
// anonymous).
func NewStatic(principal string) *Static {
	return &Static{principal: principal}
}

// CurrentPrincipalID implements Provider.
func (p *Static) CurrentPrincipalID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.principal
}

// Changes implements Provider.
func (p *Static) Changes() <-chan string {
	ch := make(chan string, 4)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// SetPrincipal records a transition and notifies subscribers. Setting the
// same principal again is a no-op.
func (p *Static) SetPrincipal(id string) {
	p.mu.Lock()
	if p.principal == id {
		p.mu.Unlock()
		return
	}
	p.principal = id
	subs := make([]chan string, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- id:
		default:
			// Slow subscriber: replace the queued transition, latest wins.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- id:
			default:
			}
		}
	}
}
