package wsrpc

import (
	"sync"
	"time"
)

// settled carries the single resolution of a call.
type settled struct {
	outcome Outcome
	err     error
}

// pendingRequest is one in-flight call awaiting a response.
type pendingRequest struct {
	id          string
	method      string
	submittedAt time.Time
	ch          chan settled
	timer       *time.Timer
	isWrite     bool
}

// settle delivers the resolution. Callers must hold the only reference,
// obtained by removing the entry from the registry.
func (p *pendingRequest) settle(s settled) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.ch <- s
}

// pendingRegistry tracks in-flight calls by id. Removal under the lock is
// the resolve-once point: whichever of response, timeout and cancellation
// takes the entry first settles it; the rest find nothing and back off.
type pendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{entries: make(map[string]*pendingRequest)}
}

func (r *pendingRegistry) add(p *pendingRequest) {
	r.mu.Lock()
	r.entries[p.id] = p
	r.mu.Unlock()
}

func (r *pendingRegistry) take(id string) (*pendingRequest, bool) {
	r.mu.Lock()
	p, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	return p, ok
}

func (r *pendingRegistry) takeAll() []*pendingRequest {
	r.mu.Lock()
	all := make([]*pendingRequest, 0, len(r.entries))
	for _, p := range r.entries {
		all = append(all, p)
	}
	r.entries = make(map[string]*pendingRequest)
	r.mu.Unlock()
	return all
}

func (r *pendingRegistry) len() int {
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	return n
}
