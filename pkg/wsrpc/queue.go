package wsrpc

import (
	"sync"
	"time"
)

// queuedRequest is a call made while disconnected, deferred until the
// connection reopens.
type queuedRequest struct {
	id          string
	method      string
	payload     []byte
	submittedAt time.Time
	ch          chan settled
	isWrite     bool
}

// requestQueue is the FIFO of deferred calls.
type requestQueue struct {
	mu      sync.Mutex
	entries []*queuedRequest
}

func newRequestQueue() *requestQueue {
	return &requestQueue{}
}

func (q *requestQueue) push(r *queuedRequest) {
	q.mu.Lock()
	q.entries = append(q.entries, r)
	q.mu.Unlock()
}

func (q *requestQueue) remove(id string) (*queuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.entries {
		if r.id == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return r, true
		}
	}
	return nil, false
}

func (q *requestQueue) drain() []*queuedRequest {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()
	return entries
}

func (q *requestQueue) len() int {
	q.mu.Lock()
	n := len(q.entries)
	q.mu.Unlock()
	return n
}
