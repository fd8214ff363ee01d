package wsconn

import "sync"

// OutboundBuffer holds raw frames that could not be written because the
// socket was not open. It is a bounded FIFO with no knowledge of RPC
// semantics; overflow evicts the oldest entry.
type OutboundBuffer struct {
	mu       sync.Mutex
	entries  [][]byte
	capacity int
}

// NewOutboundBuffer creates a buffer with the given capacity.
func NewOutboundBuffer(capacity int) *OutboundBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &OutboundBuffer{capacity: capacity}
}

// Append adds a frame, evicting the oldest entry on overflow.
// Returns true when an entry was evicted.
func (b *OutboundBuffer) Append(payload []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := false
	if len(b.entries) >= b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
		evicted = true
	}
	b.entries = append(b.entries, payload)
	return evicted
}

// Prepend puts a frame back at the head after a failed mid-flush send.
func (b *OutboundBuffer) Prepend(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append([][]byte{payload}, b.entries...)
}

// Flush removes and returns all entries in FIFO order.
func (b *OutboundBuffer) Flush() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries
	b.entries = nil
	return entries
}

// Len returns the number of buffered frames.
func (b *OutboundBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear drops every buffered frame.
func (b *OutboundBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
