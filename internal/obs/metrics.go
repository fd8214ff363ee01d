package obs

import (
	"sync/atomic"
)

// Metrics collects lightweight counters for the connection and RPC layers.
//
// SocketsOpened/SocketsClosed also back the single-live-socket invariant:
// opened minus closed must never exceed one.
type Metrics struct {
	socketsOpened uint64
	socketsClosed uint64
	reconnects    uint64

	messagesSent     uint64
	messagesReceived uint64
	bufferedDrops    uint64

	requestsResolved   uint64
	requestsTimedOut   uint64
	requestsCancelled  uint64
	queuedDroppedStale uint64
}

// Snapshot is a point-in-time view of the metrics values.
type Snapshot struct {
	SocketsOpened uint64
	SocketsClosed uint64
	LiveSockets   int64
	Reconnects    uint64

	MessagesSent     uint64
	MessagesReceived uint64
	BufferedDrops    uint64

	RequestsResolved   uint64
	RequestsTimedOut   uint64
	RequestsCancelled  uint64
	QueuedDroppedStale uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// SocketOpened records a new physical socket.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.socketsOpened, 1)
}

// SocketClosed records a socket teardown.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.socketsClosed, 1)
}

// Reconnect records a scheduled reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// MessageSent records one outbound frame written to the socket.
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.messagesSent, 1)
}

// MessageReceived records one inbound frame.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.messagesReceived, 1)
}

// BufferedDrop records an outbound buffer eviction.
func (m *Metrics) BufferedDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.bufferedDrops, 1)
}

// RequestResolved records a pending request settled by a response.
func (m *Metrics) RequestResolved() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.requestsResolved, 1)
}

// RequestTimedOut records a pending request rejected by its timeout.
func (m *Metrics) RequestTimedOut() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.requestsTimedOut, 1)
}

// RequestCancelled records a pending or queued request resolved as cancelled.
func (m *Metrics) RequestCancelled() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.requestsCancelled, 1)
}

// QueuedDroppedStale records a queued request dropped by the staleness window.
func (m *Metrics) QueuedDroppedStale() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queuedDroppedStale, 1)
}

// Snapshot captures the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	opened := atomic.LoadUint64(&m.socketsOpened)
	closed := atomic.LoadUint64(&m.socketsClosed)
	return Snapshot{
		SocketsOpened:      opened,
		SocketsClosed:      closed,
		LiveSockets:        int64(opened) - int64(closed),
		Reconnects:         atomic.LoadUint64(&m.reconnects),
		MessagesSent:       atomic.LoadUint64(&m.messagesSent),
		MessagesReceived:   atomic.LoadUint64(&m.messagesReceived),
		BufferedDrops:      atomic.LoadUint64(&m.bufferedDrops),
		RequestsResolved:   atomic.LoadUint64(&m.requestsResolved),
		RequestsTimedOut:   atomic.LoadUint64(&m.requestsTimedOut),
		RequestsCancelled:  atomic.LoadUint64(&m.requestsCancelled),
		QueuedDroppedStale: atomic.LoadUint64(&m.queuedDroppedStale),
	}
}
