package wsconn

import (
	"sync"
	"time"
)

// Heartbeat probes liveness on an open connection. Every interval it sends
// a ping payload and arms a pong timer that force-closes the socket when no
// traffic arrives in time.
//
// By default any inbound frame resets the pong timer, so the heartbeat
// doubles as a general liveness signal. Strict mode only accepts explicit
// pong tokens; a notification flood over a half-open transport then no
// longer masks the failure.
type Heartbeat struct {
	interval time.Duration
	timeout  time.Duration
	strict   bool
	send     func()
	expire   func()

	mu        sync.Mutex
	pingTimer *time.Timer
	pongTimer *time.Timer
	running   bool
	paused    bool
}

// NewHeartbeat creates a monitor; send emits the ping payload and expire
// force-closes the socket.
func NewHeartbeat(interval, timeout time.Duration, strict bool, send func(), expire func()) *Heartbeat {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Heartbeat{
		interval: interval,
		timeout:  timeout,
		strict:   strict,
		send:     send,
		expire:   expire,
	}
}

// Start begins probing. A previous run is stopped first.
func (h *Heartbeat) Start() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.stopTimersLocked()
	h.running = true
	h.paused = false
	h.armPingLocked(h.interval)
	h.mu.Unlock()
}

// Stop halts probing and disarms both timers.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.running = false
	h.paused = false
	h.stopTimersLocked()
	h.mu.Unlock()
}

// Pause suspends probing without tearing the monitor down, for app
// backgrounding or network suspension.
func (h *Heartbeat) Pause() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.running {
		h.paused = true
		h.stopTimersLocked()
	}
	h.mu.Unlock()
}

// Resume re-probes immediately rather than waiting a full interval.
func (h *Heartbeat) Resume() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if !h.running || !h.paused {
		h.mu.Unlock()
		return
	}
	h.paused = false
	h.mu.Unlock()
	h.probe()
}

// Touch resets the pong timer on inbound traffic. In strict mode only an
// explicit pong counts.
func (h *Heartbeat) Touch(isPong bool) {
	if h == nil {
		return
	}
	if h.strict && !isPong {
		return
	}
	h.mu.Lock()
	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
	h.mu.Unlock()
}

func (h *Heartbeat) probe() {
	h.mu.Lock()
	if !h.running || h.paused {
		h.mu.Unlock()
		return
	}
	if h.pongTimer == nil {
		h.pongTimer = time.AfterFunc(h.timeout, h.expireNow)
	}
	h.armPingLocked(h.interval)
	h.mu.Unlock()

	h.send()
}

func (h *Heartbeat) expireNow() {
	h.mu.Lock()
	expired := h.running && !h.paused
	h.pongTimer = nil
	h.mu.Unlock()

	if expired {
		h.expire()
	}
}

func (h *Heartbeat) armPingLocked(d time.Duration) {
	if h.pingTimer != nil {
		h.pingTimer.Stop()
	}
	h.pingTimer = time.AfterFunc(d, h.probe)
}

func (h *Heartbeat) stopTimersLocked() {
	if h.pingTimer != nil {
		h.pingTimer.Stop()
		h.pingTimer = nil
	}
	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
}
