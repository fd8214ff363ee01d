package wsconn

import (
	"context"
	"sync"
	"time"

	"main/internal/bus"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/yanun0323/logs"
)

var (
	pingPayload = []byte("ping")
	pongPayload = []byte("pong")
)

// Config defines the manager runtime configuration.
type Config struct {
	Dialer Dialer

	// PingInterval is the heartbeat probe period. Default 15s.
	PingInterval time.Duration
	// PongTimeout force-closes the socket when no traffic is seen. Default 10s.
	PongTimeout time.Duration
	// StrictPong restricts the heartbeat reset to explicit pong tokens.
	StrictPong bool

	// Backoff computes reconnect delays. Zero value uses DefaultBackoff.
	Backoff Backoff
	// MaxReconnectAttempts bounds retries; 0 retries forever.
	MaxReconnectAttempts int
	// OpenTimeout bounds how long a connect attempt may hang. Default 10s.
	OpenTimeout time.Duration
	// ResumeGrace delays the dial after ImmediateReconnect so a freshly
	// resumed network stack has time to settle. Default 300ms.
	ResumeGrace time.Duration
	// WriteTimeout bounds a single socket write. Default 5s.
	WriteTimeout time.Duration

	// BufferCapacity bounds the raw outbound buffer. Default 64 frames.
	BufferCapacity int
	// EventCapacity bounds the state-change event queue. Default 16.
	EventCapacity int

	Metrics *obs.Metrics

	OnOpen    func()
	OnMessage func(payload []byte)
	OnClose   func(err error)
}

func (cfg *Config) defaults() {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.ResumeGrace <= 0 {
		cfg.ResumeGrace = 300 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = 64
	}
	if cfg.EventCapacity <= 0 {
		cfg.EventCapacity = 16
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
}

// Manager owns the physical socket and its lifecycle: connect, heartbeat,
// outbound buffering and reconnection with backoff. At most one live socket
// exists at any time; a stale socket is fully torn down before a new one is
// dialed.
type Manager struct {
	cfg       Config
	buffer    *OutboundBuffer
	heartbeat *Heartbeat
	events    *bus.Queue
	metrics   *obs.Metrics

	mu             sync.Mutex
	writeMu        sync.Mutex
	state          State
	conn           Conn
	gen            uint64
	attempts       int
	reconnectTimer *time.Timer
	readCancel     context.CancelFunc
	destroyed      bool
}

// NewManager validates config and builds a manager in the Idle state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, exception.ErrNilDialer
	}
	cfg.defaults()

	m := &Manager{
		cfg:     cfg,
		buffer:  NewOutboundBuffer(cfg.BufferCapacity),
		events:  bus.NewQueue(cfg.EventCapacity),
		metrics: cfg.Metrics,
		state:   StateIdle,
	}
	m.heartbeat = NewHeartbeat(cfg.PingInterval, cfg.PongTimeout, cfg.StrictPong, m.sendPing, m.pongExpired)
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events returns the state-change event stream.
func (m *Manager) Events() *bus.Queue {
	return m.events
}

// Attempts returns the current reconnect attempt count.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens a new socket. No-op while already connecting or connected.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		logs.Warn("connect called on destroyed manager")
		return exception.ErrDestroyed
	}
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateConnecting, nil)
	m.gen++
	g := m.gen
	m.mu.Unlock()

	go m.dial(g)
	return nil
}

// Send writes payload immediately when the socket is open. Otherwise, with
// queue true the payload lands in the outbound buffer; with queue false the
// call fails with ErrNotOpen.
func (m *Manager) Send(payload []byte, queue bool) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return exception.ErrDestroyed
	}
	if m.state != StateConnected || m.conn == nil {
		if !queue {
			m.mu.Unlock()
			return exception.ErrNotOpen
		}
		evicted := m.buffer.Append(payload)
		m.mu.Unlock()
		if evicted {
			m.metrics.BufferedDrop()
			logs.Warn("outbound buffer overflow, oldest frame dropped")
		}
		return nil
	}
	conn := m.conn
	g := m.gen
	m.mu.Unlock()

	if err := m.write(conn, payload); err != nil {
		if queue {
			m.buffer.Prepend(payload)
		}
		m.handleClose(g, err)
		if queue {
			return nil
		}
		return err
	}
	return nil
}

// ImmediateReconnect cancels any pending backoff, resets the attempt count,
// tears down the socket and redials after a short grace delay. Reconnecting
// instantly after an OS resume tends to fail silently.
func (m *Manager) ImmediateReconnect() error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return exception.ErrDestroyed
	}
	m.stopReconnectTimerLocked()
	m.attempts = 0
	m.teardownLocked(CloseGoingAway, "immediate reconnect")
	m.setStateLocked(StateReconnecting, nil)
	m.reconnectTimer = time.AfterFunc(m.cfg.ResumeGrace, m.redial)
	m.mu.Unlock()
	return nil
}

// Disconnect tears down the socket and all timers. Connect may be called
// again afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.stopReconnectTimerLocked()
	m.teardownLocked(CloseNormal, "disconnect")
	m.setStateLocked(StateDisconnected, nil)
	m.mu.Unlock()
}

// Destroy is Disconnect plus marking the manager unusable. Idempotent.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.stopReconnectTimerLocked()
	m.teardownLocked(CloseNormal, "destroy")
	m.setStateLocked(StateDisconnected, nil)
	m.destroyed = true
	m.mu.Unlock()

	m.events.Close()
}

// Pause suspends the heartbeat while the host application is backgrounded.
func (m *Manager) Pause() {
	m.heartbeat.Pause()
}

// Resume re-enables the heartbeat and probes immediately.
func (m *Manager) Resume() {
	m.heartbeat.Resume()
}

// Buffered returns the number of frames waiting in the outbound buffer.
func (m *Manager) Buffered() int {
	return m.buffer.Len()
}

func (m *Manager) dial(g uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.OpenTimeout)
	conn, err := m.cfg.Dialer.Dial(ctx)
	timedOut := ctx.Err() == context.DeadlineExceeded
	cancel()

	m.mu.Lock()
	if m.destroyed || g != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseNormal, "stale dial")
		}
		return
	}
	if err != nil {
		if timedOut {
			err = exception.ErrConnectTimeout
		}
		m.setStateLocked(StateError, err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.metrics.SocketOpened()
	m.attempts = 0
	m.setStateLocked(StateConnected, nil)

	readCtx, readCancel := context.WithCancel(context.Background())
	m.readCancel = readCancel
	m.mu.Unlock()

	m.heartbeat.Start()
	m.flushBuffer(g, conn)
	if m.cfg.OnOpen != nil {
		m.cfg.OnOpen()
	}
	go m.readLoop(g, readCtx, conn)
}

func (m *Manager) flushBuffer(g uint64, conn Conn) {
	pending := m.buffer.Flush()
	for i, payload := range pending {
		if err := m.write(conn, payload); err != nil {
			for j := len(pending) - 1; j >= i; j-- {
				m.buffer.Prepend(pending[j])
			}
			m.handleClose(g, err)
			return
		}
	}
}

func (m *Manager) readLoop(g uint64, ctx context.Context, conn Conn) {
	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			m.handleClose(g, err)
			return
		}
		m.metrics.MessageReceived()
		m.heartbeat.Touch(isPongToken(payload))
		if m.cfg.OnMessage != nil {
			m.cfg.OnMessage(payload)
		}
	}
}

func (m *Manager) handleClose(g uint64, err error) {
	m.mu.Lock()
	if g != m.gen || m.destroyed {
		m.mu.Unlock()
		return
	}
	m.teardownLocked(CloseGoingAway, "connection lost")
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	if m.cfg.OnClose != nil {
		m.cfg.OnClose(err)
	}
}

// scheduleReconnectLocked bumps the attempt count and arms the backoff
// timer, or transitions to Disconnected past the attempt limit.
func (m *Manager) scheduleReconnectLocked() {
	m.attempts++
	if m.cfg.MaxReconnectAttempts > 0 && m.attempts > m.cfg.MaxReconnectAttempts {
		m.setStateLocked(StateDisconnected, exception.ErrMaxAttemptsReached)
		return
	}
	m.metrics.Reconnect()
	delay := m.cfg.Backoff.Next(m.attempts - 1)
	m.setStateLocked(StateReconnecting, nil)
	logs.Infof("reconnect attempt %d scheduled in %s", m.attempts, delay)
	m.reconnectTimer = time.AfterFunc(delay, m.redial)
}

func (m *Manager) redial() {
	m.mu.Lock()
	if m.destroyed || m.state == StateDisconnected || m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting, nil)
	m.gen++
	g := m.gen
	m.mu.Unlock()

	go m.dial(g)
}

// teardownLocked detaches and closes the current socket, stops the
// heartbeat and invalidates in-flight callbacks for the old generation.
func (m *Manager) teardownLocked(code CloseCode, reason string) {
	m.gen++
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close(code, reason)
		m.conn = nil
		m.metrics.SocketClosed()
	}
	m.heartbeat.Stop()
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) setStateLocked(st State, err error) {
	if m.state == st && err == nil {
		return
	}
	m.state = st
	if err != nil {
		logs.Warnf("connection state %s, err: %+v", st, err)
	}
	_ = m.events.TryPublish(bus.Event{
		State:   st.String(),
		Err:     err,
		Attempt: m.attempts,
		At:      time.Now(),
	})
}

func (m *Manager) write(conn Conn, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, payload); err != nil {
		return err
	}
	m.metrics.MessageSent()
	return nil
}

func (m *Manager) sendPing() {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected && conn != nil
	m.mu.Unlock()
	if !connected {
		return
	}
	if err := m.write(conn, pingPayload); err != nil {
		logs.Warnf("heartbeat ping failed, err: %+v", err)
	}
}

// pongExpired force-closes the socket, funnelling into the same reconnect
// path as a remote close.
func (m *Manager) pongExpired() {
	m.mu.Lock()
	g := m.gen
	m.mu.Unlock()
	m.handleClose(g, exception.ErrPongTimeout)
}

func isPongToken(payload []byte) bool {
	if len(payload) != len(pongPayload) {
		return false
	}
	for i := range payload {
		if payload[i] != pongPayload[i] {
			return false
		}
	}
	return true
}
