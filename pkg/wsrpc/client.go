package wsrpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"main/internal/obs"
	"main/pkg/exception"
	"main/pkg/scanner"
	"main/pkg/wsconn"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var (
	keyMarker = []byte(`"jsonrpc"`)
	tokenPong = []byte("pong")
	tokenPing = []byte("ping")
)

// Transport is the connection surface the client depends on. The manager
// in pkg/wsconn satisfies it; tests supply fakes.
type Transport interface {
	Send(payload []byte, queue bool) error
	State() wsconn.State
}

// Config defines the client runtime configuration.
type Config struct {
	// RequestTimeout rejects an unanswered pending request. Default 30s.
	RequestTimeout time.Duration
	// Staleness drops queued requests older than this window at flush
	// time, resolving them as cancelled. Default 10s.
	Staleness time.Duration
	// CancelMethod names the out-of-band cancel call. Default "cancel".
	CancelMethod string

	Dispatcher *Dispatcher
	Metrics    *obs.Metrics
}

func (cfg *Config) defaults() {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 10 * time.Second
	}
	if cfg.CancelMethod == "" {
		cfg.CancelMethod = "cancel"
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = obs.NewMetrics()
	}
}

// Client correlates JSON-RPC requests with responses over one connection.
// Calls made while disconnected queue until the connection reopens; every
// call settles exactly once, by response, timeout or cancellation.
type Client struct {
	cfg        Config
	pending    *pendingRegistry
	queue      *requestQueue
	dispatcher *Dispatcher
	metrics    *obs.Metrics

	mu        sync.Mutex
	transport Transport
	writeID   string
}

// NewClient builds a detached client; call Attach before use.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:        cfg,
		pending:    newPendingRegistry(),
		queue:      newRequestQueue(),
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
	}
}

// Attach binds the client to a connection. The client holds exactly one
// injected Transport reference, never a global.
func (c *Client) Attach(t Transport) {
	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()
}

// Dispatcher returns the notification dispatcher for handler registration.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Call issues a request and waits for its single resolution. ctx doubles
// as the cancellation signal: an already-cancelled ctx resolves to the
// cancelled outcome without touching the network.
func (c *Client) Call(ctx context.Context, method string, params any) (Outcome, error) {
	return c.call(ctx, method, params, false)
}

// CallWrite is Call for the designated "current write"; at most one write
// id is tracked for CancelWrite.
func (c *Client) CallWrite(ctx context.Context, method string, params any) (Outcome, error) {
	return c.call(ctx, method, params, true)
}

func (c *Client) call(ctx context.Context, method string, params any, isWrite bool) (Outcome, error) {
	if c == nil {
		return Outcome{}, exception.ErrNilInstance
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		c.metrics.RequestCancelled()
		return Outcome{Cancelled: true}, nil
	}

	id := uuid.NewString()
	payload, err := json.Marshal(Request{
		JSONRPC:   Version,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Method:    method,
		Params:    params,
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "marshal request").With("method", method)
	}

	ch := make(chan settled, 1)

	c.mu.Lock()
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		return Outcome{}, exception.ErrDetached
	}
	if isWrite {
		c.writeID = id
	}
	if t.State() != wsconn.StateConnected {
		c.queue.push(&queuedRequest{
			id:          id,
			method:      method,
			payload:     payload,
			submittedAt: time.Now(),
			ch:          ch,
			isWrite:     isWrite,
		})
		c.mu.Unlock()
		// The connection may have opened between the state check and the
		// push, after its flush callback already ran.
		if t.State() == wsconn.StateConnected {
			c.FlushQueue()
		}
		return c.await(ctx, id, ch)
	}
	c.registerPendingLocked(id, method, ch, isWrite)
	c.mu.Unlock()

	if err := t.Send(payload, true); err != nil {
		if p, ok := c.takePending(id); ok {
			p.settle(settled{err: errors.Wrap(err, "send request").With("method", method)})
		}
	}
	return c.await(ctx, id, ch)
}

func (c *Client) registerPendingLocked(id, method string, ch chan settled, isWrite bool) {
	p := &pendingRequest{
		id:          id,
		method:      method,
		submittedAt: time.Now(),
		ch:          ch,
		isWrite:     isWrite,
	}
	p.timer = time.AfterFunc(c.cfg.RequestTimeout, func() { c.expire(id) })
	c.pending.add(p)
}

// await blocks until the call settles. On ctx cancellation the entry is
// resolved as cancelled; if something else settled it first, that
// resolution wins and the cancel becomes a no-op.
func (c *Client) await(ctx context.Context, id string, ch chan settled) (Outcome, error) {
	select {
	case s := <-ch:
		return s.outcome, s.err
	case <-ctx.Done():
		c.cancelRequest(id)
		s := <-ch
		return s.outcome, s.err
	}
}

// cancelRequest resolves a pending or queued entry as cancelled. No-op
// when the id is no longer registered.
func (c *Client) cancelRequest(id string) bool {
	if p, ok := c.takePending(id); ok {
		c.metrics.RequestCancelled()
		p.settle(settled{outcome: Outcome{Cancelled: true}})
		return true
	}
	if q, ok := c.removeQueued(id); ok {
		c.metrics.RequestCancelled()
		q.ch <- settled{outcome: Outcome{Cancelled: true}}
		return true
	}
	return false
}

func (c *Client) expire(id string) {
	p, ok := c.takePending(id)
	if !ok {
		return
	}
	c.metrics.RequestTimedOut()
	p.settle(settled{err: errors.Wrap(exception.ErrRequestTimeout, p.method)})
}

func (c *Client) takePending(id string) (*pendingRequest, bool) {
	p, ok := c.pending.take(id)
	if ok {
		c.clearWriteID(id)
	}
	return p, ok
}

func (c *Client) removeQueued(id string) (*queuedRequest, bool) {
	q, ok := c.queue.remove(id)
	if ok {
		c.clearWriteID(id)
	}
	return q, ok
}

func (c *Client) clearWriteID(id string) {
	c.mu.Lock()
	if c.writeID == id {
		c.writeID = ""
	}
	c.mu.Unlock()
}

// Receive feeds one inbound frame through ProcessReceived and dispatches
// any notification. Wire it as the connection's OnMessage callback.
func (c *Client) Receive(raw []byte) {
	n, err := c.ProcessReceived(raw)
	if err != nil {
		logs.Warnf("drop inbound frame, err: %+v", err)
		return
	}
	if n != nil {
		c.dispatcher.Dispatch(*n)
	}
}

// ProcessReceived parses one inbound frame. A liveness token yields nil.
// A frame without an id is returned as a Notification. A frame whose id
// matches a pending request settles that request; an unmatched id is
// logged and swallowed, since a response arriving after a reset is not
// fatal.
func (c *Client) ProcessReceived(raw []byte) (*Notification, error) {
	if c == nil {
		return nil, exception.ErrNilInstance
	}
	raw = scanner.TrimSpace(raw)
	if isToken(raw, tokenPong) || isToken(raw, tokenPing) {
		return nil, nil
	}
	if !scanner.HasField(raw, keyMarker) {
		return nil, errors.Wrap(exception.ErrParse, "missing protocol marker")
	}

	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errors.Wrapf(exception.ErrParse, "unmarshal frame: %+v", err)
	}
	if in.JSONRPC != Version {
		return nil, errors.Wrapf(exception.ErrParse, "unexpected protocol version: %q", in.JSONRPC)
	}

	if in.ID == "" {
		if in.Method == "" {
			return nil, errors.Wrap(exception.ErrParse, "frame carries neither id nor method")
		}
		return &Notification{Method: in.Method, Params: in.Params}, nil
	}

	p, ok := c.takePending(in.ID)
	if !ok {
		logs.Infof("no pending request for id %s, dropped", in.ID)
		return nil, nil
	}
	if in.Error != nil {
		p.settle(settled{err: in.Error})
		return nil, nil
	}
	c.metrics.RequestResolved()
	p.settle(settled{outcome: Outcome{Result: in.Result}})
	return nil, nil
}

// FlushQueue converts queued requests into pending sends, oldest first.
// Entries past the staleness window resolve as cancelled instead of being
// sent late. Wire it as the connection's OnOpen callback.
func (c *Client) FlushQueue() {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return
	}

	now := time.Now()
	var stale, fresh []*queuedRequest
	for _, q := range c.queue.drain() {
		if now.Sub(q.submittedAt) > c.cfg.Staleness {
			stale = append(stale, q)
			continue
		}
		fresh = append(fresh, q)
	}

	for _, q := range stale {
		c.clearWriteID(q.id)
		c.metrics.QueuedDroppedStale()
		c.metrics.RequestCancelled()
		logs.Infof("queued request %s (%s) dropped as stale", q.id, q.method)
		q.ch <- settled{outcome: Outcome{Cancelled: true}}
	}
	for _, q := range fresh {
		c.mu.Lock()
		c.registerPendingLocked(q.id, q.method, q.ch, q.isWrite)
		c.mu.Unlock()
		if err := t.Send(q.payload, true); err != nil {
			if p, ok := c.takePending(q.id); ok {
				p.settle(settled{err: errors.Wrap(err, "flush request").With("method", q.method)})
			}
		}
	}
}

// Reset proactively fails every outstanding call and detaches from the
// connection so another endpoint can be attached without cross-talk.
func (c *Client) Reset() {
	c.mu.Lock()
	c.transport = nil
	c.writeID = ""
	c.mu.Unlock()

	for _, p := range c.pending.takeAll() {
		p.settle(settled{err: exception.ErrConnectionReset})
	}
	for _, q := range c.queue.drain() {
		q.ch <- settled{err: exception.ErrConnectionReset}
	}
}

// CancelWrite cancels the designated current write, if any, and fires a
// best-effort out-of-band cancel call. Delivery failure of the cancel
// notice is logged, never surfaced to the original caller.
func (c *Client) CancelWrite() bool {
	c.mu.Lock()
	id := c.writeID
	c.writeID = ""
	t := c.transport
	c.mu.Unlock()
	if id == "" {
		return false
	}
	if !c.cancelRequest(id) {
		return false
	}
	if t != nil {
		if err := c.notify(t, c.cfg.CancelMethod, map[string]string{"id": id}); err != nil {
			logs.Warnf("out-of-band cancel for %s failed, err: %+v", id, err)
		}
	}
	return true
}

// PendingCount reports in-flight requests, for inspection and tests.
func (c *Client) PendingCount() int {
	return c.pending.len()
}

// QueuedCount reports deferred requests, for inspection and tests.
func (c *Client) QueuedCount() int {
	return c.queue.len()
}

// notify sends a fire-and-forget id-less request.
func (c *Client) notify(t Transport, method string, params any) error {
	payload, err := json.Marshal(Request{
		JSONRPC:   Version,
		Timestamp: time.Now().UnixMilli(),
		Method:    method,
		Params:    params,
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return t.Send(payload, false)
}

func isToken(payload, token []byte) bool {
	if len(payload) != len(token) {
		return false
	}
	for i := range payload {
		if payload[i] != token[i] {
			return false
		}
	}
	return true
}
