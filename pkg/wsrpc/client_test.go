package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"main/pkg/exception"
	"main/pkg/wsconn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	state   wsconn.State
	sent    [][]byte
	sendErr error
}

func newFakeTransport(state wsconn.State) *fakeTransport {
	return &fakeTransport{state: state}
}

func (f *fakeTransport) Send(payload []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeTransport) State() wsconn.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) setState(st wsconn.State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// request returns the i-th sent frame decoded as a request envelope.
func (f *fakeTransport) request(t *testing.T, i int) Request {
	t.Helper()
	require.Eventually(t, func() bool { return f.sentCount() > i },
		time.Second, time.Millisecond, "request %d never sent", i)

	f.mu.Lock()
	payload := f.sent[i]
	f.mu.Unlock()

	var req struct {
		JSONRPC   string         `json:"jsonrpc"`
		ID        string         `json:"id"`
		Timestamp int64          `json:"timestamp"`
		Method    string         `json:"method"`
		Params    map[string]any `json:"params"`
	}
	require.NoError(t, json.Unmarshal(payload, &req))
	return Request{JSONRPC: req.JSONRPC, ID: req.ID, Timestamp: req.Timestamp, Method: req.Method, Params: req.Params}
}

type callResult struct {
	outcome Outcome
	err     error
}

func startCall(ctx context.Context, c *Client, method string) chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		o, err := c.Call(ctx, method, map[string]int{"x": 1})
		ch <- callResult{outcome: o, err: err}
	}()
	return ch
}

func awaitResult(t *testing.T, ch chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("call never settled")
		return callResult{}
	}
}

func TestCallResolvesWithResult(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	done := startCall(t.Context(), c, "getState")

	req := tr.request(t, 0)
	require.Equal(t, Version, req.JSONRPC)
	require.Equal(t, "getState", req.Method)
	require.NotEmpty(t, req.ID)
	require.NotZero(t, req.Timestamp)

	c.Receive(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"result":{"ok":true}}`, req.ID))

	r := awaitResult(t, done)
	require.NoError(t, r.err)
	require.False(t, r.outcome.Cancelled)

	v, ok := Decode[map[string]bool](r.outcome)
	require.True(t, ok)
	require.True(t, v["ok"])
	require.Zero(t, c.PendingCount())
}

func TestCallRejectedByServerError(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	done := startCall(t.Context(), c, "doWork")
	req := tr.request(t, 0)

	c.Receive(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"error":{"code":-32601,"message":"method not found"}}`, req.ID))

	r := awaitResult(t, done)
	require.Error(t, r.err)

	var rpcErr *ErrorObject
	require.ErrorAs(t, r.err, &rpcErr)
	require.Equal(t, ErrCodeMethodNotFound, rpcErr.Code)
}

func TestCallTimesOut(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{RequestTimeout: 20 * time.Millisecond})
	c.Attach(tr)

	done := startCall(t.Context(), c, "slow")
	req := tr.request(t, 0)

	r := awaitResult(t, done)
	require.ErrorIs(t, r.err, exception.ErrRequestTimeout)
	require.Zero(t, c.PendingCount())

	// A late response after the timeout is dropped silently.
	n, err := c.ProcessReceived(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"result":1}`, req.ID))
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestCallCancelledMidFlight(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	ctx, cancel := context.WithCancel(t.Context())
	done := startCall(ctx, c, "longPoll")
	req := tr.request(t, 0)

	cancel()

	r := awaitResult(t, done)
	require.NoError(t, r.err)
	require.True(t, r.outcome.Cancelled)
	require.Zero(t, c.PendingCount())

	// The eventual response finds nothing to settle.
	n, err := c.ProcessReceived(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"result":1}`, req.ID))
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestCallWithCancelledContextSkipsNetwork(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	o, err := c.Call(ctx, "never", nil)
	require.NoError(t, err)
	require.True(t, o.Cancelled)
	require.Zero(t, tr.sentCount())
	require.Zero(t, c.PendingCount())
}

func TestCallDetached(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.Call(t.Context(), "any", nil)
	require.ErrorIs(t, err, exception.ErrDetached)
}

func TestCallQueuedWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(wsconn.StateDisconnected)
	c := NewClient(Config{})
	c.Attach(tr)

	done := startCall(t.Context(), c, "deferred")
	require.Eventually(t, func() bool { return c.QueuedCount() == 1 },
		time.Second, time.Millisecond)
	require.Zero(t, tr.sentCount())

	tr.setState(wsconn.StateConnected)
	c.FlushQueue()

	req := tr.request(t, 0)
	require.Equal(t, "deferred", req.Method)
	require.Zero(t, c.QueuedCount())

	c.Receive(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"result":"late but fine"}`, req.ID))

	r := awaitResult(t, done)
	require.NoError(t, r.err)
	s, ok := Decode[string](r.outcome)
	require.True(t, ok)
	require.Equal(t, "late but fine", s)
}

func TestFlushDropsStaleKeepsFresh(t *testing.T) {
	tr := newFakeTransport(wsconn.StateDisconnected)
	c := NewClient(Config{Staleness: 30 * time.Millisecond})
	c.Attach(tr)

	stale := startCall(t.Context(), c, "stale")
	require.Eventually(t, func() bool { return c.QueuedCount() == 1 },
		time.Second, time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	fresh := startCall(t.Context(), c, "fresh")
	require.Eventually(t, func() bool { return c.QueuedCount() == 2 },
		time.Second, time.Millisecond)

	tr.setState(wsconn.StateConnected)
	c.FlushQueue()

	r := awaitResult(t, stale)
	require.NoError(t, r.err)
	require.True(t, r.outcome.Cancelled)

	req := tr.request(t, 0)
	require.Equal(t, "fresh", req.Method)
	require.Equal(t, 1, tr.sentCount())

	c.Receive(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"result":true}`, req.ID))
	require.NoError(t, awaitResult(t, fresh).err)
}

func TestResetFailsEverything(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	inFlight := startCall(t.Context(), c, "inFlight")
	tr.request(t, 0)

	tr.setState(wsconn.StateDisconnected)
	queued := startCall(t.Context(), c, "queued")
	require.Eventually(t, func() bool { return c.QueuedCount() == 1 },
		time.Second, time.Millisecond)

	c.Reset()

	require.ErrorIs(t, awaitResult(t, inFlight).err, exception.ErrConnectionReset)
	require.ErrorIs(t, awaitResult(t, queued).err, exception.ErrConnectionReset)
	require.Zero(t, c.PendingCount())
	require.Zero(t, c.QueuedCount())

	_, err := c.Call(t.Context(), "after", nil)
	require.ErrorIs(t, err, exception.ErrDetached)
}

func TestCancelWrite(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	done := make(chan callResult, 1)
	go func() {
		o, err := c.CallWrite(t.Context(), "commit", map[string]int{"rev": 7})
		done <- callResult{outcome: o, err: err}
	}()
	req := tr.request(t, 0)

	require.True(t, c.CancelWrite())

	r := awaitResult(t, done)
	require.NoError(t, r.err)
	require.True(t, r.outcome.Cancelled)

	// The out-of-band cancel notice references the cancelled id.
	notice := tr.request(t, 1)
	require.Equal(t, "cancel", notice.Method)
	params, ok := notice.Params.(map[string]any)
	require.True(t, ok)
	require.Equal(t, req.ID, params["id"])

	// Nothing left to cancel.
	require.False(t, c.CancelWrite())
}

func TestCancelWriteClearedByResolution(t *testing.T) {
	tr := newFakeTransport(wsconn.StateConnected)
	c := NewClient(Config{})
	c.Attach(tr)

	done := make(chan callResult, 1)
	go func() {
		o, err := c.CallWrite(t.Context(), "commit", nil)
		done <- callResult{outcome: o, err: err}
	}()
	req := tr.request(t, 0)

	c.Receive(fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%q,"result":"done"}`, req.ID))
	require.NoError(t, awaitResult(t, done).err)

	require.False(t, c.CancelWrite())
	require.Equal(t, 1, tr.sentCount())
}

func TestProcessReceivedTokens(t *testing.T) {
	c := NewClient(Config{})

	for _, payload := range []string{"pong", "ping", " pong\n"} {
		n, err := c.ProcessReceived([]byte(payload))
		assert.NoError(t, err, payload)
		assert.Nil(t, n, payload)
	}
}

func TestProcessReceivedRejectsMalformed(t *testing.T) {
	c := NewClient(Config{})

	for name, payload := range map[string]string{
		"not json":        "hello world",
		"missing marker":  `{"id":"1","result":true}`,
		"broken json":     `{"jsonrpc":"2.0","id":`,
		"wrong version":   `{"jsonrpc":"1.0","id":"1","result":true}`,
		"no id no method": `{"jsonrpc":"2.0","result":true}`,
	} {
		_, err := c.ProcessReceived([]byte(payload))
		assert.ErrorIs(t, err, exception.ErrParse, name)
	}
}

func TestProcessReceivedUnmatchedID(t *testing.T) {
	c := NewClient(Config{})
	n, err := c.ProcessReceived([]byte(`{"jsonrpc":"2.0","id":"x","result":true}`))
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestReceiveDispatchesNotification(t *testing.T) {
	d := NewDispatcher()
	c := NewClient(Config{Dispatcher: d})

	got := make(chan json.RawMessage, 1)
	d.Register("priceUpdate", func(params json.RawMessage) { got <- params })

	c.Receive([]byte(`{"jsonrpc":"2.0","method":"priceUpdate","params":{"px":42}}`))

	select {
	case params := <-got:
		require.JSONEq(t, `{"px":42}`, string(params))
	case <-time.After(time.Second):
		t.Fatal("notification never dispatched")
	}
}

func TestDecodeOutcome(t *testing.T) {
	v, ok := Decode[int](Outcome{Result: json.RawMessage(`7`)})
	require.True(t, ok)
	require.Equal(t, 7, v)

	_, ok = Decode[int](Outcome{Cancelled: true})
	require.False(t, ok)

	_, ok = Decode[int](Outcome{Result: json.RawMessage(`"nope"`)})
	require.False(t, ok)
}
