package wsrpc

import (
	"encoding/json"
	"sync"

	"github.com/yanun0323/logs"
)

// NotificationHandler consumes a server-initiated event's params.
type NotificationHandler func(params json.RawMessage)

// Dispatcher routes id-less inbound messages to handlers by method name.
// Unknown methods are logged and dropped so that older clients survive a
// newer server's new notification types.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]NotificationHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]NotificationHandler)}
}

// Register binds a handler to a notification method name, replacing any
// previous handler for that method.
func (d *Dispatcher) Register(method string, handler NotificationHandler) {
	if d == nil || method == "" || handler == nil {
		return
	}
	d.mu.Lock()
	d.handlers[method] = handler
	d.mu.Unlock()
}

// Dispatch routes one notification synchronously.
func (d *Dispatcher) Dispatch(n Notification) {
	if d == nil {
		return
	}
	d.mu.RLock()
	handler, ok := d.handlers[n.Method]
	d.mu.RUnlock()
	if !ok {
		logs.Warnf("unknown notification method dropped: %s", n.Method)
		return
	}
	handler(n.Params)
}
