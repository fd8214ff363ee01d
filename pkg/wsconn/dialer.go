package wsconn

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/yanun0323/errors"
)

const (
	DefaultDialTimeout = 10 * time.Second
)

type dialer struct {
	url         string
	httpClient  *http.Client
	dialTimeout time.Duration
}

// NewDialer creates a Dialer for a single fixed WebSocket endpoint.
func NewDialer(url string) Dialer {
	return &dialer{
		url:         url,
		httpClient:  http.DefaultClient,
		dialTimeout: DefaultDialTimeout,
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	c, _, err := websocket.Dial(dialCtx, d.url, &websocket.DialOptions{
		HTTPClient: d.httpClient,
	})
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket").With("url", d.url)
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, payload, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if msgType != websocket.MessageText {
			continue
		}
		return payload, nil
	}
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) Close(code CloseCode, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
