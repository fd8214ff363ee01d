package exception

import "errors"

// Connection errors
var (
	// ErrNotOpen is returned when sending with queueing disabled while the socket is not open.
	ErrNotOpen = errors.New("connection: not open")

	// ErrDestroyed is returned when operating on a destroyed connection manager.
	ErrDestroyed = errors.New("connection: destroyed")

	// ErrConnectTimeout is returned when the socket does not report open within the configured window.
	ErrConnectTimeout = errors.New("connection: open timed out")

	// ErrPongTimeout force-closes the socket when no traffic arrives before the pong timer fires.
	ErrPongTimeout = errors.New("connection: pong timed out")

	ErrMaxAttemptsReached = errors.New("connection: max reconnect attempts reached")

	ErrNilDialer = errors.New("connection: nil dialer")
)
