package exception

import "errors"

// RPC errors
var (
	// ErrParse is returned when an inbound frame is malformed or missing the protocol marker.
	ErrParse = errors.New("rpc: parse error")

	// ErrRequestTimeout rejects a pending request that received no response in time.
	ErrRequestTimeout = errors.New("rpc: request timed out")

	// ErrConnectionReset rejects every outstanding request when the target endpoint changes.
	ErrConnectionReset = errors.New("rpc: connection reset")

	// ErrDetached is returned when calling without an attached connection.
	ErrDetached = errors.New("rpc: no connection attached")

	ErrNilInstance = errors.New("rpc: nil instance")
)
