package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a call is issued with no active connection.
	ErrNotConnected = errors.New("bridge not connected")
	// ErrTimeout is returned when the wallet does not answer within the request window.
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionClosed rejects requests whose owning connection went away.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBridgeDisconnected rejects requests still pending when the bridge shuts down.
	ErrBridgeDisconnected = errors.New("bridge disconnected")
	// ErrSuperseded rejects requests answered by a connection that is no longer active.
	ErrSuperseded = errors.New("superseded connection")
)

// ProviderError carries a JSON-RPC error returned by the wallet provider.
// Code and message are propagated intact so callers can tell a user
// rejection apart from other failures.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet provider error %d: %s", e.Code, e.Message)
}
