package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command needs an open transport.
	ErrNotConnected = errors.New("session is not connected")
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("session is disposed")
	// ErrInvalidOption is returned for option keys or values that cannot be sent.
	ErrInvalidOption = errors.New("invalid option")
)

// TransportError wraps a socket-level failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReconnectExhaustedError is surfaced when the session gives up and enters the failed state.
type ReconnectExhaustedError struct {
	Attempts int
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("unable to reconnect after %d attempts", e.Attempts)
}

// PeerError is a failure reported by the analysis peer.
type PeerError struct {
	Message string
}

func (e *PeerError) Error() string {
	return "peer: " + e.Message
}
