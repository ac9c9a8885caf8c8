package remote

import (
	"errors"
	"fmt"
)

// ErrAuthExpired means the remote service rejected the bearer token as expired
// or invalid. The token has already been cleared; the session needs a new login.
var ErrAuthExpired = errors.New("remote session expired, login required")

// ErrNetwork matches every NetworkError.
var ErrNetwork = errors.New("network unavailable")

// NetworkError means no response was received: offline, refused, or timed out.
type NetworkError struct {
	Method string
	Path   string
	Err    error

	// Queued is set when the request was handed to the retry queue.
	Queued bool
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network unavailable: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// RemoteError is a non-2xx response carrying the server's message verbatim.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned HTTP %d: %s", e.StatusCode, e.Message)
}

// errOffline is wrapped by the NetworkError returned when a call fails fast.
var errOffline = errors.New("offline")
