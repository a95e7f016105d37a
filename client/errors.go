package client

import (
	"errors"
	"fmt"
)

var (
	ErrAuthDenied       = errors.New("authentication denied")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrConnectionClosed = errors.New("connection closed")
	ErrPayloadTooLarge  = errors.New("payload too large")

	ErrIDInUse   = errors.New("request id already pending")
	ErrUnknownID = errors.New("no pending response for request id")
	ErrRetiredID = errors.New("request id already delivered")
)

// AuthError is a protocol level rejection. The caller may recover with a
// fresh login on a new connection; it is never retried automatically.
type AuthError struct {
	Err error // ErrAuthDenied or ErrNotAuthenticated
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError is a failure of the underlying stream. It is fatal to the connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
