package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("chat: server already started")

	// ErrServerStopped is returned by Start and Attach once the server is stopping or stopped.
	ErrServerStopped = errors.New("chat: server stopped")

	// ErrDuplicateClient indicates a client id collision in the registry.
	ErrDuplicateClient = errors.New("chat: duplicate client id")
)

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("chat: listen %q: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ClientError describes a failed read or write on a single client socket.
type ClientError struct {
	Op       string
	ClientID string
	Err      error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("chat: client %s %s: %v", e.ClientID, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }
