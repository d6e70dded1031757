package chat

import "time"

// EventKind identifies a server notification.
type EventKind int

const (
	_ EventKind = iota
	// EventConnected follows registration of an accepted client.
	EventConnected
	// EventMessage carries one line read from a client.
	EventMessage
	// EventDisconnected follows client teardown.
	EventDisconnected
	// EventServerMessage carries a lifecycle status line.
	EventServerMessage
	// EventServerError carries a non-fatal failure.
	EventServerError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	case EventServerMessage:
		return "server-message"
	case EventServerError:
		return "server-error"
	default:
		return "unknown"
	}
}

// Event is a single notification published to subscribers.
type Event struct {
	Kind       EventKind
	ClientID   string
	RemoteAddr string
	Text       string
	Err        error
	Time       time.Time
}
