package ports

import "context"

// TransportEventKind enumerates lifecycle signals emitted by a connection.
type TransportEventKind string

const (
	EventChallenge    TransportEventKind = "challenge"
	EventReady        TransportEventKind = "ready"
	EventDisconnected TransportEventKind = "disconnected"
	EventAuthFailure  TransportEventKind = "auth_failure"
	EventError        TransportEventKind = "error"
)

// TransportEvent is one lifecycle signal. Challenge is set for
// EventChallenge, Reason for EventDisconnected, Err for failures.
type TransportEvent struct {
	Kind      TransportEventKind
	Challenge string
	Reason    string
	Err       error
}

// Transport opens external messaging connections.
type Transport interface {
	Open(ctx context.Context, userID string) (Connection, error)
}

// Connection is a single live external connection. Events is closed once the
// connection is closed.
type Connection interface {
	Events() <-chan TransportEvent
	Send(ctx context.Context, to, body string) (messageID string, err error)
	Close(ctx context.Context) error
}
