package realtime

// Conn is one live client connection. The protocol front-end owns the
// socket; this package only needs identity, delivery, and liveness.
type Conn interface {
	// ID is the connection's unique identifier.
	ID() string

	// Send delivers a frame to the client. Implementations must not
	// block indefinitely; a send failure means the connection is dead.
	Send(payload []byte) error

	// Ping asks the client for a liveness response.
	Ping() error

	// Close tears the connection down.
	Close() error
}
