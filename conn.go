package softdevice

import (
	"context"
)

// Conn represents the live link to one connected peer. It is created by
// the radio on connection establishment, becomes unusable after
// disconnect, and is never persisted.
type Conn interface {
	// Context returns the context that is used by this Conn.
	Context() context.Context

	// SetContext sets the context that is used by this Conn.
	SetContext(ctx context.Context)

	// LocalAddr returns the local device's address.
	LocalAddr() Address

	// PeerAddr returns the remote device's address as reported for this
	// connection event.
	PeerAddr() Address

	// Disconnected returns a receiving channel, which is closed when the
	// connection disconnects.
	Disconnected() <-chan struct{}
}
