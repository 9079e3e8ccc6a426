package signalhub

import "speakmatch/backend/internal/models"

// Client is the interface for one live connection.
// It abstracts the underlying communication mechanism so the hub only ever
// deals with opaque transport IDs and send channels.
type Client interface {
	// GetTransportID returns the opaque identifier of this connection.
	GetTransportID() string
	// GetUserID returns the authenticated anonymous user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel the Registry pushes events into.
	// It is a send-only channel.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the send channel. The Registry calls it exactly once,
	// when the transport is unregistered.
	Close()
}
