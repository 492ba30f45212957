// Package bridge relays room broadcasts between server instances so
// members of the same room connected to different instances see the same
// traffic.
package bridge

import "github.com/roomcast/server/src/types"

// Bridge is a cross-instance broadcast relay.
type Bridge interface {
	// Publish sends a room payload to all other instances.
	Publish(roomID int, p types.Payload) error

	// Start begins listening for payloads from other instances.
	Start() error

	// Stop shuts down the relay.
	Stop() error

	// Available reports whether the relay is connected and operational.
	Available() bool
}

// RelayTarget is implemented by the server to receive relayed payloads.
type RelayTarget interface {
	DeliverLocal(roomID int, p types.Payload)
}
