// Package transport defines the narrow broker capability the core is
// built on. Connection lifecycle, TLS, and reconnection belong to the
// adapters behind this interface, not to the core.
package transport

// MessageFunc receives one delivered message. Delivery is unordered
// and possibly duplicated; the core must tolerate both.
type MessageFunc func(payload string)

// Port is the publish/consume capability of a message broker.
//
// Publish is at-least-once with no ordering guarantee; a nil error
// means "accepted by the broker", not "delivered". Subscribe invokes
// fn once per delivered message, on broker-managed goroutines.
type Port interface {
	Publish(destination, payload string) error
	Subscribe(destination string, fn MessageFunc) error
}
