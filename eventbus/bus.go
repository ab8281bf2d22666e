// Package eventbus is a typed cross-node event bus over a fanout
// exchange: every subscribed node receives every dispatched event and
// routes it to listeners registered for its event type.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/crossmq/crossmq/message"
	"github.com/crossmq/crossmq/router"
)

// Node is the slice of the node API the bus needs.
type Node interface {
	On(action string, handler router.Handler)
	AddExchange(name, exchange string)
	Subscribe(destination string) error
	Send(channel, payload string) error
	ServerName() string
}

// Listener consumes one received event.
type Listener func(*Event)

// Bus dispatches events to the network and fans received events out to
// local listeners, in registration order per event type.
type Bus struct {
	node      Node
	server    string
	exchange  string
	action    string
	ignoreOwn bool
	logger    *slog.Logger

	mu        sync.RWMutex
	listeners map[string][]Listener
}

// New creates a Bus on the given fanout exchange and event action,
// subscribes the node to the exchange, and registers the inbound
// handler. With ignoreOwn set, events this node dispatched are dropped
// on receipt before any listener runs.
func New(n Node, exchange, action string, ignoreOwn bool, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		node:      n,
		server:    n.ServerName(),
		exchange:  exchange,
		action:    action,
		ignoreOwn: ignoreOwn,
		logger:    logger,
		listeners: make(map[string][]Listener),
	}

	n.AddExchange(exchange, exchange)
	if err := n.Subscribe(exchange); err != nil {
		return nil, fmt.Errorf("subscribe event exchange %s: %w", exchange, err)
	}
	n.On(action, b.handleIncoming)
	return b, nil
}

// On registers a listener for an event type. Multiple listeners per
// type are allowed and run in registration order.
func (b *Bus) On(eventType string, listener Listener) *Bus {
	b.mu.Lock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
	b.mu.Unlock()
	return b
}

// Unregister removes all listeners for an event type.
func (b *Bus) Unregister(eventType string) *Bus {
	b.mu.Lock()
	delete(b.listeners, eventType)
	b.mu.Unlock()
	return b
}

// ListenerCount returns the number of listeners for an event type.
func (b *Bus) ListenerCount(eventType string) int {
	b.mu.RLock()
	n := len(b.listeners[eventType])
	b.mu.RUnlock()
	return n
}

// TotalListeners returns the number of listeners across all types.
func (b *Bus) TotalListeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, ls := range b.listeners {
		total += len(ls)
	}
	return total
}

// Clear removes every listener.
func (b *Bus) Clear() *Bus {
	b.mu.Lock()
	b.listeners = make(map[string][]Listener)
	b.mu.Unlock()
	return b
}

// Dispatch serializes the event and broadcasts it on the bus exchange.
func (b *Bus) Dispatch(event *Event) error {
	payload, err := message.NewMessage(b.action).
		Add("eventType", event.Type()).
		Add("eventId", event.ID()).
		Add("sourceServer", event.Source()).
		Add("timestamp", event.Timestamp()).
		Add("cancelled", event.Cancelled()).
		Add("data", event.Data()).
		Build()
	if err != nil {
		return err
	}
	return b.node.Send(b.exchange, payload)
}

func (b *Bus) handleIncoming(msg *message.Response) {
	eventType := msg.String("eventType")
	sourceServer := msg.String("sourceServer")

	if b.ignoreOwn && sourceServer == b.server {
		return
	}

	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners[eventType]))
	copy(listeners, b.listeners[eventType])
	b.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	event := &Event{
		id:        msg.String("eventId"),
		eventType: eventType,
		source:    sourceServer,
		timestamp: msg.Int64("timestamp"),
		cancelled: msg.Bool("cancelled"),
		data:      msg.MapOr("data", message.Envelope{}),
	}

	for _, listener := range listeners {
		b.invoke(eventType, listener, event)
	}
}

// invoke runs one listener with panic isolation so a throwing listener
// cannot prevent its siblings from running.
func (b *Bus) invoke(eventType string, listener Listener, event *Event) {
	defer func() {
		if v := recover(); v != nil {
			b.logger.Error("error in event listener",
				slog.String("eventType", eventType),
				slog.Any("panic", v))
		}
	}()
	listener(event)
}
