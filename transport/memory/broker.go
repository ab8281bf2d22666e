// Package memory is an in-process broker implementing transport.Port.
// Every destination has fanout semantics: each subscriber gets its own
// mailbox and delivery goroutine, so a published message reaches all
// current subscribers and a destination with none silently drops it —
// the same contract a real broker exposes to the core. Intended for
// tests and single-process embedding.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/crossmq/crossmq/transport"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("broker is closed")

const mailboxSize = 64

type subscription struct {
	mailbox *Channel[string]
	fn      transport.MessageFunc
}

// Broker is a shared in-process message broker. Multiple nodes use one
// Broker as their transport to talk to each other.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewBroker creates a running broker. A nil logger falls back to
// slog.Default.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		subs:   make(map[string][]*subscription),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Publish enqueues the payload to every current subscriber of the
// destination. No subscribers means the message is dropped, not an
// error.
func (b *Broker) Publish(destination, payload string) error {
	b.mu.RLock()
	if b.ctx.Err() != nil {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*subscription, len(b.subs[destination]))
	copy(subs, b.subs[destination])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.mailbox.Send(b.ctx, payload); err != nil {
			return ErrClosed
		}
	}
	return nil
}

// Subscribe registers fn for the destination and starts its delivery
// goroutine. Messages within one subscription are delivered one at a
// time; separate subscriptions deliver concurrently.
func (b *Broker) Subscribe(destination string, fn transport.MessageFunc) error {
	sub := &subscription{
		mailbox: NewChannel[string](b.ctx, mailboxSize),
		fn:      fn,
	}

	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return ErrClosed
	}
	b.subs[destination] = append(b.subs[destination], sub)
	b.mu.Unlock()

	go b.deliver(destination, sub)
	return nil
}

// Close stops delivery and fails subsequent publishes.
func (b *Broker) Close() {
	b.cancel()
}

func (b *Broker) deliver(destination string, sub *subscription) {
	for {
		payload, err := sub.mailbox.Receive(b.ctx)
		if err != nil {
			return
		}
		sub.fn(payload)
	}
}

var _ transport.Port = (*Broker)(nil)
