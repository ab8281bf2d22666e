package memory

import "context"

// Channel is a context-aware buffered channel used as a subscription
// mailbox inside the in-memory broker.
type Channel[T any] struct {
	channel chan T
	context context.Context
}

func NewChannel[T any](ctx context.Context, bufferSize int) *Channel[T] {
	return &Channel[T]{
		channel: make(chan T, bufferSize),
		context: ctx,
	}
}

func (c *Channel[T]) Send(ctx context.Context, message T) error {
	select {
	case c.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.context.Done():
		return c.context.Err()
	}
}

func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	select {
	case message := <-c.channel:
		return message, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-c.context.Done():
		var zero T
		return zero, c.context.Err()
	}
}
