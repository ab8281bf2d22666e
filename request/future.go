package request

import (
	"context"

	"github.com/crossmq/crossmq/message"
)

// Future is the pending outcome of a request. It resolves exactly once,
// with either a response (a reply off the wire, or a locally
// synthesized timeout) or an error (the publish itself failed).
type Future struct {
	done chan struct{}
	resp *message.Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve must only be called once; the tracker's atomic take on the
// pending table guarantees a single caller.
func (f *Future) resolve(resp *message.Response, err error) {
	f.resp = resp
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the future resolves. Awaiting it
// is always optional.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until resolution. Every future resolves eventually: a
// request without a reply resolves when its timeout fires.
func (f *Future) Wait() (*message.Response, error) {
	<-f.done
	return f.resp, f.err
}

// WaitContext blocks until resolution or context cancellation.
func (f *Future) WaitContext(ctx context.Context) (*message.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Response returns the resolved response, or nil while still pending
// (and after a send failure).
func (f *Future) Response() *message.Response {
	select {
	case <-f.done:
		return f.resp
	default:
		return nil
	}
}
