package request

import (
	"errors"
	"log/slog"
	"time"

	"github.com/crossmq/crossmq/message"
)

// ErrNoTimeout is returned by SendTo when no explicit timeout was set.
// There is no default: the caller owns the latency/availability
// tradeoff.
var ErrNoTimeout = errors.New("request requires an explicit timeout")

// slowRequestThreshold is the elapsed time above which a completed
// request is logged. Observability only, not a correctness contract.
const slowRequestThreshold = 100 * time.Millisecond

// SendFunc publishes a payload to a destination. Implementations may
// block; the builder always calls it off the caller's goroutine.
type SendFunc func(destination, payload string) error

// Builder constructs and sends a request/response call. Obtain one per
// request; builders are not safe for concurrent use and must not be
// reused after SendTo.
type Builder struct {
	send    SendFunc
	tracker *Tracker
	replyTo string
	logger  *slog.Logger

	msg     *message.Builder
	taskID  int
	timeout time.Duration
}

// NewBuilder creates a request builder wired to the correlation engine
// and the node's send path. replyTo is the caller's own inbound queue,
// stamped on every request so the responder knows where to publish.
func NewBuilder(send SendFunc, tracker *Tracker, replyTo string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		send:    send,
		tracker: tracker,
		replyTo: replyTo,
		logger:  logger,
		msg:     message.NewBuilder(),
		taskID:  NewTaskID(),
	}
}

// Action sets the request's action.
func (b *Builder) Action(action string) *Builder {
	b.msg.Action(action)
	return b
}

// Param adds a parameter. Non-scalar values are round-tripped through
// the JSON codec.
func (b *Builder) Param(key string, value any) *Builder {
	b.msg.Add(key, value)
	return b
}

// ParamIf adds the parameter only when cond is true.
func (b *Builder) ParamIf(cond bool, key string, value any) *Builder {
	b.msg.AddIf(cond, key, value)
	return b
}

// Params adds every entry of the map as a parameter.
func (b *Builder) Params(params map[string]any) *Builder {
	b.msg.AddAll(params)
	return b
}

// Timeout sets the deadline for the reply. Required.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// TaskID overrides the generated correlation id.
func (b *Builder) TaskID(id int) *Builder {
	b.taskID = id
	return b
}

// Data returns the envelope under construction.
func (b *Builder) Data() message.Envelope { return b.msg.Data() }

// SendTo stamps the envelope with taskID and replyTo, registers the
// pending outcome, publishes, and arms the timeout. It never blocks;
// the returned future resolves with exactly one of reply, timeout, or
// send failure.
func (b *Builder) SendTo(destination string) (*Future, error) {
	if b.timeout <= 0 {
		return nil, ErrNoTimeout
	}

	b.msg.Add(message.FieldTaskID, b.taskID)
	b.msg.Add(message.FieldReplyTo, b.replyTo)
	payload, err := b.msg.Build()
	if err != nil {
		return nil, err
	}

	fut := b.tracker.Register(b.taskID)
	start := time.Now()

	taskID := b.taskID
	send := b.send
	go func() {
		if err := send(destination, payload); err != nil {
			b.tracker.Fail(taskID, err)
		}
	}()

	b.tracker.ScheduleTimeout(taskID, b.timeout)

	actionName, _ := b.msg.Data()[message.FieldAction].(string)
	logger := b.logger
	go func() {
		<-fut.Done()
		if elapsed := time.Since(start); elapsed > slowRequestThreshold {
			logger.Info("request completed",
				slog.String("action", actionName),
				slog.Int("taskID", taskID),
				slog.Duration("elapsed", elapsed))
		}
	}()

	return fut, nil
}
