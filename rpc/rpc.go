// Package rpc layers named remote procedures over the request/response
// core. The callee registers procedures by name and replies to the
// caller's reply queue with a plain one-way publish; the caller issues
// a correlated request naming the target procedure.
package rpc

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/crossmq/crossmq/message"
	"github.com/crossmq/crossmq/request"
	"github.com/crossmq/crossmq/router"
)

// Node is the slice of the node API the RPC layer needs.
type Node interface {
	On(action string, handler router.Handler)
	Request() *request.Builder
	PublishTo(destination, payload string) error
}

// ProcedureFunc handles one remote invocation. The returned value
// crosses the wire as its string form; a non-nil error becomes an
// error response carrying the error message.
type ProcedureFunc func(req *Request) (any, error)

// RPC is a named-procedure registry bound to a pair of actions: one
// for calls, one for responses.
type RPC struct {
	node           Node
	callAction     string
	responseAction string
	logger         *slog.Logger

	mu         sync.RWMutex
	procedures map[string]ProcedureFunc
}

// New creates an RPC layer with the given call and response action
// names and registers its dispatch handler on the node's router.
func New(n Node, callAction, responseAction string, logger *slog.Logger) *RPC {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RPC{
		node:           n,
		callAction:     callAction,
		responseAction: responseAction,
		logger:         logger,
		procedures:     make(map[string]ProcedureFunc),
	}
	n.On(callAction, r.handleCall)
	// Responses correlate through the reply's taskID; this keeps the
	// router from warning about an unhandled response action.
	n.On(responseAction, func(*message.Response) {})
	return r
}

// Register adds a procedure, replacing any existing one with the same
// name. Procedure names are case-sensitive.
func (r *RPC) Register(name string, fn ProcedureFunc) *RPC {
	r.mu.Lock()
	r.procedures[name] = fn
	r.mu.Unlock()
	return r
}

// Unregister removes a procedure.
func (r *RPC) Unregister(name string) *RPC {
	r.mu.Lock()
	delete(r.procedures, name)
	r.mu.Unlock()
	return r
}

// HasProcedure reports whether a procedure is registered.
func (r *RPC) HasProcedure(name string) bool {
	r.mu.RLock()
	_, ok := r.procedures[name]
	r.mu.RUnlock()
	return ok
}

// ProcedureCount returns the number of registered procedures.
func (r *RPC) ProcedureCount() int {
	r.mu.RLock()
	n := len(r.procedures)
	r.mu.RUnlock()
	return n
}

// Call starts a call to a procedure hosted on the given server
// (a channel registered on the node).
func (r *RPC) Call(server, procedure string) *CallBuilder {
	return &CallBuilder{
		rpc:       r,
		server:    server,
		procedure: procedure,
		args:      make(map[string]any),
	}
}

// handleCall dispatches an inbound call envelope. An unknown procedure
// sends no response at all — the caller observes a timeout. This is
// deliberate: a missing procedure is indistinguishable from a missing
// server, while a procedure that fails reports its error.
func (r *RPC) handleCall(msg *message.Response) {
	procedure := msg.String("procedure")
	callID := msg.Int("callId")
	replyTo := msg.String(message.FieldReplyTo)

	r.mu.RLock()
	fn, ok := r.procedures[procedure]
	r.mu.RUnlock()
	if !ok {
		return
	}

	result, err := r.invoke(fn, NewRequest(msg))

	b := message.NewMessage(r.responseAction).
		Add("callId", callID).
		Add(message.FieldTaskID, callID)
	if err != nil {
		b.Add("success", false).Add("error", err.Error())
	} else {
		b.Add("success", true).Add("result", stringify(result))
	}

	payload, berr := b.Build()
	if berr != nil {
		r.logger.Error("failed to build rpc response",
			slog.String("procedure", procedure),
			slog.String("error", berr.Error()))
		return
	}
	if perr := r.node.PublishTo(replyTo, payload); perr != nil {
		r.logger.Error("failed to publish rpc response",
			slog.String("procedure", procedure),
			slog.String("replyTo", replyTo),
			slog.String("error", perr.Error()))
	}
}

// invoke runs the procedure, converting a panic into an error response
// so one bad procedure cannot kill the dispatch goroutine.
func (r *RPC) invoke(fn ProcedureFunc, req *Request) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("procedure panicked: %v", v)
		}
	}()
	return fn(req)
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// CallBuilder accumulates arguments for one remote call.
type CallBuilder struct {
	rpc       *RPC
	server    string
	procedure string
	args      map[string]any
	timeout   time.Duration
}

// Arg adds a named argument.
func (b *CallBuilder) Arg(key string, value any) *CallBuilder {
	b.args[key] = value
	return b
}

// Timeout sets the call deadline. Required; there is no default.
func (b *CallBuilder) Timeout(d time.Duration) *CallBuilder {
	b.timeout = d
	return b
}

// Execute sends the call. The request travels through the correlation
// engine; the same id is exposed to the callee as callId.
func (b *CallBuilder) Execute() (*Future, error) {
	id := request.NewTaskID()
	fut, err := b.rpc.node.Request().
		Action(b.rpc.callAction).
		TaskID(id).
		Param("procedure", b.procedure).
		Param("callId", id).
		Params(b.args).
		Timeout(b.timeout).
		SendTo(b.server)
	if err != nil {
		return nil, err
	}
	return &Future{inner: fut}, nil
}

// Future wraps the underlying request future with RPC-typed results.
type Future struct {
	inner *request.Future
}

// Wait blocks until the call resolves.
func (f *Future) Wait() (*Response, error) {
	resp, err := f.inner.Wait()
	if err != nil {
		return nil, err
	}
	return &Response{msg: resp}, nil
}

// Done returns a channel closed on resolution.
func (f *Future) Done() <-chan struct{} { return f.inner.Done() }

// Request is the callee-side view of a call's arguments.
type Request struct {
	msg *message.Response
}

func NewRequest(msg *message.Response) *Request { return &Request{msg: msg} }

func (r *Request) String(key string) string { return r.msg.String(key) }
func (r *Request) Int(key string) int       { return r.msg.Int(key) }
func (r *Request) Int64(key string) int64   { return r.msg.Int64(key) }
func (r *Request) Float(key string) float64 { return r.msg.Float(key) }
func (r *Request) Bool(key string) bool     { return r.msg.Bool(key) }
func (r *Request) Has(key string) bool      { return r.msg.Has(key) }

// Message exposes the raw envelope.
func (r *Request) Message() *message.Response { return r.msg }

// Response is the caller-side view of a call's outcome. Results cross
// the wire as strings; the typed accessors parse with a fall-back-to-
// zero policy rather than raising parse errors.
type Response struct {
	msg *message.Response
}

// IsSuccess reports whether the procedure ran and returned normally.
// False for error responses and for locally synthesized timeouts.
func (r *Response) IsSuccess() bool { return r.msg.Bool("success") }

// IsTimeout reports whether the call timed out (including the
// missing-procedure case, which never responds).
func (r *Response) IsTimeout() bool { return r.msg.Status().IsTimeout() }

// GetError returns the error message from a failed procedure.
func (r *Response) GetError() string { return r.msg.String("error") }

// GetResult returns the raw string result.
func (r *Response) GetResult() string { return r.msg.String("result") }

// GetResultAsInt parses the result as an int, returning 0 on failure.
func (r *Response) GetResultAsInt() int {
	n, err := strconv.Atoi(r.GetResult())
	if err != nil {
		return 0
	}
	return n
}

// GetResultAsInt64 parses the result as an int64, returning 0 on failure.
func (r *Response) GetResultAsInt64() int64 {
	n, err := strconv.ParseInt(r.GetResult(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// GetResultAsFloat parses the result as a float64, returning 0 on failure.
func (r *Response) GetResultAsFloat() float64 {
	f, err := strconv.ParseFloat(r.GetResult(), 64)
	if err != nil {
		return 0
	}
	return f
}

// GetResultAsBool parses the result as a bool, returning false on failure.
func (r *Response) GetResultAsBool() bool {
	b, err := strconv.ParseBool(r.GetResult())
	if err != nil {
		return false
	}
	return b
}

// Message exposes the raw envelope.
func (r *Response) Message() *message.Response { return r.msg }
