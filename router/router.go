// Package router dispatches inbound envelopes to registered action
// handlers. Envelopes carrying a taskID are additionally handed to the
// correlation completer; taskID and action are independent routing
// signals and both paths run when both fields are present.
package router

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/crossmq/crossmq/message"
)

// Handler consumes a routed message.
type Handler func(*message.Response)

// ErrorHandler is the sink for routing and handler failures.
type ErrorHandler func(error)

// Completer resolves a pending request by correlation id. Complete
// reports whether an entry was still pending and got resolved.
type Completer interface {
	Complete(taskID int, response *message.Response) bool
}

// ParseError wraps a malformed inbound message. The message is dropped
// and reported, never retried.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// HandlerFault reports a handler that panicked. The fault is confined
// to that one dispatch; the router keeps routing.
type HandlerFault struct {
	Action string
	Value  any
}

func (e *HandlerFault) Error() string {
	return fmt.Sprintf("handler for action %q panicked: %v", e.Action, e.Value)
}

// Router matches an envelope's action to a handler, with a default
// handler for unmatched actions and an error sink for failures. It is
// long-lived and must survive handler bugs.
// Interceptor runs on every parsed inbound message before dispatch. It
// may rewrite the message; returning ok=false drops it.
type Interceptor func(*message.Response) (*message.Response, bool)

type Router struct {
	mu             sync.RWMutex
	handlers       map[string]Handler
	defaultHandler Handler
	errorHandler   ErrorHandler
	completer      Completer
	interceptor    Interceptor
	logger         *slog.Logger
}

// New creates a Router. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// On registers a handler for an action, replacing any previous handler
// for the same action. Actions are case-insensitive.
func (r *Router) On(action string, handler Handler) *Router {
	r.mu.Lock()
	r.handlers[strings.ToLower(action)] = handler
	r.mu.Unlock()
	return r
}

// OnDefault registers the fallback handler for unmatched actions and
// for envelopes carrying neither action nor taskID.
func (r *Router) OnDefault(handler Handler) *Router {
	r.mu.Lock()
	r.defaultHandler = handler
	r.mu.Unlock()
	return r
}

// OnError registers the error sink.
func (r *Router) OnError(handler ErrorHandler) *Router {
	r.mu.Lock()
	r.errorHandler = handler
	r.mu.Unlock()
	return r
}

// SetCompleter binds the correlation engine that receives envelopes
// carrying a taskID.
func (r *Router) SetCompleter(c Completer) {
	r.mu.Lock()
	r.completer = c
	r.mu.Unlock()
}

// SetInterceptor installs the pre-dispatch hook. Route applies it to
// every successfully parsed message.
func (r *Router) SetInterceptor(fn Interceptor) {
	r.mu.Lock()
	r.interceptor = fn
	r.mu.Unlock()
}

// Remove unregisters the handler for an action.
func (r *Router) Remove(action string) *Router {
	r.mu.Lock()
	delete(r.handlers, strings.ToLower(action))
	r.mu.Unlock()
	return r
}

// Clear drops all handlers, the default handler, and the error sink.
func (r *Router) Clear() *Router {
	r.mu.Lock()
	r.handlers = make(map[string]Handler)
	r.defaultHandler = nil
	r.errorHandler = nil
	r.mu.Unlock()
	return r
}

// HasHandler reports whether an action has a registered handler.
func (r *Router) HasHandler(action string) bool {
	r.mu.RLock()
	_, ok := r.handlers[strings.ToLower(action)]
	r.mu.RUnlock()
	return ok
}

// HandlerCount returns the number of registered action handlers.
func (r *Router) HandlerCount() int {
	r.mu.RLock()
	n := len(r.handlers)
	r.mu.RUnlock()
	return n
}

// Route parses a raw wire message, applies the interceptor, and
// dispatches. Malformed messages go to the error sink and are dropped.
func (r *Router) Route(raw string) {
	resp, err := message.Parse(raw)
	if err != nil {
		r.reportError(&ParseError{Raw: raw, Err: err})
		return
	}

	r.mu.RLock()
	interceptor := r.interceptor
	r.mu.RUnlock()
	if interceptor != nil {
		next, ok := interceptor(resp)
		if !ok {
			return
		}
		resp = next
	}

	r.Dispatch(resp)
}

// Dispatch routes an already-parsed response:
//
//  1. an envelope with a taskID is handed to the completer,
//  2. an envelope with an action goes to its handler (or the default),
//  3. an envelope with neither goes to the default handler if set.
//
// Steps 1 and 2 are independent; an envelope carrying both fields runs
// both paths.
func (r *Router) Dispatch(resp *message.Response) {
	hasTask := resp.Has(message.FieldTaskID)
	if hasTask {
		r.mu.RLock()
		completer := r.completer
		r.mu.RUnlock()
		if completer != nil {
			completer.Complete(resp.Int(message.FieldTaskID), resp)
		}
	}

	if resp.Has(message.FieldAction) {
		action := strings.ToLower(resp.String(message.FieldAction))
		r.mu.RLock()
		handler, ok := r.handlers[action]
		fallback := r.defaultHandler
		r.mu.RUnlock()

		switch {
		case ok:
			r.invoke(action, handler, resp)
		case fallback != nil:
			r.invoke(action, fallback, resp)
		default:
			r.logger.Warn("no handler registered for action",
				slog.String("action", action))
		}
		return
	}

	if !hasTask {
		r.mu.RLock()
		fallback := r.defaultHandler
		r.mu.RUnlock()
		if fallback != nil {
			r.invoke("", fallback, resp)
		}
	}
}

// invoke runs a handler with panic isolation. No router lock is held
// here, so a slow handler cannot block registration or other routing.
func (r *Router) invoke(action string, handler Handler, resp *message.Response) {
	defer func() {
		if v := recover(); v != nil {
			r.reportError(&HandlerFault{Action: action, Value: v})
		}
	}()
	handler(resp)
}

func (r *Router) reportError(err error) {
	r.mu.RLock()
	sink := r.errorHandler
	r.mu.RUnlock()
	if sink != nil {
		sink(err)
		return
	}
	r.logger.Error("error processing message", slog.String("error", err.Error()))
}
