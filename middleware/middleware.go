// Package middleware intercepts messages on a node's send and receive
// paths. A chain runs its hooks in priority order; any hook may rewrite
// the message or cancel it entirely, and a panicking hook is isolated
// so the rest of the chain still runs.
package middleware

import (
	"log/slog"

	"github.com/crossmq/crossmq/message"
)

// Middleware intercepts outbound payloads and inbound messages.
type Middleware interface {
	// BeforeSend may rewrite the outbound wire payload. Returning
	// ok=false cancels the send; nothing is published.
	BeforeSend(payload string) (string, bool)

	// AfterReceive may rewrite the inbound message before it reaches
	// the router. Returning ok=false drops the message; no handler
	// runs and no pending request is resolved by it.
	AfterReceive(resp *message.Response) (*message.Response, bool)

	// Priority orders the chain. Higher priority runs first.
	Priority() int
}

// Logging returns a middleware that logs a prefix of every message in
// both directions. It registers with a very low priority so it observes
// the chain's final form.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingMiddleware{logger: logger}
}

const logPreviewLen = 100

type loggingMiddleware struct {
	logger *slog.Logger
}

func (m *loggingMiddleware) BeforeSend(payload string) (string, bool) {
	m.logger.Info("sending message", slog.String("payload", preview(payload)))
	return payload, true
}

func (m *loggingMiddleware) AfterReceive(resp *message.Response) (*message.Response, bool) {
	m.logger.Info("received message", slog.String("payload", preview(resp.Raw())))
	return resp, true
}

func (m *loggingMiddleware) Priority() int { return -1000 }

func preview(payload string) string {
	if len(payload) > logPreviewLen {
		return payload[:logPreviewLen]
	}
	return payload
}

// Filter returns a middleware that cancels any message whose wire text
// fails the predicate, in both directions.
func Filter(keep func(payload string) bool) Middleware {
	return &filterMiddleware{keep: keep}
}

type filterMiddleware struct {
	keep func(string) bool
}

func (m *filterMiddleware) BeforeSend(payload string) (string, bool) {
	return payload, m.keep(payload)
}

func (m *filterMiddleware) AfterReceive(resp *message.Response) (*message.Response, bool) {
	return resp, m.keep(resp.Raw())
}

func (m *filterMiddleware) Priority() int { return 0 }

// Transform returns a middleware that rewrites the wire text in both
// directions. On the receive path the transformed text is re-parsed; a
// transform that yields invalid JSON leaves the message unchanged.
func Transform(fn func(payload string) string) Middleware {
	return &transformMiddleware{fn: fn}
}

type transformMiddleware struct {
	fn func(string) string
}

func (m *transformMiddleware) BeforeSend(payload string) (string, bool) {
	return m.fn(payload), true
}

func (m *transformMiddleware) AfterReceive(resp *message.Response) (*message.Response, bool) {
	transformed, err := message.Parse(m.fn(resp.Raw()))
	if err != nil {
		return resp, true
	}
	return transformed, true
}

func (m *transformMiddleware) Priority() int { return 0 }
