package middleware

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/crossmq/crossmq/message"
)

// Chain holds an ordered set of middlewares and runs them over outbound
// payloads and inbound messages. Hooks run highest priority first; a
// hook returning ok=false cancels the message, and a panicking hook is
// reported and skipped, leaving the message as the previous hook left
// it.
type Chain struct {
	mu          sync.RWMutex
	middlewares []Middleware
	logger      *slog.Logger
}

// NewChain creates an empty chain. A nil logger falls back to
// slog.Default.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Add appends a middleware and re-sorts the chain by priority, higher
// first. Insertion order breaks ties.
func (c *Chain) Add(m Middleware) *Chain {
	c.mu.Lock()
	c.middlewares = append(c.middlewares, m)
	sort.SliceStable(c.middlewares, func(i, j int) bool {
		return c.middlewares[i].Priority() > c.middlewares[j].Priority()
	})
	c.mu.Unlock()
	return c
}

// Remove drops a previously added middleware.
func (c *Chain) Remove(m Middleware) *Chain {
	c.mu.Lock()
	for i, cur := range c.middlewares {
		if cur == m {
			c.middlewares = append(c.middlewares[:i], c.middlewares[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return c
}

// Count returns the number of middlewares in the chain.
func (c *Chain) Count() int {
	c.mu.RLock()
	n := len(c.middlewares)
	c.mu.RUnlock()
	return n
}

// Clear drops every middleware.
func (c *Chain) Clear() *Chain {
	c.mu.Lock()
	c.middlewares = nil
	c.mu.Unlock()
	return c
}

// ProcessSend runs the chain over an outbound payload. ok=false means a
// middleware cancelled the send.
func (c *Chain) ProcessSend(payload string) (string, bool) {
	current := payload
	for _, m := range c.snapshot() {
		next, ok := c.runSend(m, current)
		if !ok {
			c.logger.Info("message send cancelled by middleware")
			return "", false
		}
		current = next
	}
	return current, true
}

// ProcessReceive runs the chain over an inbound message. ok=false means
// a middleware dropped the message before routing.
func (c *Chain) ProcessReceive(resp *message.Response) (*message.Response, bool) {
	current := resp
	for _, m := range c.snapshot() {
		next, ok := c.runReceive(m, current)
		if !ok {
			c.logger.Info("message receive cancelled by middleware")
			return nil, false
		}
		current = next
	}
	return current, true
}

func (c *Chain) snapshot() []Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Middleware, len(c.middlewares))
	copy(out, c.middlewares)
	return out
}

// runSend invokes one hook with panic isolation; a panicking hook
// leaves the payload unchanged and the chain continues.
func (c *Chain) runSend(m Middleware, payload string) (next string, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("error in middleware", slog.Any("panic", v))
			next, ok = payload, true
		}
	}()
	return m.BeforeSend(payload)
}

func (c *Chain) runReceive(m Middleware, resp *message.Response) (next *message.Response, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("error in middleware", slog.Any("panic", v))
			next, ok = resp, true
		}
	}()
	return m.AfterReceive(resp)
}
