// Package node ties the transport port, router, and correlation engine
// into one high-level API: a channel registry distinguishing direct
// queues from fanout exchanges, smart sending, request/response calls,
// and action handler registration.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/crossmq/crossmq/config"
	"github.com/crossmq/crossmq/message"
	"github.com/crossmq/crossmq/middleware"
	"github.com/crossmq/crossmq/observability"
	"github.com/crossmq/crossmq/request"
	"github.com/crossmq/crossmq/router"
	"github.com/crossmq/crossmq/transport"
)

// ErrUnknownChannel is returned by Send for channels never registered
// with AddQueue or AddExchange.
var ErrUnknownChannel = errors.New("unknown channel")

// fanoutDeclarer is implemented by transports that need exchanges
// declared up front (the RabbitMQ adapter). The in-memory broker gives
// every destination fanout semantics and does not implement it.
type fanoutDeclarer interface {
	DeclareFanout(name string) error
}

// Node is one process's endpoint on the message network. All methods
// are safe for concurrent use.
type Node struct {
	cfg      config.Config
	port     transport.Port
	router   *router.Router
	tracker  *request.Tracker
	chain    *middleware.Chain
	metrics  *Metrics
	observer observability.Observer
	logger   *slog.Logger

	replyQueue string

	mu        sync.RWMutex
	exchanges map[string]string
	queues    map[string]struct{}
	connected bool
}

// New creates a Node over the given transport. The reply queue name is
// taken from the config or generated, and channels listed in the
// config are pre-registered.
func New(port transport.Port, cfg config.Config) *Node {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	replyQueue := cfg.ReplyQueue
	if replyQueue == "" {
		replyQueue = "reply-" + uuid.NewString()[:8]
	}

	n := &Node{
		cfg:        cfg,
		port:       port,
		router:     router.New(logger),
		tracker:    request.NewTracker(logger),
		chain:      middleware.NewChain(logger),
		metrics:    NewMetrics(),
		observer:   observer,
		logger:     logger,
		replyQueue: replyQueue,
		exchanges:  make(map[string]string),
		queues:     make(map[string]struct{}),
	}
	n.router.SetCompleter(n.tracker)
	n.router.SetInterceptor(n.chain.ProcessReceive)
	n.router.OnError(func(err error) {
		logger.Error("error processing message", slog.String("error", err.Error()))
		n.emit(observability.EventRouteFailed, observability.LevelError, map[string]any{
			"error": err.Error(),
		})
	})

	for name, exchange := range cfg.Exchanges {
		n.AddExchange(name, exchange)
	}
	for _, queue := range cfg.Queues {
		n.AddQueue(queue)
	}
	return n
}

// Connect consumes the node's reply queue and, when auto-subscribe is
// enabled, every registered channel. Inbound messages flow through the
// router on broker-managed goroutines.
func (n *Node) Connect() error {
	n.mu.Lock()
	if n.connected {
		n.mu.Unlock()
		return nil
	}
	n.connected = true
	exchanges := make([]string, 0, len(n.exchanges))
	for _, exchange := range n.exchanges {
		exchanges = append(exchanges, exchange)
	}
	queues := make([]string, 0, len(n.queues))
	for queue := range n.queues {
		queues = append(queues, queue)
	}
	n.mu.Unlock()

	if err := n.consume(n.replyQueue); err != nil {
		return fmt.Errorf("consume reply queue: %w", err)
	}

	if n.cfg.AutoSubscribe {
		for _, exchange := range exchanges {
			if err := n.consume(exchange); err != nil {
				return fmt.Errorf("subscribe exchange %s: %w", exchange, err)
			}
		}
		for _, queue := range queues {
			if err := n.consume(queue); err != nil {
				return fmt.Errorf("subscribe queue %s: %w", queue, err)
			}
		}
	}

	n.logger.Info("node connected",
		slog.String("server", n.cfg.ServerName),
		slog.String("replyQueue", n.replyQueue))
	n.emit(observability.EventNodeConnected, observability.LevelInfo, map[string]any{
		"replyQueue": n.replyQueue,
	})
	return nil
}

// AddQueue registers a direct queue channel.
func (n *Node) AddQueue(name string) {
	n.mu.Lock()
	n.queues[name] = struct{}{}
	n.mu.Unlock()
}

// AddExchange registers a fanout exchange channel under a name,
// declaring the exchange on transports that require it.
func (n *Node) AddExchange(name, exchange string) {
	if d, ok := n.port.(fanoutDeclarer); ok {
		if err := d.DeclareFanout(exchange); err != nil {
			n.logger.Error("failed to declare exchange",
				slog.String("exchange", exchange),
				slog.String("error", err.Error()))
		}
	}
	n.mu.Lock()
	n.exchanges[name] = exchange
	n.mu.Unlock()
}

// Subscribe consumes an arbitrary destination, routing its messages
// through the node's router. Registered channels are consumed by
// Connect already; this is for destinations added later.
func (n *Node) Subscribe(destination string) error {
	return n.consume(destination)
}

// Send publishes a payload to a registered channel: direct queues are
// addressed by name, exchange channels broadcast to every subscriber.
// Unknown channels fail without publishing.
func (n *Node) Send(channel, payload string) error {
	destination, err := n.resolve(channel)
	if err != nil {
		n.logger.Warn("unknown channel", slog.String("channel", channel))
		return err
	}
	return n.publish(destination, payload)
}

// SendMessage builds the envelope and sends it to a channel.
func (n *Node) SendMessage(channel string, b *message.Builder) error {
	payload, err := b.Build()
	if err != nil {
		return err
	}
	return n.Send(channel, payload)
}

// PublishTo publishes directly to a destination, bypassing the channel
// registry. Reply traffic (RPC responses) uses this to reach a
// caller's reply queue.
func (n *Node) PublishTo(destination, payload string) error {
	return n.publish(destination, payload)
}

// Request starts a request/response call. The returned builder sends
// through the node's channel registry and correlates the reply via the
// node's reply queue.
func (n *Node) Request() *request.Builder {
	return request.NewBuilder(n.Send, n.tracker, n.replyQueue, n.logger)
}

// On registers an action handler.
func (n *Node) On(action string, handler router.Handler) {
	n.router.On(action, handler)
}

// OnDefault registers the fallback handler.
func (n *Node) OnDefault(handler router.Handler) {
	n.router.OnDefault(handler)
}

// OnError registers the error sink.
func (n *Node) OnError(handler router.ErrorHandler) {
	n.router.OnError(handler)
}

// Use adds a middleware to the node's chain. Outbound payloads pass
// through BeforeSend before publishing; inbound messages pass through
// AfterReceive before routing.
func (n *Node) Use(m middleware.Middleware) {
	n.chain.Add(m)
}

// Middleware exposes the node's middleware chain.
func (n *Node) Middleware() *middleware.Chain { return n.chain }

// Router exposes the node's router.
func (n *Node) Router() *router.Router { return n.router }

// Tracker exposes the node's correlation engine.
func (n *Node) Tracker() *request.Tracker { return n.tracker }

// ReplyQueue returns the node's inbound reply destination.
func (n *Node) ReplyQueue() string { return n.replyQueue }

// ServerName returns the node's network identifier.
func (n *Node) ServerName() string { return n.cfg.ServerName }

// Metrics returns a snapshot of the node's counters.
func (n *Node) Metrics() MetricsSnapshot {
	snap := n.metrics.Snapshot()
	snap.RequestTimeouts = n.tracker.TimeoutCount()
	snap.PendingRequests = n.tracker.PendingCount()
	return snap
}

func (n *Node) resolve(channel string) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if _, ok := n.queues[channel]; ok {
		return channel, nil
	}
	if exchange, ok := n.exchanges[channel]; ok {
		return exchange, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
}

func (n *Node) publish(destination, payload string) error {
	payload, ok := n.chain.ProcessSend(payload)
	if !ok {
		n.logger.Debug("send cancelled by middleware",
			slog.String("destination", destination))
		return nil
	}
	if err := n.port.Publish(destination, payload); err != nil {
		n.metrics.RecordSendFailure(1)
		n.emit(observability.EventSendFailed, observability.LevelError, map[string]any{
			"destination": destination,
			"error":       err.Error(),
		})
		return err
	}
	n.metrics.RecordPublished(1)
	n.emit(observability.EventMessagePublished, observability.LevelVerbose, map[string]any{
		"destination": destination,
	})
	return nil
}

func (n *Node) consume(destination string) error {
	err := n.port.Subscribe(destination, func(payload string) {
		n.metrics.RecordReceived(1)
		n.emit(observability.EventMessageReceived, observability.LevelVerbose, map[string]any{
			"destination": destination,
		})
		n.router.Route(payload)
	})
	if err != nil {
		return err
	}
	n.emit(observability.EventNodeSubscribed, observability.LevelVerbose, map[string]any{
		"destination": destination,
	})
	return nil
}

func (n *Node) emit(t observability.EventType, level observability.Level, data map[string]any) {
	n.observer.OnEvent(context.Background(),
		observability.NewEvent(t, level, n.cfg.ServerName, data))
}
