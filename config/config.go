// Package config holds node configuration with JSON loading and
// default merging.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/crossmq/crossmq/observability"
)

// Config defines a node's identity, channel registry, and
// observability wiring.
type Config struct {
	// ServerName identifies this node on the network. Cross-node
	// events use it as their source identifier.
	ServerName string `json:"server_name"`

	// ReplyQueue is the node's inbound destination for request
	// replies. Empty means a unique name is generated at startup.
	ReplyQueue string `json:"reply_queue,omitempty"`

	// Exchanges maps channel names to fanout exchanges (broadcast
	// destinations).
	Exchanges map[string]string `json:"exchanges,omitempty"`

	// Queues lists direct queue channels.
	Queues []string `json:"queues,omitempty"`

	// AutoSubscribe consumes every registered channel on Connect.
	AutoSubscribe bool `json:"auto_subscribe"`

	Logger   *slog.Logger           `json:"-"`
	Observer observability.Observer `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerName:    "node",
		AutoSubscribe: true,
		Logger:        slog.Default(),
		Observer:      observability.NoOpObserver{},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ServerName != "" {
		c.ServerName = source.ServerName
	}
	if source.ReplyQueue != "" {
		c.ReplyQueue = source.ReplyQueue
	}
	if len(source.Exchanges) > 0 {
		if c.Exchanges == nil {
			c.Exchanges = make(map[string]string, len(source.Exchanges))
		}
		for name, exchange := range source.Exchanges {
			c.Exchanges[name] = exchange
		}
	}
	if len(source.Queues) > 0 {
		c.Queues = append(c.Queues, source.Queues...)
	}
	if source.AutoSubscribe {
		c.AutoSubscribe = true
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
	if source.Observer != nil {
		c.Observer = source.Observer
	}
}

// Load reads a JSON config file and merges it over the defaults.
func Load(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
