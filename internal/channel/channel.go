// Package channel defines the front-end surface the agent speaks
// through and a hub for reaching channels by name.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Channel is a conversation front end that can receive unsolicited
// output (scheduler announcements, status notices).
type Channel interface {
	Name() string
	Announce(ctx context.Context, text string) error
}

// Hub tracks the active channels.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]Channel
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger.With("component", "hub"),
		channels: make(map[string]Channel),
	}
}

// Register adds a channel. A later registration under the same name
// replaces the earlier one.
func (h *Hub) Register(c Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[c.Name()] = c
	h.logger.Debug("channel registered", "name", c.Name())
}

// Get returns the named channel, or nil.
func (h *Hub) Get(name string) Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[name]
}

// Names lists registered channel names.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	return names
}

// Announce delivers text to the named channel, falling back to a
// broadcast when the channel is gone.
func (h *Hub) Announce(ctx context.Context, name, text string) error {
	if c := h.Get(name); c != nil {
		return c.Announce(ctx, text)
	}
	h.logger.Warn("announce target missing, broadcasting", "name", name)
	return h.Broadcast(ctx, text)
}

// Broadcast delivers text to every channel. Per-channel failures are
// logged and do not stop delivery to the rest.
func (h *Hub) Broadcast(ctx context.Context, text string) error {
	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels))
	for _, c := range h.channels {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("no channels registered")
	}
	for _, c := range targets {
		if err := c.Announce(ctx, text); err != nil {
			h.logger.Error("announce failed", "channel", c.Name(), "error", err)
		}
	}
	return nil
}
