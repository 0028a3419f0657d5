// Package agent implements the conversation gateway: bounded context,
// tool dispatch, and streaming delivery of model output.
package agent

import (
	"sync"

	"github.com/marlowe-agent/marlowe/internal/llm"
)

// Context is the bounded sliding window of conversation turns sent to
// the model. Turns are appended and the oldest evicted once the window
// exceeds its bound, so the newest turn always survives insertion.
type Context struct {
	mu    sync.Mutex
	max   int
	turns []llm.Message
}

// NewContext creates a window holding at most max turns. A bound below
// one falls back to a single turn.
func NewContext(max int) *Context {
	if max < 1 {
		max = 1
	}
	return &Context{max: max}
}

// Add appends a turn and evicts from the front until the window fits
// the bound again. An assistant turn that requested tool calls is
// evicted together with the tool result turns that answer it.
func (c *Context) Add(msg llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, msg)
	for len(c.turns) > c.max {
		c.evictFront()
	}
}

// evictFront drops the oldest turn group. Callers hold the lock.
func (c *Context) evictFront() {
	n := 1
	if len(c.turns[0].ToolCalls) > 0 {
		for n < len(c.turns) && c.turns[n].Role == "tool" {
			n++
		}
	}
	// The newest turn always survives, even when a tool group is
	// larger than the whole window.
	if n >= len(c.turns) {
		n = len(c.turns) - 1
	}
	c.turns = c.turns[n:]
}

// Snapshot returns a copy of the current window, oldest first.
func (c *Context) Snapshot() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]llm.Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len reports the number of turns currently held.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Clear drops all turns.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}
