// Package cli is the interactive terminal channel.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/marlowe-agent/marlowe/internal/agent"
)

// Channel reads prompts from a readline loop and streams replies to
// the terminal.
type Channel struct {
	logger  *slog.Logger
	gateway *agent.Gateway
	rl      *readline.Instance
}

func New(logger *slog.Logger, gateway *agent.Gateway) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		logger:  logger.With("component", "cli"),
		gateway: gateway,
	}
}

// Name implements channel.Channel.
func (c *Channel) Name() string { return "cli" }

// Announce implements channel.Channel. Output lands above the prompt.
func (c *Channel) Announce(ctx context.Context, text string) error {
	w := c.writer()
	_, err := fmt.Fprintf(w, "\n%s\n", text)
	return err
}

func (c *Channel) writer() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return os.Stdout
}

// Run serves the prompt loop until EOF, "exit", or context cancel.
func (c *Channel) Run(ctx context.Context) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".marlowe_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	c.rl = rl
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read line: %w", err)
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		c.respond(ctx, line)
	}
}

func (c *Channel) respond(ctx context.Context, prompt string) {
	ts, err := c.gateway.SendStream(ctx, agent.SendRequest{
		Content:    prompt,
		Channel:    c.Name(),
		UseContext: true,
		UseTools:   true,
		AddTurn:    true,
	})
	if err != nil {
		fmt.Fprintf(c.writer(), "error: %v\n", err)
		return
	}

	w := c.writer()
	for ts.Next() {
		fmt.Fprint(w, ts.Token())
	}
	fmt.Fprintln(w)
	if err := ts.Err(); err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}
