package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marlowe-agent/marlowe/internal/llm"
	"github.com/marlowe-agent/marlowe/internal/tools"
)

// Backend is the completion surface the gateway talks to.
type Backend interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
	Stream(ctx context.Context, req llm.Request) (Streamer, error)
}

// Streamer yields completion chunks until io.EOF.
type Streamer interface {
	Recv() (*llm.Chunk, error)
	Close() error
}

// NewBackend adapts the HTTP client to the Backend interface.
func NewBackend(c *llm.Client) Backend {
	return clientBackend{c}
}

type clientBackend struct {
	c *llm.Client
}

func (b clientBackend) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	return b.c.Complete(ctx, req)
}

func (b clientBackend) Stream(ctx context.Context, req llm.Request) (Streamer, error) {
	return b.c.Stream(ctx, req)
}

// Archiver records turns to durable transcript storage. A nil Archiver
// disables archiving.
type Archiver interface {
	Record(ctx context.Context, channel, role, content string) error
}

// PromptSource supplies persistent memories for the system prompt. A
// nil PromptSource leaves the memory section out.
type PromptSource interface {
	PersistentMemories() []string
}

// SendRequest describes one inbound message and how the gateway should
// handle it.
type SendRequest struct {
	// Role defaults to "user".
	Role    string
	Content string

	// Channel names the originating front end, for the system prompt
	// and for tool invocations.
	Channel string

	// Responder receives interim tool output. May be nil.
	Responder tools.Responder

	// UseContext includes the conversation window in the request.
	// Context-free sends (scheduler prompts) leave it false.
	UseContext bool

	// UseTools advertises the registry to the model.
	UseTools bool

	// AddTurn records the exchange into the conversation window.
	AddTurn bool

	// SystemPrompt overrides the built system prompt when non-empty.
	SystemPrompt string
}

// Gateway serializes conversation traffic between the channels and the
// model. All channels share one conversation window.
type Gateway struct {
	logger   *slog.Logger
	backend  Backend
	registry *tools.Registry
	window   *Context
	model    string
	persona  string
	prompts  PromptSource
	archiver Archiver
}

// Options configures a Gateway.
type Options struct {
	Backend  Backend
	Registry *tools.Registry
	Model    string
	MaxTurns int
	// Persona is the identity paragraph of the system prompt.
	Persona  string
	Prompts  PromptSource
	Archiver Archiver
	Logger   *slog.Logger
}

func NewGateway(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		logger:   logger.With("component", "agent"),
		backend:  opts.Backend,
		registry: opts.Registry,
		window:   NewContext(opts.MaxTurns),
		model:    opts.Model,
		persona:  opts.Persona,
		prompts:  opts.Prompts,
		archiver: opts.Archiver,
	}
}

// Window exposes the conversation window, mainly for tests and the
// session tools.
func (g *Gateway) Window() *Context {
	return g.window
}

// Send processes one message and blocks until the final reply text is
// available, running any tool round trips on the way.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (string, error) {
	req = withDefaults(req)
	inbound := llm.Message{Role: req.Role, Content: req.Content}

	g.logger.Info("message received",
		"channel", req.Channel,
		"role", req.Role,
		"context", req.UseContext,
		"tools", req.UseTools,
	)

	messages := g.assemble(req, inbound)
	if req.AddTurn {
		g.record(ctx, req.Channel, inbound)
	}

	completion, err := g.backend.Complete(ctx, llm.Request{
		Model:    g.model,
		Messages: messages,
		Tools:    g.toolSpecs(req),
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	if len(completion.Message.ToolCalls) > 0 {
		final, err := g.dispatch(ctx, req, messages, completion.Message)
		if err != nil {
			return "", err
		}
		reply := completion.Message.Content
		if reply != "" && final != "" {
			reply += "\n"
		}
		return reply + final, nil
	}

	if req.AddTurn {
		g.record(ctx, req.Channel, completion.Message)
	}
	return completion.Message.Content, nil
}

// SendStream processes one message and returns a token stream. Turns
// are committed to the window only once the stream is fully drained.
func (g *Gateway) SendStream(ctx context.Context, req SendRequest) (*TokenStream, error) {
	req = withDefaults(req)
	inbound := llm.Message{Role: req.Role, Content: req.Content}

	g.logger.Info("message received",
		"channel", req.Channel,
		"role", req.Role,
		"streaming", true,
	)

	messages := g.assemble(req, inbound)
	streamer, err := g.backend.Stream(ctx, llm.Request{
		Model:    g.model,
		Messages: messages,
		Tools:    g.toolSpecs(req),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return &TokenStream{
		ctx:      ctx,
		gateway:  g,
		req:      req,
		inbound:  inbound,
		base:     messages,
		streamer: streamer,
	}, nil
}

// assemble builds the outbound message list: system prompt, then the
// conversation window when requested, then the inbound turn.
func (g *Gateway) assemble(req SendRequest, inbound llm.Message) []llm.Message {
	system := req.SystemPrompt
	if system == "" {
		system = g.buildSystemPrompt(req.Channel)
	}

	messages := []llm.Message{{Role: "system", Content: system}}
	if req.UseContext {
		messages = append(messages, g.window.Snapshot()...)
	}
	return append(messages, inbound)
}

func (g *Gateway) toolSpecs(req SendRequest) []map[string]any {
	if !req.UseTools || g.registry == nil {
		return nil
	}
	return g.registry.Specs()
}

// record adds a turn to the window and archives it. Archive failures
// are logged and do not interrupt the conversation.
func (g *Gateway) record(ctx context.Context, channel string, msg llm.Message) {
	g.window.Add(msg)
	if g.archiver == nil || msg.Content == "" {
		return
	}
	if err := g.archiver.Record(ctx, channel, msg.Role, msg.Content); err != nil {
		g.logger.Error("archive failed", "error", err)
	}
}

func withDefaults(req SendRequest) SendRequest {
	if req.Role == "" {
		req.Role = "user"
	}
	return req
}
