// Package llm implements a client for OpenAI-compatible chat-completions
// backends, in both blocking and streamed (SSE) modes.
package llm

// Message represents a chat message on the wire.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool-result messages
}

// ToolCall is a model-issued request to invoke a named tool. Arguments
// stays raw JSON text — during streaming it arrives in fragments that
// must be concatenated per Index.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // positional, streaming only
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction names the tool and carries its JSON argument text.
type ToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// Request is a chat-completions request.
type Request struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// Completion is the normalized result of a non-streamed request.
type Completion struct {
	Model        string
	Message      Message
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// Chunk is one streamed delta: a text fragment, tool-call fragments,
// or both.
type Chunk struct {
	Content   string
	ToolCalls []ToolCall
}

// Wire shapes for responses.

type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type streamResponse struct {
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Index        int    `json:"index"`
	Delta        delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type delta struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}
