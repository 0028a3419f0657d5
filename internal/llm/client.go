package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marlowe-agent/marlowe/internal/config"
	"github.com/marlowe-agent/marlowe/internal/httpkit"
)

// Client talks to an OpenAI-compatible chat-completions API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the API rooted at baseURL (e.g.
// "https://api.openai.com/v1").
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	// LLM responses can take significant time before sending headers
	// (long prompts, queueing). Use a generous response header timeout
	// and no global timeout — streams can be long-lived; rely on ctx
	// deadlines for cancellation.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger.With("component", "llm"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Complete sends a blocking chat-completions request and returns the
// normalized result.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	req.Stream = false

	body, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response carried no choices")
	}

	result := &Completion{
		Model:        resp.Model,
		Message:      resp.Choices[0].Message,
		FinishReason: resp.Choices[0].FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	c.logger.Debug("completion received",
		"model", result.Model,
		"finish_reason", result.FinishReason,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, config.LevelTrace, "completion content", "content", result.Message.Content)

	return result, nil
}

// Stream sends a streamed chat-completions request. The caller must
// drain the returned reader to io.EOF (or Close it) to release the
// connection.
func (c *Client) Stream(ctx context.Context, req Request) (*StreamReader, error) {
	req.Stream = true

	body, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(body)
	// Increase scanner buffer for large deltas
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &StreamReader{
		body:    body,
		scanner: scanner,
	}, nil
}

// Ping verifies the backend is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status from API: %d", resp.StatusCode)
	}
	return nil
}

// post issues the chat-completions POST and returns the response body
// on HTTP 200. The caller owns closing the body.
func (c *Client) post(ctx context.Context, req Request) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, errBody)
	}

	return resp.Body, nil
}

// StreamReader yields chunks from an SSE response until io.EOF. It is
// forward-only and not restartable.
type StreamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next chunk, or io.EOF when the stream has ended.
func (s *StreamReader) Recv() (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// SSE format: "data: <json>", terminated by "data: [DONE]".
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.finish()
			return nil, io.EOF
		}

		var event streamResponse
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // skip malformed events
		}
		if len(event.Choices) == 0 {
			continue
		}

		d := event.Choices[0].Delta
		if d.Content == "" && len(d.ToolCalls) == 0 {
			continue
		}
		return &Chunk{Content: d.Content, ToolCalls: d.ToolCalls}, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.finish()
		return nil, fmt.Errorf("read stream: %w", err)
	}
	s.finish()
	return nil, io.EOF
}

// Close releases the underlying connection. Safe to call more than once.
func (s *StreamReader) Close() error {
	s.finish()
	return nil
}

func (s *StreamReader) finish() {
	if s.done {
		return
	}
	s.done = true
	httpkit.DrainAndClose(s.body, 4096)
}
