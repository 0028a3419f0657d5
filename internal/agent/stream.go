package agent

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/marlowe-agent/marlowe/internal/llm"
)

// TokenStream delivers model output incrementally in the scanner
// idiom: Next advances to the following token, Token returns it, Err
// reports a terminal failure after Next returns false.
//
// Tool-call fragments are accumulated silently while content tokens
// flow through. When the stream drains with pending tool calls, the
// round trip runs to completion and the follow-up reply arrives as one
// final token after a newline separator. Conversation turns are
// committed only when the stream drains fully; an abandoned stream
// leaves the window untouched.
type TokenStream struct {
	ctx      context.Context
	gateway  *Gateway
	req      SendRequest
	inbound  llm.Message
	base     []llm.Message
	streamer Streamer

	content strings.Builder
	calls   []llm.ToolCall
	token   string
	err     error
	done    bool
}

// Next advances the stream. It returns false when the stream is
// exhausted or failed; check Err afterwards.
func (s *TokenStream) Next() bool {
	if s.done {
		return false
	}
	for {
		chunk, err := s.streamer.Recv()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			s.err = err
			s.done = true
			s.streamer.Close()
			return false
		}
		if len(chunk.ToolCalls) > 0 {
			s.absorb(chunk.ToolCalls)
		}
		if chunk.Content != "" {
			s.content.WriteString(chunk.Content)
			s.token = chunk.Content
			return true
		}
	}
}

// Token returns the token produced by the last successful Next.
func (s *TokenStream) Token() string {
	return s.token
}

// Err returns the terminal error, if any.
func (s *TokenStream) Err() error {
	return s.err
}

// Close abandons the stream. Nothing is committed to the window.
func (s *TokenStream) Close() error {
	s.done = true
	return s.streamer.Close()
}

// Text returns everything streamed so far.
func (s *TokenStream) Text() string {
	return s.content.String()
}

// absorb merges tool-call fragments into the accumulated calls by
// positional index. Argument text appends across fragments.
func (s *TokenStream) absorb(frags []llm.ToolCall) {
	for _, f := range frags {
		idx := 0
		if f.Index != nil {
			idx = *f.Index
		}
		for len(s.calls) <= idx {
			s.calls = append(s.calls, llm.ToolCall{})
		}
		c := &s.calls[idx]
		if f.ID != "" {
			c.ID = f.ID
		}
		if f.Type != "" {
			c.Type = f.Type
		}
		if f.Function.Name != "" {
			c.Function.Name = f.Function.Name
		}
		c.Function.Arguments += f.Function.Arguments
	}
}

// finish commits the drained stream. With tool calls pending it runs
// the dispatch round trip and emits the follow-up reply as the last
// token.
func (s *TokenStream) finish() bool {
	s.streamer.Close()

	if len(s.calls) == 0 {
		if s.req.AddTurn {
			s.gateway.record(s.ctx, s.req.Channel, s.inbound)
			s.gateway.record(s.ctx, s.req.Channel, llm.Message{
				Role:    "assistant",
				Content: s.content.String(),
			})
		}
		s.done = true
		return false
	}

	assistant := llm.Message{
		Role:      "assistant",
		Content:   s.content.String(),
		ToolCalls: s.calls,
	}
	s.calls = nil

	if s.req.AddTurn {
		s.gateway.record(s.ctx, s.req.Channel, s.inbound)
	}
	final, err := s.gateway.dispatch(s.ctx, s.req, s.base, assistant)
	s.done = true
	if err != nil {
		s.err = err
		return false
	}
	if final == "" {
		return false
	}

	token := final
	if s.content.Len() > 0 {
		token = "\n" + final
	}
	s.content.WriteString(token)
	s.token = token
	return true
}
