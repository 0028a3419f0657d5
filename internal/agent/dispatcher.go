package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marlowe-agent/marlowe/internal/llm"
	"github.com/marlowe-agent/marlowe/internal/tools"
)

// followUpNudge steers the follow-up completion toward composing a
// reply. The follow-up request carries no tool definitions, so a model
// that tries to call tools anyway has nothing to call.
const followUpNudge = "Use the tool results above to answer. Do not request further tool calls."

// dispatch runs the tool calls the model requested, feeds the results
// back, and returns the model's follow-up reply. base is the message
// list of the request that produced the tool calls.
//
// Tool failures never abort the round trip: an unresolved name or a
// failed handler becomes an error-text tool turn so the model can see
// what went wrong.
func (g *Gateway) dispatch(ctx context.Context, req SendRequest, base []llm.Message, assistant llm.Message) (string, error) {
	if req.AddTurn {
		g.record(ctx, req.Channel, assistant)
	}
	follow := append(base, assistant)

	inv := &tools.Invocation{Channel: req.Channel, Responder: req.Responder}
	for _, call := range assistant.ToolCalls {
		name := call.Function.Name
		g.logger.Info("tool call", "name", name, "id", call.ID)
		g.logger.Debug("tool arguments", "name", name, "args", call.Function.Arguments)

		var text string
		if _, ok := g.registry.Lookup(name); !ok {
			g.logger.Warn("unknown tool requested", "name", name)
			text = fmt.Sprintf("error: unknown tool %q", name)
		} else {
			out, err := g.registry.Invoke(ctx, inv, name, json.RawMessage(call.Function.Arguments))
			if err != nil {
				g.logger.Warn("tool failed", "name", name, "error", err)
				text = fmt.Sprintf("error: %v", err)
			} else {
				text = out
			}
		}

		result := llm.Message{Role: "tool", Content: text, ToolCallID: call.ID}
		if req.AddTurn {
			g.record(ctx, req.Channel, result)
		}
		follow = append(follow, result)
	}

	follow = append(follow, llm.Message{Role: "system", Content: followUpNudge})

	completion, err := g.backend.Complete(ctx, llm.Request{
		Model:    g.model,
		Messages: follow,
	})
	if err != nil {
		g.logger.Error("follow-up completion failed", "error", err)
		return "", nil
	}

	if req.AddTurn {
		g.record(ctx, req.Channel, completion.Message)
	}
	return completion.Message.Content, nil
}
