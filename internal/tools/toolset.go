// Package tools defines the callable tool surface exposed to the model
// and the registry that derives wire schemas for it.
package tools

import (
	"context"
	"encoding/json"
)

// Responder lets a tool post interim output back to the channel that
// triggered the invocation, before the model's final reply arrives.
type Responder interface {
	Respond(ctx context.Context, text string) error
}

// Invocation carries per-call context into a tool handler.
type Invocation struct {
	// Channel names the front end the triggering message arrived on
	// ("cli", "discord", "mqtt", "scheduler"). Empty when unknown.
	Channel string

	// Responder may be nil when the channel cannot accept interim output.
	Responder Responder
}

// Method is a single callable tool. Args holds a zero value of the
// argument struct; its fields define the parameter schema. Doc follows
// the conventional form of a summary paragraph followed by an optional
// "Args:" section with one "name: description" line per parameter.
type Method struct {
	Name string
	Doc  string
	Args any
	Call func(ctx context.Context, inv *Invocation, args json.RawMessage) (any, error)
}

// Toolset is a group of related methods registered together.
type Toolset interface {
	Methods() []Method
}
