package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"
)

// Registry holds the tools available to the model and their derived
// wire schemas. Registration order is preserved; registering a name
// twice keeps both entries and lookup returns the earlier one.
type Registry struct {
	logger  *slog.Logger
	entries []entry
}

type entry struct {
	method Method
	spec   map[string]any
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger.With("component", "tools")}
}

// Register adds every method of the toolset.
func (r *Registry) Register(ts Toolset) {
	for _, m := range ts.Methods() {
		r.RegisterMethod(m)
	}
}

// RegisterMethod adds a single method and derives its schema.
func (r *Registry) RegisterMethod(m Method) {
	spec := deriveSpec(m)
	r.entries = append(r.entries, entry{method: m, spec: spec})
	r.logger.Debug("tool registered", "name", m.Name)
}

// Specs returns the tool definitions in the wire format the chat
// completions API expects.
func (r *Registry) Specs() []map[string]any {
	specs := make([]map[string]any, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.spec)
	}
	return specs
}

// Names lists registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.method.Name)
	}
	return names
}

// Lookup finds a method by name. The first registration wins when a
// name was registered more than once.
func (r *Registry) Lookup(name string) (Method, bool) {
	for _, e := range r.entries {
		if e.method.Name == name {
			return e.method, true
		}
	}
	return Method{}, false
}

// Invoke runs a registered method and renders its result as text for a
// tool turn. Non-string results are JSON encoded.
func (r *Registry) Invoke(ctx context.Context, inv *Invocation, name string, args json.RawMessage) (string, error) {
	m, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	result, err := m.Call(ctx, inv, args)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		return string(encoded), nil
	}
}

// deriveSpec builds the wire tool definition for a method: parameter
// types reflected from the Args struct, descriptions merged in from
// the doc's Args section.
func deriveSpec(m Method) map[string]any {
	description, paramDocs := parseDoc(m.Doc)

	properties := map[string]any{}
	var required []string

	if m.Args != nil {
		reflector := jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		}
		schema := reflector.Reflect(m.Args)
		if schema.Properties != nil {
			for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
				prop := map[string]any{"type": normalizeType(pair.Value.Type)}
				if pair.Value.Type == "array" {
					items := map[string]any{"type": "string"}
					if pair.Value.Items != nil {
						items["type"] = normalizeType(pair.Value.Items.Type)
					}
					prop["items"] = items
				}
				if doc, ok := paramDocs[pair.Key]; ok && doc != "" {
					prop["description"] = doc
				}
				properties[pair.Key] = prop
				required = append(required, pair.Key)
			}
		}
	}

	if required == nil {
		required = []string{}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        m.Name,
			"description": description,
			"strict":      true,
			"parameters": map[string]any{
				"type":                 "object",
				"properties":           properties,
				"required":             required,
				"additionalProperties": false,
			},
		},
	}
}

// normalizeType clamps reflected types to the set the model is told
// about. Anything outside it degrades to string.
func normalizeType(t string) string {
	switch t {
	case "string", "integer", "array", "boolean":
		return t
	default:
		return "string"
	}
}
