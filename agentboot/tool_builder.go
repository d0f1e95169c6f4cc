package agentboot

import (
	"context"
	"encoding/json"

	"github.com/ollama/ollama/api"
)

type ToolBuilder struct {
	tool Tool
}

// NewToolBuilder starts a function tool with an empty object schema.
func NewToolBuilder(name, description string) *ToolBuilder {
	var t api.Tool
	// zero-valued schema maps are created by the decoder
	_ = json.Unmarshal([]byte(`{"type":"function","function":{"parameters":{"type":"object","properties":{}}}}`), &t)
	t.Function.Name = name
	t.Function.Description = description
	return &ToolBuilder{tool: Tool{Tool: t}}
}

func (b *ToolBuilder) StringSliceParam(name, description string, required bool) *ToolBuilder {
	props := b.tool.Function.Parameters.Properties
	prop := props[name]
	prop.Type = api.PropertyType{"array"}
	prop.Description = description
	prop.Items = map[string]any{"type": "string"}
	props[name] = prop

	if required {
		b.tool.Function.Parameters.Required = append(b.tool.Function.Parameters.Required, name)
	}
	return b
}

func (b *ToolBuilder) WithHandler(handler func(ctx context.Context, params api.ToolCallFunctionArguments) (string, error)) *ToolBuilder {
	b.tool.Handler = handler
	return b
}

func (b *ToolBuilder) Build() Tool {
	return b.tool
}

// StringSliceArg reads a string list argument. Models sometimes send a
// single string where a list was declared; that is accepted as one item.
func StringSliceArg(params api.ToolCallFunctionArguments, name string) []string {
	switch v := params[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
