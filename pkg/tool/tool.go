// Package tool defines the capability boundary every gated invocation
// crosses: tools are pluggable collaborators, the gatekeeper core only
// knows their name, declared parameters, and execution signature.
package tool

import "encoding/json"

// ParameterSchema describes a tool's accepted input shape.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single tool parameter.
type PropertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Default     any             `json:"default,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
}

// Result is the outcome of a tool execution.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Tool is a capability invocable on behalf of an agent. Implementations
// are out of scope for this module; only the interface is specified.
type Tool interface {
	Name() string
	Description() string
	Parameters() ParameterSchema
	Execute(params map[string]any) (*Result, error)
}

// ToOpenAIFunction converts a tool to OpenAI function calling format.
func ToOpenAIFunction(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}

// ToJSON converts a result to JSON.
func ToJSON(r *Result) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON parses a result from JSON.
func FromJSON(jsonStr string) (*Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
