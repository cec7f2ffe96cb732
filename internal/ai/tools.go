package ai

import (
	"encoding/json"
	"fmt"
	"sort"
)

var emptyToolSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// toolDef is a tool definition reduced to what every provider needs.
type toolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// parseToolDef accepts the OpenAI function shape
// {type, function: {name, description, parameters}}, the Anthropic shape
// {name, description, input_schema} or a bare {description, parameters}.
// The map key names the tool when the definition does not.
func parseToolDef(provider, name string, def json.RawMessage) (toolDef, error) {
	var wire struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
		InputSchema json.RawMessage `json:"input_schema"`
		Function    *struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Parameters  json.RawMessage `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(def, &wire); err != nil {
		return toolDef{}, fmt.Errorf("%s: tool %s: %w", provider, name, err)
	}

	t := toolDef{Name: wire.Name, Description: wire.Description, Parameters: wire.Parameters}
	if len(t.Parameters) == 0 {
		t.Parameters = wire.InputSchema
	}
	if f := wire.Function; f != nil {
		t = toolDef{Name: f.Name, Description: f.Description, Parameters: f.Parameters}
	}
	if t.Name == "" {
		t.Name = name
	}
	if len(t.Parameters) == 0 || string(t.Parameters) == "null" {
		t.Parameters = emptyToolSchema
	}
	return t, nil
}

// sortedToolDefs parses tools in name order so request bodies are stable.
func sortedToolDefs(provider string, tools map[string]json.RawMessage) ([]toolDef, error) {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]toolDef, 0, len(names))
	for _, name := range names {
		t, err := parseToolDef(provider, name, tools[name])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
