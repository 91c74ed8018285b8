package llm

import (
	"context"
	"fmt"
	"sort"
)

// Tool is a callable capability exposed to the model. InputSchema is a JSON
// Schema document ({"type": "object", "properties": {...}, "required":
// [...]}) describing the arguments Run accepts.
type Tool struct {
	// Name is the identifier the model calls the tool by.
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema map[string]any

	// Run executes the tool. Errors returned here are surfaced to the
	// model as error tool results, not to the Chat caller.
	Run func(ctx context.Context, args map[string]any) (string, error)
}

// Registry is a named tool set. The zero value is unusable; use
// NewRegistry.
type Registry map[string]Tool

// NewRegistry builds a registry from the given tools. Duplicate names panic
// since they indicate a wiring bug.
func NewRegistry(tools ...Tool) Registry {
	r := make(Registry, len(tools))
	for _, tool := range tools {
		if _, ok := r[tool.Name]; ok {
			panic(fmt.Sprintf("duplicate tool %q", tool.Name))
		}
		r[tool.Name] = tool
	}

	return r
}

// Merge returns a new registry containing the receiver's tools plus the
// other registry's. On name collision the other registry wins.
func (r Registry) Merge(other Registry) Registry {
	merged := make(Registry, len(r)+len(other))
	for name, tool := range r {
		merged[name] = tool
	}
	for name, tool := range other {
		merged[name] = tool
	}

	return merged
}

// Names returns the registry's tool names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// StringArg extracts a required string argument from a tool-call payload.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}

	return s, nil
}

// OptionalStringArg extracts a string argument, returning the fallback when
// the key is absent. A present but non-string value is an error.
func OptionalStringArg(args map[string]any, key,
	fallback string) (string, error) {

	v, ok := args[key]
	if !ok {
		return fallback, nil
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}

	return s, nil
}

// OptionalNumberArg extracts a numeric argument, returning the fallback when
// the key is absent. JSON decoding yields float64 for all numbers.
func OptionalNumberArg(args map[string]any, key string,
	fallback float64) (float64, error) {

	v, ok := args[key]
	if !ok {
		return fallback, nil
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}

// OptionalBoolArg extracts a boolean argument, returning the fallback when
// the key is absent. A present but non-boolean value is an error.
func OptionalBoolArg(args map[string]any, key string,
	fallback bool) (bool, error) {

	v, ok := args[key]
	if !ok {
		return fallback, nil
	}

	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q must be a boolean", key)
	}

	return b, nil
}

// ObjectSchema is a helper for the common flat tool schema: properties maps
// argument names to {"type": ..., "description": ...} entries.
func ObjectSchema(properties map[string]any,
	required ...string) map[string]any {

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
