// Package plugin defines the plugin SPI and registry. Plugins are
// compiled into the binary and activated through manifest files; the
// analyzer advertises their action vocabulary to the LLM and the
// assistant manager routes plugin-typed requests here.
package plugin

import (
	"context"
	"log/slog"
)

// ActionSpec describes one action a plugin can perform. Params uses
// JSON Schema object notation so the spec can travel into the
// classification prompt and the plugins API endpoint unchanged.
type ActionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params,omitempty"`
}

// Settings carries a plugin's manifest configuration.
type Settings map[string]any

// String returns the named setting as a string, or "" when absent or
// not a string.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Int returns the named setting as an int. YAML unmarshals integers
// as int and JSON as float64; both are accepted.
func (s Settings) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns the named setting as a bool, or false when absent.
func (s Settings) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// Request is one plugin invocation, built from analyzer parameters.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Result is what a plugin produced. Text is the user-facing answer;
// Data carries the structured form for API clients.
type Result struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// Plugin is the interface all plugins implement.
type Plugin interface {
	// Name is the registry key, lowercase.
	Name() string

	// Description is a one-line summary for the classification prompt.
	Description() string

	// Actions lists what the plugin can do.
	Actions() []ActionSpec

	// Init prepares the plugin with its manifest settings. Called once
	// before the first Execute.
	Init(ctx context.Context, settings Settings, logger *slog.Logger) error

	// Execute performs one action.
	Execute(ctx context.Context, req Request) (*Result, error)

	// Close releases plugin resources.
	Close() error
}

// StringParam reads a string value from loosely-typed parameters.
func StringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// IntParam reads an integer value from loosely-typed parameters,
// accepting the float64 that JSON decoding produces.
func IntParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
