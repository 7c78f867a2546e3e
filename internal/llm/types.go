// Package llm provides LLM client implementations.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatOptions control a single chat request. The zero value asks for
// an ordinary completion with provider defaults.
type ChatOptions struct {
	// Model names the model to run. Required by providers; MultiClient
	// also routes on it.
	Model string

	// System is the system instruction, kept separate from Messages
	// because providers differ in how they carry it.
	System string

	// Temperature of 0 means provider default.
	Temperature float64

	// MaxTokens caps the response length. 0 means provider default.
	MaxTokens int

	// JSONMode asks the model to emit a single JSON document. Gemini
	// enforces this server-side; Ollama uses its format parameter.
	JSONMode bool

	// JSONSchema optionally constrains JSONMode output to a JSON Schema
	// (type/properties/required/enum subset). Providers that cannot
	// enforce a schema fall back to plain JSON mode.
	JSONSchema map[string]any
}

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types; wire format conversion happens at
// provider boundaries (ollama.go, gemini.go).
type ChatResponse struct {
	Model     string
	Provider  string
	CreatedAt time.Time
	Content   string

	// Token usage (provider-neutral). Zero when the provider did not
	// report usage.
	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
}

// StreamCallback is called for each streamed token.
type StreamCallback func(token string)
