// Package responder generates conversational replies. It carries the
// assistant's persona and reply language, keeps the recent history in
// the prompt, and phrases backend results in plain language.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kahyalabs/kahya/internal/llm"
	"github.com/kahyalabs/kahya/internal/memory"
	"github.com/kahyalabs/kahya/internal/usage"
)

// historyLimit caps how many prior messages travel with each prompt.
const historyLimit = 10

// defaultPersona is used when no persona file is configured or the
// configured one is missing.
const defaultPersona = `You are Kahya, a helpful personal assistant. You can:
1. Answer general questions
2. Provide explanations
3. Engage in natural conversation
4. Offer suggestions and recommendations

Keep replies short and warm. When reporting the outcome of an action,
state the result plainly before any detail.`

// Options configure a Responder.
type Options struct {
	Model       string
	Persona     string // persona text; empty uses the built-in default
	Language    string // BCP-47 reply language tag
	Temperature float64
	MaxTokens   int
}

// Responder turns user input and history into replies.
type Responder struct {
	client  llm.Client
	opts    Options
	logger  *slog.Logger
	tracker *usage.Tracker
}

// New creates a responder. tracker may be nil to disable usage
// accounting.
func New(client llm.Client, opts Options, logger *slog.Logger, tracker *usage.Tracker) *Responder {
	if opts.Persona == "" {
		opts.Persona = defaultPersona
	}
	return &Responder{
		client:  client,
		opts:    opts,
		logger:  logger.With("component", "responder"),
		tracker: tracker,
	}
}

// LoadPersona reads the persona file. A missing file falls back to the
// built-in default with a log line; other read errors are returned.
func LoadPersona(path string, logger *slog.Logger) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("persona file not found, using built-in persona", "path", path)
			return "", nil
		}
		return "", fmt.Errorf("read persona file: %w", err)
	}
	return string(data), nil
}

// Generate produces a reply to userText given the conversation history.
func (r *Responder) Generate(ctx context.Context, userText string, history []memory.Message) (string, error) {
	msgs := make([]llm.Message, 0, historyLimit+1)
	for _, m := range lastN(history, historyLimit) {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userText})

	resp, err := r.client.Chat(ctx, msgs, llm.ChatOptions{
		Model:       r.opts.Model,
		System:      r.systemPrompt(),
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}

	r.tracker.Track(ctx, "responder", resp.Model, resp.Provider, resp.InputTokens, resp.OutputTokens)

	return strings.TrimSpace(resp.Content), nil
}

// Summarize phrases a backend result conversationally. When the LLM is
// unreachable the raw result passes through untouched so the user
// still gets their answer.
func (r *Responder) Summarize(ctx context.Context, action, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	prompt := fmt.Sprintf(
		"The user asked to: %s\n\nThe result was:\n%s\n\nPhrase this result as a short conversational reply. Keep all concrete details (names, times, prices).",
		action, raw,
	)

	resp, err := r.client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.ChatOptions{
		Model:       r.opts.Model,
		System:      r.systemPrompt(),
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	})
	if err != nil {
		r.logger.Warn("summarize failed, passing raw result through", "error", err)
		return raw
	}

	r.tracker.Track(ctx, "responder", resp.Model, resp.Provider, resp.InputTokens, resp.OutputTokens)

	return strings.TrimSpace(resp.Content)
}

// systemPrompt combines the persona with the reply-language
// instruction.
func (r *Responder) systemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.opts.Persona))
	if r.opts.Language != "" {
		b.WriteString("\n\nReply in ")
		b.WriteString(languageName(r.opts.Language))
		b.WriteString(" unless the user explicitly asks for another language.")
	}
	return b.String()
}

// languageNames covers the tags we expect in configs; anything else is
// passed to the model as the raw tag.
var languageNames = map[string]string{
	"tr": "Turkish",
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"ar": "Arabic",
}

func languageName(tag string) string {
	primary := tag
	if i := strings.IndexByte(tag, '-'); i > 0 {
		primary = tag[:i]
	}
	if name, ok := languageNames[strings.ToLower(primary)]; ok {
		return name
	}
	return tag
}

// lastN returns the last n messages.
func lastN(msgs []memory.Message, n int) []memory.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
