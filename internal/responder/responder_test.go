package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kahyalabs/kahya/internal/llm"
	"github.com/kahyalabs/kahya/internal/memory"
)

type fakeClient struct {
	reply    string
	err      error
	messages []llm.Message
	opts     llm.ChatOptions
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.ChatResponse, error) {
	f.messages = messages
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply, Model: opts.Model, Provider: "fake"}, nil
}

func (f *fakeClient) ChatStream(ctx context.Context, messages []llm.Message, opts llm.ChatOptions, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	return f.Chat(ctx, messages, opts)
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) Name() string                   { return "fake" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerate(t *testing.T) {
	client := &fakeClient{reply: "  Tabii, yarın hava güneşli.  "}
	r := New(client, Options{Model: "test-model", Persona: "You are Kahya.", Language: "tr-TR"}, discardLogger(), nil)

	history := []memory.Message{
		{Role: "user", Content: "merhaba"},
		{Role: "assistant", Content: "Merhaba!"},
		{Role: "system", Content: "ignored"},
	}
	got, err := r.Generate(context.Background(), "yarın hava nasıl?", history)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Tabii, yarın hava güneşli." {
		t.Errorf("reply = %q", got)
	}

	if len(client.messages) != 3 {
		t.Fatalf("messages = %d, want 3 (system role dropped)", len(client.messages))
	}
	last := client.messages[len(client.messages)-1]
	if last.Role != "user" || last.Content != "yarın hava nasıl?" {
		t.Errorf("last message = %+v", last)
	}
	if !strings.Contains(client.opts.System, "You are Kahya.") {
		t.Errorf("system prompt missing persona: %q", client.opts.System)
	}
	if !strings.Contains(client.opts.System, "Reply in Turkish") {
		t.Errorf("system prompt missing language instruction: %q", client.opts.System)
	}
}

func TestGenerateTrimsHistory(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	r := New(client, Options{Model: "m"}, discardLogger(), nil)

	var history []memory.Message
	for i := 0; i < 30; i++ {
		history = append(history, memory.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}
	if _, err := r.Generate(context.Background(), "latest", history); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(client.messages) != historyLimit+1 {
		t.Errorf("messages = %d, want %d", len(client.messages), historyLimit+1)
	}
	if client.messages[0].Content != "msg 20" {
		t.Errorf("oldest kept = %q, want the most recent window", client.messages[0].Content)
	}
}

func TestGenerateError(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	r := New(client, Options{Model: "m"}, discardLogger(), nil)

	if _, err := r.Generate(context.Background(), "soru", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerateDefaultPersona(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	r := New(client, Options{Model: "m"}, discardLogger(), nil)

	if _, err := r.Generate(context.Background(), "soru", nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(client.opts.System, "personal assistant") {
		t.Errorf("system prompt = %q", client.opts.System)
	}
}

func TestSummarize(t *testing.T) {
	client := &fakeClient{reply: "Kurs yarın 19:00'da başlıyor."}
	r := New(client, Options{Model: "m"}, discardLogger(), nil)

	got := r.Summarize(context.Background(), "check the schedule", "19:00 salsa beginner")
	if got != "Kurs yarın 19:00'da başlıyor." {
		t.Errorf("summary = %q", got)
	}
	if len(client.messages) != 1 || !strings.Contains(client.messages[0].Content, "19:00 salsa beginner") {
		t.Errorf("prompt = %+v", client.messages)
	}
}

func TestSummarizePassesRawThroughOnError(t *testing.T) {
	client := &fakeClient{err: errors.New("unreachable")}
	r := New(client, Options{Model: "m"}, discardLogger(), nil)

	if got := r.Summarize(context.Background(), "do it", "raw result"); got != "raw result" {
		t.Errorf("summary = %q, want raw passthrough", got)
	}
}

func TestSummarizeEmptyResult(t *testing.T) {
	client := &fakeClient{reply: "should not be called"}
	r := New(client, Options{Model: "m"}, discardLogger(), nil)

	if got := r.Summarize(context.Background(), "do it", "  "); got != "" {
		t.Errorf("summary = %q, want empty", got)
	}
	if client.messages != nil {
		t.Error("LLM was called for an empty result")
	}
}

func TestLoadPersona(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.md")
	if err := os.WriteFile(path, []byte("# Kahya\ncustom persona"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadPersona(path, discardLogger())
	if err != nil {
		t.Fatalf("LoadPersona: %v", err)
	}
	if !strings.Contains(got, "custom persona") {
		t.Errorf("persona = %q", got)
	}
}

func TestLoadPersonaMissingFile(t *testing.T) {
	got, err := LoadPersona(filepath.Join(t.TempDir(), "absent.md"), discardLogger())
	if err != nil {
		t.Fatalf("LoadPersona: %v", err)
	}
	if got != "" {
		t.Errorf("persona = %q, want empty fallback", got)
	}
}

func TestLanguageName(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"tr-TR", "Turkish"},
		{"tr", "Turkish"},
		{"en-US", "English"},
		{"DE", "German"},
		{"xx-YY", "xx-YY"},
	}
	for _, tt := range tests {
		if got := languageName(tt.tag); got != tt.want {
			t.Errorf("languageName(%q) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}
