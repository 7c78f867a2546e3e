package assistant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kahyalabs/kahya/internal/analyzer"
	"github.com/kahyalabs/kahya/internal/browser"
	"github.com/kahyalabs/kahya/internal/computer"
	"github.com/kahyalabs/kahya/internal/input"
	"github.com/kahyalabs/kahya/internal/memory"
	"github.com/kahyalabs/kahya/internal/plugin"
	"github.com/kahyalabs/kahya/internal/usage"
)

type fakeInput struct {
	err error
}

func (f *fakeInput) Process(_ context.Context, in input.Input) (*input.Processed, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &input.Processed{Kind: in.Kind, Content: in.Text}, nil
}

type fakeAnalyzer struct {
	analysis *analyzer.Analysis
	plugins  []analyzer.PluginInfo
	lastCtx  context.Context
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ string) *analyzer.Analysis {
	f.lastCtx = ctx
	return f.analysis
}

func (f *fakeAnalyzer) SetPlugins(plugins []analyzer.PluginInfo) {
	f.plugins = plugins
}

type fakeBrowser struct {
	data   string
	err    error
	task   browser.Task
	closed bool
}

func (f *fakeBrowser) Run(_ context.Context, task browser.Task) (*browser.Result, error) {
	f.task = task
	if f.err != nil {
		return nil, f.err
	}
	return &browser.Result{Data: f.data}, nil
}

func (f *fakeBrowser) Enabled() bool { return true }
func (f *fakeBrowser) Close() error  { f.closed = true; return nil }

type fakeComputer struct {
	result *computer.ExecResult
	err    error
}

func (f *fakeComputer) Run(_ context.Context, _ computer.Task) (*computer.ExecResult, error) {
	return f.result, f.err
}

func (f *fakeComputer) Enabled() bool { return true }

type fakeResponder struct {
	reply       string
	err         error
	lastHistory []memory.Message
	summarized  bool
}

func (f *fakeResponder) Generate(_ context.Context, _ string, history []memory.Message) (string, error) {
	f.lastHistory = history
	return f.reply, f.err
}

func (f *fakeResponder) Summarize(_ context.Context, _, raw string) string {
	f.summarized = true
	return "summary: " + raw
}

type echoPlugin struct {
	err error
}

func (p *echoPlugin) Name() string        { return "echo" }
func (p *echoPlugin) Description() string { return "echoes" }
func (p *echoPlugin) Actions() []plugin.ActionSpec {
	return []plugin.ActionSpec{{Name: "say", Description: "say it back"}}
}
func (p *echoPlugin) Init(context.Context, plugin.Settings, *slog.Logger) error { return nil }
func (p *echoPlugin) Close() error                                              { return nil }

func (p *echoPlugin) Execute(_ context.Context, req plugin.Request) (*plugin.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &plugin.Result{Text: "echo " + plugin.StringParam(req.Params, "text")}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	manager   *Manager
	input     *fakeInput
	analyzer  *fakeAnalyzer
	browser   *fakeBrowser
	computer  *fakeComputer
	responder *fakeResponder
	registry  *plugin.Registry
	store     *memory.MemStore
}

func newHarness(t *testing.T, analysis *analyzer.Analysis, opts Options) *harness {
	t.Helper()

	h := &harness{
		input:     &fakeInput{},
		analyzer:  &fakeAnalyzer{analysis: analysis},
		browser:   &fakeBrowser{data: "page text"},
		computer:  &fakeComputer{result: &computer.ExecResult{Stdout: "ok\n"}},
		responder: &fakeResponder{reply: "hello there"},
		registry:  plugin.NewRegistry(discard()),
		store:     memory.NewMemStore(100),
	}
	if err := h.registry.Register(&echoPlugin{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h.manager = New(Deps{
		Input:     h.input,
		Analyzer:  h.analyzer,
		Browser:   h.browser,
		Computer:  h.computer,
		Responder: h.responder,
		Registry:  h.registry,
		Store:     h.store,
		Logger:    discard(),
	}, opts)

	if err := h.manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return h
}

func textInput(text string) input.Input {
	return input.Input{Kind: input.KindText, Text: text}
}

func TestInitializeAdvertisesPlugins(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})

	if len(h.analyzer.plugins) != 1 {
		t.Fatalf("plugins = %d, want 1", len(h.analyzer.plugins))
	}
	info := h.analyzer.plugins[0]
	if info.Name != "echo" || len(info.Actions) != 1 || info.Actions[0] != "say" {
		t.Errorf("info = %+v", info)
	}
}

func TestProcessGeneral(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		Intent:     "greeting",
		ActionType: analyzer.ActionGeneral,
		Confidence: 0.9,
	}, Options{})

	reply := h.manager.Process(context.Background(), "c1", textInput("merhaba"))

	if !reply.Success {
		t.Fatalf("Success = false, err %q", reply.Err)
	}
	if reply.Text != "hello there" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.ConversationID != "c1" {
		t.Errorf("ConversationID = %q", reply.ConversationID)
	}

	msgs, err := h.store.Messages(context.Background(), "c1", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("history = %+v", msgs)
	}
}

func TestProcessGeneratesConversationID(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})

	reply := h.manager.Process(context.Background(), "", textInput("hi"))
	if reply.ConversationID == "" {
		t.Error("ConversationID is empty")
	}
}

func TestProcessAttributesUsageToConversation(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})

	reply := h.manager.Process(context.Background(), "", textInput("hi"))

	if got := usage.ConversationFromContext(h.analyzer.lastCtx); got != reply.ConversationID {
		t.Errorf("context conversation = %q, want %q", got, reply.ConversationID)
	}
}

func TestProcessWeb(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		Intent:     "check_news",
		ActionType: analyzer.ActionWeb,
		Parameters: map[string]any{"action": "extract", "url": "https://example.com"},
		Confidence: 0.8,
	}, Options{})

	reply := h.manager.Process(context.Background(), "c1", textInput("haberleri oku"))

	if !reply.Success {
		t.Fatalf("Success = false, err %q", reply.Err)
	}
	if reply.Text != "page text" {
		t.Errorf("Text = %q", reply.Text)
	}
	if h.browser.task.URL != "https://example.com" {
		t.Errorf("task = %+v", h.browser.task)
	}
}

func TestProcessComputer(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		Intent:     "disk_usage",
		ActionType: analyzer.ActionComputer,
		Parameters: map[string]any{"action": "execute_command", "command": "df -h"},
	}, Options{})

	reply := h.manager.Process(context.Background(), "c1", textInput("disk durumu"))

	if !reply.Success {
		t.Fatalf("Success = false, err %q", reply.Err)
	}
	if reply.Text != "ok" {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestProcessPlugin(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		Intent:     "echo_it",
		ActionType: analyzer.ActionPlugin,
		PluginName: "echo",
		Parameters: map[string]any{"action": "say", "text": "selam"},
	}, Options{})

	reply := h.manager.Process(context.Background(), "c1", textInput("selam de"))

	if !reply.Success {
		t.Fatalf("Success = false, err %q", reply.Err)
	}
	if reply.Text != "echo selam" {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestProcessUnknownPluginFallsBack(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		ActionType: analyzer.ActionPlugin,
		PluginName: "nonexistent",
	}, Options{})

	reply := h.manager.Process(context.Background(), "c1", textInput("yap"))

	if reply.Success {
		t.Fatal("Success = true, want fallback")
	}
	if reply.Text != "Üzgünüm, bir hata oluştu. Lütfen tekrar deneyin." {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestProcessBrowserErrorFallsBack(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		ActionType: analyzer.ActionWeb,
		Parameters: map[string]any{"action": "navigate", "url": "https://example.com"},
	}, Options{})
	h.browser.err = fmt.Errorf("browser crashed")

	reply := h.manager.Process(context.Background(), "c1", textInput("git"))

	if reply.Success {
		t.Fatal("Success = true, want fallback")
	}
	if !strings.Contains(reply.Err, "browser crashed") {
		t.Errorf("Err = %q", reply.Err)
	}

	// Failed turns stay out of the history.
	msgs, _ := h.store.Messages(context.Background(), "c1", 10)
	if len(msgs) != 0 {
		t.Errorf("history = %d messages, want 0", len(msgs))
	}
}

func TestProcessInputErrorFallsBack(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})
	h.input.err = fmt.Errorf("transcription failed")

	reply := h.manager.Process(context.Background(), "c1", input.Input{Kind: input.KindSpeech, Audio: []byte{1}})

	if reply.Success {
		t.Fatal("Success = true, want fallback")
	}
	if !strings.Contains(reply.Err, "transcription failed") {
		t.Errorf("Err = %q", reply.Err)
	}
}

func TestProcessEmptyInputFallsBack(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})

	reply := h.manager.Process(context.Background(), "c1", textInput(""))
	if reply.Success {
		t.Fatal("Success = true, want fallback")
	}
}

func TestFallbackLanguage(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{Language: "en-US"})
	h.responder.err = fmt.Errorf("model unavailable")

	reply := h.manager.Process(context.Background(), "c1", textInput("hi"))
	if reply.Text != "Sorry, something went wrong. Please try again." {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestSummarizeResults(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{
		ActionType: analyzer.ActionWeb,
		Parameters: map[string]any{"action": "extract", "url": "https://example.com"},
	}, Options{SummarizeResults: true})

	reply := h.manager.Process(context.Background(), "c1", textInput("oku"))

	if !h.responder.summarized {
		t.Error("Summarize was not called")
	}
	if reply.Text != "summary: page text" {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestGeneralUsesHistory(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})

	ctx := context.Background()
	h.store.AddMessage(ctx, "c1", "user", "önce")
	h.store.AddMessage(ctx, "c1", "assistant", "tamam")

	h.manager.Process(ctx, "c1", textInput("devam"))

	if len(h.responder.lastHistory) != 2 {
		t.Errorf("history = %d messages, want 2", len(h.responder.lastHistory))
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, &analyzer.Analysis{ActionType: analyzer.ActionGeneral}, Options{})

	if err := h.manager.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.browser.closed {
		t.Error("browser was not closed")
	}
}

func TestFormatExecResult(t *testing.T) {
	cases := []struct {
		name string
		res  computer.ExecResult
		want string
	}{
		{"stdout", computer.ExecResult{Stdout: "hello\n"}, "hello"},
		{"empty", computer.ExecResult{}, "Done."},
		{"exit code", computer.ExecResult{ExitCode: 2, Stderr: "bad flag"}, "(exit code 2)\nbad flag"},
		{"timeout", computer.ExecResult{Stdout: "partial", TimedOut: true}, "partial\n(command timed out)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatExecResult(&tc.res); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
