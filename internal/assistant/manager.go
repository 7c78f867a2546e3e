// Package assistant wires every component into one conversation turn:
// input normalization, intent analysis, dispatch to a backend, reply
// formatting and history updates. The manager never returns an error
// to the serving layer; failures become a localized apology so the
// conversation can always continue.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kahyalabs/kahya/internal/analyzer"
	"github.com/kahyalabs/kahya/internal/browser"
	"github.com/kahyalabs/kahya/internal/computer"
	"github.com/kahyalabs/kahya/internal/input"
	"github.com/kahyalabs/kahya/internal/memory"
	"github.com/kahyalabs/kahya/internal/plugin"
	"github.com/kahyalabs/kahya/internal/usage"
)

// historyLimit caps the conversation history passed to the responder.
const historyLimit = 10

// fallbackReplies are the localized apologies returned when a turn
// fails. Keyed by the primary language subtag.
var fallbackReplies = map[string]string{
	"tr": "Üzgünüm, bir hata oluştu. Lütfen tekrar deneyin.",
	"en": "Sorry, something went wrong. Please try again.",
}

// InputProcessor normalizes raw input.
type InputProcessor interface {
	Process(ctx context.Context, in input.Input) (*input.Processed, error)
}

// Analyzer classifies normalized input.
type Analyzer interface {
	Analyze(ctx context.Context, text string) *analyzer.Analysis
	SetPlugins(plugins []analyzer.PluginInfo)
}

// WebAutomator runs browser tasks.
type WebAutomator interface {
	Run(ctx context.Context, task browser.Task) (*browser.Result, error)
	Enabled() bool
	Close() error
}

// ComputerOperator runs local system tasks.
type ComputerOperator interface {
	Run(ctx context.Context, task computer.Task) (*computer.ExecResult, error)
	Enabled() bool
}

// Responder generates conversational replies.
type Responder interface {
	Generate(ctx context.Context, userText string, history []memory.Message) (string, error)
	Summarize(ctx context.Context, action, raw string) string
}

// Deps are the components the manager coordinates.
type Deps struct {
	Input     InputProcessor
	Analyzer  Analyzer
	Browser   WebAutomator
	Computer  ComputerOperator
	Responder Responder
	Registry  *plugin.Registry
	Loader    *plugin.Loader
	Store     memory.Store
	Logger    *slog.Logger
}

// Options tune manager behavior.
type Options struct {
	// Language is the reply language tag; it selects the fallback
	// apology. Default tr-TR.
	Language string
	// SummarizeResults routes backend results through the responder
	// for conversational phrasing instead of returning them raw.
	SummarizeResults bool
	// DefaultPlugins are activated when no manifest directory exists.
	DefaultPlugins []string
}

// Reply is the outcome of one conversation turn.
type Reply struct {
	Text           string             `json:"text"`
	Success        bool               `json:"success"`
	Err            string             `json:"error,omitempty"`
	ConversationID string             `json:"conversation_id"`
	Analysis       *analyzer.Analysis `json:"analysis,omitempty"`
}

// Manager orchestrates conversation turns.
type Manager struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates a manager. Call Initialize before the first Process.
func New(deps Deps, opts Options) *Manager {
	if opts.Language == "" {
		opts.Language = "tr-TR"
	}
	return &Manager{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With("component", "assistant"),
	}
}

// Initialize activates plugins and advertises their vocabulary to the
// analyzer. The browser stays lazy; it launches on the first web task.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.deps.Loader != nil {
		if err := m.deps.Loader.Activate(ctx, m.deps.Registry, m.opts.DefaultPlugins...); err != nil {
			return fmt.Errorf("activate plugins: %w", err)
		}
	}

	infos := m.deps.Registry.Describe()
	pluginInfos := make([]analyzer.PluginInfo, 0, len(infos))
	for _, info := range infos {
		actions := make([]string, 0, len(info.Actions))
		for _, a := range info.Actions {
			actions = append(actions, a.Name)
		}
		pluginInfos = append(pluginInfos, analyzer.PluginInfo{
			Name:        info.Name,
			Description: info.Description,
			Actions:     actions,
		})
	}
	m.deps.Analyzer.SetPlugins(pluginInfos)

	m.logger.Info("assistant initialized", "plugins", len(pluginInfos))
	return nil
}

// Process runs one conversation turn. It never returns an error; any
// failure produces a fallback Reply with Success false.
func (m *Manager) Process(ctx context.Context, conversationID string, in input.Input) *Reply {
	start := time.Now()

	if conversationID == "" {
		if id, err := uuid.NewV7(); err == nil {
			conversationID = id.String()
		} else {
			conversationID = "conversation"
		}
	}
	// Attribute every LLM call in this turn to the conversation.
	ctx = usage.WithConversation(ctx, conversationID)

	processed, err := m.deps.Input.Process(ctx, in)
	if err != nil {
		m.logger.Warn("input processing failed", "conversation_id", conversationID, "error", err)
		return m.fallback(conversationID, nil, err)
	}
	if processed.Content == "" {
		return m.fallback(conversationID, nil, fmt.Errorf("empty input"))
	}

	analysis := m.deps.Analyzer.Analyze(ctx, processed.Content)

	text, err := m.dispatch(ctx, conversationID, processed.Content, analysis)
	if err != nil {
		m.logger.Warn("dispatch failed",
			"conversation_id", conversationID,
			"action_type", analysis.ActionType,
			"intent", analysis.Intent,
			"error", err,
		)
		return m.fallback(conversationID, analysis, err)
	}

	// Only successful turns enter the history, so a failed exchange
	// cannot poison later prompts.
	m.remember(ctx, conversationID, processed.Content, text)

	m.logger.Info("turn processed",
		"conversation_id", conversationID,
		"action_type", analysis.ActionType,
		"intent", analysis.Intent,
		"confidence", analysis.Confidence,
		"duration", time.Since(start),
	)

	return &Reply{
		Text:           text,
		Success:        true,
		ConversationID: conversationID,
		Analysis:       analysis,
	}
}

// dispatch routes the analyzed input to its backend and returns the
// reply text.
func (m *Manager) dispatch(ctx context.Context, conversationID, userText string, analysis *analyzer.Analysis) (string, error) {
	switch analysis.ActionType {
	case analyzer.ActionWeb:
		res, err := m.deps.Browser.Run(ctx, browser.TaskFromParams(analysis.Parameters))
		if err != nil {
			return "", err
		}
		return m.phrase(ctx, analysis.Intent, res.Data), nil

	case analyzer.ActionComputer:
		res, err := m.deps.Computer.Run(ctx, computer.TaskFromParams(analysis.Parameters))
		if err != nil {
			return "", err
		}
		return m.phrase(ctx, analysis.Intent, formatExecResult(res)), nil

	case analyzer.ActionPlugin:
		res, err := m.deps.Registry.Process(ctx, analysis.PluginName, plugin.Request{
			Action: plugin.StringParam(analysis.Parameters, "action"),
			Params: analysis.Parameters,
		})
		if err != nil {
			return "", err
		}
		return m.phrase(ctx, analysis.Intent, res.Text), nil

	default: // general conversation, including analyzer fallback
		history, err := m.deps.Store.Messages(ctx, conversationID, historyLimit)
		if err != nil {
			m.logger.Warn("history load failed", "conversation_id", conversationID, "error", err)
		}
		return m.deps.Responder.Generate(ctx, userText, history)
	}
}

// phrase optionally rewrites a backend result conversationally.
func (m *Manager) phrase(ctx context.Context, action, raw string) string {
	if !m.opts.SummarizeResults {
		return raw
	}
	return m.deps.Responder.Summarize(ctx, action, raw)
}

// remember appends the exchange to the conversation store.
func (m *Manager) remember(ctx context.Context, conversationID, userText, replyText string) {
	if err := m.deps.Store.AddMessage(ctx, conversationID, "user", userText); err != nil {
		m.logger.Warn("store user message failed", "conversation_id", conversationID, "error", err)
		return
	}
	if err := m.deps.Store.AddMessage(ctx, conversationID, "assistant", replyText); err != nil {
		m.logger.Warn("store assistant message failed", "conversation_id", conversationID, "error", err)
	}
}

// fallback builds the localized apology reply.
func (m *Manager) fallback(conversationID string, analysis *analyzer.Analysis, err error) *Reply {
	return &Reply{
		Text:           m.fallbackText(),
		Success:        false,
		Err:            err.Error(),
		ConversationID: conversationID,
		Analysis:       analysis,
	}
}

// fallbackText selects the apology for the configured language.
func (m *Manager) fallbackText() string {
	primary := m.opts.Language
	if i := strings.IndexByte(primary, '-'); i > 0 {
		primary = primary[:i]
	}
	if text, ok := fallbackReplies[strings.ToLower(primary)]; ok {
		return text
	}
	return fallbackReplies["tr"]
}

// formatExecResult renders a computer task outcome for the user.
func formatExecResult(res *computer.ExecResult) string {
	var b strings.Builder

	out := strings.TrimSpace(res.Stdout)
	if out != "" {
		b.WriteString(out)
	}

	if res.ExitCode != 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "(exit code %d)", res.ExitCode)
		if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
			b.WriteString("\n")
			b.WriteString(errOut)
		}
	}

	if res.TimedOut {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("(command timed out)")
	}

	if b.Len() == 0 {
		return "Done."
	}
	return b.String()
}

// Close releases every component. Errors are logged; the first one is
// returned.
func (m *Manager) Close() error {
	var first error

	if m.deps.Browser != nil {
		if err := m.deps.Browser.Close(); err != nil {
			m.logger.Warn("browser close failed", "error", err)
			first = err
		}
	}
	if m.deps.Registry != nil {
		if err := m.deps.Registry.CloseAll(); err != nil {
			m.logger.Warn("plugin close failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.Close(); err != nil {
			m.logger.Warn("store close failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
