// Package analyzer classifies user input into an intent and the action
// needed to fulfil it. The classification drives the assistant manager's
// dispatch: web automation, local command execution, a plugin, or a
// plain conversational reply.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kahyalabs/kahya/internal/llm"
	"github.com/kahyalabs/kahya/internal/usage"
)

// ActionType categorizes how a request should be handled.
type ActionType string

const (
	// ActionWeb routes to the browser automator.
	ActionWeb ActionType = "web"
	// ActionComputer routes to local command execution.
	ActionComputer ActionType = "computer"
	// ActionPlugin routes to a named plugin.
	ActionPlugin ActionType = "plugin"
	// ActionGeneral is a plain conversational reply.
	ActionGeneral ActionType = "general"
)

// Analysis is the structured classification of one user input.
type Analysis struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	ActionType ActionType     `json:"action_type"`
	Parameters map[string]any `json:"parameters"`
	PluginName string         `json:"plugin_name,omitempty"`
}

// PluginInfo describes a registered plugin for the classification
// prompt: its name and the actions it can perform.
type PluginInfo struct {
	Name        string
	Description string
	Actions     []string
}

// Analyzer runs intent classification through an LLM.
type Analyzer struct {
	client  llm.Client
	model   string
	logger  *slog.Logger
	tracker *usage.Tracker
	plugins []PluginInfo
}

// New creates an analyzer using the given client and model. tracker may
// be nil to disable usage accounting.
func New(client llm.Client, model string, logger *slog.Logger, tracker *usage.Tracker) *Analyzer {
	return &Analyzer{
		client:  client,
		model:   model,
		logger:  logger.With("component", "analyzer"),
		tracker: tracker,
	}
}

// SetPlugins registers the plugin vocabulary advertised in the
// classification prompt. Call before serving requests; the slice is
// not copied.
func (a *Analyzer) SetPlugins(plugins []PluginInfo) {
	a.plugins = plugins
}

// Analyze classifies the user input. It never returns an error: any
// failure (transport, malformed JSON, empty response) degrades to a
// low-confidence general analysis so the conversation can continue.
func (a *Analyzer) Analyze(ctx context.Context, text string) *Analysis {
	prompt := a.buildPrompt(text)

	resp, err := a.client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.ChatOptions{
		Model:    a.model,
		JSONMode: true,
	})
	if err != nil {
		a.logger.Warn("analysis request failed", "error", err)
		return fallbackAnalysis()
	}

	a.tracker.Track(ctx, "analyzer", resp.Model, resp.Provider, resp.InputTokens, resp.OutputTokens)

	analysis, err := parseAnalysis(resp.Content)
	if err != nil {
		a.logger.Warn("analysis parse failed", "error", err, "content", resp.Content)
		return fallbackAnalysis()
	}

	a.normalize(analysis)

	a.logger.Debug("input analyzed",
		"intent", analysis.Intent,
		"action_type", analysis.ActionType,
		"confidence", analysis.Confidence,
		"plugin", analysis.PluginName,
	)
	return analysis
}

// buildPrompt constructs the classification prompt, listing the four
// action types and the registered plugin vocabulary.
func (a *Analyzer) buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Analyze the following user input and determine:\n")
	b.WriteString("1. The user's intent\n")
	b.WriteString("2. The confidence level (0-1)\n")
	b.WriteString("3. The type of action required:\n")
	b.WriteString("   - web: browsing, opening or interacting with a web page\n")
	b.WriteString("   - computer: running a command, script or file operation on this machine\n")
	b.WriteString("   - plugin: a task one of the plugins below can handle\n")
	b.WriteString("   - general: anything else, answered conversationally\n")
	b.WriteString("4. Any relevant parameters\n")
	b.WriteString("5. If a plugin is needed, which one\n")

	if len(a.plugins) > 0 {
		b.WriteString("\nAvailable plugins:\n")
		for _, p := range a.plugins {
			b.WriteString("- ")
			b.WriteString(p.Name)
			if p.Description != "" {
				b.WriteString(": ")
				b.WriteString(p.Description)
			}
			if len(p.Actions) > 0 {
				b.WriteString(" (actions: ")
				b.WriteString(strings.Join(p.Actions, ", "))
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nInput: ")
	b.WriteString(text)
	b.WriteString("\n\nRespond in JSON with this structure:\n")
	b.WriteString(`{
  "intent": "string describing the intent",
  "confidence": 0.0,
  "action_type": "web|computer|plugin|general",
  "parameters": {},
  "plugin_name": "name of plugin if applicable"
}`)
	return b.String()
}

// parseAnalysis decodes the model output, tolerating markdown code
// fences around the JSON document.
func parseAnalysis(content string) (*Analysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if content == "" {
		return nil, fmt.Errorf("empty analysis response")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &analysis, nil
}

// normalize enforces the analysis invariants: confidence in [0,1],
// known action type, lowercase plugin names, plugin action only with a
// plugin to run.
func (a *Analyzer) normalize(analysis *Analysis) {
	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 1 {
		analysis.Confidence = 1
	}
	if analysis.Parameters == nil {
		analysis.Parameters = map[string]any{}
	}

	switch analysis.ActionType {
	case ActionWeb, ActionComputer, ActionPlugin, ActionGeneral:
	default:
		a.logger.Warn("unknown action type, treating as general", "action_type", analysis.ActionType)
		analysis.ActionType = ActionGeneral
	}

	analysis.PluginName = strings.ToLower(strings.TrimSpace(analysis.PluginName))
	if analysis.ActionType == ActionPlugin && analysis.PluginName == "" {
		a.logger.Warn("plugin action without plugin name, treating as general")
		analysis.ActionType = ActionGeneral
	}
}

// fallbackAnalysis is returned whenever classification fails.
func fallbackAnalysis() *Analysis {
	return &Analysis{
		Intent:     "unknown",
		Confidence: 0,
		ActionType: ActionGeneral,
		Parameters: map[string]any{},
	}
}
