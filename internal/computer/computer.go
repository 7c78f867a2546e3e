// Package computer executes local system tasks on the assistant's
// behalf: shell commands, scripts and confined file operations. The
// whole capability is disabled by default and every command passes a
// denylist before the optional allowlist.
package computer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kahyalabs/kahya/internal/config"
)

// Task is one local operation, parsed from analyzer parameters.
type Task struct {
	Action      string   // execute_command, run_script, file_operation
	Command     string   // execute_command: the shell command line
	Path        string   // run_script: script path
	Args        []string // run_script: arguments passed to the script
	Operation   string   // file_operation: copy, move, delete
	Source      string   // file_operation source path
	Destination string   // file_operation destination path
	Recursive   bool     // file_operation: allow directory delete
}

// TaskFromParams builds a Task from loosely-typed analyzer parameters.
// Missing or mistyped values are left zero.
func TaskFromParams(params map[string]any) Task {
	t := Task{
		Action:      stringParam(params, "action"),
		Command:     stringParam(params, "command"),
		Path:        stringParam(params, "path"),
		Operation:   stringParam(params, "operation"),
		Source:      stringParam(params, "source"),
		Destination: stringParam(params, "destination"),
	}
	if args, ok := params["args"].([]any); ok {
		for _, a := range args {
			if s, ok := a.(string); ok {
				t.Args = append(t.Args, s)
			}
		}
	}
	if r, ok := params["recursive"].(bool); ok {
		t.Recursive = r
	}
	return t
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// ExecResult is the outcome of a task. A non-zero exit code is a
// result, not an error: the command ran and this is what it said.
type ExecResult struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Operator runs local system tasks under the configured policy.
type Operator struct {
	cfg    config.ComputerConfig
	logger *slog.Logger
}

// New creates an operator. The config decides whether anything is
// allowed to run at all.
func New(cfg config.ComputerConfig, logger *slog.Logger) *Operator {
	return &Operator{
		cfg:    cfg,
		logger: logger.With("component", "computer"),
	}
}

// Enabled reports whether local execution is available.
func (o *Operator) Enabled() bool {
	return o.cfg.Enabled
}

// Run dispatches a task to the matching handler.
func (o *Operator) Run(ctx context.Context, task Task) (*ExecResult, error) {
	if !o.cfg.Enabled {
		return nil, fmt.Errorf("computer operations are disabled")
	}

	o.logger.Debug("running task", "action", task.Action)

	switch task.Action {
	case "execute_command":
		return o.execute(ctx, task)
	case "run_script":
		return o.runScript(ctx, task)
	case "file_operation":
		return o.fileOperation(ctx, task)
	default:
		return nil, fmt.Errorf("unsupported action %q", task.Action)
	}
}
