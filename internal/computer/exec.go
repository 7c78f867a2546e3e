package computer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxTimeout caps per-command runtime regardless of configuration.
const maxTimeout = 5 * time.Minute

// execute runs a shell command line through sh -c.
func (o *Operator) execute(ctx context.Context, task Task) (*ExecResult, error) {
	if task.Command == "" {
		return nil, fmt.Errorf("no command specified")
	}
	if err := o.checkCommand(task.Command); err != nil {
		return nil, err
	}
	return o.runCmd(ctx, "sh", "-c", task.Command)
}

// checkCommand screens a command line against the denylist, then the
// allowlist. The denylist always wins.
func (o *Operator) checkCommand(command string) error {
	cmdLower := strings.ToLower(command)
	for _, denied := range o.cfg.DeniedPatterns {
		if strings.Contains(cmdLower, strings.ToLower(denied)) {
			return fmt.Errorf("command blocked by security policy: matches denied pattern %q", denied)
		}
	}

	if len(o.cfg.AllowedPrefixes) > 0 {
		for _, prefix := range o.cfg.AllowedPrefixes {
			if strings.HasPrefix(command, prefix) {
				return nil
			}
		}
		return fmt.Errorf("command not in allowlist")
	}
	return nil
}

// runCmd executes a prepared command with the operator's timeout,
// working directory and output cap applied.
func (o *Operator) runCmd(ctx context.Context, name string, args ...string) (*ExecResult, error) {
	timeout := time.Duration(o.cfg.DefaultTimeoutSec) * time.Second
	if timeout <= 0 || timeout > maxTimeout {
		timeout = maxTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if o.cfg.WorkingDir != "" {
		cmd.Dir = o.cfg.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{Duration: duration}
	result.Stdout = o.truncate(stdout.String(), result)
	result.Stderr = o.truncate(stderr.String(), result)

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		o.logger.Warn("command timed out", "timeout", timeout)
		return result, nil
	}

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			// The command never ran (not found, not executable).
			return nil, fmt.Errorf("run command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// truncate caps output at MaxOutputKB, marking the result truncated.
func (o *Operator) truncate(s string, result *ExecResult) string {
	max := o.cfg.MaxOutputKB * 1024
	if max <= 0 || len(s) <= max {
		return s
	}
	result.Truncated = true
	return s[:max] + "\n\n[... output truncated ...]"
}
