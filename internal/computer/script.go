package computer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// interpreters maps script extensions to the command that runs them.
// Anything else is executed directly and must carry its own execute
// permission (shebang scripts, binaries).
var interpreters = map[string]string{
	".sh": "sh",
	".py": "python3",
}

// runScript executes a script file, picking the interpreter from the
// file extension.
func (o *Operator) runScript(ctx context.Context, task Task) (*ExecResult, error) {
	if task.Path == "" {
		return nil, fmt.Errorf("no script path specified")
	}

	info, err := os.Stat(task.Path)
	if err != nil {
		return nil, fmt.Errorf("script not found: %s", task.Path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("script path is a directory: %s", task.Path)
	}

	ext := filepath.Ext(task.Path)
	if interp, ok := interpreters[ext]; ok {
		args := append([]string{task.Path}, task.Args...)
		return o.runCmd(ctx, interp, args...)
	}
	return o.runCmd(ctx, task.Path, task.Args...)
}
