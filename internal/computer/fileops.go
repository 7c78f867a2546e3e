package computer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileOperation performs copy, move or delete, confined to FileRoot.
func (o *Operator) fileOperation(ctx context.Context, task Task) (*ExecResult, error) {
	if o.cfg.FileRoot == "" {
		return nil, fmt.Errorf("file operations are disabled (no file_root configured)")
	}

	start := time.Now()
	var message string
	var err error

	switch task.Operation {
	case "copy":
		message, err = o.copyFile(task.Source, task.Destination)
	case "move":
		message, err = o.moveFile(task.Source, task.Destination)
	case "delete":
		message, err = o.deleteFile(task.Source, task.Recursive)
	default:
		return nil, fmt.Errorf("unsupported file operation %q", task.Operation)
	}
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		Stdout:   message,
		Duration: time.Since(start),
	}, nil
}

// confine resolves a path under FileRoot and rejects anything that
// escapes it. Relative paths are taken relative to the root. Symlinks
// are resolved before the containment check, so a link inside the root
// cannot point an operation outside it.
func (o *Operator) confine(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	root, err := filepath.Abs(o.cfg.FileRoot)
	if err != nil {
		return "", fmt.Errorf("resolve file root: %w", err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve file root: %w", err)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	// The path itself may not exist yet (copy and move destinations),
	// so fall back to resolving its parent directory.
	resolved, err := filepath.EvalSymlinks(path)
	if errors.Is(err, os.ErrNotExist) {
		parent, perr := filepath.EvalSymlinks(filepath.Dir(path))
		if perr != nil {
			return "", fmt.Errorf("resolve %s: %w", path, perr)
		}
		resolved = filepath.Join(parent, filepath.Base(path))
	} else if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the allowed root", resolved)
	}
	return resolved, nil
}

func (o *Operator) copyFile(source, destination string) (string, error) {
	src, err := o.confine(source)
	if err != nil {
		return "", err
	}
	dst, err := o.confine(destination)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("source not found: %s", source)
	}
	if info.IsDir() {
		return "", fmt.Errorf("copying directories is not supported")
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	return fmt.Sprintf("copied %s to %s", src, dst), nil
}

func (o *Operator) moveFile(source, destination string) (string, error) {
	src, err := o.confine(source)
	if err != nil {
		return "", err
	}
	dst, err := o.confine(destination)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("source not found: %s", source)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move: %w", err)
	}
	return fmt.Sprintf("moved %s to %s", src, dst), nil
}

func (o *Operator) deleteFile(source string, recursive bool) (string, error) {
	src, err := o.confine(source)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("path not found: %s", source)
	}

	if info.IsDir() {
		if !recursive {
			return "", fmt.Errorf("%s is a directory (set recursive to delete)", src)
		}
		if err := os.RemoveAll(src); err != nil {
			return "", fmt.Errorf("delete: %w", err)
		}
	} else {
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("delete: %w", err)
		}
	}
	return fmt.Sprintf("deleted %s", src), nil
}
