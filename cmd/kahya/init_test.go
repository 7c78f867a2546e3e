package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

// clearUmask makes file mode assertions deterministic.
func clearUmask(t *testing.T) {
	t.Helper()
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })
}

func TestRunInitFreshDirectory(t *testing.T) {
	clearUmask(t)
	dir := t.TempDir()

	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	for _, sub := range []string{"data", "plugins.d"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil {
			t.Fatalf("stat %s: %v", sub, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}

	cfg, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("stat config.yaml: %v", err)
	}
	if got := cfg.Mode().Perm(); got != 0o600 {
		t.Errorf("config.yaml mode = %o, want 0600", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "persona.md"))
	if err != nil {
		t.Fatalf("read persona.md: %v", err)
	}
	if !strings.Contains(string(data), "Kâhya") {
		t.Errorf("persona.md missing default content")
	}

	manifest, err := os.ReadFile(filepath.Join(dir, "plugins.d", "github.yaml.example"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if !strings.Contains(string(manifest), "plugin: github") {
		t.Errorf("manifest = %q", manifest)
	}

	if !strings.Contains(out.String(), "✓") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunInitSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	custom := []byte("listen: 127.0.0.1:9999\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), custom, 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, custom) {
		t.Errorf("config.yaml was overwritten")
	}
	if !strings.Contains(out.String(), "exists, skipping") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunInitIdempotent(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	out.Reset()
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	if strings.Contains(out.String(), "✓") {
		t.Errorf("second run created files: %q", out.String())
	}
}

func TestWriteIfMissing(t *testing.T) {
	clearUmask(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	var out bytes.Buffer
	if err := writeIfMissing(&out, path, []byte("first"), 0o600); err != nil {
		t.Fatalf("writeIfMissing: %v", err)
	}
	if err := writeIfMissing(&out, path, []byte("second"), 0o600); err != nil {
		t.Fatalf("writeIfMissing: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("content = %q, want %q", data, "first")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("mode = %o, want 0600", got)
	}
}
