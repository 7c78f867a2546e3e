package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kahyalabs/kahya/internal/defaults"
)

// sampleManifest documents the manifest format. The .example suffix
// keeps the loader from picking it up until the user renames it.
const sampleManifest = `# Rename to github.yaml to activate.
plugin: github
enabled: true
settings:
  token: "${GITHUB_TOKEN}"
`

// runInit initializes a Kahya working directory with default files.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Kahya workspace in %s\n", dir)

	for _, sub := range []string{"data", "plugins.d"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	// config.yaml may hold API keys and the auth token hash, so it is
	// created user-only.
	files := []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{filepath.Join(dir, "config.yaml"), defaults.ConfigYAML, 0o600},
		{filepath.Join(dir, "persona.md"), defaults.PersonaMD, 0o644},
		{filepath.Join(dir, "plugins.d", "github.yaml.example"), []byte(sampleManifest), 0o644},
	}
	for _, f := range files {
		if err := writeIfMissing(w, f.path, f.data, f.mode); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and persona.md to customize your installation.")
	fmt.Fprintln(w, "Drop plugin manifests into plugins.d/ to activate more plugins.")
	return nil
}

// writeIfMissing writes data to path only if the file does not already
// exist, so init never overwrites user customizations.
func writeIfMissing(w io.Writer, path string, data []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  - %s exists, skipping\n", path)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
