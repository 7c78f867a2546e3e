package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kahyalabs/kahya/internal/auth"
)

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), stderr.String(), err
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	stdout, _, err := runCmd(t)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "Usage: kahya") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunHelp(t *testing.T) {
	stdout, _, err := runCmd(t, "--help")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "hash-token") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	_, _, err := runCmd(t, "frobnicate")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	_, _, err := runCmd(t, "-bogus")
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("error = %v", err)
	}
}

func TestRunBadOutputFormat(t *testing.T) {
	_, _, err := runCmd(t, "-o", "yaml", "version")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("error = %v", err)
	}
}

func TestRunVersionText(t *testing.T) {
	stdout, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "Kahya") || !strings.Contains(stdout, "go_version:") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunVersionJSON(t *testing.T) {
	stdout, _, err := runCmd(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, `"go_version"`) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunHashToken(t *testing.T) {
	stdout, _, err := runCmd(t, "hash-token", "sekret")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	hash := strings.TrimSpace(stdout)
	if !auth.NewVerifier(hash).Allow("sekret") {
		t.Errorf("hash %q does not verify the token", hash)
	}
}

func TestRunHashTokenRequiresArg(t *testing.T) {
	_, _, err := runCmd(t, "hash-token")
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Errorf("error = %v", err)
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	_, _, err := runCmd(t, "ask")
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Errorf("error = %v", err)
	}
}

func TestRunServeMissingConfig(t *testing.T) {
	_, _, err := runCmd(t, "-config", "/nonexistent/config.yaml", "serve")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v", err)
	}
}
