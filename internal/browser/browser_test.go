package browser

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kahyalabs/kahya/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunDisabled(t *testing.T) {
	a := New(config.BrowserConfig{Enabled: false}, discardLogger())

	_, err := a.Run(context.Background(), Task{Action: "navigate", URL: "https://example.com"})
	if err == nil {
		t.Fatal("expected error when disabled")
	}
	if !strings.Contains(err.Error(), "disabled") {
		t.Errorf("error = %v", err)
	}
}

func TestRunUnsupportedAction(t *testing.T) {
	a := New(config.BrowserConfig{Enabled: true}, discardLogger())

	_, err := a.Run(context.Background(), Task{Action: "scroll", URL: "https://example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "scroll") {
		t.Errorf("error should name the action: %v", err)
	}
}

func TestRunRequiresURL(t *testing.T) {
	a := New(config.BrowserConfig{Enabled: true}, discardLogger())

	for _, action := range []string{"navigate", "click", "type", "extract"} {
		_, err := a.Run(context.Background(), Task{Action: action})
		if err == nil {
			t.Errorf("action %s without url should fail", action)
		}
	}
}

func TestRunRequiresSelector(t *testing.T) {
	a := New(config.BrowserConfig{Enabled: true}, discardLogger())

	for _, action := range []string{"click", "type"} {
		_, err := a.Run(context.Background(), Task{Action: action, URL: "https://example.com"})
		if err == nil {
			t.Errorf("action %s without selector should fail", action)
		}
		if err != nil && !strings.Contains(err.Error(), "selector") {
			t.Errorf("error = %v", err)
		}
	}
}

func TestExtractWithoutSelector(t *testing.T) {
	// Without a selector, extraction goes through the plain HTTP
	// fetcher; no browser process is involved.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Haberler</title></head><body><p>Bugünün manşetleri burada.</p></body></html>`))
	}))
	defer ts.Close()

	a := New(config.BrowserConfig{Enabled: true}, discardLogger())
	result, err := a.Run(context.Background(), Task{Action: "extract", URL: ts.URL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Data, "Haberler") {
		t.Errorf("Data missing title: %q", result.Data)
	}
	if !strings.Contains(result.Data, "manşetleri") {
		t.Errorf("Data missing body text: %q", result.Data)
	}
	if a.browser != nil {
		t.Error("fetch-based extraction must not launch the browser")
	}
}

func TestTaskFromParams(t *testing.T) {
	params := map[string]any{
		"action":   "type",
		"url":      "https://example.com/login",
		"selector": "#user",
		"text":     "kahya",
	}

	task := TaskFromParams(params)

	if task.Action != "type" || task.URL != "https://example.com/login" {
		t.Errorf("task = %+v", task)
	}
	if task.Selector != "#user" || task.Text != "kahya" {
		t.Errorf("task = %+v", task)
	}
}

func TestTaskFromParamsIgnoresWrongTypes(t *testing.T) {
	task := TaskFromParams(map[string]any{"action": 42, "url": true})
	if task.Action != "" || task.URL != "" {
		t.Errorf("expected zero fields, got %+v", task)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"https://example.com", "https://example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeURL(tt.in); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCloseWithoutLaunch(t *testing.T) {
	a := New(config.BrowserConfig{Enabled: true}, discardLogger())
	if err := a.Close(); err != nil {
		t.Errorf("Close on unlaunched browser: %v", err)
	}
}
