package input

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTranscriber(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt ")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		if got := r.FormValue("language"); got != "tr" {
			t.Errorf("language = %q, want tr", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "merhaba dünya"}`))
	}))
	defer ts.Close()

	tr := NewHTTPTranscriber(ts.URL, "whisper-1", "tr-TR", 10*time.Second, discardLogger())
	text, err := tr.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "merhaba dünya" {
		t.Errorf("text = %q", text)
	}
}

func TestHTTPTranscriberAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "model not loaded"}`))
	}))
	defer ts.Close()

	tr := NewHTTPTranscriber(ts.URL, "whisper-1", "tr", 10*time.Second, discardLogger())
	_, err := tr.Transcribe(context.Background(), []byte{1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "API error 500") {
		t.Errorf("error = %v, want API error 500", err)
	}
}

func TestPrimarySubtag(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"tr-TR", "tr"},
		{"en-US", "en"},
		{"de", "de"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := primarySubtag(tt.in); got != tt.want {
			t.Errorf("primarySubtag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExecTranscriber(t *testing.T) {
	// cat echoes stdin, so the "transcript" is the audio bytes.
	tr := NewExecTranscriber([]string{"cat"}, 5*time.Second, discardLogger())

	text, err := tr.Transcribe(context.Background(), []byte("merhaba\n"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "merhaba" {
		t.Errorf("text = %q, want merhaba", text)
	}
}

func TestExecTranscriberFailure(t *testing.T) {
	tr := NewExecTranscriber([]string{"false"}, 5*time.Second, discardLogger())

	_, err := tr.Transcribe(context.Background(), []byte{1})
	if err == nil {
		t.Error("expected error from failing command")
	}
}

func TestExecTranscriberNoCommand(t *testing.T) {
	tr := NewExecTranscriber(nil, 5*time.Second, discardLogger())

	_, err := tr.Transcribe(context.Background(), []byte{1})
	if err == nil {
		t.Error("expected error when no command is configured")
	}
}
