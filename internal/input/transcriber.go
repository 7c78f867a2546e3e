package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/kahyalabs/kahya/internal/httpkit"
)

// HTTPTranscriber posts audio to an OpenAI-compatible
// /v1/audio/transcriptions endpoint (Whisper servers, LocalAI and
// similar front-ends speak this shape).
type HTTPTranscriber struct {
	baseURL  string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPTranscriber creates a transcriber for the service at baseURL.
// language is a BCP-47 tag; only the primary subtag is sent.
func NewHTTPTranscriber(baseURL, model, language string, timeout time.Duration, logger *slog.Logger) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    model,
		language: primarySubtag(language),
		client: httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithLogger(logger),
		),
		logger: logger.With("transcriber", "http"),
	}
}

// Transcribe uploads the audio as a multipart WAV and returns the
// transcript text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if t.model != "" {
		writer.WriteField("model", t.model)
	}
	if t.language != "" {
		writer.WriteField("language", t.language)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	url := t.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 4096)
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, msg)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return payload.Text, nil
}

// primarySubtag reduces a BCP-47 tag like "tr-TR" to "tr", which is
// what transcription APIs expect.
func primarySubtag(language string) string {
	if i := strings.IndexByte(language, '-'); i > 0 {
		return language[:i]
	}
	return language
}

// ExecTranscriber pipes audio into an external recognizer command and
// reads the transcript from its stdout. It backs the offline path when
// the online service is unreachable.
type ExecTranscriber struct {
	command []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecTranscriber creates a transcriber running the given command.
func NewExecTranscriber(command []string, timeout time.Duration, logger *slog.Logger) *ExecTranscriber {
	return &ExecTranscriber{
		command: command,
		timeout: timeout,
		logger:  logger.With("transcriber", "local"),
	}
}

// Transcribe runs the command with the audio on stdin.
func (t *ExecTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(t.command) == 0 {
		return "", fmt.Errorf("no transcriber command configured")
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.command[0], t.command[1:]...)
	cmd.Stdin = bytes.NewReader(audio)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("transcriber command: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("transcriber command: %w", err)
	}

	return strings.TrimSpace(stdout.String()), nil
}
