// Package input normalizes user input before analysis. Text passes
// through as-is; speech is transcribed through a configurable engine
// chain with an online service first and an offline command as
// fallback.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kahyalabs/kahya/internal/config"
)

// Kind distinguishes input modalities.
type Kind string

const (
	KindText   Kind = "text"
	KindSpeech Kind = "speech"
)

// Input is a raw user input.
type Input struct {
	Kind  Kind
	Text  string
	Audio []byte
}

// Processed is the normalized result ready for analysis.
type Processed struct {
	Kind     Kind   `json:"kind"`
	Content  string `json:"content"`
	Language string `json:"language"`
	// Engine names the transcriber that produced the text. Empty for
	// text input.
	Engine string `json:"engine,omitempty"`
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// engine pairs a transcriber with its name for the Processed record.
type engine struct {
	name string
	t    Transcriber
}

// Processor normalizes text and speech input.
type Processor struct {
	language string
	chain    []engine
	logger   *slog.Logger
}

// NewProcessor builds a processor from the speech configuration. The
// configured engine runs first; the other becomes the fallback when
// both are set up.
func NewProcessor(cfg config.SpeechConfig, language string, logger *slog.Logger) *Processor {
	p := &Processor{
		language: language,
		logger:   logger.With("component", "input"),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	var httpEng, localEng *engine
	if cfg.URL != "" {
		httpEng = &engine{
			name: "http",
			t:    NewHTTPTranscriber(cfg.URL, cfg.Model, language, timeout, logger),
		}
	}
	if len(cfg.LocalCommand) > 0 {
		localEng = &engine{
			name: "local",
			t:    NewExecTranscriber(cfg.LocalCommand, timeout, logger),
		}
	}

	switch cfg.Engine {
	case "local":
		p.appendEngine(localEng)
		p.appendEngine(httpEng)
	default:
		p.appendEngine(httpEng)
		p.appendEngine(localEng)
	}

	return p
}

func (p *Processor) appendEngine(e *engine) {
	if e != nil {
		p.chain = append(p.chain, *e)
	}
}

// Process normalizes one input. Text is trimmed and tagged with the
// configured language; speech runs through the transcriber chain.
func (p *Processor) Process(ctx context.Context, in Input) (*Processed, error) {
	switch in.Kind {
	case KindText:
		return &Processed{
			Kind:     KindText,
			Content:  strings.TrimSpace(in.Text),
			Language: p.language,
		}, nil

	case KindSpeech:
		return p.processSpeech(ctx, in.Audio)

	default:
		return nil, fmt.Errorf("unknown input kind %q", in.Kind)
	}
}

// processSpeech runs the transcriber chain in order, returning the
// first successful transcript. Failures short of the last engine are
// logged and the next engine tried.
func (p *Processor) processSpeech(ctx context.Context, audio []byte) (*Processed, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech input has no audio data")
	}
	if len(p.chain) == 0 {
		return nil, fmt.Errorf("no speech engine configured")
	}

	var lastErr error
	for _, e := range p.chain {
		text, err := e.t.Transcribe(ctx, audio)
		if err != nil {
			p.logger.Warn("transcription failed", "engine", e.name, "error", err)
			lastErr = err
			continue
		}
		return &Processed{
			Kind:     KindSpeech,
			Content:  strings.TrimSpace(text),
			Language: p.language,
			Engine:   e.name,
		}, nil
	}

	return nil, fmt.Errorf("all speech engines failed: %w", lastErr)
}
