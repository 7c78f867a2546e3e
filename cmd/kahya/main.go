// Kahya is a conversational household assistant.
//
// It takes text or speech input, classifies the intent with an LLM and
// dispatches to a web automation backend, local command execution, a
// plugin, or plain conversation. Interfaces are HTTP, an embedded chat
// web UI and an optional MQTT ask/reply channel. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	kahya serve              Start the server
//	kahya init [dir]         Initialize a working directory with defaults
//	kahya ask <question>     Ask a single question (for testing)
//	kahya hash-token <tok>   Print the bcrypt hash of an access token
//	kahya version            Print version and build information
//	kahya -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kahyalabs/kahya/internal/analyzer"
	"github.com/kahyalabs/kahya/internal/api"
	"github.com/kahyalabs/kahya/internal/assistant"
	"github.com/kahyalabs/kahya/internal/auth"
	"github.com/kahyalabs/kahya/internal/browser"
	"github.com/kahyalabs/kahya/internal/buildinfo"
	"github.com/kahyalabs/kahya/internal/computer"
	"github.com/kahyalabs/kahya/internal/config"
	"github.com/kahyalabs/kahya/internal/input"
	"github.com/kahyalabs/kahya/internal/llm"
	"github.com/kahyalabs/kahya/internal/memory"
	"github.com/kahyalabs/kahya/internal/mqtt"
	"github.com/kahyalabs/kahya/internal/plugin"
	"github.com/kahyalabs/kahya/internal/plugin/contacts"
	"github.com/kahyalabs/kahya/internal/plugin/danceschool"
	"github.com/kahyalabs/kahya/internal/plugin/github"
	"github.com/kahyalabs/kahya/internal/plugin/mailbox"
	"github.com/kahyalabs/kahya/internal/plugin/tourism"
	"github.com/kahyalabs/kahya/internal/responder"
	"github.com/kahyalabs/kahya/internal/usage"
	"github.com/kahyalabs/kahya/internal/web"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit, os.Stdout and os.Args out of the application logic so the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the kahya command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the servers and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:]. These are parsed manually rather than with
//     the flag package to avoid global state that interferes with
//     parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any
// failure. The caller (main) prints the error and exits.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: kahya ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "hash-token":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: kahya hash-token <token>")
		}
		return runHashToken(stdout, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Kahya - Conversational Household Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: kahya [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve              Start the server")
	fmt.Fprintln(w, "  init [dir]         Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask <question>     Ask a single question (for testing)")
	fmt.Fprintln(w, "  hash-token <tok>   Print the bcrypt hash of an access token")
	fmt.Fprintln(w, "  version            Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/kahya/config.yaml, /etc/kahya/config.yaml")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runHashToken prints the bcrypt hash for an access token, ready to
// paste into web.auth_token_hash.
func runHashToken(w io.Writer, token string) error {
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, hash)
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty that exact path is used (and must exist),
// otherwise [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// createLLMClient builds a multi-provider LLM client from the
// configuration. Each model listed in config is mapped to its provider;
// unmapped models fall through to Ollama, which acts as the default
// backend.
func createLLMClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	ollamaClient := llm.NewOllamaClient(cfg.Ollama.URL, logger)

	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.Gemini.Configured() {
		geminiClient, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		multi.AddProvider("gemini", geminiClient)
		logger.Info("gemini provider configured", "model", cfg.Gemini.Model)
	}

	// Model providers are already defaulted by applyDefaults.
	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	logger.Info("LLM client initialized", "default_model", cfg.Models.Default)
	return multi, nil
}

// builtinPlugins returns the compiled-in plugin set. Which of them
// activate, and with what settings, is decided by the manifest
// directory; without one only the sample plugins run.
func builtinPlugins() []plugin.Plugin {
	return []plugin.Plugin{
		danceschool.New(),
		tourism.New(),
		mailbox.New(),
		github.New(),
		contacts.New(),
	}
}

// defaultPlugins are activated when no manifest directory exists. The
// remaining builtins need settings (credentials), so they stay off
// until a manifest provides them.
var defaultPlugins = []string{"danceschool", "tourism"}

// runAsk handles the "kahya ask <question>" subcommand. It boots a
// minimal assistant (in-memory conversation store, no servers, no
// usage tracking) and processes a single question.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	llmClient, err := createLLMClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	persona, err := responder.LoadPersona(cfg.PersonaFile, logger)
	if err != nil {
		return err
	}

	registry := plugin.NewRegistry(logger)
	loader := plugin.NewLoader(cfg.Plugins.Dir, builtinPlugins(), logger)

	manager := assistant.New(assistant.Deps{
		Input:    input.NewProcessor(cfg.Speech, cfg.Language, logger),
		Analyzer: analyzer.New(llmClient, cfg.Gemini.AnalyzerModel, logger, nil),
		Browser:  browser.New(cfg.Browser, logger),
		Computer: computer.New(cfg.Computer, logger),
		Responder: responder.New(llmClient, responder.Options{
			Model:       cfg.Models.Default,
			Persona:     persona,
			Language:    cfg.Language,
			Temperature: cfg.Gemini.Temperature,
			MaxTokens:   cfg.Gemini.MaxTokens,
		}, logger, nil),
		Registry: registry,
		Loader:   loader,
		Store:    memory.NewMemStore(100),
		Logger:   logger,
	}, assistant.Options{
		Language:       cfg.Language,
		DefaultPlugins: defaultPlugins,
	})
	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	defer manager.Close()

	reply := manager.Process(ctx, "cli", input.Input{Kind: input.KindText, Text: question})
	fmt.Fprintln(stdout, reply.Text)
	if !reply.Success {
		return fmt.Errorf("ask failed: %s", reply.Err)
	}
	return nil
}

// runServe handles the "kahya serve" subcommand. It is the primary
// operating mode: loads config, opens databases, wires the assistant,
// starts the HTTP server (API plus optional web UI) and the optional
// MQTT bridge, then blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The MQTT bridge publishes offline and disconnects
//  3. The HTTP server drains in-flight requests
//  4. The assistant closes its components via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Kahya", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. Everything before this point logs at Info in text format.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"language", cfg.Language,
	)

	// --- Data directory ---
	// All persistent state (conversation and usage databases, the MQTT
	// instance ID) lives under this directory.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Conversation store ---
	dbPath := filepath.Join(cfg.DataDir, "kahya.db")
	store, err := memory.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open conversation database %s: %w", dbPath, err)
	}
	logger.Info("conversation database opened", "path", dbPath)

	// --- Usage tracking ---
	usagePath := filepath.Join(cfg.DataDir, "usage.db")
	usageStore, err := usage.NewStore(usagePath)
	if err != nil {
		return fmt.Errorf("open usage database %s: %w", usagePath, err)
	}
	defer usageStore.Close()
	tracker := usage.NewTracker(usageStore, cfg.Pricing, logger)

	// --- LLM client ---
	llmClient, err := createLLMClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// --- Persona ---
	persona, err := responder.LoadPersona(cfg.PersonaFile, logger)
	if err != nil {
		return err
	}
	if persona != "" {
		logger.Info("persona loaded", "path", cfg.PersonaFile, "size", len(persona))
	}

	// --- Assistant ---
	registry := plugin.NewRegistry(logger)
	loader := plugin.NewLoader(cfg.Plugins.Dir, builtinPlugins(), logger)

	manager := assistant.New(assistant.Deps{
		Input:    input.NewProcessor(cfg.Speech, cfg.Language, logger),
		Analyzer: analyzer.New(llmClient, cfg.Gemini.AnalyzerModel, logger, tracker),
		Browser:  browser.New(cfg.Browser, logger),
		Computer: computer.New(cfg.Computer, logger),
		Responder: responder.New(llmClient, responder.Options{
			Model:       cfg.Models.Default,
			Persona:     persona,
			Language:    cfg.Language,
			Temperature: cfg.Gemini.Temperature,
			MaxTokens:   cfg.Gemini.MaxTokens,
		}, logger, tracker),
		Registry: registry,
		Loader:   loader,
		Store:    store,
		Logger:   logger,
	}, assistant.Options{
		Language:       cfg.Language,
		DefaultPlugins: defaultPlugins,
	})
	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	defer manager.Close() // also closes the conversation store

	// --- HTTP server ---
	// One listener serves the API and, when enabled, the chat web UI.
	verifier := auth.NewVerifier(cfg.Web.AuthTokenHash)
	addr := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(addr, manager, registry, store, usageStore, verifier, logger)

	handler := server.Handler()
	if cfg.Web.Enabled {
		publicURL := cfg.Web.PublicURL
		if publicURL == "" {
			host := cfg.Listen.Address
			if host == "" {
				host = "localhost"
			}
			publicURL = fmt.Sprintf("http://%s:%d/chat", host, cfg.Listen.Port)
		}

		mux := http.NewServeMux()
		webServer := web.NewServer(manager, store, verifier, publicURL, logger)
		webServer.Register(mux)
		mux.Handle("/", server.Routes())
		// The web routes share the API's logging and recovery chain.
		handler = server.Wrap(mux)
		logger.Info("web UI enabled", "public_url", publicURL)
	}

	// --- MQTT bridge ---
	var bridge *mqtt.Bridge
	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		bridge = mqtt.NewBridge(cfg.MQTT, instanceID, manager, logger)
		go func() {
			if err := bridge.Start(ctx); err != nil {
				logger.Error("mqtt bridge failed", "error", err)
			}
		}()
		logger.Info("mqtt bridge enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt bridge disabled (not configured)")
	}

	// --- Signal handling and graceful shutdown ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if bridge != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := bridge.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	// Start the HTTP server. Blocks until shutdown via context
	// cancellation or a fatal error.
	if err := server.Start(handler); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Kahya stopped")
	return nil
}
