// Package config handles Kahya configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first, then the
// KAHYA_CONFIG environment variable, then these locations in order.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kahya", "config.yaml"))
	}

	paths = append(paths, "/etc/kahya/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise KAHYA_CONFIG is honored, then DefaultSearchPaths is searched and
// the first existing file wins. Returns the path found, or an error if
// nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if env := os.Getenv("KAHYA_CONFIG"); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("config file not found: %s (from KAHYA_CONFIG)", env)
		}
		return env, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Kahya configuration.
type Config struct {
	Listen      ListenConfig            `yaml:"listen"`
	DataDir     string                  `yaml:"data_dir"`
	PersonaFile string                  `yaml:"persona_file"`
	LogLevel    string                  `yaml:"log_level"`
	LogFormat   string                  `yaml:"log_format"` // text, json
	Language    string                  `yaml:"language"`   // BCP-47 reply language tag
	Gemini      GeminiConfig            `yaml:"gemini"`
	Ollama      OllamaConfig            `yaml:"ollama"`
	Models      ModelsConfig            `yaml:"models"`
	Speech      SpeechConfig            `yaml:"speech"`
	Browser     BrowserConfig           `yaml:"browser"`
	Computer    ComputerConfig          `yaml:"computer"`
	Plugins     PluginsConfig           `yaml:"plugins"`
	Web         WebConfig               `yaml:"web"`
	MQTT        MQTTConfig              `yaml:"mqtt"`
	Pricing     map[string]PricingEntry `yaml:"pricing"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	// Model is the conversational model (default gemini-2.5-flash).
	Model string `yaml:"model"`
	// AnalyzerModel runs intent classification. Defaults to Model;
	// point it at a cheaper model to cut per-turn cost.
	AnalyzerModel string  `yaml:"analyzer_model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
}

// Configured reports whether the Gemini provider can be used.
func (g GeminiConfig) Configured() bool {
	return g.APIKey != ""
}

// OllamaConfig defines the local Ollama server settings.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// ModelsConfig defines model-to-provider routing.
type ModelsConfig struct {
	// Default is the model used when a component does not name one.
	Default   string        `yaml:"default"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // gemini, ollama
}

// SpeechConfig defines speech-to-text settings. The HTTP engine posts
// audio to an OpenAI-compatible /v1/audio/transcriptions endpoint; the
// local engine pipes audio into an external recognizer command.
type SpeechConfig struct {
	// Engine selects the primary recognizer: "http" or "local".
	// The other engine acts as fallback when both are configured.
	Engine string `yaml:"engine"`
	// URL of the transcription service, e.g. http://localhost:9000.
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
	// LocalCommand is the offline recognizer invocation; audio arrives
	// on its stdin, the transcript is read from its stdout.
	LocalCommand []string `yaml:"local_command"`
	TimeoutSec   int      `yaml:"timeout_sec"`
}

// BrowserConfig defines the web automation backend.
type BrowserConfig struct {
	Enabled  bool `yaml:"enabled"`
	Headless bool `yaml:"headless"`
	// Bin is an explicit Chrome/Chromium binary. Empty lets the
	// launcher find or download one.
	Bin           string `yaml:"bin"`
	NavTimeoutSec int    `yaml:"nav_timeout_sec"`
}

// ComputerConfig defines local command execution capabilities.
type ComputerConfig struct {
	// Enabled allows command execution. Disabled by default for safety.
	Enabled bool `yaml:"enabled"`
	// WorkingDir sets the default working directory for commands.
	WorkingDir string `yaml:"working_dir"`
	// DeniedPatterns are command substrings to block (e.g., "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// AllowedPrefixes limits commands to those starting with these prefixes.
	// Empty means all commands are allowed (subject to denied patterns).
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
	// DefaultTimeoutSec is the per-command timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
	// MaxOutputKB caps captured stdout/stderr per stream (default 64).
	MaxOutputKB int `yaml:"max_output_kb"`
	// FileRoot confines file operations (copy/move/delete). Empty
	// disables file operations entirely.
	FileRoot string `yaml:"file_root"`
}

// PluginsConfig defines plugin activation.
type PluginsConfig struct {
	// Dir holds per-plugin manifest files (plugins.d/*.yaml). Without
	// it only the built-in sample plugins are active.
	Dir string `yaml:"dir"`
}

// WebConfig defines the embedded chat UI.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	// PublicURL is the externally reachable base URL, used for the
	// pairing QR code. Defaults to http://<host>:<port>.
	PublicURL string `yaml:"public_url"`
	// AuthTokenHash is a bcrypt hash of the access token (generate
	// with `kahya hash-token`). Empty disables authentication.
	AuthTokenHash string `yaml:"auth_token_hash"`
}

// MQTTConfig defines the MQTT ask/reply channel.
type MQTTConfig struct {
	Broker       string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID     string `yaml:"client_id"`
	TopicPrefix  string `yaml:"topic_prefix"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	KeepAliveSec int    `yaml:"keep_alive_sec"`
}

// Configured reports whether the MQTT channel should start.
func (m MQTTConfig) Configured() bool {
	return m.Broker != ""
}

// PricingEntry holds per-model token pricing in USD per million tokens.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file body are expanded before parsing so secrets can stay out of
// the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied and no
// secrets set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8765
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.PersonaFile == "" {
		c.PersonaFile = "persona.md"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Language == "" {
		c.Language = "tr-TR"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Gemini.AnalyzerModel == "" {
		c.Gemini.AnalyzerModel = c.Gemini.Model
	}
	if c.Gemini.Temperature == 0 {
		c.Gemini.Temperature = 0.7
	}
	if c.Gemini.MaxTokens == 0 {
		c.Gemini.MaxTokens = 2048
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Models.Default == "" {
		if c.Gemini.Configured() {
			c.Models.Default = c.Gemini.Model
		} else {
			c.Models.Default = "qwen3:4b"
		}
	}
	if len(c.Models.Available) == 0 {
		c.Models.Available = []ModelConfig{
			{Name: c.Gemini.Model, Provider: "gemini"},
			{Name: "qwen3:4b", Provider: "ollama"},
		}
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}
	if c.Speech.TimeoutSec == 0 {
		c.Speech.TimeoutSec = 60
	}
	if c.Browser.NavTimeoutSec == 0 {
		c.Browser.NavTimeoutSec = 30
	}
	if c.Computer.DefaultTimeoutSec == 0 {
		c.Computer.DefaultTimeoutSec = 30
	}
	if c.Computer.MaxOutputKB == 0 {
		c.Computer.MaxOutputKB = 64
	}
	if len(c.Computer.DeniedPatterns) == 0 {
		c.Computer.DeniedPatterns = DefaultDeniedPatterns()
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "kahya"
	}
	if c.MQTT.KeepAliveSec == 0 {
		c.MQTT.KeepAliveSec = 30
	}
}

// DefaultDeniedPatterns returns the built-in command denylist.
func DefaultDeniedPatterns() []string {
	return []string{
		"rm -rf /",
		"rm -rf ~",
		"mkfs",
		"dd if=",
		":(){",
		"> /dev/sd",
		"shutdown",
		"reboot",
	}
}

// Validate checks the configuration for invalid values. It is called
// by Load; call it directly after mutating a Config by hand.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Listen.Port)
	}
	switch c.Speech.Engine {
	case "", "http", "local":
	default:
		return fmt.Errorf("unknown speech engine %q (valid: http, local)", c.Speech.Engine)
	}
	if c.Speech.Engine == "http" && c.Speech.URL == "" {
		return fmt.Errorf("speech engine %q requires speech.url", c.Speech.Engine)
	}
	if c.Speech.Engine == "local" && len(c.Speech.LocalCommand) == 0 {
		return fmt.Errorf("speech engine %q requires speech.local_command", c.Speech.Engine)
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "gemini", "ollama":
		default:
			return fmt.Errorf("model %q: unknown provider %q (valid: gemini, ollama)", m.Name, m.Provider)
		}
	}
	if c.MQTT.Configured() && !strings.Contains(c.MQTT.Broker, "://") {
		return fmt.Errorf("mqtt broker %q must be a URL (e.g. tcp://host:1883)", c.MQTT.Broker)
	}
	return nil
}
