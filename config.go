package ghostline

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	defaults "github.com/Paranoid-AF/ghostline/default"
)

// Supported endpoint API types.
const (
	APITypeOpenAI    = "openai"
	APITypeAnthropic = "anthropic"
)

// Config represents the user's ghostline configuration.
type Config struct {
	Version    int              `json:"version"`
	Generation GenerationConfig `json:"generation"`
	// Enable maps language identifiers to whether completions are offered.
	// "*" is the wildcard default. A nil map enables every language.
	Enable    map[string]bool `json:"enable,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// GenerationConfig holds settings for completion generation.
type GenerationConfig struct {
	// Endpoint names the endpoint to use. Empty selects the first one.
	Endpoint    string           `json:"endpoint,omitempty"`
	Endpoints   []EndpointConfig `json:"endpoints"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        float64          `json:"top_p,omitempty"`
	Stop        []string         `json:"stop,omitempty"`

	PrefixChars       int `json:"prefix_chars,omitempty"`
	SuffixChars       int `json:"suffix_chars,omitempty"`
	ThrottleMs        int `json:"throttle_ms,omitempty"`
	DebounceMs        int `json:"debounce_ms,omitempty"`
	SessionTTLSeconds int `json:"session_ttl_seconds,omitempty"`
	MaxSessions       int `json:"max_sessions,omitempty"`

	RedactShell    *bool `json:"redact_shell,omitempty"`
	ProjectContext *bool `json:"project_context,omitempty"`
}

// EndpointConfig describes one remote text-generation endpoint.
type EndpointConfig struct {
	Name    string `json:"name"`
	APIType string `json:"api_type"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model"`
	// MaxOutputTokens is the endpoint's own output limit. Zero means unknown.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

// TelemetryConfig holds telemetry settings.
type TelemetryConfig struct {
	OpenRouter *bool `json:"openrouter,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $GHOSTLINE_CONFIG_DIR > $XDG_CONFIG_HOME/ghostline > ~/.config/ghostline
func ConfigDir() string {
	if dir := os.Getenv("GHOSTLINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "ghostline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "ghostline-config")
	}
	return filepath.Join(home, ".config", "ghostline")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// PromptPath returns the system prompt override path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	var cfg Config
	if err := json.Unmarshal(defaults.DefaultConfigJSON, &cfg); err != nil {
		panic("ghostline: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a config file and fills missing fields from the defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	d := DefaultConfig()
	g := &cfg.Generation
	if len(g.Endpoints) == 0 {
		g.Endpoints = d.Generation.Endpoints
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = d.Generation.MaxTokens
	}
	if g.Temperature == nil {
		g.Temperature = d.Generation.Temperature
	}
	if g.TopP == 0 {
		g.TopP = d.Generation.TopP
	}
	if g.PrefixChars == 0 {
		g.PrefixChars = d.Generation.PrefixChars
	}
	if g.SuffixChars == 0 {
		g.SuffixChars = d.Generation.SuffixChars
	}
	if g.ThrottleMs == 0 {
		g.ThrottleMs = d.Generation.ThrottleMs
	}
	if g.DebounceMs == 0 {
		g.DebounceMs = d.Generation.DebounceMs
	}
	if g.SessionTTLSeconds == 0 {
		g.SessionTTLSeconds = d.Generation.SessionTTLSeconds
	}
	if g.MaxSessions == 0 {
		g.MaxSessions = d.Generation.MaxSessions
	}
	if g.RedactShell == nil {
		g.RedactShell = d.Generation.RedactShell
	}
	if g.ProjectContext == nil {
		g.ProjectContext = d.Generation.ProjectContext
	}
	for i := range g.Endpoints {
		if g.Endpoints[i].APIType == "" {
			g.Endpoints[i].APIType = APITypeOpenAI
		}
	}
	if cfg.Telemetry.OpenRouter == nil {
		cfg.Telemetry.OpenRouter = d.Telemetry.OpenRouter
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	g := cfg.Generation
	if len(g.Endpoints) == 0 {
		warnings = append(warnings, "no endpoints configured; completions are disabled")
	}
	seen := make(map[string]bool, len(g.Endpoints))
	for _, ep := range g.Endpoints {
		if seen[ep.Name] {
			warnings = append(warnings, fmt.Sprintf("duplicate endpoint name %q", ep.Name))
		}
		seen[ep.Name] = true
		switch ep.APIType {
		case APITypeOpenAI, APITypeAnthropic:
		default:
			warnings = append(warnings, fmt.Sprintf("endpoint %q has unknown api_type %q", ep.Name, ep.APIType))
		}
		if ep.Model == "" {
			warnings = append(warnings, fmt.Sprintf("endpoint %q has no model", ep.Name))
		}
	}
	if name := ResolveEndpointName(cfg); name != "" && !seen[name] {
		warnings = append(warnings, fmt.Sprintf("selected endpoint %q is not configured", name))
	}
	if ep, err := SelectEndpoint(cfg); err == nil && ep.APIKey == "" && EndpointRequiresKey(ep) {
		warnings = append(warnings, fmt.Sprintf("endpoint %q requires an API key; set GHOSTLINE_API_KEY", ep.Name))
	}
	if g.PrefixChars < 0 || g.SuffixChars < 0 {
		warnings = append(warnings, "prefix_chars and suffix_chars must not be negative")
	}
	return warnings
}

// ResolveEndpointName returns the name of the endpoint to use.
// Priority: $GHOSTLINE_ENDPOINT env > config value.
func ResolveEndpointName(cfg *Config) string {
	if name := os.Getenv("GHOSTLINE_ENDPOINT"); name != "" {
		return name
	}
	if cfg != nil {
		return cfg.Generation.Endpoint
	}
	return ""
}

// SelectEndpoint picks the named endpoint, or the first configured one when
// no name is set. $GHOSTLINE_API_KEY, $GHOSTLINE_BASE_URL, and
// $GHOSTLINE_MODEL override the selected endpoint's fields.
func SelectEndpoint(cfg *Config) (EndpointConfig, error) {
	if cfg == nil || len(cfg.Generation.Endpoints) == 0 {
		return EndpointConfig{}, errors.New("no endpoints configured")
	}

	var ep EndpointConfig
	name := ResolveEndpointName(cfg)
	if name == "" {
		ep = cfg.Generation.Endpoints[0]
	} else {
		found := false
		for _, candidate := range cfg.Generation.Endpoints {
			if candidate.Name == name {
				ep, found = candidate, true
				break
			}
		}
		if !found {
			return EndpointConfig{}, errors.Newf("endpoint %q not configured", name)
		}
	}

	if key := os.Getenv("GHOSTLINE_API_KEY"); key != "" {
		ep.APIKey = key
	}
	if url := os.Getenv("GHOSTLINE_BASE_URL"); url != "" {
		ep.BaseURL = url
	}
	if model := os.Getenv("GHOSTLINE_MODEL"); model != "" {
		ep.Model = model
	}
	return ep, nil
}

// EndpointRequiresKey reports whether requests to ep need an API key.
// OpenAI-compatible servers on this machine, such as Ollama, accept
// requests without one.
func EndpointRequiresKey(ep EndpointConfig) bool {
	if ep.APIType == APITypeAnthropic {
		return true
	}
	return !IsLocalEndpoint(ep.BaseURL)
}

// IsLocalEndpoint reports whether baseURL points at this machine.
func IsLocalEndpoint(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// LanguageEnabled reports whether completions are offered for a language.
// Lookup order: exact language id > "*" wildcard > enabled.
func LanguageEnabled(cfg *Config, languageID string) bool {
	if cfg == nil || cfg.Enable == nil {
		return true
	}
	if v, ok := cfg.Enable[languageID]; ok {
		return v
	}
	if v, ok := cfg.Enable["*"]; ok {
		return v
	}
	return true
}

// RedactShellEnabled returns whether shell documents are redacted before sending.
func RedactShellEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Generation.RedactShell == nil {
		return true
	}
	return *cfg.Generation.RedactShell
}

// ProjectContextEnabled returns whether project manifests are added to the prompt.
func ProjectContextEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Generation.ProjectContext == nil {
		return false
	}
	return *cfg.Generation.ProjectContext
}

// GenerationTemperature returns the sampling temperature. An explicit zero
// is kept.
func GenerationTemperature(cfg *Config) float64 {
	if cfg != nil && cfg.Generation.Temperature != nil {
		return *cfg.Generation.Temperature
	}
	if d := DefaultConfig().Generation.Temperature; d != nil {
		return *d
	}
	return 0
}

// Float returns a pointer to v, for optional config fields.
func Float(v float64) *float64 { return &v }

// OpenRouterTelemetryEnabled returns whether OpenRouter attribution headers should be sent.
func OpenRouterTelemetryEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Telemetry.OpenRouter == nil {
		return true
	}
	return *cfg.Telemetry.OpenRouter
}
