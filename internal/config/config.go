// Package config handles Lumen configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths lists where FindConfig looks, in order: the
// working directory, the user config directory, then /etc/lumen.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lumen", "config.yaml"))
	}
	return append(paths, "/etc/lumen/config.yaml")
}

// FindConfig returns explicit if it exists, else the first existing
// file from DefaultSearchPaths.
func FindConfig(explicit string) (string, error) {
	exists := func(p string) bool {
		info, err := os.Stat(p)
		return err == nil && !info.IsDir()
	}
	if explicit != "" {
		if !exists(explicit) {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	candidates := DefaultSearchPaths()
	for _, p := range candidates {
		if exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %s)", strings.Join(candidates, ", "))
}

// Config holds all Lumen configuration.
type Config struct {
	Listen     ListenConfig              `yaml:"listen"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Models     []ModelConfig             `yaml:"models"`
	Agent      AgentConfig               `yaml:"agent"`
	Tools      ToolsConfig               `yaml:"tools"`
	Search     SearchConfig              `yaml:"search"`
	Knowledge  KnowledgeConfig           `yaml:"knowledge"`
	Embeddings EmbeddingsConfig          `yaml:"embeddings"`
	Maps       MapsConfig                `yaml:"maps"`
	Weather    WeatherConfig             `yaml:"weather"`
	Calendar   CalendarConfig            `yaml:"calendar"`
	CodeExec   CodeExecConfig            `yaml:"code_exec"`
	MQTT       MQTTConfig                `yaml:"mqtt"`
	DataDir    string                    `yaml:"data_dir"`
	LogLevel   string                    `yaml:"log_level"`
	LogFormat  string                    `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig holds credentials and the endpoint for one LLM company.
// The map key in [Config.Providers] is the lower-case company name
// (openai, deepseek, zhipu, qwen, siliconflow, openrouter, ollama, ...).
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"` // Full chat completions URL; empty uses the provider default
}

// ModelConfig describes one model the agent may talk to.
type ModelConfig struct {
	Name            string `yaml:"name"`
	Company         string `yaml:"company"`
	DisplayName     string `yaml:"display_name"`
	Tools           bool   `yaml:"tools"`
	Reasoning       bool   `yaml:"reasoning"`
	ReasoningChange bool   `yaml:"reasoning_change"` // Reasoning can be toggled per request
	Multimodal      bool   `yaml:"multimodal"`
	Voice           bool   `yaml:"voice"`
	InlineThinkTags bool   `yaml:"inline_think_tags"` // Reasoning arrives inside <think> tags in content
	Identity        string `yaml:"identity"`
	CharacterDesign string `yaml:"character_design"`
}

// AgentConfig tunes the conversation driver.
type AgentConfig struct {
	DefaultModel  string  `yaml:"default_model"`
	Locale        string  `yaml:"locale"`         // e.g. en-US, zh-Hans
	MaxToolDepth  int     `yaml:"max_tool_depth"` // Recursion bound for tool turns (default 8)
	ToolDelayMS   int     `yaml:"tool_delay_ms"`  // Pause before recursing (default 300)
	Temperature   float64 `yaml:"temperature"`
	TopP          float64 `yaml:"top_p"`
	MaxTokens     int     `yaml:"max_tokens"`
	ShowReasoning bool    `yaml:"show_reasoning"`
	Reasoning     bool    `yaml:"reasoning"` // Request reasoning from models that can toggle it
	UserProfile   string  `yaml:"user_profile"`
	SystemPrompt  string  `yaml:"system_prompt"`
}

// ToolsConfig gates tool availability.
type ToolsConfig struct {
	// Enabled turns tool use on or off globally.
	Enabled bool `yaml:"enabled"`
	// Flags disables or enables individual tools by name. Tools not
	// listed are enabled.
	Flags map[string]bool `yaml:"flags"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	Primary   string        `yaml:"primary"` // brave, searxng, or tavily
	Count     int           `yaml:"count"`
	Bilingual bool          `yaml:"bilingual"` // Also search in the other supported language
	Brave     BraveConfig   `yaml:"brave"`
	SearXNG   SearXNGConfig `yaml:"searxng"`
	Tavily    TavilyConfig  `yaml:"tavily"`
}

// BraveConfig holds configuration for the Brave Search provider.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether a Brave API key is set.
func (c BraveConfig) Configured() bool { return c.APIKey != "" }

// SearXNGConfig holds configuration for the SearXNG provider.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether a SearXNG URL is set.
func (c SearXNGConfig) Configured() bool { return c.URL != "" }

// TavilyConfig holds configuration for the Tavily provider.
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether a Tavily API key is set.
func (c TavilyConfig) Configured() bool { return c.APIKey != "" }

// KnowledgeConfig configures the local knowledge bag.
type KnowledgeConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"` // Minimum combined score (default 0.5)
	TopK      int     `yaml:"top_k"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL
}

// MapsConfig configures geocoding and routing.
type MapsConfig struct {
	Enabled      bool    `yaml:"enabled"`
	NominatimURL string  `yaml:"nominatim_url"`
	OSRMURL      string  `yaml:"osrm_url"`
	Latitude     float64 `yaml:"latitude"` // Device position reported by get_current_location
	Longitude    float64 `yaml:"longitude"`
}

// WeatherConfig configures the weather provider.
type WeatherConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Units   string `yaml:"units"` // metric (default) or imperial
}

// Configured reports whether a weather API key is set.
func (c WeatherConfig) Configured() bool { return c.APIKey != "" }

// CalendarConfig configures the CalDAV server used for events and
// reminders.
type CalendarConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether a CalDAV endpoint is set.
func (c CalendarConfig) Configured() bool { return c.URL != "" }

// CodeExecConfig defines python execution capabilities.
type CodeExecConfig struct {
	// Enabled allows code execution. Disabled by default for safety.
	Enabled        bool   `yaml:"enabled"`
	Python         string `yaml:"python"` // Interpreter path (default python3)
	WorkingDir     string `yaml:"working_dir"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	MaxOutputBytes int    `yaml:"max_output_bytes"`
}

// MQTTConfig configures the optional event mirror.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Configured reports whether a broker is set.
func (c MQTTConfig) Configured() bool { return c.Broker != "" }

// APIKey returns the API key configured for company, or "".
func (c *Config) APIKey(company string) string {
	return c.Providers[strings.ToLower(company)].APIKey
}

// RequestURL returns the chat completions URL configured for company,
// or "" when the provider default should be used.
func (c *Config) RequestURL(company string) string {
	return c.Providers[strings.ToLower(company)].URL
}

// ToolEnabled reports whether the named tool may be offered to models.
func (c *Config) ToolEnabled(name string) bool {
	if !c.Tools.Enabled {
		return false
	}
	enabled, ok := c.Tools.Flags[name]
	return !ok || enabled
}

// Load parses the YAML file at path over [Default], expanding ${VAR}
// references from the environment first, then validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Agent.MaxToolDepth < 0 {
		return fmt.Errorf("agent.max_tool_depth must not be negative")
	}
	if c.Knowledge.Threshold < 0 || c.Knowledge.Threshold > 1 {
		return fmt.Errorf("knowledge.threshold %.2f out of range [0,1]", c.Knowledge.Threshold)
	}
	if c.MQTT.Configured() {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("mqtt.broker %q is not a URL", c.MQTT.Broker)
		}
		switch u.Scheme {
		case "mqtt", "tcp", "mqtts", "ssl", "ws", "wss":
		default:
			return fmt.Errorf("mqtt.broker scheme %q not supported", u.Scheme)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Listen.Port == 0 {
		c.Listen.Port = d.Listen.Port
	}
	if c.Agent.MaxToolDepth == 0 {
		c.Agent.MaxToolDepth = d.Agent.MaxToolDepth
	}
	if c.Agent.ToolDelayMS == 0 {
		c.Agent.ToolDelayMS = d.Agent.ToolDelayMS
	}
	if c.Agent.Locale == "" {
		c.Agent.Locale = d.Agent.Locale
	}
	if c.Search.Count == 0 {
		c.Search.Count = d.Search.Count
	}
	if c.Knowledge.TopK == 0 {
		c.Knowledge.TopK = d.Knowledge.TopK
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "lumen"
	}
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Agent: AgentConfig{
			Locale:       "en-US",
			MaxToolDepth: 8,
			ToolDelayMS:  300,
		},
		Tools:     ToolsConfig{Enabled: true},
		Search:    SearchConfig{Count: 5},
		Knowledge: KnowledgeConfig{Threshold: 0.5, TopK: 5},
		DataDir:   "./data",
	}
}
