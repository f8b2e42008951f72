package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for personabot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Memory   MemoryConfig   `json:"memory"`
	LLM      LLMConfig      `json:"llm"`
	Routing  RoutingConfig  `json:"routing"`
	Channels ChannelsConfig `json:"channels"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"` // optional log file path
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	CharactersDir         string `json:"charactersDir,omitempty"`
	DefaultAgent          string `json:"defaultAgent"` // agentId used when an input names none
}

type MemoryConfig struct {
	Driver      string `json:"driver"` // "sqlite" | "memory"
	DBPath      string `json:"dbPath"`
	RecentLimit int    `json:"recentLimit"`
}

// LLMConfig selects the generation backend. Provider names "openai", "anthropic"
// and "ollama" are built in; FailoverChain entries refer to Providers.
type LLMConfig struct {
	Provider           string                       `json:"provider"`
	APIKey             string                       `json:"apiKey,omitempty"`
	APIBase            string                       `json:"apiBase,omitempty"`
	SmallModel         string                       `json:"smallModel,omitempty"`
	LargeModel         string                       `json:"largeModel,omitempty"`
	FailoverChain      []string                     `json:"failoverChain,omitempty"`
	RateLimitPerMinute int                          `json:"rateLimitPerMinute,omitempty"`
	Providers          map[string]LLMProviderConfig `json:"providers,omitempty"`
}

// LLMProviderConfig configures one failover chain member.
type LLMProviderConfig struct {
	Kind       string `json:"kind"` // "openai" | "anthropic" | "ollama"
	APIKey     string `json:"apiKey,omitempty"`
	APIBase    string `json:"apiBase,omitempty"`
	SmallModel string `json:"smallModel,omitempty"`
	LargeModel string `json:"largeModel,omitempty"`
}

type RoutingConfig struct {
	Strategy string `json:"strategy"` // "default" | "keyword" | "llm"
}

type ChannelsConfig struct {
	Network  NetworkConfig  `json:"network"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Twitter  TwitterConfig  `json:"twitter,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
}

type NetworkConfig struct {
	Enabled   bool   `json:"enabled"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	WebSocket bool   `json:"websocket"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	DryRun  bool   `json:"dryRun,omitempty"` // process messages without replying
}

type TwitterConfig struct {
	Enabled                bool   `json:"enabled"`
	BearerToken            string `json:"bearerToken"`
	UserID                 string `json:"userId"` // the bot account's numeric id
	APIBase                string `json:"apiBase,omitempty"`
	PollingIntervalMinutes int    `json:"pollingIntervalMinutes"`
	DryRun                 bool   `json:"dryRun,omitempty"`
	RateLimitPerMinute     int    `json:"rateLimitPerMinute,omitempty"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// MetricsConfig controls the Prometheus text endpoint on the network channel.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.personabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".personabot"
	}
	return filepath.Join(home, ".personabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.CharactersDir = ExpandPath(cfg.General.CharactersDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.DefaultAgent == "" {
		errs = append(errs, "general.defaultAgent is required")
	}

	switch cfg.Memory.Driver {
	case "sqlite":
		if cfg.Memory.DBPath == "" {
			errs = append(errs, "memory.dbPath is required for the sqlite driver")
		}
	case "memory":
	default:
		errs = append(errs, "memory.driver must be one of: sqlite, memory")
	}
	if cfg.Memory.RecentLimit < 1 || cfg.Memory.RecentLimit > 1000 {
		errs = append(errs, "memory.recentLimit must be between 1 and 1000")
	}

	if !knownLLMKind(cfg.LLM.Provider) {
		errs = append(errs, fmt.Sprintf("llm.provider must be one of: openai, anthropic, ollama (got %q)", cfg.LLM.Provider))
	}
	if cfg.LLM.RateLimitPerMinute < 0 {
		errs = append(errs, "llm.rateLimitPerMinute must be >= 0")
	}
	for _, name := range cfg.LLM.FailoverChain {
		pc, ok := cfg.LLM.Providers[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("llm.failoverChain references unknown provider: %s", name))
			continue
		}
		if !knownLLMKind(pc.Kind) {
			errs = append(errs, fmt.Sprintf("llm.providers.%s: unknown kind %q", name, pc.Kind))
		}
	}

	switch cfg.Routing.Strategy {
	case "default", "keyword", "llm":
	default:
		errs = append(errs, "routing.strategy must be one of: default, keyword, llm")
	}

	net := cfg.Channels.Network
	if net.Port < 0 || net.Port > 65535 {
		errs = append(errs, "channels.network.port must be between 0 and 65535")
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}
	tw := cfg.Channels.Twitter
	if tw.Enabled {
		if tw.BearerToken == "" || tw.UserID == "" {
			errs = append(errs, "channels.twitter.bearerToken and userId are required when twitter is enabled")
		}
		if tw.PollingIntervalMinutes < 1 {
			errs = append(errs, "channels.twitter.pollingIntervalMinutes must be >= 1")
		}
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Channels.Slack.Enabled && (cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "") {
		errs = append(errs, "channels.slack.botToken and appToken are required when slack is enabled")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func knownLLMKind(kind string) bool {
	switch kind {
	case "openai", "anthropic", "ollama":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
