// ABOUTME: Configuration loading and parsing for helpdesk-bridge
// ABOUTME: Loads TOML config with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete helpdesk-bridge configuration.
type Config struct {
	Matrix    MatrixConfig    `toml:"matrix"`
	Assistant AssistantConfig `toml:"assistant"`
	Limits    LimitsConfig    `toml:"limits"`
	Commands  CommandsConfig  `toml:"commands"`
	Language  LanguageConfig  `toml:"language"`
	Storage   StorageConfig   `toml:"storage"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Logging   LoggingConfig   `toml:"logging"`
}

// MatrixConfig holds the chat platform connection settings.
type MatrixConfig struct {
	Homeserver      string   `toml:"homeserver"`
	UserID          string   `toml:"user_id"`
	AccessToken     string   `toml:"access_token"`
	OperatorID      string   `toml:"operator_id"`
	AllowedRooms    []string `toml:"allowed_rooms"`
	PrivilegedUsers []string `toml:"privileged_users"`
}

// AssistantConfig holds the inference provider settings.
type AssistantConfig struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	AssistantID         string `toml:"assistant_id"`
	SummaryModel        string `toml:"summary_model"`
	MaxCompletionTokens int    `toml:"max_completion_tokens"`
	PricingFile         string `toml:"pricing_file"`

	RunTimeout   time.Duration `toml:"-"`
	PollInterval time.Duration `toml:"-"`

	// Raw string values for TOML unmarshaling
	RunTimeoutRaw   string `toml:"run_timeout"`
	PollIntervalRaw string `toml:"poll_interval"`
}

// LimitsConfig holds the moderation limits.
type LimitsConfig struct {
	MaxMessageChars    int     `toml:"max_message_chars"`
	MaxUserTurns       int     `toml:"max_user_turns"`
	MaxAttachments     int     `toml:"max_attachments"`
	MaxImageDimension  int     `toml:"max_image_dimension"`
	StorageCapacityGiB float64 `toml:"storage_capacity_gib"`
}

// CommandsConfig holds the inbound command prefixes.
type CommandsConfig struct {
	Help       string `toml:"help"`
	Review     string `toml:"review"`
	Correction string `toml:"correction"`
	Refresh    string `toml:"refresh"`
	LastUpdate string `toml:"last_update"`
}

// LanguageConfig holds the detection and translation settings.
type LanguageConfig struct {
	Default       string  `toml:"default"`
	MinConfidence float64 `toml:"min_confidence"`
	MinWords      int     `toml:"min_words"`
	TranslatorURL string  `toml:"translator_url"`
}

// StorageConfig holds the persistence paths.
type StorageConfig struct {
	ConversationFile string `toml:"conversation_file"`
	UsageDB          string `toml:"usage_db"`
	LogFile          string `toml:"log_file"`
}

// KnowledgeConfig holds the knowledge-refresh collaborator settings.
type KnowledgeConfig struct {
	StateFile      string   `toml:"state_file"`
	RefreshCommand []string `toml:"refresh_command"`

	MaxAge time.Duration `toml:"-"`

	MaxAgeRaw string `toml:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding environment variables and
// applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Limits.MaxMessageChars == 0 {
		c.Limits.MaxMessageChars = 2000
	}
	if c.Limits.MaxUserTurns == 0 {
		c.Limits.MaxUserTurns = 10
	}
	if c.Limits.MaxAttachments == 0 {
		c.Limits.MaxAttachments = 3
	}
	if c.Limits.MaxImageDimension == 0 {
		c.Limits.MaxImageDimension = 512
	}
	if c.Limits.StorageCapacityGiB == 0 {
		c.Limits.StorageCapacityGiB = 10
	}
	if c.Assistant.SummaryModel == "" {
		c.Assistant.SummaryModel = "gpt-4o"
	}
	if c.Assistant.MaxCompletionTokens == 0 {
		c.Assistant.MaxCompletionTokens = 2000
	}
	if c.Commands.Help == "" {
		c.Commands.Help = "!help"
	}
	if c.Commands.Review == "" {
		c.Commands.Review = "!review"
	}
	if c.Commands.Correction == "" {
		c.Commands.Correction = "!correct"
	}
	if c.Commands.Refresh == "" {
		c.Commands.Refresh = "!refresh"
	}
	if c.Commands.LastUpdate == "" {
		c.Commands.LastUpdate = "!lastupdate"
	}
	if c.Language.Default == "" {
		c.Language.Default = "en"
	}
	if c.Language.MinConfidence == 0 {
		c.Language.MinConfidence = 0.6
	}
	if c.Language.MinWords == 0 {
		c.Language.MinWords = 5
	}
	if c.Language.TranslatorURL == "" {
		c.Language.TranslatorURL = "https://translate.googleapis.com"
	}
	if c.Storage.ConversationFile == "" {
		c.Storage.ConversationFile = "conversation_logging.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) parseDurations() error {
	var err error
	c.Assistant.RunTimeout, err = parseDuration(c.Assistant.RunTimeoutRaw, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("parsing assistant.run_timeout: %w", err)
	}
	c.Assistant.PollInterval, err = parseDuration(c.Assistant.PollIntervalRaw, time.Second)
	if err != nil {
		return fmt.Errorf("parsing assistant.poll_interval: %w", err)
	}
	c.Knowledge.MaxAge, err = parseDuration(c.Knowledge.MaxAgeRaw, 0)
	if err != nil {
		return fmt.Errorf("parsing knowledge.max_age: %w", err)
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required")
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.access_token is required")
	}
	if c.Assistant.APIKey == "" {
		return fmt.Errorf("assistant.api_key is required")
	}
	if c.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if c.Assistant.PricingFile == "" {
		return fmt.Errorf("assistant.pricing_file is required")
	}
	return nil
}
