package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Provider string `yaml:"provider"`

	// Azure OpenAI
	AIResource   string `yaml:"ai_resource"`
	AIAPIKey     string `yaml:"ai_api_key"`
	AIDeployment string `yaml:"ai_deployment"`
	AIAPIVersion string `yaml:"ai_api_version"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	GiphyAPIKey string `yaml:"giphy_api_key"`

	MaxSteps    int           `yaml:"max_steps"`
	MaxRetries  int           `yaml:"max_retries"`
	ChatTimeout time.Duration `yaml:"chat_timeout"`
}

func defaults() Config {
	return Config{
		Port:           "3000",
		LogLevel:       "info",
		Provider:       ProviderAzure,
		AIDeployment:   "gpt-4o-mini",
		AIAPIVersion:   "2024-10-21",
		AnthropicModel: "claude-sonnet-4-20250514",
		MaxSteps:       30,
		MaxRetries:     2,
		ChatTimeout:    2 * time.Minute,
	}
}

// Load reads configuration once at start: defaults, then the optional YAML
// file named by DECLARATIONS_CONFIG, then the environment (including a local
// .env file). Later sources win.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("DECLARATIONS_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Provider, "AI_PROVIDER")
	setString(&c.AIResource, "AI_RESOURCE")
	setString(&c.AIAPIKey, "AI_API_KEY")
	setString(&c.AIDeployment, "AI_DEPLOYMENT")
	setString(&c.AIAPIVersion, "AI_API_VERSION")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.AnthropicModel, "ANTHROPIC_MODEL")
	setString(&c.GiphyAPIKey, "GIPHY_API_KEY")

	if err := setInt(&c.MaxSteps, "MAX_STEPS"); err != nil {
		return err
	}
	if err := setInt(&c.MaxRetries, "MAX_RETRIES"); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("CHAT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHAT_TIMEOUT %q: %w", v, err)
		}
		c.ChatTimeout = d
	}
	return nil
}

// Validate fails fast when the selected provider cannot be reached, so a
// misconfigured server never starts serving chat.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderAzure:
		if c.AIResource == "" {
			errs = append(errs, errors.New("AI_RESOURCE environment variable is required"))
		}
		if c.AIAPIKey == "" {
			errs = append(errs, errors.New("AI_API_KEY environment variable is required"))
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY environment variable is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be %q or %q, got %q", ProviderAzure, ProviderAnthropic, c.Provider))
	}

	if c.GiphyAPIKey == "" {
		errs = append(errs, errors.New("GIPHY_API_KEY environment variable is required"))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("MAX_STEPS must be positive, got %d", c.MaxSteps))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries))
	}
	if c.ChatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_TIMEOUT must be positive, got %s", c.ChatTimeout))
	}

	return errors.Join(errs...)
}

// Summary lists the effective settings with secrets masked.
func (c *Config) Summary() []any {
	return []any{
		"port", c.Port,
		"provider", c.Provider,
		"ai_resource", c.AIResource,
		"ai_api_key", Mask(c.AIAPIKey),
		"ai_deployment", c.AIDeployment,
		"anthropic_api_key", Mask(c.AnthropicAPIKey),
		"anthropic_model", c.AnthropicModel,
		"giphy_api_key", Mask(c.GiphyAPIKey),
		"max_steps", c.MaxSteps,
		"max_retries", c.MaxRetries,
		"chat_timeout", c.ChatTimeout.String(),
	}
}

// Mask keeps the last three characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 3 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-3) + secret[len(secret)-3:]
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}
