// Package config loads and validates the CoachAI runtime configuration.
//
// The agent runtime injects everything through environment variables, so the
// environment is the primary source. A yaml/json5 file can optionally layer
// defaults underneath for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Environment tiers recognized by the service.
const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config is the main configuration structure for the CoachAI gateway.
type Config struct {
	// Environment is the deployment tier: dev, stage, or prod.
	Environment string `yaml:"environment"`

	// LogLevel overrides the tier's default slog level when set.
	LogLevel string `yaml:"log_level"`

	Server  ServerConfig  `yaml:"server"`
	AWS     AWSConfig     `yaml:"aws"`
	Gateway GatewayConfig `yaml:"gateway"`
	Model   ModelConfig   `yaml:"model"`
	Memory  MemoryConfig  `yaml:"memory"`
	M2M     M2MConfig     `yaml:"m2m"`
	Locale  LocaleConfig  `yaml:"locale"`

	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AWSConfig struct {
	Region string `yaml:"region"`

	// Explicit static credentials. When empty the SDK's default chain
	// (environment, task role, instance profile) applies.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// GatewayConfig identifies the HealthManager tool gateway.
type GatewayConfig struct {
	// ID is the gateway identifier used to build the endpoint URL.
	ID string `yaml:"id"`

	// Endpoint overrides the derived URL when set (tests, local gateways).
	Endpoint string `yaml:"endpoint"`
}

type ModelConfig struct {
	// ID is the foundation model identifier passed to the runtime.
	ID string `yaml:"id"`
}

type MemoryConfig struct {
	// ID is the managed memory store identifier.
	ID string `yaml:"id"`

	// HistoryWindow is how many recent turns are threaded into each request.
	HistoryWindow int `yaml:"history_window"`
}

// M2MConfig configures the machine-to-machine credential provider used to
// authenticate against the tool gateway.
type M2MConfig struct {
	ProviderName string `yaml:"provider_name"`
	Scope        string `yaml:"scope"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type LocaleConfig struct {
	DefaultTimezone string `yaml:"default_timezone"`
	DefaultLanguage string `yaml:"default_language"`
}

type ObservabilityConfig struct {
	// TraceEndpoint is the OTLP gRPC collector address. Empty disables tracing.
	TraceEndpoint string `yaml:"trace_endpoint"`
	TraceInsecure bool   `yaml:"trace_insecure"`
}

// FromEnv builds a Config from environment variables, applying defaults for
// optional settings. Required settings are checked by Validate, not here, so
// a partially configured environment can still be inspected.
func FromEnv() *Config {
	cfg := &Config{
		Environment: strings.ToLower(envOr("HEALTHMATE_ENV", EnvDev)),
		LogLevel:    os.Getenv("HEALTHMATE_LOG_LEVEL"),
		Server: ServerConfig{
			Host: envOr("COACHAI_HOST", "0.0.0.0"),
			Port: envIntOr("COACHAI_PORT", 8080),
		},
		AWS: AWSConfig{
			Region:          envOr("AWS_REGION", "us-west-2"),
			AccessKeyID:     os.Getenv("COACHAI_AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("COACHAI_AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("COACHAI_AWS_SESSION_TOKEN"),
		},
		Gateway: GatewayConfig{
			ID:       os.Getenv("HEALTHMANAGER_GATEWAY_ID"),
			Endpoint: os.Getenv("HEALTHMANAGER_GATEWAY_ENDPOINT"),
		},
		Model: ModelConfig{
			ID: os.Getenv("HEALTHMATE_AI_MODEL"),
		},
		Memory: MemoryConfig{
			ID:            os.Getenv("BEDROCK_AGENTCORE_MEMORY_ID"),
			HistoryWindow: envIntOr("COACHAI_HISTORY_WINDOW", 20),
		},
		M2M: M2MConfig{
			ProviderName: os.Getenv("AGENTCORE_PROVIDER_NAME"),
			Scope:        os.Getenv("AGENTCORE_PROVIDER_SCOPE"),
			TokenURL:     os.Getenv("AGENTCORE_TOKEN_URL"),
			ClientID:     os.Getenv("AGENTCORE_CLIENT_ID"),
			ClientSecret: os.Getenv("AGENTCORE_CLIENT_SECRET"),
		},
		Locale: LocaleConfig{
			DefaultTimezone: envOr("COACHAI_DEFAULT_TIMEZONE", "Asia/Tokyo"),
			DefaultLanguage: envOr("COACHAI_DEFAULT_LANGUAGE", "ja"),
		},
		Observability: ObservabilityConfig{
			TraceEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			TraceInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE"),
		},
	}
	return cfg
}

// Validate checks that every setting required to serve requests is present.
// It reports all missing variables at once so a misdeployed stack can be
// fixed in one pass.
func (c *Config) Validate() error {
	var missing []string
	if c.Gateway.ID == "" && c.Gateway.Endpoint == "" {
		missing = append(missing, "HEALTHMANAGER_GATEWAY_ID")
	}
	if c.Model.ID == "" {
		missing = append(missing, "HEALTHMATE_AI_MODEL")
	}
	if c.Memory.ID == "" {
		missing = append(missing, "BEDROCK_AGENTCORE_MEMORY_ID")
	}
	if c.M2M.ProviderName == "" {
		missing = append(missing, "AGENTCORE_PROVIDER_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	switch c.Environment {
	case EnvDev, EnvStage, EnvProd:
	default:
		return fmt.Errorf("unknown environment %q (expected dev, stage, or prod)", c.Environment)
	}
	return nil
}

// GatewayEndpoint returns the tool gateway URL, deriving it from the gateway
// identifier and region when no explicit endpoint is configured.
func (c *Config) GatewayEndpoint() string {
	if c.Gateway.Endpoint != "" {
		return c.Gateway.Endpoint
	}
	return fmt.Sprintf("https://%s.gateway.bedrock-agentcore.%s.amazonaws.com/mcp", c.Gateway.ID, c.AWS.Region)
}

// SlogLevel resolves the effective log level: the explicit override wins,
// otherwise each tier gets its conventional default.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	switch c.Environment {
	case EnvProd:
		return slog.LevelWarn
	case EnvStage:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
