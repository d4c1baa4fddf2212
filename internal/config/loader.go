package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads an optional configuration file and overlays environment-sourced
// settings on top. An empty path means environment-only configuration, which
// is the normal deployment mode on the managed runtime.
func Load(path string) (*Config, error) {
	env := FromEnv()
	if strings.TrimSpace(path) == "" {
		return env, nil
	}

	raw, err := loadRaw(path, map[string]bool{})
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	overlayEnv(cfg, env)
	return cfg, nil
}

// loadRaw reads a config file into a merged raw map, resolving $include
// directives with cycle detection and expanding ${VAR} references.
func loadRaw(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	raw, err := parseRawBytes([]byte(expanded), absPath)
	if err != nil {
		return nil, err
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, err := loadRaw(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}

	return mergeMaps(merged, raw), nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	includeVal, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

func decodeRaw(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// overlayEnv copies any environment-provided value over the file value. The
// environment always wins so the managed runtime's injected settings cannot
// be shadowed by a stale file.
func overlayEnv(cfg, env *Config) {
	if os.Getenv("HEALTHMATE_ENV") != "" {
		cfg.Environment = env.Environment
	}
	if cfg.Environment == "" {
		cfg.Environment = env.Environment
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	if os.Getenv("COACHAI_HOST") != "" || cfg.Server.Host == "" {
		cfg.Server.Host = env.Server.Host
	}
	if os.Getenv("COACHAI_PORT") != "" || cfg.Server.Port == 0 {
		cfg.Server.Port = env.Server.Port
	}
	if os.Getenv("AWS_REGION") != "" || cfg.AWS.Region == "" {
		cfg.AWS.Region = env.AWS.Region
	}
	if env.AWS.AccessKeyID != "" {
		cfg.AWS.AccessKeyID = env.AWS.AccessKeyID
	}
	if env.AWS.SecretAccessKey != "" {
		cfg.AWS.SecretAccessKey = env.AWS.SecretAccessKey
	}
	if env.AWS.SessionToken != "" {
		cfg.AWS.SessionToken = env.AWS.SessionToken
	}
	if env.Gateway.ID != "" {
		cfg.Gateway.ID = env.Gateway.ID
	}
	if env.Gateway.Endpoint != "" {
		cfg.Gateway.Endpoint = env.Gateway.Endpoint
	}
	if env.Model.ID != "" {
		cfg.Model.ID = env.Model.ID
	}
	if env.Memory.ID != "" {
		cfg.Memory.ID = env.Memory.ID
	}
	if os.Getenv("COACHAI_HISTORY_WINDOW") != "" || cfg.Memory.HistoryWindow == 0 {
		cfg.Memory.HistoryWindow = env.Memory.HistoryWindow
	}
	if env.M2M.ProviderName != "" {
		cfg.M2M.ProviderName = env.M2M.ProviderName
	}
	if env.M2M.Scope != "" {
		cfg.M2M.Scope = env.M2M.Scope
	}
	if env.M2M.TokenURL != "" {
		cfg.M2M.TokenURL = env.M2M.TokenURL
	}
	if env.M2M.ClientID != "" {
		cfg.M2M.ClientID = env.M2M.ClientID
	}
	if env.M2M.ClientSecret != "" {
		cfg.M2M.ClientSecret = env.M2M.ClientSecret
	}
	if os.Getenv("COACHAI_DEFAULT_TIMEZONE") != "" || cfg.Locale.DefaultTimezone == "" {
		cfg.Locale.DefaultTimezone = env.Locale.DefaultTimezone
	}
	if os.Getenv("COACHAI_DEFAULT_LANGUAGE") != "" || cfg.Locale.DefaultLanguage == "" {
		cfg.Locale.DefaultLanguage = env.Locale.DefaultLanguage
	}
	if env.Observability.TraceEndpoint != "" {
		cfg.Observability.TraceEndpoint = env.Observability.TraceEndpoint
		cfg.Observability.TraceInsecure = env.Observability.TraceInsecure
	}
}
