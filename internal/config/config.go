// Package config loads mqttv5ctl configuration from a YAML or JSON file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vitalvas/mqttv5client"
)

// EnvPrefix marks environment variables that override file values.
// Nested keys are separated by a double underscore:
// MQTT_CLIENT__HOST_NAME=broker.local sets client.host_name.
const EnvPrefix = "MQTT_"

// Log output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config is the top-level configuration of mqttv5ctl.
type Config struct {
	Client  mqttv5client.ClientConfig `json:"client"`
	Logging LoggingConfig             `json:"logging"`
	Metrics MetricsConfig             `json:"metrics"`
}

// LoggingConfig selects the level and output format of the client logger.
type LoggingConfig struct {
	Level  mqttv5client.LogLevel `json:"level"`
	Format string                `json:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr"`
	Path string `json:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Client: mqttv5client.DefaultClientConfig(),
		Logging: LoggingConfig{
			Level:  mqttv5client.LogLevelInfo,
			Format: FormatConsole,
		},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks the client settings and the ambient sections.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Client.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case FormatJSON, FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("logging format %q: want %s or %s", c.Logging.Format, FormatJSON, FormatConsole))
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}
