// Package config provides configuration parsing and validation for echoprobe.
//
// The configuration file is optional; Default reproduces the behavior of
// running without one.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/echoprobe/internal/logging"
)

// Config represents the complete echoprobe configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Socket  SocketConfig  `yaml:"socket"`
	Session SessionConfig `yaml:"session"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SocketConfig selects the ICMP socket flavor.
type SocketConfig struct {
	// Unprivileged uses a udp4 datagram socket instead of a raw socket.
	Unprivileged bool `yaml:"unprivileged"`
}

// SessionConfig tunes reply matching.
type SessionConfig struct {
	// MatchSequence discards replies whose sequence is not the one just sent.
	MatchSequence bool `yaml:"match_sequence"`
}

// MetricsConfig defines where session metrics are written.
type MetricsConfig struct {
	// File receives the Prometheus text exposition after the run.
	// Empty disables metrics output.
	File string `yaml:"file"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Socket: SocketConfig{
			Unprivileged: false,
		},
		Session: SessionConfig{
			MatchSequence: true,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default when VAR is unset; unknown variables
// are left as written.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !logging.IsValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be %s)", c.Log.Level, strings.Join(logging.Levels, ", ")))
	}
	if !logging.IsValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be %s)", c.Log.Format, strings.Join(logging.Formats, " or ")))
	}
	if c.Metrics.File != "" && strings.HasSuffix(c.Metrics.File, string(os.PathSeparator)) {
		errs = append(errs, fmt.Sprintf("metrics.file must name a file, got directory %s", c.Metrics.File))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns the YAML form of the config.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
