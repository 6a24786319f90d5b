// Package config loads the soilsense configuration file. A missing or
// malformed file is not an error: the tool runs on defaults and the API key
// can always come from the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// APIKeyEnvVar overrides the configured Gemini API key when set.
const APIKeyEnvVar = "GEMINI_API_KEY"

// Config holds application configuration
type Config struct {
	// GeminiAPIKey authenticates analysis requests. Environment wins over
	// the file value.
	GeminiAPIKey string `yaml:"gemini_api_key" default:""`

	// Model is the generative model used for analyses.
	Model string `yaml:"model" default:"gemini-2.0-flash"`

	// Language is the BCP-47 code for analysis output.
	Language string `yaml:"language" default:"en"`

	// DeviceName filters discovery to probes advertising this local name.
	DeviceName string `yaml:"device_name" default:"SoilSense"`

	ScanTimeout  time.Duration `yaml:"scan_timeout" default:"10s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"5s"`

	// HistoryPath is the SQLite database location. Empty means
	// a soilsense.db next to the config file.
	HistoryPath string `yaml:"history_path" default:""`

	LogLevel string `yaml:"log_level" default:"error"`
}

// DefaultConfig returns configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := new(Config)
	defaults.SetDefaults(cfg)
	cfg.applyEnv()
	return cfg
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "soilsense.yaml"
	}
	return filepath.Join(home, ".config", "soilsense", "config.yaml")
}

// Load reads the YAML config at path. Any failure (missing file, bad YAML)
// falls back to defaults; this function never fails.
func Load(path string) *Config {
	cfg := new(Config)
	defaults.SetDefaults(cfg)

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			// Bad file: start over from clean defaults, a partial unmarshal
			// may have left fields half-set.
			cfg = new(Config)
			defaults.SetDefaults(cfg)
		}
	}

	cfg.applyEnv()
	return cfg
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnv() {
	if key := os.Getenv(APIKeyEnvVar); key != "" {
		c.GeminiAPIKey = key
	}
}

// Level parses the configured log level, defaulting to error on bad input.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.ErrorLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
