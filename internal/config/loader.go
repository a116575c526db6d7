package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "LLMCORE_CONFIG"

// Defaults applied by WithDefaults.
const (
	DefaultContextSize        = 4096
	DefaultTemperature        = float32(0.7)
	DefaultMaxTokens   uint32 = 512
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
)

// Config holds runtime parameters for the engine.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	// Explicit model artifact path, probed before all other locations.
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	// Model file name searched for in the candidate directories.
	ModelFile string `json:"model_file" yaml:"model_file" toml:"model_file"`
	// Platform data directory; models live under <data_dir>/models.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	// Bundled resources directory; models live under <resource_dir>/models.
	ResourceDir string `json:"resource_dir" yaml:"resource_dir" toml:"resource_dir"`
	// Development directories holding the model file directly.
	DevPaths []string `json:"dev_paths" yaml:"dev_paths" toml:"dev_paths"`
	// Directory with the llama.cpp shared libraries.
	LibraryPath string `json:"library_path" yaml:"library_path" toml:"library_path"`

	ContextSize        int      `json:"context_size" yaml:"context_size" toml:"context_size"`
	DefaultTemperature *float32 `json:"default_temperature" yaml:"default_temperature" toml:"default_temperature"`
	DefaultMaxTokens   uint32   `json:"default_max_tokens" yaml:"default_max_tokens" toml:"default_max_tokens"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	// Prometheus textfile written at exit when set.
	MetricsFile string `json:"metrics_file" yaml:"metrics_file" toml:"metrics_file"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadOptional loads path, or the file named by $LLMCORE_CONFIG when path
// is empty. With neither set it returns an empty Config.
func LoadOptional(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Config{}, nil
	}
	return Load(path)
}

// Default returns a Config with every default applied.
func Default() Config { return Config{}.WithDefaults() }

// WithDefaults returns a copy of c with unspecified fields filled in.
func (c Config) WithDefaults() Config {
	if c.ContextSize <= 0 {
		c.ContextSize = DefaultContextSize
	}
	if c.DefaultTemperature == nil {
		t := DefaultTemperature
		c.DefaultTemperature = &t
	}
	if c.DefaultMaxTokens == 0 {
		c.DefaultMaxTokens = DefaultMaxTokens
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	return c
}

// Temperature returns the configured default temperature, or the package
// default when unset.
func (c Config) Temperature() float32 {
	if c.DefaultTemperature == nil {
		return DefaultTemperature
	}
	return *c.DefaultTemperature
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.ContextSize < 0 {
		return fmt.Errorf("context_size must not be negative, got %d", c.ContextSize)
	}
	if c.DefaultTemperature != nil && *c.DefaultTemperature < 0 {
		return fmt.Errorf("default_temperature must not be negative, got %v", *c.DefaultTemperature)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
