package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the ddtspec project configuration. Durations are milliseconds.
type Config struct {
	Timeout         int               `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	CaseTimeout     int               `json:"caseTimeout,omitempty" yaml:"caseTimeout,omitempty" toml:"caseTimeout,omitempty"`
	HookTimeout     int               `json:"hookTimeout,omitempty" yaml:"hookTimeout,omitempty" toml:"hookTimeout,omitempty"`
	FollowRedirects *bool             `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty" toml:"followRedirects,omitempty"`
	MaxRedirects    int               `json:"maxRedirects,omitempty" yaml:"maxRedirects,omitempty" toml:"maxRedirects,omitempty"`
	ValidateSSL     *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty" toml:"validateSSL,omitempty"`
	Proxy           string            `json:"proxy,omitempty" yaml:"proxy,omitempty" toml:"proxy,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
	RateLimit       float64           `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty" toml:"rateLimit,omitempty"`

	EnvFile   string         `json:"envFile,omitempty" yaml:"envFile,omitempty" toml:"envFile,omitempty"`
	EnvPrefix string         `json:"envPrefix,omitempty" yaml:"envPrefix,omitempty" toml:"envPrefix,omitempty"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty" toml:"variables,omitempty"`

	Parallel    *bool `json:"parallel,omitempty" yaml:"parallel,omitempty" toml:"parallel,omitempty"`
	Concurrency int   `json:"concurrency,omitempty" yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`
	Bail        *bool `json:"bail,omitempty" yaml:"bail,omitempty" toml:"bail,omitempty"`

	Output     string       `json:"output,omitempty" yaml:"output,omitempty" toml:"output,omitempty"`
	OutputFile string       `json:"outputFile,omitempty" yaml:"outputFile,omitempty" toml:"outputFile,omitempty"`
	Events     EventsConfig `json:"events,omitempty" yaml:"events,omitempty" toml:"events,omitempty"`
	NoColor    *bool        `json:"noColor,omitempty" yaml:"noColor,omitempty" toml:"noColor,omitempty"`

	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty" toml:"logLevel,omitempty"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty" toml:"logFile,omitempty"`
}

// EventsConfig points the CloudEvents reporter at a sink.
type EventsConfig struct {
	Sink   string `json:"sink,omitempty" yaml:"sink,omitempty" toml:"sink,omitempty"`
	Source string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects defaults to true.
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL defaults to true.
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *Config) CaseTimeoutDuration() time.Duration {
	return time.Duration(c.CaseTimeout) * time.Millisecond
}

func (c *Config) HookTimeoutDuration() time.Duration {
	return time.Duration(c.HookTimeout) * time.Millisecond
}

// ConfigFilenames are searched in order in each directory.
var ConfigFilenames = []string{
	"ddtspec.yaml",
	"ddtspec.yml",
	"ddtspec.json",
	"ddtspec.toml",
	".ddtspec.yaml",
	".ddtspec.json",
	".ddtspec.toml",
}

// LoadConfig loads path, or searches upward from the working directory when
// path is empty. The returned config always has defaults applied.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return DefaultConfig(), nil
	}
	found := FindConfigFile(cwd)
	if found == "" {
		return DefaultConfig(), nil
	}
	return loadConfigFromFile(found)
}

// FindConfigFile walks from dir to the filesystem root and returns the first
// config file it sees, or "".
func FindConfigFile(dir string) string {
	for {
		for _, name := range ConfigFilenames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var fileCfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &fileCfg)
	case ".json":
		err = json.Unmarshal(data, &fileCfg)
	default:
		err = yaml.Unmarshal(data, &fileCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if fileCfg.EnvFile != "" && !filepath.IsAbs(fileCfg.EnvFile) {
		fileCfg.EnvFile = filepath.Join(filepath.Dir(path), fileCfg.EnvFile)
	}
	return DefaultConfig().Merge(&fileCfg), nil
}

// Merge overlays other onto c; set fields in other win.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.CaseTimeout > 0 {
		result.CaseTimeout = other.CaseTimeout
	}
	if other.HookTimeout > 0 {
		result.HookTimeout = other.HookTimeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if other.EnvPrefix != "" {
		result.EnvPrefix = other.EnvPrefix
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Output != "" {
		result.Output = other.Output
	}
	if other.OutputFile != "" {
		result.OutputFile = other.OutputFile
	}
	if other.Events.Sink != "" {
		result.Events.Sink = other.Events.Sink
	}
	if other.Events.Source != "" {
		result.Events.Source = other.Events.Source
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		result.LogFile = other.LogFile
	}

	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}
	if len(other.Variables) > 0 {
		vars := make(map[string]any, len(result.Variables)+len(other.Variables))
		for k, v := range result.Variables {
			vars[k] = v
		}
		for k, v := range other.Variables {
			vars[k] = v
		}
		result.Variables = vars
	}

	return &result
}

// SaveConfig writes the config as YAML.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
