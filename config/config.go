// Package config loads the pagelem tool configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // json | text
	Templates TemplatesConfig `yaml:"templates"`
	Scope     ScopeConfig     `yaml:"scope"`
	Browser   BrowserConfig   `yaml:"browser"`
	Serve     ServeConfig     `yaml:"serve"`
}

// TemplatesConfig locates template sources.
type TemplatesConfig struct {
	Dir     string `yaml:"dir"`
	Catalog string `yaml:"catalog"` // SQLite path, empty for none
}

// ScopeConfig shapes the root scope of resolved pages.
type ScopeConfig struct {
	Class        string                   `yaml:"class"`
	RecoverStale bool                     `yaml:"recover_stale"`
	Timeouts     map[string]time.Duration `yaml:"timeouts"`
}

// BrowserConfig controls the live browser backend.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Headful         bool          `yaml:"headful"`
	Stealth         *bool         `yaml:"stealth"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	Block           []string      `yaml:"block"`
}

// StealthOn reports whether stealth is enabled; it is unless set to false.
func (b BrowserConfig) StealthOn() bool { return b.Stealth == nil || *b.Stealth }

// ServeConfig configures the HTTP/MCP server.
type ServeConfig struct {
	Addr    string        `yaml:"addr"`
	MCPPath string        `yaml:"mcp_path"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.defaults()
	return c
}

// Parse reads YAML configuration.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.defaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

func (c *Config) defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = "."
	}
	if c.Scope.Class == "" {
		c.Scope.Class = "page"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = "127.0.0.1:8093"
	}
	if c.Serve.MCPPath == "" {
		c.Serve.MCPPath = "/mcp"
	}
	if c.Serve.Timeout <= 0 {
		c.Serve.Timeout = time.Minute
	}
}

func (c *Config) validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("config: log_format %q: want json or text", c.LogFormat)
	}
	if !strings.HasPrefix(c.Serve.MCPPath, "/") {
		return fmt.Errorf("config: serve.mcp_path %q must start with /", c.Serve.MCPPath)
	}
	for name, d := range c.Scope.Timeouts {
		if d <= 0 {
			return fmt.Errorf("config: scope.timeouts.%s must be positive", name)
		}
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log_level %q: %w", s, err)
	}
	return l, nil
}
