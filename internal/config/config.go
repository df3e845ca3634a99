// Package config defines the application configuration, its defaults and
// validation. Configuration is loaded through viper so values can come
// from a YAML file, environment variables (PREFPILOT_ prefix) or flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	DisableCache   bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout" yaml:"nav_timeout"`
}

// LLMConfig configures the intent-classification model.
type LLMConfig struct {
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
}

// StoreConfig locates the persisted user record.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ArtifactsConfig locates the screenshot and verification output tree.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ServerConfig holds the listen address for the user-record HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TargetConfig holds the default base URLs the workflows drive. The UI
// base serves the preferences form; the API base serves Swagger UI and
// the user-record endpoints.
type TargetConfig struct {
	UIBaseURL  string `mapstructure:"ui_base_url" yaml:"ui_base_url"`
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
}

// SetDefaults registers the default value for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "prefpilot")
	v.SetDefault("logger.log_file", "prefpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.nav_timeout", "30s")

	// -- LLM --
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.1)

	// -- Store --
	v.SetDefault("store.path", "user_data.json")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")

	// -- Server --
	v.SetDefault("server.addr", ":8000")

	// -- Target --
	v.SetDefault("target.ui_base_url", "http://localhost:3000")
	v.SetDefault("target.api_base_url", "http://localhost:8000")
}

// NewConfigFromViper unmarshals and validates a Config from the given
// viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "PREFPILOT_LLM_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal does not consult BindEnv for keys absent from the file.
	if cfg.LLM.APIKey == "" {
		if key := os.Getenv("PREFPILOT_LLM_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		} else {
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0.0 and 2.0")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is a required configuration field")
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is a required configuration field")
	}
	if c.Target.UIBaseURL == "" || c.Target.APIBaseURL == "" {
		return fmt.Errorf("target.ui_base_url and target.api_base_url are required")
	}
	return nil
}
