// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Player() PlayerConfig
	Recorder() RecorderConfig
	Planner() PlannerConfig
	Library() LibraryConfig
	History() HistoryConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	PlayerCfg   PlayerConfig   `mapstructure:"player" yaml:"player"`
	RecorderCfg RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	PlannerCfg  PlannerConfig  `mapstructure:"planner" yaml:"planner"`
	LibraryCfg  LibraryConfig  `mapstructure:"library" yaml:"library"`
	HistoryCfg  HistoryConfig  `mapstructure:"history" yaml:"history"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Player() PlayerConfig     { return c.PlayerCfg }
func (c *Config) Recorder() RecorderConfig { return c.RecorderCfg }
func (c *Config) Planner() PlannerConfig   { return c.PlannerCfg }
func (c *Config) Library() LibraryConfig   { return c.LibraryCfg }
func (c *Config) History() HistoryConfig   { return c.HistoryCfg }

// LoggerConfig holds all the configuration for the logger.
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

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// IdleQuietPeriod is how long the network must stay quiet before a page
	// is considered stable after navigation.
	IdleQuietPeriod time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	Args            []string      `mapstructure:"args" yaml:"args"`
}

// PlayerConfig tunes the deterministic replay engine.
type PlayerConfig struct {
	// DefaultStepTimeout applies to steps recorded without a timeout.
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout" yaml:"default_step_timeout"`
	// ScreenshotOnFailure captures the page when a step fails.
	ScreenshotOnFailure bool `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
	// ScreenshotDir is where failure/step screenshots are written.
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// RecorderConfig tunes the recording session.
type RecorderConfig struct {
	// MaxSteps bounds a runaway AI recording loop.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// DefaultStepTimeout is stamped onto recorded steps.
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout" yaml:"default_step_timeout"`
}

// PlannerConfig configures the AI planning collaborator used only while
// recording. Replay never touches it.
type PlannerConfig struct {
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute rate-limits calls to the planning API.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LibraryConfig locates the on-disk workflow library.
type LibraryConfig struct {
	// Dir is the workflow directory. Empty means ~/.naytrik/workflows.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Format is the default serialization for new workflows: "json" or "yaml".
	Format string `mapstructure:"format" yaml:"format"`
}

// HistoryConfig configures optional run-history persistence. An empty URL
// disables it.
type HistoryConfig struct {
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

// NewDefaultConfig returns a Config populated with production defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	// Defaults are registered on a fresh viper, so unmarshal cannot fail.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: failed to unmarshal defaults: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default on the given viper instance so config
// files and NAYTRIK_* environment variables only need to override deltas.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "naytrik")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.navigation_timeout", 90*time.Second)
	v.SetDefault("browser.idle_quiet_period", 1500*time.Millisecond)

	v.SetDefault("player.default_step_timeout", 30*time.Second)
	v.SetDefault("player.screenshot_on_failure", true)
	v.SetDefault("player.screenshot_dir", "naytrik-screenshots")

	v.SetDefault("recorder.max_steps", 50)
	v.SetDefault("recorder.default_step_timeout", 30*time.Second)

	v.SetDefault("planner.model", "gemini-2.5-flash")
	v.SetDefault("planner.api_timeout", 120*time.Second)
	v.SetDefault("planner.temperature", 0.2)
	v.SetDefault("planner.max_tokens", 4096)
	v.SetDefault("planner.requests_per_minute", 30)

	v.SetDefault("library.dir", "")
	v.SetDefault("library.format", "json")
}

// Validate checks cross-field invariants that viper cannot express.
func (c *Config) Validate() error {
	if c.BrowserCfg.ViewportWidth <= 0 || c.BrowserCfg.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport_width and browser.viewport_height must be positive")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.PlayerCfg.DefaultStepTimeout <= 0 {
		return fmt.Errorf("player.default_step_timeout must be a positive duration")
	}
	if c.RecorderCfg.MaxSteps <= 0 {
		return fmt.Errorf("recorder.max_steps must be a positive integer")
	}
	switch c.LibraryCfg.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("library.format must be \"json\" or \"yaml\", got %q", c.LibraryCfg.Format)
	}
	if c.PlannerCfg.RequestsPerMinute <= 0 {
		return fmt.Errorf("planner.requests_per_minute must be a positive integer")
	}
	return nil
}
