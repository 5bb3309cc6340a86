// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Wait() WaitConfig
	Retry() RetryConfig
	Browser() BrowserConfig
	Data() DataConfig
	Runner() RunnerConfig
	Store() StoreConfig

	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetRunnerConcurrency(int)
	SetDataPath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	WaitCfg    WaitConfig    `mapstructure:"wait" yaml:"wait"`
	RetryCfg   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	DataCfg    DataConfig    `mapstructure:"data" yaml:"data"`
	RunnerCfg  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	StoreCfg   StoreConfig   `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Wait() WaitConfig       { return c.WaitCfg }
func (c *Config) Retry() RetryConfig     { return c.RetryCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Data() DataConfig       { return c.DataCfg }
func (c *Config) Runner() RunnerConfig   { return c.RunnerCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)  { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetRunnerConcurrency(n int) { c.RunnerCfg.Concurrency = n }
func (c *Config) SetDataPath(p string)       { c.DataCfg.Path = p }

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

// WaitConfig holds the polling defaults every wait starts from.
type WaitConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	PollingMillis  int `mapstructure:"polling_millis" yaml:"polling_millis"`
}

// Timeout returns the configured timeout as a duration.
func (w WaitConfig) Timeout() time.Duration { return time.Duration(w.TimeoutSeconds) * time.Second }

// Interval returns the configured polling interval as a duration.
func (w WaitConfig) Interval() time.Duration {
	return time.Duration(w.PollingMillis) * time.Millisecond
}

// RetryConfig holds the default policy for retried interactions.
type RetryConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelayMillis int `mapstructure:"base_delay_millis" yaml:"base_delay_millis"`
}

// BaseDelay returns the configured base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMillis) * time.Millisecond
}

// BrowserConfig holds settings for the browser the sessions drive.
type BrowserConfig struct {
	// Driver selects the session adapter: "chromedp" or "playwright".
	Driver            string        `mapstructure:"driver" yaml:"driver"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
}

// DataConfig locates the external tabular data source.
type DataConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Sheet string `mapstructure:"sheet" yaml:"sheet"`
}

// RunnerConfig configures script execution.
type RunnerConfig struct {
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	ReportPath  string `mapstructure:"report_path" yaml:"report_path"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// StoreConfig points at the PostgreSQL database run reports are saved to. An empty URL
// disables persistence.
type StoreConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Supported browser drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// Defaults that the Resolver falls back to.
const (
	DefaultWaitTimeoutSeconds = 10
	DefaultWaitPollingMillis  = 500
	DefaultRetryMaxAttempts   = 3
	DefaultRetryBaseDelayMs   = 500
	DefaultNavigationTimeout  = 60 * time.Second
	DefaultActionTimeout      = 30 * time.Second
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "kwdriver")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Wait --
	v.SetDefault("wait.timeout_seconds", DefaultWaitTimeoutSeconds)
	v.SetDefault("wait.polling_millis", DefaultWaitPollingMillis)

	// -- Retry --
	v.SetDefault("retry.max_attempts", DefaultRetryMaxAttempts)
	v.SetDefault("retry.base_delay_millis", DefaultRetryBaseDelayMs)

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", DefaultNavigationTimeout)
	v.SetDefault("browser.action_timeout", DefaultActionTimeout)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	// -- Data --
	v.SetDefault("data.path", "")
	v.SetDefault("data.sheet", "")

	// -- Runner --
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.report_path", "")
	v.SetDefault("runner.metrics_file", "")

	// -- Store --
	v.SetDefault("store.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// The wait, retry and browser keys are resolved tolerantly first: a malformed value there is logged and
// replaced by its default rather than failing the whole load.
func NewConfigFromViper(v *viper.Viper, logger *zap.Logger) (*Config, error) {
	r := NewResolver(v, logger)
	v.Set("wait.timeout_seconds", r.PositiveInt("wait.timeout_seconds", DefaultWaitTimeoutSeconds))
	v.Set("wait.polling_millis", r.PositiveInt("wait.polling_millis", DefaultWaitPollingMillis))
	v.Set("retry.max_attempts", r.PositiveInt("retry.max_attempts", DefaultRetryMaxAttempts))
	v.Set("retry.base_delay_millis", r.NonNegativeInt("retry.base_delay_millis", DefaultRetryBaseDelayMs))
	v.Set("browser.driver", r.String("browser.driver", DriverChromedp))
	v.Set("browser.headless", r.Bool("browser.headless", true))
	v.Set("browser.navigation_timeout", r.Duration("browser.navigation_timeout", DefaultNavigationTimeout))
	v.Set("browser.action_timeout", r.Duration("browser.action_timeout", DefaultActionTimeout))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.DataCfg.Path != "" {
		expanded, err := homedir.Expand(cfg.DataCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand data.path: %w", err)
		}
		cfg.DataCfg.Path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.BrowserCfg.Driver) {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverPlaywright, c.BrowserCfg.Driver)
	}
	if c.RunnerCfg.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.BrowserCfg.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative")
	}
	return nil
}
