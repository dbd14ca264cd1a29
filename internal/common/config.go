package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Analyzer    AnalyzerConfig  `toml:"analyzer"`
	Graph       GraphConfig     `toml:"graph"`
	Session     SessionConfig   `toml:"session"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Access      AccessConfig    `toml:"access"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// BrowserConfig controls the headless Chrome instances the runs drive.
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	DisableGPU        bool   `toml:"disable_gpu"`
	UserAgent         string `toml:"user_agent"`
	NavigationTimeout string `toml:"navigation_timeout"` // e.g. "45s" - per-navigation cap
}

// AnalyzerConfig tunes the qualification pipeline.
type AnalyzerConfig struct {
	MaxLoadAttempts   int    `toml:"max_load_attempts" validate:"min=1"` // load-more/scroll budget
	SettleDelay       string `toml:"settle_delay"`                       // e.g. "1500ms" - wait after load/scroll actions
	CheckDelay        string `toml:"check_delay"`                        // e.g. "1s" - pause between follow checks
	LoginWaitAttempts int    `toml:"login_wait_attempts"`                // manual-login poll budget
	LoginWaitDelay    string `toml:"login_wait_delay"`                   // e.g. "5s"
	JobTimeout        string `toml:"job_timeout"`                        // e.g. "20m" - wall clock cap per run, empty disables
}

// GraphConfig configures the accelerated bulk-comment path. The access token
// arrives from outside (env or config); the exchange flow is not ours.
type GraphConfig struct {
	AccessToken  string `toml:"access_token"`
	ManualPageID string `toml:"manual_page_id"` // fallback when account discovery returns no pages
	APIVersion   string `toml:"api_version"`
}

// SessionConfig controls persisted-profile cloning for isolated runs.
type SessionConfig struct {
	ProfileDir    string `toml:"profile_dir"`    // long-lived authenticated profile
	TempDir       string `toml:"temp_dir"`       // per-run clones live here
	SweepSchedule string `toml:"sweep_schedule"` // cron spec for purging stale clones
	MaxCloneAge   string `toml:"max_clone_age"`  // e.g. "6h" - clones older than this are orphans
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type SchedulerConfig struct {
	MaxConcurrent int `toml:"max_concurrent" validate:"min=1"`
}

// AccessConfig holds the optional shared access code. Empty disables the check.
type AccessConfig struct {
	Code string `toml:"code"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 3000,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			DisableGPU:        true,
			UserAgent:         "",
			NavigationTimeout: "45s",
		},
		Analyzer: AnalyzerConfig{
			MaxLoadAttempts:   20,
			SettleDelay:       "1500ms",
			CheckDelay:        "1s",
			LoginWaitAttempts: 60,
			LoginWaitDelay:    "5s",
			JobTimeout:        "20m",
		},
		Graph: GraphConfig{
			APIVersion: "v18.0",
		},
		Session: SessionConfig{
			ProfileDir:    "./data/profile",
			TempDir:       "./data/sessions",
			SweepSchedule: "@every 1h",
			MaxCloneAge:   "6h",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/eligo.db",
			},
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 3,
		},
	}
}

// LoadFromFiles loads configuration from TOML files, later files overriding
// earlier ones, then applies environment overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies ELIGO_* environment variables over file values
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("ELIGO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("ELIGO_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("ELIGO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("ELIGO_ACCESS_CODE"); v != "" {
		config.Access.Code = v
	}
	if v := os.Getenv("ELIGO_GRAPH_TOKEN"); v != "" {
		config.Graph.AccessToken = v
	}
	if v := os.Getenv("ELIGO_MANUAL_PAGE_ID"); v != "" {
		config.Graph.ManualPageID = v
	}
	if v := os.Getenv("ELIGO_HEADLESS"); v != "" {
		config.Browser.Headless = v == "true" || v == "1"
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints and duration fields
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"analyzer.settle_delay":      c.Analyzer.SettleDelay,
		"analyzer.check_delay":       c.Analyzer.CheckDelay,
		"analyzer.login_wait_delay":  c.Analyzer.LoginWaitDelay,
		"analyzer.job_timeout":       c.Analyzer.JobTimeout,
		"session.max_clone_age":      c.Session.MaxCloneAge,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	return nil
}

// ParseDurationOr parses a duration string, returning fallback when the value
// is empty or malformed. Config validation catches malformed values earlier,
// so the fallback path only matters for zero-value configs in tests.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
