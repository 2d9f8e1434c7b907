// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Default report file names. The page list mode keeps the historical merged name.
const (
	DefaultMergedReportName = "merged-axe-report.csv"
	DefaultLinkedReportName = "axe-report.csv"
)

// DefaultAxeSource is the pinned axe-core build fetched when no local copy is configured.
const DefaultAxeSource = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js"

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// LoggerConfig controls the stderr logger and the optional rotated log file.
type LoggerConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"`
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"`

	// LogFile, when set, receives JSON entries rotated by size and age.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`

	Colors ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color per level. Error covers every level
// above it.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	StartupTimeout  time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
}

// NetworkConfig tunes navigation and the quiescence wait that precedes an audit.
type NetworkConfig struct {
	// Timeout bounds plain HTTP fetches (the engine source download).
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`

	// IdleQuietPeriod and IdleMaxInflight together define "network idle":
	// no more than IdleMaxInflight requests for IdleQuietPeriod.
	IdleQuietPeriod time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	IdleMaxInflight int           `mapstructure:"idle_max_inflight" yaml:"idle_max_inflight"`
}

// AuditConfig controls what gets audited and how the rules engine is obtained.
type AuditConfig struct {
	AxeSource   string   `mapstructure:"axe_source" yaml:"axe_source"`
	CacheDir    string   `mapstructure:"cache_dir" yaml:"cache_dir"`
	Tags        []string `mapstructure:"tags" yaml:"tags"`
	FollowLinks bool     `mapstructure:"follow_links" yaml:"follow_links"`
	MaxLinks    int      `mapstructure:"max_links" yaml:"max_links"`

	// SameSite drops discovered links that leave the page's registrable domain.
	SameSite bool `mapstructure:"same_site" yaml:"same_site"`
}

// ReportConfig controls the output report.
type ReportConfig struct {
	Output string `mapstructure:"output" yaml:"output"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static, so this only trips on a programming error.
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
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.startup_timeout", "30s")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.idle_quiet_period", "500ms")
	v.SetDefault("network.idle_max_inflight", 2)

	// -- Audit --
	v.SetDefault("audit.axe_source", DefaultAxeSource)
	v.SetDefault("audit.cache_dir", "~/.cache/scalpel-a11y")
	v.SetDefault("audit.follow_links", false)
	v.SetDefault("audit.max_links", 5)
	v.SetDefault("audit.same_site", false)

	// -- Report --
	v.SetDefault("report.output", "")
	v.SetDefault("report.format", "csv")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Audit.AxeSource == "" {
		return fmt.Errorf("audit.axe_source must not be empty")
	}
	if c.Audit.MaxLinks < 0 {
		return fmt.Errorf("audit.max_links must not be negative")
	}
	if c.Network.IdleMaxInflight < 0 {
		return fmt.Errorf("network.idle_max_inflight must not be negative")
	}
	if c.Network.IdleQuietPeriod < 0 {
		return fmt.Errorf("network.idle_quiet_period must not be negative")
	}
	switch strings.ToLower(c.Report.Format) {
	case "csv", "json", "sarif":
	default:
		return fmt.Errorf("report.format %q is not supported (csv, json, sarif)", c.Report.Format)
	}
	return nil
}

// executablePath is swapped out in tests.
var executablePath = os.Executable

// StdoutOutput as report.output writes the report to standard output.
const StdoutOutput = "stdout"

// ResolveOutput returns the absolute report path. An empty report.output selects
// the default file name for the mode, placed next to the running executable.
func (r ReportConfig) ResolveOutput(followLinks bool) (string, error) {
	if r.Output == StdoutOutput || r.Output == "-" {
		return StdoutOutput, nil
	}
	if r.Output != "" {
		p, err := homedir.Expand(r.Output)
		if err != nil {
			return "", fmt.Errorf("failed to expand report path %q: %w", r.Output, err)
		}
		return filepath.Abs(p)
	}

	exe, err := executablePath()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	name := DefaultMergedReportName
	if followLinks {
		name = DefaultLinkedReportName
	}
	return filepath.Join(filepath.Dir(exe), name), nil
}

// ExpandPath expands a leading ~ in a configured path.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return homedir.Expand(p)
}
