// Package config assembles runtime configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/gmeter/internal/alerting"
	"github.com/bher20/gmeter/internal/cron"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/storage"
	"gopkg.in/yaml.v3"
)

// FileEnv names the YAML config file.
const FileEnv = "GMETER_CONFIG_FILE"

type Config struct {
	Port     string          `yaml:"port"`
	EOP      EOPConfig       `yaml:"eop"`
	Storage  StorageConfig   `yaml:"storage"`
	Cron     CronConfig      `yaml:"cron"`
	Auth     AuthConfig      `yaml:"auth"`
	Alerting alerting.Config `yaml:"alerting"`
}

type EOPConfig struct {
	// Source is a key from eop.Sources. URL or Path replace its location.
	Source        string        `yaml:"source"`
	URL           string        `yaml:"url"`
	Path          string        `yaml:"path"`
	Format        string        `yaml:"format"`
	CacheDir      string        `yaml:"cache_dir"`
	MaxAgeDays    float64       `yaml:"max_age_days"`
	AutoRefresh   bool          `yaml:"auto_refresh"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	ToleranceDays float64       `yaml:"tolerance_days"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type CronConfig struct {
	Schedule    string `yaml:"schedule"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	ec := eop.DefaultConfig()
	cc := cron.DefaultConfig()
	return Config{
		Port: "8000",
		EOP: EOPConfig{
			Source:       "iers",
			MaxAgeDays:   ec.MaxAge.Hours() / 24,
			AutoRefresh:  ec.AutoRefresh,
			FetchTimeout: ec.FetchTimeout,
		},
		Storage: StorageConfig{
			Driver:      "sqlite",
			DSN:         "gmeter.db",
			AutoMigrate: true,
		},
		Cron: CronConfig{
			Schedule:    cc.Schedule,
			MaxAttempts: cc.MaxAttempts,
		},
		Auth:     AuthConfig{Enabled: true},
		Alerting: alerting.DefaultConfig(),
	}
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// Load reads the YAML file named by GMETER_CONFIG_FILE, when set, on top of
// the defaults and applies environment overrides last.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")

	setString(&cfg.EOP.Source, "GMETER_EOP_SOURCE")
	setString(&cfg.EOP.URL, "GMETER_EOP_URL")
	setString(&cfg.EOP.Path, "GMETER_EOP_PATH")
	setString(&cfg.EOP.Format, "GMETER_EOP_FORMAT")
	setString(&cfg.EOP.CacheDir, "GMETER_EOP_CACHE_DIR")
	setFloat(&cfg.EOP.MaxAgeDays, "GMETER_EOP_MAX_AGE_DAYS")
	setBool(&cfg.EOP.AutoRefresh, "GMETER_EOP_AUTO_REFRESH")
	setDuration(&cfg.EOP.FetchTimeout, "GMETER_EOP_FETCH_TIMEOUT")
	setFloat(&cfg.EOP.ToleranceDays, "GMETER_EOP_TOLERANCE_DAYS")
	setBool(&cfg.EOP.SkipTLSVerify, "GMETER_HTTP_SKIP_TLS_VERIFY")

	setString(&cfg.Storage.Driver, "GMETER_DB_DRIVER")
	setString(&cfg.Storage.DSN, "GMETER_DB_DSN")
	setBool(&cfg.Storage.AutoMigrate, "GMETER_AUTO_MIGRATE")

	setString(&cfg.Cron.Schedule, "GMETER_CRON_SCHEDULE")
	setInt(&cfg.Cron.MaxAttempts, "GMETER_CRON_MAX_ATTEMPTS")

	setBool(&cfg.Auth.Enabled, "GMETER_AUTH_ENABLED")
}

// Validate rejects values that would make the provider or worker unusable.
func (c Config) Validate() error {
	if c.EOP.MaxAgeDays <= 0 {
		return fmt.Errorf("config: eop.max_age_days must be positive, got %g", c.EOP.MaxAgeDays)
	}
	if c.EOP.FetchTimeout <= 0 {
		return fmt.Errorf("config: eop.fetch_timeout must be positive, got %s", c.EOP.FetchTimeout)
	}
	if c.EOP.ToleranceDays < 0 {
		return fmt.Errorf("config: eop.tolerance_days must not be negative, got %g", c.EOP.ToleranceDays)
	}
	if err := cron.ValidateSchedule(c.Cron.Schedule); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ProviderConfig maps the EOP section onto eop.Config.
func (c Config) ProviderConfig() eop.Config {
	return eop.Config{
		MaxAge:              time.Duration(c.EOP.MaxAgeDays * float64(24*time.Hour)),
		AutoRefresh:         c.EOP.AutoRefresh,
		FetchTimeout:        c.EOP.FetchTimeout,
		OutOfRangeTolerance: c.EOP.ToleranceDays,
	}
}

// SourceDescriptor resolves the configured source. An explicit URL or Path
// replaces the location of the named source, or defines a custom one.
func (c Config) SourceDescriptor() (eop.SourceDescriptor, error) {
	d, ok := eop.GetSource(c.EOP.Source)
	if c.EOP.URL != "" || c.EOP.Path != "" {
		if !ok {
			d = eop.SourceDescriptor{Key: c.EOP.Source, Name: c.EOP.Source}
		}
		if d.Key == "" {
			d.Key = "custom"
		}
		d.URL, d.MirrorURL, d.Path = c.EOP.URL, "", c.EOP.Path
		ok = true
	}
	if !ok {
		return eop.SourceDescriptor{}, fmt.Errorf("%w: %s", eop.ErrUnknownSource, c.EOP.Source)
	}
	if c.EOP.Format != "" {
		d.Format = c.EOP.Format
	}
	return d, nil
}

// OpenSource builds the configured eop.Source.
func (c Config) OpenSource() (eop.Source, error) {
	d, err := c.SourceDescriptor()
	if err != nil {
		return nil, err
	}
	return eop.OpenSource(d, eop.SourceOptions{
		Client:   eop.NewHTTPClient(c.EOP.FetchTimeout, c.EOP.SkipTLSVerify),
		CacheDir: c.EOP.CacheDir,
	})
}

func (c Config) StorageConfig() storage.Config {
	return storage.Config{Driver: c.Storage.Driver, DSN: c.Storage.DSN, AutoMigrate: c.Storage.AutoMigrate}
}

func (c Config) CronConfig() cron.Config {
	cc := cron.DefaultConfig()
	cc.Schedule = c.Cron.Schedule
	if c.Cron.MaxAttempts > 0 {
		cc.MaxAttempts = c.Cron.MaxAttempts
	}
	return cc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}
