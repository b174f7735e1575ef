package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr     string `yaml:"addr"`      // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir   string `yaml:"log_dir"`   // logs directory
	LogLevel string `yaml:"log_level"` // zap level name

	DatabaseURL string `yaml:"database_url"` // empty means in-memory store

	ProbeTimeout  time.Duration `yaml:"probe_timeout"`  // per-probe dial+handshake bound
	RetryAttempts int           `yaml:"retry_attempts"` // attempts for FAILED probes
	RetryBackoff  time.Duration `yaml:"retry_backoff"`

	CheckInterval       time.Duration `yaml:"check_interval"` // 0 disables the rechecker
	MaxConcurrentChecks int           `yaml:"max_concurrent_checks"`

	// SelfURL is the service's own public URL; used for the startup self check.
	SelfURL string `yaml:"self_url"`

	PublicAPIKeys []string `yaml:"public_api_keys"`
	AdminAPIKeys  []string `yaml:"admin_api_keys"`
	PublicRPM     int      `yaml:"public_rpm"`
	PublicBurst   int      `yaml:"public_burst"`
	AdminRPM      int      `yaml:"admin_rpm"`
	AdminBurst    int      `yaml:"admin_burst"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	// TrustedProxies lists the addresses or CIDRs of reverse proxies whose
	// X-Forwarded-For header is believed. Empty means the header is ignored.
	TrustedProxies []string `yaml:"trusted_proxies"`

	SlackWebhookURL string        `yaml:"slack_webhook_url"`
	AlertOnRecovery bool          `yaml:"alert_on_recovery"`
	AlertCooldown   time.Duration `yaml:"alert_cooldown"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:                "127.0.0.1:8080",
		LogDir:              "logs",
		LogLevel:            "info",
		ProbeTimeout:        10 * time.Second,
		RetryAttempts:       2,
		RetryBackoff:        300 * time.Millisecond,
		CheckInterval:       5 * time.Minute,
		MaxConcurrentChecks: 4,
		PublicRPM:           60,
		PublicBurst:         10,
		AdminRPM:            600,
		AdminBurst:          50,
		AlertCooldown:       30 * time.Minute,
	}
}

// FromEnv reads the environment on top of Defaults.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// Load reads CONFIG_FILE (if set), then lets the environment override it.
func Load() (Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile layers Defaults, the YAML file at path (skipped when empty) and
// the environment, in that order.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	} else if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Addr = v
	}
	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SelfURL, "SELF_URL")
	setString(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")

	setMillis(&cfg.ProbeTimeout, "PROBE_TIMEOUT_MS")
	setMillis(&cfg.RetryBackoff, "RETRY_BACKOFF_MS")
	setMillis(&cfg.CheckInterval, "CHECK_INTERVAL_MS")
	setMillis(&cfg.AlertCooldown, "ALERT_COOLDOWN_MS")

	setInt(&cfg.RetryAttempts, "RETRY_ATTEMPTS")
	setInt(&cfg.MaxConcurrentChecks, "MAX_CONCURRENT_CHECKS")
	setInt(&cfg.PublicRPM, "PUBLIC_RPM")
	setInt(&cfg.PublicBurst, "PUBLIC_BURST")
	setInt(&cfg.AdminRPM, "ADMIN_RPM")
	setInt(&cfg.AdminBurst, "ADMIN_BURST")

	setList(&cfg.PublicAPIKeys, "PUBLIC_API_KEYS")
	setList(&cfg.AdminAPIKeys, "ADMIN_API_KEYS")
	setList(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setList(&cfg.TrustedProxies, "TRUSTED_PROXIES")

	if v := os.Getenv("ALERT_ON_RECOVERY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AlertOnRecovery = b
		}
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr must not be empty"))
	}
	if c.ProbeTimeout <= 0 {
		err = multierr.Append(err, errors.New("probe timeout must be positive"))
	}
	if c.RetryAttempts < 1 {
		err = multierr.Append(err, errors.New("retry attempts must be at least 1"))
	}
	if c.RetryBackoff < 0 {
		err = multierr.Append(err, errors.New("retry backoff must not be negative"))
	}
	if c.CheckInterval < 0 {
		err = multierr.Append(err, errors.New("check interval must not be negative"))
	}
	if c.MaxConcurrentChecks < 1 {
		err = multierr.Append(err, errors.New("max concurrent checks must be at least 1"))
	}
	if c.SelfURL != "" {
		if u, perr := url.Parse(c.SelfURL); perr != nil || u.Host == "" {
			err = multierr.Append(err, fmt.Errorf("self url %q is not an absolute URL", c.SelfURL))
		}
	}
	if _, perr := c.TrustedProxyPrefixes(); perr != nil {
		err = multierr.Combine(err, perr)
	}
	return err
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is taken as a
// single-host prefix.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var (
		out  []netip.Prefix
		errs error
	)
	for _, s := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("trusted proxy %q is not an address or CIDR", s))
			continue
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, errs
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt ignores unparsable and negative values.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func setMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
