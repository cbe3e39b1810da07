package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ipsguard/engine"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
)

type Config struct {
	ListenPort     int          `json:"listen_port" toml:"listen_port"`
	UpstreamAddr   string       `json:"upstream_addr" toml:"upstream_addr"`
	MetricsPort    int          `json:"metrics_port" toml:"metrics_port"`
	ManagementPort int          `json:"management_port" toml:"management_port"`
	RedisAddr      string       `json:"redis_addr" toml:"redis_addr"`
	RedisPassword  string       `json:"redis_password" toml:"redis_password"`
	WebhookURL     string       `json:"webhook_url" toml:"webhook_url"`
	WebhookPerMin  int          `json:"webhook_per_minute" toml:"webhook_per_minute"`
	GeoIPDBPath    string       `json:"geoip_db_path" toml:"geoip_db_path"`
	BanTTL         Duration     `json:"ban_ttl" toml:"ban_ttl"`
	SweepInterval  Duration     `json:"sweep_interval" toml:"sweep_interval"`
	TrustForwarded bool         `json:"trust_forwarded" toml:"trust_forwarded"`
	LogLevel       string       `json:"log_level" toml:"log_level"`
	LogPretty      bool         `json:"log_pretty" toml:"log_pretty"`
	Engine         EngineConfig `json:"engine" toml:"engine"`
}

type EngineConfig struct {
	WindowSeconds       *float64 `json:"window_seconds" toml:"window_seconds"`
	BanThreshold        *float64 `json:"ban_threshold" toml:"ban_threshold"`
	BaselineHistorySize *int     `json:"baseline_history_size" toml:"baseline_history_size"`
	AdminPaths          []string `json:"admin_paths" toml:"admin_paths"`
	LoginPaths          []string `json:"login_paths" toml:"login_paths"`
	PriorBaseline       bool     `json:"prior_baseline" toml:"prior_baseline"`
}

// Duration accepts "15m" style strings or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(val * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// UnmarshalText handles TOML, where durations are written as strings.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// LoadConfig reads a JSON file, or TOML when the name ends in .toml.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	// Try loading from file first; a missing file means env and defaults only
	data, err := os.ReadFile(path)
	if err == nil {
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			err = toml.Unmarshal(data, &cfg)
		} else {
			err = json.Unmarshal(data, &cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if _, err := cfg.EngineConfig(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Override with IPSGUARD_* environment variables if present
func applyEnv(cfg *Config) error {
	ints := map[string]*int{
		"IPSGUARD_PORT":               &cfg.ListenPort,
		"IPSGUARD_METRICS_PORT":       &cfg.MetricsPort,
		"IPSGUARD_MANAGEMENT_PORT":    &cfg.ManagementPort,
		"IPSGUARD_WEBHOOK_PER_MINUTE": &cfg.WebhookPerMin,
	}
	for key, dst := range ints {
		if val := os.Getenv(key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"IPSGUARD_UPSTREAM":       &cfg.UpstreamAddr,
		"IPSGUARD_REDIS_ADDR":     &cfg.RedisAddr,
		"IPSGUARD_REDIS_PASSWORD": &cfg.RedisPassword,
		"IPSGUARD_WEBHOOK_URL":    &cfg.WebhookURL,
		"IPSGUARD_GEOIP_DB":       &cfg.GeoIPDBPath,
		"IPSGUARD_LOG_LEVEL":      &cfg.LogLevel,
	}
	for key, dst := range strs {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	bools := map[string]*bool{
		"IPSGUARD_LOG_PRETTY":      &cfg.LogPretty,
		"IPSGUARD_TRUST_FORWARDED": &cfg.TrustForwarded,
		"IPSGUARD_PRIOR_BASELINE":  &cfg.Engine.PriorBaseline,
	}
	for key, dst := range bools {
		if val := os.Getenv(key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	durs := map[string]*Duration{
		"IPSGUARD_BAN_TTL":        &cfg.BanTTL,
		"IPSGUARD_SWEEP_INTERVAL": &cfg.SweepInterval,
	}
	for key, dst := range durs {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = Duration(d)
		}
	}

	if val := os.Getenv("IPSGUARD_WINDOW_SECONDS"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("IPSGUARD_WINDOW_SECONDS: %w", err)
		}
		cfg.Engine.WindowSeconds = &f
	}
	if val := os.Getenv("IPSGUARD_BASELINE_SIZE"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("IPSGUARD_BASELINE_SIZE: %w", err)
		}
		cfg.Engine.BaselineHistorySize = &n
	}
	if val := os.Getenv("IPSGUARD_BAN_THRESHOLD"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("IPSGUARD_BAN_THRESHOLD: %w", err)
		}
		cfg.Engine.BanThreshold = &f
	}
	if val := os.Getenv("IPSGUARD_ADMIN_PATHS"); val != "" {
		cfg.Engine.AdminPaths = splitList(val)
	}
	if val := os.Getenv("IPSGUARD_LOGIN_PATHS"); val != "" {
		cfg.Engine.LoginPaths = splitList(val)
	}
	return nil
}

// Default values if nothing exists
func (cfg *Config) applyDefaults() {
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 8080
	}
	if cfg.UpstreamAddr == "" {
		cfg.UpstreamAddr = "http://localhost:3000"
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
	if cfg.ManagementPort == 0 {
		cfg.ManagementPort = 9091
	}
	if cfg.WebhookPerMin == 0 {
		cfg.WebhookPerMin = 30
	}
	if cfg.BanTTL <= 0 {
		cfg.BanTTL = Duration(15 * time.Minute)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = Duration(time.Minute)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// EngineConfig converts the file representation into engine.Config,
// filling unset fields from engine.DefaultConfig and validating the result.
func (cfg *Config) EngineConfig() (engine.Config, error) {
	ec := engine.DefaultConfig()
	if cfg.Engine.WindowSeconds != nil {
		ec.Window = time.Duration(*cfg.Engine.WindowSeconds * float64(time.Second))
	}
	if cfg.Engine.BanThreshold != nil {
		ec.BanThreshold = *cfg.Engine.BanThreshold
	}
	if cfg.Engine.BaselineHistorySize != nil {
		ec.BaselineHistorySize = *cfg.Engine.BaselineHistorySize
	}
	if len(cfg.Engine.AdminPaths) > 0 {
		ec.AdminPaths = cfg.Engine.AdminPaths
	}
	if len(cfg.Engine.LoginPaths) > 0 {
		ec.LoginPaths = cfg.Engine.LoginPaths
	}
	ec.PriorBaseline = cfg.Engine.PriorBaseline
	return ec, ec.Validate()
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
