package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Strava      StravaConfig      `json:"strava"`
	Database    DatabaseConfig    `json:"database"`
	Redis       RedisConfig       `json:"redis"`
	Sync        SyncConfig        `json:"sync"`
	Progression ProgressionConfig `json:"progression"`
	Server      ServerConfig      `json:"server"`
	Catalog     CatalogConfig     `json:"catalog"`
	Log         LogConfig         `json:"log"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
}

// DatabaseConfig locates the SQLite file
type DatabaseConfig struct {
	Path string `json:"path"` // empty means ~/.veloskill/data.db
}

// RedisConfig is optional; without a URL no cooldowns are shared
type RedisConfig struct {
	URL string `json:"url"`
}

// SyncConfig tunes the activity import
type SyncConfig struct {
	PageSize           int      `json:"page_size"`
	PacingDelay        Duration `json:"pacing_delay"`
	RefreshThreshold   Duration `json:"refresh_threshold"`
	RateLimitCooldown  Duration `json:"rate_limit_cooldown"`
	MaxCooldownRetries int      `json:"max_cooldown_retries"`
	StreamStride       int      `json:"stream_stride"`
}

// ProgressionConfig tunes XP recomputes
type ProgressionConfig struct {
	SnapshotTTL    Duration `json:"snapshot_ttl"`
	GlobalThrottle Duration `json:"global_throttle"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr       string   `json:"listen_addr"`
	ScheduleInterval Duration `json:"schedule_interval"` // batch sync period
}

// CatalogConfig points at the challenge and mastery definitions
type CatalogConfig struct {
	Path string `json:"path"` // imported on serve when set
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `json:"level"`
}

// Duration is a time.Duration written as a string such as "350ms" in JSON
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ErrNoConfig is returned when neither the config file nor the environment provides credentials
var ErrNoConfig = errors.New("config file not found")

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Strava: StravaConfig{
			RedirectURL: "http://localhost:8089/callback",
		},
		Sync: SyncConfig{
			PageSize:           50,
			PacingDelay:        Duration{350 * time.Millisecond},
			RefreshThreshold:   Duration{2 * time.Hour},
			RateLimitCooldown:  Duration{15 * time.Minute},
			MaxCooldownRetries: 2,
			StreamStride:       5,
		},
		Progression: ProgressionConfig{
			SnapshotTTL:    Duration{24 * time.Hour},
			GlobalThrottle: Duration{30 * time.Minute},
		},
		Server: ServerConfig{
			ListenAddr:       ":8080",
			ScheduleInterval: Duration{time.Hour},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads ~/.veloskill/config.json, then applies .env and environment overrides
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration at path, then applies .env and environment overrides.
// A missing file is fine as long as the environment supplies the Strava credentials.
func LoadFrom(path string) (*Config, error) {
	// a missing .env is not an error
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		applyEnv(&cfg, os.Getenv)
		if cfg.Strava.ClientID == "" {
			return nil, ErrNoConfig
		}
		return &cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyDefaults(&fileCfg, cfg)
	applyEnv(&fileCfg, os.Getenv)

	return &fileCfg, nil
}

// applyDefaults fills zero values from defaults
func applyDefaults(cfg *Config, defaults Config) {
	if cfg.Strava.RedirectURL == "" {
		cfg.Strava.RedirectURL = defaults.Strava.RedirectURL
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = defaults.Sync.PageSize
	}
	if cfg.Sync.PacingDelay.Duration == 0 {
		cfg.Sync.PacingDelay = defaults.Sync.PacingDelay
	}
	if cfg.Sync.RefreshThreshold.Duration == 0 {
		cfg.Sync.RefreshThreshold = defaults.Sync.RefreshThreshold
	}
	if cfg.Sync.RateLimitCooldown.Duration == 0 {
		cfg.Sync.RateLimitCooldown = defaults.Sync.RateLimitCooldown
	}
	if cfg.Sync.MaxCooldownRetries == 0 {
		cfg.Sync.MaxCooldownRetries = defaults.Sync.MaxCooldownRetries
	}
	if cfg.Sync.StreamStride == 0 {
		cfg.Sync.StreamStride = defaults.Sync.StreamStride
	}
	if cfg.Progression.SnapshotTTL.Duration == 0 {
		cfg.Progression.SnapshotTTL = defaults.Progression.SnapshotTTL
	}
	if cfg.Progression.GlobalThrottle.Duration == 0 {
		cfg.Progression.GlobalThrottle = defaults.Progression.GlobalThrottle
	}
	if cfg.Server.ScheduleInterval.Duration == 0 {
		cfg.Server.ScheduleInterval = defaults.Server.ScheduleInterval
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaults.Server.ListenAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// applyEnv overrides file values with non-empty environment variables
func applyEnv(cfg *Config, getenv func(string) string) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"STRAVA_CLIENT_ID", &cfg.Strava.ClientID},
		{"STRAVA_CLIENT_SECRET", &cfg.Strava.ClientSecret},
		{"STRAVA_REDIRECT_URL", &cfg.Strava.RedirectURL},
		{"VELOSKILL_DB_PATH", &cfg.Database.Path},
		{"REDIS_URL", &cfg.Redis.URL},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"VELOSKILL_LISTEN_ADDR", &cfg.Server.ListenAddr},
		{"VELOSKILL_CATALOG", &cfg.Catalog.Path},
	}
	for _, o := range overrides {
		if v := getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// Save writes the configuration to ~/.veloskill/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return saveTo(path, cfg)
}

func saveTo(path string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	example.Strava.ClientID = "YOUR_CLIENT_ID"
	example.Strava.ClientSecret = "YOUR_CLIENT_SECRET"

	return saveTo(path, &example)
}

// Validate checks if the config has required fields
func (c *Config) Validate() error {
	if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
		return errors.New("strava.client_id is required - get it from https://www.strava.com/settings/api")
	}
	if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
		return errors.New("strava.client_secret is required - get it from https://www.strava.com/settings/api")
	}

	if c.Sync.PageSize < 1 || c.Sync.PageSize > 200 {
		return fmt.Errorf("sync.page_size must be between 1 and 200, got %d", c.Sync.PageSize)
	}
	if c.Sync.StreamStride < 1 {
		return fmt.Errorf("sync.stream_stride must be at least 1, got %d", c.Sync.StreamStride)
	}
	if c.Sync.MaxCooldownRetries < 0 {
		return fmt.Errorf("sync.max_cooldown_retries must not be negative, got %d", c.Sync.MaxCooldownRetries)
	}

	for name, d := range map[string]Duration{
		"sync.pacing_delay":           c.Sync.PacingDelay,
		"sync.refresh_threshold":      c.Sync.RefreshThreshold,
		"sync.rate_limit_cooldown":    c.Sync.RateLimitCooldown,
		"progression.snapshot_ttl":    c.Progression.SnapshotTTL,
		"progression.global_throttle": c.Progression.GlobalThrottle,
		"server.schedule_interval":    c.Server.ScheduleInterval,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, d.Duration)
		}
	}

	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".veloskill"), nil
}
