package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names an optional YAML file read before the environment.
// Environment variables override values from the file.
const ConfigFileEnv = "FIELDSYNC_CONFIG"

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	PhotoPath  string `yaml:"photo_path"`

	// SlotBackend selects where the offline state lives: "sqlite" or "redis".
	SlotBackend    string `yaml:"slot_backend"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisNamespace string `yaml:"redis_namespace"`

	UpstreamURL     string        `yaml:"upstream_url"`
	UpstreamToken   string        `yaml:"upstream_token"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	UpstreamRetries int           `yaml:"upstream_retries"`

	ProbeInterval     time.Duration `yaml:"probe_interval"`
	SyncInterval      time.Duration `yaml:"sync_interval"`
	PruneSyncedPhotos bool          `yaml:"prune_synced_photos"`

	// Timezone bounds the crew's calendar day for check-ins.
	Timezone string `yaml:"timezone"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:      ":8080",
		DBPath:          "/data/fieldsync.db",
		PhotoPath:       "/data/photos",
		SlotBackend:     "sqlite",
		RedisAddr:       "localhost:6379",
		RedisNamespace:  "fieldsync",
		UpstreamTimeout: 30 * time.Second,
		UpstreamRetries: 2,
		ProbeInterval:   30 * time.Second,
		Timezone:        "Local",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.PhotoPath = getEnv("PHOTO_LOCAL_PATH", cfg.PhotoPath)
	cfg.SlotBackend = getEnv("SLOT_BACKEND", cfg.SlotBackend)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisNamespace = getEnv("REDIS_NAMESPACE", cfg.RedisNamespace)
	cfg.UpstreamURL = getEnv("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.UpstreamToken = getEnv("UPSTREAM_TOKEN", cfg.UpstreamToken)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB, collect)
	cfg.UpstreamRetries = getEnvInt("UPSTREAM_RETRIES", cfg.UpstreamRetries, collect)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout, collect)
	cfg.ProbeInterval = getEnvDuration("PROBE_INTERVAL", cfg.ProbeInterval, collect)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", cfg.SyncInterval, collect)
	cfg.PruneSyncedPhotos = getEnvBool("PRUNE_SYNCED_PHOTOS", cfg.PruneSyncedPhotos, collect)
	collect(cfg.validate())

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SlotBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("SLOT_BACKEND must be sqlite or redis, got %q", c.SlotBackend)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("PROBE_INTERVAL must be positive")
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SyncEnabled reports whether a backend is configured.
func (c *Config) SyncEnabled() bool {
	return c.UpstreamURL != ""
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int, onErr func(error)) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		onErr(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration, onErr func(error)) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		onErr(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool, onErr func(error)) bool {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		onErr(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return b
}
