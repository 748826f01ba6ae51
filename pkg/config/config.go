// Package config loads service settings from an optional YAML file overlaid
// with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the YAML file when --config is not given.
const EnvConfigFile = "CHAINLEDGER_CONFIG"

// Config holds server configuration.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StoreDriver   string `yaml:"store_driver"`
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	FileStorePath string `yaml:"file_store_path"`
	PebblePath    string `yaml:"pebble_path"`

	TimestampPolicy     string        `yaml:"timestamp_policy"`
	RecordFailurePolicy string        `yaml:"record_failure_policy"`
	StatsMaxAge         time.Duration `yaml:"stats_max_age"`
	VerifyCacheSize     int           `yaml:"verify_cache_size"`

	JWTSecret      string   `yaml:"jwt_secret"`
	APIKeysFile    string   `yaml:"api_keys_file"`
	CORSOrigins    []string `yaml:"cors_origins"`
	RateLimitRPM   int      `yaml:"rate_limit_rpm"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	RedisURL       string   `yaml:"redis_url"`

	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTelEndpoint string `yaml:"otel_endpoint"`

	ExportDriver   string `yaml:"export_driver"`
	ExportPath     string `yaml:"export_path"`
	ExportBucket   string `yaml:"export_bucket"`
	ExportRegion   string `yaml:"export_region"`
	ExportEndpoint string `yaml:"export_endpoint"`
	ExportPrefix   string `yaml:"export_prefix"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:                "8080",
		LogLevel:            "INFO",
		LogFormat:           "json",
		StoreDriver:         "sqlite",
		SQLitePath:          "data/chainledger.db",
		FileStorePath:       "data/ledger.jsonl",
		PebblePath:          "data/pebble",
		TimestampPolicy:     "reject",
		RecordFailurePolicy: "closed",
		StatsMaxAge:         30 * time.Second,
		VerifyCacheSize:     64,
		RateLimitRPM:        600,
		RateLimitBurst:      50,
		OTelEndpoint:        "localhost:4317",
		ExportDriver:        "file",
		ExportPath:          "data/exports",
	}
}

// Load applies defaults, then the YAML file at path (if non-empty, falling
// back to $CHAINLEDGER_CONFIG), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("STORE_DRIVER", &c.StoreDriver)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SQLITE_PATH", &c.SQLitePath)
	str("FILE_STORE_PATH", &c.FileStorePath)
	str("PEBBLE_PATH", &c.PebblePath)
	str("TIMESTAMP_POLICY", &c.TimestampPolicy)
	str("RECORD_FAILURE_POLICY", &c.RecordFailurePolicy)
	str("JWT_SECRET", &c.JWTSecret)
	str("API_KEYS_FILE", &c.APIKeysFile)
	str("REDIS_URL", &c.RedisURL)
	str("OTEL_ENDPOINT", &c.OTelEndpoint)
	str("EXPORT_DRIVER", &c.ExportDriver)
	str("EXPORT_PATH", &c.ExportPath)
	str("EXPORT_BUCKET", &c.ExportBucket)
	str("EXPORT_REGION", &c.ExportRegion)
	str("EXPORT_ENDPOINT", &c.ExportEndpoint)
	str("EXPORT_PREFIX", &c.ExportPrefix)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}

	var errs []error
	if v := os.Getenv("STATS_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STATS_MAX_AGE: %w", err))
		}
		c.StatsMaxAge = d
	}
	intVar := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	intVar("VERIFY_CACHE_SIZE", &c.VerifyCacheSize)
	intVar("RATE_LIMIT_RPM", &c.RateLimitRPM)
	intVar("RATE_LIMIT_BURST", &c.RateLimitBurst)

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("OTEL_ENABLED: %w", err))
		}
		c.OTelEnabled = b
	}
	return errors.Join(errs...)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", "))
}

// Validate rejects unknown enum values and impossible limits.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(oneOf("LOG_LEVEL", c.LogLevel, "DEBUG", "INFO", "WARN", "ERROR"))
	add(oneOf("LOG_FORMAT", c.LogFormat, "json", "text"))
	add(oneOf("STORE_DRIVER", c.StoreDriver, "memory", "file", "sqlite", "postgres", "pebble"))
	add(oneOf("TIMESTAMP_POLICY", c.TimestampPolicy, "reject", "clamp", "allow"))
	add(oneOf("RECORD_FAILURE_POLICY", c.RecordFailurePolicy, "closed", "open"))
	add(oneOf("EXPORT_DRIVER", c.ExportDriver, "file", "s3", "gcs"))

	if strings.EqualFold(c.StoreDriver, "postgres") && c.DatabaseURL == "" {
		add(errors.New("DATABASE_URL is required for the postgres store"))
	}
	if (strings.EqualFold(c.ExportDriver, "s3") || strings.EqualFold(c.ExportDriver, "gcs")) && c.ExportBucket == "" {
		add(errors.New("EXPORT_BUCKET is required for s3 and gcs exports"))
	}
	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		add(errors.New("rate limits must be non-negative"))
	}
	if c.StatsMaxAge < 0 {
		add(errors.New("STATS_MAX_AGE must be non-negative"))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		add(fmt.Errorf("PORT: %w", err))
	}
	return errors.Join(errs...)
}
