// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string // Allowed websocket origins; empty allows all.

	// Storage settings.
	DatabaseURL       string // postgres://… or sqlite://path.
	NotebookCacheSize int    // LRU entries for notebook reads; 0 disables.

	// Model registry settings.
	HubURL       string
	HubToken     string
	FetchTimeout time.Duration // Per registry request.

	// Generation settings.
	TaskTimeout        time.Duration
	TaskTTL            time.Duration
	MaxConcurrentTasks int
	CatalogPath        string // Optional override for the embedded card catalog.

	// Rate limiting on generation requests.
	RateLimitRPS   float64
	RateLimitBurst int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	str := envStr
	integer := func(key string, def int) int {
		v, err := envInt(key, def)
		errs = append(errs, err)
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		errs = append(errs, err)
		return v
	}
	boolean := func(key string, def bool) bool {
		v, err := envBool(key, def)
		errs = append(errs, err)
		return v
	}
	float := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Port:                integer("ALACARD_PORT", 8080),
		ReadTimeout:         dur("ALACARD_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        dur("ALACARD_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:     dur("ALACARD_SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:         splitList(str("ALACARD_CORS_ORIGINS", "")),
		DatabaseURL:         str("DATABASE_URL", "sqlite://alacard.db"),
		NotebookCacheSize:   integer("ALACARD_NOTEBOOK_CACHE_SIZE", 256),
		HubURL:              str("ALACARD_HUB_URL", "https://huggingface.co"),
		HubToken:            str("HF_API_TOKEN", ""),
		FetchTimeout:        dur("ALACARD_FETCH_TIMEOUT", 10*time.Second),
		TaskTimeout:         dur("ALACARD_TASK_TIMEOUT", 2*time.Minute),
		TaskTTL:             dur("ALACARD_TASK_TTL", time.Hour),
		MaxConcurrentTasks:  integer("ALACARD_MAX_CONCURRENT_TASKS", 8),
		CatalogPath:         str("ALACARD_CATALOG_PATH", ""),
		RateLimitRPS:        float("ALACARD_RATE_LIMIT_RPS", 2),
		RateLimitBurst:      integer("ALACARD_RATE_LIMIT_BURST", 10),
		OTELEndpoint:        str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         str("OTEL_SERVICE_NAME", "alacard"),
		OTELInsecure:        boolean("ALACARD_OTEL_INSECURE", false),
		LogLevel:            str("ALACARD_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(integer("ALACARD_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that values are in range.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("ALACARD_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	for name, d := range map[string]time.Duration{
		"ALACARD_READ_TIMEOUT":     c.ReadTimeout,
		"ALACARD_WRITE_TIMEOUT":    c.WriteTimeout,
		"ALACARD_SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
		"ALACARD_FETCH_TIMEOUT":    c.FetchTimeout,
		"ALACARD_TASK_TIMEOUT":     c.TaskTimeout,
		"ALACARD_TASK_TTL":         c.TaskTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxConcurrentTasks < 1 {
		errs = append(errs, errors.New("ALACARD_MAX_CONCURRENT_TASKS must be at least 1"))
	}
	if c.NotebookCacheSize < 0 {
		errs = append(errs, errors.New("ALACARD_NOTEBOOK_CACHE_SIZE must not be negative"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("ALACARD_RATE_LIMIT_RPS must not be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("ALACARD_RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("ALACARD_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
