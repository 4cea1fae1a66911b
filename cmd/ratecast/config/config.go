// Package config provides configuration parsing and management for the
// ratecast pipeline.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence over environment variables. The Config struct contains
// all runtime configuration for the pipeline including:
//   - Series identification (series name)
//   - Ingestion settings (source kind plus a generic source config map)
//   - Evaluation parameters (test fraction, lags, rolling window, period)
//   - Search settings (worker count, trial CSV export path)
//   - Storage settings (memory or redis, redis connection, TTL)
//   - Serve mode (HTTP listen address, refresh interval)
//   - Logging configuration (level, format)
//   - TLS configuration (cert, key, CA files)
//
// Source-specific configuration is provided via environment variables with
// the SOURCE_ prefix, converted to camelCase map keys (SOURCE_VALUE_PATH
// becomes valuePath). The map is handed to the sources factory unchanged.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/fxlab/ratecast/pkg/tls"
)

// Config holds all pipeline configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	TLS           tls.Config

	Series       string
	Source       string
	SourceConfig map[string]string

	TestFraction float64
	Lags         int
	Window       int
	Period       int
	MaxLag       int

	Workers   int
	TrialsCSV string

	Serve    bool
	Interval time.Duration
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Environment variables are used as fallbacks when flags are not
// provided. Each ratecast instance evaluates a single series.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address (serve mode)")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis snapshot TTL")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.StringVar(&cfg.Series, "series", getEnv("SERIES", "rates"), "Series name")
	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", ""), "Source kind: csv or http (required)")

	flag.Float64Var(&cfg.TestFraction, "test-fraction", getEnvFloat("TEST_FRACTION", 0.2), "Fraction of the series held out for evaluation")
	flag.IntVar(&cfg.Lags, "lags", getEnvInt("LAGS", 5), "Number of lag features")
	flag.IntVar(&cfg.Window, "window", getEnvInt("WINDOW", 3), "Rolling statistics window")
	flag.IntVar(&cfg.Period, "period", getEnvInt("PERIOD", 7), "Seasonal period for decomposition")
	flag.IntVar(&cfg.MaxLag, "max-lag", getEnvInt("MAX_LAG", 0), "Autocorrelation horizon (0=default)")

	flag.IntVar(&cfg.Workers, "workers", getEnvInt("WORKERS", 0), "Concurrent search workers (0=NumCPU)")
	flag.StringVar(&cfg.TrialsCSV, "trials-csv", getEnv("TRIALS_CSV", ""), "Base path for trial CSV export (empty=disabled)")

	flag.BoolVar(&cfg.Serve, "serve", getEnvBool("SERVE", false), "Keep running and expose the HTTP API")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 24*time.Hour), "Refresh interval in serve mode")

	flag.Parse()

	cfg.SourceConfig = parseSourceConfig()

	if cfg.Source == "" {
		fmt.Fprintln(os.Stderr, "Error: --source is required")
		os.Exit(1)
	}

	return cfg
}

var seriesNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks value ranges. ParseFlags only enforces presence of the
// required flags; callers run Validate before using the config.
func (c *Config) Validate() error {
	if !seriesNameRegex.MatchString(c.Series) {
		return fmt.Errorf("invalid series name %q (must be alphanumeric with dash/underscore, 1-253 chars)", c.Series)
	}

	if c.Source != "csv" && c.Source != "http" {
		return fmt.Errorf("invalid source %q (must be csv or http)", c.Source)
	}

	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("test fraction %v outside (0,1)", c.TestFraction)
	}

	if c.Lags < 1 {
		return fmt.Errorf("lags must be >= 1, got %d", c.Lags)
	}

	if c.Window < 2 {
		return fmt.Errorf("window must be >= 2, got %d", c.Window)
	}

	if c.Period < 2 {
		return fmt.Errorf("period must be >= 2, got %d", c.Period)
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", c.Workers)
	}

	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("invalid storage backend %q (must be memory or redis)", c.Storage)
	}

	if c.Serve && c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 in serve mode, got %v", c.Interval)
	}

	return nil
}

// parseSourceConfig parses SOURCE_* environment variables into a generic
// configuration map for the sources factory. For example: SOURCE_PATH,
// SOURCE_URL, SOURCE_VALUE_PATH. Environment variable names are converted
// to camelCase for the map keys (SOURCE_VALUE_PATH → valuePath).
func parseSourceConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		if len(env) > 7 && env[:7] == "SOURCE_" {
			parts := splitEnv(env)
			if len(parts) == 2 {
				key := toLowerCamelCase(parts[0][7:])
				config[key] = parts[1]
			}
		}
	}

	return config
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
