package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrConfigInvalid         = errors.New("config file failed validation")
)

// CurrentVersion is the current version of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Telemetry Telemetry `koanf:"telemetry"`
	// An empty host leaves the policy store disabled.
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	// An empty host disables the distributed rate limiter.
	Redis          Redis          `koanf:"redis"`
	Upstream       Upstream       `koanf:"upstream"`
	Fetch          Fetch          `koanf:"fetch"`
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
	Valuation      Valuation      `koanf:"valuation"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported with spans.
	ServiceName string `koanf:"service_name"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port" validate:"omitempty,min=1,max=65535"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns" validate:"min=0,max=200"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns" validate:"min=0"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime" validate:"min=0"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time" validate:"min=0"`
	// Timeout for a single store operation in milliseconds.
	OperationTimeout int `koanf:"operation_timeout" validate:"min=0"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port" validate:"omitempty,min=1,max=65535"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Upstream contains base URLs and credentials of the external services.
type Upstream struct {
	// RoVer registry base URL.
	RoverBaseURL string `koanf:"rover_base_url" validate:"omitempty,url"`
	// RoVer API key sent as a bearer token.
	RoverAPIKey string `koanf:"rover_api_key"`
	// Roblox users API base URL.
	UsersBaseURL string `koanf:"users_base_url" validate:"omitempty,url"`
	// Roblox groups API base URL.
	GroupsBaseURL string `koanf:"groups_base_url" validate:"omitempty,url"`
	// Roblox inventory API base URL.
	InventoryBaseURL string `koanf:"inventory_base_url" validate:"omitempty,url"`
	// Roblox economy API base URL.
	EconomyBaseURL string `koanf:"economy_base_url" validate:"omitempty,url"`
}

// Fetch contains the retry policies of the fetch layer.
type Fetch struct {
	// Policy for identity, profile, membership and inventory calls.
	Primary RetryPolicy `koanf:"primary"`
	// Policy for pricing calls.
	Secondary RetryPolicy `koanf:"secondary"`
	// Pricing requests per second shared by all runs.
	PricingRequestsPerSecond float64 `koanf:"pricing_requests_per_second" validate:"min=0"`
	// Milliseconds a pricing response stays in the Redis cache. Zero uses the default.
	PricingCacheTTL int `koanf:"pricing_cache_ttl" validate:"min=0"`
}

// RetryPolicy contains retry configuration for one class of upstream.
type RetryPolicy struct {
	// Maximum retry attempts after the first request. Unset keeps the preset, zero disables retries.
	MaxRetries *int `koanf:"max_retries" validate:"omitempty,min=0,max=10"`
	// Base backoff delay in milliseconds.
	Delay int `koanf:"delay" validate:"min=0"`
	// Maximum backoff delay in milliseconds.
	MaxDelay int `koanf:"max_delay" validate:"min=0"`
	// Per-attempt timeout in milliseconds.
	Timeout int `koanf:"timeout" validate:"min=0"`
}

// CircuitBreaker contains circuit breaker configuration.
type CircuitBreaker struct {
	// Enable the circuit breaker middleware.
	Enabled bool `koanf:"enabled"`
	// Maximum number of requests allowed to pass through when the circuit is half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// The cyclic period of the closed state for the circuit breaker to clear the internal counts.
	Interval int `koanf:"interval" validate:"min=0"`
	// The period of the open state after which the state of the circuit breaker becomes half-open.
	Timeout int `koanf:"timeout" validate:"min=0"`
	// Consecutive failures before the circuit opens.
	MaxFailures uint32 `koanf:"max_failures"`
}

// Valuation contains limits of the inventory valuation estimator.
type Valuation struct {
	// Pages fetched per inventory category.
	PagesPerCategory int `koanf:"pages_per_category" validate:"min=0,max=10"`
	// Items per inventory page.
	PageSize int `koanf:"page_size" validate:"omitempty,oneof=10 25 50 100"`
	// Number of items priced per run, clamped to [30, 300].
	SampleSize int `koanf:"sample_size" validate:"min=0"`
	// Concurrent category scans.
	ScanConcurrency int `koanf:"scan_concurrency" validate:"min=0,max=16"`
	// Concurrent pricing requests.
	PricingConcurrency int `koanf:"pricing_concurrency" validate:"min=0,max=16"`
	// Minimum milliseconds between progress updates.
	ProgressInterval int `koanf:"progress_interval" validate:"min=0"`
	// Emit a progress update every N priced items.
	ProgressEvery int `koanf:"progress_every" validate:"min=0"`
	// Price limited items by their recent average resale price. Enabled when unset.
	UseResaleData *bool `koanf:"use_resale_data"`
}

// Duration converts a millisecond config value into a time.Duration.
func Duration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// LoadConfig loads the configuration from the first config path containing config.toml.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".bgcheck",
		homeDir + "/.bgcheck/config",
		"/etc/bgcheck/config",
		"config",
		".",
	}

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		cfg, err := LoadFile(configPath)
		if err != nil {
			return nil, "", err
		}

		return cfg, path, nil
	}

	return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
}

// LoadFile loads and validates a single TOML config file.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version, CurrentVersion); err != nil {
		return nil, err
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return &config, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != expected {
		return fmt.Errorf("%w: config.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, current, expected)
	}

	return nil
}
