package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"weatherdash.app/errors"
)

// Config represents the application configuration structure
type Config struct {
	Server   ServerConfig  `split_words:"true"`
	Weather  WeatherConfig `split_words:"true"`
	Cache    CacheConfig   `split_words:"true"`
	Breaker  BreakerConfig `split_words:"true"`
	Retry    RetryConfig   `split_words:"true"`
	Offline  OfflineConfig `split_words:"true"`
	LogLevel string        `envconfig:"LOG_LEVEL" default:"info"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// WeatherConfig contains settings for the weather data providers
type WeatherConfig struct {
	APIKey         string `envconfig:"WEATHER_API_KEY" required:"true"`
	BaseURL        string `envconfig:"WEATHER_API_BASE_URL" default:"https://api.openweathermap.org/data/2.5"`
	GeoBaseURL     string `envconfig:"WEATHER_GEO_BASE_URL" default:"https://api.openweathermap.org/geo/1.0"`
	Units          string `envconfig:"WEATHER_UNITS" default:"metric"`
	FallbackAPIKey string `envconfig:"WEATHER_FALLBACK_API_KEY"`
	FallbackURL    string `envconfig:"WEATHER_FALLBACK_BASE_URL" default:"https://api.weatherapi.com/v1"`
}

// CacheConfig contains cache store and persistence settings
type CacheConfig struct {
	Backend              string        `envconfig:"CACHE_BACKEND" default:"memory"`
	MaxEntries           int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	MaxBytes             int64         `envconfig:"CACHE_MAX_BYTES" default:"104857600"`
	CompressionThreshold int           `envconfig:"CACHE_COMPRESSION_THRESHOLD" default:"1024"`
	EvictionFraction     float64       `envconfig:"CACHE_EVICTION_FRACTION" default:"0.1"`
	CurrentWeatherTTL    time.Duration `envconfig:"CACHE_CURRENT_WEATHER_TTL" default:"10m"`
	ForecastTTL          time.Duration `envconfig:"CACHE_FORECAST_TTL" default:"1h"`
	AirQualityTTL        time.Duration `envconfig:"CACHE_AIR_QUALITY_TTL" default:"30m"`
	GeocodingTTL         time.Duration `envconfig:"CACHE_GEOCODING_TTL" default:"168h"`
	StaleAcceptable      time.Duration `envconfig:"CACHE_STALE_ACCEPTABLE" default:"2h"`
	SnapshotPath         string        `envconfig:"CACHE_SNAPSHOT_PATH" default:"cache/weather_cache.json"`
	SnapshotInterval     time.Duration `envconfig:"CACHE_SNAPSHOT_INTERVAL" default:"5m"`
	RedisAddr            string        `envconfig:"CACHE_REDIS_ADDR" default:"localhost:6379"`
	RedisPassword        string        `envconfig:"CACHE_REDIS_PASSWORD"`
	RedisDB              int           `envconfig:"CACHE_REDIS_DB" default:"0"`
	RedisTimeout         time.Duration `envconfig:"CACHE_REDIS_TIMEOUT" default:"3s"`
}

// BreakerConfig contains circuit breaker thresholds
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	RecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"60s"`
	SuccessThreshold int           `envconfig:"BREAKER_SUCCESS_THRESHOLD" default:"3"`
	CallTimeout      time.Duration `envconfig:"BREAKER_CALL_TIMEOUT" default:"30s"`
}

// RetryConfig contains retry/backoff settings for provider calls
type RetryConfig struct {
	MaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay       time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	MaxDelay        time.Duration `envconfig:"RETRY_MAX_DELAY" default:"60s"`
	ExponentialBase float64       `envconfig:"RETRY_EXPONENTIAL_BASE" default:"2.0"`
	Jitter          bool          `envconfig:"RETRY_JITTER" default:"true"`
}

// OfflineConfig contains offline-mode detection and provider fallback settings
type OfflineConfig struct {
	Threshold          time.Duration `envconfig:"OFFLINE_THRESHOLD" default:"30s"`
	APISwitchThreshold int           `envconfig:"OFFLINE_API_SWITCH_THRESHOLD" default:"3"`
	BackoffBase        time.Duration `envconfig:"OFFLINE_BACKOFF_BASE" default:"1s"`
	BackoffMax         time.Duration `envconfig:"OFFLINE_BACKOFF_MAX" default:"32s"`
	BackoffMultiplier  float64       `envconfig:"OFFLINE_BACKOFF_MULTIPLIER" default:"2.0"`
}

// LoadConfig loads and validates application configuration from environment variables
func LoadConfig() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, errors.NewConfigurationError("error processing config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Weather.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.Offline.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return errors.NewConfigurationError("SERVER_PORT must be between 1 and 65535", nil)
	}
	return nil
}

// Validate checks weather provider configuration
func (w *WeatherConfig) Validate() error {
	if w.APIKey == "" {
		return errors.NewConfigurationError("WEATHER_API_KEY is required", nil)
	}
	if err := validateHTTPURL("WEATHER_API_BASE_URL", w.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("WEATHER_GEO_BASE_URL", w.GeoBaseURL); err != nil {
		return err
	}
	if w.Units != "metric" && w.Units != "imperial" && w.Units != "standard" {
		return errors.NewConfigurationError("WEATHER_UNITS must be one of: metric, imperial, standard", nil)
	}
	if w.FallbackAPIKey != "" {
		if err := validateHTTPURL("WEATHER_FALLBACK_BASE_URL", w.FallbackURL); err != nil {
			return err
		}
	}
	return nil
}

// HasFallback reports whether a fallback provider is configured.
func (w *WeatherConfig) HasFallback() bool {
	return w.FallbackAPIKey != ""
}

// Validate checks cache configuration
func (c *CacheConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "redis" {
		return errors.NewConfigurationError("CACHE_BACKEND must be one of: memory, redis", nil)
	}
	if c.MaxEntries < 1 {
		return errors.NewConfigurationError("CACHE_MAX_ENTRIES must be at least 1", nil)
	}
	if c.MaxBytes < 1024 {
		return errors.NewConfigurationError("CACHE_MAX_BYTES must be at least 1024", nil)
	}
	if c.CompressionThreshold < 0 {
		return errors.NewConfigurationError("CACHE_COMPRESSION_THRESHOLD cannot be negative", nil)
	}
	if c.EvictionFraction <= 0 || c.EvictionFraction > 1 {
		return errors.NewConfigurationError("CACHE_EVICTION_FRACTION must be in (0, 1]", nil)
	}
	for name, ttl := range map[string]time.Duration{
		"CACHE_CURRENT_WEATHER_TTL": c.CurrentWeatherTTL,
		"CACHE_FORECAST_TTL":        c.ForecastTTL,
		"CACHE_AIR_QUALITY_TTL":     c.AirQualityTTL,
		"CACHE_GEOCODING_TTL":       c.GeocodingTTL,
		"CACHE_STALE_ACCEPTABLE":    c.StaleAcceptable,
	} {
		if ttl <= 0 {
			return errors.NewConfigurationError(fmt.Sprintf("%s must be positive", name), nil)
		}
	}
	if c.Backend == "redis" && c.RedisAddr == "" {
		return errors.NewConfigurationError("CACHE_REDIS_ADDR cannot be empty when CACHE_BACKEND=redis", nil)
	}
	return nil
}

// Validate checks circuit breaker configuration
func (b *BreakerConfig) Validate() error {
	if b.FailureThreshold < 1 {
		return errors.NewConfigurationError("BREAKER_FAILURE_THRESHOLD must be at least 1", nil)
	}
	if b.SuccessThreshold < 1 {
		return errors.NewConfigurationError("BREAKER_SUCCESS_THRESHOLD must be at least 1", nil)
	}
	if b.RecoveryTimeout <= 0 {
		return errors.NewConfigurationError("BREAKER_RECOVERY_TIMEOUT must be positive", nil)
	}
	if b.CallTimeout <= 0 {
		return errors.NewConfigurationError("BREAKER_CALL_TIMEOUT must be positive", nil)
	}
	return nil
}

// Validate checks retry configuration
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return errors.NewConfigurationError("RETRY_MAX_ATTEMPTS must be at least 1", nil)
	}
	if r.BaseDelay <= 0 {
		return errors.NewConfigurationError("RETRY_BASE_DELAY must be positive", nil)
	}
	if r.MaxDelay < r.BaseDelay {
		return errors.NewConfigurationError("RETRY_MAX_DELAY cannot be smaller than RETRY_BASE_DELAY", nil)
	}
	if r.ExponentialBase < 1 {
		return errors.NewConfigurationError("RETRY_EXPONENTIAL_BASE must be at least 1", nil)
	}
	return nil
}

// Validate checks offline-mode configuration
func (o *OfflineConfig) Validate() error {
	if o.Threshold <= 0 {
		return errors.NewConfigurationError("OFFLINE_THRESHOLD must be positive", nil)
	}
	if o.APISwitchThreshold < 1 {
		return errors.NewConfigurationError("OFFLINE_API_SWITCH_THRESHOLD must be at least 1", nil)
	}
	if o.BackoffBase <= 0 {
		return errors.NewConfigurationError("OFFLINE_BACKOFF_BASE must be positive", nil)
	}
	if o.BackoffMax < o.BackoffBase {
		return errors.NewConfigurationError("OFFLINE_BACKOFF_MAX cannot be smaller than OFFLINE_BACKOFF_BASE", nil)
	}
	if o.BackoffMultiplier < 1 {
		return errors.NewConfigurationError("OFFLINE_BACKOFF_MULTIPLIER must be at least 1", nil)
	}
	return nil
}

var validate = validator.New()

func validateHTTPURL(name, value string) error {
	if err := validate.Var(value, "required,http_url"); err != nil {
		return errors.NewConfigurationError(name+" must be a valid http(s) URL", nil)
	}
	return nil
}
