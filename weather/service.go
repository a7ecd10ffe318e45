package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"weatherdash.app/cache"
	"weatherdash.app/config"
	"weatherdash.app/errors"
	"weatherdash.app/metrics"
	"weatherdash.app/models"
	"weatherdash.app/providers"
	"weatherdash.app/reliability"
)

// Operation names used for timeouts, retry logging, and metrics labels.
const (
	OpCurrentWeather  = "current_weather"
	OpForecast        = "forecast"
	OpAirQuality      = "air_quality"
	OpSearchLocations = "search_locations"
)

// Input bounds. Locations and search queries shorter than two characters
// never match anything upstream; providers cap daily forecasts at a week.
const (
	minLocationLength = 2
	minForecastDays   = 1
	maxForecastDays   = 7
)

// Service is the weather fetch orchestrator. Every read goes cache-first;
// misses trigger an upstream call wrapped in retry, circuit breaker, and
// timeout layers; failures degrade to stale cache data and finally to a
// synthetic offline payload before an error reaches the caller.
type Service struct {
	cache    cache.Cache
	retrier  *reliability.Retrier
	breakers *reliability.BreakerRegistry
	timeouts *reliability.TimeoutManager
	offline  *OfflineController

	primary  providers.WeatherProvider
	fallback providers.WeatherProvider // nil when no fallback is configured

	cacheCfg        config.CacheConfig
	providerMetrics map[string]*metrics.ProviderMetrics
}

// ServiceOptions collects the orchestrator's collaborators.
type ServiceOptions struct {
	Cache    cache.Cache
	Retrier  *reliability.Retrier
	Breakers *reliability.BreakerRegistry
	Timeouts *reliability.TimeoutManager
	Offline  *OfflineController
	Primary  providers.WeatherProvider
	Fallback providers.WeatherProvider
	CacheCfg config.CacheConfig
}

func NewService(opts ServiceOptions) *Service {
	pm := map[string]*metrics.ProviderMetrics{
		opts.Primary.Name(): metrics.NewProviderMetrics(opts.Primary.Name()),
	}
	if opts.Fallback != nil {
		pm[opts.Fallback.Name()] = metrics.NewProviderMetrics(opts.Fallback.Name())
	}

	return &Service{
		cache:           opts.Cache,
		retrier:         opts.Retrier,
		breakers:        opts.Breakers,
		timeouts:        opts.Timeouts,
		offline:         opts.Offline,
		primary:         opts.Primary,
		fallback:        opts.Fallback,
		cacheCfg:        opts.CacheCfg,
		providerMetrics: pm,
	}
}

// CurrentWeather returns current conditions for a location.
func (s *Service) CurrentWeather(ctx context.Context, location string) (*models.Weather, error) {
	location = strings.TrimSpace(location)
	if utf8.RuneCountInString(location) < minLocationLength {
		return nil, errors.NewValidationError(
			fmt.Sprintf("location must be at least %d characters", minLocationLength)).WithOperation(OpCurrentWeather)
	}
	key := weatherKey(location)

	if data, ok := s.cache.Get(ctx, key); ok {
		var w models.Weather
		if err := json.Unmarshal(data, &w); err == nil {
			return &w, nil
		}
	}

	if s.offline.Offline() {
		if w, ok := s.staleWeather(ctx, key); ok {
			return w, nil
		}
	}

	var result *models.Weather
	err := s.execute(ctx, OpCurrentWeather, location, func(ctx context.Context, p providers.WeatherProvider) error {
		w, err := p.CurrentWeather(ctx, location)
		if err == nil {
			result = w
		}
		return err
	})
	if err == nil {
		s.store(ctx, key, result, s.cacheCfg.CurrentWeatherTTL, "weather")
		return result, nil
	}
	if !errors.IsRetryable(err) {
		return nil, err
	}
	if w, ok := s.staleWeather(ctx, key); ok {
		return w, nil
	}
	if s.offline.Offline() {
		return offlineWeather(location), nil
	}
	return nil, err
}

// Forecast returns a daily forecast for a location.
func (s *Service) Forecast(ctx context.Context, location string, days int) (*models.Forecast, error) {
	location = strings.TrimSpace(location)
	if utf8.RuneCountInString(location) < minLocationLength {
		return nil, errors.NewValidationError(
			fmt.Sprintf("location must be at least %d characters", minLocationLength)).WithOperation(OpForecast)
	}
	if days < minForecastDays || days > maxForecastDays {
		return nil, errors.NewValidationError(
			fmt.Sprintf("days must be between %d and %d", minForecastDays, maxForecastDays)).WithOperation(OpForecast)
	}
	key := forecastKey(location, days)

	if data, ok := s.cache.Get(ctx, key); ok {
		var f models.Forecast
		if err := json.Unmarshal(data, &f); err == nil {
			return &f, nil
		}
	}

	if s.offline.Offline() {
		if f, ok := s.staleForecast(ctx, key); ok {
			return f, nil
		}
	}

	var result *models.Forecast
	err := s.execute(ctx, OpForecast, location, func(ctx context.Context, p providers.WeatherProvider) error {
		f, err := p.Forecast(ctx, location, days)
		if err == nil {
			result = f
		}
		return err
	})
	if err == nil {
		s.store(ctx, key, result, s.cacheCfg.ForecastTTL, "forecast")
		return result, nil
	}
	if !errors.IsRetryable(err) {
		return nil, err
	}
	if f, ok := s.staleForecast(ctx, key); ok {
		return f, nil
	}
	if s.offline.Offline() {
		return offlineForecast(location), nil
	}
	return nil, err
}

// AirQuality returns air quality data for a coordinate.
func (s *Service) AirQuality(ctx context.Context, lat, lon float64) (*models.AirQuality, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.NewValidationError(
			fmt.Sprintf("coordinates out of range: %.4f,%.4f", lat, lon)).WithOperation(OpAirQuality)
	}
	key := airQualityKey(lat, lon)

	if data, ok := s.cache.Get(ctx, key); ok {
		var aq models.AirQuality
		if err := json.Unmarshal(data, &aq); err == nil {
			return &aq, nil
		}
	}

	if s.offline.Offline() {
		if aq, ok := s.staleAirQuality(ctx, key); ok {
			return aq, nil
		}
	}

	var result *models.AirQuality
	err := s.execute(ctx, OpAirQuality, key, func(ctx context.Context, p providers.WeatherProvider) error {
		aq, err := p.AirQuality(ctx, lat, lon)
		if err == nil {
			result = aq
		}
		return err
	})
	if err == nil {
		s.store(ctx, key, result, s.cacheCfg.AirQualityTTL, "air_quality")
		return result, nil
	}
	if !errors.IsRetryable(err) {
		return nil, err
	}
	if aq, ok := s.staleAirQuality(ctx, key); ok {
		return aq, nil
	}
	if s.offline.Offline() {
		return offlineAirQuality(), nil
	}
	return nil, err
}

// SearchLocations returns geocoding matches for a query. There is no
// synthetic payload for searches; a degraded read only serves stale
// results.
func (s *Service) SearchLocations(ctx context.Context, query string, limit int) ([]models.Location, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minLocationLength {
		return nil, errors.NewValidationError(
			fmt.Sprintf("search query must be at least %d characters", minLocationLength)).WithOperation(OpSearchLocations)
	}
	if limit <= 0 {
		limit = 5
	}
	key := geocodingKey(query, limit)

	if data, ok := s.cache.Get(ctx, key); ok {
		var locations []models.Location
		if err := json.Unmarshal(data, &locations); err == nil {
			return locations, nil
		}
	}

	var result []models.Location
	err := s.execute(ctx, OpSearchLocations, query, func(ctx context.Context, p providers.WeatherProvider) error {
		locations, err := p.SearchLocations(ctx, query, limit)
		if err == nil {
			result = locations
		}
		return err
	})
	if err == nil {
		s.store(ctx, key, result, s.cacheCfg.GeocodingTTL, "geocoding")
		return result, nil
	}
	if !errors.IsRetryable(err) {
		return nil, err
	}
	if data, _, ok := s.cache.GetStale(ctx, key); ok {
		var locations []models.Location
		if jsonErr := json.Unmarshal(data, &locations); jsonErr == nil {
			return locations, nil
		}
	}
	return nil, err
}

// Status reports the resilience layer's current state.
func (s *Service) Status() *models.ServiceStatus {
	offlineMode, usingFallback, failures, lastSuccess, backoff := s.offline.Snapshot()

	provider := s.primary.Name()
	if usingFallback && s.fallback != nil {
		provider = s.fallback.Name()
	}

	stats := s.cache.Stats()
	return &models.ServiceStatus{
		OfflineMode:         offlineMode,
		CurrentProvider:     provider,
		ConsecutiveFailures: failures,
		LastSuccess:         lastSuccess,
		CurrentBackoff:      backoff.String(),
		Breakers:            s.breakers.States(),
		Cache: models.CacheStatus{
			Backend:    stats.Backend,
			Entries:    stats.Entries,
			SizeBytes:  stats.SizeBytes,
			Hits:       stats.Hits,
			Misses:     stats.Misses,
			Evictions:  stats.Evictions,
			HitRate:    stats.HitRate(),
			BytesSaved: stats.BytesSaved,
		},
	}
}

// execute performs one orchestrated upstream call: offline backoff first,
// then provider selection, then the retried, breaker-gated, timed call.
// Retryable failures feed the offline controller; validation and API-key
// errors do not.
func (s *Service) execute(ctx context.Context, operation, subject string, call func(context.Context, providers.WeatherProvider) error) error {
	if delay := s.offline.BackoffDelay(); delay > 0 {
		slog.Debug("applying offline backoff", "operation", operation, "delay", delay)
		if err := waitBackoff(ctx, delay); err != nil {
			return errors.NewNetworkError("canceled while backing off", err).WithOperation(operation)
		}
	}

	if s.fallback != nil && s.offline.ShouldSwitchProvider() {
		s.offline.SwitchToFallback()
	}
	provider := s.primary
	if s.fallback != nil && s.offline.UsingFallback() {
		provider = s.fallback
	}

	start := time.Now()
	err := s.retrier.Do(ctx, operation, func(ctx context.Context) error {
		return s.breakers.Get(provider.Name()).Do(ctx, func(ctx context.Context) error {
			return s.timeouts.Do(ctx, operation, func(ctx context.Context) error {
				return call(ctx, provider)
			})
		})
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if pm, ok := s.providerMetrics[provider.Name()]; ok {
		pm.RecordRequest(operation, outcome, time.Since(start).Seconds())
	}

	if err == nil {
		s.offline.RecordSuccess()
		return nil
	}

	slog.Error("weather fetch failed",
		"operation", operation,
		"subject", subject,
		"provider", provider.Name(),
		"error", err,
	)
	if errors.IsRetryable(err) {
		s.offline.RecordFailure()
	}
	return err
}

func (s *Service) store(ctx context.Context, key string, value interface{}, ttl time.Duration, tag string) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("marshal for cache failed", "key", key, "error", err)
		return
	}
	s.cache.Set(ctx, key, data, ttl, cache.WithTags(tag))
}

func (s *Service) staleWeather(ctx context.Context, key string) (*models.Weather, bool) {
	data, age, ok := s.cache.GetStale(ctx, key)
	if !ok {
		return nil, false
	}
	var w models.Weather
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false
	}
	w.Stale = true
	w.CacheAgeSecs = age.Seconds()
	slog.Info("serving stale weather data", "key", key, "age", age)
	return &w, true
}

func (s *Service) staleForecast(ctx context.Context, key string) (*models.Forecast, bool) {
	data, age, ok := s.cache.GetStale(ctx, key)
	if !ok {
		return nil, false
	}
	var f models.Forecast
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	f.Stale = true
	f.CacheAgeSecs = age.Seconds()
	slog.Info("serving stale forecast data", "key", key, "age", age)
	return &f, true
}

func (s *Service) staleAirQuality(ctx context.Context, key string) (*models.AirQuality, bool) {
	data, age, ok := s.cache.GetStale(ctx, key)
	if !ok {
		return nil, false
	}
	var aq models.AirQuality
	if err := json.Unmarshal(data, &aq); err != nil {
		return nil, false
	}
	aq.Stale = true
	aq.CacheAgeSecs = age.Seconds()
	slog.Info("serving stale air quality data", "key", key, "age", age)
	return &aq, true
}

func weatherKey(location string) string {
	return "weather:" + strings.ToLower(location)
}

func forecastKey(location string, days int) string {
	return fmt.Sprintf("forecast:%s:%d", strings.ToLower(location), days)
}

func airQualityKey(lat, lon float64) string {
	return fmt.Sprintf("air:%.4f,%.4f", lat, lon)
}

func geocodingKey(query string, limit int) string {
	return fmt.Sprintf("geo:%s:%d", strings.ToLower(query), limit)
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
