// Package models defines data structures shared across the application.
package models

import "time"

// Weather represents current weather conditions for a location.
type Weather struct {
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	WindSpeed   float64   `json:"wind_speed"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`

	// Degraded-data markers set when the value comes from an expired cache
	// entry or the synthetic offline payload.
	Stale        bool    `json:"stale,omitempty"`
	Offline      bool    `json:"offline,omitempty"`
	CacheAgeSecs float64 `json:"cache_age_seconds,omitempty"`
}

// ForecastDay represents a single day in a weather forecast.
type ForecastDay struct {
	Date        string  `json:"date"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Humidity    float64 `json:"humidity"`
	Description string  `json:"description"`
}

// Forecast represents a multi-day weather forecast for a location.
type Forecast struct {
	Location string        `json:"location"`
	Days     []ForecastDay `json:"days"`
	Message  string        `json:"message,omitempty"`

	Stale        bool    `json:"stale,omitempty"`
	Offline      bool    `json:"offline,omitempty"`
	CacheAgeSecs float64 `json:"cache_age_seconds,omitempty"`
}

// AirQuality represents air quality data for a coordinate.
type AirQuality struct {
	AQI         int                `json:"aqi"`
	Description string             `json:"description"`
	Components  map[string]float64 `json:"components,omitempty"`

	Stale        bool    `json:"stale,omitempty"`
	Offline      bool    `json:"offline,omitempty"`
	CacheAgeSecs float64 `json:"cache_age_seconds,omitempty"`
}

// Location represents a geocoding search result.
type Location struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// DisplayName returns a human-readable "Name, State, Country" label.
func (l Location) DisplayName() string {
	name := l.Name
	if l.State != "" {
		name += ", " + l.State
	}
	if l.Country != "" {
		name += ", " + l.Country
	}
	return name
}

// ServiceStatus describes the runtime health of the weather service for the
// dashboard's status view.
type ServiceStatus struct {
	OfflineMode         bool              `json:"offline_mode"`
	CurrentProvider     string            `json:"current_provider"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastSuccess         time.Time         `json:"last_success,omitempty"`
	CurrentBackoff      string            `json:"current_backoff"`
	Breakers            map[string]string `json:"breakers"`
	Cache               CacheStatus       `json:"cache"`
}

// CacheStatus summarizes cache health for the status view.
type CacheStatus struct {
	Backend    string  `json:"backend"`
	Entries    int     `json:"entries,omitempty"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
	BytesSaved int64   `json:"compression_bytes_saved"`
}

// ErrorResponse represents an error message structure for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
