package providers

import (
	"context"

	"weatherdash.app/models"
)

// WeatherProvider abstracts a weather data source. Implementations map
// their upstream's wire format and failure modes to the shared models and
// error types so the rest of the service never sees provider specifics.
type WeatherProvider interface {
	// Name identifies the provider in logs, metrics, and breaker state.
	Name() string

	// CurrentWeather returns current conditions for a location name.
	CurrentWeather(ctx context.Context, location string) (*models.Weather, error)

	// Forecast returns a daily forecast covering up to days days.
	Forecast(ctx context.Context, location string, days int) (*models.Forecast, error)

	// AirQuality returns air quality data for a coordinate.
	AirQuality(ctx context.Context, lat, lon float64) (*models.AirQuality, error)

	// SearchLocations returns up to limit geocoding matches for query.
	SearchLocations(ctx context.Context, query string, limit int) ([]models.Location, error)
}
