package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"weatherdash.app/config"
	"weatherdash.app/errors"
	"weatherdash.app/models"
)

// WeatherAPIProvider is the fallback source backed by WeatherAPI.com. It is
// used when the primary provider keeps failing.
type WeatherAPIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type weatherAPICurrentResponse struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Current struct {
		TempC      float64 `json:"temp_c"`
		FeelsLikeC float64 `json:"feelslike_c"`
		Humidity   float64 `json:"humidity"`
		PressureMb float64 `json:"pressure_mb"`
		WindKph    float64 `json:"wind_kph"`
		Condition  struct {
			Text string `json:"text"`
		} `json:"condition"`
		LastUpdatedEpoch int64 `json:"last_updated_epoch"`
	} `json:"current"`
}

type weatherAPIForecastResponse struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MintempC    float64 `json:"mintemp_c"`
				MaxtempC    float64 `json:"maxtemp_c"`
				AvgHumidity float64 `json:"avghumidity"`
				Condition   struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type weatherAPISearchResult struct {
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func NewWeatherAPIProvider(cfg *config.WeatherConfig) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		apiKey:     cfg.FallbackAPIKey,
		baseURL:    cfg.FallbackURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *WeatherAPIProvider) Name() string { return "weatherapi" }

func (p *WeatherAPIProvider) CurrentWeather(ctx context.Context, location string) (*models.Weather, error) {
	if location == "" {
		return nil, errors.NewValidationError("location cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/current.json?key=%s&q=%s&aqi=no",
		p.baseURL, p.apiKey, url.QueryEscape(location))

	var resp weatherAPICurrentResponse
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &resp); err != nil {
		return nil, err
	}

	return &models.Weather{
		Location:    resp.Location.Name,
		Temperature: resp.Current.TempC,
		FeelsLike:   resp.Current.FeelsLikeC,
		Humidity:    resp.Current.Humidity,
		Pressure:    resp.Current.PressureMb,
		// WeatherAPI reports km/h; the models use m/s like the primary.
		WindSpeed:   resp.Current.WindKph / 3.6,
		Description: resp.Current.Condition.Text,
		Timestamp:   time.Unix(resp.Current.LastUpdatedEpoch, 0).UTC(),
	}, nil
}

func (p *WeatherAPIProvider) Forecast(ctx context.Context, location string, days int) (*models.Forecast, error) {
	if location == "" {
		return nil, errors.NewValidationError("location cannot be empty")
	}
	if days <= 0 {
		days = 5
	}

	endpoint := fmt.Sprintf("%s/forecast.json?key=%s&q=%s&days=%d&aqi=no&alerts=no",
		p.baseURL, p.apiKey, url.QueryEscape(location), days)

	var resp weatherAPIForecastResponse
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &resp); err != nil {
		return nil, err
	}

	forecastDays := make([]models.ForecastDay, 0, len(resp.Forecast.ForecastDay))
	for _, fd := range resp.Forecast.ForecastDay {
		forecastDays = append(forecastDays, models.ForecastDay{
			Date:        fd.Date,
			TempMin:     fd.Day.MintempC,
			TempMax:     fd.Day.MaxtempC,
			Humidity:    fd.Day.AvgHumidity,
			Description: fd.Day.Condition.Text,
		})
	}

	return &models.Forecast{
		Location: resp.Location.Name,
		Days:     forecastDays,
	}, nil
}

// AirQuality is not offered by the fallback plan, so coordinates resolve to
// a not-found error and the caller degrades to cached or synthetic data.
func (p *WeatherAPIProvider) AirQuality(_ context.Context, lat, lon float64) (*models.AirQuality, error) {
	return nil, errors.NewNotFoundError(
		fmt.Sprintf("weatherapi: air quality not available for %.4f,%.4f", lat, lon))
}

func (p *WeatherAPIProvider) SearchLocations(ctx context.Context, query string, limit int) ([]models.Location, error) {
	if query == "" {
		return nil, errors.NewValidationError("search query cannot be empty")
	}
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("%s/search.json?key=%s&q=%s",
		p.baseURL, p.apiKey, url.QueryEscape(query))

	var results []weatherAPISearchResult
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &results); err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}
	locations := make([]models.Location, 0, len(results))
	for _, r := range results {
		locations = append(locations, models.Location{
			Name:    r.Name,
			Country: r.Country,
			State:   r.Region,
			Lat:     r.Lat,
			Lon:     r.Lon,
		})
	}
	return locations, nil
}
