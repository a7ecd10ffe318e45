package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"weatherdash.app/config"
	"weatherdash.app/errors"
	"weatherdash.app/models"
)

// OpenWeatherMapProvider is the primary weather source. It talks to the
// data/2.5 endpoints for weather, forecast, and air pollution, and to
// geo/1.0 for location search.
type OpenWeatherMapProvider struct {
	apiKey     string
	baseURL    string
	geoBaseURL string
	units      string
	httpClient *http.Client
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Dt int64 `json:"dt"`
}

type openWeatherForecastResponse struct {
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			TempMin  float64 `json:"temp_min"`
			TempMax  float64 `json:"temp_max"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

type openWeatherAirResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components map[string]float64 `json:"components"`
	} `json:"list"`
}

type openWeatherGeoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func NewOpenWeatherMapProvider(cfg *config.WeatherConfig) *OpenWeatherMapProvider {
	return &OpenWeatherMapProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		geoBaseURL: cfg.GeoBaseURL,
		units:      cfg.Units,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *OpenWeatherMapProvider) Name() string { return "openweathermap" }

func (p *OpenWeatherMapProvider) CurrentWeather(ctx context.Context, location string) (*models.Weather, error) {
	if location == "" {
		return nil, errors.NewValidationError("location cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=%s",
		p.baseURL, url.QueryEscape(location), p.apiKey, p.units)

	var resp openWeatherResponse
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &resp); err != nil {
		return nil, err
	}

	description := ""
	if len(resp.Weather) > 0 {
		description = resp.Weather[0].Description
	}

	return &models.Weather{
		Location:    resp.Name,
		Temperature: resp.Main.Temp,
		FeelsLike:   resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		Pressure:    resp.Main.Pressure,
		WindSpeed:   resp.Wind.Speed,
		Description: description,
		Timestamp:   time.Unix(resp.Dt, 0).UTC(),
	}, nil
}

func (p *OpenWeatherMapProvider) Forecast(ctx context.Context, location string, days int) (*models.Forecast, error) {
	if location == "" {
		return nil, errors.NewValidationError("location cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/forecast?q=%s&appid=%s&units=%s",
		p.baseURL, url.QueryEscape(location), p.apiKey, p.units)

	var resp openWeatherForecastResponse
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &resp); err != nil {
		return nil, err
	}

	return &models.Forecast{
		Location: resp.City.Name,
		Days:     groupForecastByDay(&resp, days),
	}, nil
}

// groupForecastByDay collapses the 3-hourly forecast list into one entry
// per calendar day: min of temp_min, max of temp_max, humidity and
// description from the first slot of the day.
func groupForecastByDay(resp *openWeatherForecastResponse, days int) []models.ForecastDay {
	type dayAgg struct {
		day models.ForecastDay
		set bool
	}
	byDate := make(map[string]*dayAgg)
	dates := make([]string, 0, days)

	for _, slot := range resp.List {
		date := time.Unix(slot.Dt, 0).UTC().Format("2006-01-02")
		agg, ok := byDate[date]
		if !ok {
			if len(dates) >= days {
				break
			}
			agg = &dayAgg{}
			byDate[date] = agg
			dates = append(dates, date)
		}

		if !agg.set {
			agg.day = models.ForecastDay{
				Date:     date,
				TempMin:  slot.Main.TempMin,
				TempMax:  slot.Main.TempMax,
				Humidity: slot.Main.Humidity,
			}
			if len(slot.Weather) > 0 {
				agg.day.Description = slot.Weather[0].Description
			}
			agg.set = true
			continue
		}
		if slot.Main.TempMin < agg.day.TempMin {
			agg.day.TempMin = slot.Main.TempMin
		}
		if slot.Main.TempMax > agg.day.TempMax {
			agg.day.TempMax = slot.Main.TempMax
		}
	}

	sort.Strings(dates)
	result := make([]models.ForecastDay, 0, len(dates))
	for _, date := range dates {
		result = append(result, byDate[date].day)
	}
	return result
}

// aqiDescriptions maps the OpenWeatherMap 1-5 air quality index.
var aqiDescriptions = map[int]string{
	1: "Good",
	2: "Fair",
	3: "Moderate",
	4: "Poor",
	5: "Very Poor",
}

func (p *OpenWeatherMapProvider) AirQuality(ctx context.Context, lat, lon float64) (*models.AirQuality, error) {
	endpoint := fmt.Sprintf("%s/air_pollution?lat=%g&lon=%g&appid=%s", p.baseURL, lat, lon, p.apiKey)

	var resp openWeatherAirResponse
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &resp); err != nil {
		return nil, err
	}
	if len(resp.List) == 0 {
		return nil, errors.NewServiceUnavailableError("openweathermap: empty air pollution response", nil)
	}

	aqi := resp.List[0].Main.AQI
	description, ok := aqiDescriptions[aqi]
	if !ok {
		description = "Unknown"
	}

	return &models.AirQuality{
		AQI:         aqi,
		Description: description,
		Components:  resp.List[0].Components,
	}, nil
}

func (p *OpenWeatherMapProvider) SearchLocations(ctx context.Context, query string, limit int) ([]models.Location, error) {
	if query == "" {
		return nil, errors.NewValidationError("search query cannot be empty")
	}
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("%s/direct?q=%s&limit=%d&appid=%s",
		p.geoBaseURL, url.QueryEscape(query), limit, p.apiKey)

	var results []openWeatherGeoResult
	if err := getJSON(ctx, p.httpClient, p.Name(), endpoint, &results); err != nil {
		return nil, err
	}

	locations := make([]models.Location, 0, len(results))
	for _, r := range results {
		locations = append(locations, models.Location{
			Name:    r.Name,
			Country: r.Country,
			State:   r.State,
			Lat:     r.Lat,
			Lon:     r.Lon,
		})
	}
	return locations, nil
}
