package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherdash.app/config"
	apperrors "weatherdash.app/errors"
)

func newOpenWeatherTestProvider(serverURL string) *OpenWeatherMapProvider {
	return NewOpenWeatherMapProvider(&config.WeatherConfig{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		GeoBaseURL: serverURL,
		Units:      "metric",
	})
}

func TestOpenWeatherMap_CurrentWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "London", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "London",
			"main": {"temp": 15.5, "feels_like": 14.2, "humidity": 72, "pressure": 1012},
			"wind": {"speed": 4.1},
			"weather": [{"description": "light rain"}],
			"dt": 1700000000
		}`))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	weather, err := p.CurrentWeather(context.Background(), "London")

	require.NoError(t, err)
	assert.Equal(t, "London", weather.Location)
	assert.Equal(t, 15.5, weather.Temperature)
	assert.Equal(t, 14.2, weather.FeelsLike)
	assert.Equal(t, float64(72), weather.Humidity)
	assert.Equal(t, float64(1012), weather.Pressure)
	assert.Equal(t, 4.1, weather.WindSpeed)
	assert.Equal(t, "light rain", weather.Description)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), weather.Timestamp)
}

func TestOpenWeatherMap_CurrentWeatherEmptyLocation(t *testing.T) {
	p := newOpenWeatherTestProvider("http://example.invalid")
	_, err := p.CurrentWeather(context.Background(), "")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestOpenWeatherMap_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		check      func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsAPIKeyError(err))
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsAPIKeyError(err))
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsNotFoundError(err))
			},
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsRateLimitError(err))
				retryAfter, ok := apperrors.RetryAfter(err)
				require.True(t, ok)
				assert.Equal(t, 30*time.Second, retryAfter)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsServiceUnavailableError(err))
			},
		},
		{
			name:   "bad gateway",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsServiceUnavailableError(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p := newOpenWeatherTestProvider(server.URL)
			_, err := p.CurrentWeather(context.Background(), "London")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestOpenWeatherMap_ConnectionRefused(t *testing.T) {
	p := newOpenWeatherTestProvider("http://127.0.0.1:1")
	_, err := p.CurrentWeather(context.Background(), "London")
	assert.True(t, apperrors.IsNetworkError(err))
}

func TestOpenWeatherMap_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	_, err := p.CurrentWeather(context.Background(), "London")
	assert.True(t, apperrors.IsServiceUnavailableError(err))
}

func TestOpenWeatherMap_ForecastGroupsByDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		// Two slots on 2023-11-14 UTC, one slot on 2023-11-15.
		_, _ = w.Write([]byte(`{
			"city": {"name": "London"},
			"list": [
				{"dt": 1699930000, "main": {"temp_min": 8, "temp_max": 11, "humidity": 80},
				 "weather": [{"description": "cloudy"}]},
				{"dt": 1699960000, "main": {"temp_min": 6, "temp_max": 13, "humidity": 70},
				 "weather": [{"description": "sunny"}]},
				{"dt": 1700010000, "main": {"temp_min": 5, "temp_max": 9, "humidity": 85},
				 "weather": [{"description": "rain"}]}
			]
		}`))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	forecast, err := p.Forecast(context.Background(), "London", 5)

	require.NoError(t, err)
	assert.Equal(t, "London", forecast.Location)
	require.Len(t, forecast.Days, 2)

	day1 := forecast.Days[0]
	assert.Equal(t, float64(6), day1.TempMin, "min across slots")
	assert.Equal(t, float64(13), day1.TempMax, "max across slots")
	assert.Equal(t, float64(80), day1.Humidity, "first slot's humidity")
	assert.Equal(t, "cloudy", day1.Description, "first slot's description")

	day2 := forecast.Days[1]
	assert.Equal(t, float64(5), day2.TempMin)
	assert.Equal(t, "rain", day2.Description)
}

func TestOpenWeatherMap_ForecastDayLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"city": {"name": "London"},
			"list": [
				{"dt": 1699930000, "main": {"temp_min": 8, "temp_max": 11, "humidity": 80}},
				{"dt": 1700010000, "main": {"temp_min": 5, "temp_max": 9, "humidity": 85}},
				{"dt": 1700100000, "main": {"temp_min": 4, "temp_max": 8, "humidity": 90}}
			]
		}`))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	forecast, err := p.Forecast(context.Background(), "London", 2)

	require.NoError(t, err)
	assert.Len(t, forecast.Days, 2)
}

func TestOpenWeatherMap_AirQuality(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/air_pollution", r.URL.Path)
		assert.Equal(t, "51.5", r.URL.Query().Get("lat"))
		assert.Equal(t, "-0.12", r.URL.Query().Get("lon"))
		_, _ = w.Write([]byte(`{
			"list": [{"main": {"aqi": 2}, "components": {"pm2_5": 5.2, "no2": 14.1}}]
		}`))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	air, err := p.AirQuality(context.Background(), 51.5, -0.12)

	require.NoError(t, err)
	assert.Equal(t, 2, air.AQI)
	assert.Equal(t, "Fair", air.Description)
	assert.Equal(t, 5.2, air.Components["pm2_5"])
}

func TestOpenWeatherMap_AirQualityEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"list": []}`))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	_, err := p.AirQuality(context.Background(), 51.5, -0.12)
	assert.True(t, apperrors.IsServiceUnavailableError(err))
}

func TestOpenWeatherMap_SearchLocations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/direct", r.URL.Path)
		assert.Equal(t, "Lond", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			{"name": "London", "country": "GB", "lat": 51.5, "lon": -0.12},
			{"name": "London", "state": "Ontario", "country": "CA", "lat": 42.98, "lon": -81.24}
		]`))
	}))
	defer server.Close()

	p := newOpenWeatherTestProvider(server.URL)
	locations, err := p.SearchLocations(context.Background(), "Lond", 3)

	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "London, GB", locations[0].DisplayName())
	assert.Equal(t, "London, Ontario, CA", locations[1].DisplayName())
}

func TestOpenWeatherMap_SearchEmptyQuery(t *testing.T) {
	p := newOpenWeatherTestProvider("http://example.invalid")
	_, err := p.SearchLocations(context.Background(), "", 5)
	assert.True(t, apperrors.IsValidationError(err))
}

func newWeatherAPITestProvider(serverURL string) *WeatherAPIProvider {
	return NewWeatherAPIProvider(&config.WeatherConfig{
		FallbackAPIKey: "fallback-key",
		FallbackURL:    serverURL,
	})
}

func TestWeatherAPI_CurrentWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/current.json", r.URL.Path)
		assert.Equal(t, "fallback-key", r.URL.Query().Get("key"))
		assert.Equal(t, "Paris", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{
			"location": {"name": "Paris"},
			"current": {
				"temp_c": 18.0, "feelslike_c": 17.5, "humidity": 65,
				"pressure_mb": 1015, "wind_kph": 18,
				"condition": {"text": "Partly cloudy"},
				"last_updated_epoch": 1700000000
			}
		}`))
	}))
	defer server.Close()

	p := newWeatherAPITestProvider(server.URL)
	weather, err := p.CurrentWeather(context.Background(), "Paris")

	require.NoError(t, err)
	assert.Equal(t, "Paris", weather.Location)
	assert.Equal(t, 18.0, weather.Temperature)
	assert.Equal(t, "Partly cloudy", weather.Description)
	assert.InDelta(t, 5.0, weather.WindSpeed, 0.001, "km/h converted to m/s")
}

func TestWeatherAPI_Forecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast.json", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{
			"location": {"name": "Paris"},
			"forecast": {"forecastday": [
				{"date": "2023-11-15", "day": {
					"mintemp_c": 7, "maxtemp_c": 14, "avghumidity": 70,
					"condition": {"text": "Sunny"}
				}}
			]}
		}`))
	}))
	defer server.Close()

	p := newWeatherAPITestProvider(server.URL)
	forecast, err := p.Forecast(context.Background(), "Paris", 3)

	require.NoError(t, err)
	require.Len(t, forecast.Days, 1)
	assert.Equal(t, "2023-11-15", forecast.Days[0].Date)
	assert.Equal(t, float64(7), forecast.Days[0].TempMin)
	assert.Equal(t, "Sunny", forecast.Days[0].Description)
}

func TestWeatherAPI_AirQualityNotSupported(t *testing.T) {
	p := newWeatherAPITestProvider("http://example.invalid")
	_, err := p.AirQuality(context.Background(), 51.5, -0.12)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestWeatherAPI_SearchLocationsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"name": "Paris", "region": "Ile-de-France", "country": "France", "lat": 48.87, "lon": 2.33},
			{"name": "Paris", "region": "Texas", "country": "USA", "lat": 33.66, "lon": -95.56},
			{"name": "Paris", "region": "Ontario", "country": "Canada", "lat": 43.2, "lon": -80.38}
		]`))
	}))
	defer server.Close()

	p := newWeatherAPITestProvider(server.URL)
	locations, err := p.SearchLocations(context.Background(), "Paris", 2)

	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "Ile-de-France", locations[0].State)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 45*time.Second, parseRetryAfter("45"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 80*time.Second)
	assert.LessOrEqual(t, d, 90*time.Second)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}

func TestProviderContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := newOpenWeatherTestProvider(server.URL)
	_, err := p.CurrentWeather(ctx, "London")
	assert.True(t, apperrors.IsNetworkError(err))
}
