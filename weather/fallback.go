package weather

import (
	"time"

	"weatherdash.app/models"
)

// Synthetic payloads returned when there is neither a live fetch nor
// usable cached data. Values are deliberately bland so the dashboard can
// render something instead of an error page.

func offlineWeather(location string) *models.Weather {
	return &models.Weather{
		Location:    location,
		Temperature: 20.0,
		FeelsLike:   20.0,
		Humidity:    50,
		Pressure:    1013.25,
		Description: "Offline Mode",
		Timestamp:   time.Now().UTC(),
		Offline:     true,
	}
}

func offlineForecast(location string) *models.Forecast {
	return &models.Forecast{
		Location: location,
		Days:     []models.ForecastDay{},
		Message:  "Forecast unavailable in offline mode",
		Offline:  true,
	}
}

func offlineAirQuality() *models.AirQuality {
	return &models.AirQuality{
		AQI:         50,
		Description: "Unavailable (offline)",
		Offline:     true,
	}
}
