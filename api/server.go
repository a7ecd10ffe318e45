package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weatherdash.app/config"
	"weatherdash.app/errors"
	"weatherdash.app/models"
)

// WeatherServiceInterface is what the HTTP layer needs from the
// orchestrator. It is satisfied by *weather.Service.
type WeatherServiceInterface interface {
	CurrentWeather(ctx context.Context, location string) (*models.Weather, error)
	Forecast(ctx context.Context, location string, days int) (*models.Forecast, error)
	AirQuality(ctx context.Context, lat, lon float64) (*models.AirQuality, error)
	SearchLocations(ctx context.Context, query string, limit int) ([]models.Location, error)
	Status() *models.ServiceStatus
}

// Server represents the HTTP server and API handler
type Server struct {
	router         *gin.Engine
	config         *config.Config
	weatherService WeatherServiceInterface
}

// NewServer creates and configures a new HTTP server
func NewServer(cfg *config.Config, weatherService WeatherServiceInterface) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestID())

	server := &Server{
		router:         router,
		config:         cfg,
		weatherService: weatherService,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/weather", s.getWeather)
		api.GET("/forecast", s.getForecast)
		api.GET("/air-quality", s.getAirQuality)
		api.GET("/locations/search", s.searchLocations)
		api.GET("/status", s.getStatus)
	}

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start begins the HTTP server
func (s *Server) Start() error {
	return s.router.Run(fmt.Sprintf(":%d", s.config.Server.Port))
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// requestID tags every request with an id for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

type weatherQuery struct {
	Location string `form:"location" binding:"required,min=2"`
}

type forecastQuery struct {
	Location string `form:"location" binding:"required,min=2"`
	Days     int    `form:"days,default=5" binding:"min=1,max=7"`
}

type airQualityQuery struct {
	Lat float64 `form:"lat" binding:"min=-90,max=90"`
	Lon float64 `form:"lon" binding:"min=-180,max=180"`
}

type searchQuery struct {
	Query string `form:"q" binding:"required,min=2"`
	Limit int    `form:"limit,default=5" binding:"omitempty,min=1,max=20"`
}

func (s *Server) getWeather(c *gin.Context) {
	var q weatherQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.handleError(c, errors.NewValidationError("location parameter is required (at least 2 characters)"))
		return
	}

	weather, err := s.weatherService.CurrentWeather(c.Request.Context(), q.Location)
	if err != nil {
		slog.Error("weather request failed", "location", q.Location, "error", err,
			"request_id", c.GetString("request_id"))
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, weather)
}

func (s *Server) getForecast(c *gin.Context) {
	var q forecastQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.handleError(c, errors.NewValidationError("invalid forecast query"))
		return
	}

	forecast, err := s.weatherService.Forecast(c.Request.Context(), q.Location, q.Days)
	if err != nil {
		slog.Error("forecast request failed", "location", q.Location, "error", err,
			"request_id", c.GetString("request_id"))
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, forecast)
}

func (s *Server) getAirQuality(c *gin.Context) {
	var q airQualityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.handleError(c, errors.NewValidationError("invalid coordinates"))
		return
	}

	air, err := s.weatherService.AirQuality(c.Request.Context(), q.Lat, q.Lon)
	if err != nil {
		slog.Error("air quality request failed", "lat", q.Lat, "lon", q.Lon, "error", err,
			"request_id", c.GetString("request_id"))
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, air)
}

func (s *Server) searchLocations(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.handleError(c, errors.NewValidationError("q parameter is required (at least 2 characters)"))
		return
	}

	locations, err := s.weatherService.SearchLocations(c.Request.Context(), q.Query, q.Limit)
	if err != nil {
		slog.Error("location search failed", "query", q.Query, "error", err,
			"request_id", c.GetString("request_id"))
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": locations})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.weatherService.Status())
}
