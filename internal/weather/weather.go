// Package weather enriches analyses with the current local weather. It is
// strictly best effort: geolocation and forecast lookups that fail produce
// an empty result and a log line, never an error the caller must handle.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultGeoURL      = "http://ip-api.com/json"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	requestTimeout = 5 * time.Second
)

// Conditions is the enrichment attached to an analysis.
type Conditions struct {
	City         string  `json:"city"`
	Country      string  `json:"country"`
	TemperatureC float64 `json:"temperature_c"`
	WindSpeedKmh float64 `json:"wind_speed_kmh"`
	Description  string  `json:"description"`
}

// String renders the conditions for the analysis prompt.
func (c *Conditions) String() string {
	s := fmt.Sprintf("%s, %.1f °C, wind %.0f km/h", c.Description, c.TemperatureC, c.WindSpeedKmh)
	if c.City != "" {
		s = fmt.Sprintf("%s (%s, %s)", s, c.City, c.Country)
	}
	return s
}

// Client looks up approximate location by IP and current weather for it.
type Client struct {
	httpClient  *http.Client
	geoURL      string
	forecastURL string
	logger      *logrus.Logger
}

// Option overrides client defaults, mainly for tests.
type Option func(*Client)

// WithBaseURLs points the client at alternate endpoints.
func WithBaseURLs(geoURL, forecastURL string) Option {
	return func(c *Client) {
		c.geoURL = geoURL
		c.forecastURL = forecastURL
	}
}

// NewClient creates a weather client.
func NewClient(logger *logrus.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		geoURL:      defaultGeoURL,
		forecastURL: defaultForecastURL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geoResponse struct {
	Status  string  `json:"status"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// Current returns the local weather, or ok=false if any step failed.
func (c *Client) Current(ctx context.Context) (*Conditions, bool) {
	geo, err := c.geolocate(ctx)
	if err != nil {
		c.logger.WithError(err).Info("Weather enrichment skipped: geolocation failed")
		return nil, false
	}

	cond, err := c.forecast(ctx, geo.Lat, geo.Lon)
	if err != nil {
		c.logger.WithError(err).Info("Weather enrichment skipped: forecast failed")
		return nil, false
	}

	cond.City = geo.City
	cond.Country = geo.Country
	return cond, true
}

func (c *Client) geolocate(ctx context.Context) (*geoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.geoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation returned %s", resp.Status)
	}

	var geo geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&geo); err != nil {
		return nil, err
	}
	if geo.Status != "" && geo.Status != "success" {
		return nil, fmt.Errorf("geolocation status %q", geo.Status)
	}
	return &geo, nil
}

func (c *Client) forecast(ctx context.Context, lat, lon float64) (*Conditions, error) {
	url := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current_weather=true", c.forecastURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast returned %s", resp.Status)
	}

	var forecast forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, err
	}

	return &Conditions{
		TemperatureC: forecast.CurrentWeather.Temperature,
		WindSpeedKmh: forecast.CurrentWeather.WindSpeed,
		Description:  describeCode(forecast.CurrentWeather.WeatherCode),
	}, nil
}

// describeCode maps WMO weather interpretation codes to short text.
func describeCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
