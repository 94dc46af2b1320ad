// Package weather enriches activities with historical weather conditions.
// Enrichment is strictly best-effort: any failure here is swallowed by the
// caller and the primary tool result is returned without it.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"
	httpTimeout    = 5 * time.Second
)

// Weather is the observed conditions at an activity's start.
type Weather struct {
	TemperatureC    float64 `json:"temperature_c"`
	WindSpeedKmh    float64 `json:"wind_speed_kmh"`
	PrecipitationMm float64 `json:"precipitation_mm"`
}

// Impact summarizes how the conditions likely affected the effort.
type Impact struct {
	Rating  string   `json:"rating"` // favorable, moderate, harsh
	Factors []string `json:"factors,omitempty"`
}

// Client fetches historical weather from an Open-Meteo style archive API.
// The endpoint needs no credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the archive endpoint, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a weather client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForActivity returns the conditions at (lat, lon) for the hour containing t.
func (c *Client) ForActivity(ctx context.Context, lat, lon float64, t time.Time) (*Weather, error) {
	day := t.UTC().Format("2006-01-02")
	q := url.Values{
		"latitude":   {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(lon, 'f', 4, 64)},
		"start_date": {day},
		"end_date":   {day},
		"hourly":     {"temperature_2m,wind_speed_10m,precipitation"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API status %d", resp.StatusCode)
	}

	var raw struct {
		Hourly struct {
			Temperature   []float64 `json:"temperature_2m"`
			WindSpeed     []float64 `json:"wind_speed_10m"`
			Precipitation []float64 `json:"precipitation"`
		} `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	hour := t.UTC().Hour()
	if hour >= len(raw.Hourly.Temperature) || hour >= len(raw.Hourly.WindSpeed) || hour >= len(raw.Hourly.Precipitation) {
		return nil, fmt.Errorf("weather API returned no data for hour %d", hour)
	}

	return &Weather{
		TemperatureC:    raw.Hourly.Temperature[hour],
		WindSpeedKmh:    raw.Hourly.WindSpeed[hour],
		PrecipitationMm: raw.Hourly.Precipitation[hour],
	}, nil
}

// AnalyzeImpact rates the conditions. Thresholds are deliberately coarse;
// the point is a quick label, not a meteorology report.
func AnalyzeImpact(w *Weather) Impact {
	var factors []string

	if w.TemperatureC < 0 {
		factors = append(factors, "freezing temperature")
	} else if w.TemperatureC > 30 {
		factors = append(factors, "high heat")
	}
	if w.WindSpeedKmh > 30 {
		factors = append(factors, "strong wind")
	}
	if w.PrecipitationMm > 2 {
		factors = append(factors, "heavy precipitation")
	} else if w.PrecipitationMm > 0 {
		factors = append(factors, "light precipitation")
	}

	switch {
	case len(factors) == 0:
		return Impact{Rating: "favorable"}
	case len(factors) == 1 && factors[0] == "light precipitation":
		return Impact{Rating: "moderate", Factors: factors}
	default:
		return Impact{Rating: "harsh", Factors: factors}
	}
}
