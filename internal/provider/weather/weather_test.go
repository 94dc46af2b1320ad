package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func hourlySeries(base float64) []float64 {
	series := make([]float64, 24)
	for i := range series {
		series[i] = base + float64(i)
	}
	return series
}

func TestForActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") != "52.5200" || q.Get("longitude") != "13.4050" {
			t.Errorf("unexpected coordinates: %s, %s", q.Get("latitude"), q.Get("longitude"))
		}
		if q.Get("start_date") != "2024-05-01" || q.Get("end_date") != "2024-05-01" {
			t.Errorf("unexpected date range: %s..%s", q.Get("start_date"), q.Get("end_date"))
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{
				"temperature_2m": hourlySeries(0),
				"wind_speed_10m": hourlySeries(100),
				"precipitation":  hourlySeries(200),
			},
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	w, err := c.ForActivity(context.Background(), 52.52, 13.405, time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ForActivity failed: %v", err)
	}

	// Hour 7 of each series.
	if w.TemperatureC != 7 {
		t.Errorf("expected temperature 7, got %v", w.TemperatureC)
	}
	if w.WindSpeedKmh != 107 {
		t.Errorf("expected wind 107, got %v", w.WindSpeedKmh)
	}
	if w.PrecipitationMm != 207 {
		t.Errorf("expected precipitation 207, got %v", w.PrecipitationMm)
	}
}

func TestForActivity_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.ForActivity(context.Background(), 52.52, 13.405, time.Now())
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestForActivity_MissingHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{
				"temperature_2m": []float64{1, 2},
				"wind_speed_10m": []float64{1, 2},
				"precipitation":  []float64{1, 2},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.ForActivity(context.Background(), 52.52, 13.405, time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected error for truncated hourly data")
	}
}

func TestAnalyzeImpact(t *testing.T) {
	tests := []struct {
		name       string
		weather    Weather
		wantRating string
	}{
		{
			name:       "mild conditions",
			weather:    Weather{TemperatureC: 18, WindSpeedKmh: 10},
			wantRating: "favorable",
		},
		{
			name:       "light rain only",
			weather:    Weather{TemperatureC: 15, WindSpeedKmh: 5, PrecipitationMm: 0.5},
			wantRating: "moderate",
		},
		{
			name:       "heavy rain",
			weather:    Weather{TemperatureC: 15, PrecipitationMm: 5},
			wantRating: "harsh",
		},
		{
			name:       "freezing",
			weather:    Weather{TemperatureC: -5},
			wantRating: "harsh",
		},
		{
			name:       "heat",
			weather:    Weather{TemperatureC: 35},
			wantRating: "harsh",
		},
		{
			name:       "strong wind with rain",
			weather:    Weather{TemperatureC: 12, WindSpeedKmh: 45, PrecipitationMm: 1},
			wantRating: "harsh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			impact := AnalyzeImpact(&tt.weather)
			if impact.Rating != tt.wantRating {
				t.Errorf("expected rating %q, got %q (factors %v)", tt.wantRating, impact.Rating, impact.Factors)
			}
		})
	}
}

func TestAnalyzeImpact_FavorableHasNoFactors(t *testing.T) {
	impact := AnalyzeImpact(&Weather{TemperatureC: 20})
	if len(impact.Factors) != 0 {
		t.Errorf("expected no factors, got %v", impact.Factors)
	}
}
