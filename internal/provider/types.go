package provider

import "time"

// Activity is a single recorded workout.
type Activity struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Sport         string    `json:"sport"`
	DistanceM     float64   `json:"distance_m"`
	MovingTimeS   int64     `json:"moving_time_s"`
	ElevationGain float64   `json:"elevation_gain_m"`
	StartTime     time.Time `json:"start_time"`
	StartLat      *float64  `json:"start_lat,omitempty"`
	StartLon      *float64  `json:"start_lon,omitempty"`
}

// Athlete is the provider's profile record for the linked account.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Totals aggregates one sport's lifetime numbers.
type Totals struct {
	Count         int64   `json:"count"`
	DistanceM     float64 `json:"distance_m"`
	MovingTimeS   int64   `json:"moving_time_s"`
	ElevationGain float64 `json:"elevation_gain_m"`
}

// Stats is the athlete's aggregate statistics.
type Stats struct {
	AthleteID int64  `json:"athlete_id"`
	Rides     Totals `json:"rides"`
	Runs      Totals `json:"runs"`
	Swims     Totals `json:"swims"`
}
