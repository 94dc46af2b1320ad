package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() OAuthApp {
	return OAuthApp{
		ClientID:     "12345",
		ClientSecret: "top-secret",
		Scopes:       []string{"activity:read_all"},
	}
}

func TestStrava_AuthCodeURL(t *testing.T) {
	s := NewStrava()

	url := s.AuthCodeURL(testApp(), "http://localhost/callback", "nonce-1")
	assert.Contains(t, url, "https://www.strava.com/oauth/authorize")
	assert.Contains(t, url, "client_id=12345")
	assert.Contains(t, url, "state=nonce-1")
	assert.Contains(t, url, "approval_prompt=auto")
	assert.NotContains(t, url, "top-secret")
}

func TestStrava_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    21600,
			"token_type":    "Bearer",
		})
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL, srv.URL))
	tok, err := s.Exchange(context.Background(), testApp(), "the-code", "http://localhost/callback")
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	assert.False(t, tok.ExpiresAt.IsZero())
}

func TestStrava_Refresh_RotatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "rotated-access",
			"refresh_token": "rotated-refresh",
			"expires_in":    21600,
			"token_type":    "Bearer",
		})
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL, srv.URL))
	tok, err := s.Refresh(context.Background(), testApp(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", tok.AccessToken)
	assert.Equal(t, "rotated-refresh", tok.RefreshToken)
}

func TestStrava_Refresh_KeepsTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "rotated-access",
			"expires_in":   21600,
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL, srv.URL))
	tok, err := s.Refresh(context.Background(), testApp(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", tok.RefreshToken)
}

func TestStrava_Exchange_BadCodeIsTransportError(t *testing.T) {
	// An invalid or already-spent authorization code comes back as a 400,
	// which says nothing about any stored refresh token.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL, srv.URL))
	_, err := s.Exchange(context.Background(), testApp(), "bad-code", "http://localhost/callback")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshRevoked)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadRequest, transportErr.Status)
}

func TestStrava_Refresh_RevokedToken(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}))

		s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL, srv.URL))
		_, err := s.Refresh(context.Background(), testApp(), "dead-refresh")
		assert.ErrorIs(t, err, ErrRefreshRevoked, "status %d", status)
		srv.Close()
	}
}

func TestStrava_Refresh_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL, srv.URL))
	_, err := s.Refresh(context.Background(), testApp(), "refresh")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshRevoked)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadGateway, transportErr.Status)
}

func TestStrava_FetchActivities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer the-access-token", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"id": 101,
				"name": "Morning Run",
				"sport_type": "Run",
				"distance": 10500.5,
				"moving_time": 3100,
				"total_elevation_gain": 120,
				"start_date": "2024-05-01T07:00:00Z",
				"start_latlng": [52.52, 13.405]
			},
			{
				"id": 102,
				"name": "Trainer Ride",
				"sport_type": "VirtualRide",
				"distance": 30000,
				"moving_time": 3600,
				"start_date": "2024-05-02T18:00:00Z",
				"start_latlng": []
			}
		]`))
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL+"/token", srv.URL))
	activities, err := s.FetchActivities(context.Background(), "the-access-token", 5)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	first := activities[0]
	assert.Equal(t, int64(101), first.ID)
	assert.Equal(t, "Run", first.Sport)
	assert.Equal(t, 10500.5, first.DistanceM)
	require.NotNil(t, first.StartLat)
	assert.Equal(t, 52.52, *first.StartLat)
	require.NotNil(t, first.StartLon)
	assert.Equal(t, 13.405, *first.StartLon)

	// Indoor activity has no start position.
	assert.Nil(t, activities[1].StartLat)
	assert.Nil(t, activities[1].StartLon)
}

func TestStrava_FetchAthlete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"username":"runner","firstname":"Ada","lastname":"L","city":"Berlin","country":"Germany"}`))
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL+"/token", srv.URL))
	athlete, err := s.FetchAthlete(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(7), athlete.ID)
	assert.Equal(t, "runner", athlete.Username)
	assert.Equal(t, "Ada", athlete.FirstName)
	assert.Equal(t, "Berlin", athlete.City)
}

func TestStrava_FetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athletes/7/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"all_ride_totals": {"count": 10, "distance": 500000, "moving_time": 72000, "elevation_gain": 4000},
			"all_run_totals": {"count": 42, "distance": 420000, "moving_time": 151200, "elevation_gain": 2100},
			"all_swim_totals": {"count": 0, "distance": 0, "moving_time": 0, "elevation_gain": 0}
		}`))
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL+"/token", srv.URL))
	stats, err := s.FetchStats(context.Background(), "tok", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.AthleteID)
	assert.Equal(t, int64(42), stats.Runs.Count)
	assert.Equal(t, 500000.0, stats.Rides.DistanceM)
}

func TestStrava_APIErrorDoesNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"Rate Limit Exceeded"}`))
	}))
	defer srv.Close()

	s := NewStrava(WithBaseURLs(srv.URL+"/authorize", srv.URL+"/token", srv.URL))
	_, err := s.FetchAthlete(context.Background(), "super-secret-access-token")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-access-token")

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusTooManyRequests, transportErr.Status)
}

func TestRegistry(t *testing.T) {
	s := NewStrava()
	r := NewRegistry(s)

	got, err := r.Get("strava")
	require.NoError(t, err)
	assert.Same(t, Provider(s), got)

	got, err = r.Get("Strava")
	require.NoError(t, err)
	assert.Same(t, Provider(s), got)

	_, err = r.Get("garmin")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
