package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	stravaAuthURL  = "https://www.strava.com/oauth/authorize"
	stravaTokenURL = "https://www.strava.com/oauth/token"
	stravaAPIURL   = "https://www.strava.com/api/v3"

	stravaHTTPTimeout = 15 * time.Second

	// maxErrorBody bounds how much of an upstream error body is read back.
	maxErrorBody = 4 << 10
)

// Strava implements Provider against the Strava v3 REST API.
type Strava struct {
	httpClient *http.Client
	authURL    string
	tokenURL   string
	apiURL     string
}

// StravaOption configures the Strava provider.
type StravaOption func(*Strava)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) StravaOption {
	return func(s *Strava) { s.httpClient = client }
}

// WithBaseURLs overrides the endpoint URLs, used by tests.
func WithBaseURLs(authURL, tokenURL, apiURL string) StravaOption {
	return func(s *Strava) {
		s.authURL = authURL
		s.tokenURL = tokenURL
		s.apiURL = apiURL
	}
}

// NewStrava creates the Strava provider.
func NewStrava(opts ...StravaOption) *Strava {
	s := &Strava{
		httpClient: &http.Client{Timeout: stravaHTTPTimeout},
		authURL:    stravaAuthURL,
		tokenURL:   stravaTokenURL,
		apiURL:     stravaAPIURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Strava) Name() string { return "strava" }

func (s *Strava) oauthConfig(app OAuthApp, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       app.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.authURL,
			TokenURL: s.tokenURL,
		},
	}
}

func (s *Strava) AuthCodeURL(app OAuthApp, redirectURI, state string) string {
	return s.oauthConfig(app, redirectURI).AuthCodeURL(state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

func (s *Strava) Exchange(ctx context.Context, app OAuthApp, code, redirectURI string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauthConfig(app, redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, s.tokenError("exchange", err)
	}
	return fromOAuth2Token(tok), nil
}

func (s *Strava) Refresh(ctx context.Context, app OAuthApp, refreshToken string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	src := s.oauthConfig(app, "").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, s.tokenError("refresh", err)
	}
	t := fromOAuth2Token(tok)
	if t.RefreshToken == "" {
		// Provider did not rotate; keep the current one.
		t.RefreshToken = refreshToken
	}
	return t, nil
}

// tokenError maps oauth2 failures onto the provider error taxonomy.
// 400/401 on a refresh means the grant is gone and re-authorization is the
// only way forward. The same statuses on an exchange are just a bad or
// already-spent authorization code, so they stay transport errors.
func (s *Strava) tokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := retrieveErr.Response.StatusCode
		if op == "refresh" && (status == http.StatusBadRequest || status == http.StatusUnauthorized) {
			return fmt.Errorf("%s: %w", op, ErrRefreshRevoked)
		}
		return &TransportError{
			Provider: s.Name(),
			Status:   status,
			Message:  fmt.Sprintf("%s failed: %s", op, retrieveErr.ErrorCode),
		}
	}
	return &TransportError{Provider: s.Name(), Message: fmt.Sprintf("%s failed: %v", op, err)}
}

func fromOAuth2Token(tok *oauth2.Token) *Token {
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}

// stravaActivity is the wire shape of GET /athlete/activities entries.
type stravaActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	SportType          string    `json:"sport_type"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	StartDate          time.Time `json:"start_date"`
	StartLatLng        []float64 `json:"start_latlng"`
}

func (s *Strava) FetchActivities(ctx context.Context, accessToken string, limit int) ([]Activity, error) {
	q := url.Values{"per_page": {strconv.Itoa(limit)}}
	var raw []stravaActivity
	if err := s.getJSON(ctx, accessToken, "/athlete/activities?"+q.Encode(), &raw); err != nil {
		return nil, err
	}

	activities := make([]Activity, 0, len(raw))
	for _, a := range raw {
		act := Activity{
			ID:            a.ID,
			Name:          a.Name,
			Sport:         a.SportType,
			DistanceM:     a.Distance,
			MovingTimeS:   a.MovingTime,
			ElevationGain: a.TotalElevationGain,
			StartTime:     a.StartDate,
		}
		if len(a.StartLatLng) == 2 {
			lat, lon := a.StartLatLng[0], a.StartLatLng[1]
			act.StartLat, act.StartLon = &lat, &lon
		}
		activities = append(activities, act)
	}
	return activities, nil
}

func (s *Strava) FetchAthlete(ctx context.Context, accessToken string) (*Athlete, error) {
	var raw struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
		City      string `json:"city"`
		Country   string `json:"country"`
	}
	if err := s.getJSON(ctx, accessToken, "/athlete", &raw); err != nil {
		return nil, err
	}
	return &Athlete{
		ID:        raw.ID,
		Username:  raw.Username,
		FirstName: raw.FirstName,
		LastName:  raw.LastName,
		City:      raw.City,
		Country:   raw.Country,
	}, nil
}

type stravaTotals struct {
	Count         int64   `json:"count"`
	Distance      float64 `json:"distance"`
	MovingTime    int64   `json:"moving_time"`
	ElevationGain float64 `json:"elevation_gain"`
}

func (t stravaTotals) toTotals() Totals {
	return Totals{
		Count:         t.Count,
		DistanceM:     t.Distance,
		MovingTimeS:   t.MovingTime,
		ElevationGain: t.ElevationGain,
	}
}

func (s *Strava) FetchStats(ctx context.Context, accessToken string, athleteID int64) (*Stats, error) {
	var raw struct {
		AllRideTotals stravaTotals `json:"all_ride_totals"`
		AllRunTotals  stravaTotals `json:"all_run_totals"`
		AllSwimTotals stravaTotals `json:"all_swim_totals"`
	}
	path := fmt.Sprintf("/athletes/%d/stats", athleteID)
	if err := s.getJSON(ctx, accessToken, path, &raw); err != nil {
		return nil, err
	}
	return &Stats{
		AthleteID: athleteID,
		Rides:     raw.AllRideTotals.toTotals(),
		Runs:      raw.AllRunTotals.toTotals(),
		Swims:     raw.AllSwimTotals.toTotals(),
	}, nil
}

func (s *Strava) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+path, nil)
	if err != nil {
		return &TransportError{Provider: s.Name(), Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &TransportError{Provider: s.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{Provider: s.Name(), Status: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Provider: s.Name(), Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
