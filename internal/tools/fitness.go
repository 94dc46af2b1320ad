package tools

import (
	"context"
	"log/slog"

	"github.com/fitgate/fitgate/internal/logging"
	"github.com/fitgate/fitgate/internal/provider"
	"github.com/fitgate/fitgate/internal/provider/weather"
)

const (
	defaultActivityLimit = 30
	maxActivityLimit     = 100
)

// EnrichedActivity is an activity with best-effort weather context.
type EnrichedActivity struct {
	provider.Activity
	Weather *weather.Weather `json:"weather,omitempty"`
	Impact  *weather.Impact  `json:"weather_impact,omitempty"`
}

// RegisterFitnessTools registers the fitness data tools. The weather client
// is optional; without it activities are returned unenriched.
func RegisterFitnessTools(r *Registry, wc *weather.Client, logger *slog.Logger) error {
	tools := []Tool{
		{
			Name:        "get_activities",
			Description: "List recent activities from the linked fitness provider, with weather context where available",
			Handler:     getActivitiesHandler(wc, logger),
		},
		{
			Name:        "get_athlete",
			Description: "Fetch the linked athlete profile from the fitness provider",
			Handler:     getAthleteHandler(),
		},
		{
			Name:        "get_stats",
			Description: "Fetch lifetime activity statistics for the linked athlete",
			Handler:     getStatsHandler(),
		},
	}

	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func getActivitiesHandler(wc *weather.Client, logger *slog.Logger) Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		limit := intArg(call.Args, "limit", defaultActivityLimit)
		if limit <= 0 {
			limit = defaultActivityLimit
		}
		if limit > maxActivityLimit {
			limit = maxActivityLimit
		}

		activities, err := call.Provider.FetchActivities(ctx, call.AccessToken, limit)
		if err != nil {
			return nil, err
		}

		enriched := make([]EnrichedActivity, 0, len(activities))
		for _, act := range activities {
			e := EnrichedActivity{Activity: act}
			if wc != nil && act.StartLat != nil && act.StartLon != nil {
				w, werr := wc.ForActivity(ctx, *act.StartLat, *act.StartLon, act.StartTime)
				if werr != nil {
					// Enrichment is best-effort; the activity still goes out.
					logger.Debug("weather enrichment skipped",
						logging.Tool("get_activities"), logging.Err(werr))
				} else {
					impact := weather.AnalyzeImpact(w)
					e.Weather = w
					e.Impact = &impact
				}
			}
			enriched = append(enriched, e)
		}

		return map[string]any{"activities": enriched}, nil
	}
}

func getAthleteHandler() Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		athlete, err := call.Provider.FetchAthlete(ctx, call.AccessToken)
		if err != nil {
			return nil, err
		}
		return map[string]any{"athlete": athlete}, nil
	}
}

func getStatsHandler() Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		// Stats are keyed by the provider-side athlete id, which is not
		// part of the credential; resolve it first.
		athlete, err := call.Provider.FetchAthlete(ctx, call.AccessToken)
		if err != nil {
			return nil, err
		}
		stats, err := call.Provider.FetchStats(ctx, call.AccessToken, athlete.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"stats": stats}, nil
	}
}
