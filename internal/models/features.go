package models

import (
	"math"
	"time"
)

// FeatureRow is one training-table row: every feature the profile defines,
// keyed by name, plus the targets. Values hold NaN for features the window
// could not produce; rows failing the profile's required set are dropped
// before they leave the engine.
type FeatureRow struct {
	GameID      int64              `json:"game_id"`
	Date        time.Time          `json:"date"`
	Season      int                `json:"season"`
	HomeTeamID  int64              `json:"home_team_id"`
	AwayTeamID  int64              `json:"away_team_id"`
	Values      map[string]float64 `json:"values"`
	HomeWin     float64            `json:"home_win"`
	PointSpread float64            `json:"point_spread"`
}

// Vector materializes the row in the given feature order. Missing names come
// back as NaN so a caller can never silently shift positions.
func (r *FeatureRow) Vector(order []string) []float64 {
	out := make([]float64, len(order))
	for i, name := range order {
		v, ok := r.Values[name]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// TeamForm is the live rolling aggregate for one team in one role
// (home or away), served by the aggregate store at prediction time.
type TeamForm struct {
	TeamID        int64   `json:"team_id"`
	Games         int     `json:"games"`
	AvgPts        float64 `json:"avg_pts"`
	AvgPtsAllowed float64 `json:"avg_pts_allowed"`
	WinPct        float64 `json:"win_pct"`
	NetRating     float64 `json:"net_rating"`
	AvgMargin     float64 `json:"avg_margin"`
	MarginStd     float64 `json:"margin_std"`
}

// MatchupForm is the live aggregate for one ordered (home, away) pair.
// The ordering matters: (A home, B away) and (B home, A away) are distinct
// histories and are never merged.
type MatchupForm struct {
	HomeTeamID   int64   `json:"home_team_id"`
	AwayTeamID   int64   `json:"away_team_id"`
	Meetings     int     `json:"meetings"`
	WinPct       float64 `json:"win_pct"`
	AvgSpread    float64 `json:"avg_spread"`
	NetRtgLast5  float64 `json:"netrtg_last_5"`
	NetRtgLast10 float64 `json:"netrtg_last_10"`
	NetRtgLast20 float64 `json:"netrtg_last_20"`
}
