package models

import "time"

// SeasonType values as stored by the schedule ingest job.
const (
	SeasonTypeRegular   = "Regular Season"
	SeasonTypePreseason = "Preseason"
	SeasonTypePlayoffs  = "Playoffs"
)

// Game is one scheduled or played game as persisted by the game store.
// Scores are pointers because future games are stored before tip-off.
type Game struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date"`
	Season     int       `json:"season"`
	SeasonType string    `json:"season_type"`
	HomeTeamID int64     `json:"home_team_id"`
	AwayTeamID int64     `json:"away_team_id"`
	HomeScore  *int      `json:"home_score"`
	AwayScore  *int      `json:"away_score"`
}

// Final reports whether both scores have been recorded.
func (g *Game) Final() bool {
	return g.HomeScore != nil && g.AwayScore != nil
}

// HomeWin is 1.0 when the home team won, 0.0 otherwise. Only meaningful
// for final games.
func (g *Game) HomeWin() float64 {
	if g.Final() && *g.HomeScore > *g.AwayScore {
		return 1.0
	}
	return 0.0
}

// PointSpread is home score minus away score.
func (g *Game) PointSpread() float64 {
	if !g.Final() {
		return 0
	}
	return float64(*g.HomeScore - *g.AwayScore)
}

// EffectiveSeason returns the stored season, deriving it from the date when
// the ingest job left it zero. NBA seasons are labeled by their start year:
// October onward belongs to the current calendar year, earlier months to the
// previous one.
func (g *Game) EffectiveSeason() int {
	if g.Season != 0 {
		return g.Season
	}
	if g.Date.Month() >= time.October {
		return g.Date.Year()
	}
	return g.Date.Year() - 1
}
