package models

// TeamSeasonStats is one advanced-stats snapshot per (team, season), produced
// by the external stats-fetch job. One row summarizes a whole season; every
// game in that season sees the same values when joined.
//
// Optional columns are pointers: the fetch job backfills seasons
// incrementally and older rows may miss the shooting splits.
type TeamSeasonStats struct {
	TeamID    int64    `json:"team_id"`
	Season    int      `json:"season"`
	OffRating *float64 `json:"off_rating"`
	DefRating *float64 `json:"def_rating"`
	NetRating *float64 `json:"net_rating"`
	Pace      *float64 `json:"pace"`
	TSPct     *float64 `json:"ts_pct"`
	EFGPct    *float64 `json:"efg_pct"`
	PlusMinus *float64 `json:"plus_minus"`
	WinPct    *float64 `json:"win_pct"`
}
