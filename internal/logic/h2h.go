package logic

import (
	"math"

	"github.com/courtsight/predictor-api/internal/models"
)

// matchupKey is the ordered (home, away) pair. Ordering is deliberate:
// A hosting B and B hosting A are different matchups with different history.
type matchupKey struct {
	home int64
	away int64
}

// h2hAggregator computes trailing-window statistics scoped to one ordered
// matchup. Games are grouped once up front and each group is rolled in date
// order; re-filtering the full slice per row would be quadratic and invites
// off-by-one mistakes at window edges.
type h2hAggregator struct {
	groups map[matchupKey][]int // row indices into the sorted game slice
}

// newH2HAggregator groups the (already date-sorted) games by ordered pair.
func newH2HAggregator(games []models.Game) *h2hAggregator {
	groups := make(map[matchupKey][]int)
	for i := range games {
		k := matchupKey{home: games[i].HomeTeamID, away: games[i].AwayTeamID}
		groups[k] = append(groups[k], i)
	}
	return &h2hAggregator{groups: groups}
}

// rollingMean produces one column aligned to the sorted game slice: for each
// game, the mean of value() over the last spec.Window prior meetings of the
// exact ordered pair, excluding the game itself. Pairs with fewer than
// spec.MinPeriods prior meetings yield NaN; the caller fills those with the
// profile's neutral default since sparse matchups are common and should not
// cost otherwise-valid rows.
func (a *h2hAggregator) rollingMean(games []models.Game, spec WindowSpec, value func(g *models.Game) float64) []float64 {
	out := make([]float64, len(games))
	for i := range out {
		out[i] = math.NaN()
	}
	for _, idxs := range a.groups {
		series := make([]float64, len(idxs))
		for j, idx := range idxs {
			series[j] = value(&games[idx])
		}
		rolled := laggedRollingMean(series, spec)
		for j, idx := range idxs {
			out[idx] = rolled[j]
		}
	}
	return out
}

// winRate is the value function for matchup win percentage.
func h2hWinRate(g *models.Game) float64 { return g.HomeWin() }

// spread is the value function for matchup point differential. It also backs
// the h2h net-rating features: over a fixed pair of opponents the trailing
// point differential is the matchup-scoped net rating.
func h2hSpread(g *models.Game) float64 { return g.PointSpread() }
