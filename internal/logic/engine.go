package logic

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/courtsight/predictor-api/internal/models"
)

// Prometheus metrics
var (
	featureRowsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_feature_rows_built_total",
		Help: "Total number of training feature rows emitted by the engine",
	})

	featureRowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_feature_rows_dropped_total",
		Help: "Total number of games excluded from the training table",
	}, []string{"reason"})

	featureBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predictor_feature_build_duration_seconds",
		Help:    "Duration of full feature-table builds",
		Buckets: prometheus.DefBuckets,
	})
)

// Engine transforms the persisted game history into the time-ordered training
// table for one feature-set profile. It reads a fully materialized snapshot of
// history per run and regenerates every row; there is no incremental path.
type Engine struct {
	profile     *Profile
	logger      *zap.SugaredLogger
	parallelism int
}

// NewEngine builds a feature engine for one profile. parallelism bounds the
// concurrent per-group rolling computations; <=0 means GOMAXPROCS-ish default.
func NewEngine(profile *Profile, logger *zap.Logger, parallelism int) *Engine {
	if parallelism <= 0 {
		parallelism = 8
	}
	return &Engine{
		profile:     profile,
		logger:      logger.Sugar(),
		parallelism: parallelism,
	}
}

// column is one feature column aligned to the sorted game slice.
func newColumn(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = math.NaN()
	}
	return c
}

// Build produces one FeatureRow per qualifying game. Games may arrive in any
// order; the engine sorts by date ascending (insertion order breaks ties) and
// then treats per-group chronological order as a hard precondition for every
// rolling window. Duplicate game IDs abort the run.
func (e *Engine) Build(ctx context.Context, games []models.Game, snaps []models.TeamSeasonStats) ([]models.FeatureRow, error) {
	start := time.Now()
	defer func() { featureBuildDuration.Observe(time.Since(start).Seconds()) }()

	sorted, err := e.prepare(games)
	if err != nil {
		return nil, err
	}
	// Partial snapshot coverage drops individual rows; a run with none at
	// all for a profile that requires them is a misconfiguration and would
	// only produce an empty table.
	if len(sorted) > 0 && len(snaps) == 0 && e.profile.requiresSnapshots() {
		return nil, &MissingDataError{
			What: "profile " + e.profile.Name + " requires season snapshots, none loaded",
		}
	}

	cols, err := e.buildColumns(ctx, sorted)
	if err != nil {
		return nil, err
	}
	e.joinSnapshots(sorted, NewSnapshotIndex(snaps), cols)

	rows := make([]models.FeatureRow, 0, len(sorted))
	dropped := 0
	for i := range sorted {
		g := &sorted[i]
		values := make(map[string]float64, len(e.profile.Features))
		for name, col := range cols {
			if e.profile.Has(name) {
				values[name] = col[i]
			}
		}
		e.profile.Derive(values)
		if !e.profile.Complete(values) {
			dropped++
			featureRowsDropped.WithLabelValues("incomplete_history").Inc()
			continue
		}
		e.profile.FillDefaults(values)

		rows = append(rows, models.FeatureRow{
			GameID:      g.ID,
			Date:        g.Date,
			Season:      g.EffectiveSeason(),
			HomeTeamID:  g.HomeTeamID,
			AwayTeamID:  g.AwayTeamID,
			Values:      values,
			HomeWin:     g.HomeWin(),
			PointSpread: g.PointSpread(),
		})
		featureRowsBuilt.Inc()
	}

	e.logger.Infow("Feature build finished",
		"profile", e.profile.Name,
		"games", len(sorted),
		"rows", len(rows),
		"dropped", dropped,
		"duration", time.Since(start),
	)
	return rows, nil
}

// prepare filters to qualifying final games, sorts, and runs the integrity
// checks that must pass before any window is computed.
func (e *Engine) prepare(games []models.Game) ([]models.Game, error) {
	sorted := make([]models.Game, 0, len(games))
	for i := range games {
		g := games[i]
		if !g.Final() {
			featureRowsDropped.WithLabelValues("not_final").Inc()
			continue
		}
		if !e.seasonTypeAllowed(g.SeasonType) {
			featureRowsDropped.WithLabelValues("season_type").Inc()
			continue
		}
		if g.Date.IsZero() {
			return nil, integrityErrorf("game %d has no date", g.ID)
		}
		sorted = append(sorted, g)
	}

	// Stable: equal dates keep insertion order, the documented tiebreak.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	seen := make(map[int64]bool, len(sorted))
	for i := range sorted {
		if seen[sorted[i].ID] {
			return nil, integrityErrorf("duplicate game id %d", sorted[i].ID)
		}
		seen[sorted[i].ID] = true
	}
	return sorted, nil
}

func (e *Engine) seasonTypeAllowed(st string) bool {
	if len(e.profile.IncludeSeasonTypes) == 0 {
		return st != models.SeasonTypePreseason
	}
	for _, allowed := range e.profile.IncludeSeasonTypes {
		if st == allowed {
			return true
		}
	}
	return false
}

// buildColumns computes every rolling column the profile asks for. Groups are
// independent, so home-role groups, away-role groups and matchup groups all
// run concurrently; each goroutine writes disjoint indices of its own columns.
func (e *Engine) buildColumns(ctx context.Context, games []models.Game) (map[string][]float64, error) {
	n := len(games)
	p := e.profile

	homeGroups := groupIndices(games, func(g *models.Game) int64 { return g.HomeTeamID })
	awayGroups := groupIndices(games, func(g *models.Game) int64 { return g.AwayTeamID })

	for team, idxs := range homeGroups {
		if err := validateGroupOrder(games, idxs); err != nil {
			return nil, integrityErrorf("home group for team %d: %v", team, err)
		}
	}
	for team, idxs := range awayGroups {
		if err := validateGroupOrder(games, idxs); err != nil {
			return nil, integrityErrorf("away group for team %d: %v", team, err)
		}
	}

	cols := map[string][]float64{}
	need := func(name string) []float64 {
		if !p.Has(name) {
			return nil
		}
		c := newColumn(n)
		cols[name] = c
		return c
	}

	homeAvgPts := need(FeatHomeAvgPts)
	homeWinPct := need(FeatHomeWinPct)
	homeMargin := need(FeatHomeAvgMargin)
	homeMarginStd := need(FeatHomeMarginStd)
	homeRest := need(FeatHomeRestDays)
	awayAvgScored := need(FeatAwayAvgPtsScored)
	awayAvgAllowed := need(FeatAwayAvgPtsAllowed)
	awayMargin := need(FeatAwayAvgMargin)
	awayMarginStd := need(FeatAwayMarginStd)

	var homeNetRtg, awayNetRtg []float64
	if p.NetRating != NetRatingSnapshot {
		homeNetRtg = need(FeatHomeNetRating)
		awayNetRtg = need(FeatAwayNetRating)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, idxs := range homeGroups {
		idxs := idxs
		g.Go(func() error {
			scored := series(games, idxs, func(gm *models.Game) float64 { return float64(*gm.HomeScore) })
			allowed := series(games, idxs, func(gm *models.Game) float64 { return float64(*gm.AwayScore) })
			scatter(homeAvgPts, idxs, laggedRollingMean(scored, p.Windows.AvgPts))
			if homeWinPct != nil {
				wins := series(games, idxs, func(gm *models.Game) float64 { return gm.HomeWin() })
				scatter(homeWinPct, idxs, laggedRollingMean(wins, p.Windows.WinPct))
			}
			if homeMargin != nil || homeMarginStd != nil {
				spread := series(games, idxs, func(gm *models.Game) float64 { return gm.PointSpread() })
				scatter(homeMargin, idxs, laggedRollingMean(spread, p.Windows.Margin))
				scatter(homeMarginStd, idxs, laggedRollingStd(spread, p.Windows.MarginStd))
			}
			scatter(homeNetRtg, idxs, netRatingSeries(p, scored, allowed))
			if homeRest != nil {
				scatter(homeRest, idxs, restDaySeries(games, idxs, p.RestDays))
			}
			return nil
		})
	}

	for _, idxs := range awayGroups {
		idxs := idxs
		g.Go(func() error {
			scored := series(games, idxs, func(gm *models.Game) float64 { return float64(*gm.AwayScore) })
			allowed := series(games, idxs, func(gm *models.Game) float64 { return float64(*gm.HomeScore) })
			scatter(awayAvgScored, idxs, laggedRollingMean(scored, p.Windows.AvgPts))
			scatter(awayAvgAllowed, idxs, laggedRollingMean(allowed, p.Windows.AvgPts))
			if awayMargin != nil || awayMarginStd != nil {
				spread := series(games, idxs, func(gm *models.Game) float64 { return gm.PointSpread() })
				scatter(awayMargin, idxs, laggedRollingMean(spread, p.Windows.Margin))
				scatter(awayMarginStd, idxs, laggedRollingStd(spread, p.Windows.MarginStd))
			}
			scatter(awayNetRtg, idxs, netRatingSeries(p, scored, allowed))
			return nil
		})
	}

	h2hWinCol := need(FeatH2HWinPct)
	h2hSpreadCol := need(FeatH2HAvgSpread)
	h2hNet5 := need(FeatH2HNetRtgLast5)
	h2hNet10 := need(FeatH2HNetRtgLast10)
	h2hNet20 := need(FeatH2HNetRtgLast20)
	if h2hWinCol != nil || h2hSpreadCol != nil || h2hNet5 != nil {
		agg := newH2HAggregator(games)
		g.Go(func() error {
			if h2hWinCol != nil {
				copy(h2hWinCol, agg.rollingMean(games, p.Windows.H2H, h2hWinRate))
			}
			if h2hSpreadCol != nil {
				copy(h2hSpreadCol, agg.rollingMean(games, p.Windows.H2H, h2hSpread))
			}
			min := p.Windows.H2H.MinPeriods
			if h2hNet5 != nil {
				copy(h2hNet5, agg.rollingMean(games, WindowSpec{Window: 5, MinPeriods: min}, h2hSpread))
			}
			if h2hNet10 != nil {
				copy(h2hNet10, agg.rollingMean(games, WindowSpec{Window: 10, MinPeriods: min}, h2hSpread))
			}
			if h2hNet20 != nil {
				copy(h2hNet20, agg.rollingMean(games, WindowSpec{Window: 20, MinPeriods: min}, h2hSpread))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cols, nil
}

// joinSnapshots fills the snapshot-sourced columns. A missing (team, season)
// snapshot leaves NaN, which drops the row when the column is required.
func (e *Engine) joinSnapshots(games []models.Game, ix *SnapshotIndex, cols map[string][]float64) {
	p := e.profile
	type snapCol struct {
		name string
		get  func(s *models.TeamSeasonStats) *float64
	}
	homeCols := []snapCol{
		{FeatHomeOffRating, func(s *models.TeamSeasonStats) *float64 { return s.OffRating }},
		{FeatHomeDefRating, func(s *models.TeamSeasonStats) *float64 { return s.DefRating }},
		{FeatHomePace, func(s *models.TeamSeasonStats) *float64 { return s.Pace }},
		{FeatHomeTSPct, func(s *models.TeamSeasonStats) *float64 { return s.TSPct }},
		{FeatHomeEFGPct, func(s *models.TeamSeasonStats) *float64 { return s.EFGPct }},
		{FeatHomePlusMinus, func(s *models.TeamSeasonStats) *float64 { return s.PlusMinus }},
	}
	awayCols := []snapCol{
		{FeatAwayOffRating, func(s *models.TeamSeasonStats) *float64 { return s.OffRating }},
		{FeatAwayDefRating, func(s *models.TeamSeasonStats) *float64 { return s.DefRating }},
		{FeatAwayPace, func(s *models.TeamSeasonStats) *float64 { return s.Pace }},
		{FeatAwayTSPct, func(s *models.TeamSeasonStats) *float64 { return s.TSPct }},
		{FeatAwayEFGPct, func(s *models.TeamSeasonStats) *float64 { return s.EFGPct }},
		{FeatAwayPlusMinus, func(s *models.TeamSeasonStats) *float64 { return s.PlusMinus }},
	}
	if p.NetRating == NetRatingSnapshot {
		homeCols = append(homeCols, snapCol{FeatHomeNetRating, func(s *models.TeamSeasonStats) *float64 { return s.NetRating }})
		awayCols = append(awayCols, snapCol{FeatAwayNetRating, func(s *models.TeamSeasonStats) *float64 { return s.NetRating }})
	}

	ensure := func(name string) []float64 {
		if !p.Has(name) {
			return nil
		}
		if c, ok := cols[name]; ok {
			return c
		}
		c := newColumn(len(games))
		cols[name] = c
		return c
	}

	for i := range games {
		g := &games[i]
		season := g.EffectiveSeason()
		if snap, ok := ix.Resolve(g.HomeTeamID, season); ok {
			for _, sc := range homeCols {
				if col := ensure(sc.name); col != nil {
					if v := sc.get(snap); v != nil {
						col[i] = *v
					}
				}
			}
		} else {
			for _, sc := range homeCols {
				ensure(sc.name)
			}
		}
		if snap, ok := ix.Resolve(g.AwayTeamID, season); ok {
			for _, sc := range awayCols {
				if col := ensure(sc.name); col != nil {
					if v := sc.get(snap); v != nil {
						col[i] = *v
					}
				}
			}
		} else {
			for _, sc := range awayCols {
				ensure(sc.name)
			}
		}
	}
}

// groupIndices collects row indices per key, preserving the global sort order
// inside each group.
func groupIndices(games []models.Game, key func(g *models.Game) int64) map[int64][]int {
	groups := make(map[int64][]int)
	for i := range games {
		k := key(&games[i])
		groups[k] = append(groups[k], i)
	}
	return groups
}

// validateGroupOrder asserts dates are non-decreasing inside one group. After
// the engine's own sort this holds by construction, but an unsorted or
// mis-grouped input corrupts every downstream average silently, so the
// precondition is checked rather than assumed.
func validateGroupOrder(games []models.Game, idxs []int) error {
	for j := 1; j < len(idxs); j++ {
		if games[idxs[j]].Date.Before(games[idxs[j-1]].Date) {
			return integrityErrorf("games %d and %d out of date order",
				games[idxs[j-1]].ID, games[idxs[j]].ID)
		}
	}
	return nil
}

func series(games []models.Game, idxs []int, value func(g *models.Game) float64) []float64 {
	out := make([]float64, len(idxs))
	for j, idx := range idxs {
		out[j] = value(&games[idx])
	}
	return out
}

// scatter writes a group-local column back to the row-aligned column.
// A nil destination means the profile does not use the feature.
func scatter(dst []float64, idxs []int, vals []float64) {
	if dst == nil {
		return
	}
	for j, idx := range idxs {
		dst[idx] = vals[j]
	}
}

// netRatingSeries computes the profile's rolling net-rating form from a
// group's scored/allowed series. Snapshot-form profiles return nil and take
// the value from the season snapshot instead.
func netRatingSeries(p *Profile, scored, allowed []float64) []float64 {
	switch p.NetRating {
	case NetRatingRatio:
		num := laggedRollingMean(scored, p.Windows.NetRating)
		den := laggedRollingMean(allowed, p.Windows.NetRating)
		out := make([]float64, len(num))
		for i := range out {
			if den[i] == 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = num[i] / den[i]
		}
		return out
	case NetRatingMeanMinusStd:
		mean := laggedRollingMean(scored, p.Windows.NetRating)
		std := laggedRollingStd(scored, p.Windows.NetRating)
		out := make([]float64, len(mean))
		for i := range out {
			out[i] = mean[i] - std[i]
		}
		return out
	case NetRatingDiff:
		sc := laggedRollingMean(scored, p.Windows.NetRating)
		al := laggedRollingMean(allowed, p.Windows.NetRating)
		out := make([]float64, len(sc))
		for i := range out {
			out[i] = sc[i] - al[i]
		}
		return out
	default:
		return nil
	}
}

// TailNetRating is the single-position form of netRatingSeries: the
// profile's net-rating stat over a complete scored/allowed history. The live
// aggregate store uses it so serve-time values match the training table.
func TailNetRating(p *Profile, scored, allowed []float64) float64 {
	switch p.NetRating {
	case NetRatingRatio:
		den := TailMean(allowed, p.Windows.NetRating)
		if den == 0 {
			return math.NaN()
		}
		return TailMean(scored, p.Windows.NetRating) / den
	case NetRatingMeanMinusStd:
		return TailMean(scored, p.Windows.NetRating) - TailStd(scored, p.Windows.NetRating)
	case NetRatingDiff:
		return TailMean(scored, p.Windows.NetRating) - TailMean(allowed, p.Windows.NetRating)
	default:
		return math.NaN()
	}
}

// restDaySeries computes the day gap to the group's previous game, with the
// policy's default for the first game and optional clamping.
func restDaySeries(games []models.Game, idxs []int, policy RestDayPolicy) []float64 {
	out := make([]float64, len(idxs))
	for j := range idxs {
		if j == 0 {
			out[j] = policy.Apply(math.NaN())
			continue
		}
		gap := games[idxs[j]].Date.Sub(games[idxs[j-1]].Date)
		out[j] = policy.Apply(float64(gap / (24 * time.Hour)))
	}
	return out
}
