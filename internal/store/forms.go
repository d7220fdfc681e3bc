package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/logic"
	"github.com/courtsight/predictor-api/internal/models"
)

// RedisCache is the slice of the redis client the form store needs.
type RedisCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// LiveFormStore implements logic.FormStore over Postgres with a short-TTL
// Redis cache in front. Aggregates are computed with the same tail-window
// helpers the batch engine rolls with, so a vector assembled "as of now"
// matches what the training table would contain for a game played now.
type LiveFormStore struct {
	db     logic.PgPool
	cache  RedisCache
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewLiveFormStore builds the store. cache may be nil to disable caching.
func NewLiveFormStore(db logic.PgPool, cache RedisCache, ttl time.Duration, logger *zap.Logger) *LiveFormStore {
	return &LiveFormStore{db: db, cache: cache, ttl: ttl, logger: logger.Sugar()}
}

// maxWindow is the number of recent games fetched per form query; every
// built-in profile's largest window (82, a full season) fits.
const maxWindow = 82

type gameLine struct {
	scored  float64
	allowed float64
	win     float64
	spread  float64
}

// TeamForm computes the current rolling aggregates for one team in one role.
// Teams with no qualifying history return (nil, nil); stats below their
// min-periods fall back to the profile's neutral default so the result stays
// JSON-encodable for the cache.
func (s *LiveFormStore) TeamForm(ctx context.Context, teamID int64, role logic.Role, p *logic.Profile) (*models.TeamForm, error) {
	cacheKey := fmt.Sprintf("form:%s:%s:%d", p.Name, role, teamID)
	var form models.TeamForm
	if s.cacheGet(ctx, cacheKey, &form) {
		return &form, nil
	}

	teamCol := "home_team_id"
	if role == logic.RoleAway {
		teamCol = "away_team_id"
	}
	// Most recent games first so LIMIT keeps the tail of the history,
	// reversed below into chronological order before aggregating.
	query := fmt.Sprintf(`
		SELECT home_score, away_score
		FROM games
		WHERE %s = $1
		  AND home_score IS NOT NULL AND away_score IS NOT NULL
		  AND COALESCE(season_type, '') <> 'Preseason'
		ORDER BY date DESC, id DESC
		LIMIT $2
	`, teamCol)

	rows, err := s.db.Query(ctx, query, teamID, maxWindow)
	if err != nil {
		return nil, fmt.Errorf("team form query: %w", err)
	}
	defer rows.Close()

	var lines []gameLine
	for rows.Next() {
		var home, away float64
		if err := rows.Scan(&home, &away); err != nil {
			return nil, fmt.Errorf("scan team form: %w", err)
		}
		l := gameLine{spread: home - away}
		if home > away {
			l.win = 1
		}
		if role == logic.RoleHome {
			l.scored, l.allowed = home, away
		} else {
			l.scored, l.allowed = away, home
			l.win = 1 - l.win
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("team form rows: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	reverse(lines)

	scored := make([]float64, len(lines))
	allowed := make([]float64, len(lines))
	wins := make([]float64, len(lines))
	spreads := make([]float64, len(lines))
	for i, l := range lines {
		scored[i], allowed[i], wins[i], spreads[i] = l.scored, l.allowed, l.win, l.spread
	}

	form = models.TeamForm{TeamID: teamID, Games: len(lines)}
	if role == logic.RoleHome {
		form.AvgPts = orDefault(logic.TailMean(scored, p.Windows.AvgPts), p, logic.FeatHomeAvgPts)
		form.AvgPtsAllowed = orDefault(logic.TailMean(allowed, p.Windows.AvgPts), p, logic.FeatAwayAvgPtsAllowed)
		form.WinPct = orDefault(logic.TailMean(wins, p.Windows.WinPct), p, logic.FeatHomeWinPct)
		form.NetRating = orDefault(logic.TailNetRating(p, scored, allowed), p, logic.FeatHomeNetRating)
		form.AvgMargin = orDefault(logic.TailMean(spreads, p.Windows.Margin), p, logic.FeatHomeAvgMargin)
		form.MarginStd = orDefault(logic.TailStd(spreads, p.Windows.MarginStd), p, logic.FeatHomeMarginStd)
	} else {
		form.AvgPts = orDefault(logic.TailMean(scored, p.Windows.AvgPts), p, logic.FeatAwayAvgPtsScored)
		form.AvgPtsAllowed = orDefault(logic.TailMean(allowed, p.Windows.AvgPts), p, logic.FeatAwayAvgPtsAllowed)
		form.WinPct = orDefault(logic.TailMean(wins, p.Windows.WinPct), p, logic.FeatHomeWinPct)
		form.NetRating = orDefault(logic.TailNetRating(p, scored, allowed), p, logic.FeatAwayNetRating)
		form.AvgMargin = orDefault(logic.TailMean(spreads, p.Windows.Margin), p, logic.FeatAwayAvgMargin)
		form.MarginStd = orDefault(logic.TailStd(spreads, p.Windows.MarginStd), p, logic.FeatAwayMarginStd)
	}

	s.cacheSet(ctx, cacheKey, &form)
	return &form, nil
}

// MatchupForm computes the live head-to-head aggregate for the exact ordered
// pair. Pairs that never met return (nil, nil).
func (s *LiveFormStore) MatchupForm(ctx context.Context, homeTeamID, awayTeamID int64, p *logic.Profile) (*models.MatchupForm, error) {
	cacheKey := fmt.Sprintf("h2h:%s:%d:%d", p.Name, homeTeamID, awayTeamID)
	var m models.MatchupForm
	if s.cacheGet(ctx, cacheKey, &m) {
		return &m, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT home_score, away_score
		FROM games
		WHERE home_team_id = $1 AND away_team_id = $2
		  AND home_score IS NOT NULL AND away_score IS NOT NULL
		  AND COALESCE(season_type, '') <> 'Preseason'
		ORDER BY date DESC, id DESC
		LIMIT $3
	`, homeTeamID, awayTeamID, maxWindow)
	if err != nil {
		return nil, fmt.Errorf("matchup form query: %w", err)
	}
	defer rows.Close()

	var wins, spreads []float64
	for rows.Next() {
		var home, away float64
		if err := rows.Scan(&home, &away); err != nil {
			return nil, fmt.Errorf("scan matchup form: %w", err)
		}
		w := 0.0
		if home > away {
			w = 1.0
		}
		wins = append(wins, w)
		spreads = append(spreads, home-away)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matchup form rows: %w", err)
	}
	if len(wins) == 0 {
		return nil, nil
	}
	reverse(wins)
	reverse(spreads)

	minMeetings := p.Windows.H2H.MinPeriods
	m = models.MatchupForm{
		HomeTeamID:   homeTeamID,
		AwayTeamID:   awayTeamID,
		Meetings:     len(wins),
		WinPct:       orDefault(logic.TailMean(wins, p.Windows.H2H), p, logic.FeatH2HWinPct),
		AvgSpread:    orDefault(logic.TailMean(spreads, p.Windows.H2H), p, logic.FeatH2HAvgSpread),
		NetRtgLast5:  orDefault(logic.TailMean(spreads, logic.WindowSpec{Window: 5, MinPeriods: minMeetings}), p, logic.FeatH2HNetRtgLast5),
		NetRtgLast10: orDefault(logic.TailMean(spreads, logic.WindowSpec{Window: 10, MinPeriods: minMeetings}), p, logic.FeatH2HNetRtgLast10),
		NetRtgLast20: orDefault(logic.TailMean(spreads, logic.WindowSpec{Window: 20, MinPeriods: minMeetings}), p, logic.FeatH2HNetRtgLast20),
	}

	s.cacheSet(ctx, cacheKey, &m)
	return &m, nil
}

// SeasonStats resolves the advanced-stats snapshot as of the given season
// (exact season, else the most recent earlier one). Absent snapshots return
// (nil, nil).
func (s *LiveFormStore) SeasonStats(ctx context.Context, teamID int64, season int) (*models.TeamSeasonStats, error) {
	var t models.TeamSeasonStats
	err := s.db.QueryRow(ctx, `
		SELECT team_id, season, off_rating, def_rating, net_rating, pace,
		       ts_pct, efg_pct, plus_minus, win_pct
		FROM team_advanced_stats
		WHERE team_id = $1 AND season <= $2
		ORDER BY season DESC
		LIMIT 1
	`, teamID, season).Scan(&t.TeamID, &t.Season, &t.OffRating, &t.DefRating,
		&t.NetRating, &t.Pace, &t.TSPct, &t.EFGPct, &t.PlusMinus, &t.WinPct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("season stats query: %w", err)
	}
	return &t, nil
}

func (s *LiveFormStore) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warnw("Corrupt cache entry dropped", "key", key, "error", err)
		return false
	}
	return true
}

func (s *LiveFormStore) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warnw("Cache write failed", "key", key, "error", err)
	}
}

func orDefault(v float64, p *logic.Profile, feature string) float64 {
	if math.IsNaN(v) {
		return p.Default(feature)
	}
	return v
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
