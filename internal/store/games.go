// Package store is the read-only adapter over the persisted game history and
// advanced-stats snapshots, plus the live aggregate reads the assembler uses
// at prediction time. Writes belong to the external ingest and stats-fetch
// jobs; nothing in this package mutates the source tables.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/logic"
	"github.com/courtsight/predictor-api/internal/models"
)

// GameStore loads full history for batch feature builds.
type GameStore struct {
	db     logic.PgPool
	logger *zap.SugaredLogger
}

func NewGameStore(db logic.PgPool, logger *zap.Logger) *GameStore {
	return &GameStore{db: db, logger: logger.Sugar()}
}

// ListGames returns all games, optionally restricted to the given seasons,
// ordered by date then id. The id tiebreak preserves insertion order for
// same-day games, which the engine's sort relies on.
func (s *GameStore) ListGames(ctx context.Context, seasons []int) ([]models.Game, error) {
	query := `
		SELECT id, date, season, COALESCE(season_type, ''), home_team_id, away_team_id, home_score, away_score
		FROM games
	`
	args := []any{}
	if len(seasons) > 0 {
		query += ` WHERE season = ANY($1)`
		args = append(args, seasons)
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Date, &g.Season, &g.SeasonType,
			&g.HomeTeamID, &g.AwayTeamID, &g.HomeScore, &g.AwayScore); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list games rows: %w", err)
	}
	s.logger.Debugw("Loaded games", "count", len(games), "seasons", seasons)
	return games, nil
}

// ListSeasonStats returns every advanced-stats snapshot.
func (s *GameStore) ListSeasonStats(ctx context.Context) ([]models.TeamSeasonStats, error) {
	rows, err := s.db.Query(ctx, `
		SELECT team_id, season, off_rating, def_rating, net_rating, pace,
		       ts_pct, efg_pct, plus_minus, win_pct
		FROM team_advanced_stats
		ORDER BY team_id, season
	`)
	if err != nil {
		return nil, fmt.Errorf("list season stats: %w", err)
	}
	defer rows.Close()

	var snaps []models.TeamSeasonStats
	for rows.Next() {
		var t models.TeamSeasonStats
		if err := rows.Scan(&t.TeamID, &t.Season, &t.OffRating, &t.DefRating,
			&t.NetRating, &t.Pace, &t.TSPct, &t.EFGPct, &t.PlusMinus, &t.WinPct); err != nil {
			return nil, fmt.Errorf("scan season stats: %w", err)
		}
		snaps = append(snaps, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list season stats rows: %w", err)
	}
	return snaps, nil
}
