package logic

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/courtsight/predictor-api/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Role distinguishes which side of the court a team's aggregate describes.
// Home and away form are separate series; they are never blended.
type Role string

const (
	RoleHome Role = "home"
	RoleAway Role = "away"
)

// FormStore serves the live "as of now" aggregates the assembler reads at
// prediction time. Implementations return (nil, nil) when a team or matchup
// simply has no qualifying history; errors are reserved for infrastructure
// failures. Either way the assembler degrades to profile defaults.
type FormStore interface {
	TeamForm(ctx context.Context, teamID int64, role Role, p *Profile) (*models.TeamForm, error)
	MatchupForm(ctx context.Context, homeTeamID, awayTeamID int64, p *Profile) (*models.MatchupForm, error)
	SeasonStats(ctx context.Context, teamID int64, season int) (*models.TeamSeasonStats, error)
}

// PredictionService scores one upcoming matchup.
type PredictionService interface {
	Predict(ctx context.Context, req models.PredictRequest) (*models.PredictResponse, error)
}
