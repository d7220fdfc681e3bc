package logic

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/models"
)

// MockFormStore implements FormStore for testing.
type MockFormStore struct {
	TeamFormFunc    func(ctx context.Context, teamID int64, role Role, p *Profile) (*models.TeamForm, error)
	MatchupFormFunc func(ctx context.Context, homeTeamID, awayTeamID int64, p *Profile) (*models.MatchupForm, error)
	SeasonStatsFunc func(ctx context.Context, teamID int64, season int) (*models.TeamSeasonStats, error)
}

func (m *MockFormStore) TeamForm(ctx context.Context, teamID int64, role Role, p *Profile) (*models.TeamForm, error) {
	if m.TeamFormFunc != nil {
		return m.TeamFormFunc(ctx, teamID, role, p)
	}
	return nil, nil
}

func (m *MockFormStore) MatchupForm(ctx context.Context, homeTeamID, awayTeamID int64, p *Profile) (*models.MatchupForm, error) {
	if m.MatchupFormFunc != nil {
		return m.MatchupFormFunc(ctx, homeTeamID, awayTeamID, p)
	}
	return nil, nil
}

func (m *MockFormStore) SeasonStats(ctx context.Context, teamID int64, season int) (*models.TeamSeasonStats, error) {
	if m.SeasonStatsFunc != nil {
		return m.SeasonStatsFunc(ctx, teamID, season)
	}
	return nil, nil
}

func newTestAssembler(t *testing.T, profileName string, store FormStore) *Assembler {
	t.Helper()
	p, err := LookupProfile(profileName)
	if err != nil {
		t.Fatal(err)
	}
	return NewAssembler(p, store, zap.NewNop())
}

func TestAssembleInvalidInput(t *testing.T) {
	a := newTestAssembler(t, "basic", &MockFormStore{})

	tests := []struct {
		name string
		req  models.PredictRequest
	}{
		{"same team", models.PredictRequest{HomeTeamID: 1, AwayTeamID: 1, HomeRestDays: 2}},
		{"negative rest", models.PredictRequest{HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: -1}},
		{"rest too high", models.PredictRequest{HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Assemble(context.Background(), tt.req)
			var invalid *InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
		})
	}
}

func TestAssembleDefaultsForUnknownTeams(t *testing.T) {
	// Empty store: no history anywhere. Assembly must still succeed with
	// every feature at its neutral default.
	a := newTestAssembler(t, "basic", &MockFormStore{})

	vec, err := a.Assemble(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 2,
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	got := vec.Named()
	if !almostEqual(got[FeatHomeAvgPts], 110.0) {
		t.Errorf("expected default avg pts 110.0, got %v", got[FeatHomeAvgPts])
	}
	if !almostEqual(got[FeatHomeWinPct], 0.5) {
		t.Errorf("expected default win pct 0.5, got %v", got[FeatHomeWinPct])
	}
	// Rest days came from the request, not a default.
	if !almostEqual(got[FeatHomeRestDays], 2.0) {
		t.Errorf("expected rest days 2.0, got %v", got[FeatHomeRestDays])
	}
	for _, name := range vec.Defaulted {
		if name == FeatHomeRestDays {
			t.Error("rest days should not be marked defaulted")
		}
	}
	if len(vec.Defaulted) == 0 {
		t.Error("expected defaulted features to be recorded")
	}
}

func TestAssembleStoreErrorDegradesToDefaults(t *testing.T) {
	store := &MockFormStore{
		TeamFormFunc: func(ctx context.Context, teamID int64, role Role, p *Profile) (*models.TeamForm, error) {
			return nil, errors.New("connection refused")
		},
	}
	a := newTestAssembler(t, "basic", store)

	vec, err := a.Assemble(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 3,
	})
	if err != nil {
		t.Fatalf("store errors must not fail assembly: %v", err)
	}
	if !almostEqual(vec.Named()[FeatHomeAvgPts], 110.0) {
		t.Errorf("expected default after store error, got %v", vec.Named()[FeatHomeAvgPts])
	}
}

func TestAssembleOrderMatchesProfile(t *testing.T) {
	a := newTestAssembler(t, "advanced-with-snapshots", &MockFormStore{})

	vec, err := a.Assemble(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 1,
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(vec.Names) != len(a.profile.Features) || len(vec.Values) != len(vec.Names) {
		t.Fatalf("vector shape %d/%d does not match profile %d",
			len(vec.Names), len(vec.Values), len(a.profile.Features))
	}
	for i, name := range a.profile.Features {
		if vec.Names[i] != name {
			t.Errorf("position %d: expected %q, got %q", i, name, vec.Names[i])
		}
		if math.IsNaN(vec.Values[i]) {
			t.Errorf("feature %q left NaN after assembly", name)
		}
	}
}

func TestAssembleUsesStoreValues(t *testing.T) {
	off, def, pace := 118.0, 108.0, 101.0
	store := &MockFormStore{
		TeamFormFunc: func(ctx context.Context, teamID int64, role Role, p *Profile) (*models.TeamForm, error) {
			if role == RoleHome {
				return &models.TeamForm{TeamID: teamID, Games: 20, AvgPts: 115.5, WinPct: 0.7}, nil
			}
			return &models.TeamForm{TeamID: teamID, Games: 20, AvgPts: 104, AvgPtsAllowed: 112.5}, nil
		},
		SeasonStatsFunc: func(ctx context.Context, teamID int64, season int) (*models.TeamSeasonStats, error) {
			return &models.TeamSeasonStats{TeamID: teamID, Season: season, OffRating: &off, DefRating: &def, Pace: &pace}, nil
		},
	}
	a := newTestAssembler(t, "advanced-with-snapshots", store)

	vec, err := a.Assemble(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 2,
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	got := vec.Named()
	if !almostEqual(got[FeatHomeAvgPts], 115.5) {
		t.Errorf("home_avg_pts: expected 115.5, got %v", got[FeatHomeAvgPts])
	}
	if !almostEqual(got[FeatAwayAvgPtsAllowed], 112.5) {
		t.Errorf("away_avg_pts_allowed: expected 112.5, got %v", got[FeatAwayAvgPtsAllowed])
	}
	if !almostEqual(got[FeatHomeOffRating], 118.0) {
		t.Errorf("home_off_rating: expected 118.0, got %v", got[FeatHomeOffRating])
	}
	// Derived from the store-provided values, not defaults.
	if !almostEqual(got[FeatHomeORtgAdjAvgPts], 115.5*(118.0/114.5)) {
		t.Errorf("ortg-adjusted pts wrong: got %v", got[FeatHomeORtgAdjAvgPts])
	}
	if !almostEqual(got[FeatHomeRestAdj], 2*(101.0/98.8)) {
		t.Errorf("rest adj wrong: got %v", got[FeatHomeRestAdj])
	}
}

func TestCurrentSeason(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2024-10-01", 2024},
		{"2024-09-30", 2023},
		{"2025-01-15", 2024},
		{"2024-06-15", 2023},
	}
	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := currentSeason(d); got != tt.want {
			t.Errorf("currentSeason(%s) = %d, want %d", tt.date, got, tt.want)
		}
	}
}
