package logic

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/models"
)

// TestTrainServeConsistency checks the central contract of the system: the
// vector assembled for a matchup "as of now" equals the training row the
// engine would emit if that game were played now. The mock store reconstructs
// live aggregates from the same history using the tail-window helpers, the
// way the production form store does.
func TestTrainServeConsistency(t *testing.T) {
	p, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}

	games := historyForTeam1()
	rows := buildRows(t, p, games, nil)
	trainRow := rowForGame(t, rows, 5)

	// Team 1's prior home games and team 9's prior away games, in order.
	homeScored := []float64{100, 110, 95, 120}
	homeAllowed := []float64{90, 105, 99, 100}
	homeWins := []float64{1, 1, 0, 1}
	awayScored := []float64{90, 112, 100}
	awayAllowed := []float64{100, 108, 96}

	store := &MockFormStore{
		TeamFormFunc: func(ctx context.Context, teamID int64, role Role, prof *Profile) (*models.TeamForm, error) {
			if role == RoleHome {
				if teamID != 1 {
					t.Fatalf("unexpected home team %d", teamID)
				}
				return &models.TeamForm{
					TeamID:    teamID,
					Games:     len(homeScored),
					AvgPts:    TailMean(homeScored, prof.Windows.AvgPts),
					WinPct:    TailMean(homeWins, prof.Windows.WinPct),
					NetRating: TailNetRating(prof, homeScored, homeAllowed),
					AvgMargin: TailMean(diff(homeScored, homeAllowed), prof.Windows.Margin),
				}, nil
			}
			if teamID != 9 {
				t.Fatalf("unexpected away team %d", teamID)
			}
			return &models.TeamForm{
				TeamID:        teamID,
				Games:         len(awayScored),
				AvgPts:        TailMean(awayScored, prof.Windows.AvgPts),
				AvgPtsAllowed: TailMean(awayAllowed, prof.Windows.AvgPts),
				NetRating:     TailNetRating(prof, awayScored, awayAllowed),
			}, nil
		},
	}

	a := NewAssembler(p, store, zap.NewNop())
	vec, err := a.Assemble(context.Background(), models.PredictRequest{
		HomeTeamID:   1,
		AwayTeamID:   9,
		HomeRestDays: 2, // matches the two-day gap before game 5
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	served := vec.Named()
	for _, name := range p.Features {
		trained := trainRow.Values[name]
		if !almostEqual(served[name], trained) {
			t.Errorf("feature %s: training row %v, served vector %v", name, trained, served[name])
		}
	}
}

func diff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
