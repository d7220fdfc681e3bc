package logic

import (
	"math"
	"testing"

	"github.com/courtsight/predictor-api/internal/models"
)

func TestH2HOrderedPairsAreDistinct(t *testing.T) {
	// Team 1 hosting team 2 (twice), and team 2 hosting team 1 in between.
	// The reversed fixture must not contribute to the 1-vs-2 window.
	games := []models.Game{
		fg(1, 0, 1, 2, 100, 90), // 1 hosts 2: home win
		fg(2, 3, 2, 1, 120, 80), // 2 hosts 1: separate matchup
		fg(3, 6, 1, 2, 95, 99),  // 1 hosts 2 again
	}

	agg := newH2HAggregator(games)
	col := agg.rollingMean(games, WindowSpec{Window: 5, MinPeriods: 1}, h2hWinRate)

	if !math.IsNaN(col[0]) {
		t.Errorf("first meeting should have no history, got %v", col[0])
	}
	if !math.IsNaN(col[1]) {
		t.Errorf("reversed pair is a distinct matchup with no history, got %v", col[1])
	}
	// Game 3 sees only game 1 (home win), not the reversed blowout.
	if !almostEqual(col[2], 1.0) {
		t.Errorf("expected h2h win rate 1.0 from the single prior meeting, got %v", col[2])
	}
}

func TestH2HExcludesCurrentGame(t *testing.T) {
	games := []models.Game{
		fg(1, 0, 1, 2, 100, 90),
		fg(2, 3, 1, 2, 80, 110),
	}

	agg := newH2HAggregator(games)
	col := agg.rollingMean(games, WindowSpec{Window: 5, MinPeriods: 1}, h2hSpread)

	// Game 2's window holds only game 1's +10 spread; its own -30 is unseen.
	if !almostEqual(col[1], 10.0) {
		t.Errorf("expected prior spread 10.0, got %v", col[1])
	}
}

func TestH2HMinPeriods(t *testing.T) {
	games := []models.Game{
		fg(1, 0, 1, 2, 100, 90),
		fg(2, 3, 1, 2, 105, 95),
		fg(3, 6, 1, 2, 99, 101),
	}

	agg := newH2HAggregator(games)
	col := agg.rollingMean(games, WindowSpec{Window: 3, MinPeriods: 2}, h2hWinRate)

	if !math.IsNaN(col[1]) {
		t.Errorf("one prior meeting is below min periods, got %v", col[1])
	}
	if !almostEqual(col[2], 1.0) {
		t.Errorf("expected win rate 1.0 over two prior meetings, got %v", col[2])
	}
}

func TestH2HWindowSlides(t *testing.T) {
	// Four meetings; a window of 2 at the last game must only see games 2-3.
	games := []models.Game{
		fg(1, 0, 1, 2, 100, 90), // +10
		fg(2, 3, 1, 2, 90, 100), // -10
		fg(3, 6, 1, 2, 98, 94),  // +4
		fg(4, 9, 1, 2, 101, 99),
	}

	agg := newH2HAggregator(games)
	col := agg.rollingMean(games, WindowSpec{Window: 2, MinPeriods: 1}, h2hSpread)

	if !almostEqual(col[3], -3.0) {
		t.Errorf("expected mean of last two prior spreads -3.0, got %v", col[3])
	}
}
