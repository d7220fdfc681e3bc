package logic

import (
	"sort"

	"github.com/courtsight/predictor-api/internal/models"
)

// SnapshotIndex resolves (team, season) to an advanced-stats snapshot with
// as-of semantics: the exact season when present, otherwise the most recent
// earlier season. Snapshots are season-granular, so every game in a season
// sees the same values regardless of when it was played. That coarsening is
// kept for compatibility with the historical training tables.
type SnapshotIndex struct {
	byTeam map[int64][]models.TeamSeasonStats
}

// NewSnapshotIndex builds the index. Input order does not matter.
func NewSnapshotIndex(snaps []models.TeamSeasonStats) *SnapshotIndex {
	byTeam := make(map[int64][]models.TeamSeasonStats)
	for _, s := range snaps {
		byTeam[s.TeamID] = append(byTeam[s.TeamID], s)
	}
	for id := range byTeam {
		rows := byTeam[id]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Season < rows[j].Season })
	}
	return &SnapshotIndex{byTeam: byTeam}
}

// Resolve returns the snapshot for the team as of the given season, or false
// when the team has no snapshot at or before it.
func (ix *SnapshotIndex) Resolve(teamID int64, season int) (*models.TeamSeasonStats, bool) {
	rows := ix.byTeam[teamID]
	// First row with Season > season; the one before it is the as-of match.
	i := sort.Search(len(rows), func(k int) bool { return rows[k].Season > season })
	if i == 0 {
		return nil, false
	}
	return &rows[i-1], true
}
