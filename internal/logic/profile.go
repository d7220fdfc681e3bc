package logic

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Feature names shared between the batch engine and the inference-time
// assembler. The per-profile Features list fixes their order; that order is
// the train/serve contract and must never change within a model version.
const (
	FeatHomeAvgPts          = "home_avg_pts"
	FeatAwayAvgPtsScored    = "away_avg_pts_scored"
	FeatAwayAvgPtsAllowed   = "away_avg_pts_allowed"
	FeatHomeWinPct          = "home_win_pct"
	FeatHomeNetRating       = "home_net_rating"
	FeatAwayNetRating       = "away_net_rating"
	FeatHomeRestDays        = "home_rest_days"
	FeatHomeAvgMargin       = "home_avg_margin"
	FeatAwayAvgMargin       = "away_avg_margin"
	FeatHomeMarginStd       = "home_margin_std"
	FeatAwayMarginStd       = "away_margin_std"
	FeatH2HWinPct           = "h2h_win_pct"
	FeatH2HAvgSpread        = "h2h_avg_spread"
	FeatH2HNetRtgLast5      = "h2h_netrtg_last_5"
	FeatH2HNetRtgLast10     = "h2h_netrtg_last_10"
	FeatH2HNetRtgLast20     = "h2h_netrtg_last_20"
	FeatHomeOffRating       = "home_off_rating"
	FeatAwayOffRating       = "away_off_rating"
	FeatHomeDefRating       = "home_def_rating"
	FeatAwayDefRating       = "away_def_rating"
	FeatHomePace            = "home_pace"
	FeatAwayPace            = "away_pace"
	FeatHomeTSPct           = "home_ts_pct"
	FeatAwayTSPct           = "away_ts_pct"
	FeatHomeEFGPct          = "home_efg_pct"
	FeatAwayEFGPct          = "away_efg_pct"
	FeatHomePlusMinus       = "home_plus_minus"
	FeatAwayPlusMinus       = "away_plus_minus"
	FeatHomeORtgAdjAvgPts   = "home_ortg_adj_avg_pts"
	FeatAwayDRtgAdjPtsAllwd = "away_drtg_adj_pts_allowed"
	FeatHomeNetRtgPlusMinus = "home_net_rating_plusminus"
	FeatAwayNetRtgPlusMinus = "away_net_rating_plusminus"
	FeatORtgMatchupDiff     = "ortg_matchup_diff"
	FeatDRtgMatchupDiff     = "drtg_matchup_diff"
	FeatNetRatingDiff       = "net_rating_diff"
	FeatHomeRestAdj         = "home_rest_adj"
	FeatPaceDiff            = "pace_diff"
	FeatRestAdjustedSpread  = "rest_adjusted_spread"
)

// TargetKind selects the label a profile trains against.
type TargetKind string

const (
	TargetHomeWin     TargetKind = "home_win"
	TargetPointSpread TargetKind = "point_spread"
)

// NetRatingForm selects how the rolling net-rating feature is computed.
// The model versions disagreed on this, so it is profile configuration.
type NetRatingForm string

const (
	// NetRatingRatio: rolling mean points scored / rolling mean points
	// allowed. More stable than a difference over short windows.
	NetRatingRatio NetRatingForm = "ratio"
	// NetRatingMeanMinusStd: rolling mean of points scored minus their
	// rolling std, penalizing volatile offenses.
	NetRatingMeanMinusStd NetRatingForm = "mean_minus_std"
	// NetRatingDiff: rolling mean scored minus rolling mean allowed.
	NetRatingDiff NetRatingForm = "diff"
	// NetRatingSnapshot: taken from the season advanced-stats snapshot
	// rather than computed from the game log.
	NetRatingSnapshot NetRatingForm = "snapshot"
)

// RestDayPolicy controls the rest-days feature. A team's first game in the
// dataset has no predecessor; DefaultDays stands in so the feature is never
// missing for every season opener. Clamp bounds of 0 disable clamping.
type RestDayPolicy struct {
	DefaultDays float64 `json:"default_days"`
	ClampMin    float64 `json:"clamp_min"`
	ClampMax    float64 `json:"clamp_max"`
}

// Apply resolves a raw day gap (NaN when unknown) against the policy.
func (p RestDayPolicy) Apply(days float64) float64 {
	if math.IsNaN(days) {
		days = p.DefaultDays
	}
	if p.ClampMax > 0 {
		if days < p.ClampMin {
			days = p.ClampMin
		}
		if days > p.ClampMax {
			days = p.ClampMax
		}
	}
	return days
}

// LeagueBaselines are league-typical values used to normalize snapshot stats
// in derived features.
type LeagueBaselines struct {
	Pace      float64 `json:"pace"`
	OffRating float64 `json:"off_rating"`
}

// Profile is one feature-set profile: the complete configuration of a model
// version's feature pipeline. Window sizes, defaults, required features and
// the feature order all live here so divergent historical versions
// (10 vs 20 vs 40 vs 82 game windows) reproduce from configuration alone.
type Profile struct {
	Name         string     `json:"name"`
	ModelVersion string     `json:"model_version"`
	Target       TargetKind `json:"target"`

	// Features is the ordered train/serve contract.
	Features []string `json:"features"`
	// Required features must be non-missing or the training row is
	// dropped. Everything else falls back to Defaults.
	Required []string `json:"required"`
	// Defaults are the documented neutral values per feature.
	Defaults map[string]float64 `json:"defaults"`

	Windows struct {
		AvgPts    WindowSpec `json:"avg_pts"`
		WinPct    WindowSpec `json:"win_pct"`
		NetRating WindowSpec `json:"net_rating"`
		Margin    WindowSpec `json:"margin"`
		MarginStd WindowSpec `json:"margin_std"`
		H2H       WindowSpec `json:"h2h"`
	} `json:"windows"`

	NetRating NetRatingForm   `json:"net_rating_form"`
	RestDays  RestDayPolicy   `json:"rest_days"`
	Baselines LeagueBaselines `json:"baselines"`

	// IncludeSeasonTypes limits which games qualify; empty means all.
	IncludeSeasonTypes []string `json:"include_season_types,omitempty"`
}

// Has reports whether the profile's contract includes the named feature.
func (p *Profile) Has(name string) bool {
	for _, f := range p.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Default returns the neutral fallback for a feature. Features without an
// explicit entry default to 0.0 (differentials and adjustments).
func (p *Profile) Default(name string) float64 {
	if v, ok := p.Defaults[name]; ok {
		return v
	}
	return 0.0
}

func (p *Profile) isRequired(name string) bool {
	for _, f := range p.Required {
		if f == name {
			return true
		}
	}
	return false
}

// Validate rejects profiles whose contract cannot be honored.
func (p *Profile) Validate() error {
	if p.Name == "" || p.ModelVersion == "" {
		return fmt.Errorf("profile needs name and model_version")
	}
	if len(p.Features) == 0 {
		return fmt.Errorf("profile %q has no features", p.Name)
	}
	seen := make(map[string]bool, len(p.Features))
	for _, f := range p.Features {
		if seen[f] {
			return fmt.Errorf("profile %q repeats feature %q", p.Name, f)
		}
		seen[f] = true
	}
	for _, f := range p.Required {
		if !seen[f] {
			return fmt.Errorf("profile %q requires %q which is not in its feature list", p.Name, f)
		}
	}
	if p.Target != TargetHomeWin && p.Target != TargetPointSpread {
		return fmt.Errorf("profile %q has unknown target %q", p.Name, p.Target)
	}
	return nil
}

// Derive fills in the cross-team and adjustment features computable from the
// base values already present. Both the batch engine and the inference-time
// assembler call this, which is what keeps the two numerically identical.
// Any NaN operand yields a NaN result; default-filling happens afterwards.
func (p *Profile) Derive(v map[string]float64) {
	set := func(name string, fn func() float64) {
		if p.Has(name) {
			v[name] = fn()
		}
	}
	set(FeatHomeORtgAdjAvgPts, func() float64 {
		return v[FeatHomeAvgPts] * (v[FeatHomeOffRating] / p.Baselines.OffRating)
	})
	// Expected home scoring against the away defense; anchored on home
	// scoring output, matching the training tables.
	set(FeatAwayDRtgAdjPtsAllwd, func() float64 {
		return v[FeatHomeAvgPts] * (v[FeatAwayDefRating] / p.Baselines.OffRating)
	})
	set(FeatHomeNetRtgPlusMinus, func() float64 {
		return v[FeatHomeNetRating] + v[FeatHomePlusMinus]/100
	})
	set(FeatAwayNetRtgPlusMinus, func() float64 {
		return v[FeatAwayNetRating] + v[FeatAwayPlusMinus]/100
	})
	set(FeatORtgMatchupDiff, func() float64 {
		return v[FeatHomeOffRating] - v[FeatAwayDefRating]
	})
	set(FeatDRtgMatchupDiff, func() float64 {
		return v[FeatAwayOffRating] - v[FeatHomeDefRating]
	})
	set(FeatNetRatingDiff, func() float64 {
		return v[FeatHomeNetRating] - v[FeatAwayNetRating]
	})
	set(FeatPaceDiff, func() float64 {
		return v[FeatHomePace] - v[FeatAwayPace]
	})
	set(FeatHomeRestAdj, func() float64 {
		return v[FeatHomeRestDays] * (v[FeatHomePace] / p.Baselines.Pace)
	})
	set(FeatRestAdjustedSpread, func() float64 {
		return v[FeatHomeAvgMargin] * (1 + (v[FeatHomeRestDays]-3)*0.02)
	})
}

// FillDefaults replaces NaN values of non-required features with the
// documented neutral defaults. Required features are left NaN so the
// completeness predicate can drop the row.
func (p *Profile) FillDefaults(v map[string]float64) {
	for _, name := range p.Features {
		if p.isRequired(name) {
			continue
		}
		if val, ok := v[name]; !ok || math.IsNaN(val) {
			v[name] = p.Default(name)
		}
	}
}

// snapshotSourced lists the features joined from season snapshots rather than
// rolled from the game log.
var snapshotSourced = map[string]bool{
	FeatHomeOffRating: true, FeatAwayOffRating: true,
	FeatHomeDefRating: true, FeatAwayDefRating: true,
	FeatHomePace: true, FeatAwayPace: true,
	FeatHomeTSPct: true, FeatAwayTSPct: true,
	FeatHomeEFGPct: true, FeatAwayEFGPct: true,
	FeatHomePlusMinus: true, FeatAwayPlusMinus: true,
}

// requiresSnapshots reports whether any required feature can only come from a
// season snapshot.
func (p *Profile) requiresSnapshots() bool {
	for _, name := range p.Required {
		if snapshotSourced[name] {
			return true
		}
		if p.NetRating == NetRatingSnapshot && (name == FeatHomeNetRating || name == FeatAwayNetRating) {
			return true
		}
	}
	return false
}

// Complete reports whether every required feature is present and non-NaN.
func (p *Profile) Complete(v map[string]float64) bool {
	for _, name := range p.Required {
		val, ok := v[name]
		if !ok || math.IsNaN(val) {
			return false
		}
	}
	return true
}

// LoadProfileFile reads a profile from a JSON file, for reproducing model
// versions whose configuration is not compiled in.
func LoadProfileFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LookupProfile resolves a built-in profile by name.
func LookupProfile(name string) (*Profile, error) {
	for _, p := range BuiltinProfiles() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown feature profile %q", name)
}

// defaultLeagueValues are the documented neutral fallbacks shared by the
// built-in profiles: league-average scoring and ratings for a team nobody
// has history on.
func defaultLeagueValues() map[string]float64 {
	return map[string]float64{
		FeatHomeAvgPts:          110.0,
		FeatAwayAvgPtsScored:    110.0,
		FeatAwayAvgPtsAllowed:   110.0,
		FeatHomeWinPct:          0.5,
		FeatHomeNetRating:       0.0,
		FeatAwayNetRating:       0.0,
		FeatHomeOffRating:       110.0,
		FeatAwayOffRating:       110.0,
		FeatHomeDefRating:       110.0,
		FeatAwayDefRating:       110.0,
		FeatHomePace:            100.0,
		FeatAwayPace:            100.0,
		FeatHomeTSPct:           0.56,
		FeatAwayTSPct:           0.52,
		FeatHomeEFGPct:          0.52,
		FeatAwayEFGPct:          0.52,
		FeatHomePlusMinus:       0.0,
		FeatAwayPlusMinus:       0.0,
		FeatHomeORtgAdjAvgPts:   110.0,
		FeatAwayDRtgAdjPtsAllwd: 110.0,
		FeatH2HWinPct:           0.5,
		FeatH2HAvgSpread:        0.0,
		FeatHomeAvgMargin:       0.0,
		FeatAwayAvgMargin:       0.0,
		FeatHomeMarginStd:       0.0,
		FeatAwayMarginStd:       0.0,
	}
}

// BuiltinProfiles returns the feature-set profiles corresponding to the
// shipped model versions.
func BuiltinProfiles() []*Profile {
	basic := &Profile{
		Name:         "basic",
		ModelVersion: "win-v1",
		Target:       TargetHomeWin,
		Features: []string{
			FeatHomeAvgPts,
			FeatAwayAvgPtsScored,
			FeatAwayAvgPtsAllowed,
			FeatHomeWinPct,
			FeatHomeNetRating,
			FeatHomeRestDays,
		},
		Required:  []string{FeatHomeAvgPts, FeatAwayAvgPtsAllowed},
		Defaults:  defaultLeagueValues(),
		NetRating: NetRatingRatio,
		RestDays:  RestDayPolicy{DefaultDays: 7, ClampMin: 1, ClampMax: 10},
		Baselines: LeagueBaselines{Pace: 98.8, OffRating: 114.5},
		IncludeSeasonTypes: []string{
			"", // legacy rows ingested before season_type existed
			"Regular Season",
			"Playoffs",
		},
	}
	basic.Windows.AvgPts = WindowSpec{Window: 10, MinPeriods: 3}
	basic.Windows.WinPct = WindowSpec{Window: 82, MinPeriods: 6}
	basic.Windows.NetRating = WindowSpec{Window: 10, MinPeriods: 5}

	windowed20 := &Profile{
		Name:         "windowed-20",
		ModelVersion: "win-v2-short",
		Target:       TargetHomeWin,
		Features: []string{
			FeatHomeAvgPts,
			FeatAwayAvgPtsAllowed,
			FeatHomeWinPct,
			FeatHomeNetRating,
			FeatAwayNetRating,
			FeatH2HWinPct,
			FeatHomeRestDays,
		},
		Required:  []string{FeatHomeAvgPts, FeatAwayAvgPtsAllowed},
		Defaults:  defaultLeagueValues(),
		NetRating: NetRatingMeanMinusStd,
		RestDays:  RestDayPolicy{DefaultDays: 7},
		Baselines: LeagueBaselines{Pace: 98.8, OffRating: 114.5},
	}
	windowed20.Windows.AvgPts = WindowSpec{Window: 10, MinPeriods: 3}
	windowed20.Windows.WinPct = WindowSpec{Window: 20, MinPeriods: 5}
	windowed20.Windows.NetRating = WindowSpec{Window: 10, MinPeriods: 3}
	windowed20.Windows.H2H = WindowSpec{Window: 3, MinPeriods: 3}

	windowed40 := &Profile{
		Name:         "windowed-40-h2h",
		ModelVersion: "win-v2-long",
		Target:       TargetHomeWin,
		Features: []string{
			FeatHomeAvgPts,
			FeatAwayAvgPtsScored,
			FeatAwayAvgPtsAllowed,
			FeatHomeWinPct,
			FeatHomeAvgMargin,
			FeatAwayAvgMargin,
			FeatH2HWinPct,
			FeatH2HAvgSpread,
			FeatHomeRestDays,
		},
		Required:  []string{FeatHomeAvgPts, FeatAwayAvgPtsAllowed},
		Defaults:  defaultLeagueValues(),
		NetRating: NetRatingDiff,
		RestDays:  RestDayPolicy{DefaultDays: 7},
		Baselines: LeagueBaselines{Pace: 98.8, OffRating: 114.5},
	}
	windowed40.Windows.AvgPts = WindowSpec{Window: 10, MinPeriods: 3}
	windowed40.Windows.WinPct = WindowSpec{Window: 40, MinPeriods: 5}
	windowed40.Windows.Margin = WindowSpec{Window: 40, MinPeriods: 5}
	windowed40.Windows.H2H = WindowSpec{Window: 5, MinPeriods: 2}

	advanced := &Profile{
		Name:         "advanced-with-snapshots",
		ModelVersion: "win-v3-advanced",
		Target:       TargetHomeWin,
		Features: []string{
			FeatHomeAvgPts,
			FeatAwayAvgPtsAllowed,
			FeatHomeOffRating,
			FeatAwayDefRating,
			FeatHomeNetRating,
			FeatAwayNetRating,
			FeatHomePace,
			FeatAwayPace,
			FeatHomeTSPct,
			FeatAwayTSPct,
			FeatHomeEFGPct,
			FeatAwayEFGPct,
			FeatHomePlusMinus,
			FeatAwayPlusMinus,
			FeatHomeORtgAdjAvgPts,
			FeatAwayDRtgAdjPtsAllwd,
			FeatHomeNetRtgPlusMinus,
			FeatAwayNetRtgPlusMinus,
			FeatORtgMatchupDiff,
			FeatDRtgMatchupDiff,
			FeatNetRatingDiff,
			FeatHomeRestDays,
			FeatHomeRestAdj,
			FeatH2HNetRtgLast5,
			FeatH2HNetRtgLast10,
			FeatH2HNetRtgLast20,
		},
		Required: []string{
			FeatHomeAvgPts,
			FeatAwayAvgPtsAllowed,
			FeatHomeOffRating,
			FeatAwayDefRating,
		},
		Defaults:  defaultLeagueValues(),
		NetRating: NetRatingSnapshot,
		RestDays:  RestDayPolicy{DefaultDays: 7},
		Baselines: LeagueBaselines{Pace: 98.8, OffRating: 114.5},
	}
	advanced.Windows.AvgPts = WindowSpec{Window: 10, MinPeriods: 3}
	advanced.Windows.H2H = WindowSpec{Window: 5, MinPeriods: 2}

	spread := &Profile{
		Name:         "spread-specific",
		ModelVersion: "spread-v1",
		Target:       TargetPointSpread,
		Features: []string{
			FeatHomeAvgMargin,
			FeatAwayAvgMargin,
			FeatHomeNetRating,
			FeatHomeMarginStd,
			FeatAwayMarginStd,
			FeatPaceDiff,
			FeatHomePace,
			FeatAwayPace,
			FeatRestAdjustedSpread,
			FeatH2HAvgSpread,
			FeatHomeAvgPts,
			FeatAwayAvgPtsAllowed,
			FeatHomeRestDays,
		},
		Required: []string{
			FeatHomeAvgPts,
			FeatAwayAvgPtsAllowed,
			FeatHomeAvgMargin,
		},
		Defaults:  defaultLeagueValues(),
		NetRating: NetRatingDiff,
		RestDays:  RestDayPolicy{DefaultDays: 7},
		Baselines: LeagueBaselines{Pace: 98.8, OffRating: 114.5},
	}
	spread.Windows.AvgPts = WindowSpec{Window: 10, MinPeriods: 3}
	spread.Windows.NetRating = WindowSpec{Window: 10, MinPeriods: 10}
	spread.Windows.Margin = WindowSpec{Window: 10, MinPeriods: 3}
	spread.Windows.MarginStd = WindowSpec{Window: 20, MinPeriods: 5}
	spread.Windows.H2H = WindowSpec{Window: 5, MinPeriods: 2}

	return []*Profile{basic, windowed20, windowed40, advanced, spread}
}
