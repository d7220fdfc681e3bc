package logic

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinProfilesValidate(t *testing.T) {
	for _, p := range BuiltinProfiles() {
		if err := p.Validate(); err != nil {
			t.Errorf("builtin profile %q invalid: %v", p.Name, err)
		}
	}
}

func TestProfileValidate(t *testing.T) {
	valid := func() *Profile {
		return &Profile{
			Name:         "test",
			ModelVersion: "test-v1",
			Target:       TargetHomeWin,
			Features:     []string{FeatHomeAvgPts, FeatHomeWinPct},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{"valid", func(p *Profile) {}, false},
		{"missing name", func(p *Profile) { p.Name = "" }, true},
		{"missing model version", func(p *Profile) { p.ModelVersion = "" }, true},
		{"no features", func(p *Profile) { p.Features = nil }, true},
		{"duplicate feature", func(p *Profile) { p.Features = append(p.Features, FeatHomeAvgPts) }, true},
		{"required outside contract", func(p *Profile) { p.Required = []string{FeatH2HWinPct} }, true},
		{"unknown target", func(p *Profile) { p.Target = "moneyline" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRestDayPolicyApply(t *testing.T) {
	clamped := RestDayPolicy{DefaultDays: 7, ClampMin: 1, ClampMax: 10}
	unclamped := RestDayPolicy{DefaultDays: 7}

	tests := []struct {
		name   string
		policy RestDayPolicy
		in     float64
		want   float64
	}{
		{"default for unknown", clamped, math.NaN(), 7},
		{"clamp low", clamped, 0, 1},
		{"clamp high", clamped, 25, 10},
		{"within bounds", clamped, 3, 3},
		{"unclamped passes through", unclamped, 25, 25},
		{"unclamped zero", unclamped, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Apply(tt.in); !almostEqual(got, tt.want) {
				t.Errorf("Apply(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveMatchupFeatures(t *testing.T) {
	p, err := LookupProfile("advanced-with-snapshots")
	if err != nil {
		t.Fatal(err)
	}

	v := map[string]float64{
		FeatHomeAvgPts:    110,
		FeatHomeOffRating: 114.5,
		FeatAwayDefRating: 110,
		FeatAwayOffRating: 112,
		FeatHomeDefRating: 108,
		FeatHomeNetRating: 3,
		FeatAwayNetRating: -1,
		FeatHomePlusMinus: 200,
		FeatAwayPlusMinus: -50,
		FeatHomePace:      101,
		FeatAwayPace:      98,
		FeatHomeRestDays:  2,
	}
	p.Derive(v)

	checks := map[string]float64{
		FeatHomeORtgAdjAvgPts:   110 * (114.5 / 114.5),
		FeatAwayDRtgAdjPtsAllwd: 110 * (110 / 114.5),
		FeatHomeNetRtgPlusMinus: 3 + 200.0/100,
		FeatAwayNetRtgPlusMinus: -1 + -50.0/100,
		FeatORtgMatchupDiff:     114.5 - 110,
		FeatDRtgMatchupDiff:     112 - 108,
		FeatNetRatingDiff:       3 - (-1),
		FeatHomeRestAdj:         2 * (101 / 98.8),
	}
	for name, want := range checks {
		if got := v[name]; !almostEqual(got, want) {
			t.Errorf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestDeriveRestAdjustedSpread(t *testing.T) {
	p, err := LookupProfile("spread-specific")
	if err != nil {
		t.Fatal(err)
	}

	v := map[string]float64{
		FeatHomeAvgMargin: 5,
		FeatHomeRestDays:  4,
		FeatHomePace:      100,
		FeatAwayPace:      96,
	}
	p.Derive(v)

	// margin * (1 + (rest-3) * 0.02)
	if got := v[FeatRestAdjustedSpread]; !almostEqual(got, 5*1.02) {
		t.Errorf("rest_adjusted_spread: expected %v, got %v", 5*1.02, got)
	}
	if got := v[FeatPaceDiff]; !almostEqual(got, 4) {
		t.Errorf("pace_diff: expected 4, got %v", got)
	}
}

func TestDerivePropagatesNaN(t *testing.T) {
	p, err := LookupProfile("spread-specific")
	if err != nil {
		t.Fatal(err)
	}

	v := map[string]float64{
		FeatHomeAvgMargin: math.NaN(),
		FeatHomeRestDays:  4,
	}
	p.Derive(v)
	if !math.IsNaN(v[FeatRestAdjustedSpread]) {
		t.Errorf("NaN operand should yield NaN, got %v", v[FeatRestAdjustedSpread])
	}
}

func TestFillDefaultsSkipsRequired(t *testing.T) {
	p, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}

	v := map[string]float64{
		FeatHomeAvgPts: math.NaN(), // required
		FeatHomeWinPct: math.NaN(), // optional
	}
	p.FillDefaults(v)

	if !math.IsNaN(v[FeatHomeAvgPts]) {
		t.Error("required feature must stay NaN so the row can be dropped")
	}
	if !almostEqual(v[FeatHomeWinPct], 0.5) {
		t.Errorf("optional feature should default to 0.5, got %v", v[FeatHomeWinPct])
	}
	if p.Complete(v) {
		t.Error("row with NaN required feature should be incomplete")
	}
}

func TestLoadProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	content := `{
		"name": "custom",
		"model_version": "custom-v1",
		"target": "home_win",
		"features": ["home_avg_pts", "home_rest_days"],
		"windows": {"avg_pts": {"window": 15, "min_periods": 4}},
		"net_rating_form": "diff",
		"rest_days": {"default_days": 5}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfileFile(path)
	if err != nil {
		t.Fatalf("LoadProfileFile failed: %v", err)
	}
	if p.Windows.AvgPts.Window != 15 || p.Windows.AvgPts.MinPeriods != 4 {
		t.Errorf("window not decoded: %+v", p.Windows.AvgPts)
	}
	if p.RestDays.DefaultDays != 5 {
		t.Errorf("rest policy not decoded: %+v", p.RestDays)
	}

	badPath := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badPath, []byte(`{"name": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfileFile(badPath); err == nil {
		t.Error("expected validation error for incomplete profile")
	}
}

func TestLookupProfileUnknown(t *testing.T) {
	if _, err := LookupProfile("nope"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
