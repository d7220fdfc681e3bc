package logic

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/models"
)

// AssembledVector is one inference-time feature vector. Names carries the
// profile's exact training-time order; Values is position-aligned with it.
// Defaulted lists features that fell back to their neutral value so callers
// can tell a history-backed prediction from a mostly-default one.
type AssembledVector struct {
	ModelVersion string
	Names        []string
	Values       []float64
	Defaulted    []string
}

// Named returns the vector as a feature-name map, for response echoes.
func (v *AssembledVector) Named() map[string]float64 {
	out := make(map[string]float64, len(v.Names))
	for i, name := range v.Names {
		out[name] = v.Values[i]
	}
	return out
}

// Assembler reconstructs, at prediction time, a feature vector with exactly
// the named dimensions and order of one profile's training table, pulling
// current aggregates instead of historical rows. Missing aggregates degrade
// to the profile's documented defaults; assembly never fails on sparse
// history, only on invalid input.
type Assembler struct {
	profile *Profile
	store   FormStore
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewAssembler wires an assembler to a live aggregate store.
func NewAssembler(profile *Profile, store FormStore, logger *zap.Logger) *Assembler {
	return &Assembler{
		profile: profile,
		store:   store,
		logger:  logger.Sugar(),
		now:     time.Now,
	}
}

// Assemble validates the request and produces the ordered vector.
func (a *Assembler) Assemble(ctx context.Context, req models.PredictRequest) (*AssembledVector, error) {
	if req.HomeTeamID == req.AwayTeamID {
		return nil, invalidInputf("home and away teams cannot be the same")
	}
	if req.HomeRestDays < 0 || req.HomeRestDays > 7 {
		return nil, invalidInputf("rest days must be between 0 and 7, got %d", req.HomeRestDays)
	}

	p := a.profile
	values := make(map[string]float64, len(p.Features))
	for _, name := range p.Features {
		values[name] = math.NaN()
	}
	values[FeatHomeRestDays] = p.RestDays.Apply(float64(req.HomeRestDays))

	a.applyTeamForm(ctx, req.HomeTeamID, RoleHome, values)
	a.applyTeamForm(ctx, req.AwayTeamID, RoleAway, values)
	a.applyMatchup(ctx, req.HomeTeamID, req.AwayTeamID, values)
	a.applySnapshots(ctx, req.HomeTeamID, req.AwayTeamID, values)

	p.Derive(values)

	vec := &AssembledVector{
		ModelVersion: p.ModelVersion,
		Names:        p.Features,
		Values:       make([]float64, len(p.Features)),
	}
	for i, name := range p.Features {
		v := values[name]
		if math.IsNaN(v) {
			// Unlike training, inference defaults every feature; a
			// request must never fail because a team is new or a
			// matchup has no history.
			v = p.Default(name)
			vec.Defaulted = append(vec.Defaulted, name)
		}
		vec.Values[i] = v
	}
	return vec, nil
}

func (a *Assembler) applyTeamForm(ctx context.Context, teamID int64, role Role, values map[string]float64) {
	form, err := a.store.TeamForm(ctx, teamID, role, a.profile)
	if err != nil {
		a.logger.Warnw("Team form unavailable, using defaults", "team", teamID, "role", role, "error", err)
		return
	}
	if form == nil {
		return
	}
	if role == RoleHome {
		setIfHas(a.profile, values, FeatHomeAvgPts, form.AvgPts)
		setIfHas(a.profile, values, FeatHomeWinPct, form.WinPct)
		setIfHas(a.profile, values, FeatHomeAvgMargin, form.AvgMargin)
		setIfHas(a.profile, values, FeatHomeMarginStd, form.MarginStd)
		if a.profile.NetRating != NetRatingSnapshot {
			setIfHas(a.profile, values, FeatHomeNetRating, form.NetRating)
		}
		return
	}
	setIfHas(a.profile, values, FeatAwayAvgPtsScored, form.AvgPts)
	setIfHas(a.profile, values, FeatAwayAvgPtsAllowed, form.AvgPtsAllowed)
	setIfHas(a.profile, values, FeatAwayAvgMargin, form.AvgMargin)
	setIfHas(a.profile, values, FeatAwayMarginStd, form.MarginStd)
	if a.profile.NetRating != NetRatingSnapshot {
		setIfHas(a.profile, values, FeatAwayNetRating, form.NetRating)
	}
}

func (a *Assembler) applyMatchup(ctx context.Context, homeID, awayID int64, values map[string]float64) {
	p := a.profile
	if !p.Has(FeatH2HWinPct) && !p.Has(FeatH2HAvgSpread) &&
		!p.Has(FeatH2HNetRtgLast5) && !p.Has(FeatH2HNetRtgLast10) && !p.Has(FeatH2HNetRtgLast20) {
		return
	}
	m, err := a.store.MatchupForm(ctx, homeID, awayID, p)
	if err != nil {
		a.logger.Warnw("Matchup form unavailable, using defaults", "home", homeID, "away", awayID, "error", err)
		return
	}
	if m == nil {
		return
	}
	setIfHas(p, values, FeatH2HWinPct, m.WinPct)
	setIfHas(p, values, FeatH2HAvgSpread, m.AvgSpread)
	setIfHas(p, values, FeatH2HNetRtgLast5, m.NetRtgLast5)
	setIfHas(p, values, FeatH2HNetRtgLast10, m.NetRtgLast10)
	setIfHas(p, values, FeatH2HNetRtgLast20, m.NetRtgLast20)
}

func (a *Assembler) applySnapshots(ctx context.Context, homeID, awayID int64, values map[string]float64) {
	p := a.profile
	season := currentSeason(a.now())

	if snap, err := a.store.SeasonStats(ctx, homeID, season); err != nil {
		a.logger.Warnw("Home snapshot unavailable, using defaults", "team", homeID, "error", err)
	} else if snap != nil {
		setOptional(p, values, FeatHomeOffRating, snap.OffRating)
		setOptional(p, values, FeatHomeDefRating, snap.DefRating)
		setOptional(p, values, FeatHomePace, snap.Pace)
		setOptional(p, values, FeatHomeTSPct, snap.TSPct)
		setOptional(p, values, FeatHomeEFGPct, snap.EFGPct)
		setOptional(p, values, FeatHomePlusMinus, snap.PlusMinus)
		if p.NetRating == NetRatingSnapshot {
			setOptional(p, values, FeatHomeNetRating, snap.NetRating)
		}
	}
	if snap, err := a.store.SeasonStats(ctx, awayID, season); err != nil {
		a.logger.Warnw("Away snapshot unavailable, using defaults", "team", awayID, "error", err)
	} else if snap != nil {
		setOptional(p, values, FeatAwayOffRating, snap.OffRating)
		setOptional(p, values, FeatAwayDefRating, snap.DefRating)
		setOptional(p, values, FeatAwayPace, snap.Pace)
		setOptional(p, values, FeatAwayTSPct, snap.TSPct)
		setOptional(p, values, FeatAwayEFGPct, snap.EFGPct)
		setOptional(p, values, FeatAwayPlusMinus, snap.PlusMinus)
		if p.NetRating == NetRatingSnapshot {
			setOptional(p, values, FeatAwayNetRating, snap.NetRating)
		}
	}
}

func setIfHas(p *Profile, values map[string]float64, name string, v float64) {
	if p.Has(name) {
		values[name] = v
	}
}

func setOptional(p *Profile, values map[string]float64, name string, v *float64) {
	if p.Has(name) && v != nil {
		values[name] = *v
	}
}

// currentSeason applies the same season labeling rule the engine uses:
// October onward starts a new season labeled by its start year.
func currentSeason(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year()
	}
	return t.Year() - 1
}
