package logic

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/models"
)

func winArtifactFor(p *Profile) *ModelArtifact {
	return &ModelArtifact{
		ModelVersion: "win-test",
		Profile:      p.Name,
		Kind:         ModelKindLogistic,
		FeatureNames: p.Features,
		Weights:      make([]float64, len(p.Features)),
		Intercept:    0.4,
	}
}

func TestPredictHappyPath(t *testing.T) {
	p, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}
	assembler := NewAssembler(p, &MockFormStore{}, zap.NewNop())
	scorer := NewScorer(winArtifactFor(p), zap.NewNop())
	svc := NewPredictionService(assembler, scorer, nil, nil, zap.NewNop())

	resp, err := svc.Predict(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 2,
	})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if resp.Fallback {
		t.Error("expected a real prediction, got fallback")
	}
	if resp.ModelVersion != "win-test" {
		t.Errorf("expected model version win-test, got %q", resp.ModelVersion)
	}
	// All weights zero: sigmoid(0.4).
	if resp.Probability <= 0.5 || resp.Probability >= 1.0 {
		t.Errorf("probability out of expected range: %v", resp.Probability)
	}
	if len(resp.Features) != len(p.Features) {
		t.Errorf("expected %d echoed features, got %d", len(p.Features), len(resp.Features))
	}
	if resp.Spread != nil {
		t.Error("no spread model deployed, spread should be absent")
	}
}

func TestPredictFallbackWithoutModel(t *testing.T) {
	p, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}
	assembler := NewAssembler(p, &MockFormStore{}, zap.NewNop())
	svc := NewPredictionService(assembler, NewScorer(nil, zap.NewNop()), nil, nil, zap.NewNop())

	resp, err := svc.Predict(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 2,
	})
	if err != nil {
		t.Fatalf("fallback must be a successful response: %v", err)
	}
	if !resp.Fallback {
		t.Error("expected fallback flag")
	}
	if resp.Probability != FallbackProbability {
		t.Errorf("expected fallback probability %v, got %v", FallbackProbability, resp.Probability)
	}
	if resp.Error == "" {
		t.Error("expected an error message explaining the fallback")
	}
}

func TestPredictInvalidInputPropagates(t *testing.T) {
	p, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}
	assembler := NewAssembler(p, &MockFormStore{}, zap.NewNop())
	svc := NewPredictionService(assembler, NewScorer(winArtifactFor(p), zap.NewNop()), nil, nil, zap.NewNop())

	_, err = svc.Predict(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 1, HomeRestDays: 2,
	})
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
}

func TestPredictWithSpreadModel(t *testing.T) {
	winProfile, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}
	spreadProfile, err := LookupProfile("spread-specific")
	if err != nil {
		t.Fatal(err)
	}

	spreadArtifact := &ModelArtifact{
		ModelVersion: "spread-test",
		Profile:      spreadProfile.Name,
		Kind:         ModelKindLinear,
		FeatureNames: spreadProfile.Features,
		Weights:      make([]float64, len(spreadProfile.Features)),
		Intercept:    3.5,
	}

	store := &MockFormStore{}
	svc := NewPredictionService(
		NewAssembler(winProfile, store, zap.NewNop()),
		NewScorer(winArtifactFor(winProfile), zap.NewNop()),
		NewAssembler(spreadProfile, store, zap.NewNop()),
		NewScorer(spreadArtifact, zap.NewNop()),
		zap.NewNop(),
	)

	resp, err := svc.Predict(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 2,
	})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if resp.Spread == nil {
		t.Fatal("expected spread output")
	}
	if !almostEqual(*resp.Spread, 3.5) {
		t.Errorf("expected spread 3.5, got %v", *resp.Spread)
	}
}

func TestPredictSpreadFailureKeepsWinOutput(t *testing.T) {
	winProfile, err := LookupProfile("basic")
	if err != nil {
		t.Fatal(err)
	}
	spreadProfile, err := LookupProfile("spread-specific")
	if err != nil {
		t.Fatal(err)
	}

	store := &MockFormStore{}
	svc := NewPredictionService(
		NewAssembler(winProfile, store, zap.NewNop()),
		NewScorer(winArtifactFor(winProfile), zap.NewNop()),
		NewAssembler(spreadProfile, store, zap.NewNop()),
		NewScorer(nil, zap.NewNop()), // spread model missing
		zap.NewNop(),
	)

	resp, err := svc.Predict(context.Background(), models.PredictRequest{
		HomeTeamID: 1, AwayTeamID: 2, HomeRestDays: 2,
	})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if resp.Fallback {
		t.Error("win prediction should not be marked fallback")
	}
	if resp.Spread != nil {
		t.Error("failed spread model should omit the field")
	}
}
