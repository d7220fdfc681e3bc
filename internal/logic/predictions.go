package logic

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/courtsight/predictor-api/internal/models"
)

// predictionService assembles feature vectors and scores them with the win
// model, plus the spread model when one is deployed. Assembly and scoring are
// stateless per call; concurrent requests share nothing mutable.
type predictionService struct {
	winAssembler    *Assembler
	winScorer       *Scorer
	spreadAssembler *Assembler
	spreadScorer    *Scorer
	logger          *zap.SugaredLogger
}

// NewPredictionService wires the win pair and an optional spread pair
// (both spreadAssembler and spreadScorer nil to disable spread output).
func NewPredictionService(winAssembler *Assembler, winScorer *Scorer, spreadAssembler *Assembler, spreadScorer *Scorer, logger *zap.Logger) PredictionService {
	sugar := logger.Sugar()
	if winScorer.artifact != nil {
		sugar.Infow("Win model loaded", "model", winScorer.artifact.describe())
	}
	if spreadScorer != nil && spreadScorer.artifact != nil {
		sugar.Infow("Spread model loaded", "model", spreadScorer.artifact.describe())
	}
	return &predictionService{
		winAssembler:    winAssembler,
		winScorer:       winScorer,
		spreadAssembler: spreadAssembler,
		spreadScorer:    spreadScorer,
		logger:          sugar,
	}
}

// Predict returns a prediction for one matchup. Invalid input surfaces as an
// InvalidInputError; scorer failures degrade to the documented fallback with
// the response flagged, never an opaque 500.
func (s *predictionService) Predict(ctx context.Context, req models.PredictRequest) (*models.PredictResponse, error) {
	vec, err := s.winAssembler.Assemble(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &models.PredictResponse{
		ModelVersion: vec.ModelVersion,
		Features:     vec.Named(),
	}
	if v := s.winScorer.Version(); v != "" {
		resp.ModelVersion = v
	}

	prob, err := s.winScorer.Score(vec)
	resp.Probability = prob
	if err != nil {
		var unavailable *ModelUnavailableError
		if !errors.As(err, &unavailable) {
			return nil, err
		}
		s.logger.Warnw("Win model fallback", "error", err,
			"home", req.HomeTeamID, "away", req.AwayTeamID)
		resp.Fallback = true
		resp.Error = unavailable.Error()
		return resp, nil
	}

	if s.spreadAssembler != nil && s.spreadScorer != nil {
		spreadVec, err := s.spreadAssembler.Assemble(ctx, req)
		if err == nil {
			if spread, err := s.spreadScorer.Score(spreadVec); err == nil {
				resp.Spread = &spread
			} else {
				// Win probability stands on its own; a spread
				// failure just omits the field.
				s.logger.Warnw("Spread model fallback", "error", err)
			}
		}
	}

	return resp, nil
}
