package logic

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"
)

// Model artifact kinds.
const (
	ModelKindLogistic = "logistic"
	ModelKindLinear   = "linear"
)

// FallbackProbability is returned with a ModelUnavailableError whenever the
// win scorer cannot produce a real prediction. Callers must check the error;
// 0.5 alone is indistinguishable from a genuine coin-flip call.
const FallbackProbability = 0.5

// FallbackSpread is the linear-model equivalent.
const FallbackSpread = 0.0

// ModelArtifact is a fitted coefficient model exported by the external
// training step. FeatureNames records the exact training column order; the
// scorer refuses to apply the model to a vector in any other order.
type ModelArtifact struct {
	ModelVersion string    `json:"model_version"`
	Profile      string    `json:"profile"`
	Kind         string    `json:"kind"`
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Intercept    float64   `json:"intercept"`
}

// LoadModelArtifact reads and validates a model artifact file.
func LoadModelArtifact(path string) (*ModelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, modelUnavailablef("read model artifact: %v", err)
	}
	var a ModelArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, modelUnavailablef("decode model artifact %s: %v", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks internal consistency of the artifact.
func (a *ModelArtifact) Validate() error {
	if a.Kind != ModelKindLogistic && a.Kind != ModelKindLinear {
		return modelUnavailablef("unknown model kind %q", a.Kind)
	}
	if len(a.FeatureNames) == 0 {
		return modelUnavailablef("model %s has no features", a.ModelVersion)
	}
	if len(a.FeatureNames) != len(a.Weights) {
		return modelUnavailablef("model %s has %d features but %d weights",
			a.ModelVersion, len(a.FeatureNames), len(a.Weights))
	}
	return nil
}

// Scorer applies a fitted model to an assembled feature vector.
type Scorer struct {
	artifact *ModelArtifact
	logger   *zap.SugaredLogger
}

// NewScorer wraps a loaded artifact. A nil artifact is allowed and yields
// fallback-only scoring, so serving can start before a model is deployed.
func NewScorer(artifact *ModelArtifact, logger *zap.Logger) *Scorer {
	return &Scorer{artifact: artifact, logger: logger.Sugar()}
}

// Version reports the loaded model version, or empty when none is loaded.
func (s *Scorer) Version() string {
	if s.artifact == nil {
		return ""
	}
	return s.artifact.ModelVersion
}

// Kind reports the loaded model kind.
func (s *Scorer) Kind() string {
	if s.artifact == nil {
		return ""
	}
	return s.artifact.Kind
}

// Score applies the model. On any failure it returns the documented fallback
// value together with a ModelUnavailableError so the caller can flag the
// response; it never returns a plausible-looking value silently.
func (s *Scorer) Score(vec *AssembledVector) (float64, error) {
	if s.artifact == nil {
		return FallbackProbability, modelUnavailablef("no model loaded")
	}
	fallback := FallbackProbability
	if s.artifact.Kind == ModelKindLinear {
		fallback = FallbackSpread
	}

	// The single most safety-critical check in the system: a silently
	// reordered vector scores without error and predicts garbage.
	if len(vec.Names) != len(s.artifact.FeatureNames) {
		return fallback, modelUnavailablef("model %s expects %d features, vector has %d",
			s.artifact.ModelVersion, len(s.artifact.FeatureNames), len(vec.Names))
	}
	for i, name := range s.artifact.FeatureNames {
		if vec.Names[i] != name {
			return fallback, modelUnavailablef("model %s feature %d is %q, vector has %q",
				s.artifact.ModelVersion, i, name, vec.Names[i])
		}
	}

	z := s.artifact.Intercept
	for i, w := range s.artifact.Weights {
		v := vec.Values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fallback, modelUnavailablef("feature %q is not finite", vec.Names[i])
		}
		z += w * v
	}

	if s.artifact.Kind == ModelKindLinear {
		return z, nil
	}
	return clampProbability(sigmoid(z)), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func clampProbability(p float64) float64 {
	return math.Min(1.0, math.Max(0.0, p))
}

// describe is used in logs when loading models at startup.
func (a *ModelArtifact) describe() string {
	return fmt.Sprintf("%s (%s, %d features)", a.ModelVersion, a.Kind, len(a.FeatureNames))
}
