// Package model loads the precomputed fraud model and turns feature vectors into probabilities.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
)

// Scorer converts an ordered feature vector into a fraud probability in [0,1].
// Implementations are immutable after construction and safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, vec domain.FeatureVector) (float64, error)
	Kind() string
}

// Artifact kinds.
const (
	KindLogistic = "logistic"
	KindCEL      = "cel"
)

// Artifact is the on-disk model description.
type Artifact struct {
	Type string `json:"type"`

	// Logistic regression
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
	Means        map[string]float64 `json:"means,omitempty"`
	Scales       map[string]float64 `json:"scales,omitempty"`

	// CEL expression
	Expression string `json:"expression,omitempty"`
}

// Load reads a model artifact and builds a scorer bound to schema.
func Load(path string, schema *features.Schema) (Scorer, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "model_path", Reason: "cannot read model artifact", Err: err}
	}

	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, &domain.ConfigurationError{Field: "model_path", Reason: "model artifact is not valid JSON", Err: err}
	}

	return FromArtifact(&art, schema)
}

// FromArtifact builds a scorer from an already decoded artifact.
func FromArtifact(art *Artifact, schema *features.Schema) (Scorer, error) {
	if schema == nil {
		return nil, &domain.ConfigurationError{Field: "schema", Reason: "schema is required to bind the model"}
	}

	switch art.Type {
	case KindLogistic, "":
		return NewLogistic(art, schema)
	case KindCEL:
		return NewCEL(art.Expression, schema)
	default:
		return nil, &domain.ConfigurationError{Field: "model_path", Reason: fmt.Sprintf("unsupported model type %q", art.Type)}
	}
}

// checkProbability rejects outputs outside [0,1] for every scorer.
func checkProbability(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &domain.ScoringFailure{Reason: fmt.Sprintf("model produced %v, outside [0,1]", p)}
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Func adapts a plain function into a Scorer. The output is still range-checked.
type Func func(ctx context.Context, vec domain.FeatureVector) (float64, error)

// Score implements Scorer.
func (f Func) Score(ctx context.Context, vec domain.FeatureVector) (float64, error) {
	p, err := f(ctx, vec)
	if err != nil {
		var sf *domain.ScoringFailure
		if errors.As(err, &sf) {
			return 0, err
		}
		return 0, &domain.ScoringFailure{Reason: "model error", Err: err}
	}
	return checkProbability(p)
}

// Kind implements Scorer.
func (f Func) Kind() string {
	return "func"
}
