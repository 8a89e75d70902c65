package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
)

// Logistic is a standardized logistic regression bound to a feature schema.
type Logistic struct {
	intercept float64
	weights   []float64
	means     []float64
	scales    []float64
}

// NewLogistic orders the artifact coefficients by schema and validates they cover it exactly.
func NewLogistic(art *Artifact, schema *features.Schema) (*Logistic, error) {
	names := schema.Names()

	var missing, extra []string
	for _, name := range names {
		if _, ok := art.Coefficients[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range art.Coefficients {
		if !schema.Has(name) {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(extra)
		return nil, &domain.ConfigurationError{
			Field:  "model_path",
			Reason: fmt.Sprintf("coefficients do not match feature list (missing %v, extra %v)", missing, extra),
		}
	}

	m := &Logistic{
		intercept: art.Intercept,
		weights:   make([]float64, len(names)),
		means:     make([]float64, len(names)),
		scales:    make([]float64, len(names)),
	}
	for i, name := range names {
		m.weights[i] = art.Coefficients[name]
		m.means[i] = art.Means[name]
		m.scales[i] = 1
		if s, ok := art.Scales[name]; ok {
			if s == 0 {
				return nil, &domain.ConfigurationError{Field: "model_path", Reason: fmt.Sprintf("zero scale for feature %q", name)}
			}
			m.scales[i] = s
		}
	}

	return m, nil
}

// Score implements Scorer.
func (m *Logistic) Score(_ context.Context, vec domain.FeatureVector) (float64, error) {
	if vec.Len() != len(m.weights) {
		return 0, &domain.ScoringFailure{
			Reason: fmt.Sprintf("expected %d features, got %d", len(m.weights), vec.Len()),
		}
	}

	z := m.intercept
	for i, x := range vec.Values {
		z += m.weights[i] * (x - m.means[i]) / m.scales[i]
	}

	return checkProbability(sigmoid(z))
}

// Kind implements Scorer.
func (m *Logistic) Kind() string {
	return KindLogistic
}
