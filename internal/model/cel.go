package model

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
)

// CEL scores a vector with a compiled CEL expression over the `features` map.
//
// Example: sigmoid(-6.0 + 0.002 * features["Amount"] + 1.3 * features["V14"])
type CEL struct {
	expression string
	program    cel.Program
	size       int
}

// NewCEL compiles expression once; it must evaluate to a double.
func NewCEL(expression string, schema *features.Schema) (*CEL, error) {
	if expression == "" {
		return nil, &domain.ConfigurationError{Field: "model_path", Reason: "cel model requires an expression"}
	}

	env, err := cel.NewEnv(
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Function("sigmoid",
			cel.Overload("sigmoid_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					d, ok := v.(types.Double)
					if !ok {
						return types.MaybeNoSuchOverloadErr(v)
					}
					return types.Double(sigmoid(float64(d)))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ConfigurationError{Field: "model_path", Reason: "failed to compile model expression", Err: issues.Err()}
	}

	if ast.OutputType() != cel.DoubleType {
		return nil, &domain.ConfigurationError{
			Field:  "model_path",
			Reason: fmt.Sprintf("model expression must return double, got %s", ast.OutputType()),
		}
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "model_path", Reason: "failed to create model program", Err: err}
	}

	return &CEL{
		expression: expression,
		program:    program,
		size:       schema.Len(),
	}, nil
}

// Score implements Scorer.
func (m *CEL) Score(_ context.Context, vec domain.FeatureVector) (float64, error) {
	if vec.Len() != m.size || len(vec.Names) != m.size {
		return 0, &domain.ScoringFailure{
			Reason: fmt.Sprintf("expected %d features, got %d", m.size, vec.Len()),
		}
	}

	out, _, err := m.program.Eval(map[string]any{
		"features": vec.Map(),
	})
	if err != nil {
		return 0, &domain.ScoringFailure{Reason: "expression evaluation failed", Err: err}
	}

	d, ok := out.(types.Double)
	if !ok {
		return 0, &domain.ScoringFailure{Reason: fmt.Sprintf("expression returned %s", out.Type())}
	}

	return checkProbability(float64(d))
}

// Kind implements Scorer.
func (m *CEL) Kind() string {
	return KindCEL
}
