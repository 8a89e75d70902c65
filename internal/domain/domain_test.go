package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestThresholdPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  ThresholdPolicy
		wantErr bool
	}{
		{"Default", DefaultThresholdPolicy(), false},
		{"Bounds", ThresholdPolicy{Review: 0, Block: 1}, false},
		{"Equal", ThresholdPolicy{Review: 0.5, Block: 0.5}, true},
		{"Inverted", ThresholdPolicy{Review: 0.99, Block: 0.9}, true},
		{"Negative", ThresholdPolicy{Review: -0.1, Block: 0.9}, true},
		{"AboveOne", ThresholdPolicy{Review: 0.5, Block: 1.5}, true},
		{"NaN", ThresholdPolicy{Review: math.NaN(), Block: 0.9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected ConfigurationError, got %T", err)
				}
			}
		})
	}
}

func TestDecisionSeverity(t *testing.T) {
	if !(DecisionAllow.Severity() < DecisionReview.Severity() && DecisionReview.Severity() < DecisionBlock.Severity()) {
		t.Error("expected ALLOW < REVIEW < BLOCK")
	}
	if _, ok := ParseDecision("MAYBE"); ok {
		t.Error("expected unknown label to be rejected")
	}
	if d, ok := ParseDecision("REVIEW"); !ok || d != DecisionReview {
		t.Errorf("expected REVIEW, got %s", d)
	}
}

func TestContractErrorMessage(t *testing.T) {
	err := &ContractError{Missing: []string{"B"}, Unexpected: []string{"C"}}
	msg := err.Error()
	if !strings.Contains(msg, "Missing features: {'B'}") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "Unexpected features: {'C'}") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestFeatureVectorMap(t *testing.T) {
	v := FeatureVector{Names: []string{"A", "B"}, Values: []float64{1, 2}}
	m := v.Map()
	if m["A"] != 1 || m["B"] != 2 || len(m) != 2 {
		t.Errorf("unexpected map: %v", m)
	}
}
