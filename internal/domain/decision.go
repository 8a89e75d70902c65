package domain

import (
	"math"
	"time"
)

// Decision is the operator-facing outcome of scoring a transaction.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionReview Decision = "REVIEW"
	DecisionBlock  Decision = "BLOCK"
)

// Decisions lists every decision in ascending severity.
var Decisions = []Decision{DecisionAllow, DecisionReview, DecisionBlock}

// Severity orders decisions ALLOW < REVIEW < BLOCK.
// Unknown values sort below ALLOW.
func (d Decision) Severity() int {
	switch d {
	case DecisionAllow:
		return 1
	case DecisionReview:
		return 2
	case DecisionBlock:
		return 3
	default:
		return 0
	}
}

// Valid reports whether d is one of the three known decisions.
func (d Decision) Valid() bool {
	return d.Severity() > 0
}

// ParseDecision converts a persisted label back into a Decision.
func ParseDecision(s string) (Decision, bool) {
	d := Decision(s)
	return d, d.Valid()
}

// ThresholdPolicy holds the two ordered cutoffs separating ALLOW, REVIEW and BLOCK.
type ThresholdPolicy struct {
	Review float64 `json:"review_threshold" yaml:"review_threshold"`
	Block  float64 `json:"block_threshold" yaml:"block_threshold"`
}

// DefaultThresholdPolicy returns the production cutoffs.
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		Review: 0.90,
		Block:  0.993,
	}
}

// Validate enforces 0 <= review < block <= 1.
func (p ThresholdPolicy) Validate() error {
	if p.Review < 0 || p.Review > 1 || p.Block < 0 || p.Block > 1 {
		return &ConfigurationError{
			Field:  "thresholds",
			Reason: "review_threshold and block_threshold must be within [0,1]",
		}
	}
	// Written as a negation so NaN thresholds are rejected too.
	if !(p.Review < p.Block) {
		return &ConfigurationError{
			Field:  "thresholds",
			Reason: "review_threshold must be strictly less than block_threshold",
		}
	}
	return nil
}

// FeatureVector is a set of feature values in schema order.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Len returns the number of features in the vector.
func (v FeatureVector) Len() int {
	return len(v.Values)
}

// Map returns the vector as a name to value mapping.
func (v FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.Names))
	for i, name := range v.Names {
		if i < len(v.Values) {
			m[name] = v.Values[i]
		}
	}
	return m
}

// AuditRecord is one row of the append-only audit log.
type AuditRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Probability float64   `json:"fraud_probability"`
	Decision    Decision  `json:"decision"`
}

// DecisionEvent is published on the event bus after a decision is logged.
type DecisionEvent struct {
	ID      string      `json:"id"`
	TraceID string      `json:"traceId,omitempty"`
	Record  AuditRecord `json:"record"`
}

// Health is the read-only introspection payload for liveness probing.
type Health struct {
	Status          string  `json:"status"`
	ModelLoaded     bool    `json:"model_loaded"`
	ReviewThreshold float64 `json:"review_threshold"`
	BlockThreshold  float64 `json:"block_threshold"`
}

// ProbabilityDecimals is the fixed precision used on the wire and in the audit log.
const ProbabilityDecimals = 6

// RoundProbability rounds p to ProbabilityDecimals decimal digits.
func RoundProbability(p float64) float64 {
	scale := math.Pow10(ProbabilityDecimals)
	return math.Round(p*scale) / scale
}
