package domain

import (
	"fmt"
	"strings"
)

// ContractError reports an inbound feature mapping that does not match the schema.
// Every offending name is carried so the caller can correct the request.
type ContractError struct {
	Missing    []string `json:"missing,omitempty"`
	Unexpected []string `json:"unexpected,omitempty"`
	NonNumeric []string `json:"non_numeric,omitempty"`
}

func (e *ContractError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("Missing features: {%s}", quoteJoin(e.Missing)))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("Unexpected features: {%s}", quoteJoin(e.Unexpected)))
	}
	if len(e.NonNumeric) > 0 {
		parts = append(parts, fmt.Sprintf("Non-numeric features: {%s}", quoteJoin(e.NonNumeric)))
	}
	if len(parts) == 0 {
		return "feature contract violated"
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether no violation was recorded.
func (e *ContractError) Empty() bool {
	return len(e.Missing) == 0 && len(e.Unexpected) == 0 && len(e.NonNumeric) == 0
}

// ScoringFailure means the scorer could not produce a probability.
type ScoringFailure struct {
	Reason string
	Err    error
}

func (e *ScoringFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scoring failed: %s: %v", e.Reason, e.Err)
	}
	return "scoring failed: " + e.Reason
}

func (e *ScoringFailure) Unwrap() error {
	return e.Err
}

// PersistenceError means an audit record could not be durably written.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit log %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigurationError is fatal: the service must not start.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ", ")
}
