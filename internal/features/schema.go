// Package features enforces the feature contract between callers and the model.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"reflect"
	"sort"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Schema is the immutable, ordered list of features the model was trained on.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema builds a schema from an ordered list of names.
func NewSchema(names []string) (*Schema, error) {
	if len(names) == 0 {
		return nil, &domain.ConfigurationError{Field: "schema", Reason: "feature list is empty"}
	}

	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, &domain.ConfigurationError{Field: "schema", Reason: fmt.Sprintf("feature %d has an empty name", i)}
		}
		if _, dup := index[name]; dup {
			return nil, &domain.ConfigurationError{Field: "schema", Reason: fmt.Sprintf("duplicate feature %q", name)}
		}
		index[name] = i
	}

	ordered := make([]string, len(names))
	copy(ordered, names)

	return &Schema{names: ordered, index: index}, nil
}

// LoadSchema reads a JSON array of feature names from path.
func LoadSchema(path string) (*Schema, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "schema_path", Reason: "cannot read feature list", Err: err}
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, &domain.ConfigurationError{Field: "schema_path", Reason: "feature list must be a JSON array of strings", Err: err}
	}

	return NewSchema(names)
}

// Names returns a copy of the feature names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of features.
func (s *Schema) Len() int {
	return len(s.names)
}

// Has reports whether name belongs to the schema.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Validate checks input against the schema and returns its values in schema order.
// Missing, unexpected and non-numeric names are all collected into one ContractError.
func (s *Schema) Validate(input map[string]any) (domain.FeatureVector, error) {
	cerr := &domain.ContractError{}

	for _, name := range s.names {
		if _, ok := input[name]; !ok {
			cerr.Missing = append(cerr.Missing, name)
		}
	}

	values := make([]float64, len(s.names))
	for name, raw := range input {
		idx, ok := s.index[name]
		if !ok {
			cerr.Unexpected = append(cerr.Unexpected, name)
			continue
		}
		v, ok := toFloat(raw)
		if !ok {
			cerr.NonNumeric = append(cerr.NonNumeric, name)
			continue
		}
		values[idx] = v
	}

	if !cerr.Empty() {
		sort.Strings(cerr.Missing)
		sort.Strings(cerr.Unexpected)
		sort.Strings(cerr.NonNumeric)
		return domain.FeatureVector{}, cerr
	}

	return domain.FeatureVector{Names: s.Names(), Values: values}, nil
}

// toFloat accepts JSON numbers and Go numeric kinds only; strings and booleans are never coerced.
func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case float64:
		v = n
	case float32:
		v = float64(n)
	case nil, bool, string:
		return 0, false
	default:
		rv := reflect.ValueOf(raw)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			v = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			v = float64(rv.Uint())
		default:
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
