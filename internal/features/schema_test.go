package features

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func mustSchema(t *testing.T, names ...string) *Schema {
	t.Helper()
	s, err := NewSchema(names)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

func TestValidate(t *testing.T) {
	schema := mustSchema(t, "A", "B")

	t.Run("ExactMatch", func(t *testing.T) {
		vec, err := schema.Validate(map[string]any{"A": 1.0, "B": 2.0})
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !reflect.DeepEqual(vec.Values, []float64{1.0, 2.0}) {
			t.Errorf("unexpected values: %v", vec.Values)
		}
		if !reflect.DeepEqual(vec.Names, []string{"A", "B"}) {
			t.Errorf("unexpected names: %v", vec.Names)
		}
	})

	t.Run("MissingFeature", func(t *testing.T) {
		_, err := schema.Validate(map[string]any{"A": 1.0})
		var cerr *domain.ContractError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ContractError, got %v", err)
		}
		if !reflect.DeepEqual(cerr.Missing, []string{"B"}) {
			t.Errorf("expected missing [B], got %v", cerr.Missing)
		}
		if len(cerr.Unexpected) != 0 {
			t.Errorf("expected no unexpected features, got %v", cerr.Unexpected)
		}
	})

	t.Run("UnexpectedFeature", func(t *testing.T) {
		_, err := schema.Validate(map[string]any{"A": 1.0, "B": 2.0, "C": 3.0})
		var cerr *domain.ContractError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ContractError, got %v", err)
		}
		if !reflect.DeepEqual(cerr.Unexpected, []string{"C"}) {
			t.Errorf("expected unexpected [C], got %v", cerr.Unexpected)
		}
		if len(cerr.Missing) != 0 {
			t.Errorf("expected no missing features, got %v", cerr.Missing)
		}
	})

	t.Run("BothViolations", func(t *testing.T) {
		_, err := schema.Validate(map[string]any{"A": 1.0, "Z": 3.0, "Y": 4.0})
		var cerr *domain.ContractError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ContractError, got %v", err)
		}
		if !reflect.DeepEqual(cerr.Missing, []string{"B"}) {
			t.Errorf("expected missing [B], got %v", cerr.Missing)
		}
		if !reflect.DeepEqual(cerr.Unexpected, []string{"Y", "Z"}) {
			t.Errorf("expected unexpected [Y Z], got %v", cerr.Unexpected)
		}
	})

	t.Run("NonNumericRejected", func(t *testing.T) {
		for _, bad := range []any{"1.0", true, nil, map[string]any{}, []any{1.0}} {
			_, err := schema.Validate(map[string]any{"A": 1.0, "B": bad})
			var cerr *domain.ContractError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ContractError for %#v, got %v", bad, err)
			}
			if !reflect.DeepEqual(cerr.NonNumeric, []string{"B"}) {
				t.Errorf("expected non-numeric [B] for %#v, got %v", bad, cerr.NonNumeric)
			}
		}
	})

	t.Run("JSONNumberAndInts", func(t *testing.T) {
		vec, err := schema.Validate(map[string]any{"A": json.Number("3.5"), "B": 7})
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !reflect.DeepEqual(vec.Values, []float64{3.5, 7}) {
			t.Errorf("unexpected values: %v", vec.Values)
		}
	})
}

func TestValidateReordersToSchemaOrder(t *testing.T) {
	schema := mustSchema(t, "V3", "Amount", "V1", "Time")

	input := map[string]any{}
	want := make([]float64, schema.Len())
	for i, name := range []string{"Time", "V1", "Amount", "V3"} {
		input[name] = float64(i + 10)
	}
	for i, name := range schema.Names() {
		want[i] = input[name].(float64)
	}

	for i := 0; i < 20; i++ {
		vec, err := schema.Validate(input)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !reflect.DeepEqual(vec.Values, want) {
			t.Fatalf("expected %v, got %v", want, vec.Values)
		}
	}
}

func TestNewSchemaRejectsBadLists(t *testing.T) {
	cases := map[string][]string{
		"Empty":     {},
		"Duplicate": {"A", "A"},
		"BlankName": {"A", ""},
	}
	for name, names := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSchema(names)
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "feature_list.json")
		if err := os.WriteFile(path, []byte(`["Time","V1","Amount"]`), 0o644); err != nil {
			t.Fatal(err)
		}
		schema, err := LoadSchema(path)
		if err != nil {
			t.Fatalf("LoadSchema failed: %v", err)
		}
		if !reflect.DeepEqual(schema.Names(), []string{"Time", "V1", "Amount"}) {
			t.Errorf("unexpected names: %v", schema.Names())
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadSchema(filepath.Join(dir, "nope.json"))
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("NotAnArray", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte(`{"A":1}`), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadSchema(path)
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})
}
