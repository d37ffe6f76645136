package validation

import (
	"strings"
	"testing"

	"github.com/avergara/uniondb/internal/domain"
)

func testSchema() domain.Schema {
	return domain.Schema{
		"afiliadas": {
			Required: []string{"nombre", "cif"},
			Enums: map[string][]string{
				"genero": {"mujer", "hombre", "otro"},
			},
			Relationships: []string{"piso_id"},
		},
		"pisos": {
			Required:      []string{"direccion"},
			Relationships: []string{"bloque_id"},
		},
	}
}

func TestValidateUnknownKind(t *testing.T) {
	engine := New(testSchema())

	ok, errs := engine.Validate("contratos", map[string]any{}, OpCreate)
	if ok {
		t.Fatalf("expected invalid result for unknown kind")
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "contratos") {
		t.Fatalf("expected single error naming the kind, got %v", errs)
	}
}

func TestValidateRequiredOnlyOnCreate(t *testing.T) {
	engine := New(testSchema())
	fields := map[string]any{"nombre": "", "cif": nil}

	ok, errs := engine.Validate("afiliadas", fields, OpCreate)
	if ok || len(errs) != 2 {
		t.Fatalf("expected two required-field errors on create, got ok=%v errs=%v", ok, errs)
	}

	ok, errs = engine.Validate("afiliadas", fields, OpUpdate)
	if !ok || len(errs) != 0 {
		t.Fatalf("expected update to skip required checks, got ok=%v errs=%v", ok, errs)
	}
}

func TestValidateEnumMembership(t *testing.T) {
	engine := New(testSchema())

	ok, errs := engine.Validate("afiliadas", map[string]any{
		"nombre": "Ana",
		"cif":    "B12345678",
		"genero": "desconocido",
	}, OpCreate)
	if ok {
		t.Fatalf("expected enum violation")
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "genero") || !strings.Contains(errs[0], "mujer") {
		t.Fatalf("expected error naming field and options, got %v", errs)
	}

	// Empty enum values are not an error.
	ok, _ = engine.Validate("afiliadas", map[string]any{
		"nombre": "Ana",
		"cif":    "B12345678",
		"genero": "",
	}, OpCreate)
	if !ok {
		t.Fatalf("empty enum value should pass")
	}
}

func TestValidateHeuristics(t *testing.T) {
	engine := New(testSchema())

	cases := []struct {
		name   string
		fields map[string]any
		valid  bool
	}{
		{"bad email", map[string]any{"nombre": "A", "cif": "X", "email": "not-an-email"}, false},
		{"good email", map[string]any{"nombre": "A", "cif": "X", "email": "ana@union.org"}, true},
		{"bad date", map[string]any{"nombre": "A", "cif": "X", "fecha_alta": "31/12/2020"}, false},
		{"good date", map[string]any{"nombre": "A", "cif": "X", "fecha_alta": "2020-12-31"}, true},
		{"iso timestamp", map[string]any{"nombre": "A", "cif": "X", "fecha_alta": "2020-12-31T10:00:00Z"}, true},
	}

	for _, tc := range cases {
		ok, errs := engine.Validate("afiliadas", tc.fields, OpCreate)
		if ok != tc.valid {
			t.Errorf("%s: ok=%v errs=%v", tc.name, ok, errs)
		}
	}
}

func TestValidateRelationshipSkipsHeuristics(t *testing.T) {
	engine := New(testSchema())

	// bloque_id is a relationship; only non-emptiness matters, so a numeric
	// id passes without the _id integer heuristic being applied to it.
	ok, errs := engine.Validate("pisos", map[string]any{
		"direccion": "Calle Sol 1",
		"bloque_id": int64(7),
	}, OpCreate)
	if !ok {
		t.Fatalf("expected valid, got %v", errs)
	}
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	engine := New(testSchema())

	ok, errs := engine.Validate("afiliadas", map[string]any{
		"nombre": "",
		"cif":    "",
		"email":  "broken",
		"genero": "robot",
	}, OpCreate)
	if ok {
		t.Fatalf("expected invalid result")
	}
	if len(errs) != 4 {
		t.Fatalf("expected 4 accumulated errors, got %d: %v", len(errs), errs)
	}
}
