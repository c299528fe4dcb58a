package core

import (
	"strings"
	"testing"
)

func validValues() map[string]any {
	return map[string]any{
		"proveedor":     "Konecta",
		"sitio":         "Bogotá",
		"hostname":      "PC-001",
		"tipo_atencion": "CHAT",
		"ram_gb":        16.0,
		"cpu_nucleos":   4,
	}
}

func TestSchemaValidator_RequiredFields(t *testing.T) {
	v := NewSchemaValidator(false)
	values := validValues()
	delete(values, "hostname")
	values["sitio"] = "   "

	res := v.Validate(values)
	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors, want 2: %+v", len(res.Errors), res.Errors)
	}
	for _, f := range res.Errors {
		if f.Code != CodeRequired || f.Severity != SeverityError {
			t.Errorf("got %s/%s, want %s/ERROR", f.Code, f.Severity, CodeRequired)
		}
	}
	if res.Valid() {
		t.Error("result with missing required fields should not be valid")
	}
}

func TestSchemaValidator_Severities(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		value    any
		wantCode string
	}{
		{"type mismatch", "ram_gb", "mucha", CodeType},
		{"range", "cpu_nucleos", 0, CodeRange},
		{"enum", "tipo_atencion", "PRESENCIAL", CodeEnum},
		{"pattern", "hostname", "PC 001/A", CodePattern},
		{"length", "proveedor", strings.Repeat("x", 121), CodeLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validValues()
			values[tt.field] = tt.value

			lax := NewSchemaValidator(false).Validate(values)
			if len(lax.Warnings) != 1 || lax.Warnings[0].Code != tt.wantCode {
				t.Fatalf("got warnings %+v, want one %s", lax.Warnings, tt.wantCode)
			}
			if len(lax.Errors) != 0 {
				t.Errorf("got errors %+v, want none outside strict mode", lax.Errors)
			}

			strict := NewSchemaValidator(true).Validate(values)
			if len(strict.Errors) != 1 || strict.Errors[0].Severity != SeverityError {
				t.Errorf("got errors %+v, want one ERROR in strict mode", strict.Errors)
			}
		})
	}
}

func TestSchemaValidator_RecommendedIsInfo(t *testing.T) {
	res := NewSchemaValidator(false).Validate(validValues())
	found := false
	for _, f := range res.Info {
		if f.Field == "velocidad_descarga_mbps" && f.Code == CodeRecommended {
			found = true
		}
	}
	if !found {
		t.Errorf("got info %+v, want a recommendation for velocidad_descarga_mbps", res.Info)
	}
	if !res.Valid() {
		t.Errorf("got errors %+v, want none", res.Errors)
	}
}

func TestSchemaValidator_DoesNotMutate(t *testing.T) {
	values := validValues()
	values["ram_gb"] = "mucha"
	before := len(values)
	NewSchemaValidator(true).Validate(values)
	if len(values) != before || values["ram_gb"] != "mucha" {
		t.Errorf("values changed: %v", values)
	}
}

func TestValidateCell_IntegerAcceptsWholeFloat(t *testing.T) {
	spec := FieldSpec{Name: "cpu_nucleos", Type: FieldInteger}
	if _, ok := ValidateCell(8.0, spec); !ok {
		t.Error("8.0 should be accepted as an integer")
	}
	if _, ok := ValidateCell(8.5, spec); ok {
		t.Error("8.5 should not be accepted as an integer")
	}
}
