package core

// validation.go holds the schema validator.
//
// The schema is a static list of FieldSpecs over the record's value map
// (JSON field name to typed value). Validation never mutates the record and
// sorts problems into three buckets:
//  1. Errors: missing required fields, and any other violation in strict mode
//  2. Warnings: type, length, range, enum and pattern violations
//  3. Info: recommended fields left empty

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Schema finding codes.
const (
	CodeRequired    = "VAL001"
	CodeType        = "VAL002"
	CodeLength      = "VAL003"
	CodeRange       = "VAL004"
	CodeEnum        = "VAL005"
	CodePattern     = "VAL006"
	CodeRecommended = "VAL007"
)

// FieldSpec defines validation for one field of the record value map.
type FieldSpec struct {
	Name        string         // JSON field name
	Type        FieldType      // Expected primitive type
	Required    bool           // Missing is an ERROR
	Recommended bool           // Missing is INFO
	MaxLength   int            // Max runes for text, 0 = unlimited
	Min, Max    *float64       // Numeric bounds, inclusive
	EnumValues  []string       // Allowed values for FieldEnum
	Pattern     *regexp.Regexp // Required shape for text
}

// SchemaResult is the outcome of validating one record.
type SchemaResult struct {
	Errors   []Finding
	Warnings []Finding
	Info     []Finding
}

// Valid reports whether no blocking problem was found.
func (r SchemaResult) Valid() bool {
	return len(r.Errors) == 0
}

// SchemaValidator checks value maps against a fixed schema.
type SchemaValidator struct {
	specs  []FieldSpec
	strict bool
}

// NewSchemaValidator returns a validator for the inventory schema. In strict
// mode every violation is an ERROR.
func NewSchemaValidator(strict bool) *SchemaValidator {
	return &SchemaValidator{specs: InventorySchema(), strict: strict}
}

// NewSchemaValidatorFor returns a validator over custom specs.
func NewSchemaValidatorFor(specs []FieldSpec, strict bool) *SchemaValidator {
	return &SchemaValidator{specs: specs, strict: strict}
}

// Specs returns the schema in declaration order.
func (v *SchemaValidator) Specs() []FieldSpec {
	return v.specs
}

// Validate walks every schema field.
func (v *SchemaValidator) Validate(values map[string]any) SchemaResult {
	var res SchemaResult

	for _, spec := range v.specs {
		val, present := values[spec.Name]
		if !present || isBlank(val) {
			switch {
			case spec.Required:
				res.Errors = append(res.Errors, schemaFinding(spec, CodeRequired, SeverityError, "", "campo requerido vacío"))
			case spec.Recommended:
				res.Info = append(res.Info, schemaFinding(spec, CodeRecommended, SeverityInfo, "", "campo recomendado sin dato"))
			}
			continue
		}

		f, ok := ValidateCell(val, spec)
		if ok {
			continue
		}
		if v.strict {
			f.Severity = SeverityError
			res.Errors = append(res.Errors, f)
		} else {
			res.Warnings = append(res.Warnings, f)
		}
	}

	return res
}

// ValidateCell checks a single present value against spec. It returns
// ok=true when the value conforms; otherwise the finding carries WARNING
// severity.
func ValidateCell(val any, spec FieldSpec) (Finding, bool) {
	shown := display(val)

	if !typeMatches(val, spec.Type) {
		return schemaFinding(spec, CodeType, SeverityWarning, shown,
			fmt.Sprintf("se esperaba %s", spec.Type)), false
	}

	switch spec.Type {
	case FieldText:
		s := val.(string)
		if spec.MaxLength > 0 && len([]rune(s)) > spec.MaxLength {
			f := schemaFinding(spec, CodeLength, SeverityWarning, shown,
				fmt.Sprintf("excede la longitud máxima de %d caracteres", spec.MaxLength))
			f.Expected = "≤ " + strconv.Itoa(spec.MaxLength)
			return f, false
		}
		if spec.Pattern != nil && !spec.Pattern.MatchString(s) {
			f := schemaFinding(spec, CodePattern, SeverityWarning, shown, "formato inválido")
			f.Expected = spec.Pattern.String()
			return f, false
		}

	case FieldEnum:
		s := val.(string)
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, s) {
				return Finding{}, true
			}
		}
		f := schemaFinding(spec, CodeEnum, SeverityWarning, shown, "valor fuera del dominio permitido")
		f.Expected = strings.Join(spec.EnumValues, ", ")
		return f, false

	case FieldInteger, FieldDecimal:
		n := asFloat(val)
		if (spec.Min != nil && n < *spec.Min) || (spec.Max != nil && n > *spec.Max) {
			f := schemaFinding(spec, CodeRange, SeverityWarning, shown, "valor fuera de rango")
			f.Expected = rangeLabel(spec.Min, spec.Max)
			return f, false
		}
	}

	return Finding{}, true
}

func schemaFinding(spec FieldSpec, code string, sev Severity, value, problem string) Finding {
	return Finding{
		Type:     ErrorValidation,
		Code:     code,
		Field:    spec.Name,
		Severity: sev,
		Message:  fmt.Sprintf("%s: %s", spec.Name, problem),
		Value:    value,
	}
}

func isBlank(val any) bool {
	switch x := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

func typeMatches(val any, ft FieldType) bool {
	switch ft {
	case FieldText, FieldEnum:
		_, ok := val.(string)
		return ok
	case FieldInteger:
		switch x := val.(type) {
		case int, int32, int64:
			return true
		case float64:
			return x == float64(int64(x))
		}
		return false
	case FieldDecimal:
		switch val.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case FieldBool:
		_, ok := val.(bool)
		return ok
	case FieldDate:
		_, ok := val.(time.Time)
		return ok
	}
	return false
}

func asFloat(val any) float64 {
	switch x := val.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func display(val any) string {
	switch x := val.(type) {
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(val)
}

func rangeLabel(lo, hi *float64) string {
	f := func(p *float64) string { return strconv.FormatFloat(*p, 'f', -1, 64) }
	switch {
	case lo != nil && hi != nil:
		return f(lo) + " – " + f(hi)
	case lo != nil:
		return "≥ " + f(lo)
	case hi != nil:
		return "≤ " + f(hi)
	}
	return ""
}
