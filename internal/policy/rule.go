// Package policy holds the declarative validation rules shared by the field
// normalizers and the business rule validator.
//
// A Rule is a tagged union over four kinds (RANGE, ENUM, PATTERN and
// BUSINESS_THRESHOLD). Hardware thresholds used by the normalizers and the
// context-sensitive minimums used by business rules are both expressed as
// rules, so a single rules file can tune either layer.
package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// Kind identifies how a rule evaluates its value.
type Kind string

const (
	KindRange     Kind = "RANGE"
	KindEnum      Kind = "ENUM"
	KindPattern   Kind = "PATTERN"
	KindThreshold Kind = "BUSINESS_THRESHOLD"
)

// Operator is the comparison applied by a rule.
type Operator string

const (
	OpGreaterEq Operator = "gte"
	OpLessEq    Operator = "lte"
	OpGreater   Operator = "gt"
	OpLess      Operator = "lt"
	OpEquals    Operator = "eq"
	OpNotEquals Operator = "neq"
	OpBetween   Operator = "between"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpMatches   Operator = "matches"
)

// Severity classifies a finding. CRITICAL and ERROR block a record from
// being marked VALIDATED.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Blocks reports whether the severity prevents validation.
func (s Severity) Blocks() bool {
	return s == SeverityCritical || s == SeverityError
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Correction is a regex find/replace recipe applied to a raw cell before
// normalization.
type Correction struct {
	Find    string `yaml:"buscar" json:"buscar"`
	Replace string `yaml:"reemplazar" json:"reemplazar"`
}

// Rule is a persistable validation rule.
//
// Rules must be handled by pointer: usage counters are atomic and monotonic.
type Rule struct {
	ID              string      `yaml:"id" json:"id"`
	Name            string      `yaml:"nombre" json:"nombre"`
	Description     string      `yaml:"descripcion" json:"descripcion,omitempty"`
	Field           string      `yaml:"campo" json:"campo"`
	Kind            Kind        `yaml:"tipo_validacion" json:"tipo_validacion"`
	Operator        Operator    `yaml:"operador" json:"operador,omitempty"`
	Expected        string      `yaml:"valor_esperado" json:"valor_esperado,omitempty"`
	Min             *float64    `yaml:"valor_minimo" json:"valor_minimo,omitempty"`
	Max             *float64    `yaml:"valor_maximo" json:"valor_maximo,omitempty"`
	Values          []string    `yaml:"valores" json:"valores,omitempty"`
	Pattern         string      `yaml:"patron" json:"patron,omitempty"`
	Severity        Severity    `yaml:"severidad" json:"severidad"`
	Blocking        bool        `yaml:"es_bloqueante" json:"es_bloqueante"`
	Active          *bool       `yaml:"activa" json:"activa,omitempty"`
	Correction      *Correction `yaml:"autocorreccion" json:"autocorreccion,omitempty"`
	Providers       []string    `yaml:"proveedores" json:"proveedores,omitempty"`
	Sites           []string    `yaml:"sitios" json:"sitios,omitempty"`
	SuggestedAction string      `yaml:"accion_sugerida" json:"accion_sugerida,omitempty"`

	re        *regexp.Regexp
	correctRe *regexp.Regexp
	applied   atomic.Int64
	failed    atomic.Int64
}

// Compile validates the rule definition and compiles its regular expressions.
func (r *Rule) Compile() error {
	if r.ID == "" {
		return fmt.Errorf("rule without id")
	}
	switch r.Kind {
	case KindRange, KindThreshold:
		if r.Min == nil && r.Max == nil && r.Expected == "" {
			return fmt.Errorf("rule %s: %s needs valor_minimo, valor_maximo or valor_esperado", r.ID, r.Kind)
		}
		if r.Expected != "" {
			if _, err := strconv.ParseFloat(r.Expected, 64); err != nil {
				return fmt.Errorf("rule %s: valor_esperado %q is not numeric", r.ID, r.Expected)
			}
		}
	case KindEnum:
		if len(r.Values) == 0 && r.Expected == "" {
			return fmt.Errorf("rule %s: ENUM needs valores", r.ID)
		}
	case KindPattern:
		if r.Pattern == "" && r.Correction == nil {
			return fmt.Errorf("rule %s: PATTERN needs patron or autocorreccion", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown tipo_validacion %q", r.ID, r.Kind)
	}

	if r.Severity == "" {
		r.Severity = SeverityWarning
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: unknown severidad %q", r.ID, r.Severity)
	}

	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: patron: %w", r.ID, err)
		}
		r.re = re
	}
	if r.Correction != nil {
		re, err := regexp.Compile(r.Correction.Find)
		if err != nil {
			return fmt.Errorf("rule %s: autocorreccion: %w", r.ID, err)
		}
		r.correctRe = re
	}
	return nil
}

// IsActive reports whether the rule participates in evaluation.
// Rules are active unless explicitly disabled.
func (r *Rule) IsActive() bool {
	return r.Active == nil || *r.Active
}

// AppliesTo reports whether the rule's provider/site scoping admits the record.
func (r *Rule) AppliesTo(provider, site string) bool {
	return inScope(r.Providers, provider) && inScope(r.Sites, site)
}

func inScope(scope []string, value string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// Scoped reports whether the rule is limited to specific providers or sites.
func (r *Rule) Scoped() bool {
	return len(r.Providers) > 0 || len(r.Sites) > 0
}

// specificity ranks variants of one ID: provider and site together beat
// either alone, which beats the unscoped base.
func (r *Rule) specificity() int {
	n := 0
	if len(r.Providers) > 0 {
		n += 2
	}
	if len(r.Sites) > 0 {
		n++
	}
	return n
}

func sameScope(a, b *Rule) bool {
	return sameSet(a.Providers, b.Providers) && sameSet(a.Sites, b.Sites)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !inScope(b, v) {
			return false
		}
	}
	for _, v := range b {
		if !inScope(a, v) {
			return false
		}
	}
	return true
}

// Evaluate runs check when the rule is active and scoped to provider and
// site, then records the outcome. check returns ok=false when the value it
// needs is missing; such a run is not counted. applied is false when the
// rule was skipped or not applicable, and a skipped rule passes.
func (r *Rule) Evaluate(provider, site string, check func(*Rule) (passed, ok bool)) (applied, passed bool) {
	if !r.IsActive() || !r.AppliesTo(provider, site) {
		return false, true
	}
	passed, ok := check(r)
	if !ok {
		return false, true
	}
	r.Record(passed)
	return true, passed
}

// Record bumps the usage counters for one evaluation.
func (r *Rule) Record(passed bool) {
	r.applied.Add(1)
	if !passed {
		r.failed.Add(1)
	}
}

// Usage returns the monotonic usage counters.
func (r *Rule) Usage() (applied, failed int64) {
	return r.applied.Load(), r.failed.Load()
}

// Check evaluates value without touching counters or scoping.
func (r *Rule) Check(value any) bool {
	switch r.Kind {
	case KindRange, KindThreshold:
		v, ok := toFloat(value)
		if !ok {
			return false
		}
		return r.compare(v)
	case KindEnum:
		s := fmt.Sprint(value)
		found := false
		for _, ev := range r.enumValues() {
			if strings.EqualFold(strings.TrimSpace(ev), strings.TrimSpace(s)) {
				found = true
				break
			}
		}
		if r.Operator == OpNotIn || r.Operator == OpNotEquals {
			return !found
		}
		return found
	case KindPattern:
		if r.re == nil {
			return true
		}
		return r.re.MatchString(fmt.Sprint(value))
	}
	return true
}

func (r *Rule) enumValues() []string {
	if len(r.Values) > 0 {
		return r.Values
	}
	return []string{r.Expected}
}

func (r *Rule) compare(v float64) bool {
	expected, hasExpected := r.expected()
	switch r.Operator {
	case OpGreaterEq:
		return v >= r.lower(expected, hasExpected)
	case OpGreater:
		return v > r.lower(expected, hasExpected)
	case OpLessEq:
		return v <= r.upper(expected, hasExpected)
	case OpLess:
		return v < r.upper(expected, hasExpected)
	case OpEquals:
		return hasExpected && v == expected
	case OpNotEquals:
		return !hasExpected || v != expected
	}
	// between, or no operator: check whichever bounds exist
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	if r.Min == nil && r.Max == nil && hasExpected {
		return v >= expected
	}
	return true
}

func (r *Rule) lower(expected float64, hasExpected bool) float64 {
	if r.Min != nil {
		return *r.Min
	}
	if hasExpected {
		return expected
	}
	return 0
}

func (r *Rule) upper(expected float64, hasExpected bool) float64 {
	if r.Max != nil {
		return *r.Max
	}
	if hasExpected {
		return expected
	}
	return 0
}

func (r *Rule) expected() (float64, bool) {
	if r.Expected == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(r.Expected, 64)
	return f, err == nil
}

// Threshold returns the rule's numeric reference value: valor_minimo, then
// valor_esperado, then valor_maximo.
func (r *Rule) Threshold() (float64, bool) {
	if r.Min != nil {
		return *r.Min, true
	}
	if f, ok := r.expected(); ok {
		return f, true
	}
	if r.Max != nil {
		return *r.Max, true
	}
	return 0, false
}

// Correct applies the auto-correction recipe, if any.
func (r *Rule) Correct(s string) string {
	if r.correctRe == nil || !r.IsActive() {
		return s
	}
	return r.correctRe.ReplaceAllString(s, r.Correction.Replace)
}

// HasCorrection reports whether the rule carries an auto-correction recipe.
func (r *Rule) HasCorrection() bool {
	return r.correctRe != nil
}

// MarshalJSON includes the usage counters.
func (r *Rule) MarshalJSON() ([]byte, error) {
	type alias Rule
	applied, failed := r.Usage()
	return json.Marshal(struct {
		*alias
		Applied int64 `json:"veces_aplicada"`
		Failed  int64 `json:"veces_fallida"`
	}{(*alias)(r), applied, failed})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		return f, err == nil
	}
	return 0, false
}

// Float returns a pointer to f, for building rules in code.
func Float(f float64) *float64 {
	return &f
}
