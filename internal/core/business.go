package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/JonMunkholm/parque/internal/normalize"
	"github.com/JonMunkholm/parque/internal/policy"
)

// Score penalties per business finding.
const (
	errorPenalty   = 15
	warningPenalty = 5
)

// RecommendationThreshold is how many records a rule must affect before the
// report recommends a bulk remediation.
const RecommendationThreshold = 5

// ValidateOptions tunes one validation run.
type ValidateOptions struct {
	Skip []string // rule IDs to leave out
}

// BusinessResult holds the findings of the business predicates for one record.
type BusinessResult struct {
	Errors   []Finding `json:"errores"`
	Warnings []Finding `json:"advertencias"`
	Info     []Finding `json:"informacion"`
	Score    float64   `json:"score_validacion"`
}

// Valid reports whether no blocking finding was produced.
func (r BusinessResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidationScore is max(0, 100 - 15*errors - 5*warnings).
func ValidationScore(errors, warnings int) float64 {
	return math.Max(0, float64(100-errorPenalty*errors-warningPenalty*warnings))
}

// DefaultRuleSet returns every built-in rule: normalizer policy, business
// predicates and their auxiliary thresholds.
func DefaultRuleSet() *policy.RuleSet {
	rules := normalize.DefaultRules()
	for _, br := range BusinessRules() {
		rules = append(rules, br.PolicyRule())
	}
	rules = append(rules, ThresholdRules()...)
	return policy.MustRuleSet(rules...)
}

// LoadRuleSet returns the defaults overlaid with the rules file at path.
// An empty path yields the defaults.
func LoadRuleSet(path string) (*policy.RuleSet, error) {
	rs := DefaultRuleSet()
	if path == "" {
		return rs, nil
	}
	overrides, err := policy.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := rs.Merge(overrides); err != nil {
		return nil, fmt.Errorf("merge rules file: %w", err)
	}
	return rs, nil
}

// BusinessValidator evaluates the registered business predicates.
type BusinessValidator struct {
	rules *policy.RuleSet
	defs  []BusinessRule
}

// NewBusinessValidator binds the registered predicates to rules. A nil set
// uses DefaultRuleSet.
func NewBusinessValidator(rules *policy.RuleSet) *BusinessValidator {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &BusinessValidator{rules: rules, defs: BusinessRules()}
}

// Rules returns the rule set the validator reads thresholds from.
func (v *BusinessValidator) Rules() *policy.RuleSet {
	return v.rules
}

// Validate runs every non-skipped predicate against rec in order. Each
// predicate uses the rule variant that governs the record's provider and
// site; inactive rules and rules scoped away from the record are skipped.
func (v *BusinessValidator) Validate(rec *InventoryRecord, opts ValidateOptions) BusinessResult {
	skip := make(map[string]bool, len(opts.Skip))
	for _, id := range opts.Skip {
		skip[id] = true
	}

	var res BusinessResult
	for _, br := range v.defs {
		if skip[br.ID] {
			continue
		}
		pr, ok := v.rules.Resolve(br.ID, rec.Provider, rec.Site)
		if !ok {
			if _, defined := v.rules.Get(br.ID); defined {
				continue
			}
			pr = br.PolicyRule()
		}

		var viol Violation
		applied, passed := pr.Evaluate(rec.Provider, rec.Site, func(r *policy.Rule) (bool, bool) {
			var outcome Outcome
			outcome, viol = br.Check(rec, RuleEnv{Rule: r, Rules: v.rules})
			return outcome == Pass, outcome != NotApplicable
		})
		if !applied || passed {
			continue
		}

		f := Finding{
			Type:            ErrorBusinessRule,
			Code:            br.Code,
			Rule:            br.ID,
			Field:           br.Field,
			Severity:        pr.Severity,
			Message:         viol.Message,
			Value:           viol.Value,
			Expected:        viol.Expected,
			SuggestedAction: fallback(pr.SuggestedAction, br.SuggestedAction),
			Summary:         br.Summary,
		}
		switch {
		case f.Severity.Blocks():
			res.Errors = append(res.Errors, f)
		case f.Severity == SeverityWarning:
			res.Warnings = append(res.Warnings, f)
		default:
			res.Info = append(res.Info, f)
		}
	}

	res.Score = ValidationScore(len(res.Errors), len(res.Warnings))
	return res
}

// BusinessFindings rebuilds the business result already attached to rec by
// the row processor. It does not evaluate any rule.
func BusinessFindings(rec *InventoryRecord) BusinessResult {
	pick := func(list []Finding) []Finding {
		var out []Finding
		for _, f := range list {
			if f.Type == ErrorBusinessRule {
				out = append(out, f)
			}
		}
		return out
	}
	return BusinessResult{
		Errors:   pick(rec.Errors),
		Warnings: pick(rec.Warnings),
		Info:     pick(rec.Info),
		Score:    rec.ValidationScore,
	}
}

// RecordValidation is one entry of a batch validation index.
type RecordValidation struct {
	Row      int            `json:"fila"`
	Hostname string         `json:"hostname"`
	Result   BusinessResult `json:"resultado"`
}

// BatchValidation aggregates the business results of many records.
type BatchValidation struct {
	Records      []RecordValidation `json:"registros"`
	Valid        int                `json:"validos"`
	Invalid      int                `json:"invalidos"`
	AverageScore float64            `json:"score_promedio"`
}

// ValidateBatch indexes the business findings of already processed records
// and averages their scores. Rules are not re-run, so usage counters are
// left untouched.
func ValidateBatch(recs []InventoryRecord) BatchValidation {
	out := BatchValidation{Records: make([]RecordValidation, 0, len(recs))}
	var sum float64
	for i := range recs {
		rec := &recs[i]
		res := BusinessFindings(rec)
		out.Records = append(out.Records, RecordValidation{Row: rec.Row, Hostname: rec.Hostname, Result: res})
		if res.Valid() {
			out.Valid++
		} else {
			out.Invalid++
		}
		sum += res.Score
	}
	if len(recs) > 0 {
		out.AverageScore = round2(sum / float64(len(recs)))
	}
	return out
}

// RuleSummary counts the records affected by one rule.
type RuleSummary struct {
	Rule     string   `json:"regla"`
	Name     string   `json:"nombre"`
	Field    string   `json:"campo"`
	Severity Severity `json:"severidad"`
	Count    int      `json:"cantidad"`
	Percent  float64  `json:"porcentaje"`
}

// FieldSummary counts findings per field.
type FieldSummary struct {
	Field    string `json:"campo"`
	Errors   int    `json:"errores"`
	Warnings int    `json:"advertencias"`
	Info     int    `json:"informacion"`
}

// Recommendation is a prioritized remediation for a recurring problem.
type Recommendation struct {
	Priority string `json:"prioridad"`
	Rule     string `json:"regla"`
	Affected int    `json:"afectados"`
	Message  string `json:"mensaje"`
}

// ValidationReport surfaces the most frequent problems of a batch.
type ValidationReport struct {
	TotalRecords    int              `json:"total_registros"`
	AverageScore    float64          `json:"score_promedio"`
	ByRule          []RuleSummary    `json:"por_regla"`
	ByField         []FieldSummary   `json:"por_campo"`
	TopProblems     []RuleSummary    `json:"principales_problemas"`
	Recommendations []Recommendation `json:"recomendaciones"`
}

// Recommendation priorities.
const (
	PriorityHigh   = "ALTA"
	PriorityMedium = "MEDIA"
	PriorityLow    = "BAJA"
)

var bulkRemediation = map[string]string{
	RuleRAMMinimum:       "%d equipos con RAM insuficiente: gestionar una ampliación masiva de memoria",
	RuleCPUPerformance:   "%d equipos con procesador lento: incluirlos en el plan de renovación",
	RuleOSUnsupported:    "%d equipos con sistema operativo sin soporte: planificar migración masiva",
	RuleOSDeprecated:     "%d equipos con Windows 10: planificar la migración a Windows 11",
	RuleLegacyBrowser:    "%d equipos con navegador obsoleto: desplegar Edge o Chrome por política",
	RuleBrowserVersion:   "%d equipos con navegador desactualizado: forzar actualización centralizada",
	RuleAntivirusMissing: "%d equipos sin antivirus: desplegar el antivirus corporativo",
	RuleAntivirusStale:   "%d equipos con firmas vencidas: revisar la consola de antivirus",
	RuleDownloadMinimum:  "%d puestos con descarga insuficiente: renegociar el plan con el ISP",
	RuleUploadMinimum:    "%d puestos con subida insuficiente: renegociar el plan con el ISP",
	RuleDiskMinimum:      "%d equipos con disco pequeño: adquirir discos de mayor capacidad",
	RuleHDDMinimum:       "%d equipos con HDD pequeño: migración masiva a SSD",
	RuleHeadsetRequired:  "%d puestos de voz sin diadema: compra consolidada de diademas",
	RuleRequiredFields:   "%d registros incompletos: solicitar al proveedor completar el inventario",
}

// BuildReport groups the business findings of records by rule and by field.
func BuildReport(records []InventoryRecord) ValidationReport {
	rep := ValidationReport{TotalRecords: len(records)}
	if len(records) == 0 {
		return rep
	}

	byRule := make(map[string]*RuleSummary)
	byField := make(map[string]*FieldSummary)
	var scoreSum float64

	for i := range records {
		rec := &records[i]
		scoreSum += rec.ValidationScore
		seen := make(map[string]bool)

		for _, f := range rec.Findings() {
			fs := byField[f.Field]
			if fs == nil {
				fs = &FieldSummary{Field: f.Field}
				byField[f.Field] = fs
			}
			switch {
			case f.Severity.Blocks():
				fs.Errors++
			case f.Severity == SeverityWarning:
				fs.Warnings++
			default:
				fs.Info++
			}

			if f.Type != ErrorBusinessRule || f.Rule == "" || seen[f.Rule] {
				continue
			}
			seen[f.Rule] = true
			rs := byRule[f.Rule]
			if rs == nil {
				name := f.Rule
				if br, ok := LookupBusinessRule(f.Rule); ok {
					name = br.Name
				}
				rs = &RuleSummary{Rule: f.Rule, Name: name, Field: f.Field, Severity: f.Severity}
				byRule[f.Rule] = rs
			}
			rs.Count++
		}
	}

	rep.AverageScore = round2(scoreSum / float64(len(records)))

	for _, rs := range byRule {
		rs.Percent = round2(float64(rs.Count) * 100 / float64(len(records)))
		rep.ByRule = append(rep.ByRule, *rs)
	}
	sort.Slice(rep.ByRule, func(i, j int) bool {
		if rep.ByRule[i].Count != rep.ByRule[j].Count {
			return rep.ByRule[i].Count > rep.ByRule[j].Count
		}
		return rep.ByRule[i].Rule < rep.ByRule[j].Rule
	})

	for _, fs := range byField {
		rep.ByField = append(rep.ByField, *fs)
	}
	sort.Slice(rep.ByField, func(i, j int) bool {
		ti := rep.ByField[i].Errors + rep.ByField[i].Warnings + rep.ByField[i].Info
		tj := rep.ByField[j].Errors + rep.ByField[j].Warnings + rep.ByField[j].Info
		if ti != tj {
			return ti > tj
		}
		return rep.ByField[i].Field < rep.ByField[j].Field
	})

	rep.TopProblems = rep.ByRule
	if len(rep.TopProblems) > 5 {
		rep.TopProblems = rep.TopProblems[:5]
	}

	rep.Recommendations = recommend(rep.ByRule)
	return rep
}

func recommend(byRule []RuleSummary) []Recommendation {
	var out []Recommendation
	for _, rs := range byRule {
		if rs.Count < RecommendationThreshold {
			continue
		}
		rec := Recommendation{Rule: rs.Rule, Affected: rs.Count, Priority: priorityFor(rs.Severity)}
		if format, ok := bulkRemediation[rs.Rule]; ok {
			rec.Message = fmt.Sprintf(format, rs.Count)
		} else {
			rec.Message = fmt.Sprintf("%d registros afectados por «%s»", rs.Count, rs.Name)
		}
		out = append(out, rec)
	}
	rank := map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}
	sort.SliceStable(out, func(i, j int) bool {
		return rank[out[i].Priority] < rank[out[j].Priority]
	})
	return out
}

func priorityFor(s Severity) string {
	switch {
	case s.Blocks():
		return PriorityHigh
	case s == SeverityWarning:
		return PriorityMedium
	}
	return PriorityLow
}
