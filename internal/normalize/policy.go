package normalize

import (
	"github.com/JonMunkholm/parque/internal/policy"
)

// Rule IDs that tune the normalizer-level compliance policy.
const (
	RuleCoreI5Generation = "cpu.core_i5.generacion_minima"
	RuleCoreI5Speed      = "cpu.core_i5.velocidad_minima_ghz"
	RuleRyzen5Speed      = "cpu.ryzen5.velocidad_minima_ghz"
	RuleRAMMinimum       = "ram.capacidad_minima_gb"
	RuleStorageMinimum   = "almacenamiento.capacidad_minima_gb"
	RuleStorageType      = "almacenamiento.tipo_requerido"
	RuleOSUnsupported    = "so.no_soportado"
)

// Policy holds the portal-wide hardware minimums applied by the normalizers.
type Policy struct {
	CoreI5MinGeneration int
	CoreI5MinSpeedGHz   float64
	Ryzen5MinSpeedGHz   float64
	MinRAMGB            float64
	MinStorageGB        float64
	RequireSSD          bool
	UnsupportedOS       []string
}

// UnsupportedOS lists operating systems that no longer receive updates.
var UnsupportedOS = []string{"Windows XP", "Windows Vista", "Windows 7", "Windows 8", "Windows 8.1"}

// DefaultPolicy returns the standard minimums.
func DefaultPolicy() Policy {
	return Policy{
		CoreI5MinGeneration: 8,
		CoreI5MinSpeedGHz:   3.0,
		Ryzen5MinSpeedGHz:   3.7,
		MinRAMGB:            16,
		MinStorageGB:        500,
		RequireSSD:          true,
		UnsupportedOS:       UnsupportedOS,
	}
}

// DefaultRules expresses DefaultPolicy as validation rules.
func DefaultRules() []*policy.Rule {
	return []*policy.Rule{
		{
			ID: RuleCoreI5Generation, Name: "Generación mínima Core i5", Field: "procesador",
			Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(8),
			Severity: policy.SeverityError, Blocking: true,
		},
		{
			ID: RuleCoreI5Speed, Name: "Velocidad mínima Core i5", Field: "procesador",
			Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(3.0),
			Severity: policy.SeverityError, Blocking: true,
		},
		{
			ID: RuleRyzen5Speed, Name: "Velocidad mínima Ryzen 5", Field: "procesador",
			Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(3.7),
			Severity: policy.SeverityError, Blocking: true,
		},
		{
			ID: RuleRAMMinimum, Name: "Capacidad mínima de RAM", Field: "ram",
			Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(16),
			Severity: policy.SeverityError, Blocking: true,
		},
		{
			ID: RuleStorageMinimum, Name: "Capacidad mínima de almacenamiento", Field: "almacenamiento",
			Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(500),
			Severity: policy.SeverityError, Blocking: true,
		},
		{
			ID: RuleStorageType, Name: "Tipo de almacenamiento requerido", Field: "almacenamiento",
			Kind: policy.KindEnum, Operator: policy.OpIn, Values: []string{"SSD"},
			Severity: policy.SeverityError, Blocking: true,
		},
		{
			ID: RuleOSUnsupported, Name: "Sistema operativo sin soporte", Field: "sistema_operativo",
			Kind: policy.KindEnum, Operator: policy.OpNotIn, Values: UnsupportedOS,
			Severity: policy.SeverityError, Blocking: true,
		},
	}
}

// PolicyFromRules overlays the unscoped rules in rs on DefaultPolicy.
// A nil set yields the defaults.
func PolicyFromRules(rs *policy.RuleSet) Policy {
	return PolicyFor(rs, "", "")
}

// PolicyFor overlays the rules governing provider and site on DefaultPolicy.
// A rule variant scoped to them wins over the unscoped one.
func PolicyFor(rs *policy.RuleSet, provider, site string) Policy {
	p := DefaultPolicy()
	if rs == nil {
		return p
	}
	threshold := func(id string, def float64) float64 {
		return rs.ThresholdFor(id, provider, site, def)
	}
	p.CoreI5MinGeneration = int(threshold(RuleCoreI5Generation, float64(p.CoreI5MinGeneration)))
	p.CoreI5MinSpeedGHz = threshold(RuleCoreI5Speed, p.CoreI5MinSpeedGHz)
	p.Ryzen5MinSpeedGHz = threshold(RuleRyzen5Speed, p.Ryzen5MinSpeedGHz)
	p.MinRAMGB = threshold(RuleRAMMinimum, p.MinRAMGB)
	p.MinStorageGB = threshold(RuleStorageMinimum, p.MinStorageGB)
	if r, ok := rs.Resolve(RuleStorageType, provider, site); ok {
		p.RequireSSD = r.IsActive()
	}
	if r, ok := rs.Resolve(RuleOSUnsupported, provider, site); ok {
		if r.IsActive() {
			p.UnsupportedOS = r.Values
		} else {
			p.UnsupportedOS = nil
		}
	}
	return p
}
