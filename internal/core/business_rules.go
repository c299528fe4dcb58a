package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/parque/internal/normalize"
	"github.com/JonMunkholm/parque/internal/policy"
)

// Business rule IDs.
const (
	RuleRAMMinimum        = "negocio.ram_minima"
	RuleCPUPerformance    = "negocio.cpu_rendimiento"
	RuleOSUnsupported     = "negocio.so_sin_soporte"
	RuleOSDeprecated      = "negocio.so_por_deprecar"
	RuleLegacyBrowser     = "negocio.navegador_legado"
	RuleBrowserVersion    = "negocio.navegador_version_minima"
	RuleAntivirusMissing  = "negocio.antivirus_ausente"
	RuleAntivirusStale    = "negocio.antivirus_desactualizado"
	RuleAntivirusBasic    = "negocio.antivirus_basico"
	RuleDownloadMinimum   = "negocio.descarga_minima"
	RuleUploadMinimum     = "negocio.subida_minima"
	RuleDiskMinimum       = "negocio.disco_minimo"
	RuleHDDMinimum        = "negocio.disco_hdd_minimo"
	RuleHeadsetRequired   = "negocio.diadema_requerida"
	RuleRequiredFields    = "negocio.campos_requeridos"
	ruleCPUCoresThreshold = "negocio.cpu_nucleos_minimos"
)

// Per-attention thresholds. A rules file overrides them with threshold rules
// named "<prefix>.<ATENCION>", e.g. "negocio.ram_minima.SOPORTE".
var (
	ramByAttention = map[string]float64{
		normalize.AttentionInbound:  4,
		normalize.AttentionOutbound: 4,
		normalize.AttentionEmail:    4,
		normalize.AttentionMixed:    6,
		normalize.AttentionChat:     6,
		normalize.AttentionSupport:  8,
	}
	downloadByAttention = map[string]float64{
		normalize.AttentionInbound:  10,
		normalize.AttentionOutbound: 10,
		normalize.AttentionMixed:    10,
		normalize.AttentionChat:     5,
		normalize.AttentionEmail:    5,
		normalize.AttentionSupport:  15,
	}
	uploadByAttention = map[string]float64{
		normalize.AttentionInbound:  5,
		normalize.AttentionOutbound: 5,
		normalize.AttentionMixed:    5,
		normalize.AttentionChat:     2,
		normalize.AttentionEmail:    2,
		normalize.AttentionSupport:  5,
	}
	browserFloors = map[string]float64{
		"Chrome":  120,
		"Edge":    120,
		"Firefox": 115,
		"Safari":  16,
		"Opera":   100,
	}
	voiceAttention = []string{
		normalize.AttentionInbound, normalize.AttentionOutbound,
		normalize.AttentionMixed, normalize.AttentionSupport,
	}
	requiredFields = []string{"tipo_atencion", "usuario_id"}
)

// ThresholdRules returns the auxiliary per-attention and per-browser
// thresholds as declarative rules.
func ThresholdRules() []*policy.Rule {
	var out []*policy.Rule
	add := func(prefix, field, label string, table map[string]float64) {
		for _, key := range sortedKeys(table) {
			out = append(out, &policy.Rule{
				ID:       prefix + "." + key,
				Name:     fmt.Sprintf("%s (%s)", label, key),
				Field:    field,
				Kind:     policy.KindThreshold,
				Operator: policy.OpGreaterEq,
				Min:      policy.Float(table[key]),
				Severity: policy.SeverityInfo,
			})
		}
	}
	add(RuleRAMMinimum, "ram_gb", "RAM mínima", ramByAttention)
	add(RuleDownloadMinimum, "velocidad_descarga_mbps", "Descarga mínima", downloadByAttention)
	add(RuleUploadMinimum, "velocidad_subida_mbps", "Subida mínima", uploadByAttention)
	add("negocio.navegador_minimo", "navegador_version", "Versión mínima", browserFloors)
	out = append(out, &policy.Rule{
		ID: ruleCPUCoresThreshold, Name: "Núcleos mínimos", Field: "cpu_nucleos",
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(2),
		Severity: policy.SeverityInfo,
	})
	return out
}

// attentionMinimum resolves the per-attention threshold governing rec's
// provider and site. OTRO and unknown attention types fall back to the base
// rule's own minimum.
func attentionMinimum(rules *policy.RuleSet, prefix string, rec *InventoryRecord, table map[string]float64) float64 {
	if def, ok := table[rec.AttentionType]; ok {
		return rules.ThresholdFor(prefix+"."+rec.AttentionType, rec.Provider, rec.Site, def)
	}
	var def float64
	if br, ok := LookupBusinessRule(prefix); ok && br.Min != nil {
		def = *br.Min
	}
	return rules.ThresholdFor(prefix, rec.Provider, rec.Site, def)
}

func gb(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + " GB"
}

func mbps(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + " Mbps"
}

func init() {
	RegisterBusinessRule(BusinessRule{
		ID: RuleRAMMinimum, Name: "RAM mínima por tipo de atención", Field: "ram_gb", Code: "BR001",
		Severity: SeverityError, Order: 10,
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(4),
		Summary:         "Memoria RAM inferior al mínimo del tipo de atención",
		SuggestedAction: "Ampliar la memoria RAM del equipo",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.RAMGB == nil {
				return NotApplicable, Violation{}
			}
			floor := attentionMinimum(env.Rules, RuleRAMMinimum, rec, ramByAttention)
			if *rec.RAMGB >= floor {
				return Pass, Violation{}
			}
			return Fail, Violation{
				Message:  fmt.Sprintf("RAM de %s inferior al mínimo de %s para atención %s", gb(*rec.RAMGB), gb(floor), attentionLabel(rec)),
				Value:    gb(*rec.RAMGB),
				Expected: "≥ " + gb(floor),
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleCPUPerformance, Name: "Rendimiento de CPU", Field: "cpu_velocidad_ghz", Code: "BR002",
		Severity: SeverityWarning, Order: 20,
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(2.0),
		Summary:         "Procesador lento o de un solo núcleo",
		SuggestedAction: "Programar el reemplazo del procesador",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.CPUSpeedGHz == nil && rec.CPUCores == nil {
				return NotApplicable, Violation{}
			}
			minSpeed, _ := env.Rule.Threshold()
			if rec.CPUSpeedGHz != nil && *rec.CPUSpeedGHz < minSpeed {
				return Fail, Violation{
					Message:  fmt.Sprintf("Velocidad de CPU de %.2f GHz inferior a %.1f GHz", *rec.CPUSpeedGHz, minSpeed),
					Value:    fmt.Sprintf("%.2f GHz", *rec.CPUSpeedGHz),
					Expected: fmt.Sprintf("≥ %.1f GHz", minSpeed),
				}
			}
			minCores := int(env.Rules.ThresholdFor(ruleCPUCoresThreshold, rec.Provider, rec.Site, 2))
			if rec.CPUCores != nil && *rec.CPUCores < minCores {
				return Fail, Violation{
					Message:  fmt.Sprintf("Procesador de %d núcleo(s), se recomiendan al menos %d", *rec.CPUCores, minCores),
					Value:    strconv.Itoa(*rec.CPUCores),
					Expected: "≥ " + strconv.Itoa(minCores),
				}
			}
			return Pass, Violation{}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleOSUnsupported, Name: "Sistema operativo sin soporte", Field: "so_nombre", Code: "BR003",
		Severity: SeverityError, Order: 30,
		Kind: policy.KindEnum, Operator: policy.OpNotIn, Values: normalize.UnsupportedOS,
		Summary:         "Sistema operativo sin soporte del fabricante",
		SuggestedAction: "Actualizar a Windows 10 o superior",
		Check:           enumCheck(func(r *InventoryRecord) string { return r.OSName }, "El sistema operativo %s ya no recibe soporte"),
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleOSDeprecated, Name: "Sistema operativo próximo a perder soporte", Field: "so_nombre", Code: "BR004",
		Severity: SeverityWarning, Order: 40,
		Kind: policy.KindEnum, Operator: policy.OpNotIn, Values: []string{"Windows 10"},
		Summary:         "Sistema operativo próximo a perder soporte",
		SuggestedAction: "Planificar la migración a Windows 11",
		Check:           enumCheck(func(r *InventoryRecord) string { return r.OSName }, "El sistema operativo %s perderá soporte próximamente"),
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleLegacyBrowser, Name: "Navegador obsoleto", Field: "navegador_nombre", Code: "BR005",
		Severity: SeverityError, Order: 50,
		Kind: policy.KindEnum, Operator: policy.OpNotIn, Values: []string{normalize.BrowserIE},
		Summary:         "Navegador obsoleto en uso",
		SuggestedAction: "Instalar Microsoft Edge o Google Chrome",
		Check:           enumCheck(func(r *InventoryRecord) string { return r.BrowserName }, "El navegador %s no es compatible con las plataformas de atención"),
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleBrowserVersion, Name: "Versión mínima de navegador", Field: "navegador_version", Code: "BR006",
		Severity: SeverityWarning, Order: 60,
		Kind: policy.KindEnum, Operator: policy.OpIn, Values: sortedKeys(browserFloors),
		Summary:         "Versión de navegador inferior a la mínima",
		SuggestedAction: "Actualizar el navegador a la última versión",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			def, ok := browserFloors[rec.BrowserName]
			if !ok || rec.BrowserVersion == nil || !env.Rule.Check(rec.BrowserName) {
				return NotApplicable, Violation{}
			}
			floor := env.Rules.ThresholdFor("negocio.navegador_minimo."+rec.BrowserName, rec.Provider, rec.Site, def)
			if float64(*rec.BrowserVersion) >= floor {
				return Pass, Violation{}
			}
			return Fail, Violation{
				Message:  fmt.Sprintf("%s %d es inferior a la versión mínima %.0f", rec.BrowserName, *rec.BrowserVersion, floor),
				Value:    strconv.Itoa(*rec.BrowserVersion),
				Expected: fmt.Sprintf("≥ %.0f", floor),
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleAntivirusMissing, Name: "Antivirus ausente", Field: "antivirus_marca", Code: "BR007",
		Severity: SeverityError, Order: 70,
		Kind: policy.KindEnum, Operator: policy.OpNotIn, Values: []string{normalize.AntivirusNone},
		Summary:         "Equipo sin antivirus",
		SuggestedAction: "Instalar el antivirus corporativo",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.AntivirusBrand != "" && env.Rule.Check(rec.AntivirusBrand) {
				return Pass, Violation{}
			}
			return Fail, Violation{
				Message: "El equipo no reporta antivirus instalado",
				Value:   rec.AntivirusBrand,
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleAntivirusStale, Name: "Antivirus desactualizado", Field: "antivirus_actualizado", Code: "BR008",
		Severity: SeverityWarning, Order: 80,
		Kind: policy.KindEnum, Operator: policy.OpEquals, Values: []string{"true"},
		Summary:         "Definiciones de antivirus desactualizadas",
		SuggestedAction: "Forzar la actualización de firmas del antivirus",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.AntivirusUpdated == nil {
				return NotApplicable, Violation{}
			}
			if env.Rule.Check(strconv.FormatBool(*rec.AntivirusUpdated)) {
				return Pass, Violation{}
			}
			return Fail, Violation{
				Message: fmt.Sprintf("Las definiciones de %s no están actualizadas", fallback(rec.AntivirusBrand, "antivirus")),
				Value:   "no",
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleAntivirusBasic, Name: "Antivirus básico", Field: "antivirus_marca", Code: "BR009",
		Severity: SeverityInfo, Order: 90,
		Kind: policy.KindEnum, Operator: policy.OpNotIn, Values: []string{"Windows Defender", "Avast", "AVG", "Panda"},
		Summary:         "Antivirus gratuito o básico",
		SuggestedAction: "Evaluar una solución de protección empresarial",
		Check:           enumCheck(func(r *InventoryRecord) string { return r.AntivirusBrand }, "El antivirus %s es una solución básica"),
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleDownloadMinimum, Name: "Velocidad de descarga mínima", Field: "velocidad_descarga_mbps", Code: "BR010",
		Severity: SeverityError, Order: 100,
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(10),
		Summary:         "Velocidad de descarga inferior al mínimo",
		SuggestedAction: "Solicitar un plan de internet de mayor velocidad",
		Check:           speedCheck(func(r *InventoryRecord) *float64 { return r.DownloadMbps }, RuleDownloadMinimum, downloadByAttention, "descarga"),
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleUploadMinimum, Name: "Velocidad de subida mínima", Field: "velocidad_subida_mbps", Code: "BR011",
		Severity: SeverityError, Order: 110,
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(5),
		Summary:         "Velocidad de subida inferior al mínimo",
		SuggestedAction: "Solicitar un plan de internet de mayor velocidad",
		Check:           speedCheck(func(r *InventoryRecord) *float64 { return r.UploadMbps }, RuleUploadMinimum, uploadByAttention, "subida"),
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleDiskMinimum, Name: "Capacidad de disco mínima", Field: "disco_capacidad_gb", Code: "BR012",
		Severity: SeverityError, Order: 120,
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(100),
		Summary:         "Capacidad de disco inferior al mínimo",
		SuggestedAction: "Reemplazar el disco por uno de mayor capacidad",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.DiskGB == nil {
				return NotApplicable, Violation{}
			}
			if env.Rule.Check(*rec.DiskGB) {
				return Pass, Violation{}
			}
			floor, _ := env.Rule.Threshold()
			return Fail, Violation{
				Message:  fmt.Sprintf("Disco de %s inferior al mínimo de %s", gb(*rec.DiskGB), gb(floor)),
				Value:    gb(*rec.DiskGB),
				Expected: "≥ " + gb(floor),
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleHDDMinimum, Name: "Capacidad mínima de disco HDD", Field: "disco_capacidad_gb", Code: "BR013",
		Severity: SeverityWarning, Order: 130,
		Kind: policy.KindThreshold, Operator: policy.OpGreaterEq, Min: policy.Float(250),
		Summary:         "Disco HDD de baja capacidad",
		SuggestedAction: "Migrar a un disco SSD de al menos 250 GB",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.DiskGB == nil || rec.DiskType != normalize.StorageHDD {
				return NotApplicable, Violation{}
			}
			if env.Rule.Check(*rec.DiskGB) {
				return Pass, Violation{}
			}
			floor, _ := env.Rule.Threshold()
			return Fail, Violation{
				Message:  fmt.Sprintf("Disco HDD de %s inferior a %s", gb(*rec.DiskGB), gb(floor)),
				Value:    gb(*rec.DiskGB),
				Expected: "≥ " + gb(floor),
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleHeadsetRequired, Name: "Diadema requerida para atención por voz", Field: "diadema_marca", Code: "BR014",
		Severity: SeverityError, Order: 140,
		Kind: policy.KindEnum, Operator: policy.OpIn, Values: voiceAttention,
		Summary:         "Puesto de voz sin diadema",
		SuggestedAction: "Asignar una diadema al puesto",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			if rec.AttentionType == "" || !env.Rule.Check(rec.AttentionType) {
				return NotApplicable, Violation{}
			}
			if rec.HasHeadset {
				return Pass, Violation{}
			}
			return Fail, Violation{
				Message: fmt.Sprintf("Puesto de atención %s sin diadema registrada", rec.AttentionType),
				Value:   rec.HeadsetBrand,
			}
		},
	})

	RegisterBusinessRule(BusinessRule{
		ID: RuleRequiredFields, Name: "Campos requeridos", Field: "campos_requeridos", Code: "BR015",
		Severity: SeverityError, Order: 150,
		Kind: policy.KindEnum, Operator: policy.OpIn, Values: requiredFields,
		Summary:         "Campos requeridos vacíos",
		SuggestedAction: "Completar los datos de identificación del equipo",
		Check: func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
			values := map[string]string{
				"proveedor":     rec.Provider,
				"sitio":         rec.Site,
				"tipo_atencion": rec.AttentionType,
				"usuario_id":    rec.UserID,
				"hostname":      rec.Hostname,
				"so_nombre":     rec.OSName,
				"cpu_modelo":    rec.CPU.Original,
			}
			var missing []string
			for _, f := range env.Rule.Values {
				if strings.TrimSpace(values[f]) == "" {
					missing = append(missing, f)
				}
			}
			if len(missing) == 0 {
				return Pass, Violation{}
			}
			return Fail, Violation{
				Message: "Campos requeridos vacíos: " + strings.Join(missing, ", "),
				Value:   strings.Join(missing, ", "),
			}
		},
	})
}

// enumCheck fires when the declarative ENUM rule rejects the value.
func enumCheck(get func(*InventoryRecord) string, format string) func(*InventoryRecord, RuleEnv) (Outcome, Violation) {
	return func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
		v := get(rec)
		if v == "" {
			return NotApplicable, Violation{}
		}
		if env.Rule.Check(v) {
			return Pass, Violation{}
		}
		return Fail, Violation{Message: fmt.Sprintf(format, v), Value: v}
	}
}

func speedCheck(get func(*InventoryRecord) *float64, prefix string, table map[string]float64, label string) func(*InventoryRecord, RuleEnv) (Outcome, Violation) {
	return func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation) {
		v := get(rec)
		if v == nil {
			return NotApplicable, Violation{}
		}
		floor := attentionMinimum(env.Rules, prefix, rec, table)
		if *v >= floor {
			return Pass, Violation{}
		}
		return Fail, Violation{
			Message:  fmt.Sprintf("Velocidad de %s de %s inferior al mínimo de %s para atención %s", label, mbps(*v), mbps(floor), attentionLabel(rec)),
			Value:    mbps(*v),
			Expected: "≥ " + mbps(floor),
		}
	}
}

func attentionLabel(rec *InventoryRecord) string {
	return fallback(rec.AttentionType, "no especificada")
}
