package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/parque/internal/normalize"
	"github.com/JonMunkholm/parque/internal/policy"
)

// Row-level finding codes.
const (
	CodeProcessorUnknown  = "NRM001"
	CodeModelUnknown      = "NRM002"
	CodeUnparsable        = "NRM003"
	CodeUnrecognized      = "NRM004"
	CodeNormalizerFailure = "NRM005"
	CodeScoringFailure    = "SCR001"
	CodeIncompleteRow     = "ROW001"
	CodeDuplicateHost     = "ROW002"
	CodeRowPanic          = "SYS001"
)

// MinMappedCells is the number of non-empty mapped cells below which a row
// is INCOMPLETE.
const MinMappedCells = 3

// ProcessorOptions configures a RowProcessor for one job.
type ProcessorOptions struct {
	Rules      *policy.RuleSet // nil uses DefaultRuleSet
	StrictMode bool
	Skip       []string // business rule IDs to skip
	Meta       JobMeta
	JobID      string
}

// RowResult is the outcome of processing one input row.
type RowResult struct {
	Record  *InventoryRecord
	Skipped bool // blank row, no record produced
}

// RowProcessor turns mapped rows into annotated InventoryRecords. It is safe
// for concurrent use and keeps no per-row state; duplicate hostnames are
// resolved afterwards, in file order, by a HostIndex.
type RowProcessor struct {
	mapping     ColumnMapping
	opts        ProcessorOptions
	rules       *policy.RuleSet
	policy      normalize.Policy // unscoped; see policyFor
	scoped      bool
	schema      *SchemaValidator
	business    *BusinessValidator
	corrections map[string][]*policy.Rule
}

// NewRowProcessor prepares a processor for rows described by mapping.
func NewRowProcessor(mapping ColumnMapping, opts ProcessorOptions) *RowProcessor {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRuleSet()
	}
	p := &RowProcessor{
		mapping:     mapping,
		opts:        opts,
		rules:       rules,
		policy:      normalize.PolicyFromRules(rules),
		scoped:      rules.Scoped(),
		schema:      NewSchemaValidator(opts.StrictMode),
		business:    NewBusinessValidator(rules),
		corrections: make(map[string][]*policy.Rule),
	}
	for _, field := range MappedFields() {
		if rs := rules.Corrections(field); len(rs) > 0 {
			p.corrections[field] = rs
		}
	}
	return p
}

// Rules returns the rule set the processor evaluates.
func (p *RowProcessor) Rules() *policy.RuleSet {
	return p.rules
}

// Process runs one row through normalization, both validators and scoring.
// It never panics; an internal failure marks the record ERROR.
func (p *RowProcessor) Process(row Row) (res RowResult) {
	if nonEmptyCells(row.Cells) == 0 {
		return RowResult{Skipped: true}
	}

	rec := p.newRecord(row)
	res.Record = rec

	defer func() {
		if r := recover(); r != nil {
			rec.State = StateError
			rec.OverallCompliance = false
			rec.addFinding(Finding{
				Type:            ErrorSystem,
				Code:            CodeRowPanic,
				Field:           "fila",
				Severity:        SeverityCritical,
				Message:         fmt.Sprintf("Error interno procesando la fila %d: %v", row.Number, r),
				SuggestedAction: "Revisar el contenido de la fila y reportar el caso",
				Summary:         "Error interno procesando una fila",
			})
		}
	}()

	cells := p.extract(row)
	if countPresent(cells) < MinMappedCells {
		rec.State = StateIncomplete
		rec.addFinding(Finding{
			Type:            ErrorParsing,
			Code:            CodeIncompleteRow,
			Field:           "fila",
			Severity:        SeverityWarning,
			Message:         fmt.Sprintf("La fila %d tiene menos de %d columnas reconocidas con datos", row.Number, MinMappedCells),
			SuggestedAction: "Completar la fila o eliminarla del archivo",
			Summary:         "Fila con datos insuficientes",
		})
		rec.OverallFailureReason = "Fila incompleta"
		return res
	}

	p.normalizeInto(rec, cells, p.policyFor(normalize.Text(cells[FieldProvider]), normalize.Text(cells[FieldSite])))

	sr := p.schema.Validate(recordValues(rec, cells))
	for _, list := range [][]Finding{sr.Errors, sr.Warnings, sr.Info} {
		for _, f := range list {
			rec.addFinding(f)
		}
	}

	br := p.business.Validate(rec, ValidateOptions{Skip: p.opts.Skip})
	for _, list := range [][]Finding{br.Errors, br.Warnings, br.Info} {
		for _, f := range list {
			rec.addFinding(f)
		}
	}
	rec.ValidationScore = br.Score

	rec.Speed = p.speedResult(rec, cells[FieldDownload], cells[FieldUpload])
	if _, err := normalize.Safe(false, func() bool { scoreRecord(rec, p.rules); return true }); err != nil {
		rec.addFinding(Finding{
			Type:     ErrorScoring,
			Code:     CodeScoringFailure,
			Field:    "score_general",
			Severity: SeverityError,
			Message:  "No se pudo calcular el puntaje: " + err.Error(),
			Summary:  "Fallo en el cálculo de puntajes",
		})
	}
	applyCompliance(rec)

	if len(rec.Errors) > 0 {
		rec.State = StateError
	} else {
		rec.State = StateValidated
	}
	return res
}

func (p *RowProcessor) newRecord(row Row) *InventoryRecord {
	original := make(map[string]string, len(row.Cells))
	for k, v := range row.Cells {
		original[k] = v
	}
	return &InventoryRecord{
		ID:             uuid.NewString(),
		JobID:          p.opts.JobID,
		Row:            row.Number,
		AuditID:        p.opts.Meta.AuditID,
		AuditCycle:     p.opts.Meta.AuditCycle,
		AuditVersion:   p.opts.Meta.AuditVersion,
		State:          StateProcessing,
		OriginalValues: original,
	}
}

// extract reads every mapped cell, cleaned and auto-corrected. Provider and
// site are read first, with unscoped corrections only, and then decide which
// scoped corrections apply to the row.
func (p *RowProcessor) extract(row Row) map[string]string {
	provider := normalize.Text(p.cell(row, FieldProvider, "", ""))
	site := normalize.Text(p.cell(row, FieldSite, "", ""))

	out := make(map[string]string, p.mapping.Mapped())
	for _, field := range MappedFields() {
		if _, ok := p.mapping.Column(field); !ok {
			continue
		}
		out[field] = p.cell(row, field, provider, site)
	}
	return out
}

func (p *RowProcessor) cell(row Row, field, provider, site string) string {
	v := CleanCell(p.mapping.Value(row.Cells, field))
	for _, r := range p.corrections[field] {
		if r.AppliesTo(provider, site) {
			v = r.Correct(v)
		}
	}
	return strings.TrimSpace(v)
}

// policyFor returns the normalizer thresholds for a provider and site.
func (p *RowProcessor) policyFor(provider, site string) normalize.Policy {
	if !p.scoped {
		return p.policy
	}
	return normalize.PolicyFor(p.rules, provider, site)
}

func countPresent(cells map[string]string) int {
	n := 0
	for _, v := range cells {
		if v != "" {
			n++
		}
	}
	return n
}

// safely runs a normalizer, recording a NORMALIZATION finding and returning
// fallback if it panics.
func safely[T any](rec *InventoryRecord, field string, fallback T, fn func() T) T {
	out, err := normalize.Safe(fallback, fn)
	if err != nil {
		rec.addFinding(Finding{
			Type:     ErrorNormalization,
			Code:     CodeNormalizerFailure,
			Field:    field,
			Severity: SeverityError,
			Message:  fmt.Sprintf("No se pudo normalizar %s: %v", field, err),
			Summary:  "Fallo interno del normalizador de " + field,
		})
	}
	return out
}

func unparsable(rec *InventoryRecord, field, raw, what string) {
	rec.addFinding(Finding{
		Type:            ErrorNormalization,
		Code:            CodeUnparsable,
		Field:           field,
		Severity:        SeverityWarning,
		Message:         fmt.Sprintf("No se pudo interpretar %s: %q", what, raw),
		Value:           raw,
		SuggestedAction: "Corregir el valor en el archivo de origen",
		Summary:         "Valor no interpretable en " + field,
	})
}

func unrecognized(rec *InventoryRecord, field, raw, what string) {
	rec.addFinding(Finding{
		Type:     ErrorNormalization,
		Code:     CodeUnrecognized,
		Field:    field,
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("%s no reconocido: %q", what, raw),
		Value:    raw,
		Summary:  what + " no reconocido",
	})
}

func failed(raw, reason string) normalize.Result {
	return normalize.Result{Original: raw, Reason: reason}
}

// normalizeInto fills the typed record fields from the cleaned cells.
func (p *RowProcessor) normalizeInto(rec *InventoryRecord, cells map[string]string, pol normalize.Policy) {
	p.identify(rec, cells)
	p.hardware(rec, cells, pol)
	p.software(rec, cells, pol)
	p.peripherals(rec, cells)
	p.connectivity(rec, cells)
}

func (p *RowProcessor) identify(rec *InventoryRecord, cells map[string]string) {
	if raw := cells[FieldAuditDate]; raw != "" {
		if t, ok := ParseDate(raw); ok {
			rec.AuditDate = &t
		} else {
			unparsable(rec, "fecha_auditoria", raw, "la fecha de auditoría")
		}
	}
	rec.Provider = normalize.Text(cells[FieldProvider])
	rec.Site = normalize.Text(cells[FieldSite])
	rec.UserID = normalize.Text(cells[FieldUserID])
	rec.Hostname = strings.ReplaceAll(normalize.Text(cells[FieldHostname]), " ", "")

	if raw := cells[FieldAttention]; raw != "" {
		att := safely(rec, "tipo_atencion", failed(raw, "Tipo de atención no reconocido"), func() normalize.Result {
			return normalize.NormalizeAttention(raw)
		})
		rec.AttentionType = fallback(att.Normalized, normalize.AttentionOther)
		if !att.MeetsRequirements {
			unrecognized(rec, "tipo_atencion", raw, "Tipo de atención")
		}
	}
}

func (p *RowProcessor) hardware(rec *InventoryRecord, cells map[string]string, pol normalize.Policy) {
	raw := cells[FieldProcessor]
	run := func(s string) normalize.Processor {
		return safely(rec, "cpu_modelo",
			normalize.Processor{Result: failed(s, "No se pudo normalizar el procesador"), Brand: normalize.Other, Model: normalize.Unknown},
			func() normalize.Processor { return normalize.NormalizeProcessor(s, pol) })
	}
	cpu := run(raw)
	if cpu.SpeedGHz == 0 && raw != "" {
		if ghz, ok := explicitGHz(cells[FieldCPUSpeed]); ok {
			cpu = run(raw + " @ " + strconv.FormatFloat(ghz, 'f', -1, 64) + " GHz")
			cpu.Original = raw
		}
	}
	rec.CPU = cpu.Result
	rec.CPUBrand = cpu.Brand
	rec.CPUModel = cpu.Model
	rec.CPUModelNumber = cpu.ModelNumber
	if cpu.Generation > 0 {
		rec.CPUGeneration = intPtr(cpu.Generation)
	}
	if cpu.SpeedGHz > 0 {
		rec.CPUSpeedGHz = floatPtr(cpu.SpeedGHz)
	} else if ghz, ok := explicitGHz(cells[FieldCPUSpeed]); ok {
		rec.CPUSpeedGHz = floatPtr(ghz)
	}
	if cpu.Cores > 0 {
		rec.CPUCores = intPtr(cpu.Cores)
	} else if n, ok := ParseInt(cells[FieldCPUCores]); ok && n > 0 {
		rec.CPUCores = intPtr(n)
	}

	switch {
	case raw == "":
		rec.addFinding(Finding{
			Type: ErrorNormalization, Code: CodeProcessorUnknown, Field: "cpu_modelo", Severity: SeverityError,
			Message:         "Procesador no especificado",
			SuggestedAction: "Registrar el modelo de procesador del equipo",
		})
	case cpu.Brand == normalize.Other && cpu.Model == normalize.Unknown:
		rec.addFinding(Finding{
			Type: ErrorNormalization, Code: CodeProcessorUnknown, Field: "cpu_modelo", Severity: SeverityError,
			Message:         fmt.Sprintf("Procesador no reconocido: %q", raw),
			Value:           raw,
			SuggestedAction: "Registrar marca y modelo del procesador",
			Summary:         "Procesador no reconocido",
		})
	case cpu.Model == normalize.Unknown:
		rec.addFinding(Finding{
			Type: ErrorNormalization, Code: CodeModelUnknown, Field: "cpu_modelo", Severity: SeverityWarning,
			Message: fmt.Sprintf("Modelo de procesador %s no identificado: %q", cpu.Brand, raw),
			Value:   raw,
			Summary: "Modelo de procesador no identificado",
		})
	}

	ramRaw := cells[FieldRAM]
	mem := safely(rec, "ram_gb",
		normalize.Memory{Result: failed(ramRaw, "No se pudo normalizar la memoria"), Type: normalize.DefaultMemoryType},
		func() normalize.Memory { return normalize.NormalizeMemory(ramRaw, pol) })
	rec.RAM = mem.Result
	if ramRaw != "" {
		rec.RAMType = mem.Type
		if mem.CapacityGB > 0 {
			rec.RAMGB = floatPtr(mem.CapacityGB)
		} else {
			unparsable(rec, "ram_gb", ramRaw, "la capacidad de RAM")
		}
		if mem.SpeedMHz > 0 {
			rec.RAMSpeedMHz = intPtr(mem.SpeedMHz)
		}
	}
	if t := cells[FieldRAMType]; t != "" {
		if mt := normalize.NormalizeMemory(t, pol).Type; mt != normalize.DefaultMemoryType || rec.RAMType == "" {
			rec.RAMType = mt
		}
	}

	diskRaw := cells[FieldStorage]
	runDisk := func(s string) normalize.Storage {
		return safely(rec, "disco_capacidad_gb",
			normalize.Storage{Result: failed(s, "No se pudo normalizar el almacenamiento"), Type: normalize.StorageUnspecified},
			func() normalize.Storage { return normalize.NormalizeStorage(s, pol) })
	}
	disk := runDisk(diskRaw)
	if disk.Type == normalize.StorageUnspecified && diskRaw != "" {
		if dt := normalize.NormalizeStorage(cells[FieldDiskType], pol).Type; dt != normalize.StorageUnspecified {
			disk = runDisk(diskRaw + " " + dt)
			disk.Original = diskRaw
		}
	}
	rec.Storage = disk.Result
	if diskRaw != "" {
		rec.DiskType = disk.Type
		if disk.CapacityGB > 0 {
			rec.DiskGB = floatPtr(disk.CapacityGB)
		} else {
			unparsable(rec, "disco_capacidad_gb", diskRaw, "la capacidad de almacenamiento")
		}
	} else if dt := cells[FieldDiskType]; dt != "" {
		rec.DiskType = normalize.NormalizeStorage(dt, pol).Type
	}
	if raw := cells[FieldDiskFree]; raw != "" {
		if gb, ok := normalize.ParseCapacityGB(raw); ok {
			rec.DiskFreeGB = floatPtr(round2(gb))
		} else {
			unparsable(rec, "disco_libre_gb", raw, "el espacio libre")
		}
	}
}

// explicitGHz reads a dedicated speed column. Values above 100 are MHz.
func explicitGHz(raw string) (float64, bool) {
	v, ok := ParseLeadingNumber(raw)
	if !ok || v <= 0 {
		return 0, false
	}
	if v > 100 {
		v /= 1000
	}
	return round2(v), true
}

func (p *RowProcessor) software(rec *InventoryRecord, cells map[string]string, pol normalize.Policy) {
	osRaw := cells[FieldOS]
	osr := safely(rec, "so_nombre",
		normalize.OperatingSystem{Result: failed(osRaw, "No se pudo normalizar el sistema operativo")},
		func() normalize.OperatingSystem { return normalize.NormalizeOS(osRaw, pol) })
	rec.OS = osr.Result
	rec.OSName = osr.Name
	rec.OSVersion = fallback(osr.Version, strings.ToUpper(normalize.Text(cells[FieldOSVersion])))
	rec.OSBuild = fallback(osr.Build, normalize.Text(cells[FieldOSBuild]))
	rec.OSLicense = normalize.Text(cells[FieldOSLicense])
	if osr.Name == normalize.Other {
		unrecognized(rec, "so_nombre", osRaw, "Sistema operativo")
	}

	if raw := cells[FieldBrowser]; raw != "" {
		b := safely(rec, "navegador_nombre", normalize.Browser{Result: failed(raw, "Navegador no reconocido"), Name: normalize.Other},
			func() normalize.Browser { return normalize.NormalizeBrowser(raw) })
		rec.BrowserName = b.Name
		if b.Version > 0 {
			rec.BrowserVersion = intPtr(b.Version)
		}
		if b.Name == normalize.Other {
			unrecognized(rec, "navegador_nombre", raw, "Navegador")
		}
	}
	if rec.BrowserVersion == nil {
		if v, ok := ParseLeadingNumber(cells[FieldBrowserVersion]); ok && v > 0 {
			rec.BrowserVersion = intPtr(int(v))
		}
	}

	if raw := cells[FieldAntivirus]; raw != "" {
		av := safely(rec, "antivirus_marca", normalize.Antivirus{Result: failed(raw, "Antivirus no reconocido"), Brand: normalize.Other},
			func() normalize.Antivirus { return normalize.NormalizeAntivirus(raw) })
		rec.AntivirusBrand = av.Brand
		rec.AntivirusFree = av.Free
	}
	rec.AntivirusVersion = normalize.Text(cells[FieldAVVersion])
	if raw := cells[FieldAVUpdated]; raw != "" {
		rec.AntivirusUpdated = normalize.Bool(raw)
	}
}

func (p *RowProcessor) peripherals(rec *InventoryRecord, cells map[string]string) {
	brand, model := cells[FieldHeadset], cells[FieldHeadsetModel]
	rec.HeadsetBrand = normalize.Text(brand)
	rec.HeadsetModel = normalize.Text(model)
	rec.HasHeadset = normalize.Present(brand) || normalize.Present(model)
	if raw := cells[FieldHeadsetType]; raw != "" {
		rec.HeadsetType = normalize.NormalizeHeadsetType(raw).Normalized
	}
	if raw := cells[FieldWebcam]; raw != "" {
		if b := normalize.Bool(raw); b != nil {
			rec.Webcam = b
		} else {
			present := normalize.Present(raw)
			rec.Webcam = &present
		}
	}
	rec.MicType = normalize.Text(cells[FieldMic])
}

func (p *RowProcessor) connectivity(rec *InventoryRecord, cells map[string]string) {
	rec.ISP = normalize.Text(cells[FieldISP])
	if raw := cells[FieldConnection]; raw != "" {
		rec.ConnectionType = normalize.NormalizeConnection(raw).Normalized
	}
	bandwidth := func(field, name, what string) *float64 {
		raw := cells[field]
		if raw == "" {
			return nil
		}
		if v, ok := normalize.ParseBandwidthMbps(raw); ok {
			return floatPtr(round2(v))
		}
		unparsable(rec, name, raw, what)
		return nil
	}
	rec.DownloadMbps = bandwidth(FieldDownload, "velocidad_descarga_mbps", "la velocidad de descarga")
	rec.UploadMbps = bandwidth(FieldUpload, "velocidad_subida_mbps", "la velocidad de subida")
	if raw := cells[FieldLatency]; raw != "" {
		if v, ok := normalize.ParseLatencyMs(raw); ok {
			rec.LatencyMs = floatPtr(round2(v))
		} else {
			unparsable(rec, "latencia_ms", raw, "la latencia")
		}
	}
}

// speedResult is the connectivity component verdict: download and, when
// reported, upload must reach the attention-type minimums.
func (p *RowProcessor) speedResult(rec *InventoryRecord, downRaw, upRaw string) ComponentResult {
	res := ComponentResult{Original: strings.Trim(downRaw+" / "+upRaw, " /")}
	if rec.DownloadMbps == nil {
		res.Reason = "Velocidad de conexión no especificada"
		return res
	}

	down := *rec.DownloadMbps
	res.Normalized = mbps(down)
	var reasons []string
	if floor := attentionMinimum(p.rules, RuleDownloadMinimum, rec, downloadByAttention); down < floor {
		reasons = append(reasons, fmt.Sprintf("Velocidad de descarga insuficiente (%s), se requiere mínimo %s", mbps(down), mbps(floor)))
	}
	if rec.UploadMbps != nil {
		up := *rec.UploadMbps
		res.Normalized += " / " + mbps(up)
		if floor := attentionMinimum(p.rules, RuleUploadMinimum, rec, uploadByAttention); up < floor {
			reasons = append(reasons, fmt.Sprintf("Velocidad de subida insuficiente (%s), se requiere mínimo %s", mbps(up), mbps(floor)))
		}
	}
	res.MeetsRequirements = len(reasons) == 0
	res.Reason = strings.Join(reasons, ", ")
	return res
}

// applyCompliance ANDs the component verdicts and joins the failing reasons
// in component order.
func applyCompliance(rec *InventoryRecord) {
	var reasons []string
	ok := true
	for _, c := range []ComponentResult{rec.CPU, rec.RAM, rec.Storage, rec.OS, rec.Speed} {
		if c.MeetsRequirements {
			continue
		}
		ok = false
		if c.Reason != "" {
			reasons = append(reasons, c.Reason)
		}
	}
	rec.OverallCompliance = ok
	rec.OverallFailureReason = strings.Join(reasons, "; ")
}

// HostIndex marks repeated hostnames within one job. It is not safe for
// concurrent use: feed it the records in file order so the first occurrence
// keeps its state.
type HostIndex struct {
	first map[string]int // lower-cased hostname -> row of first occurrence
}

// NewHostIndex returns an empty index.
func NewHostIndex() *HostIndex {
	return &HostIndex{first: make(map[string]int)}
}

// Mark claims rec's hostname. A later record with the same hostname becomes
// DUPLICATE with a finding pointing at the first one; INCOMPLETE records and
// blank hostnames are left alone.
func (h *HostIndex) Mark(rec *InventoryRecord) bool {
	key := strings.ToLower(rec.Hostname)
	if key == "" || rec.State == StateIncomplete {
		return false
	}
	first, seen := h.first[key]
	if !seen {
		h.first[key] = rec.Row
		return false
	}
	rec.addFinding(Finding{
		Type:            ErrorValidation,
		Code:            CodeDuplicateHost,
		Field:           "hostname",
		Severity:        SeverityWarning,
		Message:         fmt.Sprintf("Hostname %s duplicado, ya registrado en la fila %d", rec.Hostname, first),
		Value:           rec.Hostname,
		SuggestedAction: "Verificar si el equipo fue reportado dos veces",
		Summary:         "Hostname duplicado dentro del archivo",
	})
	rec.State = StateDuplicate
	return true
}

// recordValues builds the schema value map. Cells that could not be parsed
// keep their raw text so the schema reports a type problem.
func recordValues(rec *InventoryRecord, cells map[string]string) map[string]any {
	v := make(map[string]any, 32)
	str := func(k, s string) {
		if s != "" {
			v[k] = s
		}
	}
	num := func(k string, f *float64, raw string) {
		if f != nil {
			v[k] = *f
		} else if raw != "" {
			v[k] = raw
		}
	}
	integer := func(k string, n *int, raw string) {
		if n != nil {
			v[k] = *n
		} else if raw != "" {
			v[k] = raw
		}
	}
	boolean := func(k string, b *bool, raw string) {
		if b != nil {
			v[k] = *b
		} else if raw != "" {
			v[k] = raw
		}
	}

	str("audit_id", rec.AuditID)
	if rec.AuditDate != nil {
		v["fecha_auditoria"] = *rec.AuditDate
	} else {
		str("fecha_auditoria", cells[FieldAuditDate])
	}
	str("proveedor", rec.Provider)
	str("sitio", rec.Site)
	str("tipo_atencion", rec.AttentionType)
	str("usuario_id", rec.UserID)
	str("hostname", rec.Hostname)

	if cells[FieldProcessor] != "" {
		str("cpu_marca", rec.CPUBrand)
		str("cpu_modelo", rec.CPUModel)
	}
	integer("cpu_generacion", rec.CPUGeneration, "")
	num("cpu_velocidad_ghz", rec.CPUSpeedGHz, cells[FieldCPUSpeed])
	integer("cpu_nucleos", rec.CPUCores, cells[FieldCPUCores])
	num("ram_gb", rec.RAMGB, cells[FieldRAM])
	str("ram_tipo", rec.RAMType)
	integer("ram_velocidad_mhz", rec.RAMSpeedMHz, "")
	str("disco_tipo", rec.DiskType)
	num("disco_capacidad_gb", rec.DiskGB, cells[FieldStorage])
	num("disco_libre_gb", rec.DiskFreeGB, cells[FieldDiskFree])

	str("so_nombre", rec.OSName)
	str("so_version", rec.OSVersion)
	str("so_build", rec.OSBuild)
	str("navegador_nombre", rec.BrowserName)
	integer("navegador_version", rec.BrowserVersion, cells[FieldBrowserVersion])
	str("antivirus_marca", rec.AntivirusBrand)
	boolean("antivirus_actualizado", rec.AntivirusUpdated, cells[FieldAVUpdated])

	str("diadema_marca", rec.HeadsetBrand)
	boolean("webcam", rec.Webcam, cells[FieldWebcam])

	str("isp", rec.ISP)
	str("tipo_conexion", rec.ConnectionType)
	num("velocidad_descarga_mbps", rec.DownloadMbps, cells[FieldDownload])
	num("velocidad_subida_mbps", rec.UploadMbps, cells[FieldUpload])
	num("latencia_ms", rec.LatencyMs, cells[FieldLatency])
	return v
}
