// Package core implements the inventory ETL pipeline: column mapping,
// per-row normalization, schema and business validation, scoring, and the
// job/error bookkeeping around a batch.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"time"

	"github.com/JonMunkholm/parque/internal/normalize"
	"github.com/JonMunkholm/parque/internal/policy"
)

// Severity is shared with the declarative rule layer.
type Severity = policy.Severity

const (
	SeverityCritical = policy.SeverityCritical
	SeverityError    = policy.SeverityError
	SeverityWarning  = policy.SeverityWarning
	SeverityInfo     = policy.SeverityInfo
)

// ValidationRule is the persistable rule representation shared by the
// normalizers and the business rule validator.
type ValidationRule = policy.Rule

// ComponentResult is the per-component compliance verdict stored on a record.
type ComponentResult = normalize.Result

// RecordState is the processing state of an InventoryRecord.
type RecordState string

const (
	StateProcessing RecordState = "PROCESSING"
	StateValidated  RecordState = "VALIDATED"
	StateError      RecordState = "ERROR"
	StateDuplicate  RecordState = "DUPLICATE"
	StateIncomplete RecordState = "INCOMPLETE"
)

// Tier is the compliance bucket derived from the aggregate score.
type Tier string

const (
	TierExcellent  Tier = "EXCELLENT"
	TierGood       Tier = "GOOD"
	TierAcceptable Tier = "ACCEPTABLE"
	TierDeficient  Tier = "DEFICIENT"
	TierCritical   Tier = "CRITICAL"
)

// ErrorType is the ETLError taxonomy.
type ErrorType string

const (
	ErrorParsing       ErrorType = "PARSING"
	ErrorValidation    ErrorType = "VALIDATION"
	ErrorNormalization ErrorType = "NORMALIZATION"
	ErrorScoring       ErrorType = "SCORING"
	ErrorDatabase      ErrorType = "DATABASE"
	ErrorBusinessRule  ErrorType = "BUSINESS_RULE"
	ErrorSystem        ErrorType = "SYSTEM"
)

// Finding is one validation or normalization problem attached to a record.
type Finding struct {
	Type            ErrorType `json:"tipo"`
	Code            string    `json:"codigo"`
	Rule            string    `json:"regla,omitempty"`
	Field           string    `json:"campo"`
	Severity        Severity  `json:"severidad"`
	Message         string    `json:"mensaje"`
	Value           string    `json:"valor,omitempty"`
	Expected        string    `json:"valor_esperado,omitempty"`
	SuggestedAction string    `json:"accion_sugerida,omitempty"`

	// Summary is the row-independent wording used for the error ledger, so
	// the same problem on many rows collapses into one entry.
	Summary string `json:"-"`
}

// ledgerMessage returns the message used for error deduplication.
func (f Finding) ledgerMessage() string {
	if f.Summary != "" {
		return f.Summary
	}
	return f.Message
}

// InventoryRecord is one row of the inventory: one piece of fielded
// equipment tied to one audit cycle.
type InventoryRecord struct {
	ID    string `json:"id"`
	JobID string `json:"job_id,omitempty"`
	Row   int    `json:"fila"`

	AuditID      string     `json:"audit_id"`
	AuditDate    *time.Time `json:"fecha_auditoria"`
	AuditCycle   string     `json:"ciclo_auditoria"`
	AuditVersion string     `json:"version_auditoria"`

	Provider      string `json:"proveedor"`
	Site          string `json:"sitio"`
	AttentionType string `json:"tipo_atencion"`
	UserID        string `json:"usuario_id"`
	Hostname      string `json:"hostname"`

	CPUBrand       string   `json:"cpu_marca"`
	CPUModel       string   `json:"cpu_modelo"`
	CPUModelNumber string   `json:"cpu_numero_modelo"`
	CPUGeneration  *int     `json:"cpu_generacion"`
	CPUSpeedGHz    *float64 `json:"cpu_velocidad_ghz"`
	CPUCores       *int     `json:"cpu_nucleos"`
	RAMGB          *float64 `json:"ram_gb"`
	RAMType        string   `json:"ram_tipo"`
	RAMSpeedMHz    *int     `json:"ram_velocidad_mhz"`
	DiskType       string   `json:"disco_tipo"`
	DiskGB         *float64 `json:"disco_capacidad_gb"`
	DiskFreeGB     *float64 `json:"disco_libre_gb"`

	OSName           string `json:"so_nombre"`
	OSVersion        string `json:"so_version"`
	OSBuild          string `json:"so_build"`
	OSLicense        string `json:"so_licencia"`
	BrowserName      string `json:"navegador_nombre"`
	BrowserVersion   *int   `json:"navegador_version"`
	AntivirusBrand   string `json:"antivirus_marca"`
	AntivirusVersion string `json:"antivirus_version"`
	AntivirusUpdated *bool  `json:"antivirus_actualizado"`
	AntivirusFree    bool   `json:"-"`

	HeadsetBrand string `json:"diadema_marca"`
	HeadsetModel string `json:"diadema_modelo"`
	HeadsetType  string `json:"diadema_tipo"`
	HasHeadset   bool   `json:"-"`
	Webcam       *bool  `json:"webcam"`
	MicType      string `json:"microfono_tipo"`

	ISP            string   `json:"isp"`
	ConnectionType string   `json:"tipo_conexion"`
	DownloadMbps   *float64 `json:"velocidad_descarga_mbps"`
	UploadMbps     *float64 `json:"velocidad_subida_mbps"`
	LatencyMs      *float64 `json:"latencia_ms"`

	HardwareScore     float64 `json:"score_hardware"`
	SoftwareScore     float64 `json:"score_software"`
	ConnectivityScore float64 `json:"score_conectividad"`
	OverallScore      float64 `json:"score_general"`
	Tier              Tier    `json:"nivel_cumplimiento"`

	State          RecordState       `json:"estado"`
	OriginalValues map[string]string `json:"valores_originales"`
	Errors         []Finding         `json:"errores_validacion"`
	Warnings       []Finding         `json:"advertencias_validacion"`
	Info           []Finding         `json:"informacion_validacion"`

	CPU     ComponentResult `json:"cpu"`
	RAM     ComponentResult `json:"ram"`
	Storage ComponentResult `json:"almacenamiento"`
	OS      ComponentResult `json:"so"`
	Speed   ComponentResult `json:"velocidad"`

	ValidationScore      float64 `json:"score_validacion"`
	OverallCompliance    bool    `json:"overall_compliance"`
	OverallFailureReason string  `json:"overall_failure_reason"`
}

// addFinding files f into the bucket for its severity.
func (r *InventoryRecord) addFinding(f Finding) {
	switch f.Severity {
	case SeverityCritical, SeverityError:
		r.Errors = append(r.Errors, f)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, f)
	default:
		r.Info = append(r.Info, f)
	}
}

// Findings returns every finding attached to the record.
func (r *InventoryRecord) Findings() []Finding {
	out := make([]Finding, 0, len(r.Errors)+len(r.Warnings)+len(r.Info))
	out = append(out, r.Errors...)
	out = append(out, r.Warnings...)
	return append(out, r.Info...)
}

// Row is one input row: raw column name to raw cell value.
type Row struct {
	Number int               // 1-based line in the source sheet
	Cells  map[string]string // keyed by header as it appears in Table.Header
}

// JobMeta is the audit metadata supplied with an uploaded file.
type JobMeta struct {
	AuditID      string `json:"audit_id"`
	AuditCycle   string `json:"ciclo_auditoria"`
	AuditVersion string `json:"version_auditoria"`
}

// FieldType is the primitive type of a schema field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldInteger
	FieldDecimal
	FieldBool
)

func (ft FieldType) String() string {
	switch ft {
	case FieldText:
		return "texto"
	case FieldEnum:
		return "enumeración"
	case FieldDate:
		return "fecha"
	case FieldInteger:
		return "entero"
	case FieldDecimal:
		return "decimal"
	case FieldBool:
		return "booleano"
	default:
		return "valor"
	}
}

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Size   int
}

// DefaultPageSize is used when a caller does not ask for a size.
const DefaultPageSize = 50

// MaxPageSize caps page sizes requested by callers.
const MaxPageSize = 500

// normalized clamps the page to sane bounds.
func (p Page) normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// bounds returns the slice bounds of the page within n items.
func (p Page) bounds(n int) (start, end int) {
	start = (p.Number - 1) * p.Size
	if start > n {
		start = n
	}
	end = start + p.Size
	if end > n {
		end = n
	}
	return start, end
}
