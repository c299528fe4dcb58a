package core

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/JonMunkholm/parque/internal/normalize"
)

// Logical fields recognised in inventory sheets.
const (
	FieldAuditDate      = "fecha_auditoria"
	FieldProvider       = "proveedor"
	FieldSite           = "sitio"
	FieldAttention      = "tipo_atencion"
	FieldUserID         = "usuario_id"
	FieldHostname       = "hostname"
	FieldProcessor      = "procesador"
	FieldCPUSpeed       = "cpu_velocidad"
	FieldCPUCores       = "cpu_nucleos"
	FieldRAM            = "ram"
	FieldRAMType        = "ram_tipo"
	FieldStorage        = "almacenamiento"
	FieldDiskType       = "disco_tipo"
	FieldDiskFree       = "disco_libre"
	FieldOS             = "sistema_operativo"
	FieldOSVersion      = "so_version"
	FieldOSBuild        = "so_build"
	FieldOSLicense      = "so_licencia"
	FieldBrowser        = "navegador"
	FieldBrowserVersion = "navegador_version"
	FieldAntivirus      = "antivirus"
	FieldAVVersion      = "antivirus_version"
	FieldAVUpdated      = "antivirus_actualizado"
	FieldHeadset        = "diadema"
	FieldHeadsetModel   = "diadema_modelo"
	FieldHeadsetType    = "diadema_tipo"
	FieldWebcam         = "webcam"
	FieldMic            = "microfono"
	FieldISP            = "isp"
	FieldConnection     = "tipo_conexion"
	FieldDownload       = "velocidad_descarga"
	FieldUpload         = "velocidad_subida"
	FieldLatency        = "latencia"
)

// ErrProcessorColumnMissing is returned when no header maps to the processor
// field. Nothing downstream can run without it.
var ErrProcessorColumnMissing = errors.New("no column maps to the processor field")

type columnRule struct {
	field    string
	keywords []string
}

// columnRules is evaluated top to bottom. More specific fields come first so
// that "velocidad procesador" binds to cpu speed before "procesador" can
// claim it. Keywords are accent-folded and lower case; those of three
// characters or fewer only match a whole token of the header.
var columnRules = []columnRule{
	{FieldAuditDate, []string{"fecha auditoria", "fecha de auditoria", "audit date", "fecha"}},
	{FieldISP, []string{"proveedor de internet", "proveedor internet", "proveedor de servicio", "isp"}},
	{FieldDownload, []string{"descarga", "download", "bajada"}},
	{FieldUpload, []string{"subida", "upload", "carga"}},
	{FieldLatency, []string{"latencia", "latency", "ping"}},
	{FieldHeadsetModel, []string{"modelo diadema", "modelo de diadema", "modelo headset", "modelo auricular"}},
	{FieldHeadsetType, []string{"tipo diadema", "tipo de diadema", "tipo headset", "conexion diadema"}},
	{FieldConnection, []string{"tipo de conexion", "tipo conexion", "conexion", "connection", "red"}},
	{FieldCPUSpeed, []string{"velocidad cpu", "velocidad procesador", "velocidad del procesador", "cpu speed", "frecuencia"}},
	{FieldCPUCores, []string{"nucleos", "cores"}},
	{FieldProcessor, []string{"procesador", "processor", "cpu"}},
	{FieldRAMType, []string{"tipo ram", "tipo de ram", "tipo memoria", "tipo de memoria"}},
	{FieldRAM, []string{"ram", "memoria", "memory"}},
	{FieldDiskFree, []string{"disco libre", "espacio libre", "libre en disco", "free space", "espacio disponible"}},
	{FieldDiskType, []string{"tipo disco", "tipo de disco", "tipo almacenamiento", "tipo de almacenamiento"}},
	{FieldStorage, []string{"almacenamiento", "disco", "storage", "disk", "hdd", "ssd"}},
	{FieldOSVersion, []string{"version so", "version del so", "version sistema", "version de windows", "version windows", "os version"}},
	{FieldOSBuild, []string{"build", "compilacion"}},
	{FieldOSLicense, []string{"licencia", "license", "activacion"}},
	{FieldOS, []string{"sistema operativo", "operating system", "windows", "so", "os"}},
	{FieldBrowserVersion, []string{"version navegador", "version del navegador", "browser version"}},
	{FieldBrowser, []string{"navegador", "browser"}},
	{FieldAVVersion, []string{"version antivirus", "version del antivirus", "version av"}},
	{FieldAVUpdated, []string{"antivirus actualizado", "av actualizado", "actualizado", "definiciones"}},
	{FieldAntivirus, []string{"antivirus", "seguridad", "av"}},
	{FieldHeadset, []string{"diadema", "headset", "auricular", "audifono"}},
	{FieldWebcam, []string{"webcam", "camara"}},
	{FieldMic, []string{"microfono", "mic"}},
	{FieldAttention, []string{"tipo de atencion", "atencion", "campana", "servicio", "attention", "linea de negocio"}},
	{FieldUserID, []string{"usuario", "user", "agente", "agent", "cedula", "documento"}},
	{FieldHostname, []string{"hostname", "host", "nombre equipo", "nombre del equipo", "equipo", "computer name", "pc"}},
	{FieldSite, []string{"sitio", "sede", "site", "ubicacion", "ciudad"}},
	{FieldProvider, []string{"proveedor", "provider", "aliado", "empresa", "outsourcer", "socio"}},
}

// MappedFields lists every logical field the mapper knows, in resolution order.
func MappedFields() []string {
	out := make([]string, len(columnRules))
	for i, r := range columnRules {
		out[i] = r.field
	}
	return out
}

// ColumnMapping binds logical fields to source header names. It is built
// once per file and is read-only afterwards.
type ColumnMapping struct {
	columns map[string]string
}

// Column returns the header bound to field.
func (m ColumnMapping) Column(field string) (string, bool) {
	c, ok := m.columns[field]
	return c, ok
}

// Value returns the raw cell of row bound to field, or "" when unmapped.
func (m ColumnMapping) Value(row map[string]string, field string) string {
	c, ok := m.columns[field]
	if !ok {
		return ""
	}
	return row[c]
}

// Mapped reports how many fields were bound.
func (m ColumnMapping) Mapped() int {
	return len(m.columns)
}

// Unmapped lists the fields with no column, in resolution order.
func (m ColumnMapping) Unmapped() []string {
	var out []string
	for _, r := range columnRules {
		if _, ok := m.columns[r.field]; !ok {
			out = append(out, r.field)
		}
	}
	return out
}

// MarshalJSON renders every known field, with null for unmapped ones.
func (m ColumnMapping) MarshalJSON() ([]byte, error) {
	out := make(map[string]*string, len(columnRules))
	for _, r := range columnRules {
		if c, ok := m.columns[r.field]; ok {
			out[r.field] = &c
		} else {
			out[r.field] = nil
		}
	}
	return json.Marshal(out)
}

var headerTokenRe = regexp.MustCompile(`[^a-z0-9]+`)

// MapColumns assigns source headers to logical fields. For each field the
// first header in column order that matches one of its keywords wins; a
// header bound to an earlier field is not considered again.
func MapColumns(header []string) (ColumnMapping, error) {
	type candidate struct {
		name   string
		folded string
		tokens []string
	}
	cands := make([]candidate, 0, len(header))
	for _, h := range header {
		folded := normalize.Fold(CleanCell(h))
		if folded == "" {
			continue
		}
		folded = strings.Join(strings.FieldsFunc(folded, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }), " ")
		cands = append(cands, candidate{
			name:   h,
			folded: folded,
			tokens: strings.Fields(headerTokenRe.ReplaceAllString(folded, " ")),
		})
	}

	m := ColumnMapping{columns: make(map[string]string)}
	claimed := make([]bool, len(cands))
	for _, rule := range columnRules {
		for i, c := range cands {
			if claimed[i] || !headerMatches(c.folded, c.tokens, rule.keywords) {
				continue
			}
			m.columns[rule.field] = c.name
			claimed[i] = true
			break
		}
	}

	if _, ok := m.columns[FieldProcessor]; !ok {
		return m, ErrProcessorColumnMissing
	}
	return m, nil
}

func headerMatches(folded string, tokens, keywords []string) bool {
	for _, kw := range keywords {
		if len(kw) > 3 {
			if strings.Contains(folded, kw) {
				return true
			}
			continue
		}
		for _, t := range tokens {
			if t == kw {
				return true
			}
		}
	}
	return false
}
