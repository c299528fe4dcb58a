package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Attention types.
const (
	AttentionInbound  = "INBOUND"
	AttentionOutbound = "OUTBOUND"
	AttentionMixed    = "MIXTO"
	AttentionChat     = "CHAT"
	AttentionEmail    = "EMAIL"
	AttentionSupport  = "SOPORTE"
	AttentionOther    = "OTRO"
)

// AntivirusNone is the canonical brand for "no antivirus installed".
const AntivirusNone = "Ninguno"

type entry struct {
	canonical string
	keywords  []string
}

// match returns the first entry whose keyword occurs in folded. Keywords of
// four or more characters match as substrings, shorter ones as whole tokens.
func match(table []entry, folded string) (string, bool) {
	toks := tokens(folded)
	for _, e := range table {
		for _, kw := range e.keywords {
			if matchKeyword(folded, toks, kw) {
				return e.canonical, true
			}
		}
	}
	return "", false
}

func matchKeyword(folded string, toks []string, kw string) bool {
	if len(kw) >= 4 {
		return strings.Contains(folded, kw)
	}
	for _, t := range toks {
		if t == kw {
			return true
		}
	}
	return false
}

var attentionTable = []entry{
	{AttentionMixed, []string{"mixto", "mixta", "mixed", "blend", "hibrido", "hibrida"}},
	{AttentionInbound, []string{"inbound", "entrante", "entrada", "recepcion", "in"}},
	{AttentionOutbound, []string{"outbound", "saliente", "salida", "cobranza", "televenta", "out"}},
	{AttentionChat, []string{"chat", "whatsapp", "mensajeria"}},
	{AttentionEmail, []string{"email", "e-mail", "correo", "mail"}},
	{AttentionSupport, []string{"soporte", "support", "tecnico", "help desk", "helpdesk", "mesa de ayuda"}},
}

// NormalizeAttention maps a call-handling role to its canonical label.
// Inputs naming both inbound and outbound work are MIXTO.
func NormalizeAttention(raw string) Result {
	out := Result{Original: raw}
	s := Fold(raw)
	if s == "" {
		out.Reason = "Tipo de atención vacío"
		return out
	}

	in, _ := match(attentionTable[1:2], s)
	outb, _ := match(attentionTable[2:3], s)
	if in != "" && outb != "" {
		out.Normalized, out.MeetsRequirements = AttentionMixed, true
		return out
	}
	if c, ok := match(attentionTable, s); ok {
		out.Normalized, out.MeetsRequirements = c, true
		return out
	}
	out.Normalized = AttentionOther
	out.Reason = "Tipo de atención no reconocido"
	return out
}

// OperatingSystem is the structured output of NormalizeOS.
type OperatingSystem struct {
	Result
	Name    string `json:"nombre"`
	Edition string `json:"edicion,omitempty"`
	Version string `json:"version,omitempty"`
	Build   string `json:"build,omitempty"`
}

var (
	windowsRe = regexp.MustCompile(`\b(?:windows|win|w)\s*-?\s*(11|10|8\.1|8|7|xp|vista)\b`)
	serverRe  = regexp.MustCompile(`\bwindows\s*server\s*(\d{4})\b`)
	featureRe = regexp.MustCompile(`\b(\d{2}h\d)\b`)
	osBuildRe = regexp.MustCompile(`\b([12]\d{4})(?:\.\d+)?\b`)
	editionRe = regexp.MustCompile(`\b(pro|professional|profesional|home|enterprise|education|ltsc)\b`)
)

var osTable = []entry{
	{"macOS", []string{"macos", "mac os", "osx", "os x", "mac"}},
	{"ChromeOS", []string{"chromeos", "chrome os", "chromebook"}},
	{"Ubuntu", []string{"ubuntu"}},
	{"Linux", []string{"linux", "debian", "fedora", "centos", "red hat", "mint", "suse"}},
}

var editionLabel = map[string]string{
	"pro": "Pro", "professional": "Pro", "profesional": "Pro", "home": "Home",
	"enterprise": "Enterprise", "education": "Education", "ltsc": "LTSC",
}

// NormalizeOS parses an operating system description. MeetsRequirements is
// false for unknown systems and for names in p.UnsupportedOS.
func NormalizeOS(raw string, p Policy) OperatingSystem {
	out := OperatingSystem{Result: Result{Original: raw}}
	s := Fold(raw)
	if s == "" {
		out.Reason = "Sistema operativo no especificado"
		return out
	}

	switch {
	case serverRe.MatchString(s):
		out.Name = "Windows Server " + serverRe.FindStringSubmatch(s)[1]
	case windowsRe.MatchString(s):
		v := windowsRe.FindStringSubmatch(s)[1]
		switch v {
		case "xp":
			v = "XP"
		case "vista":
			v = "Vista"
		}
		out.Name = "Windows " + v
	case strings.Contains(s, "windows"):
		out.Name = "Windows"
	default:
		if c, ok := match(osTable, s); ok {
			out.Name = c
		} else {
			out.Name = Other
		}
	}

	if strings.HasPrefix(out.Name, "Windows") {
		if m := editionRe.FindStringSubmatch(s); m != nil {
			out.Edition = editionLabel[m[1]]
		}
		if m := featureRe.FindStringSubmatch(s); m != nil {
			out.Version = strings.ToUpper(m[1])
		}
		if m := osBuildRe.FindStringSubmatch(s); m != nil {
			out.Build = m[1]
		}
	}

	parts := []string{out.Name}
	for _, part := range []string{out.Edition, out.Version} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if out.Build != "" {
		parts = append(parts, "build "+out.Build)
	}
	out.Normalized = strings.Join(parts, " ")

	switch {
	case out.Name == Other:
		out.Reason = "Sistema operativo no reconocido"
	case out.Name == "Windows":
		out.Reason = "Versión de Windows no especificada"
	case IsUnsupportedOS(out.Name, p):
		out.Reason = out.Name + " ya no tiene soporte del fabricante"
	default:
		out.MeetsRequirements = true
	}
	return out
}

// IsUnsupportedOS reports whether name is in the policy's unsupported list.
func IsUnsupportedOS(name string, p Policy) bool {
	for _, u := range p.UnsupportedOS {
		if strings.EqualFold(u, name) {
			return true
		}
	}
	return false
}

// Browser is the structured output of NormalizeBrowser.
type Browser struct {
	Result
	Name    string `json:"nombre"`
	Version int    `json:"version,omitempty"`
}

// BrowserIE is the canonical legacy Internet Explorer label.
const BrowserIE = "Internet Explorer"

var (
	browserTable = []entry{
		{"Edge", []string{"edge", "msedge"}},
		{BrowserIE, []string{"internet explorer", "explorer", "ie", "iexplore"}},
		{"Chrome", []string{"chrome", "chromium"}},
		{"Firefox", []string{"firefox", "mozilla"}},
		{"Safari", []string{"safari"}},
		{"Opera", []string{"opera"}},
		{"Brave", []string{"brave"}},
	}
	majorVersionRe = regexp.MustCompile(`\b(\d{1,3})(?:\.\d+)*\b`)
)

// NormalizeBrowser maps a browser description to its name and major version.
func NormalizeBrowser(raw string) Browser {
	out := Browser{Result: Result{Original: raw}}
	s := Fold(raw)
	if s == "" {
		out.Reason = "Navegador no especificado"
		return out
	}
	if c, ok := match(browserTable, s); ok {
		out.Name = c
		out.MeetsRequirements = true
	} else {
		out.Name = Other
		out.Reason = "Navegador no reconocido"
	}
	if m := majorVersionRe.FindStringSubmatch(s); m != nil {
		out.Version, _ = strconv.Atoi(m[1])
	}
	out.Normalized = out.Name
	if out.Version > 0 {
		out.Normalized += " " + strconv.Itoa(out.Version)
	}
	return out
}

// Antivirus is the structured output of NormalizeAntivirus.
type Antivirus struct {
	Result
	Brand string `json:"marca"`
	Free  bool   `json:"gratuito"`
}

var (
	noneTable = []entry{
		{AntivirusNone, []string{"ninguno", "ninguna", "sin antivirus", "none", "no tiene", "no instalado"}},
	}
	// noneWords mean "none" only as the whole cell; inside a description
	// they qualify a brand ("McAfee no vigente").
	noneWords = map[string]bool{"no": true, "na": true, "n/a": true, "-": true}
	antivirusTable = []entry{
		{"Windows Defender", []string{"defender", "security essentials", "windows security"}},
		{"Kaspersky", []string{"kaspersky"}},
		{"ESET", []string{"eset", "nod32"}},
		{"McAfee", []string{"mcafee", "mc afee"}},
		{"Norton", []string{"norton", "symantec"}},
		{"Avast", []string{"avast"}},
		{"AVG", []string{"avg"}},
		{"Bitdefender", []string{"bitdefender"}},
		{"Sophos", []string{"sophos"}},
		{"Trend Micro", []string{"trend micro", "trendmicro", "apex one"}},
		{"CrowdStrike", []string{"crowdstrike", "falcon"}},
		{"SentinelOne", []string{"sentinelone", "sentinel one"}},
		{"Malwarebytes", []string{"malwarebytes"}},
		{"Panda", []string{"panda"}},
	}
	freeAntivirus = map[string]bool{"Avast": true, "AVG": true, "Windows Defender": true, "Panda": true}
)

// NormalizeAntivirus maps an antivirus description to a canonical brand.
// An empty cell yields an empty brand; an explicit "none" yields Ninguno.
// A recognized brand wins over any negation around it.
func NormalizeAntivirus(raw string) Antivirus {
	out := Antivirus{Result: Result{Original: raw}}
	s := Fold(raw)
	if s == "" {
		out.Reason = "Antivirus no especificado"
		return out
	}
	if c, ok := match(antivirusTable, s); ok {
		out.Brand = c
		out.Free = freeAntivirus[c]
		out.Normalized = c
		out.MeetsRequirements = true
		return out
	}
	if _, ok := match(noneTable, s); ok || noneWords[strings.TrimSpace(s)] {
		out.Brand = AntivirusNone
		out.Normalized = AntivirusNone
		out.Reason = "Equipo sin antivirus"
		return out
	}
	out.Brand = Other
	out.Normalized = Other
	out.MeetsRequirements = true
	return out
}

var connectionTable = []entry{
	{"Ethernet", []string{"ethernet", "cableada", "cableado", "lan", "rj45", "rj-45", "utp"}},
	{"Fibra", []string{"fibra", "fiber", "fibre", "ftth", "optica"}},
	{"Cable", []string{"cable", "coaxial", "hfc"}},
	{"DSL", []string{"adsl", "vdsl", "dsl"}},
	{"Móvil", []string{"movil", "mobile", "celular", "lte", "4g", "5g", "3g"}},
	{"Satelital", []string{"satelital", "satellite", "starlink"}},
	{"WiFi", []string{"wifi", "wi-fi", "wireless", "inalambrica", "inalambrico", "wlan"}},
}

// NormalizeConnection maps a connection-type description to its label.
func NormalizeConnection(raw string) Result {
	return normalizeTable(raw, connectionTable, "Tipo de conexión")
}

var headsetTable = []entry{
	{"USB", []string{"usb"}},
	{"Bluetooth", []string{"bluetooth", "bt"}},
	{"Inalámbrica", []string{"inalambrica", "inalambrico", "wireless"}},
	{"Analógica", []string{"jack", "3.5", "3.5mm", "analogica", "analogico", "plug", "p2"}},
}

// NormalizeHeadsetType maps a headset connector description to its label.
func NormalizeHeadsetType(raw string) Result {
	return normalizeTable(raw, headsetTable, "Tipo de diadema")
}

func normalizeTable(raw string, table []entry, label string) Result {
	out := Result{Original: raw}
	s := Fold(raw)
	if s == "" {
		out.Reason = label + " no especificado"
		return out
	}
	if c, ok := match(table, s); ok {
		out.Normalized, out.MeetsRequirements = c, true
		return out
	}
	out.Normalized = Other
	out.Reason = label + " no reconocido"
	return out
}

var (
	truthy = map[string]bool{
		"si": true, "yes": true, "y": true, "1": true, "true": true, "verdadero": true,
		"activo": true, "activa": true, "actualizado": true, "actualizada": true,
		"vigente": true, "ok": true, "x": true, "s": true, "on": true,
	}
	falsy = map[string]bool{
		"no": true, "n": true, "0": true, "false": true, "falso": true,
		"inactivo": true, "inactiva": true, "desactualizado": true, "desactualizada": true,
		"vencido": true, "vencida": true, "off": true, "ninguno": true, "ninguna": true,
	}
)

// Bool parses a tri-state boolean. Tokens outside the vocabulary yield nil.
func Bool(raw string) *bool {
	s := strings.Trim(Fold(raw), ".!")
	switch {
	case truthy[s]:
		v := true
		return &v
	case falsy[s]:
		v := false
		return &v
	}
	return nil
}

// Present reports whether a peripheral cell describes an installed device:
// non-empty, not a falsy token and not an explicit "none".
func Present(raw string) bool {
	s := Fold(raw)
	if s == "" {
		return false
	}
	if b := Bool(raw); b != nil {
		return *b
	}
	_, none := match(noneTable, s)
	return !none && !strings.HasPrefix(s, "sin ")
}
