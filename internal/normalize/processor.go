package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Processor brands.
const (
	BrandIntel = "Intel"
	BrandAMD   = "AMD"
)

// Processor is the structured output of NormalizeProcessor.
type Processor struct {
	Result
	Brand       string  `json:"marca"`
	Model       string  `json:"modelo"`
	ModelNumber string  `json:"numero_modelo,omitempty"`
	Generation  int     `json:"generacion,omitempty"`
	SpeedGHz    float64 `json:"velocidad_ghz,omitempty"`
	Cores       int     `json:"nucleos,omitempty"`
	Designator  string  `json:"designador,omitempty"`
	Revision    int     `json:"revision,omitempty"`
}

var (
	trademarkRe  = regexp.MustCompile(`(?i)\((?:r|tm|c)\)|®|™|©`)
	coresRe      = regexp.MustCompile(`(?i)\b(\d{1,2})\s*-?\s*(?:cores?|n[uú]cleos?)\b`)
	multiCoreRe  = regexp.MustCompile(`(?i)\b(single|dual|quad|hexa|octa)[\s-]*cores?\b`)
	cpuWordsRe   = regexp.MustCompile(`(?i)\b(?:processor|procesador|cpu|version\s*\d+|ver\.?\s*\d+)\b`)
	genHintRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:st|nd|rd|th|ª|a|va|ma)?\s*gen(?:eraci[oó]n|eration)?\b`)
	emptyParenRe = regexp.MustCompile(`\(\s*\)`)
	revisionGap  = regexp.MustCompile(`(\d)v(\d{1,2})\b`)

	coreRe     = regexp.MustCompile(`(?:\bcore\s*|\b)i([3579])(?:[\s-]*(\d{3,5})([a-z]{0,2}))?\b`)
	ryzenRe    = regexp.MustCompile(`\bryzen\s*([3579])(\s*pro)?(?:[\s-]+(\d{4})([a-z]{0,2}))?\b`)
	metalRe    = regexp.MustCompile(`\b(platinum|gold|silver|bronze)\b`)
	revisionRe = regexp.MustCompile(`\bv(\d{1,2})\b`)
	xeonNumRe  = regexp.MustCompile(`\b([a-z]\d-\d{4}[a-z]?|[a-z]-?\d{4}[a-z]?|\d{4}[a-z]?)\b`)
	familyNum  = regexp.MustCompile(`^[a-z]{0,2}\d{3,5}[a-z]{0,2}$`)

	speedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*ghz`),
		regexp.MustCompile(`@\s*(\d+(?:[.,]\d+)?)`),
		regexp.MustCompile(`(\d+[.,]\d+)\s*gh`),
	}
	cpuMHzRe  = regexp.MustCompile(`(\d{3,4})\s*mhz`)
	decimalRe = regexp.MustCompile(`\d+[.,]\d+`)
)

var multiCoreCount = map[string]int{"single": 1, "dual": 2, "quad": 4, "hexa": 6, "octa": 8}

// NormalizeProcessor parses a free-text CPU description.
func NormalizeProcessor(raw string, p Policy) Processor {
	out := Processor{Result: Result{Original: raw}, Brand: Other, Model: Unknown}

	cleaned, cores, genHint := cleanProcessor(raw)
	out.Cores = cores
	if cleaned == "" {
		out.Reason = "Procesador no especificado"
		return out
	}

	s := revisionGap.ReplaceAllString(Fold(cleaned), "$1 v$2")
	out.SpeedGHz = extractSpeed(s)
	out.detectFamily(s)
	if out.Generation == 0 && genHint > 0 && strings.HasPrefix(out.Model, "Core i") {
		out.Generation = genHint
	}

	out.Normalized = out.format(cleaned)
	out.MeetsRequirements, out.Reason = out.evaluate(p)
	return out
}

func cleanProcessor(raw string) (cleaned string, cores, genHint int) {
	s := trademarkRe.ReplaceAllString(raw, " ")

	if m := coresRe.FindStringSubmatch(s); m != nil {
		cores, _ = strconv.Atoi(m[1])
	}
	if m := multiCoreRe.FindStringSubmatch(s); m != nil && cores == 0 {
		cores = multiCoreCount[strings.ToLower(m[1])]
	}
	if m := genHintRe.FindStringSubmatch(s); m != nil {
		genHint, _ = strconv.Atoi(m[1])
	}

	s = coresRe.ReplaceAllString(s, " ")
	s = multiCoreRe.ReplaceAllString(s, " ")
	s = genHintRe.ReplaceAllString(s, " ")
	s = cpuWordsRe.ReplaceAllString(s, " ")
	s = emptyParenRe.ReplaceAllString(s, " ")
	s = Squash(s)
	return strings.Trim(s, " ,;/-"), cores, genHint
}

func extractSpeed(s string) float64 {
	for _, re := range speedPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			if v, ok := parseDecimal(m[1]); ok && v > 0 {
				if v > 100 {
					v /= 1000
				}
				return v
			}
		}
	}
	if m := cpuMHzRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v / 1000
		}
	}

	// No explicit unit: take the largest decimal that is a plausible clock.
	best := 0.0
	for _, n := range decimalRe.FindAllString(s, -1) {
		v, ok := parseDecimal(n)
		if ok && v >= 1.0 && v <= 5.5 && v > best {
			best = v
		}
	}
	return best
}

func (c *Processor) detectFamily(s string) {
	switch {
	case strings.Contains(s, "xeon"):
		c.Brand, c.Model = BrandIntel, "Xeon"
		rest := s[strings.Index(s, "xeon")+len("xeon"):]
		if m := metalRe.FindStringSubmatch(rest); m != nil {
			c.Designator = strings.ToUpper(m[1][:1]) + m[1][1:]
		}
		if m := revisionRe.FindStringSubmatch(rest); m != nil {
			c.Revision, _ = strconv.Atoi(m[1])
		}
		if m := xeonNumRe.FindStringSubmatch(rest); m != nil {
			c.ModelNumber = strings.ToUpper(m[1])
		}
	case strings.Contains(s, "celeron"):
		c.Brand, c.Model = BrandIntel, "Celeron"
		c.ModelNumber = numberAfter(s, "celeron")
	case strings.Contains(s, "pentium"):
		c.Brand, c.Model = BrandIntel, "Pentium"
		c.ModelNumber = numberAfter(s, "pentium")
	case ryzenRe.MatchString(s):
		m := ryzenRe.FindStringSubmatch(s)
		c.Brand, c.Model = BrandAMD, "Ryzen "+m[1]
		if m[2] != "" {
			c.Designator = "PRO"
		}
		if m[3] != "" {
			c.ModelNumber = m[3] + strings.ToUpper(m[4])
			c.Generation = int(m[3][0] - '0')
		}
	case strings.Contains(s, "epyc"):
		c.Brand, c.Model = BrandAMD, "EPYC"
		c.ModelNumber = numberAfter(s, "epyc")
	case strings.Contains(s, "athlon"):
		c.Brand, c.Model = BrandAMD, "Athlon"
		c.ModelNumber = numberAfter(s, "athlon")
	case strings.Contains(s, "phenom"):
		c.Brand, c.Model = BrandAMD, "Phenom"
		c.ModelNumber = numberAfter(s, "phenom")
	case coreRe.MatchString(s):
		m := coreRe.FindStringSubmatch(s)
		c.Brand, c.Model = BrandIntel, "Core i"+m[1]
		if m[2] != "" {
			c.ModelNumber = m[2] + strings.ToUpper(m[3])
			c.Generation = intelGeneration(m[2])
		}
	case strings.Contains(s, "intel"):
		c.Brand = BrandIntel
	case strings.Contains(s, "amd"):
		c.Brand = BrandAMD
	}
}

// intelGeneration derives the generation from a Core model number:
// 5-digit models use the first two digits, shorter ones the first digit.
func intelGeneration(num string) int {
	if len(num) == 5 {
		g, _ := strconv.Atoi(num[:2])
		return g
	}
	return int(num[0] - '0')
}

// numberAfter returns the first model-number-like token after keyword.
func numberAfter(s, keyword string) string {
	toks := tokens(s[strings.Index(s, keyword):])
	for _, t := range toks[1:] {
		if familyNum.MatchString(t) {
			return strings.ToUpper(t)
		}
	}
	return ""
}

func (c Processor) format(cleaned string) string {
	if c.Model == Unknown {
		return cleaned
	}
	var b strings.Builder
	b.WriteString(c.Brand)
	b.WriteString(" ")
	switch {
	case strings.HasPrefix(c.Model, "Core i"):
		b.WriteString(c.Model)
		if c.ModelNumber != "" {
			b.WriteString("-" + c.ModelNumber)
		} else if c.Generation > 0 {
			fmt.Fprintf(&b, " (%dª gen)", c.Generation)
		}
	case c.Model == "Xeon":
		b.WriteString("Xeon")
		if c.Designator != "" {
			b.WriteString(" " + c.Designator)
		}
		if c.ModelNumber != "" {
			b.WriteString(" " + c.ModelNumber)
		}
		if c.Revision > 0 {
			fmt.Fprintf(&b, " v%d", c.Revision)
		}
	default:
		b.WriteString(c.Model)
		if c.Designator != "" {
			b.WriteString(" " + c.Designator)
		}
		if c.ModelNumber != "" {
			b.WriteString(" " + c.ModelNumber)
		}
	}
	if c.SpeedGHz > 0 {
		fmt.Fprintf(&b, " @ %.2f GHz", c.SpeedGHz)
	}
	return b.String()
}

func (c Processor) evaluate(p Policy) (bool, string) {
	switch c.Model {
	case "Core i7", "Core i9", "Ryzen 7", "Ryzen 9", "EPYC":
		return true, ""
	case "Core i5":
		var reasons []string
		switch {
		case c.Generation == 0:
			reasons = append(reasons, "No se pudo determinar la generación del Core i5")
		case c.Generation < p.CoreI5MinGeneration:
			reasons = append(reasons, fmt.Sprintf("Generación insuficiente (%dª), se requiere mínimo %dª generación",
				c.Generation, p.CoreI5MinGeneration))
		}
		if r := c.speedShortfall(p.CoreI5MinSpeedGHz); r != "" {
			reasons = append(reasons, r)
		}
		return len(reasons) == 0, strings.Join(reasons, ", ")
	case "Ryzen 5":
		if r := c.speedShortfall(p.Ryzen5MinSpeedGHz); r != "" {
			return false, r
		}
		return true, ""
	case "Xeon":
		if c.Designator != "" || c.Revision >= 3 {
			return true, ""
		}
		return false, "Xeon sin designador v3+ ni Gold/Silver/Bronze/Platinum"
	case Unknown:
		return false, "No se pudo identificar el modelo del procesador"
	}
	return false, fmt.Sprintf("Procesador %s %s no cumple los requisitos mínimos", c.Brand, c.Model)
}

func (c Processor) speedShortfall(min float64) string {
	if c.SpeedGHz <= 0 {
		return "No se pudo determinar la velocidad del procesador"
	}
	if c.SpeedGHz < min {
		return fmt.Sprintf("Velocidad insuficiente (%.2f GHz), se requiere mínimo %.1f GHz", c.SpeedGHz, min)
	}
	return ""
}
