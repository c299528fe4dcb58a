package normalize

import (
	"fmt"
	"regexp"
	"strconv"
)

// Memory is the structured output of NormalizeMemory.
type Memory struct {
	Result
	CapacityGB float64 `json:"capacidad_gb"`
	ParsedGB   float64 `json:"capacidad_leida_gb,omitempty"`
	Type       string  `json:"tipo"`
	SpeedMHz   int     `json:"velocidad_mhz,omitempty"`
}

// DefaultMemoryType is reported when no DDR generation is mentioned.
const DefaultMemoryType = "DDR"

var ramSizes = []float64{2, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96, 128, 256, 512}

var (
	ramGBRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:gb|gib|gigas?|g)\b`)
	ramMBRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:mb|mib|megas?)\b`)
	ramTBRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:tb|tib)\b`)
	ramKBRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:kb|kib)\b`)
	ramBareRe  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	ddrRe      = regexp.MustCompile(`ddr\s*([2-5])`)
	ddrSpeedRe = regexp.MustCompile(`ddr\s*[2-5]\s*-\s*(\d{3,4})`)
	ramMHzRe   = regexp.MustCompile(`(\d{3,4})\s*mhz`)
	ramNoiseRe = regexp.MustCompile(`(?:lp)?ddr\s*[2-5]?(?:\s*-\s*\d{3,4})?|\d{3,4}\s*mhz|pc\d-\d+`)
)

// NormalizeMemory parses a free-text RAM description.
func NormalizeMemory(raw string, p Policy) Memory {
	out := Memory{Result: Result{Original: raw}, Type: DefaultMemoryType}
	s := Fold(raw)

	if m := ddrRe.FindStringSubmatch(s); m != nil {
		out.Type = "DDR" + m[1]
	}
	if m := ddrSpeedRe.FindStringSubmatch(s); m != nil {
		out.SpeedMHz, _ = strconv.Atoi(m[1])
	} else if m := ramMHzRe.FindStringSubmatch(s); m != nil {
		out.SpeedMHz, _ = strconv.Atoi(m[1])
	}

	out.ParsedGB = parseMemoryGB(s)
	out.CapacityGB = RoundMemory(out.ParsedGB)

	if out.CapacityGB > 0 {
		out.Normalized = fmt.Sprintf("%s GB %s", formatNumber(out.CapacityGB), out.Type)
		if out.SpeedMHz > 0 {
			out.Normalized += fmt.Sprintf(" %d MHz", out.SpeedMHz)
		}
	}

	switch {
	case out.CapacityGB <= 0:
		out.Reason = "No se pudo determinar la capacidad de memoria RAM"
	case out.CapacityGB < p.MinRAMGB:
		out.Reason = fmt.Sprintf("Memoria RAM insuficiente (%s GB), se requiere mínimo %s GB",
			formatNumber(out.CapacityGB), formatNumber(p.MinRAMGB))
	default:
		out.MeetsRequirements = true
	}
	return out
}

// parseMemoryGB tries explicit GB, then MB, TB and KB, then a bare number
// whose magnitude decides the unit.
func parseMemoryGB(s string) float64 {
	if m := ramGBRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v
		}
	}
	if m := ramMBRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v / 1024
		}
	}
	if m := ramTBRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v * 1024
		}
	}
	if m := ramKBRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v / 1024 / 1024
		}
	}

	bare := ramBareRe.FindString(ramNoiseRe.ReplaceAllString(s, " "))
	v, ok := parseDecimal(bare)
	if !ok || v <= 0 {
		return 0
	}
	switch {
	case v <= 64:
		return v
	case v <= 65536:
		return v / 1024
	default:
		return v / 1024 / 1024
	}
}

// RoundMemory snaps a GB value to the nearest commercial module size.
// Anything in (0,4) becomes 4.
func RoundMemory(gb float64) float64 {
	switch {
	case gb <= 0:
		return 0
	case gb < 4:
		return 4
	}
	return nearest(gb, ramSizes)
}
