package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Storage types.
const (
	StorageSSD         = "SSD"
	StorageHDD         = "HDD"
	StorageUnspecified = "No especificado"
)

// Storage is the structured output of NormalizeStorage.
type Storage struct {
	Result
	CapacityGB float64 `json:"capacidad_gb"`
	ParsedGB   float64 `json:"capacidad_leida_gb,omitempty"`
	Type       string  `json:"tipo"`
}

var storageSizes = []float64{16, 32, 64, 120, 160, 250, 320, 480, 500, 512, 750, 1000, 2000, 3000, 4000}

var (
	ssdKeywords = []string{"ssd", "nvme", "m.2", "solid", "solido"}
	hddKeywords = []string{"hdd", "disco duro", "mecanico", "rpm"}

	terabyteTypoRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*tr\b`)
	diskTBRe       = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:tb|tib|teras?)\b`)
	diskGBRe       = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:gb|gib|gigas?|g)\b`)
	diskBareRe     = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	diskNoiseRe    = regexp.MustCompile(`m\.2|\d+\s*rpm|sata\s*(?:iii|ii|\d)?|pcie\s*\d(?:\.\d)?|gen\s*\d|nvme`)
)

// NormalizeStorage parses a free-text disk description.
func NormalizeStorage(raw string, p Policy) Storage {
	out := Storage{Result: Result{Original: raw}}
	s := Fold(FixTerabyteTypo(raw))

	out.Type = storageType(s)
	out.ParsedGB = parseStorageGB(s)
	out.CapacityGB = RoundStorage(out.ParsedGB)

	if out.CapacityGB > 0 {
		out.Normalized = formatStorage(out.CapacityGB)
		if out.Type != StorageUnspecified {
			out.Normalized += " " + out.Type
		}
	}

	var reasons []string
	switch {
	case out.CapacityGB <= 0:
		reasons = append(reasons, "No se pudo determinar la capacidad de almacenamiento")
	case out.CapacityGB < p.MinStorageGB:
		reasons = append(reasons, fmt.Sprintf("Capacidad de almacenamiento insuficiente (%s), se requiere mínimo %s",
			formatStorage(out.CapacityGB), formatStorage(p.MinStorageGB)))
	}
	if p.RequireSSD && out.Type != StorageSSD {
		if out.Type == StorageUnspecified {
			reasons = append(reasons, "Tipo de almacenamiento no especificado, se requiere SSD")
		} else {
			reasons = append(reasons, fmt.Sprintf("Tipo de almacenamiento %s, se requiere SSD", out.Type))
		}
	}
	out.MeetsRequirements = len(reasons) == 0
	out.Reason = strings.Join(reasons, ", ")
	return out
}

// FixTerabyteTypo rewrites the common "1 TR" misspelling as "1 TB".
func FixTerabyteTypo(s string) string {
	return terabyteTypoRe.ReplaceAllString(s, "${1} TB")
}

// ParseCapacityGB extracts an unrounded capacity, used for free-space cells.
func ParseCapacityGB(raw string) (float64, bool) {
	gb := parseStorageGB(Fold(FixTerabyteTypo(raw)))
	return gb, gb > 0
}

func storageType(s string) string {
	for _, kw := range ssdKeywords {
		if strings.Contains(s, kw) {
			return StorageSSD
		}
	}
	for _, kw := range hddKeywords {
		if strings.Contains(s, kw) {
			return StorageHDD
		}
	}
	return StorageUnspecified
}

// parseStorageGB tries TB, then GB, then a bare number. Bare numbers below
// 10 are read as TB.
func parseStorageGB(s string) float64 {
	if m := diskTBRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v * 1024
		}
	}
	if m := diskGBRe.FindStringSubmatch(s); m != nil {
		if v, ok := parseDecimal(m[1]); ok {
			return v
		}
	}
	bare := diskBareRe.FindString(diskNoiseRe.ReplaceAllString(s, " "))
	v, ok := parseDecimal(bare)
	if !ok || v <= 0 {
		return 0
	}
	if v < 10 {
		return v * 1024
	}
	return v
}

// RoundStorage snaps a GB value to a commercial disk size.
func RoundStorage(gb float64) float64 {
	switch {
	case gb <= 0:
		return 0
	case gb >= 900 && gb < 1126:
		return 1000
	case gb >= 900:
		tb := gb / 1024
		if whole := math.Round(tb); whole >= 1 && math.Abs(tb-whole) <= 0.2 {
			return whole * 1000
		}
	case gb >= 80 && gb < 130:
		return 120
	case gb >= 220 && gb < 280:
		return 250
	case gb >= 600 && gb < 800:
		return 750
	}
	return nearest(gb, storageSizes)
}

func formatStorage(gb float64) string {
	if gb >= 1000 && math.Mod(gb, 1000) == 0 {
		return fmt.Sprintf("%s TB", formatNumber(gb/1000))
	}
	return fmt.Sprintf("%s GB", formatNumber(gb))
}
