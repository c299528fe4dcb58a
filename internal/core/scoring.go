package core

import (
	"math"

	"github.com/JonMunkholm/parque/internal/normalize"
	"github.com/JonMunkholm/parque/internal/policy"
)

// Component points: compliant, known but failing, unknown.
const (
	pointsMeets   = 100
	pointsPartial = 50
	pointsUnknown = 0
)

// TierFor maps an aggregate score to its compliance tier.
func TierFor(score float64) Tier {
	switch {
	case score >= 90:
		return TierExcellent
	case score >= 75:
		return TierGood
	case score >= 60:
		return TierAcceptable
	case score >= 40:
		return TierDeficient
	default:
		return TierCritical
	}
}

// OverallScore is the mean of the non-zero sub-scores, 0 when all are zero.
func OverallScore(subs ...float64) float64 {
	var sum float64
	n := 0
	for _, s := range subs {
		if s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}

func componentPoints(known, meets bool) float64 {
	switch {
	case !known:
		return pointsUnknown
	case meets:
		return pointsMeets
	default:
		return pointsPartial
	}
}

func mean(vals ...float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return round2(sum / float64(len(vals)))
}

// hardwareScore averages CPU, RAM and storage points.
func hardwareScore(rec *InventoryRecord) float64 {
	return mean(
		componentPoints(rec.CPUModel != "" && rec.CPUModel != normalize.Unknown, rec.CPU.MeetsRequirements),
		componentPoints(rec.RAMGB != nil, rec.RAM.MeetsRequirements),
		componentPoints(rec.DiskGB != nil, rec.Storage.MeetsRequirements),
	)
}

// softwareScore averages OS, browser and antivirus points.
func softwareScore(rec *InventoryRecord, rules *policy.RuleSet) float64 {
	osPts := componentPoints(rec.OSName != "" && rec.OSName != normalize.Other, rec.OS.MeetsRequirements)

	var browserPts float64
	switch rec.BrowserName {
	case "":
		browserPts = pointsUnknown
	case normalize.BrowserIE:
		browserPts = 25
	case normalize.Other:
		browserPts = pointsPartial
	default:
		browserPts = pointsMeets
		if floor, ok := browserFloors[rec.BrowserName]; ok && rec.BrowserVersion != nil {
			if float64(*rec.BrowserVersion) < rules.ThresholdFor("negocio.navegador_minimo."+rec.BrowserName, rec.Provider, rec.Site, floor) {
				browserPts = 60
			}
		}
	}

	var avPts float64
	switch {
	case rec.AntivirusBrand == "" || rec.AntivirusBrand == normalize.AntivirusNone:
		avPts = pointsUnknown
	case rec.AntivirusUpdated != nil && !*rec.AntivirusUpdated:
		avPts = pointsPartial
	case rec.AntivirusFree:
		avPts = 80
	default:
		avPts = pointsMeets
	}

	return mean(osPts, browserPts, avPts)
}

// connectivityScore rates bandwidth against the attention-type minimums and
// latency on a fixed scale. Parts with no data are left out.
func connectivityScore(rec *InventoryRecord, rules *policy.RuleSet) float64 {
	var parts []float64
	ratio := func(v *float64, prefix string, table map[string]float64) {
		if v == nil {
			return
		}
		floor := attentionMinimum(rules, prefix, rec, table)
		if floor <= 0 {
			parts = append(parts, pointsMeets)
			return
		}
		parts = append(parts, math.Min(100, *v/floor*100))
	}
	ratio(rec.DownloadMbps, RuleDownloadMinimum, downloadByAttention)
	ratio(rec.UploadMbps, RuleUploadMinimum, uploadByAttention)

	if rec.LatencyMs != nil {
		switch ms := *rec.LatencyMs; {
		case ms <= 50:
			parts = append(parts, 100)
		case ms <= 100:
			parts = append(parts, 75)
		case ms <= 150:
			parts = append(parts, 50)
		default:
			parts = append(parts, 25)
		}
	}
	return mean(parts...)
}

// scoreRecord fills the sub-scores, aggregate score and tier.
func scoreRecord(rec *InventoryRecord, rules *policy.RuleSet) {
	rec.HardwareScore = hardwareScore(rec)
	rec.SoftwareScore = softwareScore(rec, rules)
	rec.ConnectivityScore = connectivityScore(rec, rules)
	rec.OverallScore = OverallScore(rec.HardwareScore, rec.SoftwareScore, rec.ConnectivityScore)
	rec.Tier = TierFor(rec.OverallScore)
}
