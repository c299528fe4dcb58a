package core

import (
	"sort"
	"strconv"
	"strings"
)

// unknownLabel keys distribution buckets with no value.
const unknownLabel = "Desconocido"

// ComponentCompliance is the share of records meeting each component policy,
// as a percentage.
type ComponentCompliance struct {
	CPU     float64 `json:"cpu"`
	RAM     float64 `json:"ram"`
	Storage float64 `json:"almacenamiento"`
	OS      float64 `json:"so"`
	Speed   float64 `json:"velocidad"`
}

// ReasonCount is one row of the failure-reason frequency table.
type ReasonCount struct {
	Reason string `json:"razon"`
	Count  int    `json:"cantidad"`
}

// BatchStats aggregates the records of one job.
type BatchStats struct {
	Total          int                 `json:"total"`
	Meeting        int                 `json:"cumplen"`
	NotMeeting     int                 `json:"no_cumplen"`
	ComplianceRate float64             `json:"tasa_cumplimiento"`
	AverageScore   float64             `json:"score_promedio"`
	ByState        map[RecordState]int `json:"por_estado"`
	ByTier         map[Tier]int        `json:"por_nivel"`
	CPUBrands      map[string]int      `json:"distribucion_cpu_marca"`
	CPUModels      map[string]int      `json:"distribucion_cpu_modelo"`
	RAMSizes       map[string]int      `json:"distribucion_ram"`
	StorageTypes   map[string]int      `json:"distribucion_almacenamiento"`
	Components     ComponentCompliance `json:"cumplimiento_componentes"`
	FailureReasons []ReasonCount       `json:"razones_fallo"`
}

// ComputeStats summarizes records. Percentages are 0 for an empty batch.
func ComputeStats(records []InventoryRecord) BatchStats {
	st := BatchStats{
		Total:        len(records),
		ByState:      make(map[RecordState]int),
		ByTier:       make(map[Tier]int),
		CPUBrands:    make(map[string]int),
		CPUModels:    make(map[string]int),
		RAMSizes:     make(map[string]int),
		StorageTypes: make(map[string]int),
	}
	if len(records) == 0 {
		return st
	}

	var (
		scoreSum                    float64
		cpu, ram, disk, osOK, speed int
	)
	reasons := make(map[string]int)

	for i := range records {
		r := &records[i]
		st.ByState[r.State]++
		if r.Tier != "" {
			st.ByTier[r.Tier]++
		}
		scoreSum += r.OverallScore

		if r.OverallCompliance {
			st.Meeting++
		} else {
			for _, reason := range strings.Split(r.OverallFailureReason, "; ") {
				if reason != "" {
					reasons[reason]++
				}
			}
		}

		st.CPUBrands[fallback(r.CPUBrand, unknownLabel)]++
		st.CPUModels[fallback(r.CPUModel, unknownLabel)]++
		if r.RAMGB != nil {
			st.RAMSizes[strconv.FormatFloat(*r.RAMGB, 'f', -1, 64)+" GB"]++
		} else {
			st.RAMSizes[unknownLabel]++
		}
		st.StorageTypes[fallback(r.DiskType, unknownLabel)]++

		for _, c := range []struct {
			ok  bool
			ctr *int
		}{
			{r.CPU.MeetsRequirements, &cpu},
			{r.RAM.MeetsRequirements, &ram},
			{r.Storage.MeetsRequirements, &disk},
			{r.OS.MeetsRequirements, &osOK},
			{r.Speed.MeetsRequirements, &speed},
		} {
			if c.ok {
				*c.ctr++
			}
		}
	}

	n := float64(len(records))
	pct := func(k int) float64 { return round2(float64(k) * 100 / n) }
	st.NotMeeting = st.Total - st.Meeting
	st.ComplianceRate = pct(st.Meeting)
	st.AverageScore = round2(scoreSum / n)
	st.Components = ComponentCompliance{CPU: pct(cpu), RAM: pct(ram), Storage: pct(disk), OS: pct(osOK), Speed: pct(speed)}

	for reason, count := range reasons {
		st.FailureReasons = append(st.FailureReasons, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(st.FailureReasons, func(i, j int) bool {
		if st.FailureReasons[i].Count != st.FailureReasons[j].Count {
			return st.FailureReasons[i].Count > st.FailureReasons[j].Count
		}
		return st.FailureReasons[i].Reason < st.FailureReasons[j].Reason
	})
	return st
}
