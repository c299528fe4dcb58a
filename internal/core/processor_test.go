package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/parque/internal/normalize"
)

func TestRowProcessor_CompliantRow(t *testing.T) {
	p := newTestProcessor(t)
	res := p.Process(rowWith(2, nil))
	if res.Skipped || res.Record == nil {
		t.Fatal("expected a record")
	}
	rec := res.Record

	if rec.State != StateValidated {
		t.Errorf("got state %s, want %s (errors: %+v)", rec.State, StateValidated, rec.Errors)
	}
	if !rec.OverallCompliance {
		t.Errorf("got non-compliant record: %q", rec.OverallFailureReason)
	}
	if rec.OverallFailureReason != "" {
		t.Errorf("got failure reason %q, want empty", rec.OverallFailureReason)
	}
	if rec.AuditID != "AUD-2024-01" || rec.JobID != "job-test" {
		t.Errorf("got audit %q job %q, want job metadata copied", rec.AuditID, rec.JobID)
	}
	if rec.AttentionType != normalize.AttentionChat {
		t.Errorf("got attention %q, want %q", rec.AttentionType, normalize.AttentionChat)
	}
	if rec.OriginalValues["Procesador"] != "Intel Core i7-10700 @ 2.90GHz" {
		t.Errorf("original values not preserved: %v", rec.OriginalValues)
	}
	if rec.ValidationScore != 100 {
		t.Errorf("got validation score %v, want 100", rec.ValidationScore)
	}
}

func TestRowProcessor_EndToEndExamples(t *testing.T) {
	t.Run("RAM in megabytes", func(t *testing.T) {
		rec := newTestProcessor(t).Process(rowWith(2, map[string]string{"Memoria RAM": "4096 MB"})).Record
		if rec.RAMGB == nil || *rec.RAMGB != 4 {
			t.Fatalf("got RAM %v, want 4 GB", rec.RAMGB)
		}
		if rec.RAMType != "DDR" {
			t.Errorf("got RAM type %q, want DDR", rec.RAMType)
		}
		if rec.RAM.MeetsRequirements {
			t.Error("4 GB should fail the RAM minimum")
		}
		if !strings.Contains(rec.RAM.Reason, "16 GB") {
			t.Errorf("got reason %q, want it to mention 16 GB", rec.RAM.Reason)
		}
	})

	t.Run("Core i5 below speed floor", func(t *testing.T) {
		rec := newTestProcessor(t).Process(rowWith(2, map[string]string{
			"Procesador": "Intel(R) Core(TM) i5-8400 @ 2.80GHz",
		})).Record
		if rec.CPUBrand != "Intel" || rec.CPUModel != "Core i5" {
			t.Errorf("got %q %q, want Intel Core i5", rec.CPUBrand, rec.CPUModel)
		}
		if rec.CPUGeneration == nil || *rec.CPUGeneration != 8 {
			t.Errorf("got generation %v, want 8", rec.CPUGeneration)
		}
		if rec.CPUSpeedGHz == nil || *rec.CPUSpeedGHz != 2.8 {
			t.Errorf("got speed %v, want 2.8", rec.CPUSpeedGHz)
		}
		if rec.CPU.MeetsRequirements {
			t.Error("2.8 GHz Core i5 should fail")
		}
		if !strings.Contains(rec.CPU.Reason, "Velocidad insuficiente") {
			t.Errorf("got reason %q, want a speed shortfall", rec.CPU.Reason)
		}
		if rec.OverallCompliance {
			t.Error("record should not be compliant")
		}
	})

	t.Run("Ryzen 7 always compliant", func(t *testing.T) {
		rec := newTestProcessor(t).Process(rowWith(2, map[string]string{"Procesador": "AMD Ryzen 7 3700X"})).Record
		if rec.CPUModel != "Ryzen 7" {
			t.Errorf("got model %q, want Ryzen 7", rec.CPUModel)
		}
		if !rec.CPU.MeetsRequirements {
			t.Errorf("Ryzen 7 should comply: %q", rec.CPU.Reason)
		}
	})

	t.Run("terabyte typo without type", func(t *testing.T) {
		rec := newTestProcessor(t).Process(rowWith(2, map[string]string{"Disco Duro": "1 TR"})).Record
		if rec.DiskGB == nil || *rec.DiskGB != 1000 {
			t.Fatalf("got disk %v, want 1000", rec.DiskGB)
		}
		if rec.DiskType != normalize.StorageUnspecified {
			t.Errorf("got disk type %q, want %q", rec.DiskType, normalize.StorageUnspecified)
		}
		if rec.Storage.MeetsRequirements {
			t.Error("unspecified storage type should fail the SSD requirement")
		}
		if !strings.Contains(rec.Storage.Reason, "SSD") {
			t.Errorf("got reason %q, want it to mention SSD", rec.Storage.Reason)
		}
	})
}

func TestRowProcessor_ComplianceIsConjunction(t *testing.T) {
	overrides := []map[string]string{
		nil,
		{"Memoria RAM": "8 GB"},
		{"Disco Duro": "256 GB HDD"},
		{"Sistema Operativo": "Windows 7"},
		{"Velocidad Descarga (Mbps)": "2 Mbps"},
		{"Velocidad Descarga (Mbps)": ""},
		{"Procesador": "Intel Core i3-10100"},
	}
	p := newTestProcessor(t)
	for i, o := range overrides {
		rec := p.Process(rowWith(i+2, withHost(o, i))).Record
		want := rec.CPU.MeetsRequirements && rec.RAM.MeetsRequirements && rec.Storage.MeetsRequirements &&
			rec.OS.MeetsRequirements && rec.Speed.MeetsRequirements
		if rec.OverallCompliance != want {
			t.Errorf("row %d: got compliance %v, want %v", i, rec.OverallCompliance, want)
		}
		if want != (rec.OverallFailureReason == "") {
			t.Errorf("row %d: compliance %v with reason %q", i, want, rec.OverallFailureReason)
		}
	}
}

func withHost(o map[string]string, i int) map[string]string {
	out := map[string]string{"Nombre del Equipo": fmt.Sprintf("PC-%03d", i)}
	for k, v := range o {
		out[k] = v
	}
	return out
}

func TestRowProcessor_FailureReasonsJoinedInComponentOrder(t *testing.T) {
	rec := newTestProcessor(t).Process(rowWith(2, map[string]string{
		"Memoria RAM": "8 GB",
		"Disco Duro":  "1 TR",
	})).Record
	parts := strings.Split(rec.OverallFailureReason, "; ")
	if len(parts) != 2 {
		t.Fatalf("got %d reasons (%q), want 2", len(parts), rec.OverallFailureReason)
	}
	if parts[0] != rec.RAM.Reason || parts[1] != rec.Storage.Reason {
		t.Errorf("got %q, want RAM then storage reason", rec.OverallFailureReason)
	}
}

func TestRowProcessor_UnparsableProcessorIsRowError(t *testing.T) {
	rec := newTestProcessor(t).Process(rowWith(2, map[string]string{"Procesador": ""})).Record
	if rec.State != StateError {
		t.Errorf("got state %s, want %s", rec.State, StateError)
	}
	if !hasCode(rec.Errors, CodeProcessorUnknown) {
		t.Errorf("got errors %+v, want %s", rec.Errors, CodeProcessorUnknown)
	}
	if rec.OverallCompliance {
		t.Error("record without processor should not be compliant")
	}
}

func TestRowProcessor_IncompleteRow(t *testing.T) {
	p := newTestProcessor(t)
	res := p.Process(Row{Number: 5, Cells: map[string]string{"Proveedor": "Konecta", "Procesador": "i7"}})
	if res.Record == nil {
		t.Fatal("expected a record")
	}
	if res.Record.State != StateIncomplete {
		t.Errorf("got state %s, want %s", res.Record.State, StateIncomplete)
	}
	if !hasCode(res.Record.Warnings, CodeIncompleteRow) {
		t.Errorf("got warnings %+v, want %s", res.Record.Warnings, CodeIncompleteRow)
	}
}

func TestRowProcessor_BlankRowSkipped(t *testing.T) {
	res := newTestProcessor(t).Process(Row{Number: 9, Cells: map[string]string{"Proveedor": "  ", "Sede": ""}})
	if !res.Skipped || res.Record != nil {
		t.Errorf("got %+v, want a skipped row", res)
	}
}

func TestHostIndex_MarksLaterRows(t *testing.T) {
	p := newTestProcessor(t)
	first := p.Process(rowWith(2, nil)).Record
	second := p.Process(rowWith(3, map[string]string{"Nombre del Equipo": "pc-001"})).Record

	if first.State != StateValidated || second.State != StateValidated {
		t.Fatalf("got states %s and %s, Process alone must not mark duplicates", first.State, second.State)
	}

	hosts := NewHostIndex()
	if hosts.Mark(first) {
		t.Error("first occurrence marked as duplicate")
	}
	if !hosts.Mark(second) {
		t.Error("second occurrence not marked")
	}
	if first.State != StateValidated {
		t.Errorf("got first state %s, want %s", first.State, StateValidated)
	}
	if second.State != StateDuplicate {
		t.Errorf("got second state %s, want %s", second.State, StateDuplicate)
	}
	if !hasCode(second.Warnings, CodeDuplicateHost) {
		t.Errorf("got warnings %+v, want %s", second.Warnings, CodeDuplicateHost)
	}
}

func TestHostIndex_IgnoresIncompleteAndBlank(t *testing.T) {
	hosts := NewHostIndex()
	incomplete := &InventoryRecord{Row: 2, Hostname: "PC-9", State: StateIncomplete}
	blank := &InventoryRecord{Row: 3, State: StateValidated}
	later := &InventoryRecord{Row: 4, Hostname: "pc-9", State: StateError}

	if hosts.Mark(incomplete) || hosts.Mark(blank) {
		t.Fatal("incomplete or blank-hostname record marked")
	}
	if hosts.Mark(later) {
		t.Errorf("got %s, an incomplete row must not claim the hostname", later.State)
	}
	if incomplete.State != StateIncomplete {
		t.Errorf("got %s, want %s", incomplete.State, StateIncomplete)
	}
}

func TestRowProcessor_VoicePositionNeedsHeadset(t *testing.T) {
	p := newTestProcessor(t)
	without := p.Process(rowWith(2, map[string]string{"Tipo de Atención": "Inbound"})).Record
	with := p.Process(rowWith(3, map[string]string{
		"Tipo de Atención":  "Inbound",
		"Diadema":           "Jabra Evolve 20",
		"Nombre del Equipo": "PC-002",
	})).Record

	if !hasCode(without.Errors, "BR014") {
		t.Errorf("got errors %+v, want BR014", without.Errors)
	}
	if hasCode(with.Errors, "BR014") {
		t.Errorf("headset present but BR014 fired: %+v", with.Errors)
	}
}

func TestRowProcessor_MissingSpeedFailsConnectivity(t *testing.T) {
	rec := newTestProcessor(t).Process(rowWith(2, map[string]string{
		"Velocidad Descarga (Mbps)": "",
		"Velocidad Subida (Mbps)":   "",
	})).Record
	if rec.Speed.MeetsRequirements {
		t.Error("missing download speed should not comply")
	}
	if rec.Speed.Reason != "Velocidad de conexión no especificada" {
		t.Errorf("got reason %q", rec.Speed.Reason)
	}
}

func scopedProcessor(t *testing.T, doc string) *RowProcessor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reglas.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rules, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mapping, err := MapColumns(inventoryHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewRowProcessor(mapping, ProcessorOptions{JobID: "job-test", Rules: rules})
}

func TestRowProcessor_ScopedCorrection(t *testing.T) {
	p := scopedProcessor(t, `reglas:
  - id: ram.acme_reporta_16
    campo: ram
    tipo_validacion: PATTERN
    autocorreccion:
      buscar: '16 GB'
      reemplazar: '4 GB'
    proveedores: ["ACME"]
`)

	tests := []struct {
		provider string
		want     float64
	}{
		{"Konecta", 16},
		{"ACME", 4},
		{" acme ", 4},
		{"", 16},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			rec := p.Process(rowWith(2, map[string]string{"Proveedor": tt.provider})).Record
			if rec.RAMGB == nil || *rec.RAMGB != tt.want {
				t.Errorf("got ram_gb %v, want %v", rec.RAMGB, tt.want)
			}
		})
	}
}

func TestRowProcessor_ScopedNormalizerThreshold(t *testing.T) {
	p := scopedProcessor(t, `reglas:
  - id: ram.capacidad_minima_gb
    tipo_validacion: BUSINESS_THRESHOLD
    operador: gte
    valor_minimo: 8
    proveedores: [ACME]
`)

	acme := p.Process(rowWith(2, map[string]string{"Proveedor": "ACME", "Memoria RAM": "8 GB"})).Record
	if !acme.RAM.MeetsRequirements {
		t.Errorf("ACME 8 GB: got %q, want compliant under the 8 GB floor", acme.RAM.Reason)
	}

	konecta := p.Process(rowWith(3, map[string]string{"Memoria RAM": "8 GB"})).Record
	if konecta.RAM.MeetsRequirements {
		t.Error("Konecta 8 GB should still need the default 16 GB")
	}
}

func TestExplicitGHz(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"2.9", 2.9, true},
		{"2900 MHz", 2.9, true},
		{"3,4 GHz", 3.4, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := explicitGHz(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("explicitGHz(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
