package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/parque/internal/core"
)

const inventoryCSV = "Proveedor;Sede;Tipo de Atención;ID Usuario;Nombre del Equipo;Procesador;Memoria RAM;Disco Duro;Sistema Operativo;Navegador;Antivirus;Velocidad Descarga (Mbps);Velocidad Subida (Mbps)\n" +
	"Konecta;Bogotá;Chat;jperez;PC-001;Intel Core i7-10700 @ 2.90GHz;16 GB DDR4;512 GB SSD;Windows 11 Pro;Chrome 126;CrowdStrike;50 Mbps;20 Mbps\n" +
	"Konecta;Bogotá;Chat;mlopez;PC-002;Intel Core i7-10700 @ 2.90GHz;4 GB;512 GB SSD;Windows 11 Pro;Chrome 126;CrowdStrike;50 Mbps;20 Mbps\n"

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestProcess_Summary(t *testing.T) {
	path := writeInput(t, "inventario.csv", inventoryCSV)
	out, err := run(t, "process", path, "--audit-id", "AUD-1", "--workers", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"inventario.csv", "COMPLETED", "2 procesados, 1 válidos, 1 con error", "Errores registrados"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
}

func TestProcess_JSON(t *testing.T) {
	path := writeInput(t, "inventario.csv", inventoryCSV)
	out, err := run(t, "process", path, "--format", "json", "--records", "--cycle", "2024-Q3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var res processResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if res.Job.State != core.JobCompleted || res.Job.AuditCycle != "2024-Q3" {
		t.Errorf("got state %s cycle %q", res.Job.State, res.Job.AuditCycle)
	}
	if len(res.Records) != 2 {
		t.Errorf("got %d records, want 2", len(res.Records))
	}
	if res.Report == nil || res.Report.TotalRecords != 2 {
		t.Errorf("got report %+v, want 2 records", res.Report)
	}
	if len(res.Errors) == 0 {
		t.Error("expected ledger entries for the 4 GB row")
	}
}

func TestProcess_Failures(t *testing.T) {
	good := writeInput(t, "inventario.csv", inventoryCSV)
	noCPU := writeInput(t, "sin_cpu.csv", "Proveedor;Sede\nKonecta;Bogotá\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown format", []string{"process", good, "--format", "xml"}, "unknown format"},
		{"missing file", []string{"process", filepath.Join(t.TempDir(), "nada.csv")}, "open input"},
		{"no processor column", []string{"process", noCPU}, "MAP001"},
		{"fail on errors", []string{"process", good, "--fail-on-errors"}, "1 of 2 records have errors"},
		{"missing rules file", []string{"process", good, "--rules", "/no/such/reglas.yaml"}, "load rules"},
		{"no args", []string{"process"}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		_, err := run(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want an error containing %q", tt.name, err, tt.want)
		}
	}
}

func TestRules_ListsDefaults(t *testing.T) {
	out, err := run(t, "rules")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, core.RuleRAMMinimum) || !strings.Contains(out, "SEVERIDAD") {
		t.Errorf("rules output lacks %s:\n%s", core.RuleRAMMinimum, out)
	}
}

func TestRules_FileOverride(t *testing.T) {
	path := writeInput(t, "reglas.yaml", `reglas:
  - id: negocio.disco_minimo
    campo: disco_capacidad_gb
    tipo_validacion: BUSINESS_THRESHOLD
    operador: gte
    valor_minimo: 240
    severidad: ERROR
    proveedores: [Atento]
`)
	out, err := run(t, "rules", "--rules", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "proveedores=Atento") || !strings.Contains(out, "240") {
		t.Errorf("override not listed:\n%s", out)
	}
}

func TestLedger_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	_, err := run(t, "ledger", "purge")
	if !errors.Is(err, errNoDatabase) {
		t.Errorf("got %v, want errNoDatabase", err)
	}
	if _, err := run(t, "ledger", "reset"); err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("got %v, want a confirmation error", err)
	}
}
