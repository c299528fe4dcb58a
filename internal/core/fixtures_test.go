package core

import (
	"strings"
	"testing"
)

// inventoryHeader is a typical provider sheet header.
var inventoryHeader = []string{
	"Proveedor", "Sede", "Tipo de Atención", "ID Usuario", "Nombre del Equipo",
	"Procesador", "Memoria RAM", "Disco Duro", "Sistema Operativo", "Navegador",
	"Antivirus", "Diadema", "Velocidad Descarga (Mbps)", "Velocidad Subida (Mbps)",
}

// compliantCells returns a row that passes every component and rule.
func compliantCells() map[string]string {
	return map[string]string{
		"Proveedor":                 "Konecta",
		"Sede":                      "Bogotá",
		"Tipo de Atención":          "Chat",
		"ID Usuario":                "jperez",
		"Nombre del Equipo":         "PC-001",
		"Procesador":                "Intel Core i7-10700 @ 2.90GHz",
		"Memoria RAM":               "16 GB DDR4",
		"Disco Duro":                "512 GB SSD",
		"Sistema Operativo":         "Windows 11 Pro 23H2",
		"Navegador":                 "Chrome 126",
		"Antivirus":                 "CrowdStrike Falcon",
		"Diadema":                   "",
		"Velocidad Descarga (Mbps)": "50 Mbps",
		"Velocidad Subida (Mbps)":   "20 Mbps",
	}
}

// rowWith returns a compliant row with overrides applied.
func rowWith(n int, overrides map[string]string) Row {
	cells := compliantCells()
	for k, v := range overrides {
		cells[k] = v
	}
	return Row{Number: n, Cells: cells}
}

func newTestProcessor(t *testing.T) *RowProcessor {
	t.Helper()
	mapping, err := MapColumns(inventoryHeader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewRowProcessor(mapping, ProcessorOptions{
		JobID: "job-test",
		Meta:  JobMeta{AuditID: "AUD-2024-01", AuditCycle: "2024-Q1", AuditVersion: "1"},
	})
}

// inventoryCSV renders rows as a semicolon-delimited file with the standard
// header.
func inventoryCSV(rows ...Row) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(inventoryHeader, ";"))
	b.WriteString("\n")
	for _, r := range rows {
		vals := make([]string, len(inventoryHeader))
		for i, h := range inventoryHeader {
			vals[i] = r.Cells[h]
		}
		b.WriteString(strings.Join(vals, ";"))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func hasCode(findings []Finding, code string) bool {
	for _, f := range findings {
		if f.Code == code {
			return true
		}
	}
	return false
}
