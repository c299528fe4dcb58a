package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadTable_SemicolonCSV(t *testing.T) {
	data := inventoryCSV(rowWith(0, nil), rowWith(0, map[string]string{"Nombre del Equipo": "PC-002"}))
	tbl, err := ReadTable(bytes.NewReader(data), "inventario.csv", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Header) != len(inventoryHeader) {
		t.Fatalf("got %d headers, want %d", len(tbl.Header), len(inventoryHeader))
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(tbl.Rows))
	}
	if tbl.Rows[1].Number != 3 || tbl.Rows[1].Cells["Nombre del Equipo"] != "PC-002" {
		t.Errorf("got row %+v, want PC-002 at line 3", tbl.Rows[1])
	}
}

func TestReadTable_HeaderBelowTitle(t *testing.T) {
	data := "Inventario de equipos,,\n,,\nEquipo,CPU,RAM\nPC-1,Core i7,16 GB\n\nPC-2,Ryzen 5,8 GB\n"
	tbl, err := ReadTable(strings.NewReader(data), "inv.csv", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Header[1] != "CPU" {
		t.Errorf("got header %v, want the CPU row", tbl.Header)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank line skipped)", len(tbl.Rows))
	}
	if tbl.Rows[0].Number != 4 || tbl.Rows[1].Number != 6 {
		t.Errorf("got row numbers %d and %d, want 4 and 6", tbl.Rows[0].Number, tbl.Rows[1].Number)
	}
}

func TestReadTable_RowNumbersAreFileLines(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []int
	}{
		{"consecutive", "Equipo;CPU\nPC-1;i5\nPC-2;i7\n", []int{2, 3}},
		{"blank lines", "Equipo;CPU\nPC-1;i5\n\n\nPC-2;i7\n", []int{2, 5}},
		{"crlf blank lines", "Equipo;CPU\r\nPC-1;i5\r\n\r\nPC-2;i7\r\n", []int{2, 4}},
		{"quoted newline", "Equipo;CPU\n\"PC\n1\";i5\nPC-2;i7\n", []int{2, 4}},
		{"separator-only line", "Equipo;CPU\nPC-1;i5\n;\nPC-2;i7\n", []int{2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ReadTable(strings.NewReader(tt.data), "inv.csv", 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tbl.Rows) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(tbl.Rows), len(tt.want))
			}
			for i, want := range tt.want {
				if got := tbl.Rows[i].Number; got != want {
					t.Errorf("row %d: got line %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestReadTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		max  int64
		want error
	}{
		{"empty", "", 0, ErrEmptyFile},
		{"header only", "Equipo;Procesador\n", 0, ErrEmptyFile},
		{"too large", "Equipo;Procesador\nPC;i5\n", 10, ErrFileTooLarge},
	}
	for _, tt := range tests {
		_, err := ReadTable(strings.NewReader(tt.data), "a.csv", tt.max)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestReadTable_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"Auditoría 2024"})
	_ = f.SetSheetRow(sheet, "A3", &[]any{"Proveedor", "Nombre del Equipo", "Procesador"})
	_ = f.SetSheetRow(sheet, "A4", &[]any{"Konecta", "PC-001", "Intel Core i5-10400"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tbl, err := ReadTable(buf, "inventario.xlsx", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Sheet != sheet {
		t.Errorf("got sheet %q, want %q", tbl.Sheet, sheet)
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0].Number != 4 {
		t.Fatalf("got rows %+v, want one at line 4", tbl.Rows)
	}
	if got := tbl.Rows[0].Cells["Procesador"]; got != "Intel Core i5-10400" {
		t.Errorf("got processor %q", got)
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"a;b;c", ';'},
		{"a,b,c", ','},
		{"a\tb\tc", '\t'},
		{"a|b|c", '|'},
		{`"x;y",b,c`, ','},
		{"\n\na;b", ';'},
		{"solo", ','},
	}
	for _, tt := range tests {
		if got := sniffDelimiter([]byte(tt.line)); got != tt.want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestUniqueHeaders(t *testing.T) {
	got := uniqueHeaders([]string{"RAM", " ", "ram", "RAM"})
	want := []string{"RAM", "columna_2", "ram (2)", "RAM (3)"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
