package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxFileSize is the default upload size limit (100MB).
var MaxFileSize int64 = 100 * 1024 * 1024

// MaxHeaderSearchRows is how many leading rows are scanned for the header.
var MaxHeaderSearchRows = 20

// ErrEmptyFile is returned when a file has no data rows under its header.
var ErrEmptyFile = errors.New("file has no data rows")

// ErrFileTooLarge is returned when a file exceeds the size limit.
var ErrFileTooLarge = errors.New("file exceeds the size limit")

// Table is a spreadsheet read into a header and string rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   []Row
}

var spreadsheetExts = map[string]bool{".xlsx": true, ".xlsm": true, ".xltx": true, ".xltm": true}

// ReadTable reads an .xlsx workbook (first sheet) or a delimited text file.
// maxSize <= 0 uses MaxFileSize.
func ReadTable(r io.Reader, fileName string, maxSize int64) (*Table, error) {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrFileTooLarge, fileName, maxSize)
	}

	var (
		sheet   string
		records []sourceRow
	)
	if spreadsheetExts[strings.ToLower(filepath.Ext(fileName))] {
		sheet, records, err = readWorkbook(data)
	} else {
		records, err = readDelimited(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileName, err)
	}

	t, err := buildTable(records)
	if err != nil {
		return nil, err
	}
	t.Sheet = sheet
	return t, nil
}

// sourceRow is one record with the 1-based file line it starts on.
type sourceRow struct {
	line  int
	cells []string
}

func readWorkbook(data []byte) (string, []sourceRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", nil, err
	}
	// GetRows keeps empty rows in place, so the index is the sheet row.
	out := make([]sourceRow, len(rows))
	for i, cells := range rows {
		out[i] = sourceRow{line: i + 1, cells: cells}
	}
	return sheets[0], out, nil
}

// readDelimited reads record by record so each keeps its file line; the csv
// reader drops blank lines, which would otherwise shift row numbers.
func readDelimited(data []byte) ([]sourceRow, error) {
	text := decodeText(data)
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []sourceRow
	for {
		cells, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		out = append(out, sourceRow{line: line, cells: cells})
	}
}

var delimiterCandidates = []rune{';', ',', '\t', '|'}

// sniffDelimiter picks the candidate that occurs most often, outside quotes,
// on the first non-blank line. Ties resolve in candidate order.
func sniffDelimiter(text []byte) rune {
	var line string
	for _, l := range strings.Split(string(text), "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range delimiterCandidates {
		n, quoted := 0, false
		for _, c := range line {
			switch {
			case c == '"':
				quoted = !quoted
			case c == d && !quoted:
				n++
			}
		}
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// buildTable finds the header and turns the rows under it into Rows.
func buildTable(records []sourceRow) (*Table, error) {
	hdr := findHeaderRow(records)
	if hdr < 0 {
		return nil, ErrEmptyFile
	}
	header := uniqueHeaders(records[hdr].cells)

	t := &Table{Header: header}
	for _, src := range records[hdr+1:] {
		if isEmptyRow(src.cells) {
			continue
		}
		cells := make(map[string]string, len(header))
		for c, name := range header {
			if c < len(src.cells) {
				cells[name] = src.cells[c]
			} else {
				cells[name] = ""
			}
		}
		t.Rows = append(t.Rows, Row{Number: src.line, Cells: cells})
	}
	if len(t.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return t, nil
}

// findHeaderRow returns the first of the leading rows whose headers map a
// processor column, or else the first non-empty row. -1 means no content.
func findHeaderRow(records []sourceRow) int {
	first := -1
	limit := min(len(records), MaxHeaderSearchRows)
	for i := 0; i < limit; i++ {
		if isEmptyRow(records[i].cells) {
			continue
		}
		if first < 0 {
			first = i
		}
		if _, err := MapColumns(records[i].cells); err == nil {
			return i
		}
	}
	if first < 0 {
		for i := limit; i < len(records); i++ {
			if !isEmptyRow(records[i].cells) {
				return i
			}
		}
	}
	return first
}

// uniqueHeaders cleans header names, naming blanks by position and
// suffixing repeats.
func uniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := CleanCell(h)
		if name == "" {
			name = "columna_" + strconv.Itoa(i+1)
		}
		seen[strings.ToLower(name)]++
		if n := seen[strings.ToLower(name)]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		out[i] = name
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}
