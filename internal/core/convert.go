package core

// convert.go turns raw spreadsheet cells into typed values.
//
// Inventory sheets are filled in by hand across several countries, so the
// helpers here accept:
//   - Day-first dates (dd/mm/yyyy) as well as ISO dates and Excel serials
//   - Decimal commas and thousands separators in either convention
//   - Excel formula prefixes (="value") and stray quotes
//
// Parse* functions report ok=false for empty or unusable input instead of
// returning an error; callers decide whether that is a finding.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
// Day-first layouts come before month-first ones.
var (
	twoDigitYearLayouts = []string{
		"2/1/06", "02/01/06", "2-1-06", "2.1.06", "02.01.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "2006/01/02",
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
		"2/1/2006 15:04", "02/01/2006 15:04:05",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

var spanishMonths = strings.NewReplacer(
	"enero", "Jan", "febrero", "Feb", "marzo", "Mar", "abril", "Apr",
	"mayo", "May", "junio", "Jun", "julio", "Jul", "agosto", "Aug",
	"septiembre", "Sep", "setiembre", "Sep", "octubre", "Oct",
	"noviembre", "Nov", "diciembre", "Dec",
)

// excelEpoch is day zero of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a cell as a calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	// Excel serial day numbers leak through CSV exports.
	if n, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "-/.") {
		if n >= 20000 && n <= 80000 {
			return excelEpoch.AddDate(0, 0, int(n)), true
		}
		if len(s) != 8 {
			return time.Time{}, false
		}
	}

	if strings.ContainsAny(strings.ToLower(s), "abcdefghijklmnopqrstuvwxyz") {
		s = strings.ReplaceAll(strings.ToLower(s), " de ", " ")
		s = spanishMonths.Replace(s)
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// numericRegex validates a cleaned number.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// leadingNumberRe finds the first number in free text like "3,2 GHz".
var leadingNumberRe = regexp.MustCompile(`[+-]?\d+(?:[.,]\d+)*`)

// ParseDecimal parses a numeric cell. Both "1.234,5" and "1,234.5" are read
// as 1234.5; a lone comma is a decimal comma.
func ParseDecimal(s string) (float64, bool) {
	s = CleanCell(s)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer("$", "", "€", "", " ", "").Replace(s)
	s = unifySeparators(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseLeadingNumber extracts the first number from free text.
func ParseLeadingNumber(s string) (float64, bool) {
	m := leadingNumberRe.FindString(CleanCell(s))
	if m == "" {
		return 0, false
	}
	return ParseDecimal(m)
}

// ParseInt parses an integer cell, accepting a trailing ".0" from spreadsheets.
func ParseInt(s string) (int, bool) {
	f, ok := ParseDecimal(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func unifySeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		// 1.234,5
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		// 1,234.5
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0 && strings.Count(s, ",") == 1:
		return strings.Replace(s, ",", ".", 1)
	case comma >= 0:
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace, including non-breaking spaces
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// round2 rounds to two decimals.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
