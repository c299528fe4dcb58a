// Package normalize converts raw, human-entered spreadsheet cells into
// canonical values with a local pass/fail verdict.
//
// Every normalizer is a pure function of its input and a Policy. Running a
// normalizer over its own Normalized output returns the same value, and no
// normalizer panics outward when called through Safe.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unknown is the model/brand label used when nothing could be detected.
const (
	Unknown = "Unknown"
	Other   = "Otro"
)

// Result is the common part of every normalizer output.
type Result struct {
	Original          string `json:"original"`
	Normalized        string `json:"normalizado"`
	MeetsRequirements bool   `json:"meets_requirements"`
	Reason            string `json:"reason,omitempty"`
}

// PanicError is returned by Safe when a normalizer panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("normalizer panic: %v", e.Value)
}

// Safe runs fn, converting a panic into fallback plus a *PanicError.
func Safe[T any](fallback T, fn func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = fallback
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(), nil
}

// Fold lower-cases s, strips diacritics and trims surrounding space.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

var spaceRe = regexp.MustCompile(`\s+`)

// Squash trims s and collapses internal whitespace runs to one space.
func Squash(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Text is the generic normalizer for free-text fields.
func Text(raw string) string {
	return Squash(strings.Trim(raw, "\x00\uFEFF"))
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9.+]+`)

func tokens(folded string) []string {
	parts := tokenSplitRe.Split(folded, -1)
	out := parts[:0]
	for _, p := range parts {
		p = strings.Trim(p, ".")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDecimal accepts both "2.80" and "2,80".
func parseDecimal(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// nearest returns the list entry closest to v; ties go to the larger entry.
func nearest(v float64, sizes []float64) float64 {
	best := sizes[0]
	bestDist := math.Abs(v - best)
	for _, s := range sizes[1:] {
		d := math.Abs(v - s)
		if d < bestDist || d == bestDist && s > best {
			best, bestDist = s, d
		}
	}
	return best
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
