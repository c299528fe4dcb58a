package core

import (
	"sort"
	"strings"
)

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fallback returns def when s is blank.
func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// nonEmptyCells counts cells with content after cleanup.
func nonEmptyCells(cells map[string]string) int {
	n := 0
	for _, v := range cells {
		if CleanCell(v) != "" {
			n++
		}
	}
	return n
}
