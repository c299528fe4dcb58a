package store

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder assembles a parameterized WHERE clause. Empty values are
// skipped so optional filters need no branching at the call site.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

func (wb *whereBuilder) add(cond string, arg any) {
	wb.conditions = append(wb.conditions, fmt.Sprintf(cond, wb.argIndex))
	wb.args = append(wb.args, arg)
	wb.argIndex++
}

// Eq adds "column = $n" unless value is empty.
func (wb *whereBuilder) Eq(column, value string) {
	if value == "" {
		return
	}
	wb.add(column+" = $%d", value)
}

// Bool adds "column = $n" when value is set.
func (wb *whereBuilder) Bool(column string, value *bool) {
	if value == nil {
		return
	}
	wb.add(column+" = $%d", *value)
}

// Since adds "column >= $n" unless t is zero.
func (wb *whereBuilder) Since(column string, t time.Time) {
	if t.IsZero() {
		return
	}
	wb.add(column+" >= $%d", t)
}

// NextArgIndex is the placeholder number the next argument will take.
func (wb *whereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// Build returns the clause with a leading space, or "" and nil args when no
// condition was added.
func (wb *whereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
