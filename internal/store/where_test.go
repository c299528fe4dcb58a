package store

import (
	"testing"
	"time"
)

func TestWhereBuilder_Empty(t *testing.T) {
	clause, args := newWhereBuilder().Build()
	if clause != "" || args != nil {
		t.Errorf("got %q %v, want empty clause and nil args", clause, args)
	}
}

func TestWhereBuilder_SkipsUnset(t *testing.T) {
	wb := newWhereBuilder()
	wb.Eq("job_id", "")
	wb.Eq("tipo", "PARSING")
	wb.Bool("resuelto", nil)
	wb.Since("ultima_ocurrencia", time.Time{})

	clause, args := wb.Build()
	if clause != " WHERE tipo = $1" {
		t.Errorf("got %q, want %q", clause, " WHERE tipo = $1")
	}
	if len(args) != 1 || args[0] != "PARSING" {
		t.Errorf("got %v, want [PARSING]", args)
	}
}

func TestWhereBuilder_Numbering(t *testing.T) {
	resolved := true
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	wb := newWhereBuilder()
	if wb.NextArgIndex() != 1 {
		t.Fatalf("got %d, want 1", wb.NextArgIndex())
	}
	wb.Eq("job_id", "job-1")
	wb.Bool("resuelto", &resolved)
	wb.Since("ultima_ocurrencia", since)

	clause, args := wb.Build()
	want := " WHERE job_id = $1 AND resuelto = $2 AND ultima_ocurrencia >= $3"
	if clause != want {
		t.Errorf("got %q, want %q", clause, want)
	}
	if len(args) != 3 || args[1] != true || args[2] != since {
		t.Errorf("got %v", args)
	}
	if wb.NextArgIndex() != 4 {
		t.Errorf("got %d, want 4", wb.NextArgIndex())
	}
}
