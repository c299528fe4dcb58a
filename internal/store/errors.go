package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/parque/internal/core"
)

const errorColumns = `id, job_id, tipo, severidad, codigo, campo, mensaje, fila, columna, paso,
	valor_original, valor_esperado, accion_sugerida, resuelto, fecha_resolucion, nota_resolucion,
	veces_ocurrido, es_recurrente, primera_ocurrencia, ultima_ocurrencia`

// ErrorStore is a core.ErrorStore backed by the etl_errors table.
type ErrorStore struct {
	db  DBTX
	now func() time.Time
}

// NewErrorStore returns a store using db.
func NewErrorStore(db DBTX) *ErrorStore {
	return &ErrorStore{db: db, now: time.Now}
}

var _ core.ErrorStore = (*ErrorStore)(nil)

// FindOrCreate upserts on the signature, so concurrent writers of the same
// error converge on one row.
func (s *ErrorStore) FindOrCreate(ctx context.Context, e *core.ETLError) (*core.ETLError, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	occurrences := max(e.Occurrences, 1)

	row := s.db.QueryRow(ctx, `
		INSERT INTO etl_errors (id, signature, job_id, tipo, severidad, codigo, campo, mensaje, fila,
			columna, paso, valor_original, valor_esperado, accion_sugerida, veces_ocurrido,
			primera_ocurrencia, ultima_ocurrencia)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (signature) DO UPDATE SET
			veces_ocurrido    = etl_errors.veces_ocurrido + 1,
			es_recurrente     = TRUE,
			ultima_ocurrencia = EXCLUDED.ultima_ocurrencia
		RETURNING `+errorColumns,
		id, e.Signature(), e.JobID, string(e.Type), string(e.Severity), e.Code, e.Field, e.Message, e.Row,
		e.Column, e.Step, e.OriginalValue, e.ExpectedValue, e.SuggestedAction, occurrences,
		e.FirstSeen, e.LastSeen,
	)
	out, err := scanError(row)
	if err != nil {
		return nil, fmt.Errorf("upsert etl error: %w", err)
	}
	return out, nil
}

// List returns a page of matching entries, most recently seen first.
func (s *ErrorStore) List(ctx context.Context, f core.ErrorFilter) (core.ErrorPage, error) {
	wb := newWhereBuilder()
	wb.Eq("job_id", f.JobID)
	wb.Eq("tipo", string(f.Type))
	wb.Eq("severidad", string(f.Severity))
	wb.Bool("resuelto", f.Resolved)
	where, args := wb.Build()

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM etl_errors"+where, args...).Scan(&total); err != nil {
		return core.ErrorPage{}, fmt.Errorf("count etl errors: %w", err)
	}

	page := normalizePage(f.Page)
	query := fmt.Sprintf("SELECT %s FROM etl_errors%s ORDER BY ultima_ocurrencia DESC, id LIMIT $%d OFFSET $%d",
		errorColumns, where, wb.NextArgIndex(), wb.NextArgIndex()+1)
	args = append(args, page.Size, (page.Number-1)*page.Size)

	items, err := s.query(ctx, query, args...)
	if err != nil {
		return core.ErrorPage{}, err
	}
	return core.ErrorPage{
		Items: items,
		Total: total,
		Page:  page.Number,
		Size:  page.Size,
		Pages: (total + page.Size - 1) / page.Size,
	}, nil
}

// Summary aggregates entries last seen since q.Since.
func (s *ErrorStore) Summary(ctx context.Context, q core.SummaryQuery) (core.ErrorSummary, error) {
	if q.TopN <= 0 {
		q.TopN = core.DefaultTopN
	}
	wb := newWhereBuilder()
	wb.Eq("job_id", q.JobID)
	wb.Since("ultima_ocurrencia", q.Since)
	where, args := wb.Build()

	sum := core.ErrorSummary{
		ByType:     make(map[core.ErrorType]int),
		BySeverity: make(map[core.Severity]int),
	}
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(veces_ocurrido), 0), COUNT(*) FILTER (WHERE NOT resuelto)
		FROM etl_errors`+where, args...).Scan(&sum.Total, &sum.Occurrences, &sum.Unresolved)
	if err != nil {
		return core.ErrorSummary{}, fmt.Errorf("summarize etl errors: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT tipo, severidad, COUNT(*) FROM etl_errors`+where+`
		GROUP BY tipo, severidad`, args...)
	if err != nil {
		return core.ErrorSummary{}, fmt.Errorf("group etl errors: %w", err)
	}
	var typ, sev string
	var n int
	_, err = pgx.ForEachRow(rows, []any{&typ, &sev, &n}, func() error {
		sum.ByType[core.ErrorType(typ)] += n
		sum.BySeverity[core.Severity(sev)] += n
		return nil
	})
	if err != nil {
		return core.ErrorSummary{}, fmt.Errorf("group etl errors: %w", err)
	}

	recurrent := where + " AND es_recurrente"
	if where == "" {
		recurrent = " WHERE es_recurrente"
	}
	query := fmt.Sprintf("SELECT %s FROM etl_errors%s ORDER BY veces_ocurrido DESC, ultima_ocurrencia DESC LIMIT $%d",
		errorColumns, recurrent, wb.NextArgIndex())
	sum.TopRecurrent, err = s.query(ctx, query, append(args, q.TopN)...)
	if err != nil {
		return core.ErrorSummary{}, err
	}
	return sum, nil
}

// Resolve marks an entry resolved.
func (s *ErrorStore) Resolve(ctx context.Context, id, note string) (*core.ETLError, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrErrorNotFound, id)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE etl_errors SET resuelto = TRUE, fecha_resolucion = $2, nota_resolucion = $3
		WHERE id = $1
		RETURNING `+errorColumns, id, s.now(), note)
	out, err := scanError(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrErrorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve etl error: %w", err)
	}
	return out, nil
}

// PurgeResolved deletes resolved entries whose resolution predates before.
func (s *ErrorStore) PurgeResolved(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM etl_errors WHERE resuelto AND fecha_resolucion < $1", before)
	if err != nil {
		return 0, fmt.Errorf("purge etl errors: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *ErrorStore) query(ctx context.Context, sql string, args ...any) ([]core.ETLError, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query etl errors: %w", err)
	}
	defer rows.Close()

	items := make([]core.ETLError, 0)
	for rows.Next() {
		e, err := scanError(rows)
		if err != nil {
			return nil, fmt.Errorf("scan etl error: %w", err)
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query etl errors: %w", err)
	}
	return items, nil
}

func scanError(row pgx.Row) (*core.ETLError, error) {
	var (
		e       core.ETLError
		typ     string
		sev     string
		fila    *int32
		resolAt *time.Time
	)
	err := row.Scan(&e.ID, &e.JobID, &typ, &sev, &e.Code, &e.Field, &e.Message, &fila, &e.Column, &e.Step,
		&e.OriginalValue, &e.ExpectedValue, &e.SuggestedAction, &e.Resolved, &resolAt, &e.ResolutionNote,
		&e.Occurrences, &e.Recurrent, &e.FirstSeen, &e.LastSeen)
	if err != nil {
		return nil, err
	}
	e.Type = core.ErrorType(typ)
	e.Severity = core.Severity(sev)
	if fila != nil {
		n := int(*fila)
		e.Row = &n
	}
	e.ResolvedAt = resolAt
	return &e, nil
}

// normalizePage mirrors the clamping the in-memory store applies.
func normalizePage(p core.Page) core.Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = core.DefaultPageSize
	}
	if p.Size > core.MaxPageSize {
		p.Size = core.MaxPageSize
	}
	return p
}
