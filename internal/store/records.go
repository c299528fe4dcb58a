package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/parque/internal/core"
)

var recordColumns = []string{
	"id", "job_id", "fila", "audit_id", "ciclo_auditoria", "proveedor", "sitio", "tipo_atencion",
	"hostname", "estado", "score_general", "nivel_cumplimiento", "overall_compliance",
	"overall_failure_reason", "data",
}

// RecordSink writes finished records with COPY. Saving a job again replaces
// its earlier rows.
type RecordSink struct {
	pool *pgxpool.Pool
}

// NewRecordSink returns a sink using pool.
func NewRecordSink(pool *pgxpool.Pool) *RecordSink {
	return &RecordSink{pool: pool}
}

var _ core.RecordSink = (*RecordSink)(nil)

// SaveRecords replaces the stored records of jobID in one transaction.
func (s *RecordSink) SaveRecords(ctx context.Context, jobID string, records []core.InventoryRecord) error {
	rows := make([][]any, 0, len(records))
	for i := range records {
		row, err := recordRow(jobID, &records[i])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM inventory_records WHERE job_id = $1", jobID); err != nil {
		return fmt.Errorf("clear job records: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"inventory_records"}, recordColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy records: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy records: wrote %d of %d", n, len(rows))
	}
	return tx.Commit(ctx)
}

// recordRow flattens the queryable columns and keeps the full record as JSON.
func recordRow(jobID string, rec *core.InventoryRecord) ([]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record at row %d: %w", rec.Row, err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []any{
		id, jobID, int32(rec.Row), rec.AuditID, rec.AuditCycle, rec.Provider, rec.Site, rec.AttentionType,
		rec.Hostname, string(rec.State), rec.OverallScore, string(rec.Tier), rec.OverallCompliance,
		rec.OverallFailureReason, data,
	}, nil
}

// DeleteJob removes the stored records of jobID and reports how many went.
func (s *RecordSink) DeleteJob(ctx context.Context, jobID string) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM inventory_records WHERE job_id = $1", jobID)
	if err != nil {
		return 0, fmt.Errorf("delete job records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
