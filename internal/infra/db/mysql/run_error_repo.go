package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

type RunErrorRepository struct {
	db *sql.DB
}

func NewRunErrorRepository(db *sql.DB) *RunErrorRepository { return &RunErrorRepository{db: db} }

func (r *RunErrorRepository) Record(ctx context.Context, e *domain.RunError) error {
	const q = `
INSERT INTO pipeline_run_errors
  (tenant_id, run_id, stage, message, occurred_at)
VALUES (?,?,?,?,?)
`
	tenant := stringOrDash(e.TenantID)
	run := stringOrDash(string(e.RunID))
	stage := stringOrDash(e.Stage)
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, tenant, run, stage, msg, occurred)
	return err
}

func (r *RunErrorRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.RunError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, run_id, stage, message, occurred_at
FROM pipeline_run_errors
WHERE tenant_id = ?
ORDER BY occurred_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RunError
	for rows.Next() {
		var e domain.RunError
		if err := rows.Scan(&e.ID, &e.TenantID, &e.RunID, &e.Stage, &e.Message, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
