package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

type PipelineRepository struct {
	db *sql.DB
}

func NewPipelineRepository(db *sql.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

const runColumns = `id, tenant_id, triggered_at, kind, project_key, repo_url, branch,
       status, finding_count, report_name, report_url, gate_status, duration_ms, error_message`

// Save insert/update a pipeline run record
func (r *PipelineRepository) Save(ctx context.Context, p *domain.PipelineRun) error {
	const q = `
INSERT INTO pipeline_runs
(id, tenant_id, triggered_at, kind, project_key, repo_url, branch,
 status, finding_count, report_name, report_url, gate_status, duration_ms, error_message)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 finding_count=VALUES(finding_count),
 report_name=VALUES(report_name), report_url=VALUES(report_url),
 gate_status=VALUES(gate_status),
 duration_ms=VALUES(duration_ms), error_message=VALUES(error_message);
`
	tenant := stringOrDash(p.TenantID)
	status := stringOrDash(string(p.Status))
	triggered := p.TriggeredAt
	if triggered.IsZero() {
		triggered = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q,
		p.ID, tenant, triggered, p.Kind, p.ProjectKey, p.RepoURL, p.Branch,
		status, p.FindingCount, p.ReportName, p.ReportURL, p.GateStatus,
		p.DurationMS, p.ErrorMessage,
	)
	return err
}

// Get by ID + Tenant
func (r *PipelineRepository) Get(ctx context.Context, tenant string, id domain.RunID) (*domain.PipelineRun, error) {
	q := `SELECT ` + runColumns + `
FROM pipeline_runs
WHERE tenant_id=? AND id=? LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, tenant, id)

	var p domain.PipelineRun
	if err := scanRun(row, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Latest runs per tenant
func (r *PipelineRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + runColumns + `
FROM pipeline_runs
WHERE tenant_id=? ORDER BY triggered_at DESC LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PipelineRun
	for rows.Next() {
		var p domain.PipelineRun
		if err := scanRun(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Summary aggregates run results since N days
func (r *PipelineRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.RunSummary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_runs,
       COALESCE(SUM(status = 'success'),0)  AS succeeded,
       COALESCE(SUM(status = 'failed'),0)   AS failed,
       COALESCE(SUM(finding_count),0)       AS total_findings
FROM pipeline_runs
WHERE tenant_id=? AND triggered_at >= ?;
`
	var s domain.RunSummary
	if err := r.db.QueryRowContext(ctx, q, tenant, cut).
		Scan(&s.TotalRuns, &s.Succeeded, &s.Failed, &s.TotalFindings); err != nil {
		return domain.RunSummary{}, err
	}
	return s, nil
}

// UpdateStatus only touches the status column
func (r *PipelineRepository) UpdateStatus(ctx context.Context, tenant string, id domain.RunID, status domain.Status) error {
	const q = `
UPDATE pipeline_runs
SET status = ?
WHERE tenant_id = ? AND id = ?;`
	_, err := r.db.ExecContext(ctx, q, status, tenant, id)
	return err
}

// Paginate with offset + limit (classic pagination)
func (r *PipelineRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	q := `SELECT ` + runColumns + `
FROM pipeline_runs
WHERE tenant_id=?
ORDER BY triggered_at DESC, id DESC
LIMIT ? OFFSET ?;`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PipelineRun
	for rows.Next() {
		var p domain.PipelineRun
		if err := scanRun(rows, &p); err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		runs = append(runs, &p)
	}
	if err = rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pipeline_runs WHERE tenant_id = ?", tenant).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       runs,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, p *domain.PipelineRun) error {
	return row.Scan(
		&p.ID, &p.TenantID, &p.TriggeredAt, &p.Kind, &p.ProjectKey, &p.RepoURL, &p.Branch,
		&p.Status, &p.FindingCount, &p.ReportName, &p.ReportURL, &p.GateStatus,
		&p.DurationMS, &p.ErrorMessage,
	)
}
