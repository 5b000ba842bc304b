package pipelines

import (
	"time"
)

// ID type for a pipeline run
type RunID string

// Kind enum: which pipeline produced the run
type Kind string

const (
	KindDependencyScan Kind = "dependency-scan"
	KindStaticAnalysis Kind = "static-analysis"
)

// Tool enum for the wrapped external scanners
type Tool string

const (
	ToolPipAudit     Tool = "pip-audit"
	ToolSafety       Tool = "safety"
	ToolPip          Tool = "pip"
	ToolSonarScanner Tool = "sonar-scanner"
)

// Status enum
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Quality gate terminal states
type GateStatus string

const (
	GateNotRun  GateStatus = "not_run"
	GateOK      GateStatus = "ok"
	GateFailed  GateStatus = "failed"
	GateError   GateStatus = "error"
	GateTimeout GateStatus = "timeout"
)

// Which channel produced the gate verdict
type GateSource string

const (
	GateSourceNone     GateSource = ""
	GateSourcePrimary  GateSource = "webhook"
	GateSourceFallback GateSource = "api"
)

// QualityGateResult value object
type QualityGateResult struct {
	Status GateStatus `json:"status"`
	Source GateSource `json:"source"`
}

// Passed reports whether the gate allows the pipeline to continue.
func (q QualityGateResult) Passed() bool { return q.Status == GateOK }

// Aggregate Root: PipelineRun, one persisted row per pipeline execution.
type PipelineRun struct {
	ID           RunID      `json:"id"`
	TenantID     string     `json:"tenant_id"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	Kind         Kind       `json:"kind"`
	ProjectKey   string     `json:"project_key"`
	RepoURL      string     `json:"repo_url,omitempty"`
	Branch       string     `json:"branch,omitempty"`
	Status       Status     `json:"status"`
	FindingCount int        `json:"finding_count"`
	ReportName   string     `json:"report_name,omitempty"`
	ReportURL    string     `json:"report_url,omitempty"`
	GateStatus   GateStatus `json:"gate_status,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RunError records an unrecoverable environment failure for audit.
type RunError struct {
	ID         int64     `json:"id"`
	TenantID   string    `json:"tenant_id"`
	RunID      RunID     `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
}
