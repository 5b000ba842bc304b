package pipelines

import (
	"context"

	"github.com/bryanwahyu/auditron-ci/internal/domain/manifests"
)

// Repository port (persistence for pipeline runs)
type Repository interface {
	Save(ctx context.Context, r *PipelineRun) error
	Get(ctx context.Context, tenant string, id RunID) (*PipelineRun, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*PipelineRun, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (RunSummary, error)
	UpdateStatus(ctx context.Context, tenant string, id RunID, status Status) error
	Paginate(ctx context.Context, tenant string, page, pageSize int) (PaginatedResult, error)
}

// RunSummary is the aggregate the Summary query returns.
type RunSummary struct {
	TotalRuns     int `json:"total_runs"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	TotalFindings int `json:"total_findings"`
}

// ErrorRepository port (audit trail for environment failures)
type ErrorRepository interface {
	Record(ctx context.Context, e *RunError) error
	Latest(ctx context.Context, tenant string, limit int) ([]*RunError, error)
}

// ToolRunner port (execution of one external scanner)
type ToolRunner interface {
	Run(ctx context.Context, req RunRequest) (ToolInvocation, error)
}

// ManifestResolver port (manifest discovery and normalization)
type ManifestResolver interface {
	Resolve(root string) []manifests.ProjectManifest
}

// ArtifactStore port (report archival)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}

// GateChecker port. Wait blocks until a terminal gate state; it must
// resolve within its configured timeout plus one fallback query.
type GateChecker interface {
	Wait(ctx context.Context) QualityGateResult
}

// Notifier port (mail dispatch). Dispatch failures are the caller's to log;
// they never change a finished outcome.
type Notifier interface {
	Notify(outcome PipelineOutcome, gate QualityGateResult, recipients []string) error
}

// SourceFetcher port (source-checkout collaborator)
type SourceFetcher interface {
	Fetch(ctx context.Context, repoURL, branch, dest string) error
}

// Provisioner port (disposable tool-environment collaborator)
type Provisioner interface {
	Provision(ctx context.Context, workDir string) error
	Teardown(workDir string) error
}
