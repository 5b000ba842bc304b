package pipelines

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/auditron-ci/internal/config"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
	manifestres "github.com/bryanwahyu/auditron-ci/internal/infra/manifests"
)

type memoryRepo struct {
	runs map[domain.RunID]*domain.PipelineRun
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{runs: make(map[domain.RunID]*domain.PipelineRun)}
}

func (m *memoryRepo) Save(_ context.Context, r *domain.PipelineRun) error {
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *memoryRepo) Get(_ context.Context, _ string, id domain.RunID) (*domain.PipelineRun, error) {
	r, ok := m.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (m *memoryRepo) Latest(_ context.Context, _ string, _ int) ([]*domain.PipelineRun, error) {
	return nil, nil
}

func (m *memoryRepo) Summary(_ context.Context, _ string, _ int) (domain.RunSummary, error) {
	return domain.RunSummary{}, nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, _ string, id domain.RunID, s domain.Status) error {
	if r, ok := m.runs[id]; ok {
		r.Status = s
	}
	return nil
}

func (m *memoryRepo) Paginate(_ context.Context, _ string, _, _ int) (domain.PaginatedResult, error) {
	return domain.PaginatedResult{}, nil
}

type memoryErrors struct {
	recorded []*domain.RunError
}

func (m *memoryErrors) Record(_ context.Context, e *domain.RunError) error {
	m.recorded = append(m.recorded, e)
	return nil
}

func (m *memoryErrors) Latest(_ context.Context, _ string, _ int) ([]*domain.RunError, error) {
	return m.recorded, nil
}

type captureNotifier struct {
	outcome    *domain.PipelineOutcome
	gate       domain.QualityGateResult
	recipients []string
	err        error
}

func (c *captureNotifier) Notify(o domain.PipelineOutcome, g domain.QualityGateResult, r []string) error {
	c.outcome = &o
	c.gate = g
	c.recipients = r
	return c.err
}

type fakeArtifacts struct {
	uploadedKey string
	url         string
	err         error
	cleanedUp   bool
}

func (f *fakeArtifacts) Upload(_ context.Context, _, key string) (string, error) {
	f.uploadedKey = key
	return f.url, f.err
}

func (f *fakeArtifacts) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	f.cleanedUp = true
	return f.Upload(ctx, localPath, key)
}

type fakeGate struct{ result domain.QualityGateResult }

func (f *fakeGate) Wait(context.Context) domain.QualityGateResult { return f.result }

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		ProjectKey: "demo",
		Branch:     "main",
		ReportFile: "dependency_scan_report.txt",
		Tools:      []string{"pip-audit", "safety"},
	}
}

func newTestService(workRepo *memoryRepo, runner domain.ToolRunner) *Service {
	return &Service{
		Repo:     workRepo,
		Resolver: manifestres.NewResolver(),
		Runner:   runner,
		Clock:    fixedClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Cfg:      testPipelineConfig(),
		Log:      zerolog.Nop(),
	}
}

func TestRunDependencyScan_CleanProject(t *testing.T) {
	workDir := t.TempDir()
	raw := "flask==0.12\n"
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "requirements.txt"), []byte(raw), 0o644))

	repo := newMemoryRepo()
	runner := &fakeRunner{}
	svc := newTestService(repo, runner)

	outcome, err := svc.RunDependencyScan(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, domain.KindDependencyScan, outcome.Kind)
	require.NotNil(t, outcome.Summary)
	assert.Equal(t, 0, outcome.Summary.FindingCount)
	assert.Equal(t, []string{"No issues detected."}, outcome.Summary.Highlights)
	assert.Equal(t, domain.GateNotRun, outcome.Gate.Status)

	reportPath := filepath.Join(workDir, "dependency_scan_report.txt")
	assert.Equal(t, reportPath, outcome.ReportLocation)
	content, rerr := os.ReadFile(reportPath)
	require.NoError(t, rerr)
	// the manifest appears verbatim in the report
	assert.Contains(t, string(content), "flask==0.12")
	assert.Contains(t, string(content), "pyproject.toml not found in project root")
	assert.Contains(t, string(content), "Approximate findings: 0")

	// persisted row reflects the final state
	run, gerr := repo.Get(context.Background(), "acme", outcome.RunID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusSuccess, run.Status)
	assert.Equal(t, 0, run.FindingCount)
	assert.Equal(t, "acme", run.TenantID)
}

func TestRunDependencyScan_FindingsDoNotFailTheRun(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "requirements.txt"), []byte("flask==0.12\n"), 0o644))

	repo := newMemoryRepo()
	runner := &fakeRunner{respond: map[string]domain.ToolInvocation{
		"safety/manifest": {ExitStatus: 64, Output: "vulnerability found in flask\n"},
	}}
	svc := newTestService(repo, runner)

	outcome, err := svc.RunDependencyScan(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)

	assert.True(t, outcome.Succeeded())
	require.NotNil(t, outcome.Summary)
	assert.Equal(t, 1, outcome.Summary.FindingCount)

	content, rerr := os.ReadFile(filepath.Join(workDir, "dependency_scan_report.txt"))
	require.NoError(t, rerr)
	assert.Contains(t, string(content), "scan completed with issues")
}

func TestRunDependencyScan_EnvironmentErrorFailsTheRun(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "requirements.txt"), []byte("flask==0.12\n"), 0o644))

	repo := newMemoryRepo()
	errRepo := &memoryErrors{}
	runner := &fakeRunner{failOn: "pip-audit/manifest"}
	svc := newTestService(repo, runner)
	svc.Errors = errRepo

	outcome, err := svc.RunDependencyScan(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.Error(t, err)

	assert.False(t, outcome.Succeeded())
	assert.Nil(t, outcome.Summary)
	assert.NotEmpty(t, outcome.ErrorMessage)

	// partial report still written for diagnosis
	content, rerr := os.ReadFile(filepath.Join(workDir, "dependency_scan_report.txt"))
	require.NoError(t, rerr)
	assert.Contains(t, string(content), "flask==0.12")

	// the failure is audited
	require.Len(t, errRepo.recorded, 1)
	assert.Equal(t, "scan", errRepo.recorded[0].Stage)

	run, gerr := repo.Get(context.Background(), "acme", outcome.RunID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusFailed, run.Status)
}

func TestRunDependencyScan_ArchivesAndNotifies(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "requirements.txt"), []byte("flask==0.12\n"), 0o644))

	repo := newMemoryRepo()
	store := &fakeArtifacts{url: "https://minio.local/reports/abc"}
	notifier := &captureNotifier{}
	svc := newTestService(repo, &fakeRunner{})
	svc.Artifacts = store
	svc.Notifier = notifier
	svc.Cfg.Recipients = []string{"dev@example.com"}

	outcome, err := svc.RunDependencyScan(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)

	assert.Equal(t, "https://minio.local/reports/abc", outcome.ReportLocation)
	assert.Contains(t, store.uploadedKey, "acme/dependency-scan/")
	assert.Contains(t, store.uploadedKey, "dependency_scan_report.txt")

	require.NotNil(t, notifier.outcome)
	assert.Equal(t, outcome.RunID, notifier.outcome.RunID)
	assert.Equal(t, []string{"dev@example.com"}, notifier.recipients)

	// default workspace cleanup removes the local copy after archival
	assert.True(t, store.cleanedUp)
}

func TestRunDependencyScan_CleanupDisabledKeepsLocalReport(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "requirements.txt"), []byte("flask==0.12\n"), 0o644))

	f := false
	store := &fakeArtifacts{url: "https://minio.local/reports/abc"}
	svc := newTestService(newMemoryRepo(), &fakeRunner{})
	svc.Artifacts = store
	svc.Cfg.CleanupWorkspace = &f

	_, err := svc.RunDependencyScan(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)

	assert.False(t, store.cleanedUp)
	assert.Contains(t, store.uploadedKey, "dependency_scan_report.txt")
}

func TestMarkFailed(t *testing.T) {
	repo := newMemoryRepo()
	run := &domain.PipelineRun{ID: "run-1", TenantID: "acme", Status: domain.StatusRunning}
	require.NoError(t, repo.Save(context.Background(), run))

	svc := newTestService(repo, &fakeRunner{})
	require.NoError(t, svc.MarkFailed(context.Background(), "acme", "run-1"))

	got, err := repo.Get(context.Background(), "acme", "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)

	// without persistence or without an id there is nothing to update
	svc.Repo = nil
	require.NoError(t, svc.MarkFailed(context.Background(), "acme", "run-1"))
	svc.Repo = repo
	require.NoError(t, svc.MarkFailed(context.Background(), "acme", ""))
}

func TestRunDependencyScan_NotificationFailureDoesNotChangeOutcome(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "requirements.txt"), []byte("flask==0.12\n"), 0o644))

	notifier := &captureNotifier{err: errors.New("smtp unreachable")}
	svc := newTestService(newMemoryRepo(), &fakeRunner{})
	svc.Notifier = notifier
	svc.Cfg.Recipients = []string{"dev@example.com"}

	outcome, err := svc.RunDependencyScan(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
}

func TestRunStaticAnalysis_GateResultInReport(t *testing.T) {
	workDir := t.TempDir()

	repo := newMemoryRepo()
	runner := &fakeRunner{respond: map[string]domain.ToolInvocation{
		"sonar-scanner/source": {Output: "ANALYSIS SUCCESSFUL\n"},
	}}
	svc := newTestService(repo, runner)
	svc.Gate = &fakeGate{result: domain.QualityGateResult{
		Status: domain.GateOK,
		Source: domain.GateSourcePrimary,
	}}
	svc.SonarHost = "https://sonar.local"

	outcome, err := svc.RunStaticAnalysis(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, domain.KindStaticAnalysis, outcome.Kind)
	assert.Equal(t, domain.GateOK, outcome.Gate.Status)
	assert.Equal(t, domain.GateSourcePrimary, outcome.Gate.Source)

	content, rerr := os.ReadFile(filepath.Join(workDir, "dependency_scan_report.txt"))
	require.NoError(t, rerr)
	assert.Contains(t, string(content), "status=ok source=webhook")

	// the scanner request carried the analysis inputs
	require.NotEmpty(t, runner.requests)
	req := runner.requests[0]
	assert.Equal(t, domain.ToolSonarScanner, req.Tool)
	assert.Equal(t, domain.ModeSource, req.Mode)
	assert.Equal(t, "demo", req.ProjectKey)
	assert.Equal(t, "https://sonar.local", req.HostURL)
}

func TestRunStaticAnalysis_GateDisabled(t *testing.T) {
	workDir := t.TempDir()

	f := false
	svc := newTestService(newMemoryRepo(), &fakeRunner{})
	svc.Gate = &fakeGate{result: domain.QualityGateResult{Status: domain.GateOK}}
	svc.Cfg.QualityGateEnabled = &f

	outcome, err := svc.RunStaticAnalysis(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: workDir})
	require.NoError(t, err)

	assert.Equal(t, domain.GateNotRun, outcome.Gate.Status)
}

func TestRunStaticAnalysis_CoverageOnlyWhenEnabled(t *testing.T) {
	runner := &fakeRunner{}
	svc := newTestService(newMemoryRepo(), runner)
	svc.Cfg.CoverageReport = "coverage.xml"

	_, err := svc.RunStaticAnalysis(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, runner.requests[0].CoverageReport)

	runner2 := &fakeRunner{}
	svc2 := newTestService(newMemoryRepo(), runner2)
	svc2.Cfg.CoverageReport = "coverage.xml"
	svc2.Cfg.CoverageEnabled = true

	_, err = svc2.RunStaticAnalysis(context.Background(),
		TriggerCommand{TenantID: "acme", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "coverage.xml", runner2.requests[0].CoverageReport)
}
