package pipelines

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/auditron-ci/internal/application"
	"github.com/bryanwahyu/auditron-ci/internal/config"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// Service implements the pipeline use-cases. Repo, Errors, Artifacts,
// Notifier, Gate, Fetcher and Prep are optional collaborators: the one-shot
// CLI runs without persistence or archival, the API service wires them all.
type Service struct {
	Repo      domain.Repository
	Errors    domain.ErrorRepository
	Resolver  domain.ManifestResolver
	Runner    domain.ToolRunner
	Artifacts domain.ArtifactStore
	Notifier  domain.Notifier
	Gate      domain.GateChecker
	Fetcher   domain.SourceFetcher
	Prep      domain.Provisioner
	Clock     application.Clock
	Cfg       config.PipelineConfig
	SonarHost string
	Log       zerolog.Logger
}

// TriggerCommand is the per-run input; empty fields fall back to the
// configured pipeline defaults.
type TriggerCommand struct {
	TenantID string
	WorkDir  string
	RepoURL  string
	Branch   string
}

// RunDependencyScanUntilDone runs with context.Background() so a run
// triggered from an HTTP handler survives the request context.
func (s *Service) RunDependencyScanUntilDone(cmd TriggerCommand) (domain.PipelineOutcome, error) {
	return s.RunDependencyScan(context.Background(), cmd)
}

// RunStaticAnalysisUntilDone is the background-goroutine variant.
func (s *Service) RunStaticAnalysisUntilDone(cmd TriggerCommand) (domain.PipelineOutcome, error) {
	return s.RunStaticAnalysis(context.Background(), cmd)
}

// RunDependencyScan executes the full dependency-scan pipeline: checkout,
// provision, orchestrated scans, report write + archive, persistence and
// notification. Only environment errors produce a FAILURE outcome; scanner
// findings are report content.
func (s *Service) RunDependencyScan(ctx context.Context, cmd TriggerCommand) (domain.PipelineOutcome, error) {
	now := s.Clock.Now()
	id := domain.RunID(fmt.Sprintf("%s-%s", uuid.New().String(), domain.KindDependencyScan))
	run := s.newRun(id, domain.KindDependencyScan, cmd, now)
	if err := s.saveRun(ctx, run); err != nil {
		return domain.PipelineOutcome{RunID: id, Kind: run.Kind, Status: domain.StatusFailed}, err
	}

	workDir, cleanup, err := s.prepareWorkspace(ctx, cmd, run)
	defer cleanup()
	if err != nil {
		return s.finishRun(ctx, run, &domain.ScanReport{}, domain.ScanSummary{}, notRunGate(), workDir, now, "prepare", err)
	}

	scratch, err := os.MkdirTemp("", "auditron-*")
	if err != nil {
		return s.finishRun(ctx, run, &domain.ScanReport{}, domain.ScanSummary{}, notRunGate(), workDir, now, "scratch", err)
	}
	defer os.RemoveAll(scratch)

	orch := &Orchestrator{
		Resolver: s.Resolver,
		Runner:   s.Runner,
		Clock:    s.Clock,
		Tools:    scannerTools(s.Cfg.Tools),
	}
	report, summary, runErr := orch.RunAll(ctx, workDir, scratch)
	return s.finishRun(ctx, run, report, summary, notRunGate(), workDir, now, "scan", runErr)
}

// RunStaticAnalysis executes the static-analysis pipeline: one
// sonar-scanner invocation followed by the quality-gate wait.
func (s *Service) RunStaticAnalysis(ctx context.Context, cmd TriggerCommand) (domain.PipelineOutcome, error) {
	now := s.Clock.Now()
	id := domain.RunID(fmt.Sprintf("%s-%s", uuid.New().String(), domain.KindStaticAnalysis))
	run := s.newRun(id, domain.KindStaticAnalysis, cmd, now)
	if err := s.saveRun(ctx, run); err != nil {
		return domain.PipelineOutcome{RunID: id, Kind: run.Kind, Status: domain.StatusFailed}, err
	}

	workDir, cleanup, err := s.prepareWorkspace(ctx, cmd, run)
	defer cleanup()
	if err != nil {
		return s.finishRun(ctx, run, &domain.ScanReport{}, domain.ScanSummary{}, notRunGate(), workDir, now, "prepare", err)
	}

	report := &domain.ScanReport{}
	report.Append("Static analysis",
		fmt.Sprintf("Scan started at %s", now.UTC().Format(time.RFC3339)))

	coverage := ""
	if s.Cfg.CoverageEnabled {
		coverage = s.Cfg.CoverageReport
	}
	inv, runErr := s.Runner.Run(ctx, domain.RunRequest{
		Tool:           domain.ToolSonarScanner,
		Mode:           domain.ModeSource,
		WorkDir:        workDir,
		ProjectKey:     s.Cfg.ProjectKey,
		ProjectName:    s.Cfg.ProjectName,
		HostURL:        s.SonarHost,
		Exclusions:     s.Cfg.Exclusions,
		CoverageReport: coverage,
	})

	gate := notRunGate()
	if runErr == nil {
		report.Append(string(domain.ToolSonarScanner), invocationBody(inv))

		if s.gateEnabled() && s.Gate != nil {
			gate = s.Gate.Wait(ctx)
			report.Append("Quality gate",
				fmt.Sprintf("status=%s source=%s", gate.Status, gate.Source))
		}
	}

	summary := domain.ScanSummary{}
	if runErr == nil {
		summary = Summarize(report)
		AppendSummary(report, summary)
	}
	return s.finishRun(ctx, run, report, summary, gate, workDir, now, "analysis", runErr)
}

// newRun builds the initial running row.
func (s *Service) newRun(id domain.RunID, kind domain.Kind, cmd TriggerCommand, now time.Time) *domain.PipelineRun {
	repoURL := cmd.RepoURL
	if repoURL == "" {
		repoURL = s.Cfg.RepoURL
	}
	branch := cmd.Branch
	if branch == "" {
		branch = s.Cfg.Branch
	}
	return &domain.PipelineRun{
		ID:          id,
		TenantID:    cmd.TenantID,
		TriggeredAt: now,
		Kind:        kind,
		ProjectKey:  s.Cfg.ProjectKey,
		RepoURL:     repoURL,
		Branch:      branch,
		Status:      domain.StatusRunning,
		GateStatus:  domain.GateNotRun,
	}
}

// prepareWorkspace resolves the work dir, fetching source and provisioning
// the disposable tool environment when those collaborators are wired. The
// returned cleanup func is safe to defer immediately and tears the
// environment down on every exit path when cleanup is enabled.
func (s *Service) prepareWorkspace(ctx context.Context, cmd TriggerCommand, run *domain.PipelineRun) (string, func(), error) {
	workDir := cmd.WorkDir
	if workDir == "" {
		workDir = "."
	}
	cleanup := func() {}

	if run.RepoURL != "" && s.Fetcher != nil {
		if err := s.Fetcher.Fetch(ctx, run.RepoURL, run.Branch, workDir); err != nil {
			return workDir, cleanup, fmt.Errorf("source checkout: %w", err)
		}
	}
	if s.Prep != nil {
		if err := s.Prep.Provision(ctx, workDir); err != nil {
			return workDir, cleanup, fmt.Errorf("environment provisioning: %w", err)
		}
		if s.cleanupEnabled() {
			cleanup = func() {
				if terr := s.Prep.Teardown(workDir); terr != nil {
					s.Log.Warn().Err(terr).Msg("workspace teardown failed")
				}
			}
		}
	}
	return workDir, cleanup, nil
}

// finishRun writes the report file, runs the count side-file handoff,
// archives, persists the final row and notifies. The report is written and
// archived even on FAILURE whenever any sections were generated.
func (s *Service) finishRun(ctx context.Context, run *domain.PipelineRun, report *domain.ScanReport,
	summary domain.ScanSummary, gate domain.QualityGateResult, workDir string,
	startedAt time.Time, stage string, runErr error) (domain.PipelineOutcome, error) {

	var localReport, location string
	if report.Len() > 0 {
		localReport = filepath.Join(workDir, s.Cfg.ReportFile)
		if werr := os.WriteFile(localReport, []byte(report.Render()), 0o644); werr != nil {
			s.Log.Warn().Err(werr).Msg("report file write failed")
			localReport = ""
		}
	}

	count := summary.FindingCount
	if runErr == nil {
		count = s.handoffCount(summary.FindingCount)
	}

	if localReport != "" && s.Artifacts != nil {
		key := fmt.Sprintf("%s/%s/%s-%s", run.TenantID, run.Kind, run.ID, s.Cfg.ReportFile)
		upload := s.Artifacts.Upload
		if s.cleanupEnabled() {
			// workspace cleanup also covers the local report copy once
			// the archive holds it
			upload = s.Artifacts.UploadAndCleanup
		}
		url, aerr := upload(ctx, localReport, key)
		if aerr != nil {
			s.Log.Warn().Err(aerr).Msg("report archival failed")
		} else {
			location = url
		}
	}
	if location == "" {
		location = localReport
	}

	status := domain.StatusSuccess
	errMsg := ""
	if runErr != nil {
		status = domain.StatusFailed
		errMsg = runErr.Error()
		s.recordError(ctx, run, stage, runErr)
	}

	duration := s.Clock.Now().Sub(startedAt).Milliseconds()
	outcome := domain.PipelineOutcome{
		RunID:          run.ID,
		Kind:           run.Kind,
		ProjectKey:     run.ProjectKey,
		Status:         status,
		Gate:           gate,
		ErrorMessage:   errMsg,
		ReportName:     s.Cfg.ReportFile,
		ReportLocation: location,
		DurationMS:     duration,
	}
	if runErr == nil {
		sum := summary
		outcome.Summary = &sum
	}

	run.Status = status
	run.FindingCount = count
	run.ReportName = s.Cfg.ReportFile
	run.ReportURL = location
	run.GateStatus = gate.Status
	run.DurationMS = duration
	run.ErrorMessage = errMsg
	if err := s.saveRun(ctx, run); err != nil {
		s.Log.Error().Err(err).Str("run", string(run.ID)).Msg("final run save failed")
	}

	s.notify(outcome, gate)
	return outcome, runErr
}

// handoffCount writes the approximate finding count to a transient side
// file, reads it back and deletes it. The count file is consumed within the
// run and must never outlive it.
func (s *Service) handoffCount(count int) int {
	dir, err := os.MkdirTemp("", "count-*")
	if err != nil {
		return count
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "finding_count.txt")
	if err := os.WriteFile(path, []byte(strconv.Itoa(count)), 0o644); err != nil {
		return count
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return count
	}
	if parsed, perr := strconv.Atoi(string(b)); perr == nil {
		count = parsed
	}
	_ = os.Remove(path)
	return count
}

func (s *Service) notify(outcome domain.PipelineOutcome, gate domain.QualityGateResult) {
	if s.Notifier == nil || len(s.Cfg.Recipients) == 0 {
		return
	}
	// dispatch failures are logged only; the outcome is already final
	if err := s.Notifier.Notify(outcome, gate, s.Cfg.Recipients); err != nil {
		s.Log.Warn().Err(err).Str("run", string(outcome.RunID)).Msg("notification dispatch failed")
	}
}

func (s *Service) recordError(ctx context.Context, run *domain.PipelineRun, stage string, err error) {
	if s.Errors == nil {
		return
	}
	e := &domain.RunError{
		TenantID:   run.TenantID,
		RunID:      run.ID,
		OccurredAt: s.Clock.Now(),
		Stage:      stage,
		Message:    err.Error(),
	}
	if rerr := s.Errors.Record(ctx, e); rerr != nil {
		s.Log.Warn().Err(rerr).Msg("run error audit failed")
	}
}

// MarkFailed flips a persisted run to FAILED. The router calls this as a
// backstop when a background run returns before reaching finishRun, so no
// row is left stuck in RUNNING.
func (s *Service) MarkFailed(ctx context.Context, tenant string, id domain.RunID) error {
	if s.Repo == nil || id == "" {
		return nil
	}
	return s.Repo.UpdateStatus(ctx, tenant, id, domain.StatusFailed)
}

func (s *Service) saveRun(ctx context.Context, run *domain.PipelineRun) error {
	if s.Repo == nil {
		return nil
	}
	return s.Repo.Save(ctx, run)
}

func (s *Service) gateEnabled() bool {
	return s.Cfg.QualityGateEnabled == nil || *s.Cfg.QualityGateEnabled
}

func (s *Service) cleanupEnabled() bool {
	return s.Cfg.CleanupWorkspace == nil || *s.Cfg.CleanupWorkspace
}

func notRunGate() domain.QualityGateResult {
	return domain.QualityGateResult{Status: domain.GateNotRun, Source: domain.GateSourceNone}
}

// scannerTools maps configured tool names to the Tool enum, keeping order.
func scannerTools(names []string) []domain.Tool {
	out := make([]domain.Tool, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Tool(n))
	}
	return out
}

//
// ==== QUERIES ====
//

func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.PipelineRun, error) {
	return s.Repo.Latest(ctx, tenant, limit)
}

func (s *Service) Get(ctx context.Context, tenant string, id domain.RunID) (*domain.PipelineRun, error) {
	return s.Repo.Get(ctx, tenant, id)
}

func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (domain.RunSummary, error) {
	return s.Repo.Summary(ctx, tenant, sinceDays)
}

func (s *Service) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Repo.Paginate(ctx, tenant, page, pageSize)
}

func (s *Service) LatestErrors(ctx context.Context, tenant string, limit int) ([]*domain.RunError, error) {
	if s.Errors == nil {
		return nil, nil
	}
	return s.Errors.Latest(ctx, tenant, limit)
}
