package pipelines

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanwahyu/auditron-ci/internal/application"
	"github.com/bryanwahyu/auditron-ci/internal/domain/manifests"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// issuesSentinel is appended to a tool section whenever the tool exited
// non-zero, so the report stays legible when scanners report findings.
const issuesSentinel = "scan completed with issues"

// Orchestrator sequences manifests through the tool runner in a fixed
// order and appends one section per stage to the report. It never stops
// early because a tool or a manifest failed; only an unrecoverable
// environment error aborts the run.
type Orchestrator struct {
	Resolver domain.ManifestResolver
	Runner   domain.ToolRunner
	Clock    application.Clock
	// Tools are the configured dependency scanners, run in listed order.
	Tools []domain.Tool
}

// RunAll executes the full dependency-scan stage sequence against root.
// scratch holds run-scoped side files (extracted package lists) and is the
// caller's to remove. The returned report carries whatever sections were
// generated, even when err is non-nil.
func (o *Orchestrator) RunAll(ctx context.Context, root, scratch string) (*domain.ScanReport, domain.ScanSummary, error) {
	report := &domain.ScanReport{}
	report.Append("Dependency scan",
		fmt.Sprintf("Scan started at %s", o.Clock.Now().UTC().Format(time.RFC3339)))

	for _, m := range o.Resolver.Resolve(root) {
		if m.Missing {
			report.Append(string(m.Kind), fmt.Sprintf("%s not found in project root", m.Kind))
			continue
		}

		body := m.Raw
		if m.ParseNote != "" {
			body = strings.TrimRight(body, "\n") + "\n\n" + m.ParseNote
		}
		report.Append(string(m.Kind), body)

		input := m.SourcePath
		if m.Kind == manifests.KindPyProject {
			if len(m.Packages) == 0 {
				// nothing extractable to scan; the parse note above already
				// tells the reader why
				continue
			}
			sideFile := filepath.Join(scratch, "pyproject-packages.txt")
			content := strings.Join(m.PackageLines(), "\n") + "\n"
			if err := os.WriteFile(sideFile, []byte(content), 0o644); err != nil {
				return report, domain.ScanSummary{}, fmt.Errorf("write scan input for %s: %w", m.Kind, err)
			}
			input = sideFile
		}

		for _, tool := range o.Tools {
			inv, err := o.Runner.Run(ctx, domain.RunRequest{
				Tool:             tool,
				Mode:             domain.ModeManifest,
				RequirementsFile: input,
				ManifestLabel:    string(m.Kind),
				WorkDir:          root,
			})
			if err != nil {
				return report, domain.ScanSummary{}, fmt.Errorf("%s against %s: %w", tool, m.Kind, err)
			}
			report.Append(fmt.Sprintf("%s (%s)", tool, m.Kind), invocationBody(inv))
		}
	}

	// Scanners run once more against the installed environment regardless
	// of what manifests were discovered.
	for _, tool := range o.Tools {
		inv, err := o.Runner.Run(ctx, domain.RunRequest{
			Tool:    tool,
			Mode:    domain.ModeEnvironment,
			WorkDir: root,
		})
		if err != nil {
			return report, domain.ScanSummary{}, fmt.Errorf("%s against installed packages: %w", tool, err)
		}
		report.Append(fmt.Sprintf("%s (installed packages)", tool), invocationBody(inv))
	}

	snapshot, err := o.Runner.Run(ctx, domain.RunRequest{
		Tool:    domain.ToolPip,
		Mode:    domain.ModeSnapshot,
		WorkDir: root,
	})
	if err != nil {
		return report, domain.ScanSummary{}, fmt.Errorf("installed-package snapshot: %w", err)
	}
	report.Append("Installed packages", snapshot.Output)

	summary := Summarize(report)
	AppendSummary(report, summary)
	return report, summary, nil
}

// invocationBody renders one tool invocation as section text.
func invocationBody(inv domain.ToolInvocation) string {
	body := inv.Output
	if inv.FoundIssues() {
		if body != "" && !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		body += issuesSentinel
	}
	return body
}
