package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// Runner executes scanner binaries on the local host. Argv is assembled per
// tool from structured request fields, never from a templated command line.
type Runner struct {
	// VenvDir is the virtualenv directory name inside each run's work dir.
	// When set, that venv's bin dir is prepended to PATH so venv-installed
	// tools resolve first.
	VenvDir string
}

func NewRunner() *Runner { return &Runner{} }

// Run executes one tool and captures combined stdout/stderr regardless of
// exit code. A non-zero exit is recorded in the invocation, not returned as
// an error: scanners exit non-zero when they find issues. Only a binary
// that cannot be started at all produces an error, since that means the
// environment is broken.
func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.ToolInvocation, error) {
	start := time.Now()

	name, args, err := command(req)
	if err != nil {
		return domain.ToolInvocation{}, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	if prefix := r.pathPrefix(req.WorkDir); prefix != "" {
		cmd.Env = envWithPath(prefix)
	}

	out, err := cmd.CombinedOutput()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		ee, ok := err.(*exec.ExitError)
		if !ok {
			return domain.ToolInvocation{}, fmt.Errorf("%s could not be executed: %w", name, err)
		}
		exitCode = ee.ExitCode()
	}

	return domain.ToolInvocation{
		Tool:          req.Tool,
		Mode:          req.Mode,
		ManifestLabel: req.ManifestLabel,
		ExitStatus:    exitCode,
		Output:        string(out),
		Duration:      duration,
	}, nil
}

// pathPrefix resolves the venv bin dir for the request's work dir. The
// prefix must be absolute: exec looks the binary up relative to this
// process's cwd, not the command's.
func (r *Runner) pathPrefix(workDir string) string {
	if r.VenvDir == "" {
		return ""
	}
	if workDir == "" {
		workDir = "."
	}
	dir := filepath.Join(workDir, r.VenvDir, "bin")
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// command maps a request to binary name plus argv.
func command(req domain.RunRequest) (string, []string, error) {
	switch req.Tool {
	case domain.ToolPipAudit:
		switch req.Mode {
		case domain.ModeManifest:
			return "pip-audit", []string{"--progress-spinner", "off", "-r", req.RequirementsFile}, nil
		case domain.ModeEnvironment:
			return "pip-audit", []string{"--progress-spinner", "off"}, nil
		}

	case domain.ToolSafety:
		switch req.Mode {
		case domain.ModeManifest:
			return "safety", []string{"check", "--output", "text", "-r", req.RequirementsFile}, nil
		case domain.ModeEnvironment:
			return "safety", []string{"check", "--output", "text"}, nil
		}

	case domain.ToolPip:
		if req.Mode == domain.ModeSnapshot {
			return "pip", []string{"freeze"}, nil
		}

	case domain.ToolSonarScanner:
		if req.Mode == domain.ModeSource {
			return "sonar-scanner", sonarArgs(req), nil
		}
	}
	return "", nil, fmt.Errorf("unsupported tool/mode: %s/%s", req.Tool, req.Mode)
}

func sonarArgs(req domain.RunRequest) []string {
	sources := req.SourcesDir
	if sources == "" {
		sources = "."
	}
	args := []string{
		"-Dsonar.projectKey=" + req.ProjectKey,
		"-Dsonar.sources=" + sources,
	}
	if req.ProjectName != "" {
		args = append(args, "-Dsonar.projectName="+req.ProjectName)
	}
	if req.HostURL != "" {
		args = append(args, "-Dsonar.host.url="+req.HostURL)
	}
	if len(req.Exclusions) > 0 {
		args = append(args, "-Dsonar.exclusions="+strings.Join(req.Exclusions, ","))
	}
	if req.CoverageReport != "" {
		args = append(args, "-Dsonar.python.coverage.reportPaths="+req.CoverageReport)
	}
	return args
}

// envWithPath rebuilds the environment with prefix prepended to PATH.
func envWithPath(prefix string) []string {
	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + prefix + string(os.PathListSeparator) + strings.TrimPrefix(kv, "PATH=")
			return env
		}
	}
	return append(env, "PATH="+prefix)
}
