package pipelines

import "time"

// InputMode selects what a scanner is pointed at.
type InputMode string

const (
	// ModeManifest scans the package list extracted from one manifest.
	ModeManifest InputMode = "manifest"
	// ModeEnvironment scans the currently installed packages, no specific input.
	ModeEnvironment InputMode = "environment"
	// ModeSnapshot dumps the installed packages for the report.
	ModeSnapshot InputMode = "snapshot"
	// ModeSource points a static-analysis scanner at the checkout.
	ModeSource InputMode = "source"
)

// RunRequest for ToolRunner. Arguments are structured fields, never a
// pre-joined command line.
type RunRequest struct {
	Tool Tool
	Mode InputMode
	// RequirementsFile is the manifest-derived package list (ModeManifest).
	RequirementsFile string
	// WorkDir is the directory the tool executes in.
	WorkDir string
	// ManifestLabel tags the invocation for the report ("requirements.txt", ...).
	ManifestLabel string

	// Static-analysis inputs (ModeSource).
	ProjectKey     string
	ProjectName    string
	SourcesDir     string
	HostURL        string
	Exclusions     []string
	CoverageReport string
}

// ToolInvocation is the recorded result of one tool execution. A non-zero
// exit is data, not an error: scanners exit non-zero when they find issues.
type ToolInvocation struct {
	Tool          Tool          `json:"tool"`
	Mode          InputMode     `json:"mode"`
	ManifestLabel string        `json:"manifest_label,omitempty"`
	ExitStatus    int           `json:"exit_status"`
	Output        string        `json:"output"`
	Duration      time.Duration `json:"duration"`
}

// FoundIssues reports whether the tool exited non-zero.
func (t ToolInvocation) FoundIssues() bool { return t.ExitStatus != 0 }
