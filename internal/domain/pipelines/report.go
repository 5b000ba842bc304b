package pipelines

import "strings"

// ReportSection is one titled block of the scan report.
type ReportSection struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ScanReport is the append-only section buffer owned by the orchestrator
// during a run. Sections keep the order they were appended in; report
// layout is stable across runs regardless of which tools fail.
type ScanReport struct {
	sections []ReportSection
}

// Append adds one section. Empty bodies are kept so the layout stays fixed.
func (r *ScanReport) Append(title, body string) {
	r.sections = append(r.sections, ReportSection{Title: title, Body: body})
}

// Sections returns a copy of the section sequence.
func (r *ScanReport) Sections() []ReportSection {
	out := make([]ReportSection, len(r.sections))
	copy(out, r.sections)
	return out
}

// Len returns the number of appended sections.
func (r *ScanReport) Len() int { return len(r.sections) }

// Text concatenates all section bodies, the input the aggregator counts over.
func (r *ScanReport) Text() string {
	var b strings.Builder
	for _, s := range r.sections {
		b.WriteString(s.Body)
		if !strings.HasSuffix(s.Body, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Render produces the human-readable report file content.
func (r *ScanReport) Render() string {
	var b strings.Builder
	for i, s := range r.sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Title)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("=", len(s.Title)))
		b.WriteByte('\n')
		b.WriteString(s.Body)
		if !strings.HasSuffix(s.Body, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ScanSummary is derived from a finished report and never mutated after.
type ScanSummary struct {
	FindingCount int      `json:"finding_count"`
	Highlights   []string `json:"highlights"`
}

// PipelineOutcome is the final result handed to the CI host and the
// notification dispatcher.
type PipelineOutcome struct {
	RunID          RunID             `json:"run_id"`
	Kind           Kind              `json:"kind"`
	ProjectKey     string            `json:"project_key"`
	Status         Status            `json:"status"`
	Summary        *ScanSummary      `json:"summary,omitempty"`
	Gate           QualityGateResult `json:"gate"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ReportName     string            `json:"report_name,omitempty"`
	ReportLocation string            `json:"report_location,omitempty"`
	DurationMS     int64             `json:"duration_ms"`
}

// Succeeded reports whether the run finished without an environment error.
// Scanner findings never alone fail a run.
func (o PipelineOutcome) Succeeded() bool { return o.Status == StatusSuccess }
