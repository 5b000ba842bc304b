package notify

import (
	"fmt"
	"html/template"
	"strings"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// Class is the visual/textual status class of a notification.
type Class string

const (
	ClassSuccess Class = "success"
	ClassWarning Class = "warning"
	ClassFailure Class = "failure"
)

// StatusClass selects the message class by comparing outcome and gate
// status fields to the known-good values.
func StatusClass(outcome domain.PipelineOutcome, gate domain.QualityGateResult) Class {
	if outcome.Status != domain.StatusSuccess {
		return ClassFailure
	}
	if gate.Status != domain.GateNotRun && gate.Status != domain.GateOK {
		return ClassWarning
	}
	if outcome.Summary != nil && outcome.Summary.FindingCount > 0 {
		return ClassWarning
	}
	return ClassSuccess
}

// Subject renders the mail subject line.
func Subject(outcome domain.PipelineOutcome, gate domain.QualityGateResult) string {
	return fmt.Sprintf("[%s] %s %s: %s",
		strings.ToUpper(string(StatusClass(outcome, gate))),
		outcome.ProjectKey, outcome.Kind, outcome.Status)
}

// RenderText is the plain-text body used for success notifications.
func RenderText(outcome domain.PipelineOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline %s for %s finished: %s\n", outcome.Kind, outcome.ProjectKey, outcome.Status)
	if outcome.Summary != nil {
		fmt.Fprintf(&b, "Approximate findings: %d\n", outcome.Summary.FindingCount)
	}
	if outcome.ReportLocation != "" {
		fmt.Fprintf(&b, "Report: %s\n", outcome.ReportLocation)
	}
	return b.String()
}

var htmlBody = template.Must(template.New("mail").Parse(`<html><body>
<h2 style="color:{{.Color}}">{{.Title}}</h2>
<p>Project: <b>{{.Project}}</b> ({{.Kind}})</p>
{{if .Error}}<p>Error: <code>{{.Error}}</code></p>{{end}}
{{if .Gate}}<p>Quality gate: <b>{{.Gate}}</b> (via {{.GateSource}})</p>{{end}}
{{if .Count}}<p>Approximate findings: <b>{{.Count}}</b></p>{{end}}
{{if .Highlights}}<h3>Highlights</h3><pre>{{.Highlights}}</pre>{{end}}
{{if .Report}}<p>Full report: <a href="{{.Report}}">{{.Report}}</a></p>{{end}}
</body></html>`))

// RenderHTML is the rich body used for warning and failure notifications.
func RenderHTML(outcome domain.PipelineOutcome, gate domain.QualityGateResult) string {
	class := StatusClass(outcome, gate)
	color := "#c0392b"
	if class == ClassWarning {
		color = "#e67e22"
	}

	data := struct {
		Color, Title, Project, Kind, Error string
		Gate, GateSource                   string
		Count                              int
		Highlights, Report                 string
	}{
		Color:   color,
		Title:   fmt.Sprintf("Pipeline %s: %s", outcome.Kind, outcome.Status),
		Project: outcome.ProjectKey,
		Kind:    string(outcome.Kind),
		Error:   outcome.ErrorMessage,
		Report:  outcome.ReportLocation,
	}
	if gate.Status != domain.GateNotRun {
		data.Gate = string(gate.Status)
		data.GateSource = string(gate.Source)
	}
	if outcome.Summary != nil {
		data.Count = outcome.Summary.FindingCount
		data.Highlights = strings.Join(outcome.Summary.Highlights, "\n---\n")
	}

	var b strings.Builder
	if err := htmlBody.Execute(&b, data); err != nil {
		// template data is fixed; fall back to the text body just in case
		return RenderText(outcome)
	}
	return b.String()
}
