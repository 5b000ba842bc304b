package pipelines

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// The summary is a deliberate approximation: scanner output formats are not
// uniformly machine-parseable, so findings are counted by keyword occurrence
// over the raw report text rather than by structured parsing.
const (
	findingKeyword = "vulnerability"

	maxHighlights      = 8
	highlightContext   = 2
	highlightLineCap   = 40
	noIssuesHighlight  = "No issues detected."
	summarySectionName = "Summary"
)

// Summarize derives a ScanSummary from a finished report. Pure function of
// the report's concatenated text.
func Summarize(r *domain.ScanReport) domain.ScanSummary {
	text := r.Text()
	count := strings.Count(strings.ToLower(text), findingKeyword)
	if count == 0 {
		return domain.ScanSummary{FindingCount: 0, Highlights: []string{noIssuesHighlight}}
	}

	lines := strings.Split(text, "\n")
	highlights := make([]string, 0, maxHighlights)
	budget := highlightLineCap

	for i := 0; i < len(lines) && len(highlights) < maxHighlights && budget > 0; i++ {
		if !strings.Contains(strings.ToLower(lines[i]), findingKeyword) {
			continue
		}
		lo := i - highlightContext
		if lo < 0 {
			lo = 0
		}
		hi := i + highlightContext + 1
		if hi > len(lines) {
			hi = len(lines)
		}
		window := lines[lo:hi]
		if len(window) > budget {
			window = window[:budget]
		}
		budget -= len(window)
		highlights = append(highlights, strings.Join(window, "\n"))
		// windows must not overlap
		i = hi - 1
	}

	return domain.ScanSummary{FindingCount: count, Highlights: highlights}
}

// AppendSummary appends the aggregator's output as the report's final
// sections.
func AppendSummary(r *domain.ScanReport, s domain.ScanSummary) {
	r.Append(summarySectionName,
		fmt.Sprintf("Approximate findings: %d (keyword matches for %q)", s.FindingCount, findingKeyword))
	r.Append("Highlights", strings.Join(s.Highlights, "\n---\n"))
}
