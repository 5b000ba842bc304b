package pipelines

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

func TestSummarize_CleanReport(t *testing.T) {
	r := &domain.ScanReport{}
	r.Append("pip-audit", "No known issues found\n")
	r.Append("safety", "All good\n")

	s := Summarize(r)

	assert.Equal(t, 0, s.FindingCount)
	assert.Equal(t, []string{"No issues detected."}, s.Highlights)
}

func TestSummarize_CountsKeywordCaseInsensitive(t *testing.T) {
	r := &domain.ScanReport{}
	r.Append("pip-audit", "found 1 known Vulnerability\n")
	r.Append("safety", "vulnerability in flask\nanother VULNERABILITY in django\n")

	s := Summarize(r)

	assert.Equal(t, 3, s.FindingCount)
	assert.NotEmpty(t, s.Highlights)
}

func TestSummarize_HighlightCarriesContext(t *testing.T) {
	r := &domain.ScanReport{}
	r.Append("safety", strings.Join([]string{
		"line before before",
		"line before",
		"vulnerability found in flask 0.12",
		"line after",
		"line after after",
		"unrelated",
	}, "\n"))

	s := Summarize(r)

	require.Len(t, s.Highlights, 1)
	assert.Equal(t, strings.Join([]string{
		"line before before",
		"line before",
		"vulnerability found in flask 0.12",
		"line after",
		"line after after",
	}, "\n"), s.Highlights[0])
}

func TestSummarize_WindowsDoNotOverlap(t *testing.T) {
	// two keyword lines within one context window collapse into a single
	// highlight
	r := &domain.ScanReport{}
	r.Append("safety", strings.Join([]string{
		"vulnerability one",
		"vulnerability two",
		"trailing",
	}, "\n"))

	s := Summarize(r)

	assert.Equal(t, 2, s.FindingCount)
	require.Len(t, s.Highlights, 1)
	assert.Contains(t, s.Highlights[0], "vulnerability one")
	assert.Contains(t, s.Highlights[0], "vulnerability two")
}

func TestSummarize_HighlightCountIsBounded(t *testing.T) {
	r := &domain.ScanReport{}
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "vulnerability number %d\n", i)
		b.WriteString("filler\nfiller\nfiller\nfiller\n")
	}
	r.Append("safety", b.String())

	s := Summarize(r)

	assert.Equal(t, 50, s.FindingCount)
	assert.LessOrEqual(t, len(s.Highlights), 8)

	total := 0
	for _, h := range s.Highlights {
		total += len(strings.Split(h, "\n"))
	}
	assert.LessOrEqual(t, total, 40)
}

func TestAppendSummary(t *testing.T) {
	r := &domain.ScanReport{}
	r.Append("pip-audit", "one vulnerability\n")

	s := Summarize(r)
	AppendSummary(r, s)

	sections := r.Sections()
	require.Len(t, sections, 3)
	assert.Equal(t, "Summary", sections[1].Title)
	assert.Equal(t, `Approximate findings: 1 (keyword matches for "vulnerability")`, sections[1].Body)
	assert.Equal(t, "Highlights", sections[2].Title)
	assert.Contains(t, sections[2].Body, "one vulnerability")
}

func TestSummarize_DeterministicAcrossCalls(t *testing.T) {
	r := &domain.ScanReport{}
	r.Append("safety", "vulnerability in a\nvulnerability in b\n")

	first := Summarize(r)
	second := Summarize(r)

	assert.Equal(t, first, second)
}
