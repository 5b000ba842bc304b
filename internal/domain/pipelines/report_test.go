package pipelines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanReport_AppendKeepsOrder(t *testing.T) {
	r := &ScanReport{}
	r.Append("first", "a")
	r.Append("second", "")
	r.Append("third", "c")

	sections := r.Sections()
	require.Len(t, sections, 3)
	assert.Equal(t, "first", sections[0].Title)
	assert.Equal(t, "second", sections[1].Title)
	assert.Equal(t, "third", sections[2].Title)

	// empty bodies are kept so the layout stays fixed
	assert.Equal(t, "", sections[1].Body)
	assert.Equal(t, 3, r.Len())
}

func TestScanReport_SectionsReturnsCopy(t *testing.T) {
	r := &ScanReport{}
	r.Append("only", "body")

	sections := r.Sections()
	sections[0].Title = "mutated"

	assert.Equal(t, "only", r.Sections()[0].Title)
}

func TestScanReport_Text(t *testing.T) {
	r := &ScanReport{}
	r.Append("a", "line one\n")
	r.Append("b", "line two")

	assert.Equal(t, "line one\nline two\n", r.Text())
}

func TestScanReport_Render(t *testing.T) {
	r := &ScanReport{}
	r.Append("Dependency scan", "Scan started at 2024-01-01T00:00:00Z")
	r.Append("pip-audit", "no known vulnerabilities found\n")

	want := "Dependency scan\n" +
		"===============\n" +
		"Scan started at 2024-01-01T00:00:00Z\n" +
		"\n" +
		"pip-audit\n" +
		"=========\n" +
		"no known vulnerabilities found\n"
	assert.Equal(t, want, r.Render())
}

func TestToolInvocation_FoundIssues(t *testing.T) {
	assert.False(t, ToolInvocation{ExitStatus: 0}.FoundIssues())
	assert.True(t, ToolInvocation{ExitStatus: 1}.FoundIssues())
	assert.True(t, ToolInvocation{ExitStatus: 64}.FoundIssues())
}

func TestQualityGateResult_Passed(t *testing.T) {
	assert.True(t, QualityGateResult{Status: GateOK}.Passed())
	assert.False(t, QualityGateResult{Status: GateFailed}.Passed())
	assert.False(t, QualityGateResult{Status: GateNotRun}.Passed())
	assert.False(t, QualityGateResult{Status: GateTimeout}.Passed())
}

func TestPipelineOutcome_Succeeded(t *testing.T) {
	assert.True(t, PipelineOutcome{Status: StatusSuccess}.Succeeded())
	assert.False(t, PipelineOutcome{Status: StatusFailed}.Succeeded())
}
