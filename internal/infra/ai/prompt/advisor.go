package prompt

import "fmt"

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior application security engineer reviewing the text report of a CI dependency/static-analysis scan. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- counts.total must equal counts.critical + counts.high + counts.medium + counts.low.
- remediations is an array of objects; include at least a package, severity, and action. Keep items concise and actionable (exact upgrade versions where the report names them).
- If the report content is not reachable, infer conservatively from the report URL and say so in advice.

Schema (example with empty values):
{
  "report_url": "<string>",
  "counts": {"critical": 0, "high": 0, "medium": 0, "low": 0, "total": 0},
  "remediations": [
    {
      "package": "<string>",
      "severity": "<critical|high|medium|low|info>",
      "action": "<string>",
      "reference": "<string>"
    }
  ],
  "advice": "<string>"
}`
}

// GetUserPrompt builds a compact user message around a report URL.
func GetUserPrompt(reportURL string) string {
	return fmt.Sprintf("Analyze the scan report at this URL and respond with the JSON per schema. URL: %s", reportURL)
}
