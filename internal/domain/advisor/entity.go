package advisor

import "time"

// AdviceID identifier type
type AdviceID string

// Advice represents an AI remediation analysis of one pipeline report,
// stored for auditing and retrieval.
type Advice struct {
	ID        AdviceID  `json:"id"`
	TenantID  string    `json:"tenant_id"`
	RunID     string    `json:"run_id,omitempty"`
	ReportURL string    `json:"report_url"`
	Result    string    `json:"result"` // JSON string from AI
	CreatedAt time.Time `json:"created_at"`
}
