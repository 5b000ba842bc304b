package advisor

import "context"

// Client is the AI provider port.
type Client interface {
	Analyze(ctx context.Context, reportURL string) (string, error)
}

// Repository port for persisting and querying advice records
type Repository interface {
	Save(ctx context.Context, a *Advice) error
	Paginate(ctx context.Context, tenant string, page, pageSize int) ([]*Advice, error)
	LatestByRun(ctx context.Context, tenant string, runID string) (*Advice, error)
}
