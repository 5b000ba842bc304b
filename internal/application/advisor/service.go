package advisor

import (
	"context"

	"github.com/google/uuid"

	"github.com/bryanwahyu/auditron-ci/internal/application"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/advisor"
)

// Service wraps the AI client with persistence for audit/retrieval.
type Service struct {
	Client domain.Client
	Repo   domain.Repository
	Clock  application.Clock
}

func NewService(client domain.Client, repo domain.Repository, clock application.Clock) *Service {
	return &Service{Client: client, Repo: repo, Clock: clock}
}

// AnalyzeAndStore runs AI analysis over an archived report and stores the
// result.
func (s *Service) AnalyzeAndStore(ctx context.Context, tenant, runID, reportURL string) (*domain.Advice, error) {
	result, err := s.Client.Analyze(ctx, reportURL)
	if err != nil {
		return nil, err
	}
	a := &domain.Advice{
		ID:        domain.AdviceID(uuid.New().String()),
		TenantID:  tenant,
		RunID:     runID,
		ReportURL: reportURL,
		Result:    result,
		CreatedAt: s.Clock.Now(),
	}
	if s.Repo != nil {
		if err := s.Repo.Save(ctx, a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// ListAdvice returns a page of stored analyses for a tenant.
func (s *Service) ListAdvice(ctx context.Context, tenant string, page, pageSize int) ([]*domain.Advice, error) {
	return s.Repo.Paginate(ctx, tenant, page, pageSize)
}

// LatestForRun returns the newest analysis for one run.
func (s *Service) LatestForRun(ctx context.Context, tenant, runID string) (*domain.Advice, error) {
	return s.Repo.LatestByRun(ctx, tenant, runID)
}
