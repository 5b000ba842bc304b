package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/advisor"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeClient struct {
	result      string
	err         error
	analyzedURL string
}

func (f *fakeClient) Analyze(_ context.Context, reportURL string) (string, error) {
	f.analyzedURL = reportURL
	return f.result, f.err
}

type memoryAdvice struct {
	saved []*domain.Advice
}

func (m *memoryAdvice) Save(_ context.Context, a *domain.Advice) error {
	cp := *a
	m.saved = append(m.saved, &cp)
	return nil
}

func (m *memoryAdvice) Paginate(_ context.Context, tenant string, _, _ int) ([]*domain.Advice, error) {
	var out []*domain.Advice
	for _, a := range m.saved {
		if a.TenantID == tenant {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryAdvice) LatestByRun(_ context.Context, tenant, runID string) (*domain.Advice, error) {
	var latest *domain.Advice
	for _, a := range m.saved {
		if a.TenantID != tenant || a.RunID != runID {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, errors.New("not found")
	}
	return latest, nil
}

func TestAnalyzeAndStore(t *testing.T) {
	client := &fakeClient{result: `{"summary":"pin flask"}`}
	repo := &memoryAdvice{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(client, repo, fixedClock{t: now})

	a, err := svc.AnalyzeAndStore(context.Background(), "acme", "run-1", "https://minio.local/reports/abc")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "acme", a.TenantID)
	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, "https://minio.local/reports/abc", a.ReportURL)
	assert.Equal(t, `{"summary":"pin flask"}`, a.Result)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, "https://minio.local/reports/abc", client.analyzedURL)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, a.ID, repo.saved[0].ID)
}

func TestAnalyzeAndStore_ClientError(t *testing.T) {
	client := &fakeClient{err: domain.ErrQuotaExceeded}
	repo := &memoryAdvice{}
	svc := NewService(client, repo, fixedClock{t: time.Now()})

	_, err := svc.AnalyzeAndStore(context.Background(), "acme", "run-1", "https://minio.local/reports/abc")
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Empty(t, repo.saved)
}

func TestLatestForRun(t *testing.T) {
	repo := &memoryAdvice{}
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	require.NoError(t, repo.Save(context.Background(), &domain.Advice{
		ID: "a1", TenantID: "acme", RunID: "run-1", Result: "old", CreatedAt: older,
	}))
	require.NoError(t, repo.Save(context.Background(), &domain.Advice{
		ID: "a2", TenantID: "acme", RunID: "run-1", Result: "new", CreatedAt: newer,
	}))
	require.NoError(t, repo.Save(context.Background(), &domain.Advice{
		ID: "a3", TenantID: "other", RunID: "run-1", Result: "foreign", CreatedAt: newer,
	}))

	svc := NewService(&fakeClient{}, repo, fixedClock{t: time.Now()})

	a, err := svc.LatestForRun(context.Background(), "acme", "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AdviceID("a2"), a.ID)
	assert.Equal(t, "new", a.Result)

	_, err = svc.LatestForRun(context.Background(), "acme", "run-9")
	require.Error(t, err)
}
