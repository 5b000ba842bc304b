package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

func gateServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qualitygates/project_status", r.URL.Path)
		assert.Equal(t, "demo", r.URL.Query().Get("projectKey"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWait_WebhookVerdict(t *testing.T) {
	events := make(chan WebhookEvent, 1)
	events <- WebhookEvent{ProjectKey: "demo", Status: "OK"}

	c := NewChecker(events, "", "", "demo", time.Second)
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateOK, got.Status)
	assert.Equal(t, domain.GateSourcePrimary, got.Source)
}

func TestWait_FailedWebhookVerdict(t *testing.T) {
	events := make(chan WebhookEvent, 1)
	events <- WebhookEvent{ProjectKey: "demo", Status: "ERROR"}

	c := NewChecker(events, "", "", "demo", time.Second)
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateFailed, got.Status)
	assert.Equal(t, domain.GateSourcePrimary, got.Source)
}

func TestWait_IgnoresOtherProjects(t *testing.T) {
	events := make(chan WebhookEvent, 2)
	events <- WebhookEvent{ProjectKey: "someone-else", Status: "ERROR"}
	events <- WebhookEvent{ProjectKey: "demo", Status: "OK"}

	c := NewChecker(events, "", "", "demo", time.Second)
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateOK, got.Status)
	assert.Equal(t, domain.GateSourcePrimary, got.Source)
}

func TestWait_TimeoutFallsBackToQuery(t *testing.T) {
	srv := gateServer(t, http.StatusOK, `{"projectStatus":{"status":"OK"}}`)

	c := NewChecker(make(chan WebhookEvent), srv.URL, "", "demo", 10*time.Millisecond)
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateOK, got.Status)
	assert.Equal(t, domain.GateSourceFallback, got.Source)
}

func TestWait_TimeoutWithFailingFallbackIsTimeout(t *testing.T) {
	srv := gateServer(t, http.StatusInternalServerError, "")

	c := NewChecker(make(chan WebhookEvent), srv.URL, "", "demo", 10*time.Millisecond)

	start := time.Now()
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateTimeout, got.Status)
	assert.Equal(t, domain.GateSourceFallback, got.Source)
	// the wait resolves; it never hangs past the retry budget
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestWait_ClosedChannelWithFailingFallbackIsError(t *testing.T) {
	srv := gateServer(t, http.StatusInternalServerError, "")

	events := make(chan WebhookEvent)
	close(events)

	c := NewChecker(events, srv.URL, "", "demo", time.Second)
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateError, got.Status)
	assert.Equal(t, domain.GateSourceFallback, got.Source)
}

func TestWait_ClosedChannelWithWorkingFallback(t *testing.T) {
	srv := gateServer(t, http.StatusOK, `{"projectStatus":{"status":"ERROR"}}`)

	events := make(chan WebhookEvent)
	close(events)

	c := NewChecker(events, srv.URL, "", "demo", time.Second)
	got := c.Wait(context.Background())

	assert.Equal(t, domain.GateFailed, got.Status)
	assert.Equal(t, domain.GateSourceFallback, got.Source)
}

func TestQueryStatus_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"projectStatus":{"status":"OK"}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewChecker(make(chan WebhookEvent), srv.URL, "tok-123", "demo", time.Second)
	status, err := c.queryStatus()
	require.NoError(t, err)

	assert.Equal(t, domain.GateOK, status)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.GateOK, classify("OK"))
	assert.Equal(t, domain.GateOK, classify("SUCCESS"))
	assert.Equal(t, domain.GateFailed, classify("ERROR"))
	assert.Equal(t, domain.GateFailed, classify("WARN"))
	assert.Equal(t, domain.GateFailed, classify(""))
}
