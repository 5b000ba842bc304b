package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// WebhookEvent is the asynchronous quality-gate signal pushed by the
// analysis server's webhook into the checker's channel.
type WebhookEvent struct {
	ProjectKey string `json:"project_key"`
	Status     string `json:"status"`
}

// Checker resolves a quality-gate verdict. Primary path: block on the
// webhook channel up to Timeout. On timeout or channel close it falls back
// to one direct status query, so a run always reaches a terminal gate state
// instead of hanging.
type Checker struct {
	Events     <-chan WebhookEvent
	HostURL    string
	Token      string
	ProjectKey string
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        zerolog.Logger
}

func NewChecker(events <-chan WebhookEvent, hostURL, token, projectKey string, timeout time.Duration) *Checker {
	return &Checker{
		Events:     events,
		HostURL:    hostURL,
		Token:      token,
		ProjectKey: projectKey,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Wait blocks until a terminal gate state. Cancellable only by timeout
// expiry; events for other projects are ignored and the wait continues.
func (c *Checker) Wait(ctx context.Context) domain.QualityGateResult {
	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-c.Events:
			if !ok {
				// channel error: the signal source is gone
				return c.fallback(ctx, domain.GateError)
			}
			if ev.ProjectKey != "" && ev.ProjectKey != c.ProjectKey {
				continue
			}
			return domain.QualityGateResult{
				Status: classify(ev.Status),
				Source: domain.GateSourcePrimary,
			}
		case <-timer.C:
			return c.fallback(ctx, domain.GateTimeout)
		}
	}
}

// fallback issues one synchronous status query. onQueryError is the
// terminal status when even the fallback cannot answer: TIMEOUT when the
// primary wait expired, ERROR when the channel itself broke.
func (c *Checker) fallback(ctx context.Context, onQueryError domain.GateStatus) domain.QualityGateResult {
	status, err := backoff.Retry(ctx, c.queryStatus,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		c.Log.Warn().Err(err).Msg("quality gate fallback query failed")
		return domain.QualityGateResult{Status: onQueryError, Source: domain.GateSourceFallback}
	}
	return domain.QualityGateResult{Status: status, Source: domain.GateSourceFallback}
}

func (c *Checker) queryStatus() (domain.GateStatus, error) {
	u := fmt.Sprintf("%s/api/qualitygates/project_status?projectKey=%s",
		c.HostURL, url.QueryEscape(c.ProjectKey))

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return domain.GateError, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.GateError, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GateError, fmt.Errorf("gate status query returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.GateError, err
	}
	var parsed struct {
		ProjectStatus struct {
			Status string `json:"status"`
		} `json:"projectStatus"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GateError, fmt.Errorf("gate status response: %w", err)
	}
	return classify(parsed.ProjectStatus.Status), nil
}

// classify maps the textual gate verdict to a terminal state. Anything
// other than the success marker is a failed gate.
func classify(status string) domain.GateStatus {
	switch status {
	case "OK", "SUCCESS":
		return domain.GateOK
	default:
		return domain.GateFailed
	}
}
