package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appadvisor "github.com/bryanwahyu/auditron-ci/internal/application/advisor"
	apppipelines "github.com/bryanwahyu/auditron-ci/internal/application/pipelines"
	domadvisor "github.com/bryanwahyu/auditron-ci/internal/domain/advisor"
	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
	"github.com/bryanwahyu/auditron-ci/internal/infra/gate"
	"github.com/bryanwahyu/auditron-ci/internal/middleware"
)

type Router struct {
	pipelinesSvc *apppipelines.Service
	advisorSvc   *appadvisor.Service
	gateEvents   chan<- gate.WebhookEvent
	log          zerolog.Logger
}

func NewRouter(pipelinesSvc *apppipelines.Service, advisorSvc *appadvisor.Service,
	gateEvents chan<- gate.WebhookEvent, log zerolog.Logger) http.Handler {

	r := &Router{pipelinesSvc: pipelinesSvc, advisorSvc: advisorSvc, gateEvents: gateEvents, log: log}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/pipelines/dependency-scan", r.wrap(r.handleTriggerDependencyScan))
		rt.Post("/pipelines/static-analysis", r.wrap(r.handleTriggerStaticAnalysis))
		rt.Post("/webhook/quality-gate", r.wrap(r.handleGateWebhook))
		rt.Get("/runs/latest", r.wrap(r.handleLatest))
		rt.Get("/runs/{id}", r.wrap(r.handleGet))
		rt.Get("/runs", r.wrap(r.handlePaginate))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Get("/errors", r.wrap(r.handleErrors))
		rt.Post("/runs/{id}/advice", r.wrap(r.handleAdvise))
		rt.Get("/runs/{id}/advice", r.wrap(r.handleLatestAdvice))
		rt.Get("/advice", r.wrap(r.handleAdviceList))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, domadvisor.ErrQuotaExceeded) {
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type triggerRequest struct {
	WorkDir string `json:"work_dir"`
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch"`
}

func (r *Router) decodeTrigger(req *http.Request) (apppipelines.TriggerCommand, error) {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		return apppipelines.TriggerCommand{}, err
	}

	var body triggerRequest
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return apppipelines.TriggerCommand{}, err
		}
	}
	if err := middleware.ValidateRepoURL(body.RepoURL); err != nil {
		return apppipelines.TriggerCommand{}, err
	}
	if err := middleware.ValidateBranch(body.Branch); err != nil {
		return apppipelines.TriggerCommand{}, err
	}

	return apppipelines.TriggerCommand{
		TenantID: tenant,
		WorkDir:  body.WorkDir,
		RepoURL:  body.RepoURL,
		Branch:   body.Branch,
	}, nil
}

// POST /v1/{tenant}/pipelines/dependency-scan
func (r *Router) handleTriggerDependencyScan(w http.ResponseWriter, req *http.Request) error {
	cmd, err := r.decodeTrigger(req)
	if err != nil {
		return err
	}
	r.runInBackground(cmd, "dependency-scan", r.pipelinesSvc.RunDependencyScanUntilDone)
	return r.queued(w, cmd, domain.KindDependencyScan)
}

// POST /v1/{tenant}/pipelines/static-analysis
func (r *Router) handleTriggerStaticAnalysis(w http.ResponseWriter, req *http.Request) error {
	cmd, err := r.decodeTrigger(req)
	if err != nil {
		return err
	}
	r.runInBackground(cmd, "static-analysis", r.pipelinesSvc.RunStaticAnalysisUntilDone)
	return r.queued(w, cmd, domain.KindStaticAnalysis)
}

// runInBackground runs a pipeline until done, detached from the request
// context, so slow scans survive the HTTP round trip.
func (r *Router) runInBackground(cmd apppipelines.TriggerCommand, kind string,
	run func(apppipelines.TriggerCommand) (domain.PipelineOutcome, error)) {

	middleware.IncrementRuns()
	middleware.IncrementRunsInProgress()
	go func() {
		defer middleware.DecrementRunsInProgress()

		outcome, err := run(cmd)
		if err != nil {
			middleware.IncrementRunsFailed()
			// the run may have failed before its final save; make sure the
			// persisted row is not left in RUNNING
			if merr := r.pipelinesSvc.MarkFailed(context.Background(), cmd.TenantID, outcome.RunID); merr != nil {
				r.log.Warn().Err(merr).Str("run", string(outcome.RunID)).Msg("failed status update")
			}
			r.log.Error().Err(err).
				Str("tenant", cmd.TenantID).
				Str("kind", kind).
				Msg("background pipeline run failed")
			return
		}
		r.log.Info().
			Str("tenant", cmd.TenantID).
			Str("run", string(outcome.RunID)).
			Str("status", string(outcome.Status)).
			Str("report", outcome.ReportLocation).
			Msg("pipeline run finished")
	}()
}

func (r *Router) queued(w http.ResponseWriter, cmd apppipelines.TriggerCommand, kind domain.Kind) error {
	resp := map[string]any{
		"status":   "queued",
		"tenant":   cmd.TenantID,
		"kind":     kind,
		"branch":   cmd.Branch,
		"message":  "pipeline started in background",
		"queuedAt": time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// POST /v1/{tenant}/webhook/quality-gate
// Body follows the analysis server's webhook payload; only the project key
// and gate status matter here.
func (r *Router) handleGateWebhook(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
		QualityGate struct {
			Status string `json:"status"`
		} `json:"qualityGate"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}

	ev := gate.WebhookEvent{ProjectKey: body.Project.Key, Status: body.QualityGate.Status}
	select {
	case r.gateEvents <- ev:
	default:
		// no checker waiting; the fallback query covers this run
		r.log.Warn().Str("project", ev.ProjectKey).Msg("quality gate event dropped, no waiter")
	}

	w.WriteHeader(http.StatusAccepted)
	return nil
}

// GET /v1/{tenant}/runs/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.pipelinesSvc.Latest(req.Context(), tenant, limit)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/runs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	run, err := r.pipelinesSvc.Get(req.Context(), tenant, domain.RunID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(run)
}

// GET /v1/{tenant}/runs?page=&page_size=
func (r *Router) handlePaginate(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	result, err := r.pipelinesSvc.Paginate(req.Context(), tenant, page, size)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

// GET /v1/{tenant}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.pipelinesSvc.Summary(req.Context(), tenant, days)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(summary)
}

// GET /v1/{tenant}/errors?limit=20
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.pipelinesSvc.LatestErrors(req.Context(), tenant, limit)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// POST /v1/{tenant}/runs/{id}/advice
// The server fetches the run's archived report URL and runs AI analysis on it.
func (r *Router) handleAdvise(w http.ResponseWriter, req *http.Request) error {
	if r.advisorSvc == nil {
		http.Error(w, "ai advisor not configured", http.StatusNotImplemented)
		return nil
	}
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	run, err := r.pipelinesSvc.Get(req.Context(), tenant, domain.RunID(id))
	if err != nil {
		return err
	}
	if run == nil || run.ReportURL == "" {
		return fmt.Errorf("report_url not found for run: %s", id)
	}

	a, err := r.advisorSvc.AnalyzeAndStore(req.Context(), tenant, id, run.ReportURL)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(a)
}

// GET /v1/{tenant}/runs/{id}/advice
func (r *Router) handleLatestAdvice(w http.ResponseWriter, req *http.Request) error {
	if r.advisorSvc == nil {
		http.Error(w, "ai advisor not configured", http.StatusNotImplemented)
		return nil
	}
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	a, err := r.advisorSvc.LatestForRun(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	if a == nil {
		http.Error(w, "no advice for run", http.StatusNotFound)
		return nil
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(a)
}

// GET /v1/{tenant}/advice?page=&page_size=
func (r *Router) handleAdviceList(w http.ResponseWriter, req *http.Request) error {
	if r.advisorSvc == nil {
		http.Error(w, "ai advisor not configured", http.StatusNotImplemented)
		return nil
	}
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.advisorSvc.ListAdvice(req.Context(), tenant, page, size)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}
