package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stackyn/server/internal/domain"
	apperrors "stackyn/server/internal/errors"
	"stackyn/server/internal/tasks"
)

// Orchestrator is the subset of orchestrator operations the HTTP layer
// calls synchronously (delete/delete-all); deploy and resume only ever
// enqueue a job, they never call the orchestrator directly from a handler.
type Orchestrator interface {
	DeleteApplication(ctx context.Context, teamID string, force bool) error
	DeleteAllApplications(ctx context.Context, force bool) ([]string, error)
}

// Store is the subset of the state store the HTTP layer reads directly.
type Store interface {
	GetApplication(ctx context.Context, teamID string) (*domain.Application, error)
	GetApplications(ctx context.Context) ([]*domain.Application, error)
	Flush(ctx context.Context) error
}

// LogFetcher refreshes an application record's logs in place before a GET
// response is written.
type LogFetcher interface {
	Refresh(ctx context.Context, app *domain.Application)
}

// JobClient enqueues the two asynchronous task types the API exposes.
type JobClient interface {
	EnqueueDeployTask(payload tasks.DeployPayload) (string, error)
	EnqueueResumeTask(payload tasks.ResumePayload) (string, error)
}

// Handlers implements the HTTP surface described by spec.md §6.
type Handlers struct {
	store        Store
	orchestrator Orchestrator
	jobs         JobClient
	logFetcher   LogFetcher
	logger       *zap.Logger
}

// NewHandlers builds a Handlers instance.
func NewHandlers(store Store, orchestrator Orchestrator, jobs JobClient, logFetcher LogFetcher, logger *zap.Logger) *Handlers {
	return &Handlers{store: store, orchestrator: orchestrator, jobs: jobs, logFetcher: logFetcher, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps an apperrors.Error (or any error) onto its HTTP
// status and a JSON error body, per spec.md §7's taxonomy.
func (h *Handlers) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperrors.As(err); ok {
		h.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.String("code", string(e.Code)), zap.Error(err))
		writeError(w, e.Code.HTTPStatus(), e.Message)
		return
	}
	h.logger.Error("request failed with an unclassified error", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// truthy implements the query-boolean parsing rule: "true|1|yes"
// case-insensitive.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Root answers GET / with the liveness text the reference implementation
// returns.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("The service is running!"))
}

// ResetRedis answers GET /reset-redis by flushing all persisted state.
func (h *Handlers) ResetRedis(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Flush(r.Context()); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "redis flushed"})
}

// GetApplication answers GET /application/{team_id}.
func (h *Handlers) GetApplication(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "team_id")

	app, err := h.store.GetApplication(r.Context(), teamID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if app == nil {
		writeError(w, http.StatusNotFound, "no application for team "+teamID)
		return
	}

	h.logFetcher.Refresh(r.Context(), app)
	writeJSON(w, http.StatusOK, app)
}

// ListApplications answers GET /application.
func (h *Handlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.GetApplications(r.Context())
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// DeployApplication answers POST /application/{team_id} by enqueueing a
// deploy job and returning 202 with the job id.
func (h *Handlers) DeployApplication(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "team_id")
	q := r.URL.Query()

	subdomain := q.Get("subdomain")
	if subdomain == "" {
		subdomain = teamID
	}
	imageName := q.Get("image-name")
	if imageName == "" {
		imageName = "traefik/whoami"
	}
	redeploy := true
	if v := q.Get("redeploy"); v != "" {
		redeploy = truthy(v)
	}

	if !validateDeployRequest(h.logger, w, r, deployRequest{TeamID: teamID, Subdomain: subdomain, ImageName: imageName}) {
		return
	}

	payload := tasks.DeployPayload{
		TeamID:              teamID,
		Subdomain:           subdomain,
		ImageName:           imageName,
		RegistryCredentials: q.Get("registry-credentials"),
		Redeploy:            redeploy,
		CallbackURL:         q.Get("callback-url"),
	}

	jobID, err := h.jobs.EnqueueDeployTask(payload)
	if err != nil {
		h.logger.Error("failed to enqueue deploy task", zap.String("team_id", teamID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue deploy job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "deploy job enqueued", "job_id": jobID})
}

// ResumeApplications answers PUT /application by enqueueing a resume job.
func (h *Handlers) ResumeApplications(w http.ResponseWriter, r *http.Request) {
	payload := tasks.ResumePayload{CallbackURL: r.URL.Query().Get("callback-url")}

	jobID, err := h.jobs.EnqueueResumeTask(payload)
	if err != nil {
		h.logger.Error("failed to enqueue resume task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue resume job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "resume job enqueued", "job_id": jobID})
}

// DeleteApplication answers DELETE /application/{team_id}.
func (h *Handlers) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "team_id")
	force := truthy(r.URL.Query().Get("force"))

	if err := h.orchestrator.DeleteApplication(r.Context(), teamID, force); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"team_id": teamID})
}

// DeleteAllApplications answers DELETE /application. The
// delete-all-applications query parameter must be present and truthy or
// the request is rejected outright, matching the explicit-confirmation
// requirement in spec.md §6.
func (h *Handlers) DeleteAllApplications(w http.ResponseWriter, r *http.Request) {
	if !truthy(r.URL.Query().Get("delete-all-applications")) {
		writeError(w, http.StatusBadRequest, "delete-all-applications must be set to a truthy value to confirm this request")
		return
	}

	force := truthy(r.URL.Query().Get("force"))
	deletedIDs, err := h.orchestrator.DeleteAllApplications(r.Context(), force)
	if err != nil {
		// Best-effort and report-all: individual failures are logged by the
		// orchestrator, the HTTP layer still answers 200 with whatever was
		// attempted, per spec.md §9's resolved Open Question on this code path.
		h.logger.Warn("delete-all-applications completed with at least one failure", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string][]string{"deleted_ids": deletedIDs})
}
