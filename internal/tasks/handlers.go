package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"stackyn/server/internal/domain"
)

// Orchestrator is the subset of the orchestrator's operations the worker
// needs to run a job to completion.
type Orchestrator interface {
	DeployApplication(ctx context.Context, jobID, teamID, subdomain, imageName, registryCredentials, callbackURL string, redeploy bool) (*domain.Application, error)
	ResumeStoppedContainers(ctx context.Context, jobID, callbackURL string) error
}

// Handler adapts the orchestrator's deploy/resume operations to asynq
// handler functions. Both tasks always persist a terminal record on the
// application(s) they touch before returning, per spec.md's policy that
// every terminal branch writes a record. The deploy handler therefore logs
// whatever outcome the orchestrator returns and reports success to asynq,
// so a deploy is never retried; only a payload that fails to decode, or a
// resume whose initial state store read fails, propagates an error back to
// asynq (triggering a retry).
type Handler struct {
	orchestrator Orchestrator
	logger       *zap.Logger
}

// NewHandler builds a Handler over orchestrator.
func NewHandler(orchestrator Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, logger: logger}
}

func jobIDFromContext(ctx context.Context) string {
	if id, ok := asynq.GetTaskID(ctx); ok {
		return id
	}
	return ""
}

// HandleDeployTask runs deploy_application for the task's payload.
func (h *Handler) HandleDeployTask(ctx context.Context, t *asynq.Task) error {
	var payload DeployPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal deploy task payload: %w", err)
	}

	jobID := jobIDFromContext(ctx)
	h.logger.Info("starting deploy task", zap.String("job_id", jobID), zap.String("team_id", payload.TeamID))

	_, err := h.orchestrator.DeployApplication(ctx, jobID, payload.TeamID, payload.Subdomain, payload.ImageName, payload.RegistryCredentials, payload.CallbackURL, payload.Redeploy)
	if err != nil {
		h.logger.Warn("deploy task finished with a recorded outcome", zap.String("job_id", jobID), zap.String("team_id", payload.TeamID), zap.Error(err))
	}
	return nil
}

// HandleResumeTask runs resume_stopped_containers for the task's payload.
func (h *Handler) HandleResumeTask(ctx context.Context, t *asynq.Task) error {
	var payload ResumePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal resume task payload: %w", err)
	}

	jobID := jobIDFromContext(ctx)
	h.logger.Info("starting resume task", zap.String("job_id", jobID))

	if err := h.orchestrator.ResumeStoppedContainers(ctx, jobID, payload.CallbackURL); err != nil {
		h.logger.Error("resume task failed to read state store", zap.String("job_id", jobID), zap.Error(err))
		return err
	}
	return nil
}
