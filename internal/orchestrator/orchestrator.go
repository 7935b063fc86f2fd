// Package orchestrator implements the deployment lifecycle operations that
// the task handlers invoke: deploying a new container, deleting one or all
// managed applications, and resuming containers after a host restart. It is
// the Go home for what the reference system implements as a set of RQ job
// functions — here, plain methods the asynq handlers call directly.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/domain"
	apperrors "stackyn/server/internal/errors"
	"stackyn/server/internal/runtime"
)

// Store is the subset of the application record store the orchestrator
// needs. Satisfied by *store.Store.
type Store interface {
	GetApplication(ctx context.Context, teamID string) (*domain.Application, error)
	GetApplications(ctx context.Context) ([]*domain.Application, error)
	GetAllTeamIDs(ctx context.Context) ([]string, error)
	IsSubdomainUsed(ctx context.Context, subdomain string) (bool, error)
	Save(ctx context.Context, app *domain.Application) error
	Delete(ctx context.Context, teamID, subdomain string) error
	Flush(ctx context.Context) error
}

// Runtime is the subset of the container runtime the orchestrator needs.
// Satisfied by *runtime.Runtime.
type Runtime interface {
	Run(ctx context.Context, imageName, subdomain, containerName, registryCredentials, network, baseDomain string, timeout time.Duration) (*runtime.RunResult, error)
	Start(ctx context.Context, containerID string) (startedAt *int64, message string, err error)
	Delete(ctx context.Context, idOrName string) (found bool, err error)
}

// Notifier delivers a job outcome to a caller-supplied callback URL. A
// delivery failure is logged, never returned — callbacks are best-effort.
type Notifier interface {
	Notify(ctx context.Context, callbackURL, jobID, status string, app *domain.Application)
}

// Orchestrator wires the state store, container runtime, and callback
// notifier into the deployment operations the API exposes.
type Orchestrator struct {
	store      Store
	runtime    Runtime
	notifier   Notifier
	logger     *zap.Logger
	network    string
	baseDomain string
	timeout    time.Duration
}

// New builds an Orchestrator. network and baseDomain parameterize every
// container this orchestrator runs; timeout bounds how long a deploy waits
// for a container to sustain running.
func New(store Store, rt Runtime, notifier Notifier, logger *zap.Logger, network, baseDomain string, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:      store,
		runtime:    rt,
		notifier:   notifier,
		logger:     logger,
		network:    network,
		baseDomain: baseDomain,
		timeout:    timeout,
	}
}

func containerName(teamID string) string {
	return fmt.Sprintf("team-%s", teamID)
}

// DeployApplication runs checkDeployConditions, then deploys imageName for
// teamID under subdomain. jobID and callbackURL, when callbackURL is
// non-empty, are used to notify the caller of the outcome once the record is
// persisted — mirroring the reference implementation's practice of always
// calling its callback notifier in a finally block regardless of outcome.
func (o *Orchestrator) DeployApplication(ctx context.Context, jobID, teamID, subdomain, imageName, registryCredentials, callbackURL string, redeploy bool) (*domain.Application, error) {
	if subdomain == "" {
		subdomain = teamID
	}

	app := &domain.Application{
		TeamID:    teamID,
		Subdomain: subdomain,
		ImageName: imageName,
	}

	var outcome error
	if err := o.checkDeployConditions(ctx, teamID, subdomain, redeploy); err != nil {
		outcome = err
	} else {
		name := containerName(teamID)
		result, err := o.runtime.Run(ctx, imageName, subdomain, name, registryCredentials, o.network, o.baseDomain, o.timeout)
		if err != nil {
			outcome = err
			if cs, ok := apperrors.As(err); ok && cs.Code == apperrors.CodeContainerStart && cs.Details != nil {
				app.ContainerID = cs.Details.ContainerID
				app.Status = string(domain.StatusExited)
				app.Logs = cs.Details.Logs
			}
		} else {
			app.ContainerID = result.ContainerID
			app.ContainerName = result.ContainerName
			app.Route = result.Route
			app.Status = string(domain.StatusRunning)
			app.StartedAt = strconv.FormatInt(result.StartedAt, 10)
		}
	}

	if outcome != nil {
		app.Error = outcome.Error()
		if code, ok := apperrors.As(outcome); ok {
			switch code.Code {
			case apperrors.CodeInvalidParameter:
				app.Status = string(domain.StatusInvalidParameter)
			case apperrors.CodeUnauthorized:
				app.Status = string(domain.StatusInvalidRegistryCredentials)
			case apperrors.CodeContainerStart:
				// app.Status already set to exited above.
			default:
				app.Status = string(domain.StatusInternalError)
			}
		} else {
			app.Status = string(domain.StatusInternalError)
		}
	}

	saveErr := o.store.Save(ctx, app)
	if o.notifier != nil && callbackURL != "" {
		o.notifier.Notify(ctx, callbackURL, jobID, app.Status, app)
	}
	if saveErr != nil {
		return app, saveErr
	}
	return app, outcome
}

// checkDeployConditions implements the four-branch precondition check a
// deploy must pass:
//
//  1. no record, subdomain free: best-effort delete of any container left
//     over by a crashed previous deploy, under the name this team would get;
//     any runtime error here is a non-fatal divergence, logged and ignored.
//  2. record exists, redeploy=true: delete by the stored container_id (if
//     any), then by container name, so a worker crash between "record
//     saved" and "old container removed" can't leave an orphan; a runtime
//     error that isn't "not found" aborts the deploy.
//  3. record exists, redeploy=false: reject as a duplicate.
//  4. no record, subdomain occupied: reject as a collision.
func (o *Orchestrator) checkDeployConditions(ctx context.Context, teamID, subdomain string, redeploy bool) error {
	existing, err := o.store.GetApplication(ctx, teamID)
	if err != nil {
		return err
	}

	name := containerName(teamID)

	if existing == nil {
		used, err := o.store.IsSubdomainUsed(ctx, subdomain)
		if err != nil {
			return err
		}
		if used {
			return apperrors.New(apperrors.CodeInvalidParameter, fmt.Sprintf("Subdomain %s is already in use", subdomain))
		}
		if _, err := o.runtime.Delete(ctx, name); err != nil {
			o.logger.Warn("leftover container cleanup failed, proceeding with deploy anyway",
				zap.String("team_id", teamID), zap.String("container_name", name), zap.Error(err))
		}
		return nil
	}

	if !redeploy {
		return apperrors.New(apperrors.CodeInvalidParameter, fmt.Sprintf("application for team %s already exists", teamID))
	}

	if existing.ContainerID != "" {
		if _, err := o.runtime.Delete(ctx, existing.ContainerID); err != nil {
			return apperrors.Wrap(apperrors.CodeInternalError, "failed to remove previous container before redeploy", err)
		}
	}
	if _, err := o.runtime.Delete(ctx, name); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalError, "failed to remove previous container before redeploy", err)
	}
	return nil
}

// DeleteApplication removes a team's managed container and its record. A
// missing record is NotFound. force suppresses a failure to remove the
// container and deletes the record anyway.
func (o *Orchestrator) DeleteApplication(ctx context.Context, teamID string, force bool) error {
	app, err := o.store.GetApplication(ctx, teamID)
	if err != nil {
		return err
	}
	if app == nil {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("no application for team %s", teamID))
	}

	if app.Status == string(domain.StatusRunning) && app.ContainerID == "" {
		return apperrors.New(apperrors.CodeInternalError, fmt.Sprintf("application for team %s is running but has no container id", teamID))
	}

	if app.ContainerID != "" {
		if _, err := o.runtime.Delete(ctx, app.ContainerID); err != nil {
			if !force {
				return err
			}
			o.logger.Warn("ignoring container removal failure, force delete requested",
				zap.String("team_id", teamID), zap.Error(err))
		}
	}

	return o.store.Delete(ctx, app.TeamID, app.Subdomain)
}

// DeleteAllApplications attempts DeleteApplication for every managed team,
// continuing past individual failures, and returns the full list of team
// IDs it attempted — not just the ones it succeeded on, matching the
// reference implementation's bookkeeping.
func (o *Orchestrator) DeleteAllApplications(ctx context.Context, force bool) ([]string, error) {
	teamIDs, err := o.store.GetAllTeamIDs(ctx)
	if err != nil {
		return nil, err
	}

	attempted := make([]string, 0, len(teamIDs))
	var firstErr error
	for _, teamID := range teamIDs {
		attempted = append(attempted, teamID)
		if err := o.DeleteApplication(ctx, teamID, force); err != nil {
			o.logger.Error("failed to delete application during delete-all", zap.String("team_id", teamID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return attempted, firstErr
}

// ResumeStoppedContainers restarts every managed application's container
// that has a container ID, recording the new started_at and status on
// success and internal_error on any per-application failure without
// aborting the sweep. jobID and callbackURL, when callbackURL is non-empty,
// notify the caller once the whole sweep completes; the task does not map
// onto a single application record, so the callback's application field is
// left nil.
func (o *Orchestrator) ResumeStoppedContainers(ctx context.Context, jobID, callbackURL string) error {
	apps, err := o.store.GetApplications(ctx)
	if err != nil {
		if o.notifier != nil && callbackURL != "" {
			o.notifier.Notify(ctx, callbackURL, jobID, string(domain.StatusInternalError), nil)
		}
		return err
	}

	for _, app := range apps {
		if app.ContainerID == "" {
			continue
		}

		startedAt, _, err := o.runtime.Start(ctx, app.ContainerID)
		if err != nil {
			o.logger.Error("failed to resume container", zap.String("team_id", app.TeamID), zap.String("container_id", app.ContainerID), zap.Error(err))
			app.Status = string(domain.StatusInternalError)
			app.Error = err.Error()
		} else {
			app.Status = string(domain.StatusRunning)
			if startedAt != nil {
				app.StartedAt = strconv.FormatInt(*startedAt, 10)
			}
			app.Error = ""
		}

		if err := o.store.Save(ctx, app); err != nil {
			o.logger.Error("failed to persist resumed application state", zap.String("team_id", app.TeamID), zap.Error(err))
		}
	}

	if o.notifier != nil && callbackURL != "" {
		o.notifier.Notify(ctx, callbackURL, jobID, "completed", nil)
	}
	return nil
}
