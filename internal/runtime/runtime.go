// Package runtime adapts the Docker Engine API to the container lifecycle
// the orchestrator needs: pulling an image (optionally authenticating against
// a private registry), running it behind a Traefik-routed container name,
// confirming it sustains running, and tearing it back down.
package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	apperrors "stackyn/server/internal/errors"
)

// pollInterval is how often WaitForRunning reinspects a starting container,
// matching the 10s cadence of the reference implementation's wait loop.
const pollInterval = 10 * time.Second

// Runtime is the Docker-backed implementation of the container runtime port.
type Runtime struct {
	client *client.Client
	logger *zap.Logger
}

// New dials the Docker daemon at host (e.g. "unix:///var/run/docker.sock").
func New(host string, logger *zap.Logger) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Runtime{client: cli, logger: logger}, nil
}

// Close releases the underlying daemon connection.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// RunResult is what the orchestrator persists onto the application record
// after a successful deploy.
type RunResult struct {
	Status        string
	ContainerID   string
	ContainerName string
	Route         string
	Logs          string
	StartedAt     int64
}

// Login authenticates against a registry, wrapping any failure as
// Unauthorized so the orchestrator can surface invalid_registry_credentials.
func (r *Runtime) Login(ctx context.Context, registryServer, username, password string) error {
	_, err := r.client.RegistryLogin(ctx, registrytypes.AuthConfig{
		Username:      username,
		Password:      password,
		ServerAddress: registryServer,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnauthorized, "invalid registry credentials", err)
	}
	return nil
}

func encodeAuth(username, password, serverAddress string) (string, error) {
	buf, err := json.Marshal(registrytypes.AuthConfig{
		Username:      username,
		Password:      password,
		ServerAddress: serverAddress,
	})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// Run pulls image and starts it as containerName, labeled for Traefik to
// route subdomain.app.baseDomain to it over network. registryCredentials is
// "user:password"; when empty, the image is assumed public. Run blocks until
// the container is confirmed running or until timeout elapses, at which
// point it stops and removes the container and returns a ContainerStart
// error carrying its captured logs.
func (r *Runtime) Run(ctx context.Context, imageName, subdomain, containerName, registryCredentials, network, baseDomain string, timeout time.Duration) (*RunResult, error) {
	var authStr string
	if registryCredentials != "" {
		registryServer, ok := ExtractRegistry(imageName)
		if !ok {
			registryServer = ""
		}
		user, pass, ok := strings.Cut(registryCredentials, ":")
		if !ok {
			return nil, apperrors.New(apperrors.CodeInvalidParameter, "registry_credentials must be of the form user:password")
		}
		if err := r.Login(ctx, registryServer, user, pass); err != nil {
			return nil, err
		}
		var err error
		authStr, err = encodeAuth(user, pass, registryServer)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternalRuntime, "failed to encode registry auth", err)
		}
	}

	r.logger.Info("pulling image", zap.String("image", imageName))
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{RegistryAuth: authStr})
	if err != nil {
		return nil, classifyPullError(imageName, err)
	}
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	route := fmt.Sprintf("%s.app.%s", subdomain, baseDomain)
	routerRule := fmt.Sprintf("Host(`%s`)", route)
	labels := map[string]string{
		"traefik.enable": "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", subdomain):        routerRule,
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", subdomain): "web",
	}

	created, err := r.client.ContainerCreate(ctx,
		&container.Config{Image: imageName, Labels: labels},
		&container.HostConfig{NetworkMode: container.NetworkMode(network)},
		nil, nil, containerName,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalRuntime, "docker api error creating container", err)
	}

	if err := r.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalRuntime, "docker api error starting container", err)
	}

	status, err := r.waitForRunning(ctx, created.ID, timeout)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		Status:        status,
		ContainerID:   created.ID,
		ContainerName: containerName,
		Route:         route,
		StartedAt:     time.Now().Unix(),
	}, nil
}

// waitForRunning polls the container every pollInterval until it has been
// observed running on two consecutive polls (sustained running), it exits,
// or timeout elapses. On failure it captures logs, stops and removes the
// container, and returns a ContainerStart error.
func (r *Runtime) waitForRunning(ctx context.Context, containerID string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	seenRunning := false

	for {
		inspect, err := r.client.ContainerInspect(ctx, containerID)
		if err != nil {
			return "", apperrors.Wrap(apperrors.CodeInternalRuntime, "failed to inspect container", err)
		}
		status := inspect.State.Status

		if status == "running" {
			if seenRunning {
				return status, nil
			}
			seenRunning = true
		} else {
			seenRunning = false
		}

		if status == "exited" || time.Now().After(deadline) {
			logs := r.captureLogs(ctx, containerID)
			r.stopAndRemove(ctx, containerID)
			msg := fmt.Sprintf("container %s failed to reach a sustained running state within %s", containerID, timeout)
			return "", apperrors.NewContainerStart(msg, containerID, status, logs)
		}

		select {
		case <-ctx.Done():
			return "", apperrors.Wrap(apperrors.CodeInternalRuntime, "context cancelled while waiting for container", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (r *Runtime) captureLogs(ctx context.Context, containerID string) string {
	out, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		r.logger.Warn("failed to capture container logs", zap.String("container_id", containerID), zap.Error(err))
		return ""
	}
	defer out.Close()
	data, err := io.ReadAll(out)
	if err != nil {
		r.logger.Warn("failed to read container logs", zap.String("container_id", containerID), zap.Error(err))
		return ""
	}
	return string(data)
}

func (r *Runtime) stopAndRemove(ctx context.Context, containerID string) {
	timeoutSeconds := 10
	if err := r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		r.logger.Warn("failed to stop container after start failure", zap.String("container_id", containerID), zap.Error(err))
	}
	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		r.logger.Warn("failed to remove container after start failure", zap.String("container_id", containerID), zap.Error(err))
	}
}

// Start starts an existing, stopped container. It is a no-op (not an error)
// if the container is already running.
func (r *Runtime) Start(ctx context.Context, containerID string) (startedAt *int64, message string, err error) {
	if containerID == "" {
		return nil, "", apperrors.New(apperrors.CodeInvalidParameter, "container id cannot be empty")
	}

	inspect, inspectErr := r.client.ContainerInspect(ctx, containerID)
	if inspectErr != nil {
		if client.IsErrNotFound(inspectErr) {
			return nil, "", apperrors.Wrap(apperrors.CodeInvalidParameter, fmt.Sprintf("container %s not found", containerID), inspectErr)
		}
		return nil, "", apperrors.Wrap(apperrors.CodeInternalRuntime, "failed to inspect container", inspectErr)
	}
	if inspect.State.Running {
		return nil, fmt.Sprintf("container %s is already running", containerID), nil
	}

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternalRuntime, fmt.Sprintf("docker api error starting container %s", containerID), err)
	}
	now := time.Now().Unix()
	return &now, fmt.Sprintf("started container %s", containerID), nil
}

// Delete stops and removes idOrName. It reports found=false, err=nil when
// the container no longer exists — that is not a failure, the orchestrator
// treats it as cleanup already having happened.
func (r *Runtime) Delete(ctx context.Context, idOrName string) (found bool, err error) {
	if idOrName == "" {
		return false, nil
	}
	if _, err := r.client.ContainerInspect(ctx, idOrName); err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.CodeInternalRuntime, "failed to inspect container", err)
	}

	timeoutSeconds := 10
	if err := r.client.ContainerStop(ctx, idOrName, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		if !client.IsErrNotFound(err) {
			return false, apperrors.Wrap(apperrors.CodeInternalRuntime, "failed to stop container", err)
		}
	}
	if err := r.client.ContainerRemove(ctx, idOrName, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, apperrors.Wrap(apperrors.CodeInternalRuntime, "failed to remove container", err)
	}
	return true, nil
}

func classifyPullError(imageName string, err error) error {
	if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "manifest unknown") {
		return apperrors.Wrap(apperrors.CodeInvalidParameter, fmt.Sprintf("image %s not found", imageName), err)
	}
	return apperrors.Wrap(apperrors.CodeInternalRuntime, "docker api error pulling image", err)
}
