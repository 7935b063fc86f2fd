package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Client wraps the asynq client for the deploy queue, giving the HTTP
// handlers one Enqueue* method per task type instead of exposing asynq
// primitives directly.
type Client struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewClient dials redisAddr and returns a ready Client.
func NewClient(redisAddr, redisPassword string, db int, logger *zap.Logger) *Client {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword, DB: db}
	return &Client{client: asynq.NewClient(redisOpt), logger: logger}
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDeployTask enqueues a deploy_application job and returns its job
// id, which the caller returns to the client as part of its 202 response.
func (c *Client) EnqueueDeployTask(payload DeployPayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal deploy task payload: %w", err)
	}

	task := asynq.NewTask(TypeDeployTask, payloadBytes)
	info, err := c.client.Enqueue(task, asynq.Queue(Queue), asynq.MaxRetry(3), asynq.Timeout(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue deploy task: %w", err)
	}

	c.logger.Info("deploy task enqueued", zap.String("job_id", info.ID), zap.String("team_id", payload.TeamID))
	return info.ID, nil
}

// EnqueueResumeTask enqueues a resume_stopped_containers job and returns
// its job id.
func (c *Client) EnqueueResumeTask(payload ResumePayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal resume task payload: %w", err)
	}

	task := asynq.NewTask(TypeResumeTask, payloadBytes)
	info, err := c.client.Enqueue(task, asynq.Queue(Queue), asynq.MaxRetry(1), asynq.Timeout(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue resume task: %w", err)
	}

	c.logger.Info("resume task enqueued", zap.String("job_id", info.ID))
	return info.ID, nil
}
