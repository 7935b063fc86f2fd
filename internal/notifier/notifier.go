// Package notifier delivers deploy/resume job outcomes to a caller-supplied
// callback URL. Delivery is best-effort: a transport failure or non-2xx
// response is logged and otherwise ignored, mirroring the reference
// implementation's practice of never letting a callback failure affect the
// task's own persisted outcome.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/domain"
)

// Notifier POSTs job outcomes to callback URLs.
type Notifier struct {
	client *http.Client
	logger *zap.Logger
}

// New builds a Notifier with a bounded per-request timeout, following the
// same pattern as the teacher's WebSocketBroadcastClient.
func New(logger *zap.Logger) *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// payload is the JSON body posted to callback URLs, exactly the shape
// spec.md §6 describes: {job_id, status, application}.
type payload struct {
	JobID       string              `json:"job_id"`
	Status      string              `json:"status"`
	Application *domain.Application `json:"application"`
}

// Notify posts the job outcome to callbackURL. app may be nil for tasks
// that do not center on a single application record (resume). Errors are
// logged, never returned — callers must treat this as fire-and-forget.
func (n *Notifier) Notify(ctx context.Context, callbackURL, jobID, status string, app *domain.Application) {
	if callbackURL == "" {
		return
	}

	body, err := json.Marshal(payload{JobID: jobID, Status: status, Application: app})
	if err != nil {
		n.logger.Warn("failed to marshal callback payload", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build callback request", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("callback delivery failed", zap.String("job_id", jobID), zap.String("callback_url", callbackURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("callback endpoint returned a non-2xx status",
			zap.String("job_id", jobID), zap.String("callback_url", callbackURL), zap.Int("status_code", resp.StatusCode))
		return
	}

	n.logger.Info("callback delivered", zap.String("job_id", jobID), zap.String("status", status))
}
