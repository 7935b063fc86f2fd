// Package logfetch implements the auxiliary log fetcher: it enriches an
// application record with recent lines from an external Loki-compatible log
// service, keyed by container id, subject to a short freshness window.
package logfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/domain"
)

// freshness is how long a previous log fetch remains valid before a GET of
// the application should refresh it.
const freshness = 60 * time.Second

// Store is the subset of the state store the fetcher needs to persist a
// refreshed record.
type Store interface {
	Save(ctx context.Context, app *domain.Application) error
}

// Fetcher queries the log service and merges results onto application
// records.
type Fetcher struct {
	baseURL string
	client  *http.Client
	store   Store
	logger  *zap.Logger
}

// New builds a Fetcher against baseURL (e.g. "http://loki:3100").
func New(baseURL string, store Store, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		store:   store,
		logger:  logger,
	}
}

// queryRangeResponse mirrors the subset of Loki's query_range response this
// fetcher reads.
type queryRangeResponse struct {
	Data struct {
		Result []struct {
			Values [][2]string `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Refresh updates app.Logs / app.LogsUpdatedAt in place if the existing
// watermark is absent or stale and the record has a container id. When the
// record changes, Refresh persists it itself via Save; a Save failure is
// logged and the caller still sees the refreshed record.
//
// A query that returns no results does not advance the watermark: the
// reference implementation only persists logs_updated_at inside the branch
// where Loki actually returned data, so a genuinely empty result is
// re-queried on every subsequent read instead of being cached as "known
// empty".
func (f *Fetcher) Refresh(ctx context.Context, app *domain.Application) {
	if app.ContainerID == "" {
		return
	}
	if app.LogsUpdatedAt != "" {
		if last, err := strconv.ParseInt(app.LogsUpdatedAt, 10, 64); err == nil {
			if time.Since(time.Unix(last, 0)) < freshness {
				return
			}
		}
	}

	query := fmt.Sprintf(`{container_id="%s"}`, app.ContainerID)
	reqURL := fmt.Sprintf("%s/loki/api/v1/query_range?query=%s", f.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		f.logger.Warn("failed to build loki request", zap.String("team_id", app.TeamID), zap.Error(err))
		return
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("loki query failed, leaving record unchanged", zap.String("team_id", app.TeamID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("loki returned a non-200 status", zap.String("team_id", app.TeamID), zap.Int("status_code", resp.StatusCode))
		return
	}

	var parsed queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		f.logger.Warn("failed to decode loki response", zap.String("team_id", app.TeamID), zap.Error(err))
		return
	}

	if len(parsed.Data.Result) == 0 {
		return
	}

	lines := make([]string, 0, len(parsed.Data.Result[0].Values))
	for _, v := range parsed.Data.Result[0].Values {
		lines = append(lines, v[1])
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		f.logger.Warn("failed to encode log lines", zap.String("team_id", app.TeamID), zap.Error(err))
		return
	}

	app.Logs = string(encoded)
	app.LogsUpdatedAt = strconv.FormatInt(time.Now().Unix(), 10)

	if err := f.store.Save(ctx, app); err != nil {
		f.logger.Warn("failed to persist refreshed logs", zap.String("team_id", app.TeamID), zap.Error(err))
	}
}
