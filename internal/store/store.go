// Package store implements the keyed application record store described by
// the state store contract: application records keyed by team_id plus the
// managed_applications and occupied_subdomains sets, backed by Redis.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stackyn/server/internal/domain"
	apperrors "stackyn/server/internal/errors"
)

const (
	managedApplicationsKey = "managed_applications"
	occupiedSubdomainsKey  = "occupied_subdomains"
)

// Store is the Redis-backed implementation of the application record store.
// It opens its own connection to db 0 of the configured Redis instance,
// separate from the db the job queue uses.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis and returns a ready Store. db selects the Redis
// logical database; application state always lives in db 0, mirroring the
// Python reference implementation's redis_db connection.
func New(addr, password string, db int, logger *zap.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: client, logger: logger}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// GetApplication returns the record for team_id, or nil if it is not
// managed. A team_id present in managed_applications with no hash data is
// an inconsistent store and is reported as InternalStore.
func (s *Store) GetApplication(ctx context.Context, teamID string) (*domain.Application, error) {
	isManaged, err := s.client.SIsMember(ctx, managedApplicationsKey, teamID).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	if !isManaged {
		return nil, nil
	}

	var app domain.Application
	if err := s.client.HGetAll(ctx, teamID).Scan(&app); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	if app.TeamID == "" {
		err := fmt.Errorf("no application data for team %s, the state of the db is inconsistent", teamID)
		s.logger.Error("store inconsistency", zap.String("team_id", teamID), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.CodeInternalStore, err.Error(), err)
	}
	return &app, nil
}

// GetAllTeamIDs returns the current snapshot of managed_applications.
func (s *Store) GetAllTeamIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, managedApplicationsKey).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	return ids, nil
}

// GetApplications maps GetApplication over the managed_applications
// snapshot. Any inconsistency for a single team is fatal for the whole call.
func (s *Store) GetApplications(ctx context.Context) ([]*domain.Application, error) {
	ids, err := s.GetAllTeamIDs(ctx)
	if err != nil {
		return nil, err
	}
	apps := make([]*domain.Application, 0, len(ids))
	for _, id := range ids {
		app, err := s.GetApplication(ctx, id)
		if err != nil {
			return nil, err
		}
		if app == nil {
			err := fmt.Errorf("no application data for team %s, the state of the db is inconsistent", id)
			return nil, apperrors.Wrap(apperrors.CodeInternalStore, err.Error(), err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// IsSubdomainUsed reports membership in occupied_subdomains.
func (s *Store) IsSubdomainUsed(ctx context.Context, subdomain string) (bool, error) {
	used, err := s.client.SIsMember(ctx, occupiedSubdomainsKey, subdomain).Result()
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	return used, nil
}

// Save upserts an application record: adds team_id to managed_applications
// and subdomain to occupied_subdomains, clears a stale error field when the
// incoming record no longer carries one, then writes the record hash.
func (s *Store) Save(ctx context.Context, app *domain.Application) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, managedApplicationsKey, app.TeamID)
	pipe.SAdd(ctx, occupiedSubdomainsKey, app.Subdomain)
	if !app.HasError() {
		pipe.HDel(ctx, app.TeamID, "error")
	}
	pipe.HSet(ctx, app.TeamID, app)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	return nil
}

// Delete atomically removes team_id from both sets and deletes the record
// hash.
func (s *Store) Delete(ctx context.Context, teamID, subdomain string) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, managedApplicationsKey, teamID)
	pipe.SRem(ctx, occupiedSubdomainsKey, subdomain)
	pipe.Del(ctx, teamID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	return nil
}

// Flush wipes all Redis state in this database.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.client.FlushDB(ctx).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalStore, "redis error", err)
	}
	return nil
}
