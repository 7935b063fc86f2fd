// Command deploy-worker drains the deploy queue: it runs deploy_application
// and resume_stopped_containers jobs against the container runtime and
// state store, and fires callback notifications on completion.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/infra"
	"stackyn/server/internal/notifier"
	"stackyn/server/internal/orchestrator"
	"stackyn/server/internal/runtime"
	"stackyn/server/internal/store"
	"stackyn/server/internal/tasks"
	"stackyn/server/internal/workers"
	"stackyn/server/pkg/graceful"
)

func main() {
	config, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.DebugMode, config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st := store.New(config.Redis.Addr, config.Redis.Password, 0, logger)
	defer st.Close()

	rt, err := runtime.New(config.Docker.Host, logger)
	if err != nil {
		logger.Fatal("failed to connect to docker daemon", zap.Error(err))
	}
	defer rt.Close()

	notify := notifier.New(logger)
	orch := orchestrator.New(st, rt, notify, logger, config.Traefik.Network, config.Traefik.BaseDomain,
		time.Duration(config.DeployTimeoutSeconds)*time.Second)

	handler := tasks.NewHandler(orch, logger)
	server := workers.New(config.Redis.Addr, config.Redis.Password, config.Redis.RQDB, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			logger.Fatal("deploy worker failed", zap.Error(err))
		}
	}()

	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)
	shutdown.Register(graceful.ShutdownFunc(func(ctx context.Context) error {
		cancel()
		return server.Stop(ctx)
	}))
	shutdown.WaitForShutdown()
}

func newLogger(debug bool, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
