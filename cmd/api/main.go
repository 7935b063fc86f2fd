// Command api runs the HTTP front door: it enqueues deploy/resume jobs and
// serves synchronous reads, deletes, and the delete-all sweep directly
// against the state store and orchestrator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/api"
	"stackyn/server/internal/infra"
	"stackyn/server/internal/logfetch"
	"stackyn/server/internal/orchestrator"
	"stackyn/server/internal/runtime"
	"stackyn/server/internal/store"
	"stackyn/server/internal/tasks"
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

	logger.Info("configuration loaded",
		zap.String("base_domain", config.Traefik.BaseDomain),
		zap.String("redis_addr", config.Redis.Addr),
		zap.String("docker_host", config.Docker.Host),
	)

	st := store.New(config.Redis.Addr, config.Redis.Password, 0, logger)
	defer st.Close()

	rt, err := runtime.New(config.Docker.Host, logger)
	if err != nil {
		logger.Fatal("failed to connect to docker daemon", zap.Error(err))
	}
	defer rt.Close()

	orch := orchestrator.New(st, rt, nil, logger, config.Traefik.Network, config.Traefik.BaseDomain,
		time.Duration(config.DeployTimeoutSeconds)*time.Second)

	jobClient := tasks.NewClient(config.Redis.Addr, config.Redis.Password, config.Redis.RQDB, logger)
	defer jobClient.Close()

	fetcher := logfetch.New(config.Loki.BaseURL, st, logger)

	handlers := api.NewHandlers(st, orch, jobClient, fetcher, logger)
	router := api.Router(logger, handlers)

	server := &http.Server{
		Addr:         config.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  75 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := graceful.NewShutdownHandler(logger, 30*time.Second)
	shutdown.Register(graceful.ShutdownFunc(func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}))

	go func() {
		logger.Info("starting api server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

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
