package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketingflow/api"
	"marketingflow/backend"
	"marketingflow/config"
	"marketingflow/logging"
	"marketingflow/spool"
	"marketingflow/task"
	"marketingflow/workspace"
)

func main() {
	// 1. Load configuration
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// 2. Backend client and job controllers
	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithLogger(logger),
		backend.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		logger.Error("failed to create backend client", "error", err)
		os.Exit(1)
	}

	pollCfg := task.Config{
		Interval:       cfg.PollInterval,
		RequestTimeout: cfg.PollRequestTimeout,
		MaxDuration:    cfg.PollMaxDuration,
	}
	media, err := task.NewController(task.KindMedia, client, pollCfg, task.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create media controller", "error", err)
		os.Exit(1)
	}
	remix, err := task.NewController(task.KindRemix, client, pollCfg, task.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create remix controller", "error", err)
		os.Exit(1)
	}

	ws := workspace.New(client, media, remix, logger)

	sp, err := spool.New(spool.Config{
		Dir:         cfg.SpoolDir,
		MaxSize:     cfg.MaxUploadSize,
		MinFreeMem:  cfg.ThrottleFreeMem,
		MinFreeDisk: cfg.ThrottleFreeDisk,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize upload spool", "error", err)
		os.Exit(1)
	}
	defer sp.Close()

	// 3. Router and server
	router := api.SetupRouter(api.NewHandler(ws, sp, logger), cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.WithCORS(router, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "port", cfg.Port, "backend", client.BaseURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			stop()
		}
	}()

	// 4. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()
	stop()
	logger.Info("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	ws.Close()

	logger.Info("server exiting")
}
