package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nurture_backend/internal/email"
	"nurture_backend/internal/events"
	"nurture_backend/internal/followup"
	"nurture_backend/internal/scheduler"
	"nurture_backend/platform/ai/completion"
	"nurture_backend/platform/ai/moonshot"
	"nurture_backend/platform/config"
	"nurture_backend/platform/db"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	var archive storage.Archiver = storage.NoopArchive{}
	if cfg.IsMinIOEnabled() {
		a, err := storage.NewMinIOArchive(ctx, cfg)
		if err != nil {
			log.Warn("ai archive unavailable; continuing without it", "error", err)
		} else {
			archive = a
		}
	}

	llm := moonshot.NewModel(moonshot.Config{
		APIKey:  cfg.GetMoonshotAPIKey(),
		BaseURL: cfg.GetMoonshotBaseURL(),
		Model:   cfg.GetMoonshotModel(),
	})

	// Worker-side follow-up wiring (no HTTP handlers required).
	followupModule, err := followup.NewModule(pool, followup.Dependencies{
		Config:    cfg,
		Completer: completion.New(llm),
		Archive:   archive,
		Email:     email.NewSender(cfg, cfg),
		EventBus:  eventBus,
		Log:       log,
	})
	if err != nil {
		log.Error("failed to initialize followup module", "error", err)
		panic("failed to initialize followup module: " + err.Error())
	}
	repo := followupModule.Repository()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := scheduler.NewFollowupJobDispatcher(client, repo, cfg, log)
	go dispatcher.Run(ctx)

	cleanupInterval := getDurationEnv("FOLLOWUP_JOB_CLEANUP_INTERVAL", time.Hour)
	cleanup := scheduler.NewFollowupJobCleanup(repo, log, cleanupInterval, cfg.GetFollowupJobRetention())
	go cleanup.Run(ctx)

	runner := scheduler.NewStepRunner(repo, followupModule.Executor(), cfg, log)
	worker, err := scheduler.NewWorker(cfg, runner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
