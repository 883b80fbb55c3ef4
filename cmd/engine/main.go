package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/levhaolam/support-engine/internal/chatwoot"
	"github.com/levhaolam/support-engine/internal/config"
	"github.com/levhaolam/support-engine/internal/dedup"
	"github.com/levhaolam/support-engine/internal/domain"
	"github.com/levhaolam/support-engine/internal/evalgate"
	"github.com/levhaolam/support-engine/internal/llm"
	"github.com/levhaolam/support-engine/internal/pipeline"
	"github.com/levhaolam/support-engine/internal/retention"
	"github.com/levhaolam/support-engine/internal/server"
	"github.com/levhaolam/support-engine/internal/storage/sqlite"
	"github.com/levhaolam/support-engine/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	watcher, err := config.NewWatcher("config.yaml", logger)
	if err != nil {
		log.Fatalf("Failed to create config watcher: %v", err)
	}
	defer watcher.Close()

	cfg, err := watcher.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("support-engine", logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := sqlite.New(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	var client *llm.Client
	if cfg.OpenAI.BaseURL != "" {
		client = llm.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	} else {
		client = llm.NewClient(cfg.OpenAI.APIKey)
	}

	orchestrator, err := pipeline.New(pipeline.Config{
		Classifier:  llm.NewClassifier(client, logger),
		Names:       llm.NewNameExtractor(client, logger),
		Contexts:    store,
		Generator:   llm.NewGenerator(client, logger),
		Outstanding: llm.NewOutstandingDetector(client, store, logger),
		Links:       retention.NewLinkGenerator(cfg.Pipeline.LinkPassword, cfg.Pipeline.CancelBaseURL),
		Gate:        evalgate.New(llm.NewJudge(client, logger), logger),
		QAGate:      evalgate.NewQA(llm.NewQAJudge(client, logger), logger),
		Store:       store,
		Logger:      logger,
		TeamMode:    cfg.Pipeline.TeamMode,
	})
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	// Hot-reload: team mode is the one pipeline setting that flips without a
	// restart. Watch fails when config.yaml is absent; env-only deployments
	// simply run without reload.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := watcher.Watch(watchCtx, func(next *config.Config) {
		orchestrator.SetTeamMode(next.Pipeline.TeamMode)
		logger.Info("config reloaded", slog.Bool("team_mode", next.Pipeline.TeamMode))
	}); err != nil {
		logger.Warn("config hot-reload disabled", slog.String("error", err.Error()))
	}

	var dispatcher *server.Dispatcher
	if cfg.Chatwoot.BaseURL != "" && cfg.Chatwoot.APIToken != "" {
		messenger := chatwoot.NewClient(cfg.Chatwoot.BaseURL, cfg.Chatwoot.AccountID, cfg.Chatwoot.APIToken)
		dispatcher = server.NewDispatcher(messenger, cfg.Chatwoot.EscalationAgentID, logger)
	} else {
		logger.Warn("chatwoot not configured, webhook dispatch disabled")
	}

	srv, err := server.New(server.Config{
		Port:         cfg.Server.Port,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		Orchestrator: orchestrator,
		Dispatcher:   dispatcher,
		Dedup:        dedup.New(),
		HealthProbe: func(ctx context.Context) error {
			return store.DB().PingContext(ctx)
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("support engine started",
		slog.Int("port", cfg.Server.Port),
		slog.Bool("team_mode", cfg.Pipeline.TeamMode),
		slog.Int("categories", len(domain.ValidCategories())))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
