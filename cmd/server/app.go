package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/manipulatorai/engage-api/internal/config"
	"github.com/manipulatorai/engage-api/internal/engine"
	"github.com/manipulatorai/engage-api/internal/gateway"
	"github.com/manipulatorai/engage-api/internal/platform/gemini"
	"github.com/manipulatorai/engage-api/internal/platform/postgres"
	"github.com/manipulatorai/engage-api/internal/platform/redisqueue"
	"github.com/manipulatorai/engage-api/internal/prompt"
	"github.com/manipulatorai/engage-api/internal/queue"
	"github.com/manipulatorai/engage-api/internal/service"
	"github.com/manipulatorai/engage-api/internal/service/auth"
	"github.com/manipulatorai/engage-api/internal/store"
	"github.com/manipulatorai/engage-api/internal/tasks"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	// Stores
	userStore         store.UserStore
	conversationStore store.ConversationStore
	catalogStore      store.CatalogStore

	// Services
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier
	llmGateway       gateway.Gateway
	engine           *engine.Engine
	orchestrator     *service.Orchestrator

	// Task subsystem
	queueBackend queue.Backend
	dispatcher   *tasks.Dispatcher
	monitor      *tasks.Monitor
	pool         *tasks.Pool

	// monitorCancel stops the tracking garbage collector.
	monitorCancel context.CancelFunc
}

// newApplication creates an application instance with all dependencies
// initialized and background workers started.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.passwordVerifier = auth.NewBcryptVerifier()

	app.userStore = postgres.NewPostgresUserStore(db, logger, cfg.Auth.BcryptCost)
	app.conversationStore = postgres.NewPostgresConversationStore(db, logger)
	app.catalogStore = postgres.NewPostgresCatalogStore(db, logger)

	app.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := app.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Redis connection established", "addr", cfg.Redis.Addr)

	app.queueBackend = redisqueue.NewBackend(app.redis,
		redisqueue.WithKeyPrefix(cfg.Redis.KeyPrefix))

	app.llmGateway, err = gemini.NewClient(ctx,
		logger.With("component", "llm_gateway"), cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM gateway: %w", err)
	}
	logger.Info("LLM gateway initialized", "model", cfg.LLM.ModelName)

	composer := prompt.NewComposer(personalityFromConfig(cfg.Conversation.Personality))
	app.engine = engine.New(
		app.conversationStore,
		app.catalogStore,
		app.llmGateway,
		composer,
		cfg.Conversation,
	)

	app.dispatcher = tasks.NewDispatcher(app.queueBackend)
	app.orchestrator = service.NewOrchestrator(app.engine, app.conversationStore, app.dispatcher)

	app.monitor = tasks.NewMonitor(app.queueBackend, app.dispatcher,
		cfg.Task.TrackingTTL, cfg.Task.GCInterval)

	app.pool = tasks.NewPool(app.queueBackend, cfg.Task,
		logger.With("component", "task_pool"))
	app.pool.Register(tasks.NewConversationHandler(app.orchestrator))
	app.pool.Register(tasks.NewWebhookHandler(app.orchestrator))
	app.pool.Register(tasks.NewAnalyticsHandler(app.engine))
	app.pool.Start()
	logger.Info("Task pool started", "workers", cfg.Task.WorkerCount)

	monitorCtx, cancel := context.WithCancel(context.Background())
	app.monitorCancel = cancel
	go app.monitor.Run(monitorCtx)

	logger.Info("Application initialized successfully")
	return app, nil
}

// personalityFromConfig maps the configured voice into the composer's
// personality.
func personalityFromConfig(cfg config.PersonalityConfig) prompt.Personality {
	return prompt.Personality{
		Tone:             cfg.Tone,
		Approach:         cfg.Approach,
		PersistenceLevel: cfg.PersistenceLevel,
		EmpathyLevel:     cfg.EmpathyLevel,
		ExpertiseLevel:   cfg.ExpertiseLevel,
	}
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. In-flight
// tasks finish before the pool stops.
func (app *application) cleanup() {
	if app.monitorCancel != nil {
		app.monitorCancel()
	}

	if app.pool != nil {
		app.pool.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
