package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/internal/config"
	"github.com/makeasinger/musicforge/internal/handler"
	"github.com/makeasinger/musicforge/internal/logging"
	"github.com/makeasinger/musicforge/internal/repository"
	"github.com/makeasinger/musicforge/internal/service"
	ws "github.com/makeasinger/musicforge/internal/websocket"
	"github.com/makeasinger/musicforge/internal/worker"
	"github.com/makeasinger/musicforge/pkg/response"
)

// @title          MusicForge API
// @version        1.0
// @description    Staged music generation pipeline with live progress.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis not available", zap.Error(err))
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	repo := repository.NewRedisRepository(redisClient,
		repository.WithTTL(time.Duration(cfg.Redis.ProjectTTLHours)*time.Hour),
		repository.WithPrefix(cfg.Redis.KeyPrefix))

	// External providers
	var text agent.TextProvider = client.MockChatClient{}
	chatClient := client.NewChatClient(&cfg.LLM)
	if chatClient.IsConfigured() {
		text = chatClient
	} else {
		zlog.Info("llm provider not configured, using mock completions", zap.String("provider", cfg.LLM.Provider))
	}

	var workerClient *client.WorkerClient
	if cfg.Worker.Enabled {
		workerClient = client.NewWorkerClient(&cfg.Worker)
	}

	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			zlog.Warn("r2 client not initialized", zap.Error(err))
		}
	} else {
		zlog.Info("r2 storage not configured, artifacts stay local")
	}

	// Pipeline
	registry := agent.NewRegistry(time.Duration(cfg.Pipeline.LedgerTTLMinutes)*time.Minute, zlog)
	go registry.Run(ctx, time.Duration(cfg.Pipeline.SweepIntervalSeconds)*time.Second)

	projectService := service.NewProjectService(repo, redisClient, asynqClient, storageOrNil(r2Client),
		time.Duration(cfg.Pipeline.RunTimeoutMinutes)*time.Minute, zlog)

	// relay is assigned once the hub exists; runs only start after that
	var relay *worker.ProgressRelay
	opts := []agent.Option{
		agent.WithRegistry(registry),
		agent.WithLogger(zlog),
		agent.WithObserver(func(ctx context.Context, runID string, updates <-chan agent.Snapshot) {
			relay.Observe(ctx, runID, updates)
		}),
	}
	if workerClient != nil {
		opts = append(opts, agent.WithWorker(workerClient))
	}
	if r2Client != nil {
		opts = append(opts, agent.WithStorage(r2Client))
	}
	orchestrator := agent.NewOrchestrator(text, repo, opts...)

	hub := ws.NewHub(orchestrator, zlog)
	go hub.Run(ctx)
	relay = worker.NewProgressRelay(projectService, hub, zlog)

	// Handlers
	validate := validator.New()
	projectHandler := handler.NewProjectHandler(projectService, orchestrator, validate)

	var health interface {
		HealthCheck(ctx context.Context) (*client.HealthStatus, error)
	}
	if workerClient != nil {
		health = workerClient
	}
	healthHandler := handler.NewHealthHandler(cfg.LLM.Provider, chatClient, health, storageOrNil(r2Client), redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handler.RegisterRoutes(app, projectHandler, healthHandler)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/projects/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	generationWorker := worker.NewGenerationWorker(orchestrator, projectService, hub, relay, repo, zlog)
	srv := newWorkerServer(cfg, redisOpt, zlog)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generationWorker.ProcessGenerate)
	mux.HandleFunc(service.TaskTypeIterate, generationWorker.ProcessIterate)

	go func() {
		if err := srv.Run(mux); err != nil {
			zlog.Error("asynq worker error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zlog.Info("shutting down server")
		srv.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	zlog.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
	if err := app.Listen(addr); err != nil {
		zlog.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, zlog *zap.Logger) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Pipeline.QueueConcurrency,
		Queues: map[string]int{
			service.QueueGeneration: 1,
		},
		LogLevel: asynqLogLevel,
		Logger:   zlog.Named("asynq").Sugar(),
	})
}

// storageOrNil keeps a nil *R2Client from becoming a non-nil interface
func storageOrNil(c *client.R2Client) client.StorageClient {
	if c == nil {
		return nil
	}
	return c
}
