package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/marketsci/robynq/internal/config"
	"github.com/marketsci/robynq/internal/handler"
	"github.com/marketsci/robynq/internal/middleware"
	"github.com/marketsci/robynq/internal/orchestrator"
	"github.com/marketsci/robynq/internal/service"
	"github.com/marketsci/robynq/internal/worker"
	"github.com/marketsci/robynq/pkg/response"
)

// enqueue is cheap; the remote launch is not on this path
const defaultEnqueuePerMin = 60

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the producer-facing HTTP API and verification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	addQueueFlags(cmd)
	addRunnerFlags(cmd)
	return cmd
}

func runServer(cfg *config.Config) error {
	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	comps, err := newComponents(cfg)
	if err != nil {
		return err
	}

	// Verification runs on the asynq worker, off the tick path
	scheduler := service.NewAsynqVerifyScheduler(asynqClient)
	processor := orchestrator.NewProcessor(
		comps.queues,
		comps.launcher,
		comps.verifier,
		comps.runner,
		scheduler,
		cfg.Queue.Retention,
	)

	queueService := service.NewQueueService(comps.queues, processor)
	queueHandler := handler.NewQueueHandler(queueService, validate)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"storage":  comps.storage.IsConfigured(),
				"cloudrun": comps.runner.IsConfigured(),
			},
		})
	})

	// API routes
	api := app.Group("/api")

	queues := api.Group("/queues")
	queues.Post("/:queue/jobs", rateLimiter.EnqueueLimit(defaultEnqueuePerMin), queueHandler.Enqueue)
	queues.Get("/:queue", queueHandler.Get)
	queues.Post("/:queue/pause", queueHandler.Pause)
	queues.Post("/:queue/resume", queueHandler.Resume)
	queues.Post("/:queue/tick", queueHandler.Tick)

	// Start Asynq worker server
	go startWorkerServer(cfg, comps)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	return app.Listen(addr)
}

func startWorkerServer(cfg *config.Config, comps *components) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"verify": 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	verifyWorker := worker.NewVerifyWorker(comps.queues, comps.verifier)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeVerify, verifyWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
