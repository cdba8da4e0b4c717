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
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyforge/api/internal/auth"
	"github.com/storyforge/api/internal/client"
	"github.com/storyforge/api/internal/config"
	"github.com/storyforge/api/internal/handler"
	"github.com/storyforge/api/internal/middleware"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/internal/store"
	"github.com/storyforge/api/internal/worker"
	ws "github.com/storyforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize stores
	stores := store.NewRedisStores(redisClient)

	// Initialize external clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	replicateClient := client.NewReplicateClient(&cfg.Replicate)
	minimaxClient := client.NewMiniMaxClient(&cfg.MiniMax)
	assemblyaiClient := client.NewAssemblyAIClient(&cfg.AssemblyAI)

	// Initialize renderer client (optional - without it the pipeline stops
	// at audio + captions)
	var rendererClient client.VideoRenderer
	if cfg.Renderer.ServiceURL != "" {
		rendererClient = client.NewRendererClient(&cfg.Renderer)
	} else {
		log.Println("Info: Renderer not configured, videos complete at audio + captions")
	}

	// Initialize R2 client (optional - continues if not configured)
	var assetStore client.AssetStore
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			assetStore = r2Client
		}
	} else {
		log.Println("Warning: R2 storage not configured, media stages will fail")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	storyService := service.NewStoryService(stores, asynqClient, groqClient, cfg.Credits)
	segmentService := service.NewSegmentService(stores, asynqClient, cfg.Credits)
	videoService := service.NewVideoService(stores, asynqClient, assemblyaiClient, assetStore, rendererClient, hub, cfg.Credits)

	// Initialize handlers
	storyHandler := handler.NewStoryHandler(storyService, validate)
	segmentHandler := handler.NewSegmentHandler(segmentService, validate)
	videoHandler := handler.NewVideoHandler(videoService, validate)
	creditsHandler := handler.NewCreditsHandler(stores.Credits, cfg.Credits)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq":       groqClient.IsConfigured(),
				"replicate":  replicateClient.IsConfigured(),
				"minimax":    minimaxClient.IsConfigured(),
				"assemblyai": assemblyaiClient.IsConfigured(),
				"renderer":   rendererClient != nil,
				"r2":         assetStore != nil,
				"auth":       jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Story routes
	stories := api.Group("/stories")
	stories.Post("/", rateLimiter.StoryLimit(cfg.RateLimit.StoriesPerHour), storyHandler.Create)
	stories.Get("/", storyHandler.List)
	stories.Get("/:id", storyHandler.Get)
	stories.Put("/:id/script", storyHandler.UpdateScript)
	stories.Post("/:id/review", rateLimiter.StoryLimit(cfg.RateLimit.StoriesPerHour), storyHandler.Review)
	stories.Post("/:id/grammar", rateLimiter.StoryLimit(cfg.RateLimit.StoriesPerHour), storyHandler.FixGrammar)
	stories.Post("/:id/clone", storyHandler.Clone)

	// Segment routes
	stories.Post("/:id/segments", rateLimiter.SegmentLimit(cfg.RateLimit.SegmentsPerHour), segmentHandler.Generate)
	stories.Get("/:id/segments", segmentHandler.List)
	stories.Post("/:id/segments/add", rateLimiter.SegmentLimit(cfg.RateLimit.SegmentsPerHour), segmentHandler.Add)
	stories.Post("/:id/segments/:segmentId/image", rateLimiter.SegmentLimit(cfg.RateLimit.SegmentsPerHour), segmentHandler.RegenerateImage)

	// Video routes
	stories.Post("/:id/video", rateLimiter.VideoLimit(cfg.RateLimit.VideosPerHour), videoHandler.Generate)
	stories.Get("/:id/video", videoHandler.Latest)
	videos := api.Group("/videos")
	videos.Get("/:id", videoHandler.Get)
	videos.Get("/:id/transcription", videoHandler.PollTranscription)

	// Credits
	api.Get("/credits", creditsHandler.Balance)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/stories/:id", websocket.New(func(c *websocket.Conn) {
		storyID := c.Params("id")
		hub.HandleConnection(c, storyID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, stores, asynqClient, groqClient, replicateClient, minimaxClient, assemblyaiClient, rendererClient, assetStore, hub)

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

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	stores *store.Stores,
	asynqClient *asynq.Client,
	groqClient *client.GroqClient,
	replicateClient *client.ReplicateClient,
	minimaxClient *client.MiniMaxClient,
	assemblyaiClient *client.AssemblyAIClient,
	rendererClient client.VideoRenderer,
	assetStore client.AssetStore,
	hub *ws.Hub,
) {
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
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueStories: 4,
				service.QueueMedia:   6,
			},
			LogLevel: asynqLogLevel,
		},
	)

	// Create workers with external clients
	storyWorker := worker.NewStoryWorker(stores, groqClient, hub, cfg.Credits)
	segmentWorker := worker.NewSegmentWorker(stores, groqClient, replicateClient, assetStore, asynqClient, hub)
	videoWorker := worker.NewVideoWorker(stores, minimaxClient, assemblyaiClient, assetStore, rendererClient, asynqClient, hub, cfg.Credits)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeScript, storyWorker.ProcessScriptTask)
	mux.HandleFunc(service.TaskTypeSegments, segmentWorker.ProcessSegmentsTask)
	mux.HandleFunc(service.TaskTypeImage, segmentWorker.ProcessImageTask)
	mux.HandleFunc(service.TaskTypeVideo, videoWorker.ProcessVideoTask)
	mux.HandleFunc(service.TaskTypeCompose, videoWorker.ProcessComposeTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
