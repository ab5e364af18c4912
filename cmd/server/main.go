package main

import (
	"context"
	"fmt"
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
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/auth"
	"github.com/stemline/api/internal/bootstrap"
	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/handler"
	"github.com/stemline/api/internal/logging"
	"github.com/stemline/api/internal/middleware"
	"github.com/stemline/api/internal/service"
	ws "github.com/stemline/api/internal/websocket"
	"github.com/stemline/api/internal/worker"
	"github.com/stemline/api/pkg/response"
)

// @title          Stemline API
// @version        1.0
// @description    Generates tracks and separates them into stems.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Server.Env, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build collaborators")
	}
	defer components.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub(logger)
	go hub.Run()

	// Zitadel JWKS verifier is optional; legacy HMAC tokens remain accepted
	var verifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			logger.Warn().Err(err).Msg("JWKS verifier not initialized")
		} else {
			verifier = jwksVerifier
		}
	}
	authn := auth.NewAuthenticator(verifier, cfg.JWT.Secret)

	trackService := service.NewTrackService(components.Redis, asynqClient)
	trackHandler := handler.NewTrackHandler(components.Pipeline, trackService, components.Tracks, validate, logger)
	exportHandler := handler.NewExportHandler(service.NewExportService(components.Tracks, components.Blobs), validate, logger)
	authHandler := handler.NewAuthHandler(authn)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		logger.Info().Msg("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.Authenticate(authn)
	}
	rateLimiter := middleware.NewRateLimiter(components.Redis, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    55 * 1024 * 1024, // 50MB upload plus form overhead
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"sonauto":   components.Sonauto.IsConfigured(),
				"musicai":   components.MusicAI.IsConfigured(),
				"storage":   components.BucketConfigured,
				"documents": cfg.Documents.Backend,
				"events":    components.Events != nil,
				"auth":      authn.Configured(),
			},
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", apiAuthMiddleware)

	tracks := api.Group("/tracks")
	tracks.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), trackHandler.Generate)
	tracks.Post("/jobs", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), trackHandler.StartJob)
	tracks.Get("/jobs/status/:jobId", trackHandler.JobStatus)
	tracks.Get("/jobs/result/:jobId", trackHandler.JobResult)
	tracks.Get("/:trackId", trackHandler.Get)
	tracks.Post("/:trackId/export", exportHandler.Track)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	trackWorker := worker.NewTrackWorker(components.Pipeline, trackService, hub, logger)
	workerServer := newWorkerServer(cfg, redisOpt, logger)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeTrack, trackWorker.ProcessTask)
	if err := workerServer.Start(mux); err != nil {
		logger.Error().Err(err).Msg("asynq worker not started")
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		workerServer.Shutdown()
	}()

	addr := ":" + cfg.Server.Port
	logger.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, logger zerolog.Logger) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	switch logging.ParseLevel(cfg.Server.LogLevel) {
	case zerolog.DebugLevel:
		asynqLogLevel = asynq.DebugLevel
	case zerolog.WarnLevel:
		asynqLogLevel = asynq.WarnLevel
	case zerolog.ErrorLevel:
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueueTracks: 1,
		},
		Logger:   asynqLogger{logger: logger.With().Str("component", "asynq").Logger()},
		LogLevel: asynqLogLevel,
		// Pipeline runs wait on remote jobs for up to RunTimeout
		ShutdownTimeout: 30 * time.Second,
	})
}

// asynqLogger routes asynq's logging through zerolog
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
