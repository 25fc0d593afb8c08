package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/vre-charite/service-approval/internal/config"
	"github.com/vre-charite/service-approval/internal/database"
	"github.com/vre-charite/service-approval/internal/metadata"
	"github.com/vre-charite/service-approval/internal/middleware"
	"github.com/vre-charite/service-approval/internal/notifications"
	"github.com/vre-charite/service-approval/internal/pipeline"
	"github.com/vre-charite/service-approval/internal/repository"
	"github.com/vre-charite/service-approval/internal/service"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config            *config.Config
	db                *gorm.DB
	redis             *redis.Client
	requestRepo       repository.RequestRepository
	entityRepo        repository.EntityRepository
	requestService    *service.RequestService
	reviewService     *service.ReviewService
	completionService *service.CompletionService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})

	return NewServerWithDeps(cfg, db, redisClient), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	requestRepo := repository.NewRequestRepository(db)
	entityRepo := repository.NewEntityRepository(db)

	timeout := cfg.UpstreamTimeout()
	source := metadata.NewClient(cfg.MetadataServiceURL, timeout)
	tree := metadata.NewTreeBuilder(source)
	dispatcher := pipeline.NewClient(cfg.DataOpsServiceURL, timeout)
	notifier := notifications.NewEmailNotifier(
		cfg.AuthServiceURL, cfg.EmailServiceURL, cfg.SupportEmail,
		source, timeout, middleware.Logger,
	)

	server := &Server{
		config:      cfg,
		db:          db,
		redis:       redisClient,
		requestRepo: requestRepo,
		entityRepo:  entityRepo,
	}
	server.requestService = service.NewRequestService(
		requestRepo, entityRepo, tree, source, notifier, middleware.Logger)
	server.reviewService = service.NewReviewService(
		requestRepo, entityRepo, dispatcher, middleware.Logger)
	server.completionService = service.NewCompletionService(
		requestRepo, entityRepo, source, notifier, middleware.Logger)

	return server
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID
	app.Use(middleware.ContextMiddleware())

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit
	// (e.g. limiter) so browser clients still receive CORS headers on error
	// responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Refresh-Token",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	v1 := app.Group("/v1")
	copyRequests := v1.Group("/request/copy/:project_geid")
	copyRequests.Post("/", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_copy_request"), s.CreateRequest)
	copyRequests.Get("/", s.ListRequests)
	copyRequests.Get("/files", s.ListRequestFiles)
	copyRequests.Put("/files", s.ReviewAllFiles)
	copyRequests.Patch("/files", s.ReviewFiles)
	copyRequests.Put("/", s.CompleteRequest)
	copyRequests.Get("/pending-files", s.GetPending)
	copyRequests.Delete("/delete/:request_id", s.DeleteRequest)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis only backs rate limiting; its absence degrades the service
		// but does not take it down.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Shutdown releases server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return err
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		return sqlDB.Close()
	}
	return nil
}
