// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	_ "canopy/docs" // swagger docs
	"canopy/internal/blobstore"
	"canopy/internal/bootstrap"
	"canopy/internal/config"
	"canopy/internal/database"
	"canopy/internal/featureflags"
	"canopy/internal/mapview"
	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/notifications"
	"canopy/internal/repository"
	"canopy/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	sessions       *middleware.SessionManager
	featureFlags   *featureflags.Manager
	pages          *template.Template
	trackInterval  time.Duration

	hub        *notifications.Hub
	notifier   *notifications.Notifier
	stopWiring context.CancelFunc

	userRepo repository.UserRepository
	treeRepo repository.TreeRepository
	mapRepo  repository.MapRepository

	userService    *service.UserService
	treeService    *service.TreeService
	planterService *service.PlanterService
	mapService     *service.MapService
	imageService   *service.ImageService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.Store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding. redisClient and store may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store blobstore.Store) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("canopy-api"),
		sessions:       middleware.NewSessionManager(cfg.SessionSecret, ttl, middleware.NewRedisRevocations(redisClient)),
		featureFlags:   flags,
		pages:          pages,
		trackInterval:  mapview.DefaultTrackInterval,
		userRepo:       repository.NewUserRepository(db),
		treeRepo:       repository.NewTreeRepository(db),
		mapRepo:        repository.NewMapRepository(db),
	}

	s.imageService = service.NewImageService(store, flags, cfg)
	s.userService = service.NewUserService(s.userRepo)
	s.treeService = service.NewTreeService(s.treeRepo, s.imageService)
	s.planterService = service.NewPlanterService(s.userRepo)
	s.mapService = service.NewMapService(s.mapRepo, s.userRepo)

	s.hub = notifications.NewHub()
	s.notifier = notifications.NewNotifier(redisClient, s.hub)
	s.treeService.SetNotifier(s.notifier)
	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
			// Feeds still refresh on their own interval.
			middleware.Logger.Warn("planters event wiring disabled", slog.String("error", err.Error()))
		}
		s.stopWiring = cancel
	}

	return s, nil
}

// App builds the Fiber application with middleware and routes. It is what
// Start listens with; tests drive it through app.Test.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "Canopy API",
		BodyLimit: (s.maxUploadMB() + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			status := models.StatusFor(err)
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
				if status < fiber.StatusInternalServerError {
					code := models.CodeValidation
					if status == fiber.StatusNotFound {
						code = models.CodeNotFound
					}
					return c.Status(status).JSON(models.ErrorResponse{Error: fe.Message, Code: code})
				}
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, status, err)
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) maxUploadMB() int {
	if s.config.ImageMaxUploadMB > 0 {
		return s.config.ImageMaxUploadMB
	}
	return service.DefaultImageMaxUploadSizeMB
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// The map page loads Mapbox GL from its CDN.
	app.Use(helmet.New(helmet.Config{
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' https://api.mapbox.com; " +
			"style-src 'self' 'unsafe-inline' https://api.mapbox.com; " +
			"img-src 'self' data: blob: https:; " +
			"connect-src 'self' ws: wss: https://*.mapbox.com https://events.mapbox.com; " +
			"worker-src blob:",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://localhost:8080"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
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
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if s.config.ResolvedBlobProvider() == "local" && s.config.LocalBlobDir != "" {
		prefix := s.config.LocalBlobBaseURL
		if prefix == "" || strings.Contains(prefix, "://") {
			prefix = "/media"
		}
		app.Static(prefix, s.config.LocalBlobDir)
	}

	// Pages
	app.Get("/", s.LandingPage)
	pages := app.Group("/map", middleware.MapGate(s.sessions, "/"))
	pages.Get("/:name", s.MapPage)

	api := app.Group("/api")
	api.Get("/", s.ReadinessCheck)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Canopy Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	requireSession := middleware.SessionRequired(s.sessions)

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.Logout)
	auth.Get("/me", requireSession, s.Me)

	// Plants: reads are public, writes need a session.
	plants := api.Group("/plants")
	plants.Get("/", s.GetPlants)
	plants.Get("/:id", s.GetPlant)
	plants.Post("/", requireSession, middleware.RateLimit(
		s.redis, 30, time.Minute, "create_plant"), s.CreatePlant)
	plants.Patch("/:id", requireSession, s.UpdatePlant)
	plants.Delete("/:id", requireSession, s.DeletePlant)

	// Role dashboards
	api.Get("/custodian/trees", requireSession, middleware.RoleRequired(models.RoleCustodian), s.GetCustodianTrees)
	api.Get("/supplier/trees", requireSession, middleware.RoleRequired(models.RoleSupplier), s.GetSupplierTrees)

	// Planter aggregate
	api.Get("/planters", s.GetPlanters)

	// Maps
	maps := api.Group("/maps", requireSession)
	maps.Post("/", s.CreateMap)
	maps.Get("/", s.GetMaps)
	maps.Get("/:name/markers", s.GetMapMarkers)
	maps.Post("/:name/invitations", s.InviteToMap)
	maps.Get("/:name", s.GetMap)

	// Tracking feed
	ws := api.Group("/ws", requireSession)
	ws.Get("/planters", s.featureFlags.Require(featureflags.TrackingFeed), s.TrackingFeedHandler())

	// Admin
	admin := api.Group("/admin", requireSession, middleware.RoleRequired(models.RoleAdmin))
	admin.Get("/feature-flags", s.GetFeatureFlags)
	admin.Get("/users", s.GetUsers)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it the service still answers, only uncached.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"service": "canopy",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database":   dbStatus,
			"redis":      redisStatus,
			"blob_store": s.blobStatus(),
		},
		"time": time.Now(),
	})
}

func (s *Server) blobStatus() string {
	if s.imageService == nil || !s.imageService.Configured() {
		return "disabled"
	}
	return s.config.ResolvedBlobProvider()
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.stopWiring != nil {
		s.stopWiring()
	}
	_ = s.hub.Shutdown(ctx)

	if err := database.Close(s.db); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
