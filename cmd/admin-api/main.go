// Package main is the entry point for the Admin API, the backend of the
// Omnichat admin console.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omnichat/omnichat/internal/admin"
	"github.com/omnichat/omnichat/internal/audit"
	"github.com/omnichat/omnichat/internal/auth"
	"github.com/omnichat/omnichat/internal/authz"
	"github.com/omnichat/omnichat/internal/common/config"
	"github.com/omnichat/omnichat/internal/common/database"
	"github.com/omnichat/omnichat/internal/common/logger"
	"github.com/omnichat/omnichat/internal/common/middleware"
	"github.com/omnichat/omnichat/internal/common/tracing"
	"github.com/omnichat/omnichat/internal/workspace"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	// Initialize logger
	log := logger.New()
	defer log.Sync()

	log.Info("Starting Admin API",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	// Load configuration
	cfg, err := config.Load("admin-api")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg.LogSecurityWarnings(log)

	// Initialize tracing
	if cfg.TracingEnabled {
		shutdownTracing, err := tracing.Init(context.Background(),
			tracing.ConfigFromEnv("admin-api", cfg.Environment), log)
		if err != nil {
			log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					log.Error("Failed to shut down tracing", zap.Error(err))
				}
			}()
		}
	}

	// Initialize database connection
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis connection
	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(log))
	router.Use(middleware.CORS(cfg.GetCORSOrigins()))
	router.Use(middleware.DistributedRateLimit(redis.Client, middleware.RateLimitConfig{
		Requests:     300,
		Window:       time.Minute,
		AuthRequests: 10,
		AuthWindow:   time.Minute,
		PerUser:      true,
	}, log))
	router.Use(middleware.PrometheusMetrics("admin-api"))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsHandler())

	// Authorization catalog, engine and guard
	catalog := authz.NewCatalog()
	engine := authz.NewEngine(catalog)
	guard := authz.NewGuard(engine, log)

	// Services
	authService := auth.NewService(db, redis, cfg, log)
	auditService := audit.NewService(db, cfg, log)
	guard.SetDenyHook(audit.GuardDenyHook(auditService, log))

	workspaceService := workspace.NewService(db, catalog, authService.Principals(), auditService, cfg, log)
	adminService := admin.NewService(db, authService, auditService, cfg, log)

	authn := auth.NewMiddleware(authService.Tokens(), authService.Principals(), log)

	// Routes
	publicAuth := router.Group("/api/v1/auth")
	privateAuth := router.Group("/api/v1/auth")
	privateAuth.Use(authn.Authenticate())
	auth.RegisterRoutes(publicAuth, privateAuth, authService)

	api := router.Group("/api/v1")
	api.Use(authn.Authenticate())
	workspace.RegisterRoutes(api, guard, workspaceService)
	admin.RegisterRoutes(api.Group("/admin"), guard, adminService, auditService)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "admin-api",
			"version": Version,
		})
	})

	// Readiness check endpoint
	router.GET("/ready", func(c *gin.Context) {
		status := gin.H{"status": "ready", "postgres": "ok", "redis": "ok"}
		if err := db.Ping(); err != nil {
			status["status"] = "not ready"
			status["postgres"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		if err := redis.Ping(); err != nil {
			status["redis"] = "unhealthy"
		}
		c.JSON(http.StatusOK, status)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
