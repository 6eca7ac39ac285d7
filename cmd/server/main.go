package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/config"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/database"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/handlers"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/middleware"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/internal/services"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/availability"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/bookingapi"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/catalog"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/closures"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/jwt"
	"github.com/seekerVs/kasal-atbp-avenue-management-system-sub001/pkg/scheduler"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Kasal ATBP Avenue Booking Desk Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %s, defaulting to info", cfg.Server.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize repositories
	draftRepository := database.NewDraftSessionRepository(db)

	// Initialize external service clients
	availabilityClient := availability.NewClient(availability.Config{
		BaseURL: cfg.Availability.BaseURL,
		APIKey:  cfg.Availability.APIKey,
		Timeout: cfg.Availability.Timeout,
	})
	bookingClient := bookingapi.NewClient(bookingapi.Config{
		BaseURL: cfg.Booking.BaseURL,
		APIKey:  cfg.Booking.APIKey,
		Timeout: cfg.Booking.Timeout,
	})
	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: cfg.Catalog.Timeout,
	})
	closuresClient := closures.NewClient(closures.Config{
		BaseURL: cfg.Closures.BaseURL,
		Timeout: cfg.Closures.Timeout,
	})

	// Load the closure calendar before taking traffic. A failed initial
	// load is not fatal: the calendar is advisory and the cron job retries
	// hourly, so the desk can still open with an empty calendar.
	closureCalendar := closures.NewCalendar(closuresClient, logger)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := closureCalendar.Refresh(ctx); err != nil {
			logger.Warnf("Initial closure calendar load failed, starting with empty calendar: %v", err)
		}
		cancel()
	}

	// Initialize JWT service (tokens are issued by the main management system)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize services
	verifierService := services.NewVerifierService(
		availabilityClient,
		scheduler.New(),
		services.VerifierConfig{QuietPeriod: cfg.Availability.QuietPeriod},
		logger,
	)
	financialService := services.NewFinancialService(services.StandardDepositPolicy{
		GarmentRate:    decimal.NewFromFloat(cfg.Deposit.GarmentRate),
		GarmentCapEach: decimal.NewFromFloat(cfg.Deposit.GarmentCapEach),
		PackageFeeEach: decimal.NewFromFloat(cfg.Deposit.PackageFeeEach),
	}, logger)
	commitService := services.NewCommitService(bookingClient, logger)
	sessionService := services.NewSessionService(
		draftRepository,
		verifierService,
		financialService,
		commitService,
		closureCalendar,
		catalogClient,
		services.SessionConfig{TTL: cfg.Session.TTL},
		logger,
	)

	// Initialize and start cron service
	cronService := services.NewCronService(sessionService, closureCalendar, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("Cron service started")

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService, logger)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Draft session routes (all protected - booking desk staff only)
		sessions := v1.Group("/draft-sessions")
		sessions.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.PUT("/:id/window", sessionHandler.UpdateWindow)
			sessions.POST("/:id/items", sessionHandler.AddItem)
			sessions.DELETE("/:id/items/:resourceId/:variationKey", sessionHandler.RemoveItem)
			sessions.PUT("/:id/customer", sessionHandler.SetCustomer)
			sessions.PUT("/:id/payment", sessionHandler.StagePayment)
			sessions.POST("/:id/navigate", sessionHandler.Navigate)
			sessions.POST("/:id/submit", sessionHandler.Submit)
			sessions.DELETE("/:id", sessionHandler.Cancel)
		}

		// Admin cron management routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger))
		admin.Use(middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.POST("/cron/sweep-sessions", func(c *gin.Context) {
				removed := cronService.RunSweepNow()
				c.JSON(200, gin.H{
					"message":          "Session sweep triggered",
					"sessions_removed": removed,
				})
			})

			admin.GET("/cron/status", func(c *gin.Context) {
				status := cronService.GetJobStatus()
				c.JSON(200, status)
			})
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		// Add staff context if available
		if staff, ok := middleware.GetStaffContext(c); ok {
			fields["staff_id"] = staff.StaffID
			fields["staff_role"] = staff.Role
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
		} else {
			status := c.Writer.Status()
			if status >= 500 {
				entry.Error("Request completed with server error")
			} else if status >= 400 {
				entry.Warn("Request completed with client error")
			} else {
				entry.Info("Request completed successfully")
			}
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "healthy"
		if err := db.Ping(); err != nil {
			dbStatus = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbStatus,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  dbStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
