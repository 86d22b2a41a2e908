package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fitbridge/pt-booking-api/api/swagger"
	"github.com/fitbridge/pt-booking-api/internal/handler"
	"github.com/fitbridge/pt-booking-api/internal/middleware"
	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/internal/repository"
	"github.com/fitbridge/pt-booking-api/internal/service"
	"github.com/fitbridge/pt-booking-api/pkg/cache"
	"github.com/fitbridge/pt-booking-api/pkg/config"
	"github.com/fitbridge/pt-booking-api/pkg/database"
	"github.com/fitbridge/pt-booking-api/pkg/jobs"
	"github.com/fitbridge/pt-booking-api/pkg/logger"
	corsmiddleware "github.com/fitbridge/pt-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fitbridge/pt-booking-api/pkg/middleware/requestid"
	"github.com/fitbridge/pt-booking-api/pkg/storage"
)

// @title FitBridge PT Booking API
// @version 1.0.0
// @description Personal training booking, scheduling and attendance platform
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	contractRepo := repository.NewContractRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)
	}

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "pt-booking-api",
		Audience:           []string{"pt-booking"},
	})

	plannerSvc := service.NewSchedulePlannerService(recordRepo, contractRepo, productRepo, userRepo, cfg.Booking, logr)
	attendanceSvc := service.NewAttendanceService(recordRepo, logr)
	auditSvc := service.NewAuditService(recordRepo, auditRepo, contractRepo, productRepo, logr, service.WithAuditMetrics(metricsSvc))
	productSvc := service.NewProductService(productRepo, validate, logr)

	bookingOpts := []service.BookingOption{service.WithBookingMetrics(metricsSvc)}
	if cacheSvc != nil {
		bookingOpts = append(bookingOpts, service.WithBookingCache(cacheSvc))
	}
	bookingSvc := service.NewBookingService(contractRepo, productRepo, userRepo, plannerSvc, logr, bookingOpts...)

	changeRequestSvc := service.NewChangeRequestService(changeRequestRepo, recordRepo, plannerSvc, cfg.ChangeRequests.TTL, logr)
	dashboardSvc := service.NewDashboardService(contractRepo, recordRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(reportRepo, contractRepo, recordRepo, userRepo, store, signer, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		}, logr)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	productHandler := handler.NewProductHandler(productSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc, attendanceSvc)
	recordHandler := handler.NewRecordHandler(attendanceSvc, auditSvc)
	changeRequestHandler := handler.NewChangeRequestHandler(changeRequestSvc)
	trainerHandler := handler.NewTrainerHandler(attendanceSvc, plannerSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	products := protected.Group("/products")
	{
		products.GET("", productHandler.List)
		products.GET("/:id", productHandler.Get)
		products.POST("", middleware.RequireRoles(models.RoleAdmin), productHandler.Create)
	}

	bookings := protected.Group("/bookings")
	{
		bookings.POST("", middleware.RequireRoles(models.RoleMember), bookingHandler.Apply)
		bookings.GET("", bookingHandler.List)
		bookings.GET("/:id", bookingHandler.Get)
		bookings.POST("/:id/respond", middleware.RequireRoles(models.RoleTrainer), bookingHandler.Respond)
	}

	records := protected.Group("/records")
	{
		records.GET("/:id", recordHandler.Get)
		records.GET("/:id/exercises", recordHandler.ListExercises)
		// POST and PUT share a handler; the service derives RECORD vs EDIT
		// from whether items already exist.
		records.POST("/:id/exercises", middleware.RequireRoles(models.RoleTrainer), recordHandler.RecordExercises)
		records.PUT("/:id/exercises", middleware.RequireRoles(models.RoleTrainer), recordHandler.RecordExercises)
		records.GET("/:id/change-requests", changeRequestHandler.ListForRecord)
		records.GET("/:id/audit", middleware.RequireRoles(models.RoleAdmin), recordHandler.Trail)
	}

	changeRequests := protected.Group("/change-requests")
	{
		changeRequests.POST("", changeRequestHandler.Create)
		changeRequests.GET("/:id", changeRequestHandler.Get)
		changeRequests.POST("/:id/respond", changeRequestHandler.Respond)
		changeRequests.POST("/:id/cancel", changeRequestHandler.Cancel)
	}

	trainers := protected.Group("/trainers")
	{
		trainers.GET("/:id/calendar", middleware.RequireRoles(models.RoleTrainer, models.RoleAdmin), trainerHandler.Calendar)
		trainers.POST("/:id/availability", trainerHandler.CheckAvailability)
	}

	dashboard := protected.Group("/dashboard")
	{
		dashboard.GET("", dashboardHandler.Get)
		dashboard.GET("/member", middleware.RequireRoles(models.RoleMember), dashboardHandler.Member)
		dashboard.GET("/trainer", middleware.RequireRoles(models.RoleTrainer), dashboardHandler.Trainer)
	}

	admin := protected.Group("", middleware.RequireRoles(models.RoleAdmin), middleware.AccessAudit(auditRepo))
	{
		admin.GET("/audit/anomalies", auditHandler.Anomalies)
		admin.GET("/admin/metrics", metricsHandler.Snapshot)
	}

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		reports := protected.Group("/reports")
		reports.POST("/attendance", reportHandler.Create)
		reports.GET("/:id", reportHandler.Get)
		// Token-authenticated: the signed URL is the credential.
		api.GET("/reports/download", reportHandler.Download)

		workerCtx, cancelWorkers := context.WithCancel(context.Background())
		defer cancelWorkers()
		reportSvc.StartWorkers(workerCtx)
		defer reportSvc.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
