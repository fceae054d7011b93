package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/tutorhive/tutorhive-api/api/swagger"
	"github.com/tutorhive/tutorhive-api/internal/handler"
	"github.com/tutorhive/tutorhive-api/internal/middleware"
	"github.com/tutorhive/tutorhive-api/internal/models"
	"github.com/tutorhive/tutorhive-api/internal/repository"
	"github.com/tutorhive/tutorhive-api/internal/service"
	"github.com/tutorhive/tutorhive-api/pkg/cache"
	"github.com/tutorhive/tutorhive-api/pkg/config"
	"github.com/tutorhive/tutorhive-api/pkg/database"
	"github.com/tutorhive/tutorhive-api/pkg/logger"
	corsmiddleware "github.com/tutorhive/tutorhive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorhive/tutorhive-api/pkg/middleware/requestid"
)

// @title TutorHive Scheduling API
// @version 1.0.0
// @description Lesson scheduling and booking core for the TutorHive marketplace
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Booking.SlotCacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, slot caching disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Booking.SlotCacheTTL, logr, cacheRepo != nil)
	authSvc := service.NewAuthService(cfg.JWT)
	notificationSvc := service.NewNotificationService(nil, cfg.Notifications, logr)

	availabilityRepo := repository.NewAvailabilityRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)

	availabilitySvc := service.NewAvailabilityService(availabilityRepo, cacheSvc, validate, logr)
	slotSvc := service.NewSlotService(availabilityRepo, lessonRepo, cacheSvc, metricsSvc, cfg.Booking, logr)
	lessonSvc := service.NewLessonService(lessonRepo, relationshipRepo, cacheSvc, metricsSvc, notificationSvc, cfg.Booking.JoinLeadTime, validate, logr)
	bookingSvc := service.NewBookingService(requestRepo, slotSvc, lessonSvc, relationshipRepo, notificationSvc, cfg.Booking.ProposalExpiry, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()
	go bookingSvc.RunProposalSweeper(ctx, time.Minute)

	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	slotHandler := handler.NewSlotHandler(slotSvc)
	requestHandler := handler.NewRequestHandler(bookingSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		availability := api.Group("/availability")
		availability.Use(middleware.RequireRoles(models.RoleTutor, models.RoleAdmin))
		{
			availability.GET("/rules", availabilityHandler.ListRules)
			availability.POST("/rules", availabilityHandler.CreateRule)
			availability.PUT("/rules/:id", availabilityHandler.UpdateRule)
			availability.DELETE("/rules/:id", availabilityHandler.DeleteRule)
			availability.GET("/exceptions", availabilityHandler.ListExceptions)
			availability.POST("/exceptions", availabilityHandler.CreateException)
			availability.DELETE("/exceptions/:id", availabilityHandler.DeleteException)
		}

		api.GET("/tutors/:tutorID/slots", slotHandler.List)

		requests := api.Group("/requests")
		{
			requests.GET("", requestHandler.List)
			requests.GET("/:id", requestHandler.Get)
			requests.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.Create)
			requests.POST("/:id/confirm", middleware.RequireRoles(models.RoleTutor), requestHandler.Confirm)
			requests.POST("/:id/reject", middleware.RequireRoles(models.RoleTutor), requestHandler.Reject)
			requests.POST("/:id/propose", middleware.RequireRoles(models.RoleTutor), requestHandler.Propose)
			requests.POST("/:id/accept", middleware.RequireRoles(models.RoleStudent), requestHandler.Accept)
			requests.POST("/:id/cancel", middleware.RequireRoles(models.RoleStudent), requestHandler.Cancel)
		}

		lessons := api.Group("/lessons")
		{
			lessons.GET("", lessonHandler.List)
			lessons.GET("/export", middleware.RequireRoles(models.RoleTutor), lessonHandler.ExportSchedule)
			lessons.GET("/:id", lessonHandler.Get)
			lessons.GET("/:id/can-join", lessonHandler.CanJoin)
			lessons.POST("", middleware.RequireRoles(models.RoleTutor), lessonHandler.Create)
			lessons.POST("/:id/cancel", lessonHandler.Cancel)
			lessons.POST("/:id/complete", middleware.RequireRoles(models.RoleTutor), lessonHandler.Complete)
		}

		api.GET("/relationships", middleware.RequireRoles(models.RoleTutor, models.RoleAdmin), lessonHandler.ListStudents)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
