package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-timetable-api/api/swagger"
	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/migrations"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

// @title Campus Timetable API
// @version 1.0.0
// @description Timetable scheduling with conflict detection and resource availability.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(ctx, db, migrations.FS, logr); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Timetable.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// the cache is optional; serve straight from Postgres
			logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, redisClient != nil)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
	}, metricsSvc, logr)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	timetableRepo := repository.NewTimetableRepository(db)
	timetableSvc := service.NewTimetableService(
		timetableRepo,
		repository.NewReservationRepository(db),
		db,
		service.NewConflictDetector(),
		cacheSvc,
		auditSvc,
		metricsSvc,
		validator.New(),
		logr,
		service.TimetableServiceConfig{CacheTTL: cfg.Timetable.CacheTTL},
	)
	availabilitySvc := service.NewAvailabilityService(timetableRepo, metricsSvc, logr)
	exportSvc := service.NewExportService(timetableSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	tokenSvc := service.NewTokenService(service.TokenServiceConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, logr)

	router := newRouter(cfg, logr, db, cacheRepo, metricsSvc, routeHandlers{
		timetables:   handler.NewTimetableHandler(timetableSvc, exportSvc, auditSvc),
		availability: handler.NewAvailabilityHandler(availabilitySvc),
		tokens:       tokenSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeHandlers struct {
	timetables   *handler.TimetableHandler
	availability *handler.AvailabilityHandler
	tokens       *service.TokenService
}

func newRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, cacheRepo *repository.CacheRepository, metricsSvc *service.MetricsService, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	ops := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": db,
		"cache":    handler.PingerFunc(cacheRepo.Ping),
	})
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	editors := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleScheduler)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(h.tokens), middleware.AuditOrigin(), middleware.WithResponseMeta())

	timetables := api.Group("/timetables")
	timetables.GET("", h.timetables.List)
	timetables.POST("", editors, h.timetables.Create)
	timetables.GET("/:id", h.timetables.Get)
	timetables.PUT("/:id", editors, h.timetables.Update)
	timetables.DELETE("/:id", editors, h.timetables.Delete)
	timetables.POST("/:id/slots", editors, h.timetables.AddSlot)
	timetables.DELETE("/:id/slots", editors, h.timetables.RemoveSlot)
	timetables.GET("/:id/conflicts", h.timetables.Conflicts)
	timetables.POST("/:id/conflicts/:conflictId/resolve", editors, h.timetables.ResolveConflict)
	timetables.POST("/:id/publish", editors, h.timetables.Publish)
	timetables.POST("/:id/archive", editors, h.timetables.Archive)
	timetables.GET("/:id/export", h.timetables.Export)
	timetables.GET("/:id/history", editors, h.timetables.History)

	availability := api.Group("/availability")
	availability.GET("/venues/:resourceId", h.availability.Venue)
	availability.GET("/faculty/:resourceId", h.availability.Faculty)
	availability.GET("/trainers/:resourceId", h.availability.Trainer)

	return r
}
