package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/geoattend-api/internal/handler"
	"github.com/noah-isme/geoattend-api/internal/middleware"
	"github.com/noah-isme/geoattend-api/internal/repository"
	"github.com/noah-isme/geoattend-api/internal/service"
	"github.com/noah-isme/geoattend-api/pkg/cache"
	"github.com/noah-isme/geoattend-api/pkg/config"
	"github.com/noah-isme/geoattend-api/pkg/database"
	"github.com/noah-isme/geoattend-api/pkg/jobs"
	"github.com/noah-isme/geoattend-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/geoattend-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/geoattend-api/pkg/middleware/requestid"
)

// @title GeoAttend API
// @version 1.0.0
// @description Location-verified class attendance for teachers and students
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logr.Info("database schema migrated")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	location, err := cfg.Attendance.Location()
	if err != nil {
		return err
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	audit := service.NewAuditDispatcher(userRepo, jobs.Config{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		Logger:     logr.Named("audit"),
	})
	// Workers outlive the request context so pending entries can drain on shutdown.
	audit.Start(context.Background())

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Attendance.ClassCodeCacheTTL, logr.Named("cache"), cacheRepo.Enabled())
	authSvc := service.NewAuthService(userRepo, validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	classSvc := service.NewClassService(classRepo, enrollmentRepo, audit, cacheSvc, cfg.Attendance.ClassCodeCacheTTL, validate, logr.Named("class"))
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classSvc, audit, validate, logr.Named("enrollment"))
	attendanceSvc := service.NewAttendanceService(attendanceRepo, classRepo, enrollmentRepo, cacheSvc, metrics, audit, service.AttendanceConfig{
		Location:              location,
		CheckOutRequiresFence: cfg.Attendance.CheckOutRequiresFence,
		ReportCacheTTL:        cfg.Attendance.ReportCacheTTL,
	}, validate, logr.Named("attendance"))

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst).Middleware())

	registerRoutes(r, cfg, routeHandlers{
		auth:       handler.NewAuthHandler(authSvc),
		classes:    handler.NewClassHandler(classSvc),
		enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		metrics:    handler.NewMetricsHandler(metrics),
		tokens:     authSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := audit.Stop(shutdownCtx); err != nil {
		logr.Warn("audit queue did not drain", zap.Error(err))
	}
	return nil
}
