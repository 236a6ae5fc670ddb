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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/event-registration-api/api/swagger"
	"github.com/noah-isme/event-registration-api/internal/handler"
	"github.com/noah-isme/event-registration-api/internal/middleware"
	"github.com/noah-isme/event-registration-api/internal/service"
	"github.com/noah-isme/event-registration-api/pkg/cache"
	"github.com/noah-isme/event-registration-api/pkg/config"
	"github.com/noah-isme/event-registration-api/pkg/database"
	"github.com/noah-isme/event-registration-api/pkg/eventbus"
	"github.com/noah-isme/event-registration-api/pkg/jobs"
	"github.com/noah-isme/event-registration-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/event-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/event-registration-api/pkg/middleware/requestid"
)

// @title Event Registration API
// @version 1.0.0
// @description Admission control, waitlists and session seats for events
// @BasePath /
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	var db *sqlx.DB
	if cfg.StorageDriver == config.StoragePostgres {
		db, err = database.NewPostgres(ctx, cfg.Database, logr)
		if err != nil {
			logr.Fatal("failed to connect database", zap.Error(err))
		}
		defer db.Close()
		checks["database"] = db.PingContext
	}

	var redisClient *redis.Client
	if cfg.CapacityBackend == config.CapacityRedis || cfg.EventCache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	bus := eventbus.New(metricsSvc.Registerer(), logr)
	deps := buildStorage(cfg, db, redisClient, metricsSvc, logr)

	ledger := service.NewCapacityLedger(deps.capacity, metricsSvc, logr)
	waitlist := service.NewWaitlistQueue(deps.waitlist, bus, metricsSvc, logr)

	registrationSvc := service.NewRegistrationService(service.RegistrationDeps{
		Registrations: deps.registrations,
		Seats:         deps.seats,
		Events:        deps.events,
		Ledger:        ledger,
		Waitlist:      waitlist,
		Eligibility:   service.NewCatalogEligibility(deps.events),
		Pricing:       service.NewCatalogPricing(deps.events),
		Users:         service.NewAccountDirectory(deps.users, deps.linker),
		Bus:           bus,
		Logger:        logr,
	}, service.RegistrationConfig{
		MaxQuantity:        cfg.Registration.MaxQuantity,
		CancellationCutoff: cfg.Registration.CancellationCutoff,
	})
	sessionSvc := service.NewSessionRegistrationService(service.SessionRegistrationDeps{
		Registrations: deps.registrations,
		Seats:         deps.seats,
		Events:        deps.events,
		Ledger:        ledger,
		Waitlist:      waitlist,
		Conflicts:     service.NewConflictDetector(),
		Bus:           bus,
		Logger:        logr,
	}, cfg.Registration.BulkSessionLimit)

	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		DeadLetter: func(job jobs.Job, err error) {
			logr.Error("notification dropped", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		},
	})
	dispatcher := service.NewNotificationDispatcher(service.NewLogNotifier(logr), queue, metricsSvc, logr)
	dispatcher.Register(queue)
	queue.Start(ctx)
	dispatcher.Attach(bus)

	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	health := handler.NewHealthHandler(metricsSvc, checks)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", health.Prometheus)
	}
	if cfg.Docs.Enabled || cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Registrations: handler.NewRegistrationHandler(registrationSvc),
		Sessions:      handler.NewSessionHandler(sessionSvc),
		Capacity:      handler.NewCapacityHandler(service.NewCapacityCatalog(ledger, deps.events, logr), deps.metadata),
		Waitlist:      handler.NewWaitlistHandler(waitlist, sessionSvc),
	}, tokens)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver, "capacity", cfg.CapacityBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	dispatcher.Detach()
	queue.Stop()
}
