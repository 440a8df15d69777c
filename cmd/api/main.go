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

	"github.com/campuslink/portal-api/internal/handler"
	internalmiddleware "github.com/campuslink/portal-api/internal/middleware"
	"github.com/campuslink/portal-api/internal/repository"
	"github.com/campuslink/portal-api/internal/service"
	"github.com/campuslink/portal-api/pkg/cache"
	"github.com/campuslink/portal-api/pkg/config"
	"github.com/campuslink/portal-api/pkg/database"
	"github.com/campuslink/portal-api/pkg/embedding"
	"github.com/campuslink/portal-api/pkg/logger"
	corsmiddleware "github.com/campuslink/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuslink/portal-api/pkg/middleware/requestid"
	"github.com/campuslink/portal-api/pkg/storage"
)

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

	mongoClient, db, err := database.NewMongo(cfg.Mongo)
	if err != nil {
		logr.Sugar().Fatalw("mongo connection failed", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(shutdownCtx)
	}()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			cfg.Cache.Enabled = false
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	var embedder embedding.Embedder
	if cfg.Embedding.Enabled {
		client, err := embedding.NewClient(cfg.Embedding)
		if err != nil {
			logr.Sugar().Warnw("embedding provider misconfigured, semantic features degraded", "error", err)
		} else {
			embedder = client
		}
	}
	embeddingSvc := service.NewEmbeddingService(embedder, metrics, logr)

	var blobs storage.BlobStore
	if cfg.Storage.Enabled {
		store, err := storage.NewMinioStore(ctx, cfg.Storage)
		if err != nil {
			logr.Sugar().Warnw("blob store unavailable, image uploads disabled", "error", err)
		} else {
			blobs = store
		}
	}

	eventRepo := repository.NewEventRepository(db.Collection(cfg.Mongo.EventCollection))

	scheduleSvc := service.NewScheduleService(
		eventRepo, embeddingSvc, blobs, cacheSvc, metrics,
		cfg.Upload, validator.New(), logr,
	)
	searchSvc := service.NewSearchService(eventRepo, embeddingSvc, cfg.Search, metrics, logr)

	if cfg.Embedding.BackfillEnabled {
		backfill := service.NewBackfillService(eventRepo, embeddingSvc, service.BackfillConfig{
			Interval:  cfg.Embedding.BackfillInterval,
			BatchSize: cfg.Embedding.BackfillBatch,
			Workers:   cfg.Embedding.BackfillWorkers,
		}, logr)
		backfill.Start(ctx)
		defer backfill.Stop()
	}

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	searchHandler := handler.NewSearchHandler(searchSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/schedules", scheduleHandler.List)
		api.GET("/schedules/calendar", scheduleHandler.Calendar)
		api.GET("/schedules/feed", scheduleHandler.Feed)
		api.GET("/schedules/search", searchHandler.Search)
		api.GET("/schedules/export", scheduleHandler.Export)
		api.GET("/schedules/:id", scheduleHandler.Get)

		protected := api.Group("", internalmiddleware.JWT(cfg.JWT.Secret))
		{
			protected.POST("/schedules", scheduleHandler.Create)
			protected.POST("/schedules/upload", scheduleHandler.Upload)
			protected.PUT("/schedules/:id", scheduleHandler.Update)
			protected.DELETE("/schedules/:id", scheduleHandler.Delete)

			admin := protected.Group("", internalmiddleware.RequireRole("admin"))
			admin.DELETE("/schedules", scheduleHandler.DeleteAll)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
