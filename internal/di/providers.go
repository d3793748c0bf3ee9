package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sensei-edu/sensei-api/internal/app"
	"github.com/sensei-edu/sensei-api/internal/config"
	"github.com/sensei-edu/sensei-api/internal/health"
	"github.com/sensei-edu/sensei-api/internal/http/handler"
	"github.com/sensei-edu/sensei-api/internal/http/middleware"
	"github.com/sensei-edu/sensei-api/internal/http/router"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/security"
	"github.com/sensei-edu/sensei-api/internal/service"
)

// Logging carries the slog logger and, when OTel logs are on, its provider.
type Logging struct {
	Logger   *slog.Logger
	Provider *sdklog.LoggerProvider
}

// CLI is the dependency set the maintenance commands run against.
type CLI struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Sessions *service.TeacherSessionService
	Sweeper  *service.ExpirationSweeper
	JWT      *security.JWTManager
}

var coreSet = wire.NewSet(
	config.Load,
	provideLogging,
	provideLogger,
	provideDatabase,
	provideSessionRepository,
	repository.NewTaxonomyRepository,
	repository.NewAuditLogRepository,
	provideRedis,
	provideDisplayCache,
	provideDisplayResolver,
	service.NewAuditTrail,
	service.NewTeacherSessionService,
	provideSweeper,
	provideJWTManager,
)

var httpSet = wire.NewSet(
	provideObservability,
	service.NewTaxonomyService,
	provideRenderer,
	provideExporter,
	provideTeacherSessionHandler,
	provideExportHandler,
	provideTaxonomyHandler,
	provideGlobalRateLimiter,
	provideReadiness,
	provideRouter,
	provideHTTPServer,
	provideApp,
)

func provideLogging(ctx context.Context, cfg *config.Config) (*Logging, error) {
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &Logging{Logger: logger, Provider: lp}, nil
}

func provideLogger(l *Logging) *slog.Logger { return l.Logger }

func provideObservability(ctx context.Context, cfg *config.Config, l *Logging) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, l.Logger, l.Provider)
}

func provideDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := repository.OpenDatabase(repository.DatabaseOptions{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
		Debug:           cfg.DatabaseDebug,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("close database", "error", err)
			}
		}
	}
	return db, cleanup, nil
}

func provideSessionRepository(cfg *config.Config, db *gorm.DB) repository.TeacherSessionRepository {
	return repository.NewTeacherSessionRepository(db, cfg.SessionDocumentLimitBytes)
}

// provideRedis returns a nil client when REDIS_ADDR is unset.
func provideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	return client, cleanup, nil
}

func provideDisplayCache(client redis.UniversalClient) service.DisplayNameCacheStore {
	if client == nil {
		return service.NewInMemoryDisplayNameCacheStore()
	}
	return service.NewRedisDisplayNameCacheStore(client, "sensei:display")
}

func provideDisplayResolver(cfg *config.Config, taxonomy repository.TaxonomyRepository, cache service.DisplayNameCacheStore, logger *slog.Logger) *service.DisplayResolver {
	return service.NewDisplayResolver(taxonomy, cache, cfg.DisplayCacheTTL, logger)
}

func provideSweeper(cfg *config.Config, sessions repository.TeacherSessionRepository, logger *slog.Logger) *service.ExpirationSweeper {
	return service.NewExpirationSweeper(sessions, cfg.SessionIdleTimeout, cfg.SessionSweepInterval, logger)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
}

func provideRenderer(cfg *config.Config, logger *slog.Logger) report.PDFRenderer {
	return report.NewChromeRenderer(report.ChromeRendererOptions{
		ExecutablePath: cfg.ChromeExecutablePath,
		Timeout:        cfg.ExportRenderTimeout,
		Logger:         logger,
	})
}

func provideExporter(cfg *config.Config, sessions *service.TeacherSessionService, renderer report.PDFRenderer, logger *slog.Logger) *report.Exporter {
	return report.NewExporter(sessions, renderer, cfg.ExportMaxSessions, logger)
}

func provideTeacherSessionHandler(cfg *config.Config, sessions *service.TeacherSessionService, logger *slog.Logger) *handler.TeacherSessionHandler {
	return handler.NewTeacherSessionHandler(sessions, logger, cfg.IsDevelopment())
}

func provideExportHandler(cfg *config.Config, exporter *report.Exporter, logger *slog.Logger) *handler.ExportHandler {
	return handler.NewExportHandler(exporter, logger, cfg.IsDevelopment())
}

func provideTaxonomyHandler(cfg *config.Config, taxonomy *service.TaxonomyService, logger *slog.Logger) *handler.TaxonomyHandler {
	return handler.NewTaxonomyHandler(taxonomy, logger, cfg.IsDevelopment())
}

// provideGlobalRateLimiter shares the budget across replicas when Redis is
// configured; otherwise the router falls back to its in-process limiter.
func provideGlobalRateLimiter(cfg *config.Config, client redis.UniversalClient, jwtMgr *security.JWTManager) router.GlobalRateLimiterFunc {
	if client == nil {
		return nil
	}
	limiter := middleware.NewDistributedRateLimiterWithKey(
		middleware.NewRedisFixedWindowLimiter(client, "sensei:rl"),
		cfg.RateLimitPerMinute,
		time.Minute,
		middleware.FailOpen,
		"api",
		middleware.SubjectOrIPKeyFunc(jwtMgr),
	)
	return limiter.Middleware()
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDatabaseChecker(db)}
	if client != nil {
		checkers = append(checkers, health.NewRedisChecker(client))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	sessions *handler.TeacherSessionHandler,
	exports *handler.ExportHandler,
	taxonomy *handler.TaxonomyHandler,
	jwtMgr *security.JWTManager,
	limiter router.GlobalRateLimiterFunc,
	readiness *health.ProbeRunner,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		TeacherSessionHandler: sessions,
		ExportHandler:         exports,
		TaxonomyHandler:       taxonomy,
		JWTManager:            jwtMgr,
		CORSOrigins:           cfg.CORSAllowedOrigins,
		APIRateLimitRPM:       cfg.RateLimitPerMinute,
		GlobalRateLimiter:     limiter,
		BodyLimitBytes:        cfg.HTTPBodyLimitBytes,
		Readiness:             readiness,
		EnableOTelHTTP:        cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
		Logger:                logger,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	sweeper *service.ExpirationSweeper,
) *app.App {
	var background []app.BackgroundTask
	if cfg.SessionSweepEnabled {
		background = append(background, sweeper)
	}
	return app.New(cfg, logger, server, runtime, readiness, background...)
}

func provideCLI(
	cfg *config.Config,
	logger *slog.Logger,
	db *gorm.DB,
	sessions *service.TeacherSessionService,
	sweeper *service.ExpirationSweeper,
	jwtMgr *security.JWTManager,
) *CLI {
	return &CLI{Config: cfg, Logger: logger, DB: db, Sessions: sessions, Sweeper: sweeper, JWT: jwtMgr}
}
