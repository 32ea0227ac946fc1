package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sheets-etl/api/swagger"
	"github.com/noah-isme/sheets-etl/internal/handler"
	"github.com/noah-isme/sheets-etl/internal/middleware"
	"github.com/noah-isme/sheets-etl/internal/repository"
	"github.com/noah-isme/sheets-etl/internal/service"
	"github.com/noah-isme/sheets-etl/pkg/cache"
	"github.com/noah-isme/sheets-etl/pkg/config"
	"github.com/noah-isme/sheets-etl/pkg/database"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/logger"
	corsmiddleware "github.com/noah-isme/sheets-etl/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sheets-etl/pkg/middleware/requestid"
	"github.com/noah-isme/sheets-etl/pkg/postgrest"
	pkgsheets "github.com/noah-isme/sheets-etl/pkg/sheets"
	"github.com/noah-isme/sheets-etl/pkg/storage"
)

// App holds the wired pipeline and the infrastructure it owns.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *service.MetricsService
	Load     *service.LoadService
	Ledger   *repository.RunLedgerRepository
	Auth     *service.TriggerAuthService
	Pipeline *service.PipelineService

	closers []func() error
}

// New validates cfg and connects every dependency. Errors are typed: CONFIG_INVALID for bad settings and
// the source or sink classes for connection problems.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrConfigInvalid, "")
	}

	a := &App{Config: cfg, Logger: log, Metrics: service.NewMetricsService()}

	sheetsSvc, err := pkgsheets.NewService(ctx, cfg.Sheets)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrSourceUnauthorized, "load spreadsheet credentials")
	}
	reader := repository.NewSheetRepository(sheetsSvc, cfg.Sheets.SpreadsheetID)

	writer, err := a.writer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Load = service.NewLoadService(writer, cfg.Datastore.BatchSize, log)

	a.Ledger = repository.NewRunLedgerRepository(a.redis(ctx), cfg.Redis.LedgerTTL, log)
	a.Auth = service.NewTriggerAuthService(service.TriggerAuthConfig{Secret: cfg.Trigger.JWTSecret, Issuer: cfg.Trigger.Issuer})

	a.Pipeline = service.NewPipelineService(service.PipelineDeps{
		Extract:   service.NewExtractService(reader, log),
		Transform: service.NewTransformService(service.TransformConfig{EnrollmentCoursePrefix: cfg.Pipeline.EnrollmentCoursePrefix}, log),
		Load:      a.Load,
		Rejects:   a.rejects(),
		Ledger:    a.Ledger,
		Metrics:   a.Metrics,
		Logger:    log,
	}, service.PipelineConfig{
		Worksheets:               cfg.Worksheets,
		Concurrency:              cfg.Pipeline.Concurrency,
		IncludeFirstInstallments: cfg.Pipeline.IncludeFirstInstallments,
		Driver:                   cfg.Datastore.Driver,
	})
	return a, nil
}

func (a *App) writer(ctx context.Context) (service.Writer, error) {
	cfg := a.Config.Datastore
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(ctx, cfg)
		if err != nil {
			return nil, repository.ConnectError(err)
		}
		a.closers = append(a.closers, db.Close)
		return repository.NewWarehouseRepository(db), nil
	case config.DriverMemory:
		a.Logger.Warn("memory datastore selected, nothing will be persisted")
		return repository.NewMemoryWarehouseRepository(), nil
	default:
		key := cfg.ServiceRoleKey
		if key == "" {
			a.Logger.Warn("SUPABASE_SERVICE_ROLE_KEY not set, writing with SUPABASE_KEY; row level security may reject writes")
			key = cfg.AnonKey
		}
		return repository.NewRestWarehouseRepository(postgrest.New(cfg.URL, key, cfg.Timeout)), nil
	}
}

// redis connects the run ledger. Failures disable the ledger instead of failing startup.
func (a *App) redis(ctx context.Context) *redis.Client {
	if !a.Config.Redis.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, a.Config.Redis)
	if err != nil {
		a.Logger.Warn("redis unavailable, run ledger disabled", zap.Error(err))
		return nil
	}
	a.closers = append(a.closers, client.Close)
	return client
}

func (a *App) rejects() *service.RejectService {
	cfg := a.Config.Rejects
	if cfg.Dir == "" {
		return nil
	}
	store, err := storage.NewLocalStorage(cfg.Dir)
	if err != nil {
		a.Logger.Warn("reject backups disabled", zap.String("dir", cfg.Dir), zap.Error(err))
		return nil
	}
	return service.NewRejectService(store, cfg.Retention, a.Logger)
}

const triggerRoute = "/api/v1/runs"

// Router builds the trigger server.
func (a *App) Router() (*gin.Engine, error) {
	if !a.Auth.Enabled() {
		if a.Config.Env == config.EnvProduction {
			return nil, appErrors.Clone(appErrors.ErrConfigInvalid, "TRIGGER_JWT_SECRET is required in production")
		}
		a.Logger.Warn("TRIGGER_JWT_SECRET not set, run trigger is disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(middleware.Metrics(a.Metrics, middleware.MetricsOptions{Skip: []string{"/metrics"}, TriggerRoute: triggerRoute}))
	r.Use(corsmiddleware.New(a.Config.Trigger.CORSOrigins, "/health", "/ready", "/metrics"))

	ops := handler.NewMetricsHandler(a.Metrics, a.Load)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	runs := handler.NewRunHandler(a.Pipeline, a.Ledger, a.Config.Pipeline.RunTimeout, a.Logger)
	v1 := r.Group("/api/v1")
	v1.GET("/runs/:date", runs.History)
	if a.Auth.Enabled() {
		v1.POST("/runs", middleware.TriggerAuth(a.Auth), runs.Trigger)
	}
	return r, nil
}

// Close releases owned connections.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("close failed", zap.Error(fmt.Errorf("app close: %w", err)))
	}
}
