package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/config"
	"github.com/yungbote/neurobridge-studygen/internal/data/db"
	httpserver "github.com/yungbote/neurobridge-studygen/internal/http"
	httpH "github.com/yungbote/neurobridge-studygen/internal/http/handlers"
	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/services"
)

const serviceName = "studygen"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      *config.Config
	Router   *gin.Engine
	Metrics  *observability.Metrics
	Services Services

	dbSvc        db.Service
	clients      services.StudyPackClients
	otelShutdown func(context.Context) error
}

type Services struct {
	StudyPack services.StudyPackService
}

// New wires the full process. The caller owns Close.
func New(ctx context.Context) (*App, error) {
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(serviceName, logMode))

	dbSvc, err := db.Open(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := db.AutoMigrateAll(dbSvc.DB()); err != nil {
		_ = dbSvc.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbSvc.DB()

	clients, err := wireClients(ctx, log)
	if err != nil {
		_ = dbSvc.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	packs := services.NewStudyPackService(theDB, log, cfg, reposet, clients)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Log:              log,
		ServiceName:      serviceName,
		Metrics:          metrics,
		StudyPackHandler: httpH.NewStudyPackHandler(log, packs),
		HealthHandler:    httpH.NewHealthHandler(pingDB(theDB)),
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Router:       router,
		Metrics:      metrics,
		Services:     Services{StudyPack: packs},
		dbSvc:        dbSvc,
		clients:      clients,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP on PORT (default 8080) until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + strings.TrimPrefix(envutil.String("PORT", "8080"), ":")
	grace := time.Duration(envutil.Int("SHUTDOWN_GRACE_SECONDS", 30)) * time.Second
	a.Log.Info("HTTP server listening", "addr", addr)
	return (&httpserver.Server{Engine: a.Router}).Run(ctx, addr, grace)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeClients(ctx, a.Log, a.clients)
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.dbSvc != nil {
		if err := a.dbSvc.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func pingDB(gdb *gorm.DB) httpH.Pinger {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

