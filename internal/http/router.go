package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-studygen/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-studygen/internal/http/middleware"
	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	// Metrics is optional; nil disables /metrics and request instrumentation.
	Metrics *observability.Metrics

	StudyPackHandler *httpH.StudyPackHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Study packs
		if h := cfg.StudyPackHandler; h != nil {
			api.POST("/packs", h.CreatePack)
			api.GET("/packs", h.ListPacks)
			api.GET("/packs/:id", h.GetPack)
			api.POST("/packs/:id/documents", h.IngestDocument)

			api.POST("/packs/:id/artifacts", h.BuildAll)
			api.POST("/packs/:id/artifacts/:kind", h.BuildArtifact)
			api.POST("/packs/:id/artifacts/:kind/extend", h.ExtendArtifact)
			api.GET("/packs/:id/artifacts/:kind", h.GetArtifact)
		}
	}

	return r
}
