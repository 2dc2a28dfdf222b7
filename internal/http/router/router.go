package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basegraph.app/docwatch/internal/http/handler"
	"basegraph.app/docwatch/internal/http/middleware"
	"basegraph.app/docwatch/internal/service"
)

type RouterConfig struct {
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	// Tokens may carry reserved characters such as "/" when URL-escaped.
	router.UseRawPath = true
	router.UnescapePathValues = true

	healthHandler := handler.NewHealthHandler(services.Health())
	router.GET("/health", healthHandler.Health)

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireOwner())
	{
		documentHandler := handler.NewDocumentHandler(services.Watches())
		DocumentRouter(v1.Group("/documents"), documentHandler)
	}
}
