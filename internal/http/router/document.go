package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/docwatch/internal/http/handler"
)

func DocumentRouter(rg *gin.RouterGroup, h *handler.DocumentHandler) {
	rg.POST("", h.Watch)
	rg.GET("", h.List)
	rg.GET("/:token/check", h.Check)
	rg.GET("/:token/events", h.Events)
	rg.POST("/:token/pause", h.Pause)
	rg.POST("/:token/resume", h.Resume)
	rg.DELETE("/:token", h.Delete)
}
