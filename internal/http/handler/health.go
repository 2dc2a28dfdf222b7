package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/service"
)

type HealthHandler struct {
	healthService service.HealthService
}

func NewHealthHandler(healthService service.HealthService) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

// Health answers 200 while healthy or degraded and 503 when unhealthy, so
// load balancers only drop the instance for real outages.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.healthService.HealthAndMetrics(c.Request.Context())

	status := http.StatusOK
	if report.Status == model.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
