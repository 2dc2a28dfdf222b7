package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/http/dto"
	"basegraph.app/docwatch/internal/http/middleware"
	"basegraph.app/docwatch/internal/service"
)

const maxEventLimit = 200

type DocumentHandler struct {
	watchService service.WatchService
}

func NewDocumentHandler(watchService service.WatchService) *DocumentHandler {
	return &DocumentHandler{watchService: watchService}
}

func (h *DocumentHandler) Watch(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req dto.WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: token and notify_target are required"})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Token: &req.Token})
	doc, err := h.watchService.Watch(ctx, ownerID, req.Token, req.NotifyTarget)
	if err != nil {
		h.writeError(c, err, "failed to watch document")
		return
	}

	c.JSON(http.StatusCreated, dto.ToDocumentResponse(doc))
}

func (h *DocumentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	docs, err := h.watchService.ListWatched(ctx, middleware.GetOwnerID(ctx))
	if err != nil {
		h.writeError(c, err, "failed to list documents")
		return
	}

	resp := dto.ListDocumentsResponse{Documents: make([]dto.DocumentResponse, len(docs))}
	for i := range docs {
		resp.Documents[i] = dto.ToDocumentResponse(&docs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.Param("token")

	md, err := h.watchService.CheckNow(ctx, middleware.GetOwnerID(ctx), token)
	if err != nil {
		h.writeError(c, err, "failed to check document")
		return
	}
	c.JSON(http.StatusOK, dto.ToMetadataResponse(md))
}

func (h *DocumentHandler) Pause(c *gin.Context) {
	ctx := c.Request.Context()

	doc, err := h.watchService.Unwatch(ctx, middleware.GetOwnerID(ctx), c.Param("token"))
	if err != nil {
		h.writeError(c, err, "failed to pause document")
		return
	}
	c.JSON(http.StatusOK, dto.ToDocumentResponse(doc))
}

func (h *DocumentHandler) Resume(c *gin.Context) {
	ctx := c.Request.Context()

	doc, err := h.watchService.Resume(ctx, middleware.GetOwnerID(ctx), c.Param("token"))
	if err != nil {
		h.writeError(c, err, "failed to resume document")
		return
	}
	c.JSON(http.StatusOK, dto.ToDocumentResponse(doc))
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.watchService.Delete(ctx, middleware.GetOwnerID(ctx), c.Param("token")); err != nil {
		h.writeError(c, err, "failed to delete document")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.watchService.History(ctx, middleware.GetOwnerID(ctx), c.Param("token"), limit)
	if err != nil {
		h.writeError(c, err, "failed to list events")
		return
	}

	resp := dto.ListEventsResponse{Events: make([]dto.ChangeEventResponse, len(events))}
	for i, e := range events {
		resp.Events[i] = dto.ToChangeEventResponse(e)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrAlreadyWatched):
		c.JSON(http.StatusConflict, gin.H{"error": "document is already watched"})
	case errors.Is(err, service.ErrTargetMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "paused document has a different notify target; resume it or delete it first"})
	case errors.Is(err, service.ErrNotWatched):
		c.JSON(http.StatusNotFound, gin.H{"error": "document is not watched"})
	case errors.Is(err, service.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "no permission to read document"})
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUpstream):
		slog.WarnContext(c.Request.Context(), msg, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "document source unavailable"})
	default:
		slog.ErrorContext(c.Request.Context(), msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
