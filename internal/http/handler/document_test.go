package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/internal/http/handler"
	"basegraph.app/docwatch/internal/http/middleware"
	"basegraph.app/docwatch/internal/model"
	"basegraph.app/docwatch/internal/service"
)

var _ = Describe("DocumentHandler", func() {
	var (
		router *gin.Engine
		svc    *mockWatchService
	)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.OwnerHeader, "owner-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		router.UseRawPath = true
		router.UnescapePathValues = true
		svc = &mockWatchService{}
		h := handler.NewDocumentHandler(svc)

		docs := router.Group("/api/v1/documents")
		docs.Use(middleware.RequireOwner())
		{
			docs.POST("", h.Watch)
			docs.GET("", h.List)
			docs.GET("/:token/check", h.Check)
			docs.GET("/:token/events", h.Events)
			docs.POST("/:token/pause", h.Pause)
			docs.POST("/:token/resume", h.Resume)
			docs.DELETE("/:token", h.Delete)
		}
	})

	Describe("owner header", func() {
		It("rejects requests without an owner", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Watch", func() {
		It("returns 201 with the pending document", func() {
			var gotOwner, gotToken, gotTarget string
			svc.watchFn = func(_ context.Context, ownerID, token, target string) (*model.TrackedDocument, error) {
				gotOwner, gotToken, gotTarget = ownerID, token, target
				return &model.TrackedDocument{
					OwnerID:      ownerID,
					Token:        token,
					NotifyTarget: target,
					State:        model.DocumentStatePending,
				}, nil
			}

			w := do(http.MethodPost, "/api/v1/documents", map[string]string{
				"token":         "docx:abc",
				"notify_target": "chat-1",
			})

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(gotOwner).To(Equal("owner-1"))
			Expect(gotToken).To(Equal("docx:abc"))
			Expect(gotTarget).To(Equal("chat-1"))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["state"]).To(Equal("pending"))
			Expect(resp).NotTo(HaveKey("baseline_modified_at"))
		})

		It("returns 400 when fields are missing", func() {
			w := do(http.MethodPost, "/api/v1/documents", map[string]string{"token": "abc"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		DescribeTable("maps service errors to status codes",
			func(err error, status int) {
				svc.watchFn = func(context.Context, string, string, string) (*model.TrackedDocument, error) {
					return nil, err
				}
				w := do(http.MethodPost, "/api/v1/documents", map[string]string{
					"token":         "abc",
					"notify_target": "chat-1",
				})
				Expect(w.Code).To(Equal(status))
			},
			Entry("already watched", service.ErrAlreadyWatched, http.StatusConflict),
			Entry("different target for a paused document", service.ErrTargetMismatch, http.StatusConflict),
			Entry("missing upstream", fmt.Errorf("%w: gone", service.ErrResourceNotFound), http.StatusNotFound),
			Entry("forbidden upstream", fmt.Errorf("%w: no", service.ErrPermissionDenied), http.StatusForbidden),
			Entry("invalid token", service.ErrInvalidToken, http.StatusBadRequest),
			Entry("invalid target", service.ErrInvalidTarget, http.StatusBadRequest),
			Entry("upstream outage", fmt.Errorf("%w: timeout", service.ErrUpstream), http.StatusBadGateway),
			Entry("unexpected", errors.New("boom"), http.StatusInternalServerError),
		)
	})

	Describe("List", func() {
		It("returns only the caller's documents", func() {
			svc.listFn = func(_ context.Context, ownerID string) ([]model.TrackedDocument, error) {
				return []model.TrackedDocument{
					{OwnerID: ownerID, Token: "a", State: model.DocumentStateActive},
					{OwnerID: ownerID, Token: "b", State: model.DocumentStatePaused},
				}, nil
			}

			w := do(http.MethodGet, "/api/v1/documents", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp struct {
				Documents []map[string]any `json:"documents"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Documents).To(HaveLen(2))
			Expect(resp.Documents[1]["state"]).To(Equal("paused"))
		})
	})

	Describe("Check", func() {
		It("returns current metadata", func() {
			modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			svc.checkFn = func(_ context.Context, _, token string) (model.Metadata, error) {
				return model.Metadata{Token: token, ModifiedAt: modified, ModifiedBy: "ou_1"}, nil
			}

			w := do(http.MethodGet, "/api/v1/documents/abc/check", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["modified_by"]).To(Equal("ou_1"))
		})

		It("returns 404 for documents the caller does not watch", func() {
			w := do(http.MethodGet, "/api/v1/documents/abc/check", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("decodes escaped tokens", func() {
			var gotToken string
			svc.checkFn = func(_ context.Context, _, token string) (model.Metadata, error) {
				gotToken = token
				return model.Metadata{Token: token}, nil
			}

			w := do(http.MethodGet, "/api/v1/documents/group%2Fproject%2Fissue/check", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotToken).To(Equal("group/project/issue"))
		})
	})

	Describe("Pause and Resume", func() {
		It("pauses a watched document", func() {
			svc.unwatchFn = func(_ context.Context, ownerID, token string) (*model.TrackedDocument, error) {
				return &model.TrackedDocument{OwnerID: ownerID, Token: token, State: model.DocumentStatePaused}, nil
			}

			w := do(http.MethodPost, "/api/v1/documents/abc/pause", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"state":"paused"`))
		})

		It("returns 404 when resuming an unknown document", func() {
			w := do(http.MethodPost, "/api/v1/documents/abc/resume", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Delete", func() {
		It("returns 204", func() {
			w := do(http.MethodDelete, "/api/v1/documents/abc", nil)
			Expect(w.Code).To(Equal(http.StatusNoContent))
		})

		It("returns 404 when not watched", func() {
			svc.deleteFn = func(context.Context, string, string) error { return service.ErrNotWatched }
			w := do(http.MethodDelete, "/api/v1/documents/abc", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Events", func() {
		It("passes the limit and caps it", func() {
			var gotLimit int
			svc.historyFn = func(_ context.Context, _, _ string, limit int) ([]model.ChangeEvent, error) {
				gotLimit = limit
				return []model.ChangeEvent{{ID: 42, Kind: model.ChangeKindTimeUpdated, Debounced: true}}, nil
			}

			w := do(http.MethodGet, "/api/v1/documents/abc/events?limit=1000", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotLimit).To(Equal(200))
			Expect(w.Body.String()).To(ContainSubstring(`"id":"42"`))
			Expect(w.Body.String()).To(ContainSubstring(`"debounced":true`))
		})

		It("rejects a bad limit", func() {
			w := do(http.MethodGet, "/api/v1/documents/abc/events?limit=zero", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("HealthHandler", func() {
	var (
		router *gin.Engine
		svc    *mockHealthService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockHealthService{}
		router.GET("/health", handler.NewHealthHandler(svc).Health)
	})

	DescribeTable("status codes",
		func(status model.HealthStatus, code int) {
			svc.report = service.HealthReport{Status: status, Store: "ok"}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(w.Code).To(Equal(code))
			Expect(w.Body.String()).To(ContainSubstring(string(status)))
		},
		Entry("healthy", model.HealthHealthy, http.StatusOK),
		Entry("degraded", model.HealthDegraded, http.StatusOK),
		Entry("unhealthy", model.HealthUnhealthy, http.StatusServiceUnavailable),
	)
})
