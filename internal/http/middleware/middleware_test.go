package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/http/middleware"
)

var _ = Describe("Middleware", func() {
	var router *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		router.Use(middleware.Recovery(), middleware.Logger())
	})

	Describe("RequireOwner", func() {
		BeforeEach(func() {
			router.GET("/me", middleware.RequireOwner(), func(c *gin.Context) {
				ctx := c.Request.Context()
				fields := logger.GetLogFields(ctx)
				c.JSON(http.StatusOK, gin.H{
					"owner":     middleware.GetOwnerID(ctx),
					"log_owner": *fields.OwnerID,
				})
			})
		})

		It("stores the owner in the request context", func() {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set(middleware.OwnerHeader, " owner-7 ")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"owner":"owner-7","log_owner":"owner-7"}`))
		})

		It("rejects a blank owner", func() {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set(middleware.OwnerHeader, "   ")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("Recovery", func() {
		It("turns a panic into a 500", func() {
			router.GET("/boom", func(*gin.Context) { panic("boom") })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("internal server error"))
		})
	})

	It("returns empty owner outside RequireOwner", func() {
		Expect(middleware.GetOwnerID(httptest.NewRequest(http.MethodGet, "/", nil).Context())).To(BeEmpty())
	})
})
