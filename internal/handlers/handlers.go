package handlers

import (
	"context"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/auth"
	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
	"github.com/example/face-verify/internal/usecase"
)

// VerificationService is what the routes need from the use case.
type VerificationService interface {
	Verify(ctx context.Context, req usecase.VerificationRequest) (*domain.VerificationResult, error)
	GetResult(ctx context.Context, subject, requestID string) (*usecase.StoredResult, error)
	GetDuplicateReport(ctx context.Context, subject, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
	SaveEntry(ctx context.Context, name string, image []byte) (int, error)
	LoadEntryArtifact(ctx context.Context, name string) ([]byte, error)
}

// Options tunes the routes. Zero values fall back to defaults; a zero
// RequestTimeout disables the per-request deadline.
type Options struct {
	MaxUploadSize  int64
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type handler struct {
	svc       VerificationService
	maxUpload int64
	logger    *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// guards everything but the liveness routes; nil leaves them open.
func RegisterRoutes(router *gin.Engine, svc VerificationService, opts Options, authMiddleware gin.HandlerFunc) {
	h := &handler{
		svc:       svc,
		maxUpload: opts.MaxUploadSize,
		logger:    opts.Logger,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUploadSize
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"API Status": http.StatusOK})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}
	if opts.RequestTimeout > 0 {
		api.Use(requestTimeout(opts.RequestTimeout))
	}

	api.POST("/identity", h.verifyPair)
	api.POST("/cached_data", h.verifyCached)
	api.POST("/verify/stored", h.verifyStored)
	api.GET("/result/:id", h.getResult)
	api.GET("/result/:id/duplicates", h.getDuplicates)
	api.GET("/metrics/summary", h.getMetricsSummary)
	api.PUT("/cache/:name", h.putCacheEntry)
	api.GET("/cache/:name", h.getCacheEntry)
}

// requestTimeout puts a deadline on the request context; the pipeline and
// backends abort when it passes.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func subject(c *gin.Context) string {
	id, _ := auth.GetUserID(c.Request.Context())
	return id
}

func (h *handler) verifyPair(c *gin.Context) {
	if err := h.parseForm(c); err != nil {
		respondError(c, h.logger, err)
		return
	}
	reference, err := h.readImage(c, "reference")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.verify(c, usecase.ImageReference{Data: reference})
}

func (h *handler) verifyCached(c *gin.Context) {
	if err := h.parseForm(c); err != nil {
		respondError(c, h.logger, err)
		return
	}
	reference, err := h.readArtifact(c, "reference")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.verify(c, usecase.CachedReference{Data: reference})
}

func (h *handler) verifyStored(c *gin.Context) {
	if err := h.parseForm(c); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.verify(c, usecase.StoredReference{Name: c.PostForm("reference_name")})
}

func (h *handler) verify(c *gin.Context, reference usecase.Reference) {
	sample, err := h.readImage(c, "sample")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.svc.Verify(c.Request.Context(), usecase.VerificationRequest{
		Reference: reference,
		Sample:    sample,
		ScoreType: c.PostForm("type"),
		Threshold: c.PostForm("threshold"),
		Subject:   subject(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) getResult(c *gin.Context) {
	result, err := h.svc.GetResult(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) getDuplicates(c *gin.Context) {
	report, err := h.svc.GetDuplicateReport(c.Request.Context(), subject(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) getMetricsSummary(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) putCacheEntry(c *gin.Context) {
	if err := h.parseForm(c); err != nil {
		respondError(c, h.logger, err)
		return
	}
	image, err := h.readImage(c, "image")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	name := c.Param("name")
	dim, err := h.svc.SaveEntry(c.Request.Context(), name, image)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "dimension": dim})
}

func (h *handler) getCacheEntry(c *gin.Context) {
	name := c.Param("name")
	artifact, err := h.svc.LoadEntryArtifact(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name + embedding.ArtifactExt}); disposition != "" {
		c.Header("Content-Disposition", disposition)
	}
	c.Data(http.StatusOK, "application/octet-stream", artifact)
}
