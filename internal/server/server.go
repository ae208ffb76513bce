// Package server exposes the roster over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/facade"
	"github.com/vrcwmt/worldperm/internal/roster"
	"github.com/vrcwmt/worldperm/internal/sideimage"
	"github.com/vrcwmt/worldperm/internal/store"
)

// ActorHeader names the caller recorded with each change.
const ActorHeader = "X-Actor"

const (
	maxImageBytes = 32 << 20
	maxJSONBytes  = 4 << 10
)

type Handler struct {
	facade *facade.Facade
	logger *zap.SugaredLogger
	start  time.Time
}

func NewHandler(f *facade.Facade, logger *zap.SugaredLogger) *Handler {
	return &Handler{facade: f, logger: logger, start: time.Now()}
}

// NewRouter builds the gin engine. Metrics are served from gatherer when it
// is not nil.
func NewRouter(h *Handler, cfg config.ServerConfig, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.logRequests())

	router.GET("/healthz", h.Health)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	router.GET("/roster", h.ListRoster)
	router.GET("/roster/:category", h.GetCategory)
	router.GET("/pseudonyms/:pseudonym", h.Whois)
	router.GET("/image", h.GetImage)

	mutating := router.Group("/")
	mutating.Use(rateLimit(cfg.RateLimit, cfg.Burst))
	{
		mutating.PUT("/roster/:category/:pseudonym", h.Add)
		mutating.POST("/roster/:category", h.AddJSON)
		mutating.DELETE("/roster/:category/:pseudonym", h.Remove)
		mutating.POST("/retry", h.Retry)
		mutating.PUT("/image", h.PutImage)
	}

	return router
}

func (h *Handler) Health(c *gin.Context) {
	status := "healthy"
	if h.facade.Dirty() {
		status = "dirty"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"uptime": time.Since(h.start).Round(time.Second).String(),
	})
}

func (h *Handler) ListRoster(c *gin.Context) {
	l := h.facade.List()
	c.JSON(http.StatusOK, gin.H{
		"sections": l.Sections,
		"total":    l.Total(),
		"empty":    l.Empty(),
	})
}

func (h *Handler) GetCategory(c *gin.Context) {
	cat, err := roster.ParseCategoryFold(c.Param("category"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.facade.List().Sections[cat])
}

func (h *Handler) Whois(c *gin.Context) {
	p := c.Param("pseudonym")
	cats := h.facade.CategoriesOf(p)
	if cats == nil {
		cats = []roster.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"pseudonym": p, "categories": cats})
}

func (h *Handler) Add(c *gin.Context) {
	h.handle(c, roster.OpAdd, c.Param("category"), c.Param("pseudonym"))
}

func (h *Handler) AddJSON(c *gin.Context) {
	var req struct {
		Pseudonym string `json:"pseudonym" binding:"required"`
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBytes)
	if err := c.ShouldBindJSON(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.handle(c, roster.OpAdd, c.Param("category"), req.Pseudonym)
}

func (h *Handler) Remove(c *gin.Context) {
	h.handle(c, roster.OpRemove, c.Param("category"), c.Param("pseudonym"))
}

func (h *Handler) handle(c *gin.Context, op roster.Op, category, pseudonym string) {
	req, err := facade.ParseRequest(op, category, pseudonym, c.GetHeader(ActorHeader))
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.facade.Handle(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Retry(c *gin.Context) {
	if err := h.facade.Retry(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dirty": false})
}

func (h *Handler) GetImage(c *gin.Context) {
	rc, err := h.facade.OpenImage()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warnw("streaming image", "error", err)
	}
}

func (h *Handler) PutImage(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	if err := h.facade.UploadImage(c.Request.Context(), body, c.ContentType()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": true})
}

// StatusFor maps a facade error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, roster.ErrInvalidCategory),
		errors.Is(err, roster.ErrInvalidPseudonym),
		errors.Is(err, sideimage.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrProtectedCategory):
		return http.StatusForbidden
	case errors.Is(err, sideimage.ErrNoImage):
		return http.StatusNotFound
	case errors.Is(err, store.ErrPersistFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("request failed", "path", c.Request.URL.Path, "method", c.Request.Method, "error", err)
	}
	body := gin.H{"error": err.Error()}
	if errors.Is(err, store.ErrPersistFailure) {
		// The change is kept in memory; POST /retry persists it.
		body["applied"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Run serves handler on cfg.Address until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("starting http server", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			logger.Errorw("error force closing server", "error", closeErr)
		}
		return err
	}
	logger.Info("http server stopped")
	return nil
}
