// Package server exposes the read-only HTTP surface: the notification
// outbox for the delivery collaborator, and a webhook to audit a single
// repository on demand.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gitwarden/gitwarden/internal/config"
	"github.com/gitwarden/gitwarden/internal/notify"
	"github.com/gitwarden/gitwarden/internal/runner"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *gorm.DB, run *runner.Runner) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handler{db: db, outbox: notify.NewOutbox(db), runner: run}

	api := router.Group("/api/v1")
	{
		api.GET("/notifications", h.listNotifications)
		api.POST("/notifications/:id/notified", h.markNotified)
	}

	router.POST("/webhook/scan", h.scanWebhook)

	return router
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type handler struct {
	db     *gorm.DB
	outbox *notify.Outbox
	runner *runner.Runner
}

// listNotifications returns the pending outbox (delivery collaborator
// contract).
func (h *handler) listNotifications(c *gin.Context) {
	notifications, err := h.outbox.Pending()
	if err != nil {
		slog.Error("Failed to list notifications", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "count": len(notifications)})
}

// markNotified records delivery of one notification.
func (h *handler) markNotified(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	if err := h.outbox.MarkNotified(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		slog.Error("Failed to mark notification", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "notified"})
}

type scanRequest struct {
	RepoURL string `json:"repo_url" binding:"required"`
}

// scanWebhook triggers a full audit pass for one repository in the
// background and returns immediately.
func (h *handler) scanWebhook(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repo_url is required"})
		return
	}

	go func(url string) {
		ctx := context.Background()
		if err := h.runner.SyncPermissions(ctx, "", url); err != nil {
			slog.Error("Webhook permission sync failed", "repo_url", url, "error", err)
		}
		if err := h.runner.SyncSettings(ctx, "", url); err != nil {
			slog.Error("Webhook settings sync failed", "repo_url", url, "error", err)
		}
		if err := h.runner.SyncBranches(ctx, "", url); err != nil {
			slog.Error("Webhook branch sync failed", "repo_url", url, "error", err)
		}
		if err := h.runner.EvaluateCompliance(ctx, "", url); err != nil {
			slog.Error("Webhook compliance check failed", "repo_url", url, "error", err)
		}
	}(req.RepoURL)

	c.JSON(http.StatusAccepted, gin.H{"status": "scan scheduled", "repo_url": req.RepoURL})
}
