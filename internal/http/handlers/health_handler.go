package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
)

// CacheChecker кеш, состояние которого показывается в /health.
type CacheChecker interface {
	Name() string
	Ping(ctx context.Context) error
}

// SearchChecker поисковый движок, состояние которого показывается в /health.
type SearchChecker interface {
	Name() string
	Healthy(ctx context.Context) bool
}

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	db     *sqlx.DB
	cache  CacheChecker
	search SearchChecker
}

// NewHealthHandler создаёт новый health handler. db == nil означает работу
// на резервных in-memory хранилищах.
func NewHealthHandler(db *sqlx.DB, cache CacheChecker, search SearchChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, search: search}
}

// HealthResponse представляет ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// Недоступная база делает сервис нездоровым, остальное только деградирует
	if h.db == nil {
		checks["database"] = "fallback"
	} else if err := h.db.PingContext(ctx); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("health: база данных недоступна")
		checks["database"] = "unhealthy"
		status = "unhealthy"
	} else {
		checks["database"] = "healthy"
		stats := h.db.Stats()
		if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
			checks["connection_pool"] = "warning: pool exhausted"
		} else {
			checks["connection_pool"] = "healthy"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = h.cache.Name() + ": unhealthy"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["cache"] = h.cache.Name() + ": healthy"
		}
	}

	switch {
	case h.search == nil:
		checks["search"] = "sql"
	case h.search.Healthy(ctx):
		checks["search"] = h.search.Name() + ": healthy"
	default:
		checks["search"] = h.search.Name() + ": unhealthy (sql fallback)"
		if status == "healthy" {
			status = "degraded"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
