package handlers

import (
	"net/http"
	"strconv"

	"order-intake/internal/lifecycle"
	"order-intake/internal/logging"
	"order-intake/internal/orders"
	"order-intake/internal/ratelimit"
	"order-intake/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// BreakerStatus reports the mailbox circuit breaker state
type BreakerStatus interface {
	Status() (open bool, failures int)
}

// AdminHandler handles reporting and maintenance requests
type AdminHandler struct {
	orders    *orders.Service
	lifecycle *lifecycle.Manager
	scans     *scheduler.ScanCoordinator
	breaker   BreakerStatus
	limiter   *ratelimit.Limiter
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *orders.Service, lm *lifecycle.Manager, scans *scheduler.ScanCoordinator, breaker BreakerStatus, limiter *ratelimit.Limiter) *AdminHandler {
	return &AdminHandler{
		orders:    svc,
		lifecycle: lm,
		scans:     scans,
		breaker:   breaker,
		limiter:   limiter,
	}
}

// GetAnalytics returns dashboard totals
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	stats, err := h.orders.Analytics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSystemStatus returns scanner, mailbox and rate limiter state
func (h *AdminHandler) GetSystemStatus(c *gin.Context) {
	status := gin.H{"scanner": h.scans.Status()}

	if h.breaker != nil {
		open, failures := h.breaker.Status()
		status["mailbox"] = gin.H{
			"circuit_open":         open,
			"consecutive_failures": failures,
		}
	}
	if h.limiter != nil {
		status["manual_scan_limit"] = h.limiter.Stats()
	}

	c.JSON(http.StatusOK, status)
}

// RunPurge removes expired trash immediately
func (h *AdminHandler) RunPurge(c *gin.Context) {
	log := logging.For("admin")
	log.Info("Admin: Manual trash purge requested")

	n, err := h.lifecycle.PurgeExpired(c.Request.Context())
	if err != nil {
		log.Errorf("Admin: Trash purge failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"purged":  n,
	})
}

// GetPurgeLogs returns recent purge log entries
func (h *AdminHandler) GetPurgeLogs(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "100")
	limit, _ := strconv.Atoi(limitStr)

	logs, err := h.lifecycle.RecentPurges(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}
