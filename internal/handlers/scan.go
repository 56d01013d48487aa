package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"order-intake/internal/logging"
	"order-intake/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// ScanHandler exposes scan control
type ScanHandler struct {
	scans *scheduler.ScanCoordinator
}

func NewScanHandler(scans *scheduler.ScanCoordinator) *ScanHandler {
	return &ScanHandler{scans: scans}
}

// ManualScan runs one scan cycle and reports how many orders were added
func (h *ScanHandler) ManualScan(c *gin.Context) {
	n, err := h.scans.RequestManualScan(c.Request.Context())
	if errors.Is(err, scheduler.ErrBlocked) {
		c.JSON(http.StatusConflict, gin.H{
			"status":  "blocked",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		logging.For("handlers").Warnf("Scan: manual scan failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	if n == 0 {
		c.JSON(http.StatusOK, gin.H{
			"status":  "no_new",
			"count":   0,
			"message": "No new order emails found.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "updated",
		"count":   n,
		"message": fmt.Sprintf("%d new order(s) processed successfully!", n),
	})
}

// ToggleAutoScan enables or disables automatic scanning
func (h *ScanHandler) ToggleAutoScan(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if *req.Enabled {
		h.scans.EnableAutoScan()
	} else {
		h.scans.DisableAutoScan()
	}
	c.JSON(http.StatusOK, gin.H{"auto_scan": h.scans.Status().AutoScan})
}

// AutoScanStatus returns the scanning mode and processing flag
func (h *ScanHandler) AutoScanStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scans.Status())
}
