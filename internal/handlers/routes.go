package handlers

import (
	"net/http"
	"time"

	"order-intake/internal/lifecycle"
	"order-intake/internal/orders"
	"order-intake/internal/ratelimit"
	"order-intake/internal/scheduler"
	"order-intake/internal/store"

	"github.com/gin-gonic/gin"
)

// Deps bundles what the HTTP layer needs
type Deps struct {
	Scans          *scheduler.ScanCoordinator
	Lifecycle      *lifecycle.Manager
	Orders         *orders.Service
	Store          store.OrderStore
	Searcher       Searcher
	Breaker        BreakerStatus
	ScanLimiter    *ratelimit.Limiter
	AttachmentsDir string
}

// Register mounts every route on r
func Register(r *gin.Engine, d Deps) {
	scan := NewScanHandler(d.Scans)
	orderH := NewOrderHandler(d.Orders, d.Lifecycle, d.Store, d.Searcher)
	trash := NewTrashHandler(d.Lifecycle)
	admin := NewAdminHandler(d.Orders, d.Lifecycle, d.Scans, d.Breaker, d.ScanLimiter)

	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		scanChain := []gin.HandlerFunc{scan.ManualScan}
		if d.ScanLimiter != nil {
			scanChain = append([]gin.HandlerFunc{d.ScanLimiter.Middleware()}, scanChain...)
		}
		api.POST("/scan", scanChain...)
		api.POST("/auto-scan", scan.ToggleAutoScan)
		api.GET("/auto-scan/status", scan.AutoScanStatus)

		api.GET("/orders", orderH.ListOrders)
		api.POST("/orders", orderH.CreateOrder)
		api.POST("/orders/bulk-delete", orderH.BulkDelete)
		api.POST("/orders/restore", orderH.RecreateOrder)
		api.GET("/orders/:id", orderH.GetOrder)
		api.PATCH("/orders/:id/status", orderH.UpdateStatus)
		api.DELETE("/orders/:id", orderH.DeleteOrder)
		api.GET("/search", orderH.Search)
		api.GET("/export/csv", orderH.ExportCSV)

		api.GET("/trash", trash.ListTrash)
		api.POST("/trash/bulk-delete", trash.BulkPermanentDelete)
		api.POST("/trash/bulk-restore", trash.BulkRestore)
		api.POST("/trash/:id/restore", trash.Restore)
		api.DELETE("/trash/:id", trash.PermanentDelete)

		api.GET("/analytics", admin.GetAnalytics)
		api.GET("/purges", admin.GetPurgeLogs)

		adminGroup := api.Group("/admin")
		{
			adminGroup.GET("/status", admin.GetSystemStatus)
			adminGroup.POST("/purge-expired", admin.RunPurge)
		}
	}

	if d.AttachmentsDir != "" {
		r.Static("/attachments", d.AttachmentsDir)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
