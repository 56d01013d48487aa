package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"order-intake/internal/lifecycle"
	"order-intake/internal/models"
	"order-intake/internal/orders"
	"order-intake/internal/search"
	"order-intake/internal/store"

	"github.com/gin-gonic/gin"
)

// Searcher runs a full-text query and returns matching order ids
type Searcher interface {
	SearchIDs(params search.FilterParams) ([]uint, error)
}

// OrderHandler serves the active order set
type OrderHandler struct {
	orders    *orders.Service
	lifecycle *lifecycle.Manager
	store     store.OrderStore
	searcher  Searcher
}

func NewOrderHandler(svc *orders.Service, lm *lifecycle.Manager, st store.OrderStore, searcher Searcher) *OrderHandler {
	return &OrderHandler{orders: svc, lifecycle: lm, store: st, searcher: searcher}
}

type idsRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid order id"})
		return 0, false
	}
	return uint(id), true
}

// ListOrders returns active orders, newest first
func (h *OrderHandler) ListOrders(c *gin.Context) {
	list, err := h.orders.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetOrder returns one order
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// CreateOrder adds a manually entered order
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req orders.ManualOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	order, err := h.orders.CreateManual(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "Order added successfully",
		"order_id": order.ID,
	})
}

// UpdateStatus changes the review status of an order
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Order not found"})
	case errors.Is(err, orders.ErrInactive):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	default:
		c.JSON(http.StatusOK, order)
	}
}

// DeleteOrder moves one order to the trash
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n := h.lifecycle.SoftDelete(c.Request.Context(), id)
	singleResult(c, n, "Order moved to trash", "Order not found")
}

// BulkDelete moves several orders to the trash
func (h *OrderHandler) BulkDelete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No IDs provided"})
		return
	}
	n := h.lifecycle.SoftDelete(c.Request.Context(), req.IDs...)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   n,
		"message": fmt.Sprintf("%d order(s) moved to trash", n),
	})
}

// RecreateOrder inserts a new order from a full record (undo delete)
func (h *OrderHandler) RecreateOrder(c *gin.Context) {
	var req lifecycle.RecreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	order, err := h.lifecycle.Recreate(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "Order restored successfully",
		"order_id": order.ID,
	})
}

// Search runs a full-text query over active orders
func (h *OrderHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not enabled"})
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	params := search.FilterParams{
		Query:    c.Query("q"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Source:   c.Query("source"),
		Newest:   c.Query("sort") == "newest",
		Limit:    limit,
	}

	ids, err := h.searcher.SearchIDs(params)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	found, err := search.ResolveActive(c.Request.Context(), h.store, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": found,
		"count":  len(found),
	})
}

var exportHeader = []string{
	"Order Number", "Product", "Quantity", "Unit", "Due Date", "Retailer",
	"Retailer Email", "Phone", "Priority", "Status", "Confidence", "Source", "Created At",
}

// ExportCSV streams active orders as a CSV download
func (h *OrderHandler) ExportCSV(c *gin.Context) {
	list, err := h.orders.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=purchase_orders.csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for _, o := range list {
		_ = w.Write(exportRow(o))
	}
	w.Flush()
}

func exportRow(o models.Order) []string {
	confidence := ""
	if o.ConfidenceScore != nil {
		confidence = strconv.FormatFloat(*o.ConfidenceScore, 'f', 1, 64)
	}
	return []string{
		o.OrderNumber, o.ProductName, o.QuantityOrdered, o.Unit, o.DeliveryDueDate,
		o.RetailerName, o.RetailerEmail, o.RetailerPhone, string(o.PriorityLevel),
		string(o.OrderStatus), confidence, string(o.SourceOfOrder),
		o.CreatedAt.Format(time.RFC3339),
	}
}
