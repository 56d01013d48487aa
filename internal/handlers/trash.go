package handlers

import (
	"fmt"
	"net/http"

	"order-intake/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

// TrashHandler serves soft-deleted orders
type TrashHandler struct {
	lifecycle *lifecycle.Manager
}

func NewTrashHandler(lm *lifecycle.Manager) *TrashHandler {
	return &TrashHandler{lifecycle: lm}
}

// ListTrash purges expired entries and returns the rest
func (h *TrashHandler) ListTrash(c *gin.Context) {
	entries, err := h.lifecycle.ListTrash(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Restore moves one order out of the trash
func (h *TrashHandler) Restore(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n := h.lifecycle.Restore(c.Request.Context(), id)
	singleResult(c, n, "Order restored successfully", "Order not found in trash")
}

// PermanentDelete removes one trashed order for good
func (h *TrashHandler) PermanentDelete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	n := h.lifecycle.PermanentDelete(c.Request.Context(), id)
	singleResult(c, n, "Order permanently deleted", "Order not found in trash")
}

// BulkPermanentDelete removes several trashed orders
func (h *TrashHandler) BulkPermanentDelete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No IDs provided"})
		return
	}
	n := h.lifecycle.PermanentDelete(c.Request.Context(), req.IDs...)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   n,
		"message": fmt.Sprintf("%d order(s) permanently deleted", n),
	})
}

// BulkRestore moves several orders out of the trash
func (h *TrashHandler) BulkRestore(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No IDs provided"})
		return
	}
	n := h.lifecycle.Restore(c.Request.Context(), req.IDs...)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   n,
		"message": fmt.Sprintf("%d order(s) restored", n),
	})
}

// singleResult answers a one-id lifecycle action. A missing id or one in the
// wrong state is not an error, just zero affected.
func singleResult(c *gin.Context, n int, done, missed string) {
	if n == 0 {
		c.JSON(http.StatusOK, gin.H{"success": false, "count": 0, "message": missed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n, "message": done})
}
