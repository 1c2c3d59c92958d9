package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
)

// listOptions reads the shared list query parameters
func listOptions(c *gin.Context) store.ListOptions {
	opts := store.ListOptions{
		Search:     c.Query("search"),
		Status:     c.Query("status"),
		Sort:       c.Query("sort"),
		Descending: c.Query("order") == "desc",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		opts.Offset = offset
	}
	return opts
}

type batchDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

// ListClients returns the tenant's clients
func (h *Handler) ListClients(c *gin.Context) {
	clients, err := h.store.ListClients(c.Request.Context(), userID(c), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// GetClient returns one client
func (h *Handler) GetClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	client, err := h.store.GetClient(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client})
}

// CreateClient creates a client through the mutation protocol
func (h *Handler) CreateClient(c *gin.Context) {
	var client models.Client
	if err := c.ShouldBindJSON(&client); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	if err := h.protocol.CreateClient(c.Request.Context(), userID(c), &client); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"client": client})
}

// UpdateClient updates a client
func (h *Handler) UpdateClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var client models.Client
	if err := c.ShouldBindJSON(&client); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	client.ID = id
	if err := h.protocol.UpdateClient(c.Request.Context(), userID(c), &client); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client})
}

// DeleteClient deletes one client with a restorable undo window
func (h *Handler) DeleteClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.protocol.DeleteClients(c.Request.Context(), userID(c), []uuid.UUID{id}, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(result.Failed) > 0 {
		respondError(c, result.Failed[0].Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": result.Deleted, "undo_window_seconds": undoWindowSeconds()})
}

// BatchDeleteClients deletes clients per item, reporting partial failure
func (h *Handler) BatchDeleteClients(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("ids", err.Error()))
		return
	}
	result, err := h.protocol.DeleteClients(c.Request.Context(), userID(c), req.IDs, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchResponse(result))
}

// UndoClients restores the pending client deletion
func (h *Handler) UndoClients(c *gin.Context) {
	restored, err := h.protocol.UndoClients(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}
