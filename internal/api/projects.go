package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
)

// ListProjects returns the tenant's projects
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context(), userID(c), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject returns one project with its derived payment_pending
func (h *Handler) GetProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := h.store.GetProject(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":         project,
		"payment_pending": project.PaymentPending(),
	})
}

// CreateProject creates a project through the mutation protocol
func (h *Handler) CreateProject(c *gin.Context) {
	var project models.Project
	if err := c.ShouldBindJSON(&project); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	if err := h.protocol.CreateProject(c.Request.Context(), userID(c), &project); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// UpdateProject updates a project, applying the pipeline transition rules
func (h *Handler) UpdateProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var project models.Project
	if err := c.ShouldBindJSON(&project); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	project.ID = id
	if err := h.protocol.UpdateProject(c.Request.Context(), userID(c), &project); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// DeleteProject deletes one project with a restorable undo window
func (h *Handler) DeleteProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.protocol.DeleteProjects(c.Request.Context(), userID(c), []uuid.UUID{id}, nil)
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

// BatchDeleteProjects deletes projects per item, reporting partial failure
func (h *Handler) BatchDeleteProjects(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("ids", err.Error()))
		return
	}
	result, err := h.protocol.DeleteProjects(c.Request.Context(), userID(c), req.IDs, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchResponse(result))
}

// UndoProjects restores the pending project deletion
func (h *Handler) UndoProjects(c *gin.Context) {
	restored, err := h.protocol.UndoProjects(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}
