package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aethra/compass/internal/errors"
)

type moveStageRequest struct {
	Stage       string `json:"stage" binding:"required"`
	Probability *int   `json:"probability"`
}

// PipelineBoard returns the Kanban columns for the tenant
func (h *Handler) PipelineBoard(c *gin.Context) {
	columns, err := h.pipeline.Board(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns})
}

// PipelineMetrics returns the derived pipeline numbers
func (h *Handler) PipelineMetrics(c *gin.Context) {
	metrics, err := h.pipeline.Metrics(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

// MoveStage moves an opportunity to another stage
func (h *Handler) MoveStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req moveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("stage", err.Error()))
		return
	}
	if req.Probability != nil && (*req.Probability < 0 || *req.Probability > 100) {
		respondError(c, errors.NewValidationError("probability", "probability must be between 0 and 100"))
		return
	}
	project, err := h.pipeline.MoveStage(c.Request.Context(), userID(c), id, req.Stage, req.Probability)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// PipelineStages returns the configured board columns
func (h *Handler) PipelineStages(c *gin.Context) {
	stages, err := h.store.ListPipelineStages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stages": stages})
}
