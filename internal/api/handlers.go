// Package api contains the HTTP API handlers for Compass
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aethra/compass/internal/auth"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/mailer"
	"github.com/aethra/compass/internal/mutation"
	"github.com/aethra/compass/internal/pipeline"
	"github.com/aethra/compass/internal/store"
	"github.com/aethra/compass/internal/subscription"
	"github.com/aethra/compass/internal/usage"
)

// Handler contains all API handlers
type Handler struct {
	store         store.Store
	protocol      *mutation.Protocol
	ledger        *usage.Ledger
	gate          *subscription.Gate
	pipeline      *pipeline.Service
	mail          *mailer.Service
	jwt           *auth.JWTService
	webhookSecret string
}

// NewHandler creates a new API handler
func NewHandler(
	st store.Store,
	protocol *mutation.Protocol,
	ledger *usage.Ledger,
	gate *subscription.Gate,
	pipelineSvc *pipeline.Service,
	mail *mailer.Service,
	jwtService *auth.JWTService,
	webhookSecret string,
) *Handler {
	return &Handler{
		store:         st,
		protocol:      protocol,
		ledger:        ledger,
		gate:          gate,
		pipeline:      pipelineSvc,
		mail:          mail,
		jwt:           jwtService,
		webhookSecret: webhookSecret,
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// AuthMiddleware validates the bearer token and stores the user id
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(c, errors.NewUnauthorizedError(""))
			c.Abort()
			return
		}

		claims, err := h.jwt.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(c, errors.NewUnauthorizedError("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}

// userID reads the authenticated user id set by AuthMiddleware
func userID(c *gin.Context) uuid.UUID {
	return c.MustGet("user_id").(uuid.UUID)
}

// parseID parses a path id parameter
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, errors.NewValidationError(name, "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps any error onto its HTTP status and body
func respondError(c *gin.Context, err error) {
	status, body := errors.ToHTTPError(err)
	c.JSON(status, body)
}

// undoWindowSeconds reports the undo window for client display
func undoWindowSeconds() int {
	return int(mutation.UndoWindow / time.Second)
}

// batchResponse renders a batch result, naming failed ids with messages
func batchResponse(result *mutation.BatchResult) gin.H {
	failed := make([]gin.H, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, gin.H{"id": f.ID, "message": f.Err.Error()})
	}
	return gin.H{
		"deleted":             result.Deleted,
		"failed":              failed,
		"undo_window_seconds": undoWindowSeconds(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health is the liveness endpoint
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
