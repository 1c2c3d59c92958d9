// Package api - Router setup
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aethra/compass/internal/metrics"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.Default()

	// CORS configuration - credentials require explicit origins, not *
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Unauthenticated surface
	r.GET("/api/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/webhooks/stripe", h.StripeWebhook)

	// ==========================================================================
	// AUTH API - Authentication endpoints (no auth required)
	// ==========================================================================
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", h.Register)
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/refresh", h.RefreshToken)
	}

	authProtected := r.Group("/auth")
	authProtected.Use(h.AuthMiddleware())
	{
		authProtected.GET("/me", h.Me)
	}

	// ==========================================================================
	// APP API - Tenant-scoped resources, bearer JWT required
	// ==========================================================================
	api := r.Group("/api")
	api.Use(h.AuthMiddleware())
	{
		// Clients
		api.GET("/clients", h.ListClients)
		api.POST("/clients", h.CreateClient)
		api.GET("/clients/:id", h.GetClient)
		api.PUT("/clients/:id", h.UpdateClient)
		api.DELETE("/clients/:id", h.DeleteClient)
		api.POST("/clients/batch-delete", h.BatchDeleteClients)
		api.POST("/clients/undo", h.UndoClients)

		// Projects
		api.GET("/projects", h.ListProjects)
		api.POST("/projects", h.CreateProject)
		api.GET("/projects/:id", h.GetProject)
		api.PUT("/projects/:id", h.UpdateProject)
		api.DELETE("/projects/:id", h.DeleteProject)
		api.POST("/projects/batch-delete", h.BatchDeleteProjects)
		api.POST("/projects/undo", h.UndoProjects)

		// Invoices
		api.GET("/invoices", h.ListInvoices)
		api.POST("/invoices", h.CreateInvoice)
		api.GET("/invoices/:id", h.GetInvoice)
		api.PUT("/invoices/:id", h.UpdateInvoice)
		api.DELETE("/invoices/:id", h.DeleteInvoice)
		api.POST("/invoices/batch-delete", h.BatchDeleteInvoices)
		api.POST("/invoices/undo", h.UndoInvoices)
		api.POST("/invoices/:id/send", h.SendInvoice)
		api.GET("/invoices/:id/pdf", h.DownloadInvoicePDF)

		// Pipeline
		api.GET("/pipeline/board", h.PipelineBoard)
		api.GET("/pipeline/metrics", h.PipelineMetrics)
		api.GET("/pipeline/stages", h.PipelineStages)
		api.POST("/pipeline/projects/:id/move", h.MoveStage)

		// Usage and subscription
		api.GET("/usage", h.Usage)
		api.GET("/subscription", h.Subscription)
	}

	return r
}
