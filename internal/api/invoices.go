package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/mailer"
	"github.com/aethra/compass/internal/models"
)

// ListInvoices returns the tenant's invoices with their item lines
func (h *Handler) ListInvoices(c *gin.Context) {
	invoices, err := h.store.ListInvoices(c.Request.Context(), userID(c), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// GetInvoice returns one invoice
func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.store.GetInvoice(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice})
}

// CreateInvoice creates an invoice through the mutation protocol
func (h *Handler) CreateInvoice(c *gin.Context) {
	var invoice models.Invoice
	if err := c.ShouldBindJSON(&invoice); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	if err := h.protocol.CreateInvoice(c.Request.Context(), userID(c), &invoice); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice": invoice})
}

// UpdateInvoice updates an invoice, replacing its item lines
func (h *Handler) UpdateInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var invoice models.Invoice
	if err := c.ShouldBindJSON(&invoice); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	invoice.ID = id
	if err := h.protocol.UpdateInvoice(c.Request.Context(), userID(c), &invoice); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice})
}

// DeleteInvoice deletes one invoice with a restorable undo window
func (h *Handler) DeleteInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.protocol.DeleteInvoices(c.Request.Context(), userID(c), []uuid.UUID{id}, nil)
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

// BatchDeleteInvoices deletes invoices per item, reporting partial failure
func (h *Handler) BatchDeleteInvoices(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("ids", err.Error()))
		return
	}
	result, err := h.protocol.DeleteInvoices(c.Request.Context(), userID(c), req.IDs, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batchResponse(result))
}

// UndoInvoices restores the pending invoice deletion
func (h *Handler) UndoInvoices(c *gin.Context) {
	restored, err := h.protocol.UndoInvoices(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

// SendInvoice emails the invoice PDF and advances it to sent
func (h *Handler) SendInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req mailer.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}
	invoice, err := h.mail.SendInvoice(c.Request.Context(), userID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice})
}

// DownloadInvoicePDF renders the invoice document
func (h *Handler) DownloadInvoicePDF(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.store.GetInvoice(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	document, err := mailer.RenderInvoicePDF(invoice, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=invoice-"+invoice.InvoiceNumber+".pdf")
	c.Data(http.StatusOK, "application/pdf", document)
}
