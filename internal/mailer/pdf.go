package mailer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/aethra/compass/internal/models"
)

// RenderInvoicePDF renders an invoice to a PDF document.
func RenderInvoicePDF(invoice *models.Invoice, user *models.User) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(100, 12, "INVOICE")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 12, invoice.InvoiceNumber, "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, senderName(user))
	pdf.Ln(10)

	// Parties and dates
	pdf.SetFont("Helvetica", "", 10)
	if invoice.Client != nil {
		pdf.Cell(95, 6, "Billed to: "+invoice.Client.Name)
	} else {
		pdf.Cell(95, 6, "")
	}
	pdf.CellFormat(0, 6, "Issue date: "+invoice.IssueDate.Format("2006-01-02"), "", 1, "R", false, 0, "")
	if invoice.Client != nil && invoice.Client.Email != nil {
		pdf.Cell(95, 6, *invoice.Client.Email)
	} else {
		pdf.Cell(95, 6, "")
	}
	pdf.CellFormat(0, 6, "Due date: "+invoice.DueDate.Format("2006-01-02"), "", 1, "R", false, 0, "")
	pdf.Ln(8)

	// Item table
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(95, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 8, "Rate", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range invoice.Items {
		pdf.CellFormat(95, 8, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 8, trimFloat(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 8, money(invoice.Currency, item.Rate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 8, money(invoice.Currency, item.Amount), "1", 1, "R", false, 0, "")
	}

	// Totals
	pdf.Ln(4)
	pdf.CellFormat(150, 7, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, money(invoice.Currency, invoice.Amount), "", 1, "R", false, 0, "")
	if invoice.TaxAmount > 0 {
		pdf.CellFormat(150, 7, fmt.Sprintf("Tax (%.1f%%)", invoice.TaxRate*100), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, money(invoice.Currency, invoice.TaxAmount), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(150, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 8, money(invoice.Currency, invoice.TotalAmount), "", 1, "R", false, 0, "")

	if invoice.Notes != nil && *invoice.Notes != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, *invoice.Notes, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(currency string, amount float64) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
