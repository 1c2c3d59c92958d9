// Package mailer sends invoice emails through Resend and coordinates the
// status advance that follows a successful delivery.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/mutation"
	"github.com/aethra/compass/internal/store"
)

// Attachment is one file on an outgoing message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is an outgoing email.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers messages. The Resend client implements it; tests use a
// recording fake.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const resendEndpoint = "https://api.resend.com/emails"

// ResendSender delivers through the Resend REST API.
type ResendSender struct {
	apiKey string
	client *http.Client
}

// NewResendSender creates a Resend client with the given API key.
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	payload := resendRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.NewProviderAuthError("email provider rejected credentials")
		}
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

var _ Sender = (*ResendSender)(nil)

// SendRequest carries per-send overrides. Empty fields fall back to
// values derived from the invoice.
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Service renders and sends invoices. Delivery and the status advance are
// sequenced here: the invoice moves to sent only after the provider
// accepted the message.
type Service struct {
	sender   Sender
	store    store.Store
	protocol *mutation.Protocol
	from     string
}

// NewService creates the invoice mail service.
func NewService(sender Sender, st store.Store, protocol *mutation.Protocol, from string) *Service {
	return &Service{sender: sender, store: st, protocol: protocol, from: from}
}

// SendInvoice renders the invoice PDF, emails it, and advances the
// invoice to sent.
func (s *Service) SendInvoice(ctx context.Context, userID, invoiceID uuid.UUID, req SendRequest) (*models.Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	to := req.To
	if to == "" && invoice.Client != nil && invoice.Client.Email != nil {
		to = *invoice.Client.Email
	}
	if to == "" {
		return nil, errors.NewValidationError("to", "no recipient email address")
	}

	subject := req.Subject
	if subject == "" {
		subject = fmt.Sprintf("Invoice %s from %s", invoice.InvoiceNumber, senderName(user))
	}

	document, err := RenderInvoicePDF(invoice, user)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", invoice.InvoiceNumber, err)
	}

	msg := Message{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    invoiceEmailBody(invoice, user, req.Message),
		Attachments: []Attachment{
			{Filename: fmt.Sprintf("invoice-%s.pdf", invoice.InvoiceNumber), Content: document},
		},
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return nil, err
	}

	return s.protocol.MarkInvoiceSent(ctx, userID, invoiceID)
}

func senderName(user *models.User) string {
	if user.CompanyName != "" {
		return user.CompanyName
	}
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}

func invoiceEmailBody(invoice *models.Invoice, user *models.User, custom string) string {
	var b strings.Builder
	b.WriteString("<p>Hello,</p>")
	if custom != "" {
		b.WriteString("<p>" + custom + "</p>")
	}
	fmt.Fprintf(&b, "<p>Please find attached invoice <strong>%s</strong> for %s %.2f, due %s.</p>",
		invoice.InvoiceNumber, invoice.Currency, invoice.TotalAmount, invoice.DueDate.Format("January 2, 2006"))
	fmt.Fprintf(&b, "<p>Best regards,<br>%s</p>", senderName(user))
	return b.String()
}
