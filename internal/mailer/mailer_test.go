package mailer

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/mutation"
	"github.com/aethra/compass/internal/store"
	"github.com/aethra/compass/internal/subscription"
	"github.com/aethra/compass/internal/usage"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type proPlanSource struct{}

func (proPlanSource) EffectivePlan(context.Context, uuid.UUID) (subscription.Plan, error) {
	return subscription.PlanByID(subscription.PlanPro), nil
}

func seedInvoice(t *testing.T, mem *store.Memory, userID uuid.UUID) *models.Invoice {
	t.Helper()
	require.NoError(t, mem.InsertUser(context.Background(), &models.User{
		ID:          userID,
		Email:       "owner@studio.dev",
		CompanyName: "Studio",
	}))

	email := "billing@acme.example"
	client := models.Client{UserID: userID, Name: "Acme", Email: &email}
	require.NoError(t, mem.InsertClient(context.Background(), &client))

	cid := client.ID
	invoice := models.Invoice{
		UserID:        userID,
		ClientID:      &cid,
		InvoiceNumber: "INV-42",
		Status:        models.InvoiceStatusDraft,
		Currency:      "USD",
		IssueDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Items: []models.InvoiceItem{
			{Description: "Consulting", Quantity: 4, Rate: 250},
		},
	}
	invoice.RecomputeTotals()
	require.NoError(t, mem.InsertInvoice(context.Background(), &invoice))
	return &invoice
}

func newService(sender Sender) (*Service, *store.Memory) {
	mem := store.NewMemory()
	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	ledger := usage.NewLedger(mem, proPlanSource{}, clk)
	protocol := mutation.NewProtocol(mem, ledger, clk)
	return NewService(sender, mem, protocol, "billing@compass.dev"), mem
}

func TestSendInvoiceDeliversAndMarksSent(t *testing.T) {
	sender := &recordingSender{}
	svc, mem := newService(sender)
	userID := uuid.New()
	invoice := seedInvoice(t, mem, userID)

	updated, err := svc.SendInvoice(context.Background(), userID, invoice.ID, SendRequest{})

	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, updated.Status)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"billing@acme.example"}, msg.To)
	assert.Equal(t, "Invoice INV-42 from Studio", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "invoice-INV-42.pdf", msg.Attachments[0].Filename)
	// A rendered PDF starts with the format magic.
	assert.Equal(t, "%PDF", string(msg.Attachments[0].Content[:4]))

	stored, err := mem.GetInvoice(context.Background(), userID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, stored.Status)
}

func TestSendInvoiceOverrides(t *testing.T) {
	sender := &recordingSender{}
	svc, mem := newService(sender)
	userID := uuid.New()
	invoice := seedInvoice(t, mem, userID)

	_, err := svc.SendInvoice(context.Background(), userID, invoice.ID, SendRequest{
		To:      "someone@else.example",
		Subject: "Your invoice",
		Message: "Thanks for the quick turnaround!",
	})

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"someone@else.example"}, sender.sent[0].To)
	assert.Equal(t, "Your invoice", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTML, "Thanks for the quick turnaround!")
}

func TestSendInvoiceFailureLeavesStatus(t *testing.T) {
	sender := &recordingSender{err: stderrors.New("provider unavailable")}
	svc, mem := newService(sender)
	userID := uuid.New()
	invoice := seedInvoice(t, mem, userID)

	_, err := svc.SendInvoice(context.Background(), userID, invoice.ID, SendRequest{})
	require.Error(t, err)

	stored, err := mem.GetInvoice(context.Background(), userID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusDraft, stored.Status)
}

func TestSendInvoiceRequiresRecipient(t *testing.T) {
	sender := &recordingSender{}
	svc, mem := newService(sender)
	userID := uuid.New()

	require.NoError(t, mem.InsertUser(context.Background(), &models.User{ID: userID, Email: "o@s.dev"}))
	invoice := models.Invoice{UserID: userID, InvoiceNumber: "INV-1"}
	require.NoError(t, mem.InsertInvoice(context.Background(), &invoice))

	_, err := svc.SendInvoice(context.Background(), userID, invoice.ID, SendRequest{})
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}
