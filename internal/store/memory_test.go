package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
)

func str(s string) *string { return &s }

func TestInsertClientEmailUniquePerTenant(t *testing.T) {
	mem := NewMemory()
	tenantA, tenantB := uuid.New(), uuid.New()

	require.NoError(t, mem.InsertClient(context.Background(), &models.Client{
		UserID: tenantA, Name: "Acme", Email: str("billing@acme.example"),
	}))

	// Another tenant may record the same address.
	require.NoError(t, mem.InsertClient(context.Background(), &models.Client{
		UserID: tenantB, Name: "Acme Too", Email: str("billing@acme.example"),
	}))

	// The same tenant may not.
	err := mem.InsertClient(context.Background(), &models.Client{
		UserID: tenantA, Name: "Acme Again", Email: str("billing@acme.example"),
	})

	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
}

func TestInsertInvoiceNumberUniquePerTenant(t *testing.T) {
	mem := NewMemory()
	tenantA, tenantB := uuid.New(), uuid.New()

	require.NoError(t, mem.InsertInvoice(context.Background(), &models.Invoice{
		UserID: tenantA, InvoiceNumber: "INV-001",
	}))

	require.NoError(t, mem.InsertInvoice(context.Background(), &models.Invoice{
		UserID: tenantB, InvoiceNumber: "INV-001",
	}))

	err := mem.InsertInvoice(context.Background(), &models.Invoice{
		UserID: tenantA, InvoiceNumber: "INV-001",
	})

	var conflict *errors.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "invoice_number", conflict.Field)
}
