package mutation

import (
	"time"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/models"
)

// UndoWindow is how long a delete stays restorable.
const UndoWindow = 30 * time.Second

// clientSnapshot captures a deleted client and the ids of the dependents
// that survived it, so a restore can re-link them to the new row.
type clientSnapshot struct {
	client     models.Client
	projectIDs []uuid.UUID
	invoiceIDs []uuid.UUID
}

// projectSnapshot captures a deleted project and its surviving invoices.
type projectSnapshot struct {
	project    models.Project
	invoiceIDs []uuid.UUID
}

// invoiceSnapshot captures a deleted invoice with its item lines. Items
// die with the invoice, so there is nothing to re-link.
type invoiceSnapshot struct {
	invoice models.Invoice
}

// PendingUndo is one armed undo window. The protocol keeps at most one
// per kind and tenant; a newer delete of the same kind replaces it
// without executing it. Expiry is a comparison against the injected
// clock, not a timer: a slot past its ExpiresAt is simply inert.
type PendingUndo struct {
	userID    uuid.UUID
	kind      models.Kind
	clients   []clientSnapshot
	projects  []projectSnapshot
	invoices  []invoiceSnapshot
	expiresAt time.Time
}

func (u *PendingUndo) expired(now time.Time) bool {
	return !now.Before(u.expiresAt)
}

func (u *PendingUndo) count() int {
	return len(u.clients) + len(u.projects) + len(u.invoices)
}

type undoKey struct {
	userID uuid.UUID
	kind   models.Kind
}
