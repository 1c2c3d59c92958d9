// Package mutation implements the write protocol for clients, projects,
// and invoices: gated creates, delete with a restorable undo window, and
// batch deletes with partial failure.
package mutation

import (
	"context"
	stderrors "errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/metrics"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
	"github.com/aethra/compass/internal/usage"
)

// Batch progress is reported incrementally for 3+ items; smaller batches
// only report once they have been running for a second.
const (
	batchProgressThreshold  = 3
	smallBatchProgressDelay = time.Second
)

// ProgressFunc receives incremental batch progress.
type ProgressFunc func(done, total int)

// BatchFailure is one item that could not be deleted.
type BatchFailure struct {
	ID  uuid.UUID `json:"id"`
	Err error     `json:"-"`
}

// BatchResult separates the deleted subset from the failures. Only the
// deleted subset is restorable.
type BatchResult struct {
	Deleted []uuid.UUID    `json:"deleted"`
	Failed  []BatchFailure `json:"failed"`
}

// Protocol coordinates every mutation: validation, the ledger gate on
// creates, snapshot-before-delete, undo slots, and the forced ledger
// refresh that follows every completed operation.
type Protocol struct {
	store  store.Store
	ledger *usage.Ledger
	clk    clock.Clock

	mu      sync.Mutex
	pending map[undoKey]*PendingUndo
}

// NewProtocol creates the mutation protocol.
func NewProtocol(st store.Store, ledger *usage.Ledger, clk clock.Clock) *Protocol {
	return &Protocol{
		store:   st,
		ledger:  ledger,
		clk:     clk,
		pending: map[undoKey]*PendingUndo{},
	}
}

// refreshUsage force-refreshes the ledger after a completed mutation.
// Refresh failures never fail the mutation; the ledger self-heals on its
// next read.
func (p *Protocol) refreshUsage(ctx context.Context, userID uuid.UUID) {
	if err := p.ledger.Refresh(ctx, userID, true); err != nil {
		log.Printf("mutation: usage refresh for user %s failed: %v", userID, err)
	}
}

// gate authorizes a create against freshly loaded counts.
func (p *Protocol) gate(ctx context.Context, userID uuid.UUID, kind models.Kind) error {
	err := p.ledger.Authorize(ctx, userID, kind)
	if err == nil {
		return nil
	}
	var limitErr *errors.LimitExceededError
	if stderrors.As(err, &limitErr) {
		metrics.LimitRejections.WithLabelValues(string(kind)).Inc()
		metrics.Mutations.WithLabelValues(string(kind), "create", metrics.OutcomeRejected).Inc()
	}
	return err
}

func (p *Protocol) recordOutcome(kind models.Kind, op string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.Mutations.WithLabelValues(string(kind), op, outcome).Inc()
}

// =============================================================================
// CLIENTS
// =============================================================================

// CreateClient validates, gates, and inserts a client.
func (p *Protocol) CreateClient(ctx context.Context, userID uuid.UUID, client *models.Client) error {
	if err := validateClient(client); err != nil {
		return err
	}
	if err := p.gate(ctx, userID, models.KindClients); err != nil {
		return err
	}
	client.UserID = userID
	if client.Status == "" {
		client.Status = models.ClientStatusActive
	}
	err := p.store.InsertClient(ctx, client)
	p.recordOutcome(models.KindClients, "create", err)
	if err != nil {
		return err
	}
	p.refreshUsage(ctx, userID)
	return nil
}

// UpdateClient applies an ungated update. Status changes force a usage
// refresh; other fields leave the ledger alone.
func (p *Protocol) UpdateClient(ctx context.Context, userID uuid.UUID, client *models.Client) error {
	if err := validateClient(client); err != nil {
		return err
	}
	existing, err := p.store.GetClient(ctx, userID, client.ID)
	if err != nil {
		return err
	}
	client.UserID = userID
	client.CreatedAt = existing.CreatedAt
	err = p.store.UpdateClient(ctx, client)
	p.recordOutcome(models.KindClients, "update", err)
	if err != nil {
		return err
	}
	if existing.Status != client.Status {
		p.refreshUsage(ctx, userID)
	}
	return nil
}

// DeleteClients deletes clients one by one, snapshotting each row and its
// dependent ids before the delete. Failures are reported per item; only
// the deleted subset is restorable.
func (p *Protocol) DeleteClients(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, progress ProgressFunc) (*BatchResult, error) {
	result := &BatchResult{}
	var snapshots []clientSnapshot
	report := p.progressReporter(len(ids), progress)

	for i, id := range ids {
		snap, err := p.snapshotClient(ctx, userID, id)
		if err == nil {
			err = p.store.DeleteClient(ctx, userID, id)
		}
		p.recordOutcome(models.KindClients, "delete", err)
		if err != nil {
			log.Printf("mutation: delete client %s failed: %v", id, err)
			result.Failed = append(result.Failed, BatchFailure{ID: id, Err: err})
		} else {
			result.Deleted = append(result.Deleted, id)
			snapshots = append(snapshots, *snap)
		}
		report(i + 1)
	}

	if len(snapshots) > 0 {
		p.arm(&PendingUndo{
			userID:    userID,
			kind:      models.KindClients,
			clients:   snapshots,
			expiresAt: p.clk.Now().Add(UndoWindow),
		})
	}
	p.refreshUsage(ctx, userID)
	return result, nil
}

func (p *Protocol) snapshotClient(ctx context.Context, userID, id uuid.UUID) (*clientSnapshot, error) {
	client, err := p.store.GetClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	projectIDs, err := p.store.ProjectIDsByClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	invoiceIDs, err := p.store.InvoiceIDsByClient(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &clientSnapshot{client: *client, projectIDs: projectIDs, invoiceIDs: invoiceIDs}, nil
}

// UndoClients restores the pending client deletion, if one is armed and
// unexpired. A stale or absent window is a no-op.
func (p *Protocol) UndoClients(ctx context.Context, userID uuid.UUID) (bool, error) {
	pending := p.take(userID, models.KindClients)
	if pending == nil {
		return false, nil
	}
	for _, snap := range pending.clients {
		restored := snap.client
		restored.ID = uuid.New()
		if err := p.store.InsertClient(ctx, &restored); err != nil {
			return false, err
		}
		if err := p.store.RelinkProjectsToClient(ctx, userID, snap.projectIDs, restored.ID); err != nil {
			return false, err
		}
		if err := p.store.RelinkInvoicesToClient(ctx, userID, snap.invoiceIDs, restored.ID); err != nil {
			return false, err
		}
	}
	metrics.UndoRestores.WithLabelValues(string(models.KindClients)).Add(float64(len(pending.clients)))
	p.refreshUsage(ctx, userID)
	return true, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProject validates, gates, and inserts a project. Pipeline entry
// side effects apply: a project created in pipeline status starts at the
// lead stage with the default probability unless a stage is supplied.
func (p *Protocol) CreateProject(ctx context.Context, userID uuid.UUID, project *models.Project) error {
	if err := validateProject(project); err != nil {
		return err
	}
	if err := p.gate(ctx, userID, models.KindProjects); err != nil {
		return err
	}
	project.UserID = userID
	if project.Status == "" {
		project.Status = models.ProjectStatusActive
	}
	models.LifecycleOf(project).Apply(project)
	err := p.store.InsertProject(ctx, project)
	p.recordOutcome(models.KindProjects, "create", err)
	if err != nil {
		return err
	}
	p.refreshUsage(ctx, userID)
	return nil
}

// UpdateProject applies an ungated update with the pipeline transition
// rules: entering pipeline resets stage and probability regardless of any
// stale values on the row, leaving clears both.
func (p *Protocol) UpdateProject(ctx context.Context, userID uuid.UUID, project *models.Project) error {
	if err := validateProject(project); err != nil {
		return err
	}
	existing, err := p.store.GetProject(ctx, userID, project.ID)
	if err != nil {
		return err
	}
	project.UserID = userID
	project.CreatedAt = existing.CreatedAt

	entering := project.Status == models.ProjectStatusPipeline && existing.Status != models.ProjectStatusPipeline
	if entering {
		models.StandardLifecycle(models.ProjectStatusPipeline).Apply(project)
	} else {
		models.LifecycleOf(project).Apply(project)
	}

	err = p.store.UpdateProject(ctx, project)
	p.recordOutcome(models.KindProjects, "update", err)
	if err != nil {
		return err
	}
	if existing.Status != project.Status {
		p.refreshUsage(ctx, userID)
	}
	return nil
}

// DeleteProjects deletes projects per item with undo, like DeleteClients.
func (p *Protocol) DeleteProjects(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, progress ProgressFunc) (*BatchResult, error) {
	result := &BatchResult{}
	var snapshots []projectSnapshot
	report := p.progressReporter(len(ids), progress)

	for i, id := range ids {
		snap, err := p.snapshotProject(ctx, userID, id)
		if err == nil {
			err = p.store.DeleteProject(ctx, userID, id)
		}
		p.recordOutcome(models.KindProjects, "delete", err)
		if err != nil {
			log.Printf("mutation: delete project %s failed: %v", id, err)
			result.Failed = append(result.Failed, BatchFailure{ID: id, Err: err})
		} else {
			result.Deleted = append(result.Deleted, id)
			snapshots = append(snapshots, *snap)
		}
		report(i + 1)
	}

	if len(snapshots) > 0 {
		p.arm(&PendingUndo{
			userID:    userID,
			kind:      models.KindProjects,
			projects:  snapshots,
			expiresAt: p.clk.Now().Add(UndoWindow),
		})
	}
	p.refreshUsage(ctx, userID)
	return result, nil
}

func (p *Protocol) snapshotProject(ctx context.Context, userID, id uuid.UUID) (*projectSnapshot, error) {
	project, err := p.store.GetProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	invoiceIDs, err := p.store.InvoiceIDsByProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &projectSnapshot{project: *project, invoiceIDs: invoiceIDs}, nil
}

// UndoProjects restores the pending project deletion.
func (p *Protocol) UndoProjects(ctx context.Context, userID uuid.UUID) (bool, error) {
	pending := p.take(userID, models.KindProjects)
	if pending == nil {
		return false, nil
	}
	for _, snap := range pending.projects {
		restored := snap.project
		restored.ID = uuid.New()
		restored.Client = nil
		if err := p.store.InsertProject(ctx, &restored); err != nil {
			return false, err
		}
		if err := p.store.RelinkInvoicesToProject(ctx, userID, snap.invoiceIDs, restored.ID); err != nil {
			return false, err
		}
	}
	metrics.UndoRestores.WithLabelValues(string(models.KindProjects)).Add(float64(len(pending.projects)))
	p.refreshUsage(ctx, userID)
	return true, nil
}

// =============================================================================
// INVOICES
// =============================================================================

// CreateInvoice validates, gates, and inserts an invoice with its items.
// Totals are recomputed server-side; client-sent totals are ignored.
func (p *Protocol) CreateInvoice(ctx context.Context, userID uuid.UUID, invoice *models.Invoice) error {
	if err := validateInvoice(invoice); err != nil {
		return err
	}
	if err := p.gate(ctx, userID, models.KindInvoices); err != nil {
		return err
	}
	invoice.UserID = userID
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusDraft
	}
	if invoice.Currency == "" {
		invoice.Currency = "USD"
	}
	invoice.RecomputeTotals()
	err := p.store.InsertInvoice(ctx, invoice)
	p.recordOutcome(models.KindInvoices, "create", err)
	if err != nil {
		return err
	}
	p.refreshUsage(ctx, userID)
	return nil
}

// UpdateInvoice applies an ungated update, recomputing totals.
func (p *Protocol) UpdateInvoice(ctx context.Context, userID uuid.UUID, invoice *models.Invoice) error {
	if err := validateInvoice(invoice); err != nil {
		return err
	}
	existing, err := p.store.GetInvoice(ctx, userID, invoice.ID)
	if err != nil {
		return err
	}
	invoice.UserID = userID
	invoice.CreatedAt = existing.CreatedAt
	invoice.RecomputeTotals()
	err = p.store.UpdateInvoice(ctx, invoice)
	p.recordOutcome(models.KindInvoices, "update", err)
	if err != nil {
		return err
	}
	if existing.Status != invoice.Status {
		p.refreshUsage(ctx, userID)
	}
	return nil
}

// MarkInvoiceSent advances an invoice to sent after a successful email
// delivery.
func (p *Protocol) MarkInvoiceSent(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := p.store.GetInvoice(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusSent {
		return invoice, nil
	}
	invoice.Status = models.InvoiceStatusSent
	err = p.store.UpdateInvoice(ctx, invoice)
	p.recordOutcome(models.KindInvoices, "update", err)
	if err != nil {
		return nil, err
	}
	p.refreshUsage(ctx, userID)
	return invoice, nil
}

// DeleteInvoices deletes invoices per item with undo. The snapshot keeps
// the item lines; they are re-inserted with the invoice on restore.
func (p *Protocol) DeleteInvoices(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, progress ProgressFunc) (*BatchResult, error) {
	result := &BatchResult{}
	var snapshots []invoiceSnapshot
	report := p.progressReporter(len(ids), progress)

	for i, id := range ids {
		invoice, err := p.store.GetInvoice(ctx, userID, id)
		if err == nil {
			err = p.store.DeleteInvoice(ctx, userID, id)
		}
		p.recordOutcome(models.KindInvoices, "delete", err)
		if err != nil {
			log.Printf("mutation: delete invoice %s failed: %v", id, err)
			result.Failed = append(result.Failed, BatchFailure{ID: id, Err: err})
		} else {
			result.Deleted = append(result.Deleted, id)
			snapshots = append(snapshots, invoiceSnapshot{invoice: *invoice})
		}
		report(i + 1)
	}

	if len(snapshots) > 0 {
		p.arm(&PendingUndo{
			userID:    userID,
			kind:      models.KindInvoices,
			invoices:  snapshots,
			expiresAt: p.clk.Now().Add(UndoWindow),
		})
	}
	p.refreshUsage(ctx, userID)
	return result, nil
}

// UndoInvoices restores the pending invoice deletion.
func (p *Protocol) UndoInvoices(ctx context.Context, userID uuid.UUID) (bool, error) {
	pending := p.take(userID, models.KindInvoices)
	if pending == nil {
		return false, nil
	}
	for _, snap := range pending.invoices {
		restored := snap.invoice
		restored.ID = uuid.Nil
		restored.Client = nil
		restored.Project = nil
		items := make([]models.InvoiceItem, len(snap.invoice.Items))
		copy(items, snap.invoice.Items)
		for i := range items {
			items[i].ID = uuid.Nil
		}
		restored.Items = items
		if err := p.store.InsertInvoice(ctx, &restored); err != nil {
			return false, err
		}
	}
	metrics.UndoRestores.WithLabelValues(string(models.KindInvoices)).Add(float64(len(pending.invoices)))
	p.refreshUsage(ctx, userID)
	return true, nil
}

// =============================================================================
// UNDO SLOTS
// =============================================================================

// arm installs a pending undo, replacing any previous window of the same
// kind. Replacement invalidates: the old window's rows stay deleted.
func (p *Protocol) arm(pending *PendingUndo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[undoKey{userID: pending.userID, kind: pending.kind}] = pending
}

// take removes and returns the armed window for a kind, or nil when none
// is armed or the window has expired against the clock.
func (p *Protocol) take(userID uuid.UUID, kind models.Kind) *PendingUndo {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := undoKey{userID: userID, kind: kind}
	pending, ok := p.pending[key]
	if !ok {
		return nil
	}
	delete(p.pending, key)
	if pending.expired(p.clk.Now()) {
		return nil
	}
	return pending
}

// PendingUndoCount reports how many rows the armed window for a kind
// covers, zero when none is armed or it has expired.
func (p *Protocol) PendingUndoCount(userID uuid.UUID, kind models.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.pending[undoKey{userID: userID, kind: kind}]
	if !ok || pending.expired(p.clk.Now()) {
		return 0
	}
	return pending.count()
}

// progressReporter wraps the callback with the reporting policy: every
// item for batches of 3+, otherwise only once a second has passed.
func (p *Protocol) progressReporter(total int, progress ProgressFunc) func(done int) {
	if progress == nil {
		return func(int) {}
	}
	start := p.clk.Now()
	always := total >= batchProgressThreshold
	return func(done int) {
		if always || p.clk.Now().Sub(start) >= smallBatchProgressDelay {
			progress(done, total)
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateClient(client *models.Client) error {
	if strings.TrimSpace(client.Name) == "" {
		return errors.NewValidationError("name", "client name is required")
	}
	if client.Email != nil && *client.Email != "" && !strings.Contains(*client.Email, "@") {
		return errors.NewValidationError("email", "email address is not valid")
	}
	return nil
}

func validateProject(project *models.Project) error {
	if strings.TrimSpace(project.Name) == "" {
		return errors.NewValidationError("name", "project name is required")
	}
	if project.Budget < 0 {
		return errors.NewValidationError("budget", "budget cannot be negative")
	}
	return nil
}

func validateInvoice(invoice *models.Invoice) error {
	if strings.TrimSpace(invoice.InvoiceNumber) == "" {
		return errors.NewValidationError("invoice_number", "invoice number is required")
	}
	if invoice.TaxRate < 0 {
		return errors.NewValidationError("tax_rate", "tax rate cannot be negative")
	}
	for i := range invoice.Items {
		if strings.TrimSpace(invoice.Items[i].Description) == "" {
			return errors.NewValidationError("items", "every invoice item needs a description")
		}
	}
	return nil
}
