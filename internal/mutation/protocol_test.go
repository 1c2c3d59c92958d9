package mutation

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
	"github.com/aethra/compass/internal/subscription"
	"github.com/aethra/compass/internal/usage"
)

type fixedPlan struct {
	plan subscription.Plan
}

func (f *fixedPlan) EffectivePlan(context.Context, uuid.UUID) (subscription.Plan, error) {
	return f.plan, nil
}

func newProtocol(t *testing.T, plan subscription.Plan) (*Protocol, *store.Memory, *clock.Fake) {
	t.Helper()
	mem := store.NewMemory()
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	ledger := usage.NewLedger(mem, &fixedPlan{plan: plan}, clk)
	return NewProtocol(mem, ledger, clk), mem, clk
}

func proPlan() subscription.Plan {
	return subscription.PlanByID(subscription.PlanPro)
}

func ctxb() context.Context { return context.Background() }

// =============================================================================
// CREATE
// =============================================================================

func TestCreateClientValidationBeforeStore(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	err := p.CreateClient(ctxb(), userID, &models.Client{Name: "   "})

	var vErr *errors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)

	clients, err := mem.ListClients(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestCreateInvoiceRejectedOnFreePlan(t *testing.T) {
	p, mem, _ := newProtocol(t, subscription.FreePlan())
	userID := uuid.New()

	err := p.CreateInvoice(ctxb(), userID, &models.Invoice{InvoiceNumber: "INV-001"})

	var limitErr *errors.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "invoices", limitErr.Kind)

	invoices, err := mem.ListInvoices(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestCreateClientAtLimit(t *testing.T) {
	p, _, _ := newProtocol(t, subscription.FreePlan())
	userID := uuid.New()

	// Free allows 10 clients.
	for i := 0; i < 10; i++ {
		require.NoError(t, p.CreateClient(ctxb(), userID, &models.Client{Name: "Client"}))
	}

	err := p.CreateClient(ctxb(), userID, &models.Client{Name: "One too many"})

	var limitErr *errors.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
}

func TestCreateInvoiceRecomputesTotals(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	inv := &models.Invoice{
		InvoiceNumber: "INV-001",
		TaxRate:       0.2,
		TotalAmount:   123456, // client-sent totals are ignored
		Items: []models.InvoiceItem{
			{Description: "Work", Quantity: 2, Rate: 500},
		},
	}
	require.NoError(t, p.CreateInvoice(ctxb(), userID, inv))

	stored, err := mem.GetInvoice(ctxb(), userID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, stored.Amount)
	assert.InDelta(t, 200.0, stored.TaxAmount, 1e-9)
	assert.InDelta(t, 1200.0, stored.TotalAmount, 1e-9)
}

func TestCreateProjectInPipelineGetsLeadStage(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	project := &models.Project{Name: "Deal", Status: models.ProjectStatusPipeline}
	require.NoError(t, p.CreateProject(ctxb(), userID, project))

	stored, err := mem.GetProject(ctxb(), userID, project.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PipelineStage)
	assert.Equal(t, models.StageLead, *stored.PipelineStage)
	assert.Equal(t, models.DefaultDealProbability, *stored.DealProbability)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateProjectEnteringPipelineResetsStage(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	// Stale stage values left on a non-pipeline row must not survive entry.
	stage := models.StageWon
	probability := 90
	project := &models.Project{
		UserID:          userID,
		Name:            "Deal",
		Status:          models.ProjectStatusActive,
		PipelineStage:   &stage,
		DealProbability: &probability,
	}
	require.NoError(t, mem.InsertProject(ctxb(), project))

	project.Status = models.ProjectStatusPipeline
	require.NoError(t, p.UpdateProject(ctxb(), userID, project))

	stored, err := mem.GetProject(ctxb(), userID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageLead, *stored.PipelineStage)
	assert.Equal(t, models.DefaultDealProbability, *stored.DealProbability)
}

func TestUpdateProjectLeavingPipelineClearsStage(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	project := &models.Project{Name: "Deal", Status: models.ProjectStatusPipeline}
	require.NoError(t, p.CreateProject(ctxb(), userID, project))

	project.Status = models.ProjectStatusCompleted
	require.NoError(t, p.UpdateProject(ctxb(), userID, project))

	stored, err := mem.GetProject(ctxb(), userID, project.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PipelineStage)
	assert.Nil(t, stored.DealProbability)
}

// =============================================================================
// DELETE AND UNDO
// =============================================================================

func seedClientWithDependents(t *testing.T, mem *store.Memory, userID uuid.UUID) (client models.Client, projectIDs, invoiceIDs []uuid.UUID) {
	t.Helper()
	client = models.Client{UserID: userID, Name: "Acme"}
	require.NoError(t, mem.InsertClient(ctxb(), &client))

	for i := 0; i < 2; i++ {
		cid := client.ID
		project := models.Project{UserID: userID, Name: "Project", Status: models.ProjectStatusActive, ClientID: &cid}
		require.NoError(t, mem.InsertProject(ctxb(), &project))
		projectIDs = append(projectIDs, project.ID)
	}

	cid := client.ID
	invoice := models.Invoice{UserID: userID, InvoiceNumber: "INV-9", Status: models.InvoiceStatusDraft, ClientID: &cid}
	require.NoError(t, mem.InsertInvoice(ctxb(), &invoice))
	invoiceIDs = append(invoiceIDs, invoice.ID)
	return client, projectIDs, invoiceIDs
}

func TestDeleteClientThenUndoRelinksDependents(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()
	client, projectIDs, invoiceIDs := seedClientWithDependents(t, mem, userID)

	result, err := p.DeleteClients(ctxb(), userID, []uuid.UUID{client.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{client.ID}, result.Deleted)
	require.Empty(t, result.Failed)

	// Dependents survive the delete with their reference cleared.
	for _, id := range projectIDs {
		project, err := mem.GetProject(ctxb(), userID, id)
		require.NoError(t, err)
		assert.Nil(t, project.ClientID)
	}

	restored, err := p.UndoClients(ctxb(), userID)
	require.NoError(t, err)
	require.True(t, restored)

	clients, err := mem.ListClients(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	newID := clients[0].ID
	assert.NotEqual(t, client.ID, newID)
	assert.Equal(t, "Acme", clients[0].Name)

	// Dependents keep their own ids and point at the new client.
	for _, id := range projectIDs {
		project, err := mem.GetProject(ctxb(), userID, id)
		require.NoError(t, err)
		require.NotNil(t, project.ClientID)
		assert.Equal(t, newID, *project.ClientID)
	}
	for _, id := range invoiceIDs {
		invoice, err := mem.GetInvoice(ctxb(), userID, id)
		require.NoError(t, err)
		require.NotNil(t, invoice.ClientID)
		assert.Equal(t, newID, *invoice.ClientID)
	}
}

func TestSecondDeleteReplacesUndoWindow(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	first := models.Client{UserID: userID, Name: "First"}
	second := models.Client{UserID: userID, Name: "Second"}
	require.NoError(t, mem.InsertClient(ctxb(), &first))
	require.NoError(t, mem.InsertClient(ctxb(), &second))

	_, err := p.DeleteClients(ctxb(), userID, []uuid.UUID{first.ID}, nil)
	require.NoError(t, err)
	_, err = p.DeleteClients(ctxb(), userID, []uuid.UUID{second.ID}, nil)
	require.NoError(t, err)

	restored, err := p.UndoClients(ctxb(), userID)
	require.NoError(t, err)
	require.True(t, restored)

	// Only the second delete was restorable; the first stays deleted.
	clients, err := mem.ListClients(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Second", clients[0].Name)

	// The window is consumed; a second undo is a no-op.
	restored, err = p.UndoClients(ctxb(), userID)
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestUndoAfterWindowExpiresIsNoOp(t *testing.T) {
	p, mem, clk := newProtocol(t, proPlan())
	userID := uuid.New()

	client := models.Client{UserID: userID, Name: "Gone"}
	require.NoError(t, mem.InsertClient(ctxb(), &client))

	_, err := p.DeleteClients(ctxb(), userID, []uuid.UUID{client.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.PendingUndoCount(userID, models.KindClients))

	clk.Advance(UndoWindow + time.Second)
	assert.Zero(t, p.PendingUndoCount(userID, models.KindClients))

	restored, err := p.UndoClients(ctxb(), userID)
	require.NoError(t, err)
	assert.False(t, restored)

	clients, err := mem.ListClients(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestUndoSlotsPerKindAreIndependent(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	client := models.Client{UserID: userID, Name: "Acme"}
	project := models.Project{UserID: userID, Name: "Build", Status: models.ProjectStatusActive}
	require.NoError(t, mem.InsertClient(ctxb(), &client))
	require.NoError(t, mem.InsertProject(ctxb(), &project))

	_, err := p.DeleteClients(ctxb(), userID, []uuid.UUID{client.ID}, nil)
	require.NoError(t, err)
	_, err = p.DeleteProjects(ctxb(), userID, []uuid.UUID{project.ID}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, p.PendingUndoCount(userID, models.KindClients))
	assert.Equal(t, 1, p.PendingUndoCount(userID, models.KindProjects))

	restored, err := p.UndoProjects(ctxb(), userID)
	require.NoError(t, err)
	assert.True(t, restored)

	restored, err = p.UndoClients(ctxb(), userID)
	require.NoError(t, err)
	assert.True(t, restored)
}

func TestUndoInvoiceRestoresItems(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	inv := &models.Invoice{
		InvoiceNumber: "INV-7",
		Items: []models.InvoiceItem{
			{Description: "Design", Quantity: 1, Rate: 900},
			{Description: "Build", Quantity: 10, Rate: 100},
		},
	}
	require.NoError(t, p.CreateInvoice(ctxb(), userID, inv))

	_, err := p.DeleteInvoices(ctxb(), userID, []uuid.UUID{inv.ID}, nil)
	require.NoError(t, err)

	restored, err := p.UndoInvoices(ctxb(), userID)
	require.NoError(t, err)
	require.True(t, restored)

	invoices, err := mem.ListInvoices(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.NotEqual(t, inv.ID, invoices[0].ID)
	require.Len(t, invoices[0].Items, 2)
	assert.InDelta(t, 1900.0, invoices[0].Amount, 1e-9)
}

// =============================================================================
// BATCH
// =============================================================================

func TestBatchDeletePartialFailure(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		project := models.Project{UserID: userID, Name: "P", Status: models.ProjectStatusActive}
		require.NoError(t, mem.InsertProject(ctxb(), &project))
		ids = append(ids, project.ID)
	}
	mem.FailDeleteProject[ids[1]] = stderrors.New("deadlock detected")

	var progressCalls int
	result, err := p.DeleteProjects(ctxb(), userID, ids, func(done, total int) {
		progressCalls++
		assert.Equal(t, 3, total)
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{ids[0], ids[2]}, result.Deleted)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, ids[1], result.Failed[0].ID)
	// Batches of 3+ report every item.
	assert.Equal(t, 3, progressCalls)

	// Undo covers only the deleted subset; the failed item is untouched.
	restored, err := p.UndoProjects(ctxb(), userID)
	require.NoError(t, err)
	require.True(t, restored)

	projects, err := mem.ListProjects(ctxb(), userID, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, projects, 3)
}

func TestSmallBatchSuppressesEarlyProgress(t *testing.T) {
	p, mem, _ := newProtocol(t, proPlan())
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		project := models.Project{UserID: userID, Name: "P", Status: models.ProjectStatusActive}
		require.NoError(t, mem.InsertProject(ctxb(), &project))
		ids = append(ids, project.ID)
	}

	var progressCalls int
	_, err := p.DeleteProjects(ctxb(), userID, ids, func(done, total int) { progressCalls++ })
	require.NoError(t, err)

	// Two items finish under a second: no progress noise.
	assert.Zero(t, progressCalls)
}

func TestSmallBatchReportsAfterDelay(t *testing.T) {
	p, mem, clk := newProtocol(t, proPlan())
	userID := uuid.New()

	project := models.Project{UserID: userID, Name: "Slow", Status: models.ProjectStatusActive}
	require.NoError(t, mem.InsertProject(ctxb(), &project))

	// Simulate a slow store by advancing the clock during the batch.
	var progressCalls int
	report := p.progressReporter(1, func(done, total int) { progressCalls++ })
	clk.Advance(2 * time.Second)
	report(1)

	assert.Equal(t, 1, progressCalls)
}
