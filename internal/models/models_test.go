package models

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Uniqueness is always per tenant: the composite indexes must name both
// the tenant column and the scoped column, or the migration degenerates
// into a global single-column constraint.
func TestUniqueIndexesAreTenantScoped(t *testing.T) {
	tests := []struct {
		name  string
		model interface{}
		field string
		index string
	}{
		{"client email tenant member", Client{}, "UserID", "uniqueIndex:idx_clients_user_email"},
		{"client email member", Client{}, "Email", "uniqueIndex:idx_clients_user_email"},
		{"invoice number tenant member", Invoice{}, "UserID", "uniqueIndex:idx_invoices_user_invoice_number"},
		{"invoice number member", Invoice{}, "InvoiceNumber", "uniqueIndex:idx_invoices_user_invoice_number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := reflect.TypeOf(tt.model).FieldByName(tt.field)
			require.True(t, ok)
			assert.Contains(t, f.Tag.Get("gorm"), tt.index)
		})
	}
}

func TestProjectPaymentPending(t *testing.T) {
	tests := []struct {
		name     string
		budget   float64
		received float64
		want     float64
	}{
		{"nothing received", 5000, 0, 5000},
		{"partially paid", 5000, 1500, 3500},
		{"fully paid", 5000, 5000, 0},
		{"overpaid clamps to zero", 5000, 6200, 0},
		{"zero budget", 0, 0, 0},
		{"zero budget with payment", 0, 250, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Project{Budget: tt.budget, PaymentReceived: tt.received}
			assert.Equal(t, tt.want, p.PaymentPending())
		})
	}
}

func TestInvoiceRecomputeTotals(t *testing.T) {
	inv := &Invoice{
		TaxRate: 0.10,
		Items: []InvoiceItem{
			{Description: "Design", Quantity: 10, Rate: 80},
			{Description: "Development", Quantity: 25, Rate: 120},
		},
	}

	inv.RecomputeTotals()

	assert.Equal(t, 800.0, inv.Items[0].Amount)
	assert.Equal(t, 3000.0, inv.Items[1].Amount)
	assert.Equal(t, 3800.0, inv.Amount)
	assert.InDelta(t, 380.0, inv.TaxAmount, 1e-9)
	assert.InDelta(t, inv.Amount+inv.TaxAmount, inv.TotalAmount, 1e-9)
}

func TestInvoiceRecomputeTotalsNoItems(t *testing.T) {
	inv := &Invoice{TaxRate: 0.24}
	inv.RecomputeTotals()

	assert.Zero(t, inv.Amount)
	assert.Zero(t, inv.TaxAmount)
	assert.Zero(t, inv.TotalAmount)
}

func TestLifecycleEnterPipelineSetsDefaults(t *testing.T) {
	p := &Project{Status: ProjectStatusActive}

	StandardLifecycle(ProjectStatusPipeline).Apply(p)

	require.NotNil(t, p.PipelineStage)
	require.NotNil(t, p.DealProbability)
	assert.Equal(t, ProjectStatusPipeline, p.Status)
	assert.Equal(t, StageLead, *p.PipelineStage)
	assert.Equal(t, DefaultDealProbability, *p.DealProbability)
}

func TestLifecycleLeavePipelineClearsStage(t *testing.T) {
	stage := StageDiscussion
	probability := 65
	p := &Project{
		Status:          ProjectStatusPipeline,
		PipelineStage:   &stage,
		DealProbability: &probability,
	}

	StandardLifecycle(ProjectStatusActive).Apply(p)

	assert.Equal(t, ProjectStatusActive, p.Status)
	assert.Nil(t, p.PipelineStage)
	assert.Nil(t, p.DealProbability)
}

func TestLifecycleEnterOverridesPriorValues(t *testing.T) {
	// Entering pipeline always resets to lead/10, whatever was stored.
	stage := StageWon
	probability := 90
	p := &Project{
		Status:          ProjectStatusCompleted,
		PipelineStage:   &stage,
		DealProbability: &probability,
	}

	StandardLifecycle(ProjectStatusPipeline).Apply(p)

	assert.Equal(t, StageLead, *p.PipelineStage)
	assert.Equal(t, DefaultDealProbability, *p.DealProbability)
}

func TestPipelineLifecycleClampsProbability(t *testing.T) {
	l := PipelineLifecycle(StagePitched, 140)
	got, ok := l.Probability()
	require.True(t, ok)
	assert.Equal(t, 100, got)

	l = PipelineLifecycle(StagePitched, -5)
	got, ok = l.Probability()
	require.True(t, ok)
	assert.Equal(t, 0, got)
}

func TestLifecycleOfNormalizesInconsistentRows(t *testing.T) {
	// A pipeline row missing its stage reads back as lead/10.
	p := &Project{Status: ProjectStatusPipeline}
	l := LifecycleOf(p)

	stage, ok := l.Stage()
	require.True(t, ok)
	assert.Equal(t, StageLead, stage)

	probability, ok := l.Probability()
	require.True(t, ok)
	assert.Equal(t, DefaultDealProbability, probability)

	// A non-pipeline row exposes neither field.
	p = &Project{Status: ProjectStatusOnHold}
	l = LifecycleOf(p)
	_, ok = l.Stage()
	assert.False(t, ok)
	_, ok = l.Probability()
	assert.False(t, ok)
}
