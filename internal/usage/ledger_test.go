package usage

import (
	"context"
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
)

// fixedPlan is a PlanSource pinned to one plan, counting calls.
type fixedPlan struct {
	plan  subscription.Plan
	calls int
}

func (f *fixedPlan) EffectivePlan(context.Context, uuid.UUID) (subscription.Plan, error) {
	f.calls++
	return f.plan, nil
}

func seedClients(t *testing.T, mem *store.Memory, userID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, mem.InsertClient(context.Background(), &models.Client{
			UserID: userID,
			Name:   "Client",
		}))
	}
}

func newLedger(plan subscription.Plan) (*Ledger, *store.Memory, *clock.Fake, *fixedPlan) {
	mem := store.NewMemory()
	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	plans := &fixedPlan{plan: plan}
	return NewLedger(mem, plans, clk), mem, clk, plans
}

func TestCountedLimitBoundary(t *testing.T) {
	plan := subscription.Plan{
		ID:   "starter",
		Name: "Starter",
		Limits: map[models.Kind]subscription.Limit{
			models.KindClients:  {Mode: subscription.LimitCounted, Count: 5},
			models.KindProjects: {Mode: subscription.LimitUnlimited},
			models.KindInvoices: {Mode: subscription.LimitNone},
		},
	}
	ledger, mem, _, _ := newLedger(plan)
	userID := uuid.New()

	// 4 of 5: one slot left.
	seedClients(t, mem, userID, 4)
	require.NoError(t, ledger.Refresh(context.Background(), userID, true))
	assert.Equal(t, subscription.Allowed, ledger.Decide(userID, models.KindClients))

	// 5 of 5: full.
	seedClients(t, mem, userID, 1)
	require.NoError(t, ledger.Refresh(context.Background(), userID, true))
	assert.Equal(t, subscription.Denied, ledger.Decide(userID, models.KindClients))
	assert.False(t, ledger.CanCreate(userID, models.KindClients))
	assert.Contains(t, ledger.BlockedReason(userID, models.KindClients), "limit of 5 clients")

	// Unlimited always allows, none never does.
	assert.Equal(t, subscription.Allowed, ledger.Decide(userID, models.KindProjects))
	assert.Equal(t, subscription.Denied, ledger.Decide(userID, models.KindInvoices))
	assert.Contains(t, ledger.BlockedReason(userID, models.KindInvoices), "not available on the Starter plan")
}

func TestDecideUnknownBeforeFirstLoad(t *testing.T) {
	ledger, _, _, _ := newLedger(subscription.FreePlan())
	userID := uuid.New()

	assert.Equal(t, subscription.Unknown, ledger.Decide(userID, models.KindClients))
	// Unknown maps to permissive for reads.
	assert.True(t, ledger.CanCreate(userID, models.KindClients))
}

func TestStalenessWindow(t *testing.T) {
	ledger, mem, clk, plans := newLedger(subscription.FreePlan())
	userID := uuid.New()

	_, err := ledger.Entries(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 1, plans.calls)

	seedClients(t, mem, userID, 3)

	// Within the window the cache answers.
	clk.Advance(TTL - time.Second)
	entries, err := ledger.Entries(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, entries[models.KindClients].Current)
	assert.Equal(t, 1, plans.calls)

	// Past the window it reloads.
	clk.Advance(2 * time.Second)
	entries, err = ledger.Entries(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, entries[models.KindClients].Current)
	assert.Equal(t, 2, plans.calls)
}

func TestForceBypassesWindow(t *testing.T) {
	ledger, mem, _, plans := newLedger(subscription.FreePlan())
	userID := uuid.New()

	require.NoError(t, ledger.Refresh(context.Background(), userID, false))
	seedClients(t, mem, userID, 2)

	require.NoError(t, ledger.Refresh(context.Background(), userID, true))
	assert.Equal(t, 2, plans.calls)

	entries, err := ledger.Entries(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, entries[models.KindClients].Current)
}

func TestAuthorizeChecksFreshCounts(t *testing.T) {
	ledger, mem, _, _ := newLedger(subscription.FreePlan())
	userID := uuid.New()

	// Cache says empty; the store fills up behind its back.
	require.NoError(t, ledger.Refresh(context.Background(), userID, true))
	seedClients(t, mem, userID, 10)

	err := ledger.Authorize(context.Background(), userID, models.KindClients)

	var limitErr *errors.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "clients", limitErr.Kind)
}

func TestAuthorizeDeniesDisabledKind(t *testing.T) {
	ledger, _, _, _ := newLedger(subscription.FreePlan())
	userID := uuid.New()

	err := ledger.Authorize(context.Background(), userID, models.KindInvoices)

	var limitErr *errors.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Contains(t, limitErr.Reason, "not available on the Free plan")
}

func TestInvalidateDropsCache(t *testing.T) {
	ledger, _, _, _ := newLedger(subscription.FreePlan())
	userID := uuid.New()

	require.NoError(t, ledger.Refresh(context.Background(), userID, false))
	require.Equal(t, subscription.Allowed, ledger.Decide(userID, models.KindClients))

	ledger.Invalidate(userID)
	assert.Equal(t, subscription.Unknown, ledger.Decide(userID, models.KindClients))
}
