package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/compass/internal/billing"
	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
)

// fakeProvider scripts provider responses per call.
type fakeProvider struct {
	resolveCalls int
	resolveErrs  []error
	subID        string
	details      *billing.Details
	detailsErr   error
}

func (f *fakeProvider) ResolveSubscription(_ context.Context, _ string) (string, error) {
	var err error
	if f.resolveCalls < len(f.resolveErrs) {
		err = f.resolveErrs[f.resolveCalls]
	}
	f.resolveCalls++
	if err != nil {
		return "", err
	}
	return f.subID, nil
}

func (f *fakeProvider) SubscriptionDetails(_ context.Context, _ string) (*billing.Details, error) {
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.details, nil
}

func str(s string) *string { return &s }

func seedGate(t *testing.T, profile models.Profile, provider billing.Provider) (*Gate, *store.Memory, *clock.Fake) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedProfile(profile)
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewGate(mem, provider, clk), mem, clk
}

func TestEffectivePlanFreeWithoutReconcile(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{}
	gate, _, _ := seedGate(t, models.Profile{UserID: userID, PlanID: PlanFree, SubscriptionStatus: "active"}, provider)

	plan, err := gate.EffectivePlan(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, PlanFree, plan.ID)
	assert.Zero(t, provider.resolveCalls)
}

func TestReconcileCompletesIncompleteRecord(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{
		subID: "sub_123",
		details: &billing.Details{
			SubscriptionID:   "sub_123",
			Status:           "active",
			PlanID:           PlanPro,
			CurrentPeriodEnd: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	gate, mem, _ := seedGate(t, models.Profile{
		UserID:             userID,
		PlanID:             PlanPro,
		SubscriptionStatus: "active",
		ProviderCustomerID: str("cus_42"),
	}, provider)

	plan, err := gate.EffectivePlan(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, PlanPro, plan.ID)

	stored, err := mem.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderSubscriptionID)
	assert.Equal(t, "sub_123", *stored.ProviderSubscriptionID)
}

func TestReconcileDowngradesWhenProviderHasNoSubscription(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{subID: ""}
	gate, mem, _ := seedGate(t, models.Profile{
		UserID:             userID,
		PlanID:             PlanPro,
		SubscriptionStatus: "active",
		ProviderCustomerID: str("cus_42"),
	}, provider)

	plan, err := gate.EffectivePlan(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, PlanFree, plan.ID)

	stored, err := mem.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, PlanFree, stored.PlanID)
}

func TestProviderAuthDowngradesThenRetriesOnce(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{
		resolveErrs: []error{errors.NewProviderAuthError("")},
		subID:       "sub_999",
	}
	gate, mem, _ := seedGate(t, models.Profile{
		UserID:             userID,
		PlanID:             PlanPro,
		SubscriptionStatus: "active",
		ProviderCustomerID: str("cus_42"),
	}, provider)

	plan, err := gate.EffectivePlan(context.Background(), userID)

	require.NoError(t, err)
	// The local record was downgraded before the retry; free plans never
	// reconcile, so the retry short-circuits and free wins.
	assert.Equal(t, PlanFree, plan.ID)
	assert.Equal(t, 1, provider.resolveCalls)

	stored, err := mem.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, PlanFree, stored.PlanID)
	assert.Nil(t, stored.ProviderSubscriptionID)
}

func TestSnapshotCachedWithinWindow(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{
		subID:   "sub_1",
		details: &billing.Details{SubscriptionID: "sub_1", Status: "active", PlanID: PlanPro},
	}
	gate, mem, clk := seedGate(t, models.Profile{
		UserID:             userID,
		PlanID:             PlanPro,
		SubscriptionStatus: "active",
		ProviderCustomerID: str("cus_42"),
	}, provider)

	_, err := gate.Snapshot(context.Background(), userID, false)
	require.NoError(t, err)
	require.Equal(t, 1, provider.resolveCalls)

	// Mark the record incomplete again; within the window the cached
	// snapshot answers and no resolve happens.
	stored, err := mem.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	stored.ProviderSubscriptionID = nil
	require.NoError(t, mem.UpdateProfile(context.Background(), stored))

	clk.Advance(SnapshotTTL - time.Second)
	_, err = gate.Snapshot(context.Background(), userID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.resolveCalls)

	// Past the window the snapshot is stale and resolution re-runs.
	clk.Advance(2 * time.Second)
	_, err = gate.Snapshot(context.Background(), userID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.resolveCalls)
}

func TestRefetchBypassesWindowAndNotifiesHook(t *testing.T) {
	userID := uuid.New()
	provider := &fakeProvider{}
	gate, _, _ := seedGate(t, models.Profile{UserID: userID, PlanID: PlanFree, SubscriptionStatus: "active"}, provider)

	var hookCalls int
	gate.SetRefetchHook(func(context.Context, uuid.UUID) { hookCalls++ })

	_, err := gate.Snapshot(context.Background(), userID, false)
	require.NoError(t, err)

	_, err = gate.Refetch(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, hookCalls)
}

func TestHasAccessPermissiveBeforeFirstLoad(t *testing.T) {
	userID := uuid.New()
	gate, _, _ := seedGate(t, models.Profile{UserID: userID, PlanID: PlanFree, SubscriptionStatus: "active"}, &fakeProvider{})

	decision := gate.HasAccess(userID, FeatureInvoicing)
	assert.Equal(t, Unknown, decision)
	assert.True(t, decision.Permissive())

	// After loading, the free plan denies invoicing.
	_, err := gate.Snapshot(context.Background(), userID, false)
	require.NoError(t, err)

	decision = gate.HasAccess(userID, FeatureInvoicing)
	assert.Equal(t, Denied, decision)
	assert.False(t, decision.Permissive())

	assert.Equal(t, Allowed, gate.HasAccess(userID, FeaturePipeline))
}

func TestLapsedSubscriptionFallsBackToFree(t *testing.T) {
	userID := uuid.New()
	sub := "sub_1"
	gate, _, _ := seedGate(t, models.Profile{
		UserID:                 userID,
		PlanID:                 PlanPro,
		SubscriptionStatus:     "past_due",
		ProviderCustomerID:     str("cus_42"),
		ProviderSubscriptionID: &sub,
	}, &fakeProvider{})

	plan, err := gate.EffectivePlan(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, PlanFree, plan.ID)
}
