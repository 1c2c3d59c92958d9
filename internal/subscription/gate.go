package subscription

import (
	"context"
	stderrors "errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/billing"
	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
)

// Decision is the tri-state outcome shared by the gate and the usage
// ledger. Unknown means no data has loaded yet; callers surface it
// permissively, and the authoritative check happens server-side on write.
type Decision string

const (
	Unknown Decision = "unknown"
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
)

// Permissive reports whether the decision should not block the caller.
func (d Decision) Permissive() bool {
	return d != Denied
}

// SnapshotTTL is how long a resolved subscription snapshot stays fresh.
const SnapshotTTL = 2 * time.Minute

// Statuses under which the profile's plan is honored as-is.
var activeStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
}

// Snapshot is one tenant's resolved subscription state.
type Snapshot struct {
	Plan      Plan
	Profile   models.Profile
	FetchedAt time.Time
}

func (s Snapshot) stale(now time.Time) bool {
	return now.Sub(s.FetchedAt) >= SnapshotTTL
}

// Gate resolves the effective plan per tenant, caching snapshots and
// reconciling with the billing provider only when the local record is
// incomplete or the provider rejects our credentials.
type Gate struct {
	store    store.Store
	provider billing.Provider
	clk      clock.Clock

	mu        sync.Mutex
	snapshots map[uuid.UUID]Snapshot

	// onRefetch is invoked after every forced refetch so the usage
	// ledger can drop its own cache in step.
	onRefetch func(ctx context.Context, userID uuid.UUID)
}

// NewGate creates a subscription gate.
func NewGate(st store.Store, provider billing.Provider, clk clock.Clock) *Gate {
	return &Gate{
		store:     st,
		provider:  provider,
		clk:       clk,
		snapshots: map[uuid.UUID]Snapshot{},
	}
}

// SetRefetchHook registers the callback fired after forced refetches.
func (g *Gate) SetRefetchHook(hook func(ctx context.Context, userID uuid.UUID)) {
	g.onRefetch = hook
}

// HasAccess answers from the last snapshot without blocking. Before the
// first load the answer is Unknown, which callers treat as allowed.
func (g *Gate) HasAccess(userID uuid.UUID, feature string) Decision {
	g.mu.Lock()
	snap, ok := g.snapshots[userID]
	g.mu.Unlock()
	if !ok {
		return Unknown
	}
	if snap.Plan.Features[feature] {
		return Allowed
	}
	return Denied
}

// EffectivePlan resolves the tenant's plan, honoring the snapshot cache.
func (g *Gate) EffectivePlan(ctx context.Context, userID uuid.UUID) (Plan, error) {
	snap, err := g.Snapshot(ctx, userID, false)
	if err != nil {
		return Plan{}, err
	}
	return snap.Plan, nil
}

// Refetch bypasses the staleness window, re-resolves the snapshot, and
// notifies the usage ledger.
func (g *Gate) Refetch(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	snap, err := g.Snapshot(ctx, userID, true)
	if err != nil {
		return Snapshot{}, err
	}
	if g.onRefetch != nil {
		g.onRefetch(ctx, userID)
	}
	return snap, nil
}

// Invalidate drops a tenant's cached snapshot so the next read
// re-resolves. The provider webhook calls this after writing the profile.
func (g *Gate) Invalidate(userID uuid.UUID) {
	g.mu.Lock()
	delete(g.snapshots, userID)
	g.mu.Unlock()
}

// Snapshot returns the tenant's subscription snapshot, resolving it when
// absent or stale. force bypasses the staleness window.
func (g *Gate) Snapshot(ctx context.Context, userID uuid.UUID, force bool) (Snapshot, error) {
	now := g.clk.Now()

	g.mu.Lock()
	snap, ok := g.snapshots[userID]
	g.mu.Unlock()
	if ok && !force && !snap.stale(now) {
		return snap, nil
	}

	profile, err := g.resolveProfile(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	snap = Snapshot{
		Plan:      effectivePlan(profile),
		Profile:   *profile,
		FetchedAt: g.clk.Now(),
	}
	g.mu.Lock()
	g.snapshots[userID] = snap
	g.mu.Unlock()
	return snap, nil
}

// resolveProfile loads the local record and reconciles it with the
// provider when it is incomplete: a customer id without a subscription id
// on a paid plan means a checkout completed but the webhook never landed.
func (g *Gate) resolveProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := g.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !needsReconcile(profile) {
		return profile, nil
	}

	reconciled, err := g.reconcile(ctx, profile)
	if err == nil {
		return reconciled, nil
	}

	var authErr *errors.ProviderAuthError
	if !stderrors.As(err, &authErr) {
		return nil, err
	}

	// A 401 means our record of the customer is not trustworthy either.
	// Downgrade locally, then give the provider one more chance.
	log.Printf("subscription: provider auth failure for user %s, downgrading to free before retry", userID)
	profile.PlanID = PlanFree
	profile.ProviderSubscriptionID = nil
	profile.SubscriptionStatus = "active"
	if err := g.store.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}

	reconciled, err = g.reconcile(ctx, profile)
	if err != nil {
		log.Printf("subscription: reconcile retry failed for user %s: %v", userID, err)
		return profile, nil
	}
	return reconciled, nil
}

func needsReconcile(p *models.Profile) bool {
	return p.ProviderCustomerID != nil && *p.ProviderCustomerID != "" &&
		(p.ProviderSubscriptionID == nil || *p.ProviderSubscriptionID == "") &&
		p.PlanID != PlanFree
}

func (g *Gate) reconcile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	if !needsReconcile(profile) {
		return profile, nil
	}

	subscriptionID, err := g.provider.ResolveSubscription(ctx, *profile.ProviderCustomerID)
	if err != nil {
		return nil, err
	}
	if subscriptionID == "" {
		// No subscription at the provider: the paid plan id is stale.
		profile.PlanID = PlanFree
		profile.SubscriptionStatus = "active"
		if err := g.store.UpdateProfile(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}

	details, err := g.provider.SubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	profile.ProviderSubscriptionID = &details.SubscriptionID
	profile.SubscriptionStatus = details.Status
	if details.PlanID != "" {
		profile.PlanID = details.PlanID
	}
	if !details.CurrentPeriodEnd.IsZero() {
		periodEnd := details.CurrentPeriodEnd
		profile.CurrentPeriodEnd = &periodEnd
	}
	if err := g.store.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// effectivePlan maps a profile onto the catalog: a paid plan counts only
// while the subscription is active or trialing.
func effectivePlan(p *models.Profile) Plan {
	if !activeStatuses[p.SubscriptionStatus] {
		return FreePlan()
	}
	return PlanByID(p.PlanID)
}
