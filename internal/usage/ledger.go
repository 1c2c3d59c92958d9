// Package usage tracks per-tenant resource counts against plan limits and
// answers whether a create is allowed.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/clock"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
	"github.com/aethra/compass/internal/subscription"
)

// TTL is how long a loaded ledger stays fresh. Mutations bypass it with a
// forced refresh; reads never hold counts older than this.
const TTL = 2 * time.Minute

// Entry is the ledger's view of one resource kind.
type Entry struct {
	Current   int                `json:"current"`
	Limit     subscription.Limit `json:"-"`
	CanCreate bool               `json:"can_create"`
}

// LimitLabel renders the limit the way clients display it.
func (e Entry) LimitLabel() string {
	switch e.Limit.Mode {
	case subscription.LimitUnlimited:
		return "unlimited"
	case subscription.LimitNone:
		return "none"
	default:
		return fmt.Sprintf("%d", e.Limit.Count)
	}
}

// PlanSource resolves a tenant's effective plan. The subscription gate
// implements it.
type PlanSource interface {
	EffectivePlan(ctx context.Context, userID uuid.UUID) (subscription.Plan, error)
}

type snapshot struct {
	entries   map[models.Kind]Entry
	planName  string
	fetchedAt time.Time
}

// isStale is the pure staleness predicate applied to cached ledgers.
func isStale(now, fetchedAt time.Time) bool {
	return now.Sub(fetchedAt) >= TTL
}

// Ledger caches per-tenant counts and decides creation eligibility.
type Ledger struct {
	store store.Store
	plans PlanSource
	clk   clock.Clock

	mu    sync.Mutex
	cache map[uuid.UUID]snapshot
}

// NewLedger creates a usage ledger.
func NewLedger(st store.Store, plans PlanSource, clk clock.Clock) *Ledger {
	return &Ledger{
		store: st,
		plans: plans,
		clk:   clk,
		cache: map[uuid.UUID]snapshot{},
	}
}

// Entries returns the tenant's ledger, loading it when absent or stale.
func (l *Ledger) Entries(ctx context.Context, userID uuid.UUID) (map[models.Kind]Entry, error) {
	snap, err := l.load(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return snap.entries, nil
}

// Refresh reloads the tenant's ledger. force bypasses the staleness
// window; every create, delete, and restore passes force=true.
func (l *Ledger) Refresh(ctx context.Context, userID uuid.UUID, force bool) error {
	_, err := l.load(ctx, userID, force)
	return err
}

// Decide answers from the cache without blocking. Before the first load
// the answer is Unknown; callers surface Unknown permissively and rely on
// Authorize in the create path for enforcement.
func (l *Ledger) Decide(userID uuid.UUID, kind models.Kind) subscription.Decision {
	l.mu.Lock()
	snap, ok := l.cache[userID]
	l.mu.Unlock()
	if !ok {
		return subscription.Unknown
	}
	entry, ok := snap.entries[kind]
	if !ok {
		return subscription.Unknown
	}
	if entry.CanCreate {
		return subscription.Allowed
	}
	return subscription.Denied
}

// CanCreate answers from the cache, mapping Unknown to permissive.
func (l *Ledger) CanCreate(userID uuid.UUID, kind models.Kind) bool {
	return l.Decide(userID, kind).Permissive()
}

// BlockedReason renders the denial message for a kind, or "" when the
// kind is not denied.
func (l *Ledger) BlockedReason(userID uuid.UUID, kind models.Kind) string {
	l.mu.Lock()
	snap, ok := l.cache[userID]
	l.mu.Unlock()
	if !ok {
		return ""
	}
	entry, ok := snap.entries[kind]
	if !ok || entry.CanCreate {
		return ""
	}
	return blockedReason(kind, entry, snap.planName)
}

// Authorize is the server-side gate in the create path. It always decides
// against freshly loaded counts, never the cache.
func (l *Ledger) Authorize(ctx context.Context, userID uuid.UUID, kind models.Kind) error {
	snap, err := l.load(ctx, userID, true)
	if err != nil {
		return err
	}
	entry, ok := snap.entries[kind]
	if !ok {
		return nil
	}
	if entry.CanCreate {
		return nil
	}
	return errors.NewLimitExceededError(string(kind), blockedReason(kind, entry, snap.planName))
}

// Invalidate drops the tenant's cached ledger so the next read reloads.
// The subscription gate calls this after a forced refetch.
func (l *Ledger) Invalidate(userID uuid.UUID) {
	l.mu.Lock()
	delete(l.cache, userID)
	l.mu.Unlock()
}

func (l *Ledger) load(ctx context.Context, userID uuid.UUID, force bool) (snapshot, error) {
	now := l.clk.Now()

	l.mu.Lock()
	snap, ok := l.cache[userID]
	l.mu.Unlock()
	if ok && !force && !isStale(now, snap.fetchedAt) {
		return snap, nil
	}

	plan, err := l.plans.EffectivePlan(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("resolve plan for usage ledger: %w", err)
	}
	counts, err := l.store.CountByKind(ctx, userID)
	if err != nil {
		return snapshot{}, fmt.Errorf("count usage: %w", err)
	}

	entries := map[models.Kind]Entry{}
	for _, kind := range models.Kinds() {
		limit := plan.Limits[kind]
		entry := Entry{Current: counts[kind], Limit: limit}
		switch limit.Mode {
		case subscription.LimitUnlimited:
			entry.CanCreate = true
		case subscription.LimitNone:
			entry.CanCreate = false
		default:
			entry.CanCreate = entry.Current < limit.Count
		}
		entries[kind] = entry
	}

	snap = snapshot{entries: entries, planName: plan.Name, fetchedAt: l.clk.Now()}
	l.mu.Lock()
	l.cache[userID] = snap
	l.mu.Unlock()
	return snap, nil
}

func blockedReason(kind models.Kind, entry Entry, planName string) string {
	if entry.Limit.Mode == subscription.LimitNone {
		return fmt.Sprintf("%s are not available on the %s plan", kind, planName)
	}
	return fmt.Sprintf("you have reached the limit of %d %s on the %s plan", entry.Limit.Count, kind, planName)
}
