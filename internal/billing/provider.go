// Package billing abstracts the subscription provider. The gate only ever
// reads from it; plan changes flow in through the provider's webhook.
package billing

import (
	"context"
	"time"
)

// Details is the provider's view of one subscription.
type Details struct {
	SubscriptionID    string
	Status            string
	PlanID            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
}

// Provider reads subscription state from the billing system. A 401 from
// the provider surfaces as *errors.ProviderAuthError.
type Provider interface {
	// ResolveSubscription returns the customer's current subscription id,
	// or "" when the customer has none.
	ResolveSubscription(ctx context.Context, customerID string) (string, error)

	// SubscriptionDetails fetches the subscription's current state.
	SubscriptionDetails(ctx context.Context, subscriptionID string) (*Details, error)
}
