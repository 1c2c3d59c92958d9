package billing

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/aethra/compass/internal/errors"
)

const readRetryLimit = 3

// StripeProvider implements Provider against the Stripe API. Reads are
// idempotent, so transient failures are retried with exponential backoff;
// auth failures are permanent and surface immediately.
type StripeProvider struct {
	sc *client.API
}

// NewStripeProvider creates a provider using the given secret key.
func NewStripeProvider(apiKey string) *StripeProvider {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeProvider{sc: sc}
}

func (p *StripeProvider) ResolveSubscription(ctx context.Context, customerID string) (string, error) {
	var subscriptionID string
	op := func() error {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String("all"),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		iter := p.sc.Subscriptions.List(params)
		for iter.Next() {
			subscriptionID = iter.Subscription().ID
		}
		return classifyStripeError(iter.Err())
	}
	if err := p.retryRead(ctx, op); err != nil {
		return "", fmt.Errorf("resolve subscription for customer %s: %w", customerID, err)
	}
	return subscriptionID, nil
}

func (p *StripeProvider) SubscriptionDetails(ctx context.Context, subscriptionID string) (*Details, error) {
	var details *Details
	op := func() error {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx

		sub, err := p.sc.Subscriptions.Get(subscriptionID, params)
		if err != nil {
			return classifyStripeError(err)
		}
		details = &Details{
			SubscriptionID:    sub.ID,
			Status:            string(sub.Status),
			PlanID:            planFromSubscription(sub),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0),
		}
		return nil
	}
	if err := p.retryRead(ctx, op); err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	return details, nil
}

func (p *StripeProvider) retryRead(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), readRetryLimit), ctx)
	return backoff.Retry(op, policy)
}

// planFromSubscription maps the subscription's price to a plan id. Prices
// carry the plan id as their lookup key; the raw price id is the fallback.
func planFromSubscription(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	price := sub.Items.Data[0].Price
	if price == nil {
		return ""
	}
	if price.LookupKey != "" {
		return price.LookupKey
	}
	return price.ID
}

// classifyStripeError maps Stripe failures onto the taxonomy. Client-side
// failures (auth, bad request) are permanent; everything else is left
// retryable for the backoff policy.
func classifyStripeError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if stderrors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == 401:
			return backoff.Permanent(errors.NewProviderAuthError(stripeErr.Msg))
		case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
			return backoff.Permanent(err)
		}
	}
	return err
}

var _ Provider = (*StripeProvider)(nil)
