package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/aethra/compass/internal/subscription"
)

// =============================================================================
// USAGE
// =============================================================================

// Usage returns the tenant's ledger: current counts, limits, and
// creation eligibility per kind
func (h *Handler) Usage(c *gin.Context) {
	entries, err := h.ledger.Entries(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{}
	for kind, entry := range entries {
		body[string(kind)] = gin.H{
			"current":    entry.Current,
			"limit":      entry.LimitLabel(),
			"can_create": entry.CanCreate,
		}
	}
	c.JSON(http.StatusOK, body)
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscription returns the tenant's effective plan and feature flags
func (h *Handler) Subscription(c *gin.Context) {
	force := c.Query("refetch") == "true"

	var (
		snap subscription.Snapshot
		err  error
	)
	if force {
		snap, err = h.gate.Refetch(c.Request.Context(), userID(c))
	} else {
		snap, err = h.gate.Snapshot(c.Request.Context(), userID(c), false)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan":               snap.Plan.ID,
		"plan_name":          snap.Plan.Name,
		"status":             snap.Profile.SubscriptionStatus,
		"features":           snap.Plan.Features,
		"current_period_end": snap.Profile.CurrentPeriodEnd,
	})
}

// =============================================================================
// PROVIDER WEBHOOK
// =============================================================================

// StripeWebhook ingests subscription changes from the billing provider.
// This is the only writer of plan ids; the rest of the service treats the
// profile as read-only.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(c, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChanged(c, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(c, event)
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
	}
	if err != nil {
		log.Printf("webhook: %s failed: %v", event.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// handleCheckoutCompleted links the provider customer to the user who
// started the checkout.
func (h *Handler) handleCheckoutCompleted(c *gin.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return err
	}
	if session.Customer == nil || session.ClientReferenceID == "" {
		return nil
	}
	uid, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return err
	}

	profile, err := h.store.GetProfile(c.Request.Context(), uid)
	if err != nil {
		return err
	}
	customerID := session.Customer.ID
	profile.ProviderCustomerID = &customerID
	if err := h.store.UpdateProfile(c.Request.Context(), profile); err != nil {
		return err
	}
	h.invalidateSubscriptionCaches(profile.UserID)
	return nil
}

// handleSubscriptionChanged writes the provider's subscription state onto
// the local record.
func (h *Handler) handleSubscriptionChanged(c *gin.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil {
		return nil
	}

	profile, err := h.store.GetProfileByCustomerID(c.Request.Context(), sub.Customer.ID)
	if err != nil {
		return err
	}

	subID := sub.ID
	profile.ProviderSubscriptionID = &subID
	profile.SubscriptionStatus = string(sub.Status)
	if plan := planFromWebhookSubscription(&sub); plan != "" {
		profile.PlanID = plan
	}
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0)
		profile.CurrentPeriodEnd = &periodEnd
	}
	if err := h.store.UpdateProfile(c.Request.Context(), profile); err != nil {
		return err
	}
	h.invalidateSubscriptionCaches(profile.UserID)
	return nil
}

// handleSubscriptionDeleted downgrades the local record to free.
func (h *Handler) handleSubscriptionDeleted(c *gin.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil {
		return nil
	}

	profile, err := h.store.GetProfileByCustomerID(c.Request.Context(), sub.Customer.ID)
	if err != nil {
		return err
	}
	profile.PlanID = subscription.PlanFree
	profile.SubscriptionStatus = "active"
	profile.ProviderSubscriptionID = nil
	profile.CurrentPeriodEnd = nil
	if err := h.store.UpdateProfile(c.Request.Context(), profile); err != nil {
		return err
	}
	h.invalidateSubscriptionCaches(profile.UserID)
	return nil
}

func (h *Handler) invalidateSubscriptionCaches(userID uuid.UUID) {
	h.gate.Invalidate(userID)
	h.ledger.Invalidate(userID)
}

func planFromWebhookSubscription(sub *stripe.Subscription) string {
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
