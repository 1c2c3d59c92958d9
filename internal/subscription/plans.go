// Package subscription resolves a tenant's effective plan and feature
// access, reconciling the local record with the billing provider when the
// two can disagree.
package subscription

import (
	"github.com/aethra/compass/internal/models"
)

// Limit is a per-kind creation limit. Count is meaningful only when the
// mode is LimitCounted.
type Limit struct {
	Mode  LimitMode
	Count int
}

// LimitMode distinguishes counted, unlimited, and fully disabled kinds.
type LimitMode string

const (
	LimitCounted   LimitMode = "counted"
	LimitUnlimited LimitMode = "unlimited"
	LimitNone      LimitMode = "none"
)

// Feature flags gated by plan
const (
	FeatureInvoicing     = "invoicing"
	FeaturePipeline      = "pipeline"
	FeaturePDFExport     = "pdf_export"
	FeatureEmailInvoices = "email_invoices"
)

// Plan is an immutable catalog entry. Plans never change at runtime; a
// tenant's plan id changes only via the provider webhook.
type Plan struct {
	ID       string
	Name     string
	Limits   map[models.Kind]Limit
	Features map[string]bool
}

// PlanFree and PlanPro are the catalog ids.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

var catalog = map[string]Plan{
	PlanFree: {
		ID:   PlanFree,
		Name: "Free",
		Limits: map[models.Kind]Limit{
			models.KindProjects: {Mode: LimitCounted, Count: 20},
			models.KindClients:  {Mode: LimitCounted, Count: 10},
			models.KindInvoices: {Mode: LimitNone},
		},
		Features: map[string]bool{
			FeaturePipeline: true,
		},
	},
	PlanPro: {
		ID:   PlanPro,
		Name: "Pro",
		Limits: map[models.Kind]Limit{
			models.KindProjects: {Mode: LimitUnlimited},
			models.KindClients:  {Mode: LimitUnlimited},
			models.KindInvoices: {Mode: LimitUnlimited},
		},
		Features: map[string]bool{
			FeatureInvoicing:     true,
			FeaturePipeline:      true,
			FeaturePDFExport:     true,
			FeatureEmailInvoices: true,
		},
	},
}

// PlanByID returns a catalog plan, falling back to free for unknown ids.
func PlanByID(id string) Plan {
	if plan, ok := catalog[id]; ok {
		return plan
	}
	return catalog[PlanFree]
}

// FreePlan returns the free catalog entry.
func FreePlan() Plan {
	return catalog[PlanFree]
}
