// Package models contains the Compass domain rows
package models

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RESOURCE KINDS
// =============================================================================

// Kind identifies a gated resource type
type Kind string

const (
	KindClients  Kind = "clients"
	KindProjects Kind = "projects"
	KindInvoices Kind = "invoices"
)

// Kinds lists every gated resource kind
func Kinds() []Kind {
	return []Kind{KindClients, KindProjects, KindInvoices}
}

// =============================================================================
// SYSTEM MODELS
// =============================================================================

// User represents an account owner (one tenant per user)
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null;size:255"`
	PasswordHash string     `json:"-" gorm:"size:255"`
	FullName     string     `json:"full_name" gorm:"size:200"`
	CompanyName  string     `json:"company_name" gorm:"size:200"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relations
	Profile *Profile `json:"profile,omitempty" gorm:"foreignKey:UserID"`
}

// Profile carries a user's subscription record. Plan changes are written
// here by the provider webhook; this service never originates them.
type Profile struct {
	ID                     uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID                 uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	PlanID                 string     `json:"subscription_plan_id" gorm:"size:50;default:'free'"`
	SubscriptionStatus     string     `json:"subscription_status" gorm:"size:30;default:'active'"`
	ProviderCustomerID     *string    `json:"provider_customer_id" gorm:"size:100"`
	ProviderSubscriptionID *string    `json:"provider_subscription_id" gorm:"size:100"`
	CurrentPeriodEnd       *time.Time `json:"subscription_current_period_end"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// =============================================================================
// DOMAIN MODELS
// =============================================================================

// Client statuses and relationship types
const (
	ClientStatusActive   = "active"
	ClientStatusPipeline = "pipeline"
	ClientStatusClosed   = "closed"

	RelationshipRecurring = "recurring"
	RelationshipOneTime   = "one-time"
	RelationshipRegular   = "regular"
)

// Client represents a customer. Deleting a client unlinks its projects and
// invoices (their client_id is cleared), it never cascades.
type Client struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID       uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_clients_user_email"`
	Name         string     `json:"name" gorm:"not null;size:200"`
	Email        *string    `json:"email" gorm:"size:255;uniqueIndex:idx_clients_user_email,where:email IS NOT NULL"`
	Phone        *string    `json:"phone" gorm:"size:50"`
	Company      *string    `json:"company" gorm:"size:200"`
	Address      *string    `json:"address" gorm:"size:255"`
	City         *string    `json:"city" gorm:"size:100"`
	State        *string    `json:"state" gorm:"size:100"`
	ZipCode      *string    `json:"zip_code" gorm:"size:20"`
	Country      *string    `json:"country" gorm:"size:2"`
	Notes        *string    `json:"notes"`
	AvatarURL    *string    `json:"avatar_url"`
	Status       string     `json:"status" gorm:"size:20;default:'active'"`
	Relationship string     `json:"relationship" gorm:"size:20;default:'regular'"`
	ClientSince  *time.Time `json:"client_since"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relations
	Projects []Project `json:"projects,omitempty" gorm:"foreignKey:ClientID;constraint:OnDelete:SET NULL"`
	Invoices []Invoice `json:"invoices,omitempty" gorm:"foreignKey:ClientID;constraint:OnDelete:SET NULL"`
}

// Project statuses
const (
	ProjectStatusActive    = "active"
	ProjectStatusPipeline  = "pipeline"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

// Pipeline stage names. The configured stage list lives in pipeline_stages;
// these are the canonical values new opportunities move through.
const (
	StageLead       = "lead"
	StagePitched    = "pitched"
	StageDiscussion = "in discussion"
	StageWon        = "won"
	StageLost       = "lost"
)

// DefaultDealProbability is assigned when a project enters the pipeline.
const DefaultDealProbability = 10

// Project represents a unit of work, possibly a pipeline opportunity.
// ClientID is a weak reference and may dangle to null. PipelineStage and
// DealProbability are meaningful only while Status == pipeline.
type Project struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID          uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	ClientID        *uuid.UUID `json:"client_id" gorm:"type:uuid;index"`
	Name            string     `json:"name" gorm:"not null;size:200"`
	Description     *string    `json:"description"`
	Status          string     `json:"status" gorm:"size:20;default:'active'"`
	PipelineStage   *string    `json:"pipeline_stage" gorm:"size:50"`
	DealProbability *int       `json:"deal_probability"`
	PipelineNotes   *string    `json:"pipeline_notes"`
	Budget          float64    `json:"budget"`
	Expenses        float64    `json:"expenses"`
	PaymentReceived float64    `json:"payment_received"`
	StartDate       *time.Time `json:"start_date"`
	DueDate         *time.Time `json:"due_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relations
	Client *Client `json:"client,omitempty" gorm:"foreignKey:ClientID"`
}

// PaymentPending is derived and never persisted: the unpaid remainder of
// the budget, clamped at zero when payments exceed it.
func (p *Project) PaymentPending() float64 {
	pending := p.Budget - p.PaymentReceived
	if pending < 0 {
		return 0
	}
	return pending
}

// Invoice statuses
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice represents a bill. Items are owned: they are deleted before the
// invoice row itself (composition, not aggregation).
type Invoice struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID        uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_invoices_user_invoice_number"`
	ClientID      *uuid.UUID `json:"client_id" gorm:"type:uuid;index"`
	ProjectID     *uuid.UUID `json:"project_id" gorm:"type:uuid;index"`
	InvoiceNumber string     `json:"invoice_number" gorm:"not null;size:50;uniqueIndex:idx_invoices_user_invoice_number"`
	Status        string     `json:"status" gorm:"size:20;default:'draft'"`
	Amount        float64    `json:"amount"`
	TaxRate       float64    `json:"tax_rate"`
	TaxAmount     float64    `json:"tax_amount"`
	TotalAmount   float64    `json:"total_amount"`
	Currency      string     `json:"currency" gorm:"size:3;default:'USD'"`
	IssueDate     time.Time  `json:"issue_date"`
	DueDate       time.Time  `json:"due_date"`
	Notes         *string    `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Relations
	Client  *Client       `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	Project *Project      `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
	Items   []InvoiceItem `json:"items,omitempty" gorm:"foreignKey:InvoiceID"`
}

// RecomputeTotals derives per-item amounts and the invoice totals from the
// item lines, maintaining amount == Σ items and total == amount + tax.
func (inv *Invoice) RecomputeTotals() {
	var sum float64
	for i := range inv.Items {
		inv.Items[i].Amount = float64(inv.Items[i].Quantity) * inv.Items[i].Rate
		sum += inv.Items[i].Amount
	}
	inv.Amount = sum
	inv.TaxAmount = sum * inv.TaxRate
	inv.TotalAmount = inv.Amount + inv.TaxAmount
}

// InvoiceItem is a line on an invoice
type InvoiceItem struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	InvoiceID   uuid.UUID `json:"invoice_id" gorm:"type:uuid;index;not null"`
	Description string    `json:"description" gorm:"not null"`
	Quantity    float64   `json:"quantity"`
	Rate        float64   `json:"rate"`
	Amount      float64   `json:"amount"`
	SortOrder   int       `json:"sort_order" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
}

// PipelineStage is a configured board column. Stage matching against
// projects is by name, case-insensitive.
type PipelineStage struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Name               string    `json:"name" gorm:"not null;size:50"`
	Color              string    `json:"color" gorm:"size:20"`
	DefaultProbability int       `json:"default_probability" gorm:"default:10"`
	OrderIndex         int       `json:"order_index" gorm:"default:0"`
	CreatedAt          time.Time `json:"created_at"`
}
