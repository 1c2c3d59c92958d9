// Package store defines the persistence boundary for Compass and its
// GORM/Postgres implementation. Errors crossing this boundary are always
// classified into the internal/errors taxonomy.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/models"
)

// ListOptions narrows and orders list queries. Search matches across the
// entity's text columns; Sort must name an allowlisted column.
type ListOptions struct {
	Search     string
	Status     string
	Sort       string
	Descending bool
	Limit      int
	Offset     int
}

// Counts holds per-kind row counts for one tenant.
type Counts map[models.Kind]int

// Store is the persistence boundary. All operations are scoped to one
// tenant via userID; a row belonging to another tenant reads as not found.
type Store interface {
	// Clients
	GetClient(ctx context.Context, userID, id uuid.UUID) (*models.Client, error)
	ListClients(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Client, error)
	InsertClient(ctx context.Context, client *models.Client) error
	UpdateClient(ctx context.Context, client *models.Client) error
	DeleteClient(ctx context.Context, userID, id uuid.UUID) error

	// Projects
	GetProject(ctx context.Context, userID, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Project, error)
	InsertProject(ctx context.Context, project *models.Project) error
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, userID, id uuid.UUID) error

	// Invoices. Insert and Get carry the owned item lines; Delete removes
	// the lines before the invoice row.
	GetInvoice(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Invoice, error)
	InsertInvoice(ctx context.Context, invoice *models.Invoice) error
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	DeleteInvoice(ctx context.Context, userID, id uuid.UUID) error

	// Dependent lookups and re-linking, used by delete snapshots and undo.
	ProjectIDsByClient(ctx context.Context, userID, clientID uuid.UUID) ([]uuid.UUID, error)
	InvoiceIDsByClient(ctx context.Context, userID, clientID uuid.UUID) ([]uuid.UUID, error)
	InvoiceIDsByProject(ctx context.Context, userID, projectID uuid.UUID) ([]uuid.UUID, error)
	RelinkProjectsToClient(ctx context.Context, userID uuid.UUID, projectIDs []uuid.UUID, clientID uuid.UUID) error
	RelinkInvoicesToClient(ctx context.Context, userID uuid.UUID, invoiceIDs []uuid.UUID, clientID uuid.UUID) error
	RelinkInvoicesToProject(ctx context.Context, userID uuid.UUID, invoiceIDs []uuid.UUID, projectID uuid.UUID) error

	// Usage
	CountByKind(ctx context.Context, userID uuid.UUID) (Counts, error)

	// Pipeline configuration
	ListPipelineStages(ctx context.Context) ([]models.PipelineStage, error)

	// Accounts
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error

	// Subscription records
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	GetProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error)
	InsertProfile(ctx context.Context, profile *models.Profile) error
	UpdateProfile(ctx context.Context, profile *models.Profile) error
}
