package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/security"
)

// Sortable columns per table. Anything else is rejected before reaching SQL.
var (
	clientSortColumns  = map[string]bool{"name": true, "created_at": true, "status": true, "client_since": true}
	projectSortColumns = map[string]bool{"name": true, "created_at": true, "status": true, "due_date": true, "budget": true}
	invoiceSortColumns = map[string]bool{"invoice_number": true, "created_at": true, "status": true, "due_date": true, "total_amount": true}
)

// Searchable text columns per table
var (
	clientSearchColumns  = []string{"name", "email", "company"}
	projectSearchColumns = []string{"name", "description"}
	invoiceSearchColumns = []string{"invoice_number"}
)

// GormStore implements Store against Postgres via GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open GORM handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) scoped(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).Where("user_id = ?", userID)
}

func applyListOptions(q *gorm.DB, opts ListOptions, searchCols []string, sortCols map[string]bool) (*gorm.DB, error) {
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Search != "" {
		cond, params := security.SearchCondition(searchCols, opts.Search)
		if cond != "" {
			q = q.Where(cond, params...)
		}
	}
	if opts.Sort != "" {
		clause, err := security.SafeOrderClause(opts.Sort, sortCols, opts.Descending)
		if err != nil {
			return nil, err
		}
		q = q.Order(clause)
	} else {
		q = q.Order("created_at DESC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q, nil
}

// =============================================================================
// CLIENTS
// =============================================================================

func (s *GormStore) GetClient(ctx context.Context, userID, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := s.scoped(ctx, userID).First(&client, "id = ?", id).Error
	if err != nil {
		return nil, Classify(err, "client")
	}
	return &client, nil
}

func (s *GormStore) ListClients(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Client, error) {
	q, err := applyListOptions(s.scoped(ctx, userID), opts, clientSearchColumns, clientSortColumns)
	if err != nil {
		return nil, Classify(err, "client")
	}
	var clients []models.Client
	if err := q.Find(&clients).Error; err != nil {
		return nil, Classify(err, "client")
	}
	return clients, nil
}

func (s *GormStore) InsertClient(ctx context.Context, client *models.Client) error {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	return Classify(s.db.WithContext(ctx).Create(client).Error, "client")
}

func (s *GormStore) UpdateClient(ctx context.Context, client *models.Client) error {
	res := s.scoped(ctx, client.UserID).Model(&models.Client{}).Where("id = ?", client.ID).
		Select("*").Omit("id", "user_id", "created_at").Updates(client)
	if res.Error != nil {
		return Classify(res.Error, "client")
	}
	if res.RowsAffected == 0 {
		return Classify(gorm.ErrRecordNotFound, "client")
	}
	return nil
}

func (s *GormStore) DeleteClient(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteScoped(ctx, userID, id, &models.Client{}, "client")
}

// =============================================================================
// PROJECTS
// =============================================================================

func (s *GormStore) GetProject(ctx context.Context, userID, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := s.scoped(ctx, userID).Preload("Client").First(&project, "id = ?", id).Error
	if err != nil {
		return nil, Classify(err, "project")
	}
	return &project, nil
}

func (s *GormStore) ListProjects(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Project, error) {
	q, err := applyListOptions(s.scoped(ctx, userID).Preload("Client"), opts, projectSearchColumns, projectSortColumns)
	if err != nil {
		return nil, Classify(err, "project")
	}
	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		return nil, Classify(err, "project")
	}
	return projects, nil
}

func (s *GormStore) InsertProject(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	return Classify(s.db.WithContext(ctx).Omit("Client").Create(project).Error, "project")
}

func (s *GormStore) UpdateProject(ctx context.Context, project *models.Project) error {
	res := s.scoped(ctx, project.UserID).Model(&models.Project{}).Where("id = ?", project.ID).
		Select("*").Omit("id", "user_id", "created_at").Updates(project)
	if res.Error != nil {
		return Classify(res.Error, "project")
	}
	if res.RowsAffected == 0 {
		return Classify(gorm.ErrRecordNotFound, "project")
	}
	return nil
}

func (s *GormStore) DeleteProject(ctx context.Context, userID, id uuid.UUID) error {
	return s.deleteScoped(ctx, userID, id, &models.Project{}, "project")
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *GormStore) GetInvoice(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.scoped(ctx, userID).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Client").
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, Classify(err, "invoice")
	}
	return &invoice, nil
}

func (s *GormStore) ListInvoices(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Invoice, error) {
	q, err := applyListOptions(
		s.scoped(ctx, userID).
			Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
			Preload("Client"),
		opts, invoiceSearchColumns, invoiceSortColumns)
	if err != nil {
		return nil, Classify(err, "invoice")
	}
	var invoices []models.Invoice
	if err := q.Find(&invoices).Error; err != nil {
		return nil, Classify(err, "invoice")
	}
	return invoices, nil
}

func (s *GormStore) InsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	for i := range invoice.Items {
		if invoice.Items[i].ID == uuid.Nil {
			invoice.Items[i].ID = uuid.New()
		}
		invoice.Items[i].InvoiceID = invoice.ID
	}
	return Classify(s.db.WithContext(ctx).Omit("Client", "Project").Create(invoice).Error, "invoice")
}

func (s *GormStore) UpdateInvoice(ctx context.Context, invoice *models.Invoice) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND user_id = ?", invoice.ID, invoice.UserID).
			Select("*").Omit("id", "user_id", "created_at").Updates(invoice)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// Item lines are replaced wholesale
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		for i := range invoice.Items {
			if invoice.Items[i].ID == uuid.Nil {
				invoice.Items[i].ID = uuid.New()
			}
			invoice.Items[i].InvoiceID = invoice.ID
			invoice.Items[i].SortOrder = i
		}
		if len(invoice.Items) > 0 {
			if err := tx.Create(&invoice.Items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return Classify(err, "invoice")
}

func (s *GormStore) DeleteInvoice(ctx context.Context, userID, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Items go first (composition)
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Invoice{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return Classify(err, "invoice")
}

// =============================================================================
// DEPENDENTS AND RE-LINKING
// =============================================================================

func (s *GormStore) ProjectIDsByClient(ctx context.Context, userID, clientID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.scoped(ctx, userID).Model(&models.Project{}).
		Where("client_id = ?", clientID).Pluck("id", &ids).Error
	if err != nil {
		return nil, Classify(err, "project")
	}
	return ids, nil
}

func (s *GormStore) InvoiceIDsByClient(ctx context.Context, userID, clientID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.scoped(ctx, userID).Model(&models.Invoice{}).
		Where("client_id = ?", clientID).Pluck("id", &ids).Error
	if err != nil {
		return nil, Classify(err, "invoice")
	}
	return ids, nil
}

func (s *GormStore) InvoiceIDsByProject(ctx context.Context, userID, projectID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.scoped(ctx, userID).Model(&models.Invoice{}).
		Where("project_id = ?", projectID).Pluck("id", &ids).Error
	if err != nil {
		return nil, Classify(err, "invoice")
	}
	return ids, nil
}

func (s *GormStore) RelinkProjectsToClient(ctx context.Context, userID uuid.UUID, projectIDs []uuid.UUID, clientID uuid.UUID) error {
	if len(projectIDs) == 0 {
		return nil
	}
	err := s.scoped(ctx, userID).Model(&models.Project{}).
		Where("id IN ?", projectIDs).Update("client_id", clientID).Error
	return Classify(err, "project")
}

func (s *GormStore) RelinkInvoicesToClient(ctx context.Context, userID uuid.UUID, invoiceIDs []uuid.UUID, clientID uuid.UUID) error {
	if len(invoiceIDs) == 0 {
		return nil
	}
	err := s.scoped(ctx, userID).Model(&models.Invoice{}).
		Where("id IN ?", invoiceIDs).Update("client_id", clientID).Error
	return Classify(err, "invoice")
}

func (s *GormStore) RelinkInvoicesToProject(ctx context.Context, userID uuid.UUID, invoiceIDs []uuid.UUID, projectID uuid.UUID) error {
	if len(invoiceIDs) == 0 {
		return nil
	}
	err := s.scoped(ctx, userID).Model(&models.Invoice{}).
		Where("id IN ?", invoiceIDs).Update("project_id", projectID).Error
	return Classify(err, "invoice")
}

// =============================================================================
// USAGE
// =============================================================================

func (s *GormStore) CountByKind(ctx context.Context, userID uuid.UUID) (Counts, error) {
	counts := Counts{}
	tables := []struct {
		kind  models.Kind
		model interface{}
	}{
		{models.KindClients, &models.Client{}},
		{models.KindProjects, &models.Project{}},
		{models.KindInvoices, &models.Invoice{}},
	}
	for _, t := range tables {
		var n int64
		if err := s.scoped(ctx, userID).Model(t.model).Count(&n).Error; err != nil {
			return nil, Classify(err, string(t.kind))
		}
		counts[t.kind] = int(n)
	}
	return counts, nil
}

// =============================================================================
// PIPELINE CONFIGURATION
// =============================================================================

func (s *GormStore) ListPipelineStages(ctx context.Context) ([]models.PipelineStage, error) {
	var stages []models.PipelineStage
	err := s.db.WithContext(ctx).Order("order_index ASC").Find(&stages).Error
	if err != nil {
		return nil, Classify(err, "pipeline stage")
	}
	return stages, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		return nil, Classify(err, "user")
	}
	return &user, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, Classify(err, "user")
	}
	return &user, nil
}

func (s *GormStore) InsertUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return Classify(s.db.WithContext(ctx).Omit("Profile").Create(user).Error, "user")
}

func (s *GormStore) UpdateUser(ctx context.Context, user *models.User) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Select("*").Omit("id", "created_at", "Profile").Updates(user)
	if res.Error != nil {
		return Classify(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return Classify(gorm.ErrRecordNotFound, "user")
	}
	return nil
}

func (s *GormStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if err != nil {
		return nil, Classify(err, "profile")
	}
	return &profile, nil
}

func (s *GormStore) GetProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "provider_customer_id = ?", customerID).Error
	if err != nil {
		return nil, Classify(err, "profile")
	}
	return &profile, nil
}

func (s *GormStore) InsertProfile(ctx context.Context, profile *models.Profile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	return Classify(s.db.WithContext(ctx).Create(profile).Error, "profile")
}

func (s *GormStore) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	res := s.db.WithContext(ctx).Model(&models.Profile{}).Where("user_id = ?", profile.UserID).
		Select("*").Omit("id", "user_id", "created_at").Updates(profile)
	if res.Error != nil {
		return Classify(res.Error, "profile")
	}
	if res.RowsAffected == 0 {
		return Classify(gorm.ErrRecordNotFound, "profile")
	}
	return nil
}

// deleteScoped hard-deletes one row. Dependents carry nullable FKs with
// ON DELETE SET NULL, so they survive with the reference cleared.
func (s *GormStore) deleteScoped(ctx context.Context, userID, id uuid.UUID, model interface{}, resource string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(model)
	if res.Error != nil {
		return Classify(res.Error, resource)
	}
	if res.RowsAffected == 0 {
		return Classify(gorm.ErrRecordNotFound, resource)
	}
	return nil
}

var _ Store = (*GormStore)(nil)
