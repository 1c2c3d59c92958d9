package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aethra/compass/internal/models"
)

// Memory is an in-memory Store used by tests and local development. It
// mirrors the relational semantics that matter to callers: tenant scoping,
// not-found on missing rows, SET NULL on dependent references, and item
// lines owned by their invoice.
type Memory struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]models.Client
	projects map[uuid.UUID]models.Project
	invoices map[uuid.UUID]models.Invoice
	stages   []models.PipelineStage
	users    map[uuid.UUID]models.User
	profiles map[uuid.UUID]models.Profile

	// FailDeleteProject makes DeleteProject fail for specific ids,
	// simulating a mid-batch store error.
	FailDeleteProject map[uuid.UUID]error
}

// NewMemory creates an empty in-memory store with the default stage list.
func NewMemory() *Memory {
	return &Memory{
		clients:  map[uuid.UUID]models.Client{},
		projects: map[uuid.UUID]models.Project{},
		invoices: map[uuid.UUID]models.Invoice{},
		users:    map[uuid.UUID]models.User{},
		profiles: map[uuid.UUID]models.Profile{},
		stages: []models.PipelineStage{
			{ID: uuid.New(), Name: models.StageLead, Color: "blue", DefaultProbability: 10, OrderIndex: 0},
			{ID: uuid.New(), Name: models.StagePitched, Color: "purple", DefaultProbability: 30, OrderIndex: 1},
			{ID: uuid.New(), Name: models.StageDiscussion, Color: "amber", DefaultProbability: 60, OrderIndex: 2},
			{ID: uuid.New(), Name: models.StageWon, Color: "green", DefaultProbability: 100, OrderIndex: 3},
			{ID: uuid.New(), Name: models.StageLost, Color: "red", DefaultProbability: 0, OrderIndex: 4},
		},
		FailDeleteProject: map[uuid.UUID]error{},
	}
}

// =============================================================================
// CLIENTS
// =============================================================================

func (m *Memory) GetClient(_ context.Context, userID, id uuid.UUID) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.UserID != userID {
		return nil, Classify(gorm.ErrRecordNotFound, "client")
	}
	out := c
	return &out, nil
}

func (m *Memory) ListClients(_ context.Context, userID uuid.UUID, opts ListOptions) ([]models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Client
	for _, c := range m.clients {
		if c.UserID != userID {
			continue
		}
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(opts.Search)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) InsertClient(_ context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	if client.Email != nil {
		for _, c := range m.clients {
			if c.UserID == client.UserID && c.Email != nil && *c.Email == *client.Email {
				return Classify(duplicateKeyError("email"), "client")
			}
		}
	}
	m.clients[client.ID] = *client
	return nil
}

func (m *Memory) UpdateClient(_ context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.clients[client.ID]
	if !ok || existing.UserID != client.UserID {
		return Classify(gorm.ErrRecordNotFound, "client")
	}
	m.clients[client.ID] = *client
	return nil
}

func (m *Memory) DeleteClient(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.UserID != userID {
		return Classify(gorm.ErrRecordNotFound, "client")
	}
	delete(m.clients, id)
	// SET NULL on dependents
	for pid, p := range m.projects {
		if p.ClientID != nil && *p.ClientID == id {
			p.ClientID = nil
			m.projects[pid] = p
		}
	}
	for iid, inv := range m.invoices {
		if inv.ClientID != nil && *inv.ClientID == id {
			inv.ClientID = nil
			m.invoices[iid] = inv
		}
	}
	return nil
}

// =============================================================================
// PROJECTS
// =============================================================================

func (m *Memory) GetProject(_ context.Context, userID, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return nil, Classify(gorm.ErrRecordNotFound, "project")
	}
	out := p
	return &out, nil
}

func (m *Memory) ListProjects(_ context.Context, userID uuid.UUID, opts ListOptions) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Project
	for _, p := range m.projects {
		if p.UserID != userID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(opts.Search)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) InsertProject(_ context.Context, project *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	m.projects[project.ID] = *project
	return nil
}

func (m *Memory) UpdateProject(_ context.Context, project *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[project.ID]
	if !ok || existing.UserID != project.UserID {
		return Classify(gorm.ErrRecordNotFound, "project")
	}
	m.projects[project.ID] = *project
	return nil
}

func (m *Memory) DeleteProject(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailDeleteProject[id]; ok {
		return err
	}
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return Classify(gorm.ErrRecordNotFound, "project")
	}
	delete(m.projects, id)
	for iid, inv := range m.invoices {
		if inv.ProjectID != nil && *inv.ProjectID == id {
			inv.ProjectID = nil
			m.invoices[iid] = inv
		}
	}
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) GetInvoice(_ context.Context, userID, id uuid.UUID) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.UserID != userID {
		return nil, Classify(gorm.ErrRecordNotFound, "invoice")
	}
	out := inv
	out.Items = append([]models.InvoiceItem(nil), inv.Items...)
	if inv.ClientID != nil {
		if c, ok := m.clients[*inv.ClientID]; ok {
			linked := c
			out.Client = &linked
		}
	}
	return &out, nil
}

func (m *Memory) ListInvoices(_ context.Context, userID uuid.UUID, opts ListOptions) ([]models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Invoice
	for _, inv := range m.invoices {
		if inv.UserID != userID {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out, nil
}

func (m *Memory) InsertInvoice(_ context.Context, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	for _, inv := range m.invoices {
		if inv.UserID == invoice.UserID && inv.InvoiceNumber == invoice.InvoiceNumber {
			return Classify(duplicateKeyError("invoice_number"), "invoice")
		}
	}
	for i := range invoice.Items {
		if invoice.Items[i].ID == uuid.Nil {
			invoice.Items[i].ID = uuid.New()
		}
		invoice.Items[i].InvoiceID = invoice.ID
	}
	stored := *invoice
	stored.Items = append([]models.InvoiceItem(nil), invoice.Items...)
	m.invoices[invoice.ID] = stored
	return nil
}

func (m *Memory) UpdateInvoice(_ context.Context, invoice *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.invoices[invoice.ID]
	if !ok || existing.UserID != invoice.UserID {
		return Classify(gorm.ErrRecordNotFound, "invoice")
	}
	stored := *invoice
	stored.Items = append([]models.InvoiceItem(nil), invoice.Items...)
	m.invoices[invoice.ID] = stored
	return nil
}

func (m *Memory) DeleteInvoice(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.UserID != userID {
		return Classify(gorm.ErrRecordNotFound, "invoice")
	}
	delete(m.invoices, id)
	return nil
}

// =============================================================================
// DEPENDENTS AND RE-LINKING
// =============================================================================

func (m *Memory) ProjectIDsByClient(_ context.Context, userID, clientID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, p := range m.projects {
		if p.UserID == userID && p.ClientID != nil && *p.ClientID == clientID {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (m *Memory) InvoiceIDsByClient(_ context.Context, userID, clientID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, inv := range m.invoices {
		if inv.UserID == userID && inv.ClientID != nil && *inv.ClientID == clientID {
			ids = append(ids, inv.ID)
		}
	}
	return ids, nil
}

func (m *Memory) InvoiceIDsByProject(_ context.Context, userID, projectID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, inv := range m.invoices {
		if inv.UserID == userID && inv.ProjectID != nil && *inv.ProjectID == projectID {
			ids = append(ids, inv.ID)
		}
	}
	return ids, nil
}

func (m *Memory) RelinkProjectsToClient(_ context.Context, userID uuid.UUID, projectIDs []uuid.UUID, clientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range projectIDs {
		if p, ok := m.projects[id]; ok && p.UserID == userID {
			cid := clientID
			p.ClientID = &cid
			m.projects[id] = p
		}
	}
	return nil
}

func (m *Memory) RelinkInvoicesToClient(_ context.Context, userID uuid.UUID, invoiceIDs []uuid.UUID, clientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range invoiceIDs {
		if inv, ok := m.invoices[id]; ok && inv.UserID == userID {
			cid := clientID
			inv.ClientID = &cid
			m.invoices[id] = inv
		}
	}
	return nil
}

func (m *Memory) RelinkInvoicesToProject(_ context.Context, userID uuid.UUID, invoiceIDs []uuid.UUID, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range invoiceIDs {
		if inv, ok := m.invoices[id]; ok && inv.UserID == userID {
			pid := projectID
			inv.ProjectID = &pid
			m.invoices[id] = inv
		}
	}
	return nil
}

// =============================================================================
// USAGE
// =============================================================================

func (m *Memory) CountByKind(_ context.Context, userID uuid.UUID) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := Counts{models.KindClients: 0, models.KindProjects: 0, models.KindInvoices: 0}
	for _, c := range m.clients {
		if c.UserID == userID {
			counts[models.KindClients]++
		}
	}
	for _, p := range m.projects {
		if p.UserID == userID {
			counts[models.KindProjects]++
		}
	}
	for _, inv := range m.invoices {
		if inv.UserID == userID {
			counts[models.KindInvoices]++
		}
	}
	return counts, nil
}

// =============================================================================
// PIPELINE CONFIGURATION
// =============================================================================

func (m *Memory) ListPipelineStages(_ context.Context) ([]models.PipelineStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PipelineStage(nil), m.stages...), nil
}

// SetPipelineStages replaces the configured stage list.
func (m *Memory) SetPipelineStages(stages []models.PipelineStage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append([]models.PipelineStage(nil), stages...)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, Classify(gorm.ErrRecordNotFound, "user")
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, Classify(gorm.ErrRecordNotFound, "user")
	}
	out := u
	return &out, nil
}

func (m *Memory) InsertUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return Classify(duplicateKeyError("email"), "user")
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return Classify(gorm.ErrRecordNotFound, "user")
	}
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, Classify(gorm.ErrRecordNotFound, "profile")
	}
	out := p
	return &out, nil
}

func (m *Memory) GetProfileByCustomerID(_ context.Context, customerID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ProviderCustomerID != nil && *p.ProviderCustomerID == customerID {
			out := p
			return &out, nil
		}
	}
	return nil, Classify(gorm.ErrRecordNotFound, "profile")
}

func (m *Memory) InsertProfile(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	m.profiles[profile.UserID] = *profile
	return nil
}

func (m *Memory) UpdateProfile(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.UserID]; !ok {
		return Classify(gorm.ErrRecordNotFound, "profile")
	}
	m.profiles[profile.UserID] = *profile
	return nil
}

// SeedProfile installs a subscription record directly, for tests.
func (m *Memory) SeedProfile(profile models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	m.profiles[profile.UserID] = profile
}

var _ Store = (*Memory)(nil)
