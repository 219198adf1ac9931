package httpapi

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/cache"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/orders"
	"github.com/safar/peptide-shop/internal/store"
	"github.com/shopspring/decimal"
)

var (
	adminUser    = &models.Requester{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000a1"), Role: models.RoleAdmin}
	customerUser = &models.Requester{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000c1"), Role: models.RoleCustomer}
)

type tokenAuth map[string]*models.Requester

func (a tokenAuth) Authenticate(_ context.Context, token string) (*models.Requester, error) {
	if r, ok := a[token]; ok {
		return r, nil
	}
	return nil, apperr.Unauthenticated("not authorized, token failed")
}

func testAuth() tokenAuth {
	return tokenAuth{"admin-token": adminUser, "customer-token": customerUser}
}

type fakeOrders struct {
	mu      sync.Mutex
	created []orders.CreateOrderCommand

	createFn func(cmd orders.CreateOrderCommand) (*models.Order, error)
	getFn    func(id uuid.UUID, requester *models.Requester) (*models.Order, error)
	myFn     func(requester *models.Requester, cursor string, limit int) (*models.CursorPage[models.Order], error)
	listFn   func(requester *models.Requester, status string, page, limit int) (*models.OffsetPage[models.Order], error)
	updateFn func(id uuid.UUID, status string, tracking *string) (*models.Order, error)
}

func (f *fakeOrders) CreateOrder(_ context.Context, cmd orders.CreateOrderCommand) (*models.Order, error) {
	f.mu.Lock()
	f.created = append(f.created, cmd)
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(cmd)
	}
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-1",
		Status:      models.OrderStatusProcessing,
		Subtotal:    decimal.RequireFromString("50.00"),
		Tax:         decimal.RequireFromString("5.00"),
		Shipping:    cmd.Shipping,
		Total:       decimal.RequireFromString("60.00"),
	}, nil
}

func (f *fakeOrders) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeOrders) GetOrder(_ context.Context, id uuid.UUID, requester *models.Requester) (*models.Order, error) {
	if f.getFn != nil {
		return f.getFn(id, requester)
	}
	return nil, apperr.OrderNotFound(id.String())
}

func (f *fakeOrders) ListMyOrders(_ context.Context, requester *models.Requester, cursor string, limit int) (*models.CursorPage[models.Order], error) {
	if f.myFn != nil {
		return f.myFn(requester, cursor, limit)
	}
	return &models.CursorPage[models.Order]{Items: []models.Order{}}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, requester *models.Requester, status string, page, limit int) (*models.OffsetPage[models.Order], error) {
	if f.listFn != nil {
		return f.listFn(requester, status, page, limit)
	}
	return models.NewOffsetPage[models.Order](nil, 0, page, limit), nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id uuid.UUID, status string, tracking *string) (*models.Order, error) {
	if f.updateFn != nil {
		return f.updateFn(id, status, tracking)
	}
	return &models.Order{ID: id, Status: models.OrderStatus(status), TrackingNumber: tracking}, nil
}

type fakeAffiliates struct {
	codes map[string]bool
}

func (f *fakeAffiliates) Apply(_ context.Context, userID uuid.UUID, website, socialMedia string) (*models.Affiliate, error) {
	return &models.Affiliate{ID: uuid.New(), UserID: userID, Status: models.AffiliateStatusPending, Website: website, SocialMedia: socialMedia}, nil
}

func (f *fakeAffiliates) Me(_ context.Context, requester *models.Requester) (*models.Affiliate, error) {
	return &models.Affiliate{UserID: requester.ID}, nil
}

func (f *fakeAffiliates) Get(_ context.Context, id uuid.UUID) (*models.Affiliate, error) {
	return nil, apperr.AffiliateNotFound(id.String())
}

func (f *fakeAffiliates) List(_ context.Context, status string, page, limit int) (*models.OffsetPage[models.Affiliate], error) {
	return models.NewOffsetPage[models.Affiliate](nil, 0, page, limit), nil
}

func (f *fakeAffiliates) SetStatus(_ context.Context, id uuid.UUID, status string) (*models.Affiliate, error) {
	return &models.Affiliate{ID: id, Status: models.AffiliateStatus(status)}, nil
}

func (f *fakeAffiliates) SetCommission(_ context.Context, id uuid.UUID, percent decimal.Decimal) (*models.Affiliate, error) {
	return &models.Affiliate{ID: id, Commission: percent}, nil
}

func (f *fakeAffiliates) Validate(_ context.Context, code string) (string, error) {
	if f.codes[code] {
		return code, nil
	}
	return "", &apperr.Error{Kind: apperr.KindNotFound, Message: "invalid affiliate code"}
}

type fakeCatalog struct {
	products   map[uuid.UUID]*models.Product
	categories map[uuid.UUID]*models.Category
	lastFilter store.ProductFilter
	lastUpdate models.ProductUpdate
	stockCalls int
}

func (f *fakeCatalog) CreateProduct(_ context.Context, product *models.Product) error {
	product.ID = uuid.New()
	product.Version = 1
	return nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, apperr.ProductNotFound(id.String())
}

func (f *fakeCatalog) ListProducts(_ context.Context, filter store.ProductFilter, page, pageSize int) (*models.OffsetPage[models.Product], error) {
	f.lastFilter = filter
	return models.NewOffsetPage[models.Product](nil, 0, page, pageSize), nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, id uuid.UUID, update models.ProductUpdate) (*models.Product, error) {
	f.lastUpdate = update
	p, ok := f.products[id]
	if !ok {
		return nil, apperr.ProductNotFound(id.String())
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	if update.Price != nil {
		p.Price = *update.Price
	}
	if update.Active != nil {
		p.Active = *update.Active
	}
	return p, nil
}

func (f *fakeCatalog) DeactivateProduct(_ context.Context, id uuid.UUID) error {
	p, ok := f.products[id]
	if !ok {
		return apperr.ProductNotFound(id.String())
	}
	p.Active = false
	return nil
}

func (f *fakeCatalog) UpdateStock(_ context.Context, id uuid.UUID, stock, version int) (*models.Product, error) {
	f.stockCalls++
	return &models.Product{ID: id, Stock: stock, Version: version + 1}, nil
}

func (f *fakeCatalog) CreateCategory(_ context.Context, name, description string) (*models.Category, error) {
	c := &models.Category{ID: uuid.New(), Name: name, Description: description, Active: true}
	if f.categories != nil {
		f.categories[c.ID] = c
	}
	return c, nil
}

func (f *fakeCatalog) GetCategory(_ context.Context, id uuid.UUID) (*models.Category, error) {
	if c, ok := f.categories[id]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("category", id.String())
}

func (f *fakeCatalog) UpdateCategory(_ context.Context, id uuid.UUID, update models.CategoryUpdate) (*models.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, apperr.NotFound("category", id.String())
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	return c, nil
}

func (f *fakeCatalog) DeactivateCategory(_ context.Context, id uuid.UUID) error {
	c, ok := f.categories[id]
	if !ok {
		return apperr.NotFound("category", id.String())
	}
	c.Active = false
	return nil
}

func (f *fakeCatalog) ListCategories(context.Context) ([]models.Category, error) {
	var out []models.Category
	for _, c := range f.categories {
		if c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakePeptides struct {
	peptides   map[uuid.UUID]*models.Peptide
	lastFilter store.PeptideFilter
	lastUpdate models.PeptideUpdate
}

func (f *fakePeptides) CreatePeptide(_ context.Context, peptide *models.Peptide) error {
	peptide.ID = uuid.New()
	peptide.Version = 1
	f.peptides[peptide.ID] = peptide
	return nil
}

func (f *fakePeptides) GetPeptide(_ context.Context, id uuid.UUID) (*models.Peptide, error) {
	if p, ok := f.peptides[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("peptide", id.String())
}

func (f *fakePeptides) UpdatePeptide(_ context.Context, id uuid.UUID, update models.PeptideUpdate) (*models.Peptide, error) {
	f.lastUpdate = update
	p, ok := f.peptides[id]
	if !ok {
		return nil, apperr.NotFound("peptide", id.String())
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	return p, nil
}

func (f *fakePeptides) DeactivatePeptide(_ context.Context, id uuid.UUID) error {
	p, ok := f.peptides[id]
	if !ok {
		return apperr.NotFound("peptide", id.String())
	}
	p.Active = false
	return nil
}

func (f *fakePeptides) ListPeptides(_ context.Context, filter store.PeptideFilter, page, pageSize int) (*models.OffsetPage[models.Peptide], error) {
	f.lastFilter = filter
	var items []models.Peptide
	for _, p := range f.peptides {
		if p.Active || filter.IncludeInactive {
			items = append(items, *p)
		}
	}
	return models.NewOffsetPage(items, int64(len(items)), page, pageSize), nil
}

type fakeUsers struct {
	roles   map[uuid.UUID]string
	deleted []uuid.UUID
}

func (f *fakeUsers) ListUsers(_ context.Context, role string, page, pageSize int) (*models.OffsetPage[models.User], error) {
	return models.NewOffsetPage([]models.User{{Email: "a@example.com", Role: models.RoleAdmin}}, 1, page, pageSize), nil
}

func (f *fakeUsers) UpdateUserRole(_ context.Context, id uuid.UUID, role string) (*models.User, error) {
	if _, ok := f.roles[id]; !ok {
		return nil, apperr.NotFound("user", id.String())
	}
	f.roles[id] = role
	return &models.User{ID: id, Role: role}, nil
}

func (f *fakeUsers) DeleteUser(_ context.Context, id uuid.UUID) error {
	if _, ok := f.roles[id]; !ok {
		return apperr.NotFound("user", id.String())
	}
	delete(f.roles, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Ping(context.Context) error { return f.err }

// memIdempotency mirrors the Redis implementation's record semantics.
type memIdempotency struct {
	mu      sync.Mutex
	records map[string]memRecord
	fail    error
	aborted int
}

type memRecord struct {
	hash string
	resp *cache.Response
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{records: map[string]memRecord{}}
}

func (m *memIdempotency) Begin(_ context.Context, key, bodyHash string) (*cache.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	rec, ok := m.records[key]
	if !ok {
		m.records[key] = memRecord{hash: bodyHash}
		return nil, nil
	}
	if rec.hash != bodyHash {
		return nil, cache.ErrKeyReused
	}
	if rec.resp == nil {
		return nil, cache.ErrInProgress
	}
	return rec.resp, nil
}

func (m *memIdempotency) Complete(_ context.Context, key, bodyHash string, resp cache.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = memRecord{hash: bodyHash, resp: &resp}
	return nil
}

func (m *memIdempotency) Abort(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	m.aborted++
	return nil
}

var errCacheDown = errors.New("dial tcp: connection refused")
