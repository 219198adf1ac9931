package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/shopspring/decimal"
)

// memStore serialises transactions behind one mutex and restores a snapshot when a
// transaction or savepoint fails.
type memStore struct {
	mu         sync.Mutex
	products   map[uuid.UUID]models.Product
	affiliates map[uuid.UUID]models.Affiliate
	orders     map[uuid.UUID]models.Order

	failInsert error
	failAppend error
}

type memState struct {
	products   map[uuid.UUID]models.Product
	affiliates map[uuid.UUID]models.Affiliate
	orders     map[uuid.UUID]models.Order
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[uuid.UUID]models.Product),
		affiliates: make(map[uuid.UUID]models.Affiliate),
		orders:     make(map[uuid.UUID]models.Order),
	}
}

func (m *memStore) addProduct(name, price string, stock int) uuid.UUID {
	p := models.Product{
		ID:     uuid.New(),
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
	m.products[p.ID] = p
	return p.ID
}

func (m *memStore) addAffiliate(status models.AffiliateStatus, code string, pct int64) uuid.UUID {
	a := models.Affiliate{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       status,
		Commission:   decimal.NewFromInt(pct),
		ReferralCode: code,
	}
	m.affiliates[a.ID] = a
	return a.ID
}

func (m *memStore) stock(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) affiliate(id uuid.UUID) models.Affiliate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.affiliates[id]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) snapshot() memState {
	s := memState{
		products:   make(map[uuid.UUID]models.Product, len(m.products)),
		affiliates: make(map[uuid.UUID]models.Affiliate, len(m.affiliates)),
		orders:     make(map[uuid.UUID]models.Order, len(m.orders)),
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.affiliates {
		v.Referrals = append([]models.ReferralRecord(nil), v.Referrals...)
		s.affiliates[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	return s
}

func (m *memStore) restore(s memState) {
	m.products = s.products
	m.affiliates = s.affiliates
	m.orders = s.orders
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.OrderNotFound(id.String())
	}
	return &o, nil
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*models.CursorPage[models.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.Order
	for _, o := range m.orders {
		if o.OwnedBy(userID) {
			items = append(items, o)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	page := &models.CursorPage[models.Order]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
		page.NextCursor = "more"
	}
	return page, nil
}

func (m *memStore) ListOrders(ctx context.Context, status models.OrderStatus, page, limit int) (*models.OffsetPage[models.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			items = append(items, o)
		}
	}
	return models.NewOffsetPage(items, int64(len(items)), page, limit), nil
}

type memTx struct {
	m *memStore
}

func (t memTx) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := t.m.products[id]
	if !ok {
		return nil, apperr.ProductNotFound(id.String())
	}
	return &p, nil
}

func (t memTx) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	p := t.m.products[id]
	if p.Stock < qty {
		return apperr.InsufficientStock(id.String(), p.Name)
	}
	p.Stock -= qty
	t.m.products[id] = p
	return nil
}

func (t memTx) FindApprovedByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	for _, a := range t.m.affiliates {
		if a.ReferralCode == code && a.Status == models.AffiliateStatusApproved {
			return &a, nil
		}
	}
	return nil, nil
}

func (t memTx) AppendReferral(ctx context.Context, affiliateID uuid.UUID, rec models.ReferralRecord) error {
	a := t.m.affiliates[affiliateID]
	a.Referrals = append(a.Referrals, rec)
	a.Earnings = a.Earnings.Add(rec.Commission)
	t.m.affiliates[affiliateID] = a
	if t.m.failAppend != nil {
		return t.m.failAppend
	}
	return nil
}

func (t memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if t.m.failInsert != nil {
		return t.m.failInsert
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	t.m.orders[order.ID] = stored
	return nil
}

func (t memTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return nil, apperr.OrderNotFound(id.String())
	}
	return &o, nil
}

func (t memTx) UpdateOrderStatus(ctx context.Context, order *models.Order) error {
	order.Version++
	order.UpdatedAt = time.Now()
	t.m.orders[order.ID] = *order
	return nil
}

func (t memTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	snap := t.m.snapshot()
	if err := fn(); err != nil {
		t.m.restore(snap)
		return err
	}
	return nil
}

type statusChange struct {
	from, to models.OrderStatus
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []uuid.UUID
	changes []statusChange
	ctxErrs []error
	err     error
}

func (n *recordingNotifier) NotifyOrderCreated(ctx context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, order.ID)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return n.err
}

func (n *recordingNotifier) NotifyStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, statusChange{from: previous, to: order.Status})
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return n.err
}

// stallingStore never finishes a transaction before its context expires.
type stallingStore struct {
	*memStore
}

func (s stallingStore) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// cancelAfterCommitStore cancels the caller's context as soon as a transaction commits,
// like a client that disconnects right after the write.
type cancelAfterCommitStore struct {
	*memStore
	cancel context.CancelFunc
}

func (s cancelAfterCommitStore) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	err := s.memStore.WithinTx(ctx, fn)
	s.cancel()
	return err
}
