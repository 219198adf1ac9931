// Package httpapi exposes the shop over HTTP/JSON. Handlers decode requests into typed
// commands, call the domain services, and render apperr kinds as status codes.
package httpapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/cache"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/orders"
	"github.com/safar/peptide-shop/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID, requester *models.Requester) (*models.Order, error)
	ListMyOrders(ctx context.Context, requester *models.Requester, cursor string, limit int) (*models.CursorPage[models.Order], error)
	ListOrders(ctx context.Context, requester *models.Requester, status string, page, limit int) (*models.OffsetPage[models.Order], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, trackingNumber *string) (*models.Order, error)
}

type AffiliateService interface {
	Apply(ctx context.Context, userID uuid.UUID, website, socialMedia string) (*models.Affiliate, error)
	Me(ctx context.Context, requester *models.Requester) (*models.Affiliate, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	List(ctx context.Context, status string, page, limit int) (*models.OffsetPage[models.Affiliate], error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Affiliate, error)
	SetCommission(ctx context.Context, id uuid.UUID, percent decimal.Decimal) (*models.Affiliate, error)
	Validate(ctx context.Context, code string) (string, error)
}

type Catalog interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, filter store.ProductFilter, page, pageSize int) (*models.OffsetPage[models.Product], error)
	UpdateProduct(ctx context.Context, id uuid.UUID, update models.ProductUpdate) (*models.Product, error)
	DeactivateProduct(ctx context.Context, id uuid.UUID) error
	UpdateStock(ctx context.Context, id uuid.UUID, stock, version int) (*models.Product, error)
	CreateCategory(ctx context.Context, name, description string) (*models.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, update models.CategoryUpdate) (*models.Category, error)
	DeactivateCategory(ctx context.Context, id uuid.UUID) error
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type PeptideCatalog interface {
	CreatePeptide(ctx context.Context, peptide *models.Peptide) error
	GetPeptide(ctx context.Context, id uuid.UUID) (*models.Peptide, error)
	UpdatePeptide(ctx context.Context, id uuid.UUID, update models.PeptideUpdate) (*models.Peptide, error)
	DeactivatePeptide(ctx context.Context, id uuid.UUID) error
	ListPeptides(ctx context.Context, filter store.PeptideFilter, page, pageSize int) (*models.OffsetPage[models.Peptide], error)
}

type UserDirectory interface {
	ListUsers(ctx context.Context, role string, page, pageSize int) (*models.OffsetPage[models.User], error)
	UpdateUserRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router is built from. Idempotency may be nil, which
// disables Idempotency-Key handling.
type Deps struct {
	Orders      OrderService
	Affiliates  AffiliateService
	Catalog     Catalog
	Peptides    PeptideCatalog
	Users       UserDirectory
	Health      HealthChecker
	Auth        Authenticator
	Idempotency cache.Idempotency
	Logger      *zap.Logger
}

type handler struct {
	orders     OrderService
	affiliates AffiliateService
	catalog    Catalog
	peptides   PeptideCatalog
	users      UserDirectory
	health     HealthChecker
	logger     *zap.Logger
}
