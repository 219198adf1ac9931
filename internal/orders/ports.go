package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/affiliate"
	"github.com/safar/peptide-shop/internal/inventory"
	"github.com/safar/peptide-shop/internal/models"
)

// TxStore is the store as seen from inside one database transaction.
type TxStore interface {
	inventory.Catalog
	affiliate.Ledger

	// InsertOrder persists order and its items and fills in the stored timestamps.
	InsertOrder(ctx context.Context, order *models.Order) error
	// GetOrderForUpdate loads and row-locks the order with its items.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateOrderStatus writes status and tracking number and bumps the version.
	UpdateOrderStatus(ctx context.Context, order *models.Order) error
	// Savepoint runs fn so that its writes are undone on error while the enclosing
	// transaction stays usable.
	Savepoint(ctx context.Context, name string, fn func() error) error
}

type Store interface {
	// WithinTx runs fn in a transaction, retrying the whole of fn on deadlocks and
	// serialization failures. fn must therefore be safe to run more than once.
	WithinTx(ctx context.Context, fn func(tx TxStore) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*models.CursorPage[models.Order], error)
	ListOrders(ctx context.Context, status models.OrderStatus, page, limit int) (*models.OffsetPage[models.Order], error)
}

// Notifier receives order events after the transaction that produced them has committed.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order *models.Order) error
	NotifyStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
}
