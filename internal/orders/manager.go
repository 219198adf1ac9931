// Package orders implements order placement and fulfilment: stock reservation, totals,
// affiliate attribution, status changes and the notifications that follow them.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/affiliate"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/inventory"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/pricing"
	"github.com/safar/peptide-shop/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

// notifyTimeout bounds queuing the notifications for a committed order.
const notifyTimeout = 5 * time.Second

type Options struct {
	TaxRate decimal.Decimal
	// Timeout bounds the transactional part of CreateOrder and UpdateStatus.
	Timeout time.Duration
	Policy  TransitionPolicy
}

type Manager struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	taxRate  decimal.Decimal
	timeout  time.Duration
	policy   TransitionPolicy
}

func NewManager(store Store, notifier Notifier, logger *zap.Logger, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Policy == nil {
		opts.Policy = PermissivePolicy{}
	}
	if opts.TaxRate.IsNegative() {
		opts.TaxRate = pricing.DefaultTaxRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
		taxRate:  opts.TaxRate,
		timeout:  opts.Timeout,
		policy:   opts.Policy,
	}
}

// notifyContext detaches from the caller's cancellation: once the transaction has
// committed, the notification must be queued even if the client has gone away.
func notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

// CreateOrder reserves stock, prices the order, credits any affiliate and stores the order
// in a single transaction. Either all of it commits or none of it does, except that a
// failure while crediting the affiliate only drops the attribution.
func (m *Manager) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*models.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var userID *uuid.UUID
	if cmd.Requester != nil {
		id := cmd.Requester.ID
		userID = &id
	}

	requests := make([]inventory.Request, len(cmd.Items))
	for i, item := range cmd.Items {
		requests[i] = inventory.Request{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     generateOrderNumber(),
		UserID:          userID,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		PaymentDetails:  cmd.PaymentDetails,
		Status:          models.OrderStatusProcessing,
		Version:         1,
	}
	if notes := strings.TrimSpace(cmd.Notes); notes != "" {
		order.Notes = &notes
	}

	log := telemetry.WithTrace(ctx, m.logger)

	txCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.WithinTx(txCtx, func(tx TxStore) error {
		reserved, err := inventory.Reserve(txCtx, tx, requests)
		if err != nil {
			return err
		}

		lines := make([]pricing.Line, len(reserved))
		items := make([]models.OrderItem, len(reserved))
		for i, r := range reserved {
			lines[i] = pricing.Line{Price: r.Product.Price, Quantity: r.Quantity}
			items[i] = models.OrderItem{
				ProductID: r.Product.ID,
				Name:      r.Product.Name,
				UnitPrice: r.Product.Price,
				Quantity:  r.Quantity,
				LineTotal: pricing.LineTotal(r.Product.Price, r.Quantity),
			}
		}

		totals, err := pricing.ComputeTotals(lines, cmd.Shipping, m.taxRate)
		if err != nil {
			return err
		}
		order.Items = items
		order.Subtotal = totals.Subtotal
		order.Tax = totals.Tax
		order.Shipping = totals.Shipping
		order.Total = totals.Total
		order.AffiliateID = nil

		if code := strings.TrimSpace(cmd.AffiliateCode); code != "" {
			err := tx.Savepoint(txCtx, "affiliate_attribution", func() error {
				id, err := affiliate.Attribute(txCtx, tx, code, order.Total, order.ID, order.UserID)
				if err != nil {
					return err
				}
				order.AffiliateID = id
				return nil
			})
			if err != nil {
				if txCtx.Err() != nil {
					return err
				}
				order.AffiliateID = nil
				log.Warn("affiliate attribution skipped",
					zap.String("order_number", order.OrderNumber),
					zap.String("affiliate_code", code),
					zap.Error(err),
				)
			}
		}

		return tx.InsertOrder(txCtx, order)
	})
	if err != nil {
		return nil, classify(txCtx, "create order", err)
	}

	log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Bool("attributed", order.AffiliateID != nil),
	)

	if m.notifier != nil {
		nctx, ncancel := notifyContext(ctx)
		defer ncancel()
		if err := m.notifier.NotifyOrderCreated(nctx, order); err != nil {
			log.Error("order confirmation not queued",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}
	return order, nil
}

// UpdateStatus moves the order to status and records trackingNumber when one is given.
// Callers are expected to have checked that the requester is an admin.
func (m *Manager) UpdateStatus(ctx context.Context, id uuid.UUID, status string, trackingNumber *string) (*models.Order, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, apperr.Validation("status is required")
	}
	next := models.OrderStatus(status)
	if !next.IsValid() {
		return nil, apperr.Validation("invalid status %q", status)
	}

	txCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		updated  *models.Order
		previous models.OrderStatus
	)
	err := m.store.WithinTx(txCtx, func(tx TxStore) error {
		order, err := tx.GetOrderForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := m.policy.Allow(order.Status, next); err != nil {
			return err
		}

		previous = order.Status
		order.Status = next
		if trackingNumber != nil {
			if tn := strings.TrimSpace(*trackingNumber); tn != "" {
				order.TrackingNumber = &tn
			}
		}
		if err := tx.UpdateOrderStatus(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, classify(txCtx, "update order status", err)
	}

	log := telemetry.WithTrace(ctx, m.logger)
	log.Info("order status updated",
		zap.String("order_id", updated.ID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.Status)),
	)

	if previous != updated.Status && m.notifier != nil {
		nctx, ncancel := notifyContext(ctx)
		defer ncancel()
		if err := m.notifier.NotifyStatusChanged(nctx, updated, previous); err != nil {
			log.Error("status notification not queued",
				zap.String("order_id", updated.ID.String()),
				zap.Error(err),
			)
		}
	}
	return updated, nil
}

// GetOrder returns the order when requester owns it or is an admin.
func (m *Manager) GetOrder(ctx context.Context, id uuid.UUID, requester *models.Requester) (*models.Order, error) {
	if requester == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return nil, classify(ctx, "get order", err)
	}
	if !requester.IsAdmin() && !order.OwnedBy(requester.ID) {
		return nil, apperr.Forbidden("not authorized to view this order")
	}
	return order, nil
}

// ListMyOrders pages through the requester's orders, newest first.
func (m *Manager) ListMyOrders(ctx context.Context, requester *models.Requester, cursor string, limit int) (*models.CursorPage[models.Order], error) {
	if requester == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	_, limit = models.NormalizePage(1, limit)
	page, err := m.store.ListOrdersByUser(ctx, requester.ID, cursor, limit)
	if err != nil {
		return nil, classify(ctx, "list orders", err)
	}
	return page, nil
}

// ListOrders is the admin listing with an optional status filter.
func (m *Manager) ListOrders(ctx context.Context, requester *models.Requester, status string, page, limit int) (*models.OffsetPage[models.Order], error) {
	if requester == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if !requester.IsAdmin() {
		return nil, apperr.Forbidden("not authorized as an admin")
	}
	filter := models.OrderStatus(strings.TrimSpace(status))
	if filter != "" && !filter.IsValid() {
		return nil, apperr.Validation("invalid status %q", status)
	}
	page, limit = models.NormalizePage(page, limit)
	result, err := m.store.ListOrders(ctx, filter, page, limit)
	if err != nil {
		return nil, classify(ctx, "list orders", err)
	}
	return result, nil
}

// classify maps a failure to the error taxonomy. An expired deadline wins over whatever
// the driver reported for the cancelled statement.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(err)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Transient(op, err)
}
