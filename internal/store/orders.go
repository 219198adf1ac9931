package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
)

const orderColumns = `id, order_number, user_id, shipping_address, payment_method, payment_details,
	subtotal, shipping, tax, total, status, tracking_number, notes, affiliate_id,
	created_at, updated_at, version`

func scanOrder(row scanner, order *models.Order) error {
	var address, details []byte
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&address,
		&order.PaymentMethod,
		&details,
		&order.Subtotal,
		&order.Shipping,
		&order.Tax,
		&order.Total,
		&order.Status,
		&order.TrackingNumber,
		&order.Notes,
		&order.AffiliateID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(details, &order.PaymentDetails); err != nil {
		return fmt.Errorf("decode payment details: %w", err)
	}
	return nil
}

// InsertOrder writes the order row and its items. Timestamps and version are read back
// into order.
func InsertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}
	details, err := json.Marshal(order.PaymentDetails)
	if err != nil {
		return fmt.Errorf("encode payment details: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (id, order_number, user_id, shipping_address, payment_method, payment_details,
		                     subtotal, shipping, tax, total, status, tracking_number, notes, affiliate_id,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW(), 1)
		 RETURNING created_at, updated_at, version`,
		order.ID, order.OrderNumber, order.UserID, address, order.PaymentMethod, details,
		order.Subtotal, order.Shipping, order.Tax, order.Total, order.Status,
		order.TrackingNumber, order.Notes, order.AffiliateID,
	).Scan(&order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		if database.IsUniqueViolation(err, "orders_order_number_key") {
			return apperr.Conflict("order number %s already exists", order.OrderNumber)
		}
		return fmt.Errorf("create order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, i, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.LineTotal)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

func getOrder(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.OrderNotFound(id.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := loadItems(ctx, q, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]

	return order, nil
}

func GetOrder(ctx context.Context, q querier, id uuid.UUID) (*models.Order, error) {
	return getOrder(ctx, q, id, false)
}

// loadItems fetches the items of every listed order in one query, keyed by order ID.
func loadItems(ctx context.Context, q querier, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderItem, error) {
	items := make(map[uuid.UUID][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return items, nil
	}

	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id.String()
		items[id] = []models.OrderItem{}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT order_id, product_id, name, unit_price, quantity, line_total
		 FROM order_items
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, position`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item models.OrderItem
		err := rows.Scan(
			&orderID,
			&item.ProductID,
			&item.Name,
			&item.UnitPrice,
			&item.Quantity,
			&item.LineTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func collectOrders(ctx context.Context, q querier, rows *sql.Rows) ([]models.Order, error) {
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	ids := make([]uuid.UUID, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := loadItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

// ListOrdersCursor returns one keyset page of the user's orders, newest first.
func ListOrdersCursor(ctx context.Context, q querier, userID uuid.UUID, cursor string, limit int) (*models.CursorPage[models.Order], error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if after == nil {
		rows, err = q.QueryContext(ctx,
			`SELECT `+orderColumns+`
			 FROM orders
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			userID, limit+1)
	} else {
		rows, err = q.QueryContext(ctx,
			`SELECT `+orderColumns+`
			 FROM orders
			 WHERE user_id = $1
			   AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			userID, after.CreatedAt, after.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders, err := collectOrders(ctx, q, rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &models.CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrders is the admin listing, optionally filtered by status.
func ListOrders(ctx context.Context, q querier, status models.OrderStatus, page, pageSize int) (*models.OffsetPage[models.Order], error) {
	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1::text = '' OR status = $1)`,
		string(status)).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE ($1::text = '' OR status = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		string(status), pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders, err := collectOrders(ctx, q, rows)
	if err != nil {
		return nil, err
	}

	return models.NewOffsetPage(orders, total, page, pageSize), nil
}

// UpdateOrderStatus persists status and tracking number, guarded by the order's version.
func UpdateOrderStatus(ctx context.Context, q querier, order *models.Order) error {
	err := q.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1, tracking_number = $2, updated_at = NOW(), version = version + 1
		 WHERE id = $3 AND version = $4
		 RETURNING updated_at, version`,
		order.Status, order.TrackingNumber, order.ID, order.Version,
	).Scan(&order.UpdatedAt, &order.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Conflict("order %s was modified concurrently", order.ID)
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return GetOrder(ctx, s.db, id)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*models.CursorPage[models.Order], error) {
	return ListOrdersCursor(ctx, s.db, userID, cursor, limit)
}

func (s *Store) ListOrders(ctx context.Context, status models.OrderStatus, page, pageSize int) (*models.OffsetPage[models.Order], error) {
	return ListOrders(ctx, s.db, status, page, pageSize)
}

func (t *txStore) InsertOrder(ctx context.Context, order *models.Order) error {
	return InsertOrder(ctx, t.tx, order)
}

func (t *txStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *txStore) UpdateOrderStatus(ctx context.Context, order *models.Order) error {
	return UpdateOrderStatus(ctx, t.tx, order)
}
