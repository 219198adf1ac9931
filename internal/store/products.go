package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
)

const productColumns = `id, sku, name, description, price, category_id, stock, active, created_at, updated_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.CategoryID,
		&product.Stock,
		&product.Active,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

type ProductFilter struct {
	CategoryID *uuid.UUID
	// IncludeInactive lists products that are hidden from the storefront.
	IncludeInactive bool
}

func CreateProduct(ctx context.Context, q querier, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}

	query := `
		INSERT INTO products (id, sku, name, description, price, category_id, stock, active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		product.ID, product.SKU, product.Name, product.Description, product.Price,
		product.CategoryID, product.Stock, product.Active,
	), product)
	if err != nil {
		if database.IsUniqueViolation(err, "products_sku_key") {
			return apperr.Conflict("sku %s already exists", product.SKU)
		}
		if database.IsForeignKeyViolation(err) {
			return apperr.NotFound("category", product.CategoryID.String())
		}
		return fmt.Errorf("create product: %w", err)
	}

	return nil
}

func GetProduct(ctx context.Context, q querier, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ProductNotFound(id.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProduct reads the product and holds its row lock until the transaction ends.
func LockProduct(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	if err := scanProduct(tx.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ProductNotFound(id.String())
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, quantity int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, id)
	if err != nil {
		if database.IsCheckViolation(err, "products_stock_nonnegative") {
			return apperr.InsufficientStock(id.String(), id.String())
		}
		return fmt.Errorf("decrement stock: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.InsufficientStock(id.String(), id.String())
	}

	return nil
}

// UpdateStockOptimistic sets the stock level only if the product is still at version.
func UpdateStockOptimistic(ctx context.Context, q querier, id uuid.UUID, stock, version int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET stock = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query, stock, id, version), product)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if database.IsCheckViolation(err, "products_stock_nonnegative") {
			return nil, apperr.Validation("stock must not be negative")
		}
		return nil, fmt.Errorf("update stock: %w", err)
	}

	if _, err := GetProduct(ctx, q, id); err != nil {
		return nil, err
	}
	return nil, apperr.Conflict("product %s was modified concurrently; reload and retry", id)
}

// UpdateProduct applies the non-nil fields of update. Orders already placed keep the name
// and price they captured.
func UpdateProduct(ctx context.Context, q querier, id uuid.UUID, update models.ProductUpdate) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET sku = COALESCE($2, sku),
		    name = COALESCE($3, name),
		    description = COALESCE($4, description),
		    price = COALESCE($5, price),
		    category_id = COALESCE($6, category_id),
		    active = COALESCE($7, active),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query, id,
		update.SKU, update.Name, update.Description, update.Price, update.CategoryID, update.Active,
	), product)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperr.ProductNotFound(id.String())
		case database.IsUniqueViolation(err, "products_sku_key"):
			return nil, apperr.Conflict("sku %s already exists", *update.SKU)
		case database.IsForeignKeyViolation(err):
			return nil, apperr.NotFound("category", update.CategoryID.String())
		case database.IsCheckViolation(err, ""):
			return nil, apperr.Validation("price must not be negative")
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// DeactivateProduct hides the product from the storefront and from new orders. The row is
// kept because order items reference it.
func DeactivateProduct(ctx context.Context, q querier, id uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE products SET active = FALSE, version = version + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ProductNotFound(id.String())
	}
	return nil
}

func ListProducts(ctx context.Context, q querier, filter ProductFilter, page, pageSize int) (*models.OffsetPage[models.Product], error) {
	where := `WHERE ($1::uuid IS NULL OR category_id = $1) AND ($2 OR active)`

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products `+where,
		filter.CategoryID, filter.IncludeInactive).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	rows, err := q.QueryContext(ctx, query, filter.CategoryID, filter.IncludeInactive, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return models.NewOffsetPage(products, total, page, pageSize), nil
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	return CreateProduct(ctx, s.db, product)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return GetProduct(ctx, s.db, id)
}

func (s *Store) ListProducts(ctx context.Context, filter ProductFilter, page, pageSize int) (*models.OffsetPage[models.Product], error) {
	return ListProducts(ctx, s.db, filter, page, pageSize)
}

func (s *Store) UpdateProduct(ctx context.Context, id uuid.UUID, update models.ProductUpdate) (*models.Product, error) {
	return UpdateProduct(ctx, s.db, id, update)
}

func (s *Store) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	return DeactivateProduct(ctx, s.db, id)
}

func (s *Store) UpdateStock(ctx context.Context, id uuid.UUID, stock, version int) (*models.Product, error) {
	return UpdateStockOptimistic(ctx, s.db, id, stock, version)
}

func (t *txStore) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return LockProduct(ctx, t.tx, id)
}

func (t *txStore) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	return DecrementStock(ctx, t.tx, id, quantity)
}
