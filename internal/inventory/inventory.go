// Package inventory guards product stock during order commit.
package inventory

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
)

// Catalog is the slice of the product store the guard needs. Both methods must run inside
// the caller's transaction.
type Catalog interface {
	// LockProduct returns the product row locked for update, or an apperr not-found error.
	LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// DecrementStock subtracts qty only when at least qty units remain.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

type Request struct {
	ProductID uuid.UUID
	Quantity  int
}

// Reserved pairs a request with the product as it was when the stock was taken.
type Reserved struct {
	Product  models.Product
	Quantity int
}

// Reserve checks every requested line against the catalog and decrements stock for all of
// them. Products are locked in ascending ID order so concurrent orders over the same
// products cannot deadlock. Any failure aborts the reservation; the caller's transaction
// discards decrements that already happened.
func Reserve(ctx context.Context, catalog Catalog, items []Request) ([]Reserved, error) {
	wanted := make(map[uuid.UUID]int, len(items))
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, apperr.Validation("item %d: quantity must be at least 1, got %d", i, item.Quantity)
		}
		wanted[item.ProductID] += item.Quantity
	}

	ids := make([]uuid.UUID, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	locked := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		product, err := catalog.LockProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if !product.Active {
			return nil, apperr.ProductNotFound(id.String())
		}
		locked[id] = product
	}

	for _, item := range items {
		product := locked[item.ProductID]
		if product.Stock < wanted[item.ProductID] {
			return nil, apperr.InsufficientStock(product.ID.String(), product.Name)
		}
	}

	for _, id := range ids {
		if err := catalog.DecrementStock(ctx, id, wanted[id]); err != nil {
			return nil, fmt.Errorf("reserve %s: %w", id, err)
		}
	}

	reserved := make([]Reserved, len(items))
	for i, item := range items {
		reserved[i] = Reserved{
			Product:  *locked[item.ProductID],
			Quantity: item.Quantity,
		}
	}
	return reserved, nil
}
