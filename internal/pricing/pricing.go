// Package pricing computes order totals. All functions are pure.
package pricing

import (
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate applies when the caller has no configured rate.
var DefaultTaxRate = decimal.NewFromFloat(0.1)

var hundred = decimal.NewFromInt(100)

type Line struct {
	Price    decimal.Decimal
	Quantity int
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums the lines and derives tax and grand total. Every derived amount is
// rounded once to cents; total is computed from the already rounded subtotal and tax.
func ComputeTotals(lines []Line, shipping, taxRate decimal.Decimal) (Totals, error) {
	if shipping.IsNegative() {
		return Totals{}, apperr.Validation("shipping cost cannot be negative, got %s", shipping)
	}
	if taxRate.IsNegative() {
		return Totals{}, apperr.Validation("tax rate cannot be negative, got %s", taxRate)
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		if line.Quantity < 1 {
			return Totals{}, apperr.Validation("item %d: quantity must be at least 1, got %d", i, line.Quantity)
		}
		if line.Price.IsNegative() {
			return Totals{}, apperr.Validation("item %d: price cannot be negative, got %s", i, line.Price)
		}
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	subtotal = roundCents(subtotal)
	tax := roundCents(subtotal.Mul(taxRate))
	shipping = roundCents(shipping)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    roundCents(subtotal.Add(tax).Add(shipping)),
	}, nil
}

func ComputeTotalsDefault(lines []Line, shipping decimal.Decimal) (Totals, error) {
	return ComputeTotals(lines, shipping, DefaultTaxRate)
}

// LineTotal is price × quantity rounded to cents.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return roundCents(price.Mul(decimal.NewFromInt(int64(quantity))))
}

// Commission is the affiliate share of total for a percentage in [0, 100].
func Commission(total, percent decimal.Decimal) decimal.Decimal {
	return roundCents(total.Mul(percent).Div(hundred))
}

// roundCents rounds half away from zero, which is round-half-up for the
// non-negative amounts handled here.
func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
