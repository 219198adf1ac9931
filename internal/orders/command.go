package orders

import (
	"strings"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/shopspring/decimal"
)

type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderCommand is a checkout request after the HTTP layer has decoded it. Prices
// and names are never taken from the client; they come from the catalog at commit time.
type CreateOrderCommand struct {
	// Requester is nil for guest checkout.
	Requester       *models.Requester
	Items           []ItemInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	PaymentDetails  models.PaymentDetails
	Shipping        decimal.Decimal
	Notes           string
	AffiliateCode   string
}

func (c *CreateOrderCommand) Validate() error {
	if len(c.Items) == 0 {
		return apperr.EmptyOrder()
	}
	for i, item := range c.Items {
		if item.ProductID == uuid.Nil {
			return apperr.Validation("item %d: product is required", i)
		}
		if item.Quantity < 1 {
			return apperr.Validation("item %d: quantity must be at least 1", i)
		}
	}
	if c.Shipping.IsNegative() {
		return apperr.Validation("shipping must not be negative")
	}

	addr := c.ShippingAddress
	required := []struct {
		name, value string
	}{
		{"firstName", addr.FirstName},
		{"lastName", addr.LastName},
		{"address", addr.Street},
		{"city", addr.City},
		{"zipCode", addr.ZipCode},
		{"country", addr.Country},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("shippingAddress: missing %s", strings.Join(missing, ", "))
	}
	if strings.TrimSpace(c.PaymentMethod) == "" {
		return apperr.Validation("paymentMethod is required")
	}
	return nil
}
