package affiliate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/pricing"
	"github.com/shopspring/decimal"
)

// Ledger is the transactional view of affiliate accounts used while an order is committed.
type Ledger interface {
	// FindApprovedByCode returns nil, nil when no approved affiliate owns code.
	FindApprovedByCode(ctx context.Context, code string) (*models.Affiliate, error)
	// AppendReferral records the referral and adds its commission to the affiliate's
	// earnings in the same statement batch.
	AppendReferral(ctx context.Context, affiliateID uuid.UUID, rec models.ReferralRecord) error
}

// Attribute credits the approved affiliate owning code with a commission on orderTotal.
// It returns the credited affiliate's ID, or nil when the code is empty or unknown or
// belongs to an affiliate that is not approved.
func Attribute(ctx context.Context, ledger Ledger, code string, orderTotal decimal.Decimal, orderID uuid.UUID, customerID *uuid.UUID) (*uuid.UUID, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	aff, err := ledger.FindApprovedByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find affiliate by code: %w", err)
	}
	if aff == nil {
		return nil, nil
	}

	rec := models.ReferralRecord{
		ID:         uuid.New(),
		OrderID:    orderID,
		CustomerID: customerID,
		Amount:     orderTotal,
		Commission: pricing.Commission(orderTotal, aff.Commission),
	}
	if err := ledger.AppendReferral(ctx, aff.ID, rec); err != nil {
		return nil, fmt.Errorf("append referral for affiliate %s: %w", aff.ID, err)
	}

	id := aff.ID
	return &id, nil
}
