package orders

import (
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
)

// TransitionPolicy decides whether an order may move from one status to another.
type TransitionPolicy interface {
	Allow(from, to models.OrderStatus) error
}

// PermissivePolicy allows any valid status to follow any other, matching how the
// storefront has always let admins correct orders by hand.
type PermissivePolicy struct{}

func (PermissivePolicy) Allow(from, to models.OrderStatus) error {
	if !to.IsValid() {
		return apperr.Validation("invalid status %q", to)
	}
	return nil
}

// StrictPolicy only allows forward movement through the fulfilment flow.
type StrictPolicy struct{}

var strictTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered, models.OrderStatusCancelled},
}

func (StrictPolicy) Allow(from, to models.OrderStatus) error {
	if !to.IsValid() {
		return apperr.Validation("invalid status %q", to)
	}
	if from == to {
		return nil
	}
	for _, allowed := range strictTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.Conflict("invalid state transition from %s to %s", from, to)
}

// PolicyFor returns StrictPolicy when strict is set and PermissivePolicy otherwise.
func PolicyFor(strict bool) TransitionPolicy {
	if strict {
		return StrictPolicy{}
	}
	return PermissivePolicy{}
}
