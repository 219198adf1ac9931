package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer  = "customer"
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int       `json:"version"`
}

// Requester is the authenticated caller as resolved by the auth layer.
type Requester struct {
	ID   uuid.UUID
	Role string
}

func (r *Requester) IsAdmin() bool {
	return r != nil && r.Role == RoleAdmin
}

// ValidRole reports whether role is one users can hold.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleAffiliate, RoleAdmin:
		return true
	}
	return false
}

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Product struct {
	ID          uuid.UUID       `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  *uuid.UUID      `json:"categoryId,omitempty"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Version     int             `json:"version"`
}

// ProductUpdate holds the product fields an admin may change. Nil fields are left as they
// are. Stock is changed through the versioned stock update only.
type ProductUpdate struct {
	SKU         *string
	Name        *string
	Description *string
	Price       *decimal.Decimal
	CategoryID  *uuid.UUID
	Active      *bool
}

type CategoryUpdate struct {
	Name        *string
	Description *string
}
