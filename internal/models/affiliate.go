package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AffiliateStatus string

const (
	AffiliateStatusPending  AffiliateStatus = "pending"
	AffiliateStatusApproved AffiliateStatus = "approved"
	AffiliateStatusRejected AffiliateStatus = "rejected"
)

func (s AffiliateStatus) IsValid() bool {
	switch s {
	case AffiliateStatusPending, AffiliateStatusApproved, AffiliateStatusRejected:
		return true
	default:
		return false
	}
}

// DefaultCommission is the percentage granted to a new affiliate.
var DefaultCommission = decimal.NewFromInt(10)

type Affiliate struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user"`
	// Name and Email are joined from the owning user for display and notifications.
	Name         string           `json:"name,omitempty"`
	Email        string           `json:"email,omitempty"`
	Status       AffiliateStatus  `json:"status"`
	Commission   decimal.Decimal  `json:"commission"`
	Earnings     decimal.Decimal  `json:"earnings"`
	ReferralCode string           `json:"referralCode"`
	Website      string           `json:"website,omitempty"`
	SocialMedia  string           `json:"socialMedia,omitempty"`
	Referrals    []ReferralRecord `json:"referrals"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ReferralRecord is append-only; it is never updated or removed once written.
type ReferralRecord struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order"`
	CustomerID *uuid.UUID      `json:"customer,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
	CreatedAt  time.Time       `json:"date"`
}
