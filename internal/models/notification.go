package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationOrderConfirmation NotificationKind = "order_confirmation"
	NotificationOrderAdminNotice  NotificationKind = "order_admin_notice"
	NotificationOrderStatus       NotificationKind = "order_status"
	NotificationAffiliateStatus   NotificationKind = "affiliate_status"
)

const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Notification is one queued outbound email.
type Notification struct {
	ID            uuid.UUID
	Kind          NotificationKind
	Recipient     string
	Subject       string
	Body          string
	OrderID       *uuid.UUID
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	SentAt        *time.Time
}
