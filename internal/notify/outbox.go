// Package notify renders outbound emails, queues them in the notifications table after the
// triggering transaction commits, and delivers them from a background worker.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/models"
)

// Queue is the persistent notification outbox.
type Queue interface {
	Enqueue(ctx context.Context, batch []models.Notification) error
	// ClaimNext returns nil, nil when no message is due.
	ClaimNext(ctx context.Context, lease time.Duration) (*models.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, at time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// Outbox turns order and affiliate events into queued emails.
type Outbox struct {
	queue      Queue
	templates  *Templates
	adminEmail string
}

func NewOutbox(queue Queue, templates *Templates, adminEmail string) *Outbox {
	return &Outbox{
		queue:      queue,
		templates:  templates,
		adminEmail: strings.TrimSpace(adminEmail),
	}
}

func (o *Outbox) NotifyOrderCreated(ctx context.Context, order *models.Order) error {
	orderID := order.ID
	var batch []models.Notification

	if to := strings.TrimSpace(order.ShippingAddress.Email); to != "" {
		body, err := o.templates.OrderConfirmation(order)
		if err != nil {
			return err
		}
		batch = append(batch, models.Notification{
			Kind:      models.NotificationOrderConfirmation,
			Recipient: to,
			Subject:   fmt.Sprintf("Order Confirmation - %s", order.OrderNumber),
			Body:      body,
			OrderID:   &orderID,
		})
	}

	if o.adminEmail != "" {
		body, err := o.templates.AdminNewOrder(order)
		if err != nil {
			return err
		}
		batch = append(batch, models.Notification{
			Kind:      models.NotificationOrderAdminNotice,
			Recipient: o.adminEmail,
			Subject:   fmt.Sprintf("New Order Received - %s", order.OrderNumber),
			Body:      body,
			OrderID:   &orderID,
		})
	}

	return o.queue.Enqueue(ctx, batch)
}

func (o *Outbox) NotifyStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	to := strings.TrimSpace(order.ShippingAddress.Email)
	if to == "" {
		return nil
	}

	body, err := o.templates.OrderStatus(order, previous)
	if err != nil {
		return err
	}
	orderID := order.ID
	return o.queue.Enqueue(ctx, []models.Notification{{
		Kind:      models.NotificationOrderStatus,
		Recipient: to,
		Subject:   fmt.Sprintf("Order Status Update - %s", order.OrderNumber),
		Body:      body,
		OrderID:   &orderID,
	}})
}

func (o *Outbox) NotifyAffiliateStatus(ctx context.Context, a *models.Affiliate) error {
	to := strings.TrimSpace(a.Email)
	if to == "" {
		return nil
	}

	body, err := o.templates.AffiliateStatus(a)
	if err != nil {
		return err
	}
	subject := "Your Affiliate Application Status"
	if a.Status == models.AffiliateStatusApproved {
		subject = "Your Affiliate Application Has Been Approved"
	}
	return o.queue.Enqueue(ctx, []models.Notification{{
		Kind:      models.NotificationAffiliateStatus,
		Recipient: to,
		Subject:   subject,
		Body:      body,
	}})
}
