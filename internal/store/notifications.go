package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
)

const notificationColumns = `id, kind, recipient, subject, body, order_id, status, attempts,
	next_attempt_at, last_error, created_at, sent_at`

func scanNotification(row scanner, n *models.Notification) error {
	return row.Scan(
		&n.ID,
		&n.Kind,
		&n.Recipient,
		&n.Subject,
		&n.Body,
		&n.OrderID,
		&n.Status,
		&n.Attempts,
		&n.NextAttemptAt,
		&n.LastError,
		&n.CreatedAt,
		&n.SentAt,
	)
}

// EnqueueNotifications stores all messages or none of them.
func EnqueueNotifications(ctx context.Context, db *sql.DB, batch []models.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for i := range batch {
			n := &batch[i]
			if n.ID == uuid.Nil {
				n.ID = uuid.New()
			}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO notifications (id, kind, recipient, subject, body, order_id, status, attempts, next_attempt_at, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, NOW(), NOW())
				 RETURNING status, next_attempt_at, created_at`,
				n.ID, n.Kind, n.Recipient, n.Subject, n.Body, n.OrderID,
			).Scan(&n.Status, &n.NextAttemptAt, &n.CreatedAt)
			if err != nil {
				return fmt.Errorf("enqueue %s notification: %w", n.Kind, err)
			}
		}
		return nil
	})
}

// ClaimNextNotification picks the oldest due pending message, counts the attempt and
// pushes its next attempt out by lease so other workers skip it while it is being sent.
// It returns nil, nil when nothing is due.
func ClaimNextNotification(ctx context.Context, db *sql.DB, lease time.Duration) (*models.Notification, error) {
	var claimed *models.Notification

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		n := &models.Notification{}
		err := scanNotification(tx.QueryRowContext(ctx,
			`SELECT `+notificationColumns+`
			 FROM notifications
			 WHERE status = 'pending' AND next_attempt_at <= NOW()
			 ORDER BY next_attempt_at
			 FOR UPDATE SKIP LOCKED
			 LIMIT 1`), n)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("get next pending notification: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE notifications
			 SET attempts = attempts + 1, next_attempt_at = NOW() + make_interval(secs => $1)
			 WHERE id = $2
			 RETURNING attempts, next_attempt_at`,
			lease.Seconds(), n.ID,
		).Scan(&n.Attempts, &n.NextAttemptAt)
		if err != nil {
			return fmt.Errorf("claim notification: %w", err)
		}

		claimed = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func MarkNotificationSent(ctx context.Context, q querier, id uuid.UUID) error {
	_, err := q.ExecContext(ctx,
		`UPDATE notifications SET status = 'sent', sent_at = NOW(), last_error = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

func RescheduleNotification(ctx context.Context, q querier, id uuid.UUID, at time.Time, lastError string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE notifications SET next_attempt_at = $1, last_error = $2 WHERE id = $3`, at, lastError, id)
	if err != nil {
		return fmt.Errorf("reschedule notification: %w", err)
	}
	return nil
}

func MarkNotificationFailed(ctx context.Context, q querier, id uuid.UUID, lastError string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE notifications SET status = 'failed', last_error = $1 WHERE id = $2`, lastError, id)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

func (s *Store) Enqueue(ctx context.Context, batch []models.Notification) error {
	return EnqueueNotifications(ctx, s.db, batch)
}

func (s *Store) ClaimNext(ctx context.Context, lease time.Duration) (*models.Notification, error) {
	return ClaimNextNotification(ctx, s.db, lease)
}

func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	return MarkNotificationSent(ctx, s.db, id)
}

func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, at time.Time, lastError string) error {
	return RescheduleNotification(ctx, s.db, id, at, lastError)
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return MarkNotificationFailed(ctx, s.db, id, lastError)
}
