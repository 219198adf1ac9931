package notify

import (
	"context"
	"errors"
	"time"

	"github.com/safar/peptide-shop/internal/config"
	"go.uber.org/zap"
)

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

// Worker delivers queued notifications until its context is cancelled.
type Worker struct {
	queue        Queue
	mailer       Mailer
	logger       *zap.Logger
	pollInterval time.Duration
	sendTimeout  time.Duration
	maxAttempts  int
	now          func() time.Time
}

func NewWorker(queue Queue, mailer Mailer, logger *zap.Logger, cfg config.NotifyConfig) *Worker {
	return &Worker{
		queue:        queue,
		mailer:       mailer,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		sendTimeout:  cfg.SendTimeout,
		maxAttempts:  cfg.MaxAttempts,
		now:          time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("notification worker started", zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("notification worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// drain delivers due messages until none are left or ctx ends.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.Error("notification outbox unavailable", zap.Error(err))
			}
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and attempts one due message. It reports whether a message was found.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	n, err := w.queue.ClaimNext(ctx, 2*w.sendTimeout)
	if err != nil {
		return false, err
	}
	if n == nil {
		return false, nil
	}

	log := w.logger.With(
		zap.String("notification_id", n.ID.String()),
		zap.String("kind", string(n.Kind)),
		zap.Int("attempt", n.Attempts),
	)

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	sendErr := w.mailer.Send(sendCtx, Message{To: n.Recipient, Subject: n.Subject, HTML: n.Body})
	cancel()

	if sendErr == nil {
		if err := w.queue.MarkSent(ctx, n.ID); err != nil {
			return true, err
		}
		log.Info("notification sent")
		return true, nil
	}

	if n.Attempts >= w.maxAttempts {
		log.Error("notification failed permanently", zap.Error(sendErr))
		return true, w.queue.MarkFailed(ctx, n.ID, sendErr.Error())
	}

	next := w.now().Add(retryDelay(n.Attempts))
	log.Warn("notification send failed, will retry", zap.Time("next_attempt_at", next), zap.Error(sendErr))
	return true, w.queue.Reschedule(ctx, n.ID, next, sendErr.Error())
}

// retryDelay doubles from retryBaseDelay with each attempt up to retryMaxDelay.
func retryDelay(attempts int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

