package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coinscope/internal/repositories"
	"coinscope/pkg/logger"
)

// ExpiryWorker periodically flips active subscriptions whose period has
// elapsed to expired and sends the expiring-soon reminder once per period.
// Correctness does not depend on it running: expiry is also derived at read
// time. It exists so reminder mail goes out and stale rows do not linger.
type ExpiryWorker struct {
	subs     repositories.ISubscriptionRepository
	notifier INotifyService
	interval time.Duration
	stop     chan struct{}
	log      *zap.Logger
}

func NewExpiryWorker(subs repositories.ISubscriptionRepository, notifier INotifyService) *ExpiryWorker {
	return &ExpiryWorker{
		subs:     subs,
		notifier: notifier,
		interval: time.Hour,
		stop:     make(chan struct{}),
		log:      logger.Get(),
	}
}

func (w *ExpiryWorker) Start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RunOnce(context.Background())
			case <-w.stop:
				return
			}
		}
	}()
}

func (w *ExpiryWorker) Stop() {
	close(w.stop)
}

func (w *ExpiryWorker) RunOnce(ctx context.Context) {
	now := time.Now()

	expired, err := w.subs.ExpireDue(ctx, now.Unix())
	if err != nil {
		w.log.Error("expiry sweep failed", zap.Error(err))
	} else if expired > 0 {
		w.log.Info("subscriptions expired", zap.Int64("count", expired))
	}

	deadline := now.Add(RenewalReminderDays * 24 * time.Hour).Unix()
	expiring, err := w.subs.FindActiveEndingBefore(ctx, deadline)
	if err != nil {
		w.log.Error("reminder query failed", zap.Error(err))
		return
	}

	for _, sub := range expiring {
		days := DaysUntilExpiry(sub.CurrentPeriodEnd, now)
		if err := w.notifier.SubscriptionExpiring(ctx, sub.UserID, sub.PlanID, days); err != nil {
			w.log.Warn("reminder notification failed",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
			continue
		}
		sent := now.Unix()
		if err := w.subs.UpdateFields(ctx, sub.ID, map[string]interface{}{
			"reminder_sent_at": sent,
		}); err != nil {
			w.log.Warn("failed to mark reminder sent",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		}
	}
}
