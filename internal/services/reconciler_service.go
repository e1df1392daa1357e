package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coinscope/internal/models/db_models"
	"coinscope/internal/repositories"
	"coinscope/pkg/logger"
	"coinscope/pkg/utils"
)

// ActivationParams describes one successful payment event to apply.
type ActivationParams struct {
	UserID           uuid.UUID
	PlanID           string
	PaymentMethod    db_models.PaymentMethod
	PaymentReference string
	// Gateway-side subscription id for card payments, empty otherwise.
	GatewaySubID string
	PeriodDays   int
	// Unix seconds of the gateway event, used as the staleness marker.
	EventAt int64
	// Payment context persisted on the row: months, network, charge
	// metadata. Informational only, never read back for decisions.
	Metadata map[string]string
}

type IReconcilerService interface {
	ActivateSubscription(ctx context.Context, p ActivationParams) (*db_models.Subscription, error)
	RecordPaymentSucceeded(ctx context.Context, gatewaySubID string, eventAt int64, periodEnd int64) error
	RecordPaymentFailure(ctx context.Context, gatewaySubID string, eventAt int64) error
	RecordCancellation(ctx context.Context, gatewaySubID string) error
	CancelByUser(ctx context.Context, userID uuid.UUID) error
}

type reconcilerService struct {
	subs     repositories.ISubscriptionRepository
	gateway  IGatewayService
	notifier INotifyService
	log      *zap.Logger
}

func NewReconcilerService(
	subs repositories.ISubscriptionRepository,
	gateway IGatewayService,
	notifier INotifyService,
) IReconcilerService {
	return &reconcilerService{
		subs:     subs,
		gateway:  gateway,
		notifier: notifier,
		log:      logger.Get(),
	}
}

// ActivateSubscription applies a successful payment to persisted state.
// The payment reference is the idempotency key: a replay returns the
// existing row untouched. A pending row created at checkout time is
// promoted in place; otherwise any prior active subscription for the user
// is superseded and a fresh active row inserted.
func (r *reconcilerService) ActivateSubscription(ctx context.Context, p ActivationParams) (*db_models.Subscription, error) {
	if p.PeriodDays <= 0 {
		p.PeriodDays = 30
	}
	now := time.Now().Unix()
	if p.EventAt == 0 {
		p.EventAt = now
	}
	periodEnd := now + int64(p.PeriodDays)*86400

	existing, err := r.subs.FindByPaymentReference(ctx, p.PaymentReference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	if existing != nil && existing.Status != db_models.SubStatusPending {
		// Replayed event; nothing to do.
		return existing, nil
	}

	var meta datatypes.JSON
	if len(p.Metadata) > 0 {
		raw, merr := json.Marshal(p.Metadata)
		if merr != nil {
			return nil, fmt.Errorf("marshal activation metadata: %w", merr)
		}
		meta = datatypes.JSON(raw)
	}

	var activated *db_models.Subscription
	err = r.subs.Transaction(ctx, func(tx *gorm.DB) error {
		superseded, err := r.subs.CancelOtherActiveTx(tx, p.UserID, p.PaymentReference, now)
		if err != nil {
			return err
		}
		if superseded > 0 {
			r.log.Info("superseded prior active subscription",
				zap.String("user_id", p.UserID.String()),
				zap.Int64("count", superseded))
		}

		if existing != nil {
			// Promote the pending checkout row.
			fields := map[string]interface{}{
				"status":               db_models.SubStatusActive,
				"gateway_sub_id":       p.GatewaySubID,
				"current_period_start": now,
				"current_period_end":   periodEnd,
				"last_event_at":        p.EventAt,
			}
			if meta != nil {
				fields["metadata"] = meta
			}
			if err := r.subs.UpdateFieldsTx(tx, existing.ID, fields); err != nil {
				return err
			}
			existing.Status = db_models.SubStatusActive
			existing.GatewaySubID = p.GatewaySubID
			existing.CurrentPeriodStart = now
			existing.CurrentPeriodEnd = periodEnd
			existing.LastEventAt = p.EventAt
			if meta != nil {
				existing.Metadata = meta
			}
			activated = existing
			return nil
		}

		sub := &db_models.Subscription{
			UserID:             p.UserID,
			PlanID:             p.PlanID,
			Status:             db_models.SubStatusActive,
			PaymentMethod:      p.PaymentMethod,
			PaymentReference:   p.PaymentReference,
			GatewaySubID:       p.GatewaySubID,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   periodEnd,
			LastEventAt:        p.EventAt,
			Metadata:           meta,
		}
		if err := r.subs.InsertTx(tx, sub); err != nil {
			return err
		}
		activated = sub
		return nil
	})

	if errors.Is(err, repositories.ErrDuplicateReference) {
		// Lost a concurrent race on the same reference; the winner's row is
		// the activation.
		winner, ferr := r.subs.FindByPaymentReference(ctx, p.PaymentReference)
		if ferr != nil || winner == nil {
			return nil, utils.ErrAlreadyProcessed
		}
		return winner, utils.ErrAlreadyProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	r.log.Info("subscription activated",
		zap.String("user_id", p.UserID.String()),
		zap.String("plan_id", p.PlanID),
		zap.String("payment_method", string(p.PaymentMethod)),
		zap.String("payment_reference", p.PaymentReference))

	// Best effort; activation already committed.
	if err := r.notifier.SubscriptionActivated(ctx, p.UserID, p.PlanID); err != nil {
		r.log.Warn("activation notification failed", zap.Error(err))
	}

	return activated, nil
}

// RecordPaymentSucceeded applies a renewal invoice: the period extends and
// a past_due subscription recovers. Success is allowed to override an
// earlier failure even when delivered late, so retry races cannot leave a
// paid subscription stuck in past_due. A late success never shortens the
// period a newer success already granted.
func (r *reconcilerService) RecordPaymentSucceeded(ctx context.Context, gatewaySubID string, eventAt int64, periodEnd int64) error {
	sub, err := r.subs.FindByGatewaySubID(ctx, gatewaySubID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		r.log.Debug("payment succeeded for unknown subscription", zap.String("gateway_sub_id", gatewaySubID))
		return nil
	}
	if sub.Status == db_models.SubStatusCancelled || sub.Status == db_models.SubStatusExpired {
		// Terminal states only leave via a brand-new payment reference.
		return nil
	}
	if eventAt == sub.LastEventAt && sub.Status == db_models.SubStatusActive {
		// Duplicate delivery of the already-applied event.
		return nil
	}

	now := time.Now().Unix()
	if periodEnd == 0 {
		periodEnd = now + 30*86400
	}
	marker := sub.LastEventAt
	if eventAt > marker {
		marker = eventAt
	}
	if eventAt < sub.LastEventAt && periodEnd < sub.CurrentPeriodEnd {
		// Redelivery of an older invoice. The status recovery still applies,
		// but the period must never shrink below what a newer event granted.
		r.log.Info("stale renewal success, keeping newer period end",
			zap.String("gateway_sub_id", gatewaySubID),
			zap.Int64("event_at", eventAt),
			zap.Int64("last_event_at", sub.LastEventAt))
		periodEnd = sub.CurrentPeriodEnd
	}

	fields := map[string]interface{}{
		"status":             db_models.SubStatusActive,
		"current_period_end": periodEnd,
		"last_event_at":      marker,
		"reminder_sent_at":   nil,
	}
	if err := r.subs.UpdateFields(ctx, sub.ID, fields); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	r.log.Info("renewal payment applied",
		zap.String("gateway_sub_id", gatewaySubID),
		zap.Int64("period_end", periodEnd))
	return nil
}

// RecordPaymentFailure marks the subscription past_due. Unknown or terminal
// subscriptions are a no-op: failure events for them are expected under
// gateway retries. A failure older than the last applied event is stale
// (the subscription already advanced past it) and is dropped.
func (r *reconcilerService) RecordPaymentFailure(ctx context.Context, gatewaySubID string, eventAt int64) error {
	sub, err := r.subs.FindByGatewaySubID(ctx, gatewaySubID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		r.log.Debug("payment failure for unknown subscription", zap.String("gateway_sub_id", gatewaySubID))
		return nil
	}
	if sub.Status == db_models.SubStatusCancelled || sub.Status == db_models.SubStatusExpired {
		return nil
	}
	if eventAt <= sub.LastEventAt {
		r.log.Info("dropping stale payment failure",
			zap.String("gateway_sub_id", gatewaySubID),
			zap.Int64("event_at", eventAt),
			zap.Int64("last_event_at", sub.LastEventAt))
		return nil
	}

	fields := map[string]interface{}{
		"status":        db_models.SubStatusPastDue,
		"last_event_at": eventAt,
	}
	if err := r.subs.UpdateFields(ctx, sub.ID, fields); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	if err := r.notifier.SubscriptionPastDue(ctx, sub.UserID, sub.PlanID); err != nil {
		r.log.Warn("past-due notification failed", zap.Error(err))
	}
	return nil
}

// RecordCancellation marks the subscription cancelled. Repeated delivery of
// the same cancellation is a no-op.
func (r *reconcilerService) RecordCancellation(ctx context.Context, gatewaySubID string) error {
	sub, err := r.subs.FindByGatewaySubID(ctx, gatewaySubID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil || sub.Status == db_models.SubStatusCancelled {
		return nil
	}

	now := time.Now().Unix()
	fields := map[string]interface{}{
		"status":       db_models.SubStatusCancelled,
		"cancelled_at": now,
	}
	if err := r.subs.UpdateFields(ctx, sub.ID, fields); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	r.log.Info("subscription cancelled", zap.String("gateway_sub_id", gatewaySubID))

	if err := r.notifier.SubscriptionCancelled(ctx, sub.UserID, sub.PlanID); err != nil {
		r.log.Warn("cancellation notification failed", zap.Error(err))
	}
	return nil
}

// CancelByUser cancels the caller's active subscription, gateway-side first
// for card billing so recurring charges stop.
func (r *reconcilerService) CancelByUser(ctx context.Context, userID uuid.UUID) error {
	sub, err := r.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		return utils.ErrNoActiveSubscription
	}

	if sub.PaymentMethod == db_models.MethodCard && sub.GatewaySubID != "" {
		if err := r.gateway.CancelSubscription(ctx, sub.GatewaySubID); err != nil {
			return err
		}
		return r.RecordCancellation(ctx, sub.GatewaySubID)
	}

	now := time.Now().Unix()
	fields := map[string]interface{}{
		"status":       db_models.SubStatusCancelled,
		"cancelled_at": now,
	}
	if err := r.subs.UpdateFields(ctx, sub.ID, fields); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	if err := r.notifier.SubscriptionCancelled(ctx, sub.UserID, sub.PlanID); err != nil {
		r.log.Warn("cancellation notification failed", zap.Error(err))
	}
	return nil
}
