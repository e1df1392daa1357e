package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"coinscope/internal/infra"
	"coinscope/internal/models/db_models"
	"coinscope/pkg/logger"
)

// IWebhookService dispatches verified gateway events to the reconciler.
// Unknown event types are acknowledged and ignored; gateways expect a 2xx
// for every delivered type.
type IWebhookService interface {
	HandleGatewayEvent(ctx context.Context, event stripe.Event) error
	HandleCommerceEvent(ctx context.Context, event *infra.CommerceEvent) error
}

type webhookService struct {
	reconciler IReconcilerService
	log        *zap.Logger
}

func NewWebhookService(reconciler IReconcilerService) IWebhookService {
	return &webhookService{
		reconciler: reconciler,
		log:        logger.Get(),
	}
}

// invoicePayload is read straight from the raw event body rather than the
// SDK struct: webhook payloads keep the subscription reference and line
// periods stable across gateway API versions.
type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Lines        struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (w *webhookService) HandleGatewayEvent(ctx context.Context, event stripe.Event) error {
	w.log.Info("gateway event received",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	switch event.Type {
	case "checkout.session.completed":
		return w.handleCheckoutCompleted(ctx, event)

	case "invoice.payment_succeeded", "invoice.paid":
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("parse invoice payload: %w", err)
		}
		if inv.Subscription == "" {
			return nil
		}
		var periodEnd int64
		if len(inv.Lines.Data) > 0 {
			periodEnd = inv.Lines.Data[0].Period.End
		}
		return w.reconciler.RecordPaymentSucceeded(ctx, inv.Subscription, event.Created, periodEnd)

	case "invoice.payment_failed":
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("parse invoice payload: %w", err)
		}
		if inv.Subscription == "" {
			return nil
		}
		return w.reconciler.RecordPaymentFailure(ctx, inv.Subscription, event.Created)

	case "customer.subscription.deleted":
		var sub struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("parse subscription payload: %w", err)
		}
		return w.reconciler.RecordCancellation(ctx, sub.ID)

	default:
		w.log.Debug("ignoring unhandled event type", zap.String("event_type", string(event.Type)))
		return nil
	}
}

func (w *webhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session struct {
		ID           string            `json:"id"`
		Subscription string            `json:"subscription"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}

	userID, err := uuid.Parse(session.Metadata["user_id"])
	if err != nil {
		return fmt.Errorf("checkout session %s has no valid user_id metadata: %w", session.ID, err)
	}
	planID := session.Metadata["plan_id"]
	if planID == "" {
		return fmt.Errorf("checkout session %s has no plan_id metadata", session.ID)
	}
	months := 1
	if m, err := strconv.Atoi(session.Metadata["months"]); err == nil && m > 0 {
		months = m
	}

	_, err = w.reconciler.ActivateSubscription(ctx, ActivationParams{
		UserID:           userID,
		PlanID:           planID,
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: session.ID,
		GatewaySubID:     session.Subscription,
		PeriodDays:       months * 30,
		EventAt:          event.Created,
		Metadata: map[string]string{
			"source":           "checkout_session",
			"checkout_session": session.ID,
			"months":           strconv.Itoa(months),
		},
	})
	return err
}

func (w *webhookService) HandleCommerceEvent(ctx context.Context, event *infra.CommerceEvent) error {
	w.log.Info("commerce event received",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	switch event.Type {
	case "charge:confirmed":
		userID, err := uuid.Parse(event.Data.Metadata["user_id"])
		if err != nil {
			return fmt.Errorf("charge %s has no valid user_id metadata: %w", event.Data.Code, err)
		}
		planID := event.Data.Metadata["plan_id"]
		if planID == "" {
			return fmt.Errorf("charge %s has no plan_id metadata", event.Data.Code)
		}
		months := 1
		if m, err := strconv.Atoi(event.Data.Metadata["months"]); err == nil && m > 0 {
			months = m
		}

		// The charge metadata rides onto the row verbatim; it carries the
		// intent we tagged at charge creation.
		_, err = w.reconciler.ActivateSubscription(ctx, ActivationParams{
			UserID:           userID,
			PlanID:           planID,
			PaymentMethod:    db_models.MethodHostedCrypto,
			PaymentReference: event.Data.Code,
			PeriodDays:       months * 30,
			Metadata:         event.Data.Metadata,
		})
		return err

	case "charge:failed":
		w.log.Info("hosted charge failed", zap.String("charge_code", event.Data.Code))
		return nil

	default:
		w.log.Debug("ignoring unhandled commerce event", zap.String("event_type", event.Type))
		return nil
	}
}
