package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"coinscope/internal/catalog"
	"coinscope/internal/models/db_models"
	"coinscope/internal/models/response_models"
	"coinscope/internal/repositories"
	"coinscope/pkg/logger"
	"coinscope/pkg/utils"
)

// GatewayConfig carries the card-gateway credentials. The secret key decides
// test vs live; nothing here is read from the environment directly, the fx
// module does that once.
type GatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// Gateway price ids per plan, e.g. "pro" -> "price_...".
	PriceIDs map[string]string
}

type IGatewayService interface {
	CreateOrGetCustomer(ctx context.Context, user *db_models.User) (string, error)
	CreateSubscriptionCheckout(ctx context.Context, userID uuid.UUID, planID string) (*response_models.CheckoutSession, error)
	VerifyWebhookSignature(payload []byte, signatureHeader string) (stripe.Event, error)
	CancelSubscription(ctx context.Context, gatewaySubID string) error
}

type gatewayService struct {
	api     *client.API
	cfg     GatewayConfig
	catalog *catalog.Catalog
	users   repositories.IUserRepository
	subs    repositories.ISubscriptionRepository
	log     *zap.Logger
}

func NewGatewayService(
	cfg GatewayConfig,
	cat *catalog.Catalog,
	users repositories.IUserRepository,
	subs repositories.ISubscriptionRepository,
) IGatewayService {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &gatewayService{
		api:     api,
		cfg:     cfg,
		catalog: cat,
		users:   users,
		subs:    subs,
		log:     logger.Get(),
	}
}

// CreateOrGetCustomer resolves the gateway customer for a user, creating one
// lazily. The stored id is re-checked right before the create call; the
// datastore's unique index on the column is what ultimately collapses a
// concurrent double-create to a single persisted id.
func (g *gatewayService) CreateOrGetCustomer(ctx context.Context, user *db_models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	fresh, err := g.users.FindById(ctx, user.ID.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if fresh == nil {
		return "", utils.ErrUserNotFound
	}
	if fresh.StripeCustomerID != nil && *fresh.StripeCustomerID != "" {
		return *fresh.StripeCustomerID, nil
	}

	cust, err := g.api.Customers.New(&stripe.CustomerParams{
		Email: stripe.String(fresh.Email),
		Metadata: map[string]string{
			"user_id": fresh.ID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: customer create: %v", utils.ErrUpstreamUnavailable, err)
	}

	won, err := g.users.SetStripeCustomerID(ctx, fresh.ID.String(), cust.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if !won {
		// Lost a concurrent race; use whichever id got persisted.
		again, err := g.users.FindById(ctx, fresh.ID.String())
		if err == nil && again != nil && again.StripeCustomerID != nil {
			g.log.Warn("discarding duplicate gateway customer",
				zap.String("user_id", fresh.ID.String()),
				zap.String("discarded", cust.ID))
			return *again.StripeCustomerID, nil
		}
	}

	return cust.ID, nil
}

// CreateSubscriptionCheckout opens a subscription-mode checkout session for
// the plan and records a pending subscription keyed by the session id. The
// gateway subscription id is filled in when checkout.session.completed
// arrives.
func (g *gatewayService) CreateSubscriptionCheckout(ctx context.Context, userID uuid.UUID, planID string) (*response_models.CheckoutSession, error) {
	plan, err := g.catalog.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	priceID, ok := g.cfg.PriceIDs[plan.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway price for plan %s", utils.ErrPlanNotFound, plan.ID)
	}

	user, err := g.users.FindById(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if user == nil {
		return nil, utils.ErrUserNotFound
	}

	customerID, err := g.CreateOrGetCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": userID.String(),
			"plan_id": plan.ID,
		},
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", utils.ErrUpstreamUnavailable, err)
	}

	now := time.Now().Unix()
	pending := &db_models.Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             db_models.SubStatusPending,
		PaymentMethod:      db_models.MethodCard,
		PaymentReference:   session.ID,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now,
	}
	if err := g.subs.Insert(ctx, pending); err != nil {
		// A retried checkout for the same session is harmless.
		if !errors.Is(err, repositories.ErrDuplicateReference) {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
	}

	g.log.Info("checkout session created",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID),
		zap.String("session_id", session.ID))

	return &response_models.CheckoutSession{
		URL:              session.URL,
		GatewayReference: session.ID,
	}, nil
}

// VerifyWebhookSignature wraps the SDK's constant-time verification over the
// raw body bytes.
func (g *gatewayService) VerifyWebhookSignature(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.cfg.WebhookSecret)
	if err != nil {
		return stripe.Event{}, utils.ErrInvalidSignature
	}
	return event, nil
}

// CancelSubscription cancels gateway-side. "Already cancelled" counts as
// success so webhook-driven and user-driven cancels can overlap.
func (g *gatewayService) CancelSubscription(ctx context.Context, gatewaySubID string) error {
	_, err := g.api.Subscriptions.Cancel(gatewaySubID, nil)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok {
			if stripeErr.HTTPStatusCode == 404 ||
				strings.Contains(stripeErr.Msg, "canceled subscription") {
				return nil
			}
		}
		return fmt.Errorf("%w: cancel: %v", utils.ErrUpstreamUnavailable, err)
	}
	return nil
}
