package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coinscope/internal/catalog"
	"coinscope/internal/models/db_models"
	"coinscope/internal/models/response_models"
	"coinscope/internal/repositories"
	"coinscope/pkg/utils"
)

// RenewalReminderDays is how far before period end the client starts
// prompting for renewal.
const RenewalReminderDays = 7

type IRenewalService interface {
	GetStatus(ctx context.Context, userID uuid.UUID) (*response_models.SubscriptionStatus, error)
	GetRenewalInfo(ctx context.Context, userID uuid.UUID) (*response_models.RenewalInfo, error)
	Renew(ctx context.Context, userID uuid.UUID, planID string, months int, network string) (*response_models.RenewalStart, error)
}

type renewalService struct {
	catalog *catalog.Catalog
	subs    repositories.ISubscriptionRepository
	gateway IGatewayService
	crypto  ICryptoService
}

func NewRenewalService(
	cat *catalog.Catalog,
	subs repositories.ISubscriptionRepository,
	gateway IGatewayService,
	crypto ICryptoService,
) IRenewalService {
	return &renewalService{
		catalog: cat,
		subs:    subs,
		gateway: gateway,
		crypto:  crypto,
	}
}

// DaysUntilExpiry rounds up: any partial day still counts as a day left.
// Never negative.
func DaysUntilExpiry(periodEnd int64, now time.Time) int {
	remaining := periodEnd - now.Unix()
	if remaining <= 0 {
		return 0
	}
	return int((remaining + 86399) / 86400)
}

// GetStatus reports the user's effective plan. Users with no subscription
// row (or only terminal ones) fall back to the free tier.
func (r *renewalService) GetStatus(ctx context.Context, userID uuid.UUID) (*response_models.SubscriptionStatus, error) {
	sub, err := r.subs.FindCurrentByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	free, _ := r.catalog.GetPlan(catalog.PlanFree)

	if sub == nil {
		return &response_models.SubscriptionStatus{
			Plan:     free.ID,
			PlanName: free.DisplayName,
			Status:   "none",
			Features: free.Features,
		}, nil
	}

	// A checkout is in flight. Entitlements stay free until the payment
	// event lands, but the client can show "payment processing".
	if sub.Status == db_models.SubStatusPending {
		return &response_models.SubscriptionStatus{
			Plan:     free.ID,
			PlanName: free.DisplayName,
			Status:   string(db_models.SubStatusPending),
			Features: free.Features,
		}, nil
	}

	plan, err := r.catalog.GetPlan(sub.PlanID)
	if err != nil {
		plan = free
	}

	switch sub.Status {
	case db_models.SubStatusActive, db_models.SubStatusPastDue:
		days := DaysUntilExpiry(sub.CurrentPeriodEnd, time.Now())
		return &response_models.SubscriptionStatus{
			Plan:             plan.ID,
			PlanName:         plan.DisplayName,
			Status:           string(sub.Status),
			Features:         plan.Features,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
			NeedsRenewal:     days <= RenewalReminderDays,
			DaysUntilExpiry:  &days,
		}, nil

	default:
		// Cancelled or expired: entitlements drop back to free, but the
		// client still needs the old plan for the renewal prompt.
		expiredAt := sub.CurrentPeriodEnd
		if sub.CancelledAt != nil {
			expiredAt = *sub.CancelledAt
		}
		return &response_models.SubscriptionStatus{
			Plan:      free.ID,
			PlanName:  free.DisplayName,
			Status:    string(sub.Status),
			Features:  free.Features,
			ExpiredAt: &expiredAt,
		}, nil
	}
}

// GetRenewalInfo prices the renewal options for the user's current or most
// recent paid plan.
func (r *renewalService) GetRenewalInfo(ctx context.Context, userID uuid.UUID) (*response_models.RenewalInfo, error) {
	sub, err := r.subs.FindCurrentByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		return nil, utils.ErrNoActiveSubscription
	}

	plan, err := r.catalog.GetPlan(sub.PlanID)
	if err != nil {
		return nil, err
	}

	options := make([]response_models.RenewalOption, 0, len(catalog.RenewalMonths))
	for _, months := range catalog.RenewalMonths {
		options = append(options, response_models.RenewalOption{
			Months:   months,
			Price:    catalog.RenewalPriceUSD(plan, months),
			Discount: catalog.Discount(months),
		})
	}

	return &response_models.RenewalInfo{
		ExpiredPlan:     plan.ID,
		PlanName:        plan.DisplayName,
		DaysUntilExpiry: DaysUntilExpiry(sub.CurrentPeriodEnd, time.Now()),
		RenewalOptions:  options,
	}, nil
}

// Renew starts a renewal payment. With a network it quotes a direct wallet
// payment; otherwise it opens a card checkout. Either path converges on the
// same activation flow once the payment lands.
func (r *renewalService) Renew(ctx context.Context, userID uuid.UUID, planID string, months int, network string) (*response_models.RenewalStart, error) {
	if _, err := r.catalog.GetPlan(planID); err != nil {
		return nil, err
	}

	if network != "" {
		quote, err := r.crypto.QuoteWalletPayment(ctx, userID, planID, months, network)
		if err != nil {
			return nil, err
		}
		return &response_models.RenewalStart{Payment: quote}, nil
	}

	session, err := r.gateway.CreateSubscriptionCheckout(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	return &response_models.RenewalStart{CheckoutURL: session.URL}, nil
}
