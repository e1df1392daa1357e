package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coinscope/internal/catalog"
	"coinscope/internal/infra"
	"coinscope/internal/models/db_models"
	"coinscope/internal/models/response_models"
	"coinscope/internal/repositories"
	"coinscope/pkg/logger"
	"coinscope/pkg/utils"
)

// ChainVerifier is the blockchain read collaborator: resolve a transaction
// hash to its recipient, transferred amount and finality. Returns nil, nil
// when the chain does not know the hash.
type ChainVerifier interface {
	LookupTransfer(ctx context.Context, network, txHash string) (*infra.ChainTransfer, error)
}

// CryptoConfig drives both crypto payment paths.
type CryptoConfig struct {
	// Operator-controlled deposit address per network key.
	DepositAddresses map[string]string
	QuoteTTL         time.Duration
	// Absolute tolerance when comparing on-chain amounts against a quote.
	// Stable-coin scale: a cent, not an ETH-scale epsilon.
	AmountEpsilon float64
}

type ICryptoService interface {
	CreateHostedCharge(ctx context.Context, userID uuid.UUID, planID string, months int) (*response_models.HostedCharge, error)
	QuoteWalletPayment(ctx context.Context, userID uuid.UUID, planID string, months int, network string) (*repositories.PendingPayment, error)
	VerifyWalletPayment(ctx context.Context, paymentID, txHash string) (*db_models.Subscription, error)
}

type cryptoService struct {
	cfg        CryptoConfig
	catalog    *catalog.Catalog
	commerce   *infra.CommerceClient
	chain      ChainVerifier
	quotes     repositories.IPendingPaymentStore
	subs       repositories.ISubscriptionRepository
	reconciler IReconcilerService
	log        *zap.Logger
}

func NewCryptoService(
	cfg CryptoConfig,
	cat *catalog.Catalog,
	commerce *infra.CommerceClient,
	chain ChainVerifier,
	quotes repositories.IPendingPaymentStore,
	subs repositories.ISubscriptionRepository,
	reconciler IReconcilerService,
) ICryptoService {
	if cfg.QuoteTTL == 0 {
		cfg.QuoteTTL = 30 * time.Minute
	}
	if cfg.AmountEpsilon == 0 {
		cfg.AmountEpsilon = 0.01
	}
	return &cryptoService{
		cfg:        cfg,
		catalog:    cat,
		commerce:   commerce,
		chain:      chain,
		quotes:     quotes,
		subs:       subs,
		reconciler: reconciler,
		log:        logger.Get(),
	}
}

// CreateHostedCharge opens a provider-hosted crypto checkout. Intent rides
// in the charge metadata so the webhook can activate without a side lookup.
func (c *cryptoService) CreateHostedCharge(ctx context.Context, userID uuid.UUID, planID string, months int) (*response_models.HostedCharge, error) {
	plan, err := c.catalog.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = 1
	}

	amount := catalog.RenewalPriceUSD(plan, months)
	charge, err := c.commerce.CreateCharge(ctx, infra.ChargeRequest{
		Name:        fmt.Sprintf("%s plan (%d months)", plan.DisplayName, months),
		Description: "Coinscope subscription",
		LocalPrice: infra.ChargeMoney{
			Amount:   strconv.FormatFloat(amount, 'f', 2, 64),
			Currency: "USD",
		},
		Metadata: map[string]string{
			"user_id": userID.String(),
			"plan_id": plan.ID,
			"months":  strconv.Itoa(months),
		},
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("hosted charge created",
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID),
		zap.String("charge_code", charge.Code))

	return &response_models.HostedCharge{
		ChargeCode: charge.Code,
		HostedURL:  charge.HostedURL,
		ExpiresAt:  charge.ExpiresAt,
	}, nil
}

// QuoteWalletPayment prices a direct wallet payment and records the quote
// with a bounded lifetime.
func (c *cryptoService) QuoteWalletPayment(ctx context.Context, userID uuid.UUID, planID string, months int, network string) (*repositories.PendingPayment, error) {
	plan, err := c.catalog.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = 1
	}
	address, ok := c.cfg.DepositAddresses[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	now := time.Now()
	payment := &repositories.PendingPayment{
		PaymentID:      uuid.New().String(),
		UserID:         userID,
		PlanID:         plan.ID,
		Months:         months,
		Network:        network,
		ExpectedAmount: catalog.WalletAmount(plan, months),
		Currency:       plan.CryptoPrice.Currency,
		DepositAddress: address,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.cfg.QuoteTTL),
	}

	if err := c.quotes.Put(ctx, payment); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	c.log.Info("wallet payment quoted",
		zap.String("payment_id", payment.PaymentID),
		zap.String("plan_id", plan.ID),
		zap.Float64("expected_amount", payment.ExpectedAmount),
		zap.String("network", network))

	return payment, nil
}

// VerifyWalletPayment checks a submitted transaction against its quote and
// activates on success. The checks run in a fixed order so the caller gets
// the most specific failure: quote, existence, amount, recipient, replay.
func (c *cryptoService) VerifyWalletPayment(ctx context.Context, paymentID, txHash string) (*db_models.Subscription, error) {
	quote, err := c.quotes.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if quote == nil {
		return nil, utils.ErrQuoteNotFound
	}

	transfer, err := c.chain.LookupTransfer(ctx, quote.Network, txHash)
	if err != nil {
		return nil, err
	}
	if transfer == nil || !transfer.Confirmed {
		return nil, utils.ErrTransactionNotFound
	}

	if math.Abs(transfer.Amount-quote.ExpectedAmount) > c.cfg.AmountEpsilon {
		c.log.Warn("wallet payment amount mismatch",
			zap.String("payment_id", paymentID),
			zap.Float64("expected", quote.ExpectedAmount),
			zap.Float64("got", transfer.Amount))
		return nil, utils.ErrAmountMismatch
	}

	if !strings.EqualFold(transfer.To, quote.DepositAddress) {
		c.log.Warn("wallet payment to wrong recipient",
			zap.String("payment_id", paymentID),
			zap.String("expected", quote.DepositAddress),
			zap.String("got", transfer.To))
		return nil, utils.ErrWrongRecipient
	}

	// Fast-path replay check; the unique index on payment_reference closes
	// the race two concurrent verifications of the same hash would open.
	prior, err := c.subs.FindByPaymentReference(ctx, strings.ToLower(txHash))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if prior != nil {
		return prior, utils.ErrAlreadyProcessed
	}

	sub, err := c.reconciler.ActivateSubscription(ctx, ActivationParams{
		UserID:           quote.UserID,
		PlanID:           quote.PlanID,
		PaymentMethod:    db_models.MethodDirectWallet,
		PaymentReference: strings.ToLower(txHash),
		PeriodDays:       quote.Months * 30,
		Metadata: map[string]string{
			"network":    quote.Network,
			"months":     strconv.Itoa(quote.Months),
			"payment_id": quote.PaymentID,
		},
	})
	if err != nil {
		return sub, err
	}

	if err := c.quotes.Consume(ctx, paymentID); err != nil {
		c.log.Warn("failed to consume quote", zap.String("payment_id", paymentID), zap.Error(err))
	}

	return sub, nil
}
