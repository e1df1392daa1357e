package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"coinscope/internal/infra"
)

// PendingPayment is a short-lived wallet-payment quote. It lives in redis
// with a TTL matching ExpiresAt, so a stale quote cannot be replayed after
// expiry even without a background sweep.
type PendingPayment struct {
	PaymentID      string    `json:"payment_id"`
	UserID         uuid.UUID `json:"user_id"`
	PlanID         string    `json:"plan_id"`
	Months         int       `json:"months"`
	Network        string    `json:"network"`
	ExpectedAmount float64   `json:"expected_amount"`
	Currency       string    `json:"currency"`
	DepositAddress string    `json:"deposit_address"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type IPendingPaymentStore interface {
	Put(ctx context.Context, payment *PendingPayment) error
	// Get returns nil, nil when the quote is unknown or expired.
	Get(ctx context.Context, paymentID string) (*PendingPayment, error)
	// Consume removes the quote so it cannot back a second activation.
	Consume(ctx context.Context, paymentID string) error
}

type redisPendingPaymentStore struct {
	client *infra.RedisClient
}

func NewPendingPaymentStore(client *infra.RedisClient) IPendingPaymentStore {
	return &redisPendingPaymentStore{client: client}
}

func (s *redisPendingPaymentStore) Put(ctx context.Context, payment *PendingPayment) error {
	ttl := time.Until(payment.ExpiresAt)
	if ttl <= 0 {
		return errors.New("quote already expired")
	}
	return s.client.SetJSON(ctx, []string{"quote", payment.PaymentID}, payment, ttl)
}

func (s *redisPendingPaymentStore) Get(ctx context.Context, paymentID string) (*PendingPayment, error) {
	var payment PendingPayment
	err := s.client.GetJSON(ctx, []string{"quote", paymentID}, &payment)
	if err != nil {
		if errors.Is(err, infra.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if time.Now().After(payment.ExpiresAt) {
		return nil, nil
	}
	return &payment, nil
}

func (s *redisPendingPaymentStore) Consume(ctx context.Context, paymentID string) error {
	return s.client.Del(ctx, "quote", paymentID)
}
