package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coinscope/internal/infra"
	"coinscope/internal/models/db_models"
	"coinscope/internal/models/response_models"
	"coinscope/internal/repositories"
)

// mockSubscriptionRepo is an in-memory ISubscriptionRepository with the same
// uniqueness semantics as the real table.
type mockSubscriptionRepo struct {
	mu   sync.Mutex
	subs []*db_models.Subscription
}

func newMockSubscriptionRepo() *mockSubscriptionRepo {
	return &mockSubscriptionRepo{}
}

func (m *mockSubscriptionRepo) FindByPaymentReference(ctx context.Context, reference string) (*db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.PaymentReference == reference {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockSubscriptionRepo) FindByGatewaySubID(ctx context.Context, gatewaySubID string) (*db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.GatewaySubID == gatewaySubID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockSubscriptionRepo) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.Status == db_models.SubStatusActive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockSubscriptionRepo) FindCurrentByUser(ctx context.Context, userID uuid.UUID) (*db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *db_models.Subscription
	for _, s := range m.subs {
		if s.UserID == userID {
			if latest == nil || s.CreatedAt > latest.CreatedAt {
				latest = s
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *mockSubscriptionRepo) Insert(ctx context.Context, sub *db_models.Subscription) error {
	return m.InsertTx(nil, sub)
}

func (m *mockSubscriptionRepo) InsertTx(tx *gorm.DB, sub *db_models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.PaymentReference == sub.PaymentReference {
			return repositories.ErrDuplicateReference
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = int64(len(m.subs) + 1)
	copied := *sub
	m.subs = append(m.subs, &copied)
	return nil
}

func (m *mockSubscriptionRepo) CancelOtherActiveTx(tx *gorm.DB, userID uuid.UUID, keepReference string, now int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var touched int64
	for _, s := range m.subs {
		if s.UserID == userID && s.Status == db_models.SubStatusActive && s.PaymentReference != keepReference {
			s.Status = db_models.SubStatusCancelled
			cancelled := now
			s.CancelledAt = &cancelled
			touched++
		}
	}
	return touched, nil
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, sub *db_models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.ID == sub.ID {
			copied := *sub
			m.subs[i] = &copied
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockSubscriptionRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return m.UpdateFieldsTx(nil, id, fields)
}

func (m *mockSubscriptionRepo) UpdateFieldsTx(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID != id {
			continue
		}
		for key, value := range fields {
			switch key {
			case "status":
				s.Status = value.(db_models.SubscriptionStatus)
			case "gateway_sub_id":
				s.GatewaySubID = value.(string)
			case "current_period_start":
				s.CurrentPeriodStart = value.(int64)
			case "current_period_end":
				s.CurrentPeriodEnd = value.(int64)
			case "last_event_at":
				s.LastEventAt = value.(int64)
			case "cancelled_at":
				cancelled := value.(int64)
				s.CancelledAt = &cancelled
			case "reminder_sent_at":
				if value == nil {
					s.ReminderSentAt = nil
				} else {
					sent := value.(int64)
					s.ReminderSentAt = &sent
				}
			case "metadata":
				s.Metadata = value.(datatypes.JSON)
			}
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (m *mockSubscriptionRepo) ExpireDue(ctx context.Context, now int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var touched int64
	for _, s := range m.subs {
		if s.Status == db_models.SubStatusActive && s.CurrentPeriodEnd < now {
			s.Status = db_models.SubStatusExpired
			touched++
		}
	}
	return touched, nil
}

func (m *mockSubscriptionRepo) FindActiveEndingBefore(ctx context.Context, deadline int64) ([]db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db_models.Subscription
	for _, s := range m.subs {
		if s.Status == db_models.SubStatusActive && s.CurrentPeriodEnd <= deadline && s.ReminderSentAt == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSubscriptionRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (m *mockSubscriptionRepo) all() []db_models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db_models.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, *s)
	}
	return out
}

func (m *mockSubscriptionRepo) activeCount(userID uuid.UUID) int {
	count := 0
	for _, s := range m.all() {
		if s.UserID == userID && s.Status == db_models.SubStatusActive {
			count++
		}
	}
	return count
}

type mockNotifier struct {
	mu        sync.Mutex
	activated []string
	pastDue   []string
	cancelled []string
	expiring  []string
}

func (m *mockNotifier) SubscriptionActivated(ctx context.Context, userID uuid.UUID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activated = append(m.activated, planID)
	return nil
}

func (m *mockNotifier) SubscriptionPastDue(ctx context.Context, userID uuid.UUID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pastDue = append(m.pastDue, planID)
	return nil
}

func (m *mockNotifier) SubscriptionCancelled(ctx context.Context, userID uuid.UUID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, planID)
	return nil
}

func (m *mockNotifier) SubscriptionExpiring(ctx context.Context, userID uuid.UUID, planID string, daysLeft int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiring = append(m.expiring, planID)
	return nil
}

type mockGateway struct {
	cancelled []string
	cancelErr error
}

func (m *mockGateway) CreateOrGetCustomer(ctx context.Context, user *db_models.User) (string, error) {
	return "cus_mock", nil
}

func (m *mockGateway) CreateSubscriptionCheckout(ctx context.Context, userID uuid.UUID, planID string) (*response_models.CheckoutSession, error) {
	return &response_models.CheckoutSession{URL: "https://checkout.example/" + planID, GatewayReference: "cs_mock"}, nil
}

func (m *mockGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, err
	}
	return event, nil
}

func (m *mockGateway) CancelSubscription(ctx context.Context, gatewaySubID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, gatewaySubID)
	return nil
}

// mockChain resolves every hash to the configured transfer.
type mockChain struct {
	transfer *infra.ChainTransfer
	err      error
}

func (m *mockChain) LookupTransfer(ctx context.Context, network, txHash string) (*infra.ChainTransfer, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.transfer, nil
}

// mockQuoteStore keeps quotes in a map without TTL handling; expiry is
// exercised by deleting entries.
type mockQuoteStore struct {
	mu     sync.Mutex
	quotes map[string]*repositories.PendingPayment
}

func newMockQuoteStore() *mockQuoteStore {
	return &mockQuoteStore{quotes: map[string]*repositories.PendingPayment{}}
}

func (m *mockQuoteStore) Put(ctx context.Context, payment *repositories.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *payment
	m.quotes[payment.PaymentID] = &copied
	return nil
}

func (m *mockQuoteStore) Get(ctx context.Context, paymentID string) (*repositories.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[paymentID]
	if !ok {
		return nil, nil
	}
	copied := *q
	return &copied, nil
}

func (m *mockQuoteStore) Consume(ctx context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes, paymentID)
	return nil
}

func normalizeHash(h string) string { return strings.ToLower(h) }
