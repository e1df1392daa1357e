package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinscope/internal/models/db_models"
	"coinscope/pkg/utils"
)

func newReconcilerFixture() (IReconcilerService, *mockSubscriptionRepo, *mockGateway, *mockNotifier) {
	repo := newMockSubscriptionRepo()
	gateway := &mockGateway{}
	notifier := &mockNotifier{}
	return NewReconcilerService(repo, gateway, notifier), repo, gateway, notifier
}

func TestActivateSubscription_CreatesActiveRow(t *testing.T) {
	svc, repo, _, notifier := newReconcilerFixture()
	userID := uuid.New()

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_test_1",
		GatewaySubID:     "sub_1",
		PeriodDays:       30,
	})
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, db_models.SubStatusActive, sub.Status)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, "sub_1", sub.GatewaySubID)
	assert.Greater(t, sub.CurrentPeriodEnd, sub.CurrentPeriodStart)
	assert.Equal(t, 1, repo.activeCount(userID))
	assert.Equal(t, []string{"pro"}, notifier.activated)
}

func TestActivateSubscription_ReplayReturnsSameRow(t *testing.T) {
	svc, repo, _, notifier := newReconcilerFixture()
	userID := uuid.New()
	params := ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_test_replay",
		GatewaySubID:     "sub_replay",
		PeriodDays:       30,
	}

	first, err := svc.ActivateSubscription(context.Background(), params)
	require.NoError(t, err)

	second, err := svc.ActivateSubscription(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CurrentPeriodEnd, second.CurrentPeriodEnd)
	assert.Equal(t, 1, repo.activeCount(userID))
	// The replay must not notify again.
	assert.Len(t, notifier.activated, 1)
}

func TestActivateSubscription_PromotesPendingCheckoutRow(t *testing.T) {
	svc, repo, _, _ := newReconcilerFixture()
	userID := uuid.New()

	pending := &db_models.Subscription{
		UserID:           userID,
		PlanID:           "premium",
		Status:           db_models.SubStatusPending,
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_pending",
	}
	require.NoError(t, repo.Insert(context.Background(), pending))

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "premium",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_pending",
		GatewaySubID:     "sub_promoted",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	// Promotion happens in place rather than through a second row.
	assert.Equal(t, pending.ID, sub.ID)
	assert.Equal(t, db_models.SubStatusActive, sub.Status)
	assert.Equal(t, "sub_promoted", sub.GatewaySubID)
	assert.Len(t, repo.all(), 1)
}

func TestActivateSubscription_SupersedesPriorActive(t *testing.T) {
	svc, repo, _, _ := newReconcilerFixture()
	userID := uuid.New()

	_, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_old",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	fresh, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "premium",
		PaymentMethod:    db_models.MethodDirectWallet,
		PaymentReference: "0xnewhash",
		PeriodDays:       90,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.activeCount(userID))
	assert.Equal(t, "premium", fresh.PlanID)

	old, err := repo.FindByPaymentReference(context.Background(), "cs_old")
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, db_models.SubStatusCancelled, old.Status)
	require.NotNil(t, old.CancelledAt)
}

func TestRecordPaymentSucceeded_ExtendsPeriod(t *testing.T) {
	svc, repo, _, _ := newReconcilerFixture()
	userID := uuid.New()

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_renew",
		GatewaySubID:     "sub_renew",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	newEnd := sub.CurrentPeriodEnd + 30*86400
	err = svc.RecordPaymentSucceeded(context.Background(), "sub_renew", sub.LastEventAt+10, newEnd)
	require.NoError(t, err)

	got, err := repo.FindByGatewaySubID(context.Background(), "sub_renew")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusActive, got.Status)
	assert.Equal(t, newEnd, got.CurrentPeriodEnd)
	assert.Nil(t, got.ReminderSentAt)
}

func TestRecordPaymentSucceeded_StaleSuccessKeepsNewerPeriod(t *testing.T) {
	svc, repo, _, _ := newReconcilerFixture()
	userID := uuid.New()

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_ooo_renew",
		GatewaySubID:     "sub_ooo_renew",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	newerEnd := sub.CurrentPeriodEnd + 60*86400
	olderEnd := sub.CurrentPeriodEnd + 30*86400
	require.NoError(t, svc.RecordPaymentSucceeded(context.Background(), "sub_ooo_renew", sub.LastEventAt+20, newerEnd))
	require.NoError(t, svc.RecordPaymentSucceeded(context.Background(), "sub_ooo_renew", sub.LastEventAt+10, olderEnd))

	got, err := repo.FindByGatewaySubID(context.Background(), "sub_ooo_renew")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusActive, got.Status)
	// The redelivered older invoice must not rewind the paid period.
	assert.Equal(t, newerEnd, got.CurrentPeriodEnd)
	assert.Equal(t, sub.LastEventAt+20, got.LastEventAt)
}

func TestRecordPaymentSucceeded_StaleSuccessStillRecoversPastDue(t *testing.T) {
	svc, repo, _, _ := newReconcilerFixture()
	userID := uuid.New()

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_recover",
		GatewaySubID:     "sub_recover",
		PeriodDays:       90,
	})
	require.NoError(t, err)

	require.NoError(t, svc.RecordPaymentFailure(context.Background(), "sub_recover", sub.LastEventAt+30))
	// The matching success arrives late, with an older timestamp and a
	// shorter period than the row already carries.
	require.NoError(t, svc.RecordPaymentSucceeded(context.Background(), "sub_recover", sub.LastEventAt+5, sub.CurrentPeriodEnd-30*86400))

	got, err := repo.FindByGatewaySubID(context.Background(), "sub_recover")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusActive, got.Status)
	assert.Equal(t, sub.CurrentPeriodEnd, got.CurrentPeriodEnd)
}

func TestRecordPaymentSucceeded_UnknownSubscriptionIsNoop(t *testing.T) {
	svc, repo, _, _ := newReconcilerFixture()

	err := svc.RecordPaymentSucceeded(context.Background(), "sub_missing", time.Now().Unix(), 0)
	require.NoError(t, err)
	assert.Empty(t, repo.all())
}

func TestRecordPaymentFailure_MarksPastDueAndNotifies(t *testing.T) {
	svc, repo, _, notifier := newReconcilerFixture()
	userID := uuid.New()

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_fail",
		GatewaySubID:     "sub_fail",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	err = svc.RecordPaymentFailure(context.Background(), "sub_fail", sub.LastEventAt+5)
	require.NoError(t, err)

	got, err := repo.FindByGatewaySubID(context.Background(), "sub_fail")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusPastDue, got.Status)
	assert.Equal(t, []string{"pro"}, notifier.pastDue)
}

func TestRecordPaymentFailure_StaleEventDropped(t *testing.T) {
	svc, repo, _, notifier := newReconcilerFixture()
	userID := uuid.New()

	sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_stale",
		GatewaySubID:     "sub_stale",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	err = svc.RecordPaymentFailure(context.Background(), "sub_stale", sub.LastEventAt-100)
	require.NoError(t, err)

	got, err := repo.FindByGatewaySubID(context.Background(), "sub_stale")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusActive, got.Status)
	assert.Empty(t, notifier.pastDue)
}

// A success and a failure for the same billing attempt must converge to
// active regardless of delivery order.
func TestOutOfOrderFailureThenSuccess_ConvergesActive(t *testing.T) {
	for name, successFirst := range map[string]bool{"success_first": true, "failure_first": false} {
		t.Run(name, func(t *testing.T) {
			svc, repo, _, _ := newReconcilerFixture()
			userID := uuid.New()

			sub, err := svc.ActivateSubscription(context.Background(), ActivationParams{
				UserID:           userID,
				PlanID:           "pro",
				PaymentMethod:    db_models.MethodCard,
				PaymentReference: "cs_order",
				GatewaySubID:     "sub_order",
				PeriodDays:       30,
			})
			require.NoError(t, err)

			failureAt := sub.LastEventAt + 10
			successAt := sub.LastEventAt + 20
			newEnd := sub.CurrentPeriodEnd + 30*86400

			if successFirst {
				require.NoError(t, svc.RecordPaymentSucceeded(context.Background(), "sub_order", successAt, newEnd))
				require.NoError(t, svc.RecordPaymentFailure(context.Background(), "sub_order", failureAt))
			} else {
				require.NoError(t, svc.RecordPaymentFailure(context.Background(), "sub_order", failureAt))
				require.NoError(t, svc.RecordPaymentSucceeded(context.Background(), "sub_order", successAt, newEnd))
			}

			got, err := repo.FindByGatewaySubID(context.Background(), "sub_order")
			require.NoError(t, err)
			assert.Equal(t, db_models.SubStatusActive, got.Status)
			assert.Equal(t, newEnd, got.CurrentPeriodEnd)
		})
	}
}

func TestRecordCancellation_Idempotent(t *testing.T) {
	svc, repo, _, notifier := newReconcilerFixture()
	userID := uuid.New()

	_, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_cancel",
		GatewaySubID:     "sub_cancel",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	require.NoError(t, svc.RecordCancellation(context.Background(), "sub_cancel"))
	require.NoError(t, svc.RecordCancellation(context.Background(), "sub_cancel"))

	got, err := repo.FindByGatewaySubID(context.Background(), "sub_cancel")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusCancelled, got.Status)
	assert.Len(t, notifier.cancelled, 1)
}

func TestCancelByUser_NoActiveSubscription(t *testing.T) {
	svc, _, _, _ := newReconcilerFixture()

	err := svc.CancelByUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, utils.ErrNoActiveSubscription)
}

func TestCancelByUser_CardGoesThroughGateway(t *testing.T) {
	svc, repo, gateway, _ := newReconcilerFixture()
	userID := uuid.New()

	_, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "pro",
		PaymentMethod:    db_models.MethodCard,
		PaymentReference: "cs_user_cancel",
		GatewaySubID:     "sub_user_cancel",
		PeriodDays:       30,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelByUser(context.Background(), userID))

	assert.Equal(t, []string{"sub_user_cancel"}, gateway.cancelled)
	got, err := repo.FindByGatewaySubID(context.Background(), "sub_user_cancel")
	require.NoError(t, err)
	assert.Equal(t, db_models.SubStatusCancelled, got.Status)
}

func TestCancelByUser_WalletCancelsLocally(t *testing.T) {
	svc, repo, gateway, _ := newReconcilerFixture()
	userID := uuid.New()

	_, err := svc.ActivateSubscription(context.Background(), ActivationParams{
		UserID:           userID,
		PlanID:           "premium",
		PaymentMethod:    db_models.MethodDirectWallet,
		PaymentReference: "0xwalletcancel",
		PeriodDays:       90,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelByUser(context.Background(), userID))

	assert.Empty(t, gateway.cancelled)
	assert.Equal(t, 0, repo.activeCount(userID))
}
