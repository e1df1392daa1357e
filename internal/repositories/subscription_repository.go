package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"coinscope/internal/models/db_models"
)

type ISubscriptionRepository interface {
	FindByPaymentReference(ctx context.Context, reference string) (*db_models.Subscription, error)
	FindByGatewaySubID(ctx context.Context, gatewaySubID string) (*db_models.Subscription, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*db_models.Subscription, error)
	// FindCurrentByUser returns the newest subscription row for the user in
	// any state, for the status endpoint.
	FindCurrentByUser(ctx context.Context, userID uuid.UUID) (*db_models.Subscription, error)
	// Insert returns ErrDuplicateReference when the payment reference has
	// already been recorded. The unique index makes concurrent inserts of
	// the same reference resolve to exactly one row.
	Insert(ctx context.Context, sub *db_models.Subscription) error
	InsertTx(tx *gorm.DB, sub *db_models.Subscription) error
	// CancelOtherActiveTx cancels every active subscription of the user
	// except the one carrying keepReference, enforcing the single-active
	// invariant at activation time. Returns how many rows it touched.
	CancelOtherActiveTx(tx *gorm.DB, userID uuid.UUID, keepReference string, now int64) (int64, error)
	Update(ctx context.Context, sub *db_models.Subscription) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	UpdateFieldsTx(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	// ExpireDue flips active rows whose period has elapsed to expired.
	ExpireDue(ctx context.Context, now int64) (int64, error)
	// FindActiveEndingBefore lists active rows ending by the deadline that
	// have not had their reminder sent yet.
	FindActiveEndingBefore(ctx context.Context, deadline int64) ([]db_models.Subscription, error)
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var ErrDuplicateReference = errors.New("payment reference already recorded")

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) ISubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (s *subscriptionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*db_models.Subscription, error) {
	var sub db_models.Subscription
	err := s.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &sub, nil
}

func (s *subscriptionRepository) FindByPaymentReference(ctx context.Context, reference string) (*db_models.Subscription, error) {
	return s.findOne(ctx, "payment_reference = ?", reference)
}

func (s *subscriptionRepository) FindByGatewaySubID(ctx context.Context, gatewaySubID string) (*db_models.Subscription, error) {
	return s.findOne(ctx, "gateway_sub_id = ?", gatewaySubID)
}

func (s *subscriptionRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*db_models.Subscription, error) {
	return s.findOne(ctx, "user_id = ? AND status = ?", userID, db_models.SubStatusActive)
}

func (s *subscriptionRepository) FindCurrentByUser(ctx context.Context, userID uuid.UUID) (*db_models.Subscription, error) {
	return s.findOne(ctx, "user_id = ?", userID)
}

func (s *subscriptionRepository) Insert(ctx context.Context, sub *db_models.Subscription) error {
	return s.InsertTx(s.db.WithContext(ctx), sub)
}

func (s *subscriptionRepository) InsertTx(tx *gorm.DB, sub *db_models.Subscription) error {
	err := tx.Create(sub).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	return err
}

func (s *subscriptionRepository) CancelOtherActiveTx(tx *gorm.DB, userID uuid.UUID, keepReference string, now int64) (int64, error) {
	res := tx.Model(&db_models.Subscription{}).
		Where("user_id = ? AND status = ? AND payment_reference <> ?",
			userID, db_models.SubStatusActive, keepReference).
		Updates(map[string]interface{}{
			"status":       db_models.SubStatusCancelled,
			"cancelled_at": now,
		})
	return res.RowsAffected, res.Error
}

func (s *subscriptionRepository) Update(ctx context.Context, sub *db_models.Subscription) error {
	return s.db.WithContext(ctx).Save(sub).Error
}

func (s *subscriptionRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return s.UpdateFieldsTx(s.db.WithContext(ctx), id, fields)
}

func (s *subscriptionRepository) UpdateFieldsTx(tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	return tx.Model(&db_models.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

func (s *subscriptionRepository) ExpireDue(ctx context.Context, now int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&db_models.Subscription{}).
		Where("status = ? AND current_period_end < ?", db_models.SubStatusActive, now).
		Update("status", db_models.SubStatusExpired)
	return res.RowsAffected, res.Error
}

func (s *subscriptionRepository) FindActiveEndingBefore(ctx context.Context, deadline int64) ([]db_models.Subscription, error) {
	var subs []db_models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND current_period_end <= ? AND reminder_sent_at IS NULL",
			db_models.SubStatusActive, deadline).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *subscriptionRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
