package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubStatusPending   SubscriptionStatus = "pending"
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusPastDue   SubscriptionStatus = "past_due"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusExpired   SubscriptionStatus = "expired"
)

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodHostedCrypto PaymentMethod = "hosted_crypto"
	MethodDirectWallet PaymentMethod = "direct_wallet"
)

type Subscription struct {
	BaseModel
	UserID uuid.UUID `gorm:"index;not null"`
	PlanID string    `gorm:"size:32;not null"`

	Status        SubscriptionStatus `gorm:"size:20;index"`
	PaymentMethod PaymentMethod      `gorm:"size:20"`

	// Checkout session id, commerce charge code or on-chain tx hash.
	// The unique index is the idempotency guarantee: replaying the same
	// payment event cannot produce a second row.
	PaymentReference string `gorm:"uniqueIndex;not null"`

	// Gateway-side subscription id, used to resolve invoice and
	// cancellation webhooks. Empty for crypto payments.
	GatewaySubID string `gorm:"index"`

	CurrentPeriodStart int64 `gorm:"not null"`
	CurrentPeriodEnd   int64 `gorm:"not null"`
	CancelledAt        *int64

	// Unix seconds of the newest gateway event applied to this row.
	// Failure events older than this marker are stale and skipped.
	LastEventAt int64

	// Set once the expiring-soon reminder has gone out for the current period.
	ReminderSentAt *int64

	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'"`

	User User `gorm:"foreignKey:UserID"`
}
