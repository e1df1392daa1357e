package db_models

type User struct {
	BaseModel
	Email string `gorm:"uniqueIndex;not null"`

	// Set lazily on the first card checkout. The unique index is what
	// actually guarantees one gateway customer per user; the adapter's
	// re-check before create is only a fast path.
	StripeCustomerID *string `gorm:"uniqueIndex"`
}
