package utils

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrQuoteNotFound        = errors.New("payment quote not found or expired")
	ErrTransactionNotFound  = errors.New("transaction not found on chain")
	ErrAmountMismatch       = errors.New("transferred amount does not match quote")
	ErrWrongRecipient       = errors.New("transaction recipient does not match deposit address")
	ErrAlreadyProcessed     = errors.New("payment reference already processed")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrUpstreamUnavailable  = errors.New("upstream provider unavailable")
	ErrDatabaseError        = errors.New("database error")
)
