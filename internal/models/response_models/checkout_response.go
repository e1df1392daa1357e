package response_models

import (
	"time"

	"coinscope/internal/repositories"
)

type CheckoutSession struct {
	URL string `json:"url"`
	// Checkout session id, persisted on the pending subscription row.
	GatewayReference string `json:"gatewayReference"`
}

type HostedCharge struct {
	ChargeCode string    `json:"chargeCode"`
	HostedURL  string    `json:"hostedUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// RenewalStart is the union the renew endpoint returns: a wallet quote for
// crypto renewals or a checkout redirect for card renewals.
type RenewalStart struct {
	CheckoutURL string                       `json:"checkoutUrl,omitempty"`
	Payment     *repositories.PendingPayment `json:"payment,omitempty"`
}

type VerificationResult struct {
	Success          bool   `json:"success"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
	Error            string `json:"error,omitempty"`
}
