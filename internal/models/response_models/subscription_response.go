package response_models

type SubscriptionStatus struct {
	Plan             string   `json:"plan"`
	PlanName         string   `json:"planName"`
	Status           string   `json:"status"`
	Features         []string `json:"features"`
	CurrentPeriodEnd int64    `json:"currentPeriodEnd,omitempty"`
	NeedsRenewal     bool     `json:"needsRenewal,omitempty"`
	DaysUntilExpiry  *int     `json:"daysUntilExpiry,omitempty"`
	ExpiredAt        *int64   `json:"expiredAt,omitempty"`
}

type RenewalOption struct {
	Months   int     `json:"months"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
}

type RenewalInfo struct {
	ExpiredPlan     string          `json:"expiredPlan"`
	PlanName        string          `json:"planName"`
	DaysUntilExpiry int             `json:"daysUntilExpiry"`
	RenewalOptions  []RenewalOption `json:"renewalOptions"`
}
