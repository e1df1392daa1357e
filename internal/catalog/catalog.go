package catalog

import (
	"math"

	"coinscope/pkg/utils"
)

type CryptoPrice struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

type Plan struct {
	ID              string      `json:"id"`
	DisplayName     string      `json:"display_name"`
	MonthlyPriceUSD float64     `json:"monthly_price_usd"`
	CryptoPrice     CryptoPrice `json:"crypto_price"`
	Features        []string    `json:"features"`
}

const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanPremium = "premium"
)

// Catalog is the static tier registry. Built once at startup, never mutated.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

func NewCatalog() *Catalog {
	plans := []Plan{
		{
			ID:              PlanFree,
			DisplayName:     "Free",
			MonthlyPriceUSD: 0,
			CryptoPrice:     CryptoPrice{Currency: "USDC", Amount: 0},
			Features:        []string{"market_overview", "watchlist"},
		},
		{
			ID:              PlanPro,
			DisplayName:     "Pro",
			MonthlyPriceUSD: 29.99,
			CryptoPrice:     CryptoPrice{Currency: "USDC", Amount: 29.99},
			Features:        []string{"market_overview", "watchlist", "ai_analysis", "price_alerts"},
		},
		{
			ID:              PlanPremium,
			DisplayName:     "Premium",
			MonthlyPriceUSD: 79.99,
			CryptoPrice:     CryptoPrice{Currency: "USDC", Amount: 79.99},
			Features:        []string{"market_overview", "watchlist", "ai_analysis", "price_alerts", "whale_tracking", "priority_support"},
		},
	}

	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}

	return &Catalog{plans: plans, byID: byID}
}

func (c *Catalog) GetPlan(planID string) (*Plan, error) {
	p, ok := c.byID[planID]
	if !ok {
		return nil, utils.ErrPlanNotFound
	}
	return &p, nil
}

func (c *Catalog) ListPlans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// RenewalMonths are the billing lengths offered on the renewal screen.
var RenewalMonths = []int{1, 3, 6, 12}

// Discount is a non-decreasing step function of months. One month never
// carries a discount.
func Discount(months int) float64 {
	switch {
	case months >= 12:
		return 0.20
	case months >= 6:
		return 0.10
	case months >= 3:
		return 0.05
	default:
		return 0
	}
}

// RenewalPriceUSD is the total card price for a multi-month renewal,
// rounded to cents.
func RenewalPriceUSD(p *Plan, months int) float64 {
	total := p.MonthlyPriceUSD * float64(months) * (1 - Discount(months))
	return math.Round(total*100) / 100
}

// WalletAmount is the expected on-chain amount for a direct wallet payment.
func WalletAmount(p *Plan, months int) float64 {
	total := p.CryptoPrice.Amount * float64(months) * (1 - Discount(months))
	return math.Round(total*100) / 100
}
