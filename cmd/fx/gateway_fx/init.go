package gateway_fx

import (
	"os"

	"go.uber.org/fx"

	"coinscope/internal/catalog"
	"coinscope/internal/services"
)

var Module = fx.Provide(
	provideGatewayConfig,
	services.NewGatewayService,
)

// provideGatewayConfig selects test vs live keys by APP_ENV so nothing else
// in the process needs to care which mode it runs in.
func provideGatewayConfig() services.GatewayConfig {
	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if os.Getenv("APP_ENV") != "production" {
		if testKey := os.Getenv("STRIPE_TEST_SECRET_KEY"); testKey != "" {
			secretKey = testKey
		}
		if testSecret := os.Getenv("STRIPE_TEST_WEBHOOK_SECRET"); testSecret != "" {
			webhookSecret = testSecret
		}
	}

	return services.GatewayConfig{
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
		SuccessURL:    os.Getenv("CHECKOUT_SUCCESS_URL"),
		CancelURL:     os.Getenv("CHECKOUT_CANCEL_URL"),
		PriceIDs: map[string]string{
			catalog.PlanPro:     os.Getenv("STRIPE_PRICE_PRO"),
			catalog.PlanPremium: os.Getenv("STRIPE_PRICE_PREMIUM"),
		},
	}
}
