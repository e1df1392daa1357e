package subscription_fx

import (
	"go.uber.org/fx"

	"coinscope/internal/services"
)

var Module = fx.Provide(
	services.NewReconcilerService,
	services.NewWebhookService,
	services.NewRenewalService,
	services.NewExpiryWorker,
)
