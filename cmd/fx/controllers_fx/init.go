package controllers_fx

import (
	"go.uber.org/fx"

	"coinscope/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewPlanController),
	fx.Provide(controllers.NewSubscriptionController),
	fx.Provide(controllers.NewWebhookController))
