package repositories_fx

import (
	"go.uber.org/fx"

	"coinscope/internal/repositories"
)

var Module = fx.Provide(
	repositories.NewUserRepository,
	repositories.NewSubscriptionRepository,
)
