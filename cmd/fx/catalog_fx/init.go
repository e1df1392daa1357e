package catalog_fx

import (
	"go.uber.org/fx"

	"coinscope/internal/catalog"
)

var Module = fx.Provide(
	catalog.NewCatalog)
