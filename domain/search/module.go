package search

import (
	"go.uber.org/fx"
)

// Module provides hybrid search and its fusion-weight administration via fx.
var Module = fx.Module("search",
	fx.Provide(
		NewRepository,
		NewAlphaResolver,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
