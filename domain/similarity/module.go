package similarity

import (
	"go.uber.org/fx"
)

// Module provides the previously-seen nearest-neighbor lookup via fx.
var Module = fx.Module("similarity",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
