package pipeline

import (
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	fx.Provide(NewValidator),
	fx.Provide(NewEnricher),
)
