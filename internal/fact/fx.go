package fact

import (
	"go.uber.org/fx"
)

var Module = fx.Module("fact",
	fx.Provide(NewLoader),
)
