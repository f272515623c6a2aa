package dimension

import (
	"go.uber.org/fx"
)

var Module = fx.Module("dimension",
	fx.Provide(NewResolver),
)
