package ledger

import "go.uber.org/fx"

// Module provides the ledger repository to Fx.
var Module = fx.Provide(
	fx.Annotate(NewRepository, fx.As(new(Store))),
)
