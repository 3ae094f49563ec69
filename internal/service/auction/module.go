package auction

import "go.uber.org/fx"

// Module provides the auction lifecycle service to Fx.
var Module = fx.Provide(NewService)
