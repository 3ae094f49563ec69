package notification

import (
	"go.uber.org/fx"

	"github.com/velomarket/auction-service/internal/service/bidding"
	"github.com/velomarket/auction-service/internal/service/settlement"
)

// Module provides the notification service and binds it to the notifier
// contracts the other services consume.
var Module = fx.Provide(
	fx.Annotate(
		NewService,
		fx.As(fx.Self()),
		fx.As(new(bidding.Notifier)),
		fx.As(new(settlement.Notifier)),
	),
)
