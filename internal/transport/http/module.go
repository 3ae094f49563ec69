package http

import (
	"go.uber.org/fx"

	auctiontransport "github.com/velomarket/auction-service/internal/transport/http/auction"
	bidtransport "github.com/velomarket/auction-service/internal/transport/http/bid"
	notificationtransport "github.com/velomarket/auction-service/internal/transport/http/notification"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	auctiontransport.Module,
	bidtransport.Module,
	notificationtransport.Module,
)
