package app

import (
	"go.uber.org/fx"

	"github.com/velomarket/auction-service/internal/cache"
	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/database"
	"github.com/velomarket/auction-service/internal/logger"
	"github.com/velomarket/auction-service/internal/messaging"
	"github.com/velomarket/auction-service/internal/observability"
	repositoryledger "github.com/velomarket/auction-service/internal/repository/ledger"
	repositorynotification "github.com/velomarket/auction-service/internal/repository/notification"
	"github.com/velomarket/auction-service/internal/scheduler"
	grpcserver "github.com/velomarket/auction-service/internal/server/grpc"
	httpserver "github.com/velomarket/auction-service/internal/server/http"
	serviceauction "github.com/velomarket/auction-service/internal/service/auction"
	servicebidding "github.com/velomarket/auction-service/internal/service/bidding"
	servicenotification "github.com/velomarket/auction-service/internal/service/notification"
	servicesettlement "github.com/velomarket/auction-service/internal/service/settlement"
	transporthttp "github.com/velomarket/auction-service/internal/transport/http"
	"github.com/velomarket/auction-service/internal/worker"
	workerauction "github.com/velomarket/auction-service/internal/worker/auction"
	workerbid "github.com/velomarket/auction-service/internal/worker/bid"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	scheduler.Module,
	repositoryledger.Module,
	repositorynotification.Module,
	serviceauction.Module,
	servicebidding.Module,
	servicesettlement.Module,
	servicenotification.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerauction.Module,
	workerbid.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
