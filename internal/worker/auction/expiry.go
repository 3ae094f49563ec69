package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/messaging"
	"github.com/velomarket/auction-service/internal/repository/ledger"
	"github.com/velomarket/auction-service/internal/scheduler"
	notifsvc "github.com/velomarket/auction-service/internal/service/notification"
	"github.com/velomarket/auction-service/internal/worker"
)

var tracer = otel.Tracer("github.com/velomarket/auction-service/worker/auction")

// ExpiryHandler consumes fired expiry jobs and tells every bidder the
// auction has ended. The job may outlive its auction; a missing auction is
// logged and dropped rather than retried.
type ExpiryHandler struct {
	store         ledger.Store
	notifications *notifsvc.Service
	logger        *zap.Logger
}

// Params defines dependencies for constructing ExpiryHandler.
type Params struct {
	fx.In

	Store         ledger.Store
	Notifications *notifsvc.Service
	Logger        *zap.Logger
}

// NewExpiryHandler wires the expiry consumer.
func NewExpiryHandler(p Params) *ExpiryHandler {
	return &ExpiryHandler{
		store:         p.Store,
		notifications: p.Notifications,
		logger:        p.Logger,
	}
}

// Module registers the expiry handler on the expiry topic.
var Module = fx.Provide(
	fx.Annotate(
		func(h *ExpiryHandler, cfg config.Config) worker.HandlerRegistration {
			return worker.HandlerRegistration{
				Topic:   cfg.Messaging.Kafka.Topics.AuctionExpiry,
				Handler: h.Handle,
			}
		},
		fx.ResultTags(`group:"worker.handlers"`),
	),
	NewExpiryHandler,
)

// Handle processes one fired expiry job.
func (h *ExpiryHandler) Handle(ctx context.Context, msg messaging.Message) error {
	var job scheduler.ExpiryJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		h.logger.Error("dropping malformed expiry job", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}

	ctx, span := tracer.Start(ctx, "ExpiryHandler.Handle", trace.WithAttributes(
		attribute.String("job.id", job.JobID),
		attribute.Int64("auction.id", job.AuctionID),
	))
	defer span.End()

	auction, err := h.store.AuctionByID(ctx, job.AuctionID)
	if errors.Is(err, ledger.ErrAuctionNotFound) {
		h.logger.Info("expiry job for missing auction; skipping",
			zap.String("job_id", job.JobID), zap.Int64("auction_id", job.AuctionID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load auction %d: %w", job.AuctionID, err)
	}

	bidders, err := h.store.DistinctBidders(ctx, job.AuctionID)
	if err != nil {
		return fmt.Errorf("list bidders for auction %d: %w", job.AuctionID, err)
	}

	for _, bidderID := range bidders {
		auctionID := job.AuctionID
		h.notifications.Notify(ctx, bidderID, &auctionID,
			"Auction Expired",
			fmt.Sprintf("Auction %q has ended. Check your bids to see where you placed.", auction.Title))
	}

	h.logger.Info("auction expiry processed",
		zap.String("job_id", job.JobID),
		zap.Int64("auction_id", job.AuctionID),
		zap.Int("bidders_notified", len(bidders)))
	return nil
}
