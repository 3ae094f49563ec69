package bid

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/messaging"
	"github.com/velomarket/auction-service/internal/service/bidding"
	"github.com/velomarket/auction-service/internal/worker"
)

var bidEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auction_bid_events_consumed_total",
	Help: "Bid-placed events consumed from the bus.",
}, []string{"bid_type"})

// EventsHandler is the audit tail of the bid stream: it consumes bid-placed
// events, logs them, and feeds the consumption counters.
type EventsHandler struct {
	logger *zap.Logger
}

// NewEventsHandler wires the bid events consumer.
func NewEventsHandler(logger *zap.Logger) *EventsHandler {
	return &EventsHandler{logger: logger}
}

// Module registers the handler on the bid events topic.
var Module = fx.Provide(
	fx.Annotate(
		func(h *EventsHandler, cfg config.Config) worker.HandlerRegistration {
			return worker.HandlerRegistration{
				Topic:   cfg.Messaging.Kafka.Topics.BidEvents,
				Handler: h.Handle,
			}
		},
		fx.ResultTags(`group:"worker.handlers"`),
	),
	NewEventsHandler,
)

// Handle processes one bid-placed event.
func (h *EventsHandler) Handle(ctx context.Context, msg messaging.Message) error {
	var event bidding.BidPlacedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("dropping malformed bid event", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}

	bidEventsConsumed.WithLabelValues(string(event.BidType)).Inc()
	h.logger.Info("bid placed",
		zap.String("event_id", event.EventID),
		zap.Int64("auction_id", event.AuctionID),
		zap.Int64("bidder_id", event.BidderID),
		zap.String("price", event.Price.String()),
		zap.String("current_highest", event.CurrentHighestAmount.String()),
		zap.String("bid_type", string(event.BidType)))
	return nil
}
