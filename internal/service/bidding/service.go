package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/cache"
	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/messaging"
	"github.com/velomarket/auction-service/internal/repository/ledger"
	auctionsvc "github.com/velomarket/auction-service/internal/service/auction"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/velomarket/auction-service/service/bidding")

// Notifier fans notifications out to auction participants. Dispatch is
// best-effort: implementations log failures instead of returning them, so a
// slow or broken notification path can never fail a placed bid.
type Notifier interface {
	NotifyOtherBidders(ctx context.Context, auctionID int64, title, text string, actorUserID int64)
}

// Service orchestrates bid submissions end-to-end. It is the unit of
// consistency for concurrent bids on one auction: every placement runs in a
// ledger transaction that locks the auction row, and loses of a
// serialization race are retried with a fresh read rather than surfaced.
type Service struct {
	store     ledger.Store
	cache     cache.Store
	notifier  Notifier
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	retries   int
	now       func() time.Time
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     ledger.Store
	Cache     cache.Store
	Notifier  Notifier
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		cache:     p.Cache,
		notifier:  p.Notifier,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topics.BidEvents,
		},
		retries: p.Config.Auction.PlacementRetries,
		now:     time.Now,
	}
}

// PlaceBidInput carries one bid submission.
type PlaceBidInput struct {
	AuctionID    int64
	BidderID     int64
	Price        decimal.Decimal
	MaxBidAmount *decimal.Decimal
	BidType      entity.BidType
}

// PlaceBidResult reports the post-resolution state to the bidder.
type PlaceBidResult struct {
	AuctionID              int64
	CurrentHighestAmount   decimal.Decimal
	CurrentHighestBidderID int64
	IsLeading              bool
	BidType                entity.BidType
	MinimumBid             decimal.Decimal
}

// PlaceBid validates a bid against auction and ledger state, appends it,
// recomputes the leader via proxy resolution, demotes prior leaders, updates
// the auction projection, and fans out notifications to the other bidders.
// Either all ledger writes commit or none do.
func (s *Service) PlaceBid(ctx context.Context, in PlaceBidInput) (*PlaceBidResult, error) {
	ctx, span := serviceTracer.Start(ctx, "BiddingService.PlaceBid", trace.WithAttributes(
		attribute.Int64("auction.id", in.AuctionID),
		attribute.Int64("bid.bidder_id", in.BidderID),
	))
	defer span.End()

	result, err := s.placeBid(ctx, in)
	if err != nil {
		if code := errorbank.From(err).Code(); code != "" {
			bidsRejectedTotal.WithLabelValues(code).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "placement failed")
		return nil, err
	}
	bidsPlacedTotal.Inc()
	return result, nil
}

func (s *Service) placeBid(ctx context.Context, in PlaceBidInput) (*PlaceBidResult, error) {
	if in.BidType == "" {
		in.BidType = entity.BidManual
	}
	if in.BidType != entity.BidManual && in.BidType != entity.BidAutomatic {
		return nil, errorbank.BadRequest("invalid bid type", errorbank.WithCode("invalid_bid_type"))
	}
	if !in.Price.IsPositive() {
		return nil, errorbank.BadRequest("invalid bid price", errorbank.WithCode("invalid_price"))
	}

	ceiling := in.Price
	if in.BidType == entity.BidAutomatic {
		if in.MaxBidAmount == nil {
			return nil, errorbank.BadRequest("max bid amount is required for automatic bids",
				errorbank.WithCode("max_bid_required"))
		}
		if in.MaxBidAmount.LessThan(in.Price) {
			return nil, errorbank.BadRequest(
				fmt.Sprintf("max bid amount (%s) must be greater than or equal to your initial bid amount (%s)",
					in.MaxBidAmount.String(), in.Price.String()),
				errorbank.WithCode("max_bid_below_price"),
				errorbank.WithDetail("minimum_max_bid", in.Price))
		}
		ceiling = *in.MaxBidAmount
	}

	var (
		result   *PlaceBidResult
		winnerID int64
	)

	attempt := func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx ledger.Store) error {
			auction, err := tx.AuctionForUpdate(ctx, in.AuctionID)
			if errors.Is(err, ledger.ErrAuctionNotFound) {
				return errorbank.NotFound("auction not found")
			}
			if err != nil {
				return errorbank.Internal("failed to load auction", errorbank.WithCause(err))
			}

			now := s.now()
			if err := validatePlacement(auction, in, now); err != nil {
				return err
			}

			bid := &entity.Bid{
				AuctionID:           in.AuctionID,
				BidderID:            in.BidderID,
				BidType:             in.BidType,
				CurrentPlacedAmount: in.Price,
				MaxBidAmount:        ceiling,
				Status:              entity.BidLeading,
				OfferStatus:         entity.OfferPending,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := tx.InsertBid(ctx, bid); err != nil {
				return errorbank.Internal("failed to record bid", errorbank.WithCause(err))
			}

			active, err := tx.ActiveBids(ctx, in.AuctionID)
			if err != nil {
				return errorbank.Internal("failed to load active bids", errorbank.WithCause(err))
			}

			outcome, ok := Resolve(active, auction.Increment(), auction.Floor())
			if !ok {
				return errorbank.Internal("failed to determine winning bid")
			}

			if err := tx.DemoteLeadingExcept(ctx, in.AuctionID, outcome.BidID); err != nil {
				return errorbank.Internal("failed to demote leading bids", errorbank.WithCause(err))
			}
			if err := tx.SetBidPlacement(ctx, outcome.BidID, outcome.Amount, entity.BidLeading); err != nil {
				return errorbank.Internal("failed to update winning bid", errorbank.WithCause(err))
			}
			if err := tx.SetCurrentHighest(ctx, in.AuctionID, outcome.Amount, outcome.BidderID); err != nil {
				return errorbank.Internal("failed to update auction state", errorbank.WithCause(err))
			}

			winnerID = outcome.BidderID
			result = &PlaceBidResult{
				AuctionID:              in.AuctionID,
				CurrentHighestAmount:   outcome.Amount,
				CurrentHighestBidderID: outcome.BidderID,
				IsLeading:              outcome.BidderID == in.BidderID,
				BidType:                in.BidType,
				MinimumBid:             auction.MinimumBid,
			}
			return nil
		})
	}

	var err error
	for i := 0; ; i++ {
		err = attempt(ctx)
		if err == nil || !errors.Is(err, ledger.ErrConflict) {
			break
		}
		if i >= s.retries {
			err = errorbank.Internal("bid placement kept losing the update race", errorbank.WithCause(err))
			break
		}
		placementConflictRetries.Inc()
		s.logger.Warn("placement conflict; retrying",
			zap.Int64("auction_id", in.AuctionID), zap.Int("attempt", i+1))
	}
	if err != nil {
		return nil, err
	}

	s.invalidateAuctionCache(ctx, in.AuctionID)
	s.notifyOutbid(ctx, in.AuctionID, in.BidderID)
	s.publishBidPlaced(ctx, in, result, winnerID)

	return result, nil
}

// validatePlacement applies the precondition chain against a freshly locked
// auction row. Each violation is a distinct rejection with its own code.
func validatePlacement(auction *entity.Auction, in PlaceBidInput, now time.Time) error {
	if auction.Status != entity.LifecyclePublished || auction.Moderation != entity.ModerationAccepted {
		return errorbank.BadRequest("auction is not open for bidding", errorbank.WithCode("auction_not_open"))
	}
	if auction.Expired(now) {
		return errorbank.BadRequest("auction has already ended", errorbank.WithCode("auction_expired"))
	}
	if auction.IsPaused {
		return errorbank.BadRequest("auction is currently paused", errorbank.WithCode("auction_paused"))
	}

	floor := auction.Floor()
	if in.Price.LessThan(floor) {
		return errorbank.BadRequest(
			fmt.Sprintf("bid cannot be less than minimum bid; bidding starts from %s", floor.String()),
			errorbank.WithCode("bid_below_floor"),
			errorbank.WithDetail("minimum_bid", floor))
	}

	next := auction.NextValidBid()
	if in.Price.LessThan(next) {
		return errorbank.BadRequest(
			fmt.Sprintf("your bid (%s) is too low; next valid bid is %s", in.Price.String(), next.String()),
			errorbank.WithCode("bid_below_next_valid"),
			errorbank.WithDetail("next_valid_bid", next))
	}

	if auction.CurrentHighestBidderID != nil && *auction.CurrentHighestBidderID == in.BidderID {
		return errorbank.BadRequest("you are already the highest bidder", errorbank.WithCode("already_leading"))
	}
	return nil
}

// RankedBids lists every bid against an auction with its rank by placed
// amount.
func (s *Service) RankedBids(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	if _, err := s.store.AuctionByID(ctx, auctionID); err != nil {
		if errors.Is(err, ledger.ErrAuctionNotFound) {
			return nil, errorbank.NotFound("auction not found")
		}
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}
	bids, err := s.store.BidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, errorbank.Internal("failed to load bids", errorbank.WithCause(err))
	}
	return bids, nil
}

// TopBids returns the accepted bid when settlement already concluded, and
// the top three Pending/Offered bids otherwise.
func (s *Service) TopBids(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	accepted, err := s.store.TopBidByOfferStatus(ctx, auctionID, entity.OfferAccepted)
	if err == nil {
		return []entity.Bid{*accepted}, nil
	}
	if !errors.Is(err, ledger.ErrBidNotFound) {
		return nil, errorbank.Internal("failed to load accepted bid", errorbank.WithCause(err))
	}

	top, err := s.store.TopBidsByOfferStatuses(ctx, auctionID,
		[]entity.OfferStatus{entity.OfferPending, entity.OfferOffered}, 3)
	if err != nil {
		return nil, errorbank.Internal("failed to load top bids", errorbank.WithCause(err))
	}
	if len(top) == 0 {
		return nil, errorbank.NotFound("no pending or offered bids found for this auction")
	}
	return top, nil
}

// BidsForUser lists the caller's bids, optionally filtered by settlement
// state.
func (s *Service) BidsForUser(ctx context.Context, bidderID int64, offerStatus *entity.OfferStatus) ([]entity.Bid, error) {
	if offerStatus != nil {
		switch *offerStatus {
		case entity.OfferPending, entity.OfferOffered, entity.OfferAccepted, entity.OfferRejected:
		default:
			return nil, errorbank.BadRequest("invalid offer_status value", errorbank.WithCode("invalid_offer_status"))
		}
	}
	bids, err := s.store.BidsByBidder(ctx, bidderID, offerStatus)
	if err != nil {
		return nil, errorbank.Internal("failed to load bids", errorbank.WithCause(err))
	}
	return bids, nil
}

func (s *Service) invalidateAuctionCache(ctx context.Context, auctionID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, auctionsvc.CacheKey(auctionID)); err != nil {
		s.logger.Warn("auction cache invalidation failed", zap.Int64("auction_id", auctionID), zap.Error(err))
	}
}

func (s *Service) notifyOutbid(ctx context.Context, auctionID, actorID int64) {
	if s.notifier == nil {
		return
	}
	auction, err := s.store.AuctionByID(ctx, auctionID)
	title := "Your bid is now in run-up"
	text := "Your bid is now in run-up. Place your new bid!"
	if err == nil {
		text = fmt.Sprintf("Your bid on auction %q is now in run-up. Place your new bid!", auction.Title)
	}
	s.notifier.NotifyOtherBidders(ctx, auctionID, title, text, actorID)
}

// BidPlacedEvent is emitted on the bid-events topic after a placement
// commits.
type BidPlacedEvent struct {
	EventID                string          `json:"event_id"`
	AuctionID              int64           `json:"auction_id"`
	BidderID               int64           `json:"bidder_id"`
	Price                  decimal.Decimal `json:"price"`
	CurrentHighestAmount   decimal.Decimal `json:"current_highest_amount"`
	CurrentHighestBidderID int64           `json:"current_highest_bidder_id"`
	BidType                entity.BidType  `json:"bid_type"`
	PlacedAt               time.Time       `json:"placed_at"`
}

func (s *Service) publishBidPlaced(ctx context.Context, in PlaceBidInput, result *PlaceBidResult, winnerID int64) {
	if !s.messaging.enabled || s.publisher == nil || result == nil {
		return
	}
	event := BidPlacedEvent{
		EventID:                uuid.NewString(),
		AuctionID:              in.AuctionID,
		BidderID:               in.BidderID,
		Price:                  in.Price,
		CurrentHighestAmount:   result.CurrentHighestAmount,
		CurrentHighestBidderID: winnerID,
		BidType:                in.BidType,
		PlacedAt:               s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal bid placed", zap.Error(err))
		return
	}
	key := []byte(fmt.Sprintf("auction-%d", in.AuctionID))
	if err := s.publisher.Publish(ctx, s.messaging.topic, key, payload); err != nil {
		s.logger.Error("publish bid placed", zap.Error(err))
	}
}
