package settlement

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var tracer = otel.Tracer("github.com/velomarket/auction-service/service/settlement")

// Notifier delivers settlement notifications. Best-effort: implementations
// log failures instead of returning them.
type Notifier interface {
	Notify(ctx context.Context, userID int64, auctionID *int64, title, text string)
	NotifyOtherBidders(ctx context.Context, auctionID int64, title, text string, actorUserID int64)
}

// Service runs the post-expiry award workflow. At most one bid per auction is
// Offered at a time; a rejection cascades the offer down to the next highest
// pending bid, and an acceptance ends the workflow.
type Service struct {
	store    ledger.Store
	notifier Notifier
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store    ledger.Store
	Notifier Notifier
	Logger   *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:    p.Store,
		notifier: p.Notifier,
		logger:   p.Logger,
	}
}

// OfferTopBid promotes the highest pending bid of an expired auction to
// Offered and notifies its owner. While an offer stands no pending bid can be
// promoted, so a repeated call reports not found.
func (s *Service) OfferTopBid(ctx context.Context, auctionID int64) (*entity.Bid, error) {
	ctx, span := tracer.Start(ctx, "SettlementService.OfferTopBid", trace.WithAttributes(
		attribute.Int64("auction.id", auctionID),
	))
	defer span.End()

	auction, err := s.store.AuctionByID(ctx, auctionID)
	if errors.Is(err, ledger.ErrAuctionNotFound) {
		return nil, errorbank.NotFound("auction not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}

	var offered *entity.Bid
	err = s.store.InTx(ctx, func(ctx context.Context, tx ledger.Store) error {
		if _, err := tx.AuctionForUpdate(ctx, auctionID); err != nil {
			return err
		}

		if _, err := tx.TopBidByOfferStatus(ctx, auctionID, entity.OfferOffered); err == nil {
			return errorbank.NotFound("an offer is already standing on this auction",
				errorbank.WithCode("offer_already_standing"))
		} else if !errors.Is(err, ledger.ErrBidNotFound) {
			return err
		}

		if _, err := tx.TopBidByOfferStatus(ctx, auctionID, entity.OfferAccepted); err == nil {
			return errorbank.BadRequest("auction has already been settled", errorbank.WithCode("already_settled"))
		} else if !errors.Is(err, ledger.ErrBidNotFound) {
			return err
		}

		top, err := tx.TopBidByOfferStatus(ctx, auctionID, entity.OfferPending)
		if errors.Is(err, ledger.ErrBidNotFound) {
			return errorbank.NotFound("no pending bids to offer", errorbank.WithCode("no_pending_bids"))
		}
		if err != nil {
			return err
		}
		if err := tx.SetOfferStatus(ctx, top.ID, entity.OfferOffered); err != nil {
			return err
		}
		top.OfferStatus = entity.OfferOffered
		offered = top
		return nil
	})
	if err != nil {
		var appErr *errorbank.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "offer failed")
		return nil, errorbank.Internal("failed to offer top bid", errorbank.WithCause(err))
	}

	s.notifier.Notify(ctx, offered.BidderID, &auctionID,
		"You have received an offer",
		fmt.Sprintf("You have received an offer on auction %q for %s. Accept or reject it from your bids.",
			auction.Title, offered.CurrentPlacedAmount.String()))

	return offered, nil
}

// ResolveOffer records the bidder's decision on their standing offer. Only
// the bid's owner may resolve it. Either way the seller is told the outcome;
// accepting additionally tells the losing bidders the auction is gone, and
// rejecting cascades the offer to the next highest pending bid.
func (s *Service) ResolveOffer(ctx context.Context, auctionID, actorID int64, decision entity.OfferStatus) (*entity.Bid, error) {
	ctx, span := tracer.Start(ctx, "SettlementService.ResolveOffer", trace.WithAttributes(
		attribute.Int64("auction.id", auctionID),
		attribute.String("decision", string(decision)),
	))
	defer span.End()

	if decision != entity.OfferAccepted && decision != entity.OfferRejected {
		return nil, errorbank.BadRequest("offer_status must be Accepted or Rejected",
			errorbank.WithCode("invalid_offer_status"))
	}

	auction, err := s.store.AuctionByID(ctx, auctionID)
	if errors.Is(err, ledger.ErrAuctionNotFound) {
		return nil, errorbank.NotFound("auction not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}

	var (
		resolved *entity.Bid
		next     *entity.Bid
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx ledger.Store) error {
		if _, err := tx.AuctionForUpdate(ctx, auctionID); err != nil {
			return err
		}

		standing, err := tx.TopBidByOfferStatus(ctx, auctionID, entity.OfferOffered)
		if errors.Is(err, ledger.ErrBidNotFound) {
			return errorbank.NotFound("no standing offer on this auction", errorbank.WithCode("no_standing_offer"))
		}
		if err != nil {
			return err
		}
		if standing.BidderID != actorID {
			return errorbank.BadRequest("this offer is not addressed to you", errorbank.WithCode("not_offer_owner"))
		}

		if err := tx.SetOfferStatus(ctx, standing.ID, decision); err != nil {
			return err
		}
		standing.OfferStatus = decision
		resolved = standing

		if decision == entity.OfferRejected {
			candidate, err := tx.TopBidByOfferStatus(ctx, auctionID, entity.OfferPending)
			if errors.Is(err, ledger.ErrBidNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := tx.SetOfferStatus(ctx, candidate.ID, entity.OfferOffered); err != nil {
				return err
			}
			candidate.OfferStatus = entity.OfferOffered
			next = candidate
		}
		return nil
	})
	if err != nil {
		var appErr *errorbank.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, errorbank.Internal("failed to resolve offer", errorbank.WithCause(err))
	}

	switch decision {
	case entity.OfferAccepted:
		s.notifier.Notify(ctx, auction.OwnerID, &auctionID,
			"Your auction has a buyer",
			fmt.Sprintf("The offer on auction %q was accepted at %s.",
				auction.Title, resolved.CurrentPlacedAmount.String()))
		s.notifier.NotifyOtherBidders(ctx, auctionID,
			"Auction offer accepted",
			fmt.Sprintf("The auction %q has been accepted. Better luck next time!", auction.Title),
			actorID)
	case entity.OfferRejected:
		if next != nil {
			s.notifier.Notify(ctx, auction.OwnerID, &auctionID,
				"Offer rejected",
				fmt.Sprintf("The offer on auction %q was rejected. The next highest bid has been offered.", auction.Title))
			s.notifier.Notify(ctx, next.BidderID, &auctionID,
				"You have received an offer",
				fmt.Sprintf("You have received an offer on auction %q for %s. Accept or reject it from your bids.",
					auction.Title, next.CurrentPlacedAmount.String()))
		} else {
			s.notifier.Notify(ctx, auction.OwnerID, &auctionID,
				"Offer rejected",
				fmt.Sprintf("The last offer on auction %q was rejected and no bids remain.", auction.Title))
		}
	}

	return resolved, nil
}
