package bid

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/velomarket/auction-service/internal/dto"
	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/presentation/http/response"
	"github.com/velomarket/auction-service/internal/service/bidding"
	"github.com/velomarket/auction-service/internal/service/settlement"
	"github.com/velomarket/auction-service/internal/transport/http/identity"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/velomarket/auction-service/transport/http/bid")

// Handler exposes bidding and settlement endpoints over HTTP.
type Handler struct {
	bids       *bidding.Service
	settlement *settlement.Service
}

// NewHandler constructs a bid Handler.
func NewHandler(bids *bidding.Service, st *settlement.Service) *Handler {
	return &Handler{bids: bids, settlement: st}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/auctions/:id")
	g.POST("/bids", h.place)
	g.GET("/bids", h.ranked)
	g.GET("/top-bids", h.topBids)
	g.POST("/offer", h.offer)
	g.POST("/offer/decision", h.decide)

	e.GET("/bids", h.myBids)
}

func (h *Handler) place(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload dto.PlaceBidRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.place", trace.WithAttributes(
		attribute.Int64("auction.id", auctionID),
		attribute.Int64("user.id", actorID),
	))
	defer span.End()

	result, err := h.bids.PlaceBid(ctx, bidding.PlaceBidInput{
		AuctionID:    auctionID,
		BidderID:     actorID,
		Price:        payload.Price,
		MaxBidAmount: payload.MaxBidAmount,
		BidType:      entity.BidType(payload.BidType),
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.PlaceBidResponse{
		AuctionID:              result.AuctionID,
		CurrentHighestAmount:   result.CurrentHighestAmount,
		CurrentHighestBidderID: result.CurrentHighestBidderID,
		IsLeading:              result.IsLeading,
		YourBidType:            string(result.BidType),
		MinimumBid:             result.MinimumBid,
	}).Build()
}

func (h *Handler) ranked(c echo.Context) error {
	b := response.New(c)

	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.ranked",
		trace.WithAttributes(attribute.Int64("auction.id", auctionID)))
	defer span.End()

	bids, err := h.bids.RankedBids(ctx, auctionID)
	if err != nil {
		return b.WithError(err).Build()
	}

	ranked := make([]dto.RankedBidResponse, len(bids))
	for i := range bids {
		ranked[i] = dto.RankedBidResponse{BidResponse: toDTO(&bids[i]), Rank: i + 1}
	}
	return b.WithData(ranked).WithMeta("count", len(ranked)).Build()
}

func (h *Handler) topBids(c echo.Context) error {
	b := response.New(c)

	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.top",
		trace.WithAttributes(attribute.Int64("auction.id", auctionID)))
	defer span.End()

	bids, err := h.bids.TopBids(ctx, auctionID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.BidResponse, len(bids))
	for i := range bids {
		out[i] = toDTO(&bids[i])
	}
	return b.WithData(out).Build()
}

func (h *Handler) offer(c echo.Context) error {
	b := response.New(c)

	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.offer",
		trace.WithAttributes(attribute.Int64("auction.id", auctionID)))
	defer span.End()

	bid, err := h.settlement.OfferTopBid(ctx, auctionID)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithMessage("offer extended").WithData(toDTO(bid)).Build()
}

func (h *Handler) decide(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	auctionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload dto.OfferDecisionRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.decide", trace.WithAttributes(
		attribute.Int64("auction.id", auctionID),
		attribute.String("decision", payload.OfferStatus),
	))
	defer span.End()

	bid, err := h.settlement.ResolveOffer(ctx, auctionID, actorID, entity.OfferStatus(payload.OfferStatus))
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(bid)).Build()
}

func (h *Handler) myBids(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var offerStatus *entity.OfferStatus
	if raw := c.QueryParam("offer_status"); raw != "" {
		status := entity.OfferStatus(raw)
		offerStatus = &status
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.mine",
		trace.WithAttributes(attribute.Int64("user.id", actorID)))
	defer span.End()

	bids, err := h.bids.BidsForUser(ctx, actorID, offerStatus)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.BidResponse, len(bids))
	for i := range bids {
		out[i] = toDTO(&bids[i])
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func toDTO(bid *entity.Bid) dto.BidResponse {
	return dto.BidResponse{
		ID:                  bid.ID,
		AuctionID:           bid.AuctionID,
		BidderID:            bid.BidderID,
		BidType:             string(bid.BidType),
		CurrentPlacedAmount: bid.CurrentPlacedAmount,
		MaxBidAmount:        bid.MaxBidAmount,
		Status:              string(bid.Status),
		OfferStatus:         string(bid.OfferStatus),
		CreatedAt:           bid.CreatedAt,
	}
}
