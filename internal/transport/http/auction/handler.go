package auction

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
	service "github.com/velomarket/auction-service/internal/service/auction"
	"github.com/velomarket/auction-service/internal/transport/http/identity"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/velomarket/auction-service/transport/http/auction")

// Handler exposes auction lifecycle endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an auction Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/auctions")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.POST("/:id/publish", h.publish)
	g.PATCH("/:id/moderation", h.moderate)
	g.PATCH("/:id/pause", h.pause)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.CreateAuctionRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.create",
		trace.WithAttributes(attribute.Int64("user.id", actorID)))
	defer span.End()

	auction, err := h.svc.Create(ctx, actorID, payload)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(ToDTO(auction)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.getByID",
		trace.WithAttributes(attribute.Int64("auction.id", id)))
	defer span.End()

	auction, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(ToDTO(auction)).Build()
}

func (h *Handler) publish(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.publish",
		trace.WithAttributes(attribute.Int64("auction.id", id)))
	defer span.End()

	auction, err := h.svc.Publish(ctx, id, actorID)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithMessage("auction published").WithData(ToDTO(auction)).Build()
}

func (h *Handler) moderate(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload dto.ModerationRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.moderate",
		trace.WithAttributes(attribute.Int64("auction.id", id), attribute.String("decision", payload.AdStatus)))
	defer span.End()

	auction, err := h.svc.Moderate(ctx, id, entity.ModerationStatus(payload.AdStatus))
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithMessage("moderation recorded").WithData(ToDTO(auction)).Build()
}

func (h *Handler) pause(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload dto.PauseRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.pause",
		trace.WithAttributes(attribute.Int64("auction.id", id), attribute.Bool("paused", payload.IsPaused)))
	defer span.End()

	auction, err := h.svc.SetPause(ctx, id, actorID, payload.IsPaused)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(ToDTO(auction)).Build()
}

// ToDTO maps an auction row onto its transport representation.
func ToDTO(a *entity.Auction) dto.AuctionResponse {
	return dto.AuctionResponse{
		ID:                     a.ID,
		OwnerID:                a.OwnerID,
		Title:                  a.Title,
		Description:            a.Description,
		StartingBid:            a.StartingBid,
		BidIncrement:           a.BidIncrement,
		MinimumBid:             a.MinimumBid,
		ReservePrice:           a.ReservePrice,
		BuyNowPrice:            a.BuyNowPrice,
		CurrentHighestAmount:   a.CurrentHighestAmount,
		CurrentHighestBidderID: a.CurrentHighestBidderID,
		NextValidBid:           a.NextValidBid(),
		StartDate:              a.StartDate,
		ExpiryDate:             a.ExpiryDate,
		IsPaused:               a.IsPaused,
		Status:                 string(a.Status),
		AdStatus:               string(a.Moderation),
		CreatedAt:              a.CreatedAt,
		UpdatedAt:              a.UpdatedAt,
	}
}
