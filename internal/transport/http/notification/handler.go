package notification

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/velomarket/auction-service/internal/dto"
	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/presentation/http/response"
	service "github.com/velomarket/auction-service/internal/service/notification"
	"github.com/velomarket/auction-service/internal/transport/http/identity"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/velomarket/auction-service/transport/http/notification")

// Handler exposes notification endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a notification Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/notifications")
	g.GET("", h.list)
	g.PATCH("/read", h.markRead)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "notifications.list",
		trace.WithAttributes(attribute.Int64("user.id", actorID)))
	defer span.End()

	ns, err := h.svc.ListForUser(ctx, actorID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.NotificationResponse, len(ns))
	for i := range ns {
		out[i] = toDTO(&ns[i])
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) markRead(c echo.Context) error {
	b := response.New(c)

	actorID, err := identity.UserID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.MarkReadRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "notifications.markRead",
		trace.WithAttributes(attribute.Int64("user.id", actorID), attribute.Bool("all", payload.AllRead)))
	defer span.End()

	if payload.AllRead {
		n, err := h.svc.MarkAllRead(ctx, actorID)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithMessage("notifications marked read").WithMeta("updated", n).Build()
	}

	if payload.ID <= 0 {
		return b.WithError(errorbank.BadRequest("id or all_read is required",
			errorbank.WithCode("mark_read_target_required"))).Build()
	}
	if err := h.svc.MarkRead(ctx, actorID, payload.ID); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithMessage("notification marked read").Build()
}

func toDTO(n *entity.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		AuctionID: n.AuctionID,
		Title:     n.Title,
		Text:      n.Text,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
