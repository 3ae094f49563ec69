package notification

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger"
	notifrepo "github.com/velomarket/auction-service/internal/repository/notification"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var tracer = otel.Tracer("github.com/velomarket/auction-service/service/notification")

// Service records and lists user notifications. Write paths are best-effort
// on behalf of callers: fan-out failures are logged, never returned, so a
// broken notification store cannot fail a bid or a settlement step.
type Service struct {
	store  notifrepo.Store
	ledger ledger.Store
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store  notifrepo.Store
	Ledger ledger.Store
	Logger *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:  p.Store,
		ledger: p.Ledger,
		logger: p.Logger,
	}
}

// Notify records a single notification for one user.
func (s *Service) Notify(ctx context.Context, userID int64, auctionID *int64, title, text string) {
	n := &entity.Notification{
		UserID:    userID,
		AuctionID: auctionID,
		Title:     title,
		Text:      text,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		s.logger.Error("notification insert failed",
			zap.Int64("user_id", userID), zap.String("title", title), zap.Error(err))
	}
}

// NotifyOtherBidders fans a notification out to every distinct bidder on the
// auction plus the seller, skipping the acting user. One failed recipient
// does not stop the rest.
func (s *Service) NotifyOtherBidders(ctx context.Context, auctionID int64, title, text string, actorUserID int64) {
	ctx, span := tracer.Start(ctx, "NotificationService.NotifyOtherBidders", trace.WithAttributes(
		attribute.Int64("auction.id", auctionID),
	))
	defer span.End()

	bidders, err := s.ledger.DistinctBidders(ctx, auctionID)
	if err != nil {
		s.logger.Error("failed to list bidders for fan-out",
			zap.Int64("auction_id", auctionID), zap.Error(err))
		return
	}

	recipients := make(map[int64]struct{}, len(bidders)+1)
	for _, id := range bidders {
		recipients[id] = struct{}{}
	}
	if auction, err := s.ledger.AuctionByID(ctx, auctionID); err == nil {
		recipients[auction.OwnerID] = struct{}{}
	} else if !errors.Is(err, ledger.ErrAuctionNotFound) {
		s.logger.Warn("failed to load auction for seller fan-out",
			zap.Int64("auction_id", auctionID), zap.Error(err))
	}
	delete(recipients, actorUserID)
	if len(recipients) == 0 {
		return
	}

	batch := make([]entity.Notification, 0, len(recipients))
	for userID := range recipients {
		id := auctionID
		batch = append(batch, entity.Notification{
			UserID:    userID,
			AuctionID: &id,
			Title:     title,
			Text:      text,
		})
	}
	if err := s.store.InsertMany(ctx, batch); err != nil {
		s.logger.Error("notification fan-out failed",
			zap.Int64("auction_id", auctionID), zap.Int("recipients", len(batch)), zap.Error(err))
	}
}

// ListForUser returns the caller's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]entity.Notification, error) {
	ns, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, errorbank.Internal("failed to load notifications", errorbank.WithCause(err))
	}
	return ns, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	err := s.store.MarkRead(ctx, userID, id)
	if errors.Is(err, notifrepo.ErrNotFound) {
		return errorbank.NotFound("notification not found")
	}
	if err != nil {
		return errorbank.Internal("failed to mark notification read", errorbank.WithCause(err))
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller as read.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errorbank.Internal("failed to mark notifications read", errorbank.WithCause(err))
	}
	return n, nil
}
