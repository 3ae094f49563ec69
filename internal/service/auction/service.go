package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/cache"
	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/dto"
	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger"
	"github.com/velomarket/auction-service/internal/scheduler"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

var tracer = otel.Tracer("github.com/velomarket/auction-service/service/auction")

// CacheKey returns the cache key under which one auction is stored. Exported
// so writers elsewhere can invalidate after mutating auction state.
func CacheKey(auctionID int64) string {
	return fmt.Sprintf("auction:%d", auctionID)
}

// Service manages the auction lifecycle: draft creation, publication,
// moderation, pausing, and cached reads.
type Service struct {
	store     ledger.Store
	cache     cache.Store
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
	cacheTTL  time.Duration
	adLife    int
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     ledger.Store
	Cache     cache.Store
	Scheduler *scheduler.Scheduler
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		cache:     p.Cache,
		scheduler: p.Scheduler,
		logger:    p.Logger,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		adLife:    p.Config.Auction.DefaultAdLifeDays,
		now:       time.Now,
	}
}

// Create persists a new draft auction owned by the caller. Only allow-listed
// fields from the request are applied; lifecycle and projection fields start
// at their zero state regardless of input.
func (s *Service) Create(ctx context.Context, ownerID int64, req dto.CreateAuctionRequest) (*entity.Auction, error) {
	ctx, span := tracer.Start(ctx, "AuctionService.Create", trace.WithAttributes(
		attribute.Int64("auction.owner_id", ownerID),
	))
	defer span.End()

	if strings.TrimSpace(req.Title) == "" {
		return nil, errorbank.BadRequest("title is required", errorbank.WithCode("title_required"))
	}
	if req.StartingBid.IsNegative() || req.MinimumBid.IsNegative() || req.BidIncrement.IsNegative() {
		return nil, errorbank.BadRequest("bid amounts cannot be negative", errorbank.WithCode("negative_amount"))
	}
	if req.ReservePrice != nil && req.ReservePrice.IsNegative() {
		return nil, errorbank.BadRequest("reserve price cannot be negative", errorbank.WithCode("negative_amount"))
	}

	adLife := req.AdLifeDays
	if adLife <= 0 {
		adLife = s.adLife
	}

	now := s.now()
	auction := &entity.Auction{
		OwnerID:      ownerID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
		MinimumBid:   req.MinimumBid,
		ReservePrice: req.ReservePrice,
		BuyNowPrice:  req.BuyNowPrice,
		AdLifeDays:   adLife,
		Status:       entity.LifecycleDraft,
		Moderation:   entity.ModerationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateAuction(ctx, auction); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, errorbank.Internal("failed to create auction", errorbank.WithCause(err))
	}
	return auction, nil
}

// Get returns one auction, serving from the cache when possible.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Auction, error) {
	ctx, span := tracer.Start(ctx, "AuctionService.Get", trace.WithAttributes(
		attribute.Int64("auction.id", id),
	))
	defer span.End()

	if cached, err := s.cache.Get(ctx, CacheKey(id)); err == nil {
		var auction entity.Auction
		if err := json.Unmarshal(cached, &auction); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &auction, nil
		}
		s.logger.Warn("dropping corrupt auction cache entry", zap.Int64("auction_id", id))
		_ = s.cache.Delete(ctx, CacheKey(id))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("auction cache read failed", zap.Int64("auction_id", id), zap.Error(err))
	}

	auction, err := s.store.AuctionByID(ctx, id)
	if errors.Is(err, ledger.ErrAuctionNotFound) {
		return nil, errorbank.NotFound("auction not found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}

	if payload, err := json.Marshal(auction); err == nil {
		if err := s.cache.Set(ctx, CacheKey(id), payload, s.cacheTTL); err != nil {
			s.logger.Warn("auction cache write failed", zap.Int64("auction_id", id), zap.Error(err))
		}
	}
	return auction, nil
}

// Publish moves a draft auction to Published, stamping its start date and
// computing the expiry from the configured ad life. Only the owner may
// publish.
func (s *Service) Publish(ctx context.Context, id, actorID int64) (*entity.Auction, error) {
	ctx, span := tracer.Start(ctx, "AuctionService.Publish", trace.WithAttributes(
		attribute.Int64("auction.id", id),
	))
	defer span.End()

	auction, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction.OwnerID != actorID {
		return nil, errorbank.BadRequest("only the auction owner can publish it", errorbank.WithCode("not_owner"))
	}
	if auction.Status == entity.LifecyclePublished {
		return nil, errorbank.BadRequest("auction is already published", errorbank.WithCode("already_published"))
	}

	now := s.now()
	expiry := now.AddDate(0, 0, auction.AdLifeDays)
	auction.Status = entity.LifecyclePublished
	auction.StartDate = &now
	auction.ExpiryDate = &expiry
	auction.UpdatedAt = now

	if err := s.store.UpdateAuction(ctx, auction, "status", "start_date", "expiry_date", "updated_at"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, errorbank.Internal("failed to publish auction", errorbank.WithCause(err))
	}
	s.invalidate(ctx, id)
	return auction, nil
}

// Moderate records an admin decision on a published auction. Accepting an
// auction also schedules its expiry job; a scheduling failure fails the
// request so the admin retries rather than leaving the auction unsweepable.
func (s *Service) Moderate(ctx context.Context, id int64, decision entity.ModerationStatus) (*entity.Auction, error) {
	ctx, span := tracer.Start(ctx, "AuctionService.Moderate", trace.WithAttributes(
		attribute.Int64("auction.id", id),
		attribute.String("decision", string(decision)),
	))
	defer span.End()

	if decision != entity.ModerationAccepted && decision != entity.ModerationRejected {
		return nil, errorbank.BadRequest("ad_status must be Accepted or Rejected", errorbank.WithCode("invalid_moderation_status"))
	}

	auction, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction.Status != entity.LifecyclePublished {
		return nil, errorbank.BadRequest("only published auctions can be moderated", errorbank.WithCode("not_published"))
	}

	auction.Moderation = decision
	auction.UpdatedAt = s.now()
	if err := s.store.UpdateAuction(ctx, auction, "moderation_status", "updated_at"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, errorbank.Internal("failed to moderate auction", errorbank.WithCause(err))
	}
	s.invalidate(ctx, id)

	if decision == entity.ModerationAccepted && auction.ExpiryDate != nil {
		if err := s.scheduler.ScheduleExpiry(ctx, id, *auction.ExpiryDate); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "schedule failed")
			return nil, errorbank.Internal("auction accepted but expiry scheduling failed", errorbank.WithCause(err))
		}
	}
	return auction, nil
}

// SetPause toggles the pause flag. Only the owner may pause or resume, and
// an expired auction can no longer be toggled.
func (s *Service) SetPause(ctx context.Context, id, actorID int64, paused bool) (*entity.Auction, error) {
	ctx, span := tracer.Start(ctx, "AuctionService.SetPause", trace.WithAttributes(
		attribute.Int64("auction.id", id),
		attribute.Bool("paused", paused),
	))
	defer span.End()

	auction, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction.OwnerID != actorID {
		return nil, errorbank.BadRequest("only the auction owner can pause it", errorbank.WithCode("not_owner"))
	}
	if auction.Expired(s.now()) {
		return nil, errorbank.BadRequest("auction has already ended", errorbank.WithCode("auction_expired"))
	}

	auction.IsPaused = paused
	auction.UpdatedAt = s.now()
	if err := s.store.UpdateAuction(ctx, auction, "is_paused", "updated_at"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, errorbank.Internal("failed to update pause state", errorbank.WithCause(err))
	}
	s.invalidate(ctx, id)
	return auction, nil
}

func (s *Service) loadForWrite(ctx context.Context, id int64) (*entity.Auction, error) {
	auction, err := s.store.AuctionByID(ctx, id)
	if errors.Is(err, ledger.ErrAuctionNotFound) {
		return nil, errorbank.NotFound("auction not found")
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}
	return auction, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, CacheKey(id)); err != nil {
		s.logger.Warn("auction cache invalidation failed", zap.Int64("auction_id", id), zap.Error(err))
	}
}
