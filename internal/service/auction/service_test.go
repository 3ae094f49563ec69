package auction

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/cache"
	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/dto"
	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger/ledgertest"
	"github.com/velomarket/auction-service/internal/scheduler"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func newTestService(store *ledgertest.MemStore, c cache.Store) *Service {
	cfg := config.Config{
		Auction: config.Auction{DefaultAdLifeDays: 7, PlacementRetries: 3},
	}
	sched := scheduler.New(scheduler.Params{
		Config: cfg,
		Logger: zap.NewNop(),
	})
	return NewService(Params{
		Store:     store,
		Cache:     c,
		Scheduler: sched,
		Config:    cfg,
		Logger:    zap.NewNop(),
	})
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCreateAppliesDefaultsAndAllowList(t *testing.T) {
	store := ledgertest.New()
	svc := newTestService(store, newMapCache())

	auction, err := svc.Create(context.Background(), 9, dto.CreateAuctionRequest{
		Title:        "  Randonneur rack  ",
		StartingBid:  d(30),
		BidIncrement: d(2),
	})
	require.NoError(t, err)
	require.Equal(t, "Randonneur rack", auction.Title)
	require.EqualValues(t, 9, auction.OwnerID)
	require.Equal(t, entity.LifecycleDraft, auction.Status)
	require.Equal(t, entity.ModerationPending, auction.Moderation)
	require.Equal(t, 7, auction.AdLifeDays, "ad life falls back to the configured default")
	require.Nil(t, auction.ExpiryDate, "drafts have no expiry until published")

	_, err = svc.Create(context.Background(), 9, dto.CreateAuctionRequest{})
	require.Error(t, err)
	require.Equal(t, "title_required", errorbank.From(err).Code())

	_, err = svc.Create(context.Background(), 9, dto.CreateAuctionRequest{
		Title: "x", StartingBid: d(-1),
	})
	require.Error(t, err)
	require.Equal(t, "negative_amount", errorbank.From(err).Code())
}

func TestPublishStampsExpiry(t *testing.T) {
	store := ledgertest.New()
	svc := newTestService(store, newMapCache())
	ctx := context.Background()

	auction, err := svc.Create(ctx, 9, dto.CreateAuctionRequest{Title: "Frame", AdLifeDays: 3})
	require.NoError(t, err)

	_, err = svc.Publish(ctx, auction.ID, 8)
	require.Error(t, err)
	require.Equal(t, "not_owner", errorbank.From(err).Code())

	published, err := svc.Publish(ctx, auction.ID, 9)
	require.NoError(t, err)
	require.Equal(t, entity.LifecyclePublished, published.Status)
	require.NotNil(t, published.StartDate)
	require.NotNil(t, published.ExpiryDate)
	wantExpiry := published.StartDate.AddDate(0, 0, 3)
	require.WithinDuration(t, wantExpiry, *published.ExpiryDate, time.Second)

	_, err = svc.Publish(ctx, auction.ID, 9)
	require.Error(t, err)
	require.Equal(t, "already_published", errorbank.From(err).Code())
}

func TestModerateTransitions(t *testing.T) {
	store := ledgertest.New()
	svc := newTestService(store, newMapCache())
	ctx := context.Background()

	auction, err := svc.Create(ctx, 9, dto.CreateAuctionRequest{Title: "Frame"})
	require.NoError(t, err)

	_, err = svc.Moderate(ctx, auction.ID, entity.ModerationAccepted)
	require.Error(t, err)
	require.Equal(t, "not_published", errorbank.From(err).Code())

	_, err = svc.Publish(ctx, auction.ID, 9)
	require.NoError(t, err)

	_, err = svc.Moderate(ctx, auction.ID, entity.ModerationStatus("Maybe"))
	require.Error(t, err)
	require.Equal(t, "invalid_moderation_status", errorbank.From(err).Code())

	moderated, err := svc.Moderate(ctx, auction.ID, entity.ModerationAccepted)
	require.NoError(t, err)
	require.Equal(t, entity.ModerationAccepted, moderated.Moderation)
}

func TestSetPauseGuards(t *testing.T) {
	store := ledgertest.New()
	svc := newTestService(store, newMapCache())
	ctx := context.Background()

	auction, err := svc.Create(ctx, 9, dto.CreateAuctionRequest{Title: "Frame"})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, auction.ID, 9)
	require.NoError(t, err)

	_, err = svc.SetPause(ctx, auction.ID, 8, true)
	require.Error(t, err)
	require.Equal(t, "not_owner", errorbank.From(err).Code())

	paused, err := svc.SetPause(ctx, auction.ID, 9, true)
	require.NoError(t, err)
	require.True(t, paused.IsPaused)

	snap, ok := store.AuctionSnapshot(auction.ID)
	require.True(t, ok)
	past := time.Now().Add(-time.Hour)
	snap.ExpiryDate = &past
	require.NoError(t, store.UpdateAuction(ctx, &snap))

	_, err = svc.SetPause(ctx, auction.ID, 9, false)
	require.Error(t, err)
	require.Equal(t, "auction_expired", errorbank.From(err).Code())
}

func TestGetServesFromCacheUntilInvalidated(t *testing.T) {
	store := ledgertest.New()
	c := newMapCache()
	svc := newTestService(store, c)
	ctx := context.Background()

	auction, err := svc.Create(ctx, 9, dto.CreateAuctionRequest{Title: "Frame"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, "Frame", got.Title)
	require.Contains(t, c.data, CacheKey(auction.ID))

	snap, ok := store.AuctionSnapshot(auction.ID)
	require.True(t, ok)
	snap.Title = "Renamed"
	require.NoError(t, store.UpdateAuction(ctx, &snap))

	stale, err := svc.Get(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, "Frame", stale.Title, "second read is served by the cache")

	require.NoError(t, c.Delete(ctx, CacheKey(auction.ID)))
	fresh, err := svc.Get(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", fresh.Title)

	_, err = svc.Get(ctx, 404)
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}
