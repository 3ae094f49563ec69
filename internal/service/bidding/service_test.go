package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger/ledgertest"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

type notifyCall struct {
	auctionID int64
	title     string
	actor     int64
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) NotifyOtherBidders(_ context.Context, auctionID int64, title, _ string, actor int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{auctionID: auctionID, title: title, actor: actor})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(store *ledgertest.MemStore, notifier Notifier) *Service {
	return NewService(Params{
		Store:    store,
		Notifier: notifier,
		Logger:   zap.NewNop(),
		Config: config.Config{
			Auction: config.Auction{PlacementRetries: 3},
		},
	})
}

func openAuction(store *ledgertest.MemStore) *entity.Auction {
	expiry := time.Now().Add(24 * time.Hour)
	return store.SeedAuction(&entity.Auction{
		OwnerID:              99,
		Title:                "Track frame 56cm",
		StartingBid:          d(10),
		MinimumBid:           d(10),
		BidIncrement:         d(5),
		CurrentHighestAmount: d(10),
		ExpiryDate:           &expiry,
		Status:               entity.LifecyclePublished,
		Moderation:           entity.ModerationAccepted,
	})
}

func TestPlaceBidRejections(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		mutate   func(a *entity.Auction)
		input    PlaceBidInput
		wantCode string
	}{
		{
			name:     "non-positive price",
			input:    PlaceBidInput{Price: d(0)},
			wantCode: "invalid_price",
		},
		{
			name:     "automatic without ceiling",
			input:    PlaceBidInput{Price: d(20), BidType: entity.BidAutomatic},
			wantCode: "max_bid_required",
		},
		{
			name: "automatic ceiling below price",
			input: PlaceBidInput{
				Price: d(20), BidType: entity.BidAutomatic,
				MaxBidAmount: ptr(d(15)),
			},
			wantCode: "max_bid_below_price",
		},
		{
			name:     "auction still a draft",
			mutate:   func(a *entity.Auction) { a.Status = entity.LifecycleDraft },
			input:    PlaceBidInput{Price: d(20)},
			wantCode: "auction_not_open",
		},
		{
			name:     "auction not approved",
			mutate:   func(a *entity.Auction) { a.Moderation = entity.ModerationPending },
			input:    PlaceBidInput{Price: d(20)},
			wantCode: "auction_not_open",
		},
		{
			name:     "auction expired",
			mutate:   func(a *entity.Auction) { a.ExpiryDate = &past },
			input:    PlaceBidInput{Price: d(20)},
			wantCode: "auction_expired",
		},
		{
			name:     "auction paused",
			mutate:   func(a *entity.Auction) { a.IsPaused = true },
			input:    PlaceBidInput{Price: d(20)},
			wantCode: "auction_paused",
		},
		{
			name:     "price below floor",
			input:    PlaceBidInput{Price: d(5)},
			wantCode: "bid_below_floor",
		},
		{
			name: "price below next valid bid",
			mutate: func(a *entity.Auction) {
				a.CurrentHighestAmount = d(40)
				bidder := int64(3)
				a.CurrentHighestBidderID = &bidder
			},
			input:    PlaceBidInput{Price: d(42)},
			wantCode: "bid_below_next_valid",
		},
		{
			name: "bidder already leading",
			mutate: func(a *entity.Auction) {
				a.CurrentHighestAmount = d(40)
				bidder := int64(1)
				a.CurrentHighestBidderID = &bidder
			},
			input:    PlaceBidInput{Price: d(45)},
			wantCode: "already_leading",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := ledgertest.New()
			auction := openAuction(store)
			if tc.mutate != nil {
				tc.mutate(auction)
				require.NoError(t, store.UpdateAuction(context.Background(), auction))
			}
			notifier := &fakeNotifier{}
			svc := newTestService(store, notifier)

			in := tc.input
			in.AuctionID = auction.ID
			if in.BidderID == 0 {
				in.BidderID = 1
			}

			_, err := svc.PlaceBid(context.Background(), in)
			require.Error(t, err)
			require.Equal(t, tc.wantCode, errorbank.From(err).Code())

			require.Zero(t, store.BidCount(), "rejected bid must not be recorded")
			require.Zero(t, notifier.count(), "rejected bid must not fan out")

			after, ok := store.AuctionSnapshot(auction.ID)
			require.True(t, ok)
			require.True(t, auction.CurrentHighestAmount.Equal(after.CurrentHighestAmount))
		})
	}
}

func TestPlaceBidMissingAuction(t *testing.T) {
	svc := newTestService(ledgertest.New(), &fakeNotifier{})
	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{AuctionID: 404, BidderID: 1, Price: d(20)})
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestPlaceBidFirstManualBidLeads(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	res, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: auction.ID, BidderID: 1, Price: d(10),
	})
	require.NoError(t, err)
	require.True(t, res.IsLeading)
	require.EqualValues(t, 1, res.CurrentHighestBidderID)
	require.True(t, d(10).Equal(res.CurrentHighestAmount))
	require.Equal(t, entity.BidManual, res.BidType)

	after, _ := store.AuctionSnapshot(auction.ID)
	require.True(t, d(10).Equal(after.CurrentHighestAmount))
	require.NotNil(t, after.CurrentHighestBidderID)
	require.EqualValues(t, 1, *after.CurrentHighestBidderID)

	bid, ok := store.BidSnapshot(1)
	require.True(t, ok)
	require.Equal(t, entity.BidLeading, bid.Status)
	require.True(t, bid.MaxBidAmount.Equal(d(10)), "manual bids cap their ceiling at the placed price")

	require.Equal(t, 1, notifier.count())
	require.EqualValues(t, 1, notifier.calls[0].actor)
}

func TestPlaceBidProxyDefendsStandingLeader(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)
	ctx := context.Background()

	_, err := svc.PlaceBid(ctx, PlaceBidInput{
		AuctionID: auction.ID, BidderID: 1, Price: d(10),
		BidType: entity.BidAutomatic, MaxBidAmount: ptr(d(100)),
	})
	require.NoError(t, err)

	res, err := svc.PlaceBid(ctx, PlaceBidInput{
		AuctionID: auction.ID, BidderID: 2, Price: d(15),
		BidType: entity.BidAutomatic, MaxBidAmount: ptr(d(50)),
	})
	require.NoError(t, err)

	require.False(t, res.IsLeading, "challenger ceiling is below the standing proxy")
	require.EqualValues(t, 1, res.CurrentHighestBidderID)
	require.True(t, d(55).Equal(res.CurrentHighestAmount), "50+5, capped at 100; got %s", res.CurrentHighestAmount)

	winner, _ := store.BidSnapshot(1)
	require.Equal(t, entity.BidLeading, winner.Status)
	require.True(t, d(55).Equal(winner.CurrentPlacedAmount))

	loser, _ := store.BidSnapshot(2)
	require.Equal(t, entity.BidOutbid, loser.Status)
}

func TestPlaceBidSingleLeaderInvariant(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	ceilings := []int64{30, 60, 90}
	for i, ceiling := range ceilings {
		price := auctionNextValid(t, store, auction.ID)
		_, err := svc.PlaceBid(ctx, PlaceBidInput{
			AuctionID: auction.ID, BidderID: int64(i + 1), Price: price,
			BidType: entity.BidAutomatic, MaxBidAmount: ptr(d(ceiling)),
		})
		require.NoError(t, err)
	}

	bids, err := store.ActiveBids(ctx, auction.ID)
	require.NoError(t, err)
	leaders := 0
	for _, b := range bids {
		if b.Status == entity.BidLeading {
			leaders++
			require.EqualValues(t, 3, b.BidderID)
		}
	}
	require.Equal(t, 1, leaders)
}

func TestPlaceBidHighestAmountNeverDecreases(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	prev := d(0)
	for i := 0; i < 4; i++ {
		price := auctionNextValid(t, store, auction.ID)
		res, err := svc.PlaceBid(ctx, PlaceBidInput{
			AuctionID: auction.ID, BidderID: int64(i%2 + 1), Price: price,
			BidType: entity.BidAutomatic, MaxBidAmount: ptr(price.Add(d(20))),
		})
		if err != nil {
			require.Equal(t, "already_leading", errorbank.From(err).Code())
			continue
		}
		require.True(t, res.CurrentHighestAmount.GreaterThanOrEqual(prev),
			"highest amount decreased from %s to %s", prev, res.CurrentHighestAmount)
		prev = res.CurrentHighestAmount
	}
}

func TestPlaceBidRetriesSerializationConflicts(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	svc := newTestService(store, &fakeNotifier{})

	store.ConflictsBeforeCommit = 2
	res, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: auction.ID, BidderID: 1, Price: d(10),
	})
	require.NoError(t, err)
	require.True(t, res.IsLeading)
	require.Equal(t, 1, store.BidCount(), "rolled back attempts must not leave bid rows behind")
}

func TestPlaceBidGivesUpAfterRetryBudget(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	svc := newTestService(store, &fakeNotifier{})

	store.ConflictsBeforeCommit = 10
	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: auction.ID, BidderID: 1, Price: d(10),
	})
	require.Error(t, err)
	require.Equal(t, errorbank.KindInternal, errorbank.From(err).Kind())
	require.Zero(t, store.BidCount())
}

func TestPlaceBidConcurrentPlacementsKeepInvariants(t *testing.T) {
	store := ledgertest.New()
	auction := openAuction(store)
	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceBid(ctx, PlaceBidInput{
				AuctionID: auction.ID, BidderID: int64(i + 1), Price: d(100),
				BidType: entity.BidAutomatic, MaxBidAmount: ptr(d(int64(150 + 50*i))),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.Equal(t, "bid_below_next_valid", errorbank.From(err).Code(),
				"the only valid loss in this race is arriving under the new minimum")
		}
	}
	require.GreaterOrEqual(t, succeeded, 1)

	after, _ := store.AuctionSnapshot(auction.ID)
	bids, err := store.ActiveBids(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, bids, succeeded)

	leaders := 0
	for _, b := range bids {
		if b.Status == entity.BidLeading {
			leaders++
			require.NotNil(t, after.CurrentHighestBidderID)
			require.Equal(t, b.BidderID, *after.CurrentHighestBidderID)
			require.True(t, b.CurrentPlacedAmount.Equal(after.CurrentHighestAmount))
		}
	}
	require.Equal(t, 1, leaders)
	require.True(t, after.CurrentHighestAmount.GreaterThanOrEqual(d(10)))
}

func auctionNextValid(t *testing.T, store *ledgertest.MemStore, auctionID int64) decimal.Decimal {
	t.Helper()
	a, ok := store.AuctionSnapshot(auctionID)
	require.True(t, ok)
	return a.NextValidBid()
}

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }
