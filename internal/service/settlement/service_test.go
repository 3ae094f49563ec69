package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger/ledgertest"
	"github.com/velomarket/auction-service/pkg/errorbank"
)

type recordedNotify struct {
	userID int64
	title  string
}

type recordedFanOut struct {
	auctionID int64
	title     string
	actorID   int64
}

type fakeNotifier struct {
	calls   []recordedNotify
	fanOuts []recordedFanOut
}

func (f *fakeNotifier) Notify(_ context.Context, userID int64, _ *int64, title, _ string) {
	f.calls = append(f.calls, recordedNotify{userID: userID, title: title})
}

func (f *fakeNotifier) NotifyOtherBidders(_ context.Context, auctionID int64, title, _ string, actorUserID int64) {
	f.fanOuts = append(f.fanOuts, recordedFanOut{auctionID: auctionID, title: title, actorID: actorUserID})
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestService(store *ledgertest.MemStore, notifier Notifier) *Service {
	return NewService(Params{
		Store:    store,
		Notifier: notifier,
		Logger:   zap.NewNop(),
	})
}

func seedExpiredAuction(store *ledgertest.MemStore) *entity.Auction {
	past := time.Now().Add(-time.Hour)
	return store.SeedAuction(&entity.Auction{
		OwnerID:    99,
		Title:      "Vintage randonneur",
		ExpiryDate: &past,
		Status:     entity.LifecyclePublished,
		Moderation: entity.ModerationAccepted,
	})
}

func seedBid(store *ledgertest.MemStore, auctionID, bidderID, amount int64, offer entity.OfferStatus) *entity.Bid {
	return store.SeedBid(&entity.Bid{
		AuctionID:           auctionID,
		BidderID:            bidderID,
		CurrentPlacedAmount: d(amount),
		MaxBidAmount:        d(amount),
		Status:              entity.BidOutbid,
		OfferStatus:         offer,
		CreatedAt:           time.Now(),
	})
}

func TestOfferTopBidPromotesHighestPending(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 1, 40, entity.OfferPending)
	top := seedBid(store, auction.ID, 2, 70, entity.OfferPending)
	seedBid(store, auction.ID, 3, 55, entity.OfferPending)

	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	offered, err := svc.OfferTopBid(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, top.ID, offered.ID)
	require.Equal(t, entity.OfferOffered, offered.OfferStatus)

	stored, ok := store.BidSnapshot(top.ID)
	require.True(t, ok)
	require.Equal(t, entity.OfferOffered, stored.OfferStatus)

	require.Len(t, notifier.calls, 1)
	require.EqualValues(t, 2, notifier.calls[0].userID)
	require.Equal(t, "You have received an offer", notifier.calls[0].title)
}

func TestOfferTopBidWithStandingOffer(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 1, 40, entity.OfferPending)
	standing := seedBid(store, auction.ID, 2, 70, entity.OfferOffered)

	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	_, err := svc.OfferTopBid(context.Background(), auction.ID)
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
	require.Equal(t, "offer_already_standing", errorbank.From(err).Code())

	other, ok := store.BidSnapshot(1)
	require.True(t, ok)
	require.Equal(t, entity.OfferPending, other.OfferStatus, "a standing offer must block further promotions")

	kept, ok := store.BidSnapshot(standing.ID)
	require.True(t, ok)
	require.Equal(t, entity.OfferOffered, kept.OfferStatus)
	require.Empty(t, notifier.calls)
}

func TestOfferTopBidTwiceReportsNotFound(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 1, 40, entity.OfferPending)
	seedBid(store, auction.ID, 2, 70, entity.OfferPending)

	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	first, err := svc.OfferTopBid(ctx, auction.ID)
	require.NoError(t, err)
	require.Equal(t, entity.OfferOffered, first.OfferStatus)

	_, err = svc.OfferTopBid(ctx, auction.ID)
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	other, ok := store.BidSnapshot(1)
	require.True(t, ok)
	require.Equal(t, entity.OfferPending, other.OfferStatus)
}

func TestOfferTopBidAfterSettlement(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 1, 40, entity.OfferPending)
	seedBid(store, auction.ID, 2, 70, entity.OfferAccepted)

	svc := newTestService(store, &fakeNotifier{})

	_, err := svc.OfferTopBid(context.Background(), auction.ID)
	require.Error(t, err)
	require.Equal(t, "already_settled", errorbank.From(err).Code())
}

func TestOfferTopBidWithoutPendingBids(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)

	svc := newTestService(store, &fakeNotifier{})

	_, err := svc.OfferTopBid(context.Background(), auction.ID)
	require.Error(t, err)
	require.Equal(t, "no_pending_bids", errorbank.From(err).Code())

	_, err = svc.OfferTopBid(context.Background(), 404)
	require.Error(t, err)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestResolveOfferAcceptNotifiesSeller(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	offered := seedBid(store, auction.ID, 2, 70, entity.OfferOffered)

	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	resolved, err := svc.ResolveOffer(context.Background(), auction.ID, 2, entity.OfferAccepted)
	require.NoError(t, err)
	require.Equal(t, offered.ID, resolved.ID)
	require.Equal(t, entity.OfferAccepted, resolved.OfferStatus)

	require.Len(t, notifier.calls, 1)
	require.EqualValues(t, auction.OwnerID, notifier.calls[0].userID)
	require.Equal(t, "Your auction has a buyer", notifier.calls[0].title)
}

func TestResolveOfferAcceptFansOutToLosingBidders(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 2, 70, entity.OfferOffered)
	seedBid(store, auction.ID, 3, 55, entity.OfferPending)
	seedBid(store, auction.ID, 4, 40, entity.OfferPending)

	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	_, err := svc.ResolveOffer(context.Background(), auction.ID, 2, entity.OfferAccepted)
	require.NoError(t, err)

	require.Len(t, notifier.fanOuts, 1, "losing bidders must be told the auction was accepted")
	require.Equal(t, auction.ID, notifier.fanOuts[0].auctionID)
	require.Equal(t, "Auction offer accepted", notifier.fanOuts[0].title)
	require.EqualValues(t, 2, notifier.fanOuts[0].actorID, "the accepting bidder is excluded from the fan-out")
}

func TestResolveOfferRejectCascadesToNextBidder(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 2, 70, entity.OfferOffered)
	runnerUp := seedBid(store, auction.ID, 3, 55, entity.OfferPending)
	seedBid(store, auction.ID, 1, 40, entity.OfferPending)

	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	resolved, err := svc.ResolveOffer(context.Background(), auction.ID, 2, entity.OfferRejected)
	require.NoError(t, err)
	require.Equal(t, entity.OfferRejected, resolved.OfferStatus)

	next, ok := store.BidSnapshot(runnerUp.ID)
	require.True(t, ok)
	require.Equal(t, entity.OfferOffered, next.OfferStatus)

	require.Len(t, notifier.calls, 2)
	require.EqualValues(t, auction.OwnerID, notifier.calls[0].userID, "the seller is told about every rejection")
	require.Equal(t, "Offer rejected", notifier.calls[0].title)
	require.EqualValues(t, 3, notifier.calls[1].userID)
	require.Equal(t, "You have received an offer", notifier.calls[1].title)
	require.Empty(t, notifier.fanOuts)
}

func TestResolveOfferRejectWithNoRemainingBids(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 2, 70, entity.OfferOffered)

	notifier := &fakeNotifier{}
	svc := newTestService(store, notifier)

	_, err := svc.ResolveOffer(context.Background(), auction.ID, 2, entity.OfferRejected)
	require.NoError(t, err)

	require.Len(t, notifier.calls, 1)
	require.EqualValues(t, auction.OwnerID, notifier.calls[0].userID)
	require.Equal(t, "Offer rejected", notifier.calls[0].title)
}

func TestResolveOfferGuards(t *testing.T) {
	store := ledgertest.New()
	auction := seedExpiredAuction(store)
	seedBid(store, auction.ID, 2, 70, entity.OfferOffered)

	svc := newTestService(store, &fakeNotifier{})
	ctx := context.Background()

	_, err := svc.ResolveOffer(ctx, auction.ID, 2, entity.OfferPending)
	require.Error(t, err)
	require.Equal(t, "invalid_offer_status", errorbank.From(err).Code())

	_, err = svc.ResolveOffer(ctx, auction.ID, 7, entity.OfferAccepted)
	require.Error(t, err)
	require.Equal(t, "not_offer_owner", errorbank.From(err).Code())

	stored, ok := store.BidSnapshot(1)
	require.True(t, ok)
	require.Equal(t, entity.OfferOffered, stored.OfferStatus, "a failed resolve must not touch the offer")

	other := ledgertest.New()
	a := seedExpiredAuction(other)
	_, err = newTestService(other, &fakeNotifier{}).ResolveOffer(ctx, a.ID, 2, entity.OfferAccepted)
	require.Error(t, err)
	require.Equal(t, "no_standing_offer", errorbank.From(err).Code())
}
