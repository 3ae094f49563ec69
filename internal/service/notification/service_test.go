package notification

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger/ledgertest"
	notifrepo "github.com/velomarket/auction-service/internal/repository/notification"
)

type fakeStore struct {
	rows    []entity.Notification
	nextID  int64
	failAll bool
}

func (f *fakeStore) Insert(_ context.Context, n *entity.Notification) error {
	if f.failAll {
		return errors.New("store down")
	}
	f.nextID++
	n.ID = f.nextID
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeStore) InsertMany(_ context.Context, ns []entity.Notification) error {
	if f.failAll {
		return errors.New("store down")
	}
	for i := range ns {
		f.nextID++
		ns[i].ID = f.nextID
		f.rows = append(f.rows, ns[i])
	}
	return nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID int64) ([]entity.Notification, error) {
	var out []entity.Notification
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkRead(_ context.Context, userID, id int64) error {
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].UserID == userID {
			f.rows[i].IsRead = true
			return nil
		}
	}
	return notifrepo.ErrNotFound
}

func (f *fakeStore) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var n int64
	for i := range f.rows {
		if f.rows[i].UserID == userID && !f.rows[i].IsRead {
			f.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func newTestService(store notifrepo.Store, ledgerStore *ledgertest.MemStore) *Service {
	return NewService(Params{
		Store:  store,
		Ledger: ledgerStore,
		Logger: zap.NewNop(),
	})
}

func seedBiddersAndSeller(t *testing.T, ledgerStore *ledgertest.MemStore) *entity.Auction {
	t.Helper()
	expiry := time.Now().Add(time.Hour)
	auction := ledgerStore.SeedAuction(&entity.Auction{
		OwnerID:    50,
		Title:      "Dynamo front wheel",
		ExpiryDate: &expiry,
		Status:     entity.LifecyclePublished,
		Moderation: entity.ModerationAccepted,
	})
	for _, bidderID := range []int64{1, 2, 3} {
		ledgerStore.SeedBid(&entity.Bid{
			AuctionID:           auction.ID,
			BidderID:            bidderID,
			CurrentPlacedAmount: decimal.NewFromInt(10 + bidderID),
			MaxBidAmount:        decimal.NewFromInt(10 + bidderID),
			Status:              entity.BidOutbid,
			OfferStatus:         entity.OfferPending,
		})
	}
	return auction
}

func TestNotifyOtherBiddersExcludesActorIncludesSeller(t *testing.T) {
	ledgerStore := ledgertest.New()
	auction := seedBiddersAndSeller(t, ledgerStore)
	store := &fakeStore{}
	svc := newTestService(store, ledgerStore)

	svc.NotifyOtherBidders(context.Background(), auction.ID, "Your bid is now in run-up", "text", 2)

	var recipients []int64
	for _, n := range store.rows {
		recipients = append(recipients, n.UserID)
		require.NotNil(t, n.AuctionID)
		require.Equal(t, auction.ID, *n.AuctionID)
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	require.Equal(t, []int64{1, 3, 50}, recipients, "bidders minus the actor, plus the seller")
}

func TestNotifyOtherBiddersSellerIsActor(t *testing.T) {
	ledgerStore := ledgertest.New()
	auction := seedBiddersAndSeller(t, ledgerStore)
	store := &fakeStore{}
	svc := newTestService(store, ledgerStore)

	svc.NotifyOtherBidders(context.Background(), auction.ID, "title", "text", 50)

	require.Len(t, store.rows, 3, "the seller acting on their own auction is not notified")
}

func TestNotifyOtherBiddersStoreFailureIsSwallowed(t *testing.T) {
	ledgerStore := ledgertest.New()
	auction := seedBiddersAndSeller(t, ledgerStore)
	store := &fakeStore{failAll: true}
	svc := newTestService(store, ledgerStore)

	// Must not panic or surface the error.
	svc.NotifyOtherBidders(context.Background(), auction.ID, "title", "text", 2)
	require.Empty(t, store.rows)
}

func TestMarkRead(t *testing.T) {
	ledgerStore := ledgertest.New()
	store := &fakeStore{}
	svc := newTestService(store, ledgerStore)
	ctx := context.Background()

	svc.Notify(ctx, 7, nil, "a", "b")
	svc.Notify(ctx, 7, nil, "c", "d")
	svc.Notify(ctx, 8, nil, "e", "f")

	require.Error(t, svc.MarkRead(ctx, 8, 1), "cannot read another user's notification")
	require.NoError(t, svc.MarkRead(ctx, 7, 1))

	n, err := svc.MarkAllRead(ctx, 7)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	ns, err := svc.ListForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	for _, notif := range ns {
		require.True(t, notif.IsRead)
	}
}
