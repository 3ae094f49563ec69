package auction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/messaging"
	"github.com/velomarket/auction-service/internal/repository/ledger/ledgertest"
	notifrepo "github.com/velomarket/auction-service/internal/repository/notification"
	"github.com/velomarket/auction-service/internal/scheduler"
	notifsvc "github.com/velomarket/auction-service/internal/service/notification"
)

type fakeNotificationStore struct {
	rows   []entity.Notification
	nextID int64
}

func (f *fakeNotificationStore) Insert(_ context.Context, n *entity.Notification) error {
	f.nextID++
	n.ID = f.nextID
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotificationStore) InsertMany(_ context.Context, ns []entity.Notification) error {
	for i := range ns {
		f.nextID++
		ns[i].ID = f.nextID
		f.rows = append(f.rows, ns[i])
	}
	return nil
}

func (f *fakeNotificationStore) ListByUser(_ context.Context, userID int64) ([]entity.Notification, error) {
	var out []entity.Notification
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) MarkRead(context.Context, int64, int64) error { return nil }
func (f *fakeNotificationStore) MarkAllRead(context.Context, int64) (int64, error) {
	return 0, nil
}

var _ notifrepo.Store = (*fakeNotificationStore)(nil)

func newHandler(store *ledgertest.MemStore, notifStore notifrepo.Store) *ExpiryHandler {
	notifications := notifsvc.NewService(notifsvc.Params{
		Store:  notifStore,
		Ledger: store,
		Logger: zap.NewNop(),
	})
	return NewExpiryHandler(Params{
		Store:         store,
		Notifications: notifications,
		Logger:        zap.NewNop(),
	})
}

func expiryMessage(t *testing.T, auctionID int64) messaging.Message {
	t.Helper()
	payload, err := json.Marshal(scheduler.ExpiryJob{
		JobID:     uuid.NewString(),
		AuctionID: auctionID,
		FireAt:    time.Now(),
	})
	require.NoError(t, err)
	return messaging.Message{Topic: "auction.expiry", Value: payload}
}

func TestExpiryNotifiesEveryDistinctBidder(t *testing.T) {
	store := ledgertest.New()
	past := time.Now().Add(-time.Minute)
	auction := store.SeedAuction(&entity.Auction{
		OwnerID:    50,
		Title:      "Touring saddle",
		ExpiryDate: &past,
		Status:     entity.LifecyclePublished,
		Moderation: entity.ModerationAccepted,
	})
	for _, bid := range []struct{ bidder, amount int64 }{
		{1, 20}, {2, 25}, {1, 30},
	} {
		store.SeedBid(&entity.Bid{
			AuctionID:           auction.ID,
			BidderID:            bid.bidder,
			CurrentPlacedAmount: decimal.NewFromInt(bid.amount),
			MaxBidAmount:        decimal.NewFromInt(bid.amount),
			Status:              entity.BidOutbid,
			OfferStatus:         entity.OfferPending,
		})
	}

	notifStore := &fakeNotificationStore{}
	h := newHandler(store, notifStore)

	require.NoError(t, h.Handle(context.Background(), expiryMessage(t, auction.ID)))

	require.Len(t, notifStore.rows, 2, "one notification per distinct bidder")
	seen := map[int64]bool{}
	for _, n := range notifStore.rows {
		seen[n.UserID] = true
		require.Equal(t, "Auction Expired", n.Title)
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
}

func TestExpiryMissingAuctionIsSoftNoOp(t *testing.T) {
	notifStore := &fakeNotificationStore{}
	h := newHandler(ledgertest.New(), notifStore)

	require.NoError(t, h.Handle(context.Background(), expiryMessage(t, 404)))
	require.Empty(t, notifStore.rows)
}

func TestExpiryMalformedPayloadIsDropped(t *testing.T) {
	h := newHandler(ledgertest.New(), &fakeNotificationStore{})
	err := h.Handle(context.Background(), messaging.Message{Topic: "auction.expiry", Value: []byte("{not json")})
	require.NoError(t, err, "malformed jobs are logged and dropped, not retried")
}
