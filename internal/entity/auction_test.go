package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestAuctionFloor(t *testing.T) {
	tests := []struct {
		name     string
		starting int64
		minimum  int64
		want     int64
	}{
		{"both zero floors at one", 0, 0, 1},
		{"starting bid dominates", 30, 10, 30},
		{"minimum bid dominates", 10, 40, 40},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := Auction{StartingBid: d(tc.starting), MinimumBid: d(tc.minimum)}
			require.True(t, d(tc.want).Equal(a.Floor()), "want %d got %s", tc.want, a.Floor())
		})
	}
}

func TestAuctionNextValidBid(t *testing.T) {
	a := Auction{StartingBid: d(10), MinimumBid: d(10), BidIncrement: d(5)}
	require.True(t, d(10).Equal(a.NextValidBid()), "no bids yet: the floor is enough")

	a.CurrentHighestAmount = d(40)
	require.True(t, d(45).Equal(a.NextValidBid()))

	a.BidIncrement = decimal.Zero
	require.True(t, d(41).Equal(a.NextValidBid()), "increment defaults to one")
}

func TestAuctionAcceptsBids(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	open := Auction{Status: LifecyclePublished, Moderation: ModerationAccepted, ExpiryDate: &future}
	require.True(t, open.AcceptsBids(now))

	paused := open
	paused.IsPaused = true
	require.False(t, paused.AcceptsBids(now))

	draft := open
	draft.Status = LifecycleDraft
	require.False(t, draft.AcceptsBids(now))

	unapproved := open
	unapproved.Moderation = ModerationPending
	require.False(t, unapproved.AcceptsBids(now))

	expired := open
	expired.ExpiryDate = &past
	require.False(t, expired.AcceptsBids(now))

	noExpiry := open
	noExpiry.ExpiryDate = nil
	require.True(t, noExpiry.AcceptsBids(now), "no expiry set means not yet expired")
}
