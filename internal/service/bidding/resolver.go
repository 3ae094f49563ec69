package bidding

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/velomarket/auction-service/internal/entity"
)

// Outcome is the result of proxy resolution: who leads the auction and the
// amount attributed to them.
type Outcome struct {
	BidID    int64
	BidderID int64
	Amount   decimal.Decimal
}

// Resolve runs sealed second-price resolution over the active bid set of one
// auction. Cancelled bids are discarded; the remaining bids are ranked by
// ceiling, ties broken by earliest placement. A lone bid pays the larger of
// the floor and its placed amount. With competition, the highest ceiling H
// wins and pays max(floor, min(H, S+increment)) where S is the runner-up
// ceiling, so the leader pays just enough to beat the runner-up and never
// more than their own ceiling.
//
// Pure computation: no side effects, no error conditions. An empty input set
// yields ok=false.
func Resolve(bids []entity.Bid, increment, floor decimal.Decimal) (Outcome, bool) {
	active := make([]entity.Bid, 0, len(bids))
	for _, b := range bids {
		if b.Active() {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return Outcome{}, false
	}

	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].MaxBidAmount.Equal(active[j].MaxBidAmount) {
			return active[i].MaxBidAmount.GreaterThan(active[j].MaxBidAmount)
		}
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})

	top := active[0]
	if len(active) == 1 {
		return Outcome{
			BidID:    top.ID,
			BidderID: top.BidderID,
			Amount:   decimal.Max(floor, top.CurrentPlacedAmount),
		}, true
	}

	runnerUp := active[1].MaxBidAmount
	amount := decimal.Max(floor, decimal.Min(top.MaxBidAmount, runnerUp.Add(increment)))
	return Outcome{
		BidID:    top.ID,
		BidderID: top.BidderID,
		Amount:   amount,
	}, true
}
