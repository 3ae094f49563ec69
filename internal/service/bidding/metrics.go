package bidding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_bids_placed_total",
		Help: "Successfully placed bids.",
	})

	bidsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_rejected_total",
		Help: "Rejected bid placements by reason code.",
	}, []string{"reason"})

	placementConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_bid_placement_conflict_retries_total",
		Help: "Placement transactions retried after a serialization conflict.",
	})
)
