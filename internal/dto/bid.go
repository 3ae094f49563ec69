package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceBidRequest is the payload for submitting a bid against an auction.
// MaxBidAmount is required for Automatic bids and must not be below Price.
type PlaceBidRequest struct {
	Price        decimal.Decimal  `json:"price"`
	MaxBidAmount *decimal.Decimal `json:"max_bid_amount,omitempty"`
	BidType      string           `json:"bid_type,omitempty"`
}

// PlaceBidResponse reports the post-resolution auction state to the bidder.
// IsLeading tells the caller whether their ceiling survived proxy resolution.
type PlaceBidResponse struct {
	AuctionID              int64           `json:"auction_id"`
	CurrentHighestAmount   decimal.Decimal `json:"current_highest_amount"`
	CurrentHighestBidderID int64           `json:"current_highest_bidder_id"`
	IsLeading              bool            `json:"is_leading"`
	YourBidType            string          `json:"your_bid_type"`
	MinimumBid             decimal.Decimal `json:"minimum_bid"`
}

// BidResponse is a single ledger entry as exposed via transport layers.
type BidResponse struct {
	ID                  int64           `json:"id"`
	AuctionID           int64           `json:"auction_id"`
	BidderID            int64           `json:"bidder_id"`
	BidType             string          `json:"bid_type"`
	CurrentPlacedAmount decimal.Decimal `json:"current_placed_amount"`
	MaxBidAmount        decimal.Decimal `json:"max_bid_amount"`
	Status              string          `json:"status"`
	OfferStatus         string          `json:"offer_status"`
	CreatedAt           time.Time       `json:"created_at"`
}

// RankedBidResponse augments a ledger entry with its rank by placed amount.
type RankedBidResponse struct {
	BidResponse
	Rank int `json:"rank"`
}

// OfferDecisionRequest resolves the currently offered bid.
type OfferDecisionRequest struct {
	OfferStatus string `json:"offer_status"`
}
