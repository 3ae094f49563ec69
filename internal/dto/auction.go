package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateAuctionRequest is the allow-listed payload for creating a draft
// auction. Fields absent here cannot be set through the API.
type CreateAuctionRequest struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	StartingBid  decimal.Decimal  `json:"starting_bid"`
	BidIncrement decimal.Decimal  `json:"bid_increment"`
	MinimumBid   decimal.Decimal  `json:"minimum_bid"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice  *decimal.Decimal `json:"buy_now_price,omitempty"`
	AdLifeDays   int              `json:"ad_life_days"`
}

// ModerationRequest carries an admin moderation decision.
type ModerationRequest struct {
	AdStatus string `json:"ad_status"`
}

// PauseRequest toggles the pause flag on an auction.
type PauseRequest struct {
	IsPaused bool `json:"is_paused"`
}

// AuctionResponse is the auction as exposed via transport layers.
type AuctionResponse struct {
	ID                     int64            `json:"id"`
	OwnerID                int64            `json:"owner_id"`
	Title                  string           `json:"title"`
	Description            string           `json:"description,omitempty"`
	StartingBid            decimal.Decimal  `json:"starting_bid"`
	BidIncrement           decimal.Decimal  `json:"bid_increment"`
	MinimumBid             decimal.Decimal  `json:"minimum_bid"`
	ReservePrice           *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice            *decimal.Decimal `json:"buy_now_price,omitempty"`
	CurrentHighestAmount   decimal.Decimal  `json:"current_highest_amount"`
	CurrentHighestBidderID *int64           `json:"current_highest_bidder_id,omitempty"`
	NextValidBid           decimal.Decimal  `json:"next_valid_bid"`
	StartDate              *time.Time       `json:"start_date,omitempty"`
	ExpiryDate             *time.Time       `json:"expiry_date,omitempty"`
	IsPaused               bool             `json:"is_paused"`
	Status                 string           `json:"status"`
	AdStatus               string           `json:"ad_status"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}
