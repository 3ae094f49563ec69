package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// BidType distinguishes one-shot bids from proxy bids with a ceiling.
type BidType string

const (
	BidManual    BidType = "Manual"
	BidAutomatic BidType = "Automatic"
)

// BidStatus is the ranking axis of a bid within a live auction.
type BidStatus string

const (
	BidLeading   BidStatus = "Leading"
	BidOutbid    BidStatus = "Outbid"
	BidCancelled BidStatus = "Cancelled"
)

// OfferStatus is the settlement axis of a bid during post-expiry award. It
// advances independently of BidStatus.
type OfferStatus string

const (
	OfferPending  OfferStatus = "Pending"
	OfferOffered  OfferStatus = "Offered"
	OfferAccepted OfferStatus = "Accepted"
	OfferRejected OfferStatus = "Rejected"
)

// Bid is one competitive offer against an auction, owned by exactly one
// bidder. Rows are append-mostly: after insert only the status columns and
// CurrentPlacedAmount change, the latter when proxy resolution amends the
// amount attributed to the bid.
type Bid struct {
	bun.BaseModel `bun:"table:bids"`

	ID        int64 `bun:",pk,autoincrement"`
	AuctionID int64 `bun:"auction_id,notnull"`
	BidderID  int64 `bun:"bidder_id,notnull"`

	BidType             BidType         `bun:"bid_type,notnull,default:'Manual'"`
	CurrentPlacedAmount decimal.Decimal `bun:"current_placed_amount,type:numeric,notnull"`
	MaxBidAmount        decimal.Decimal `bun:"max_bid_amount,type:numeric,notnull"`

	Status      BidStatus   `bun:"status,notnull,default:'Leading'"`
	OfferStatus OfferStatus `bun:"offer_status,notnull,default:'Pending'"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// Active reports whether the bid still participates in proxy resolution.
func (b *Bid) Active() bool {
	return b.Status != BidCancelled
}
