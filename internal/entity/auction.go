package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// LifecycleStatus tracks whether an auction has been submitted for sale.
type LifecycleStatus string

const (
	LifecycleDraft     LifecycleStatus = "Draft"
	LifecyclePublished LifecycleStatus = "Published"
)

// ModerationStatus is the admin approval state of an auction.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "Pending"
	ModerationAccepted ModerationStatus = "Accepted"
	ModerationRejected ModerationStatus = "Rejected"
)

// Auction represents one item under timed competitive sale.
//
// CurrentHighestAmount and CurrentHighestBidderID are a denormalized
// projection of the bid ledger, rewritten on every accepted bid. The row is
// locked for the duration of a bid placement, so these fields never reflect a
// partially applied placement.
type Auction struct {
	bun.BaseModel `bun:"table:auctions"`

	ID      int64 `bun:",pk,autoincrement"`
	OwnerID int64 `bun:"owner_id,notnull"`

	Title       string `bun:"title,notnull"`
	Description string `bun:"description"`

	StartingBid  decimal.Decimal  `bun:"starting_bid,type:numeric,notnull"`
	BidIncrement decimal.Decimal  `bun:"bid_increment,type:numeric,notnull"`
	MinimumBid   decimal.Decimal  `bun:"minimum_bid,type:numeric"`
	ReservePrice *decimal.Decimal `bun:"reserve_price,type:numeric"`
	BuyNowPrice  *decimal.Decimal `bun:"buy_now_price,type:numeric"`

	CurrentHighestAmount   decimal.Decimal `bun:"current_highest_amount,type:numeric,notnull"`
	CurrentHighestBidderID *int64          `bun:"current_highest_bidder_id"`

	AdLifeDays int        `bun:"ad_life_days"`
	StartDate  *time.Time `bun:"start_date"`
	ExpiryDate *time.Time `bun:"expiry_date"`

	IsPaused   bool             `bun:"is_paused,notnull,default:false"`
	Status     LifecycleStatus  `bun:"status,notnull,default:'Draft'"`
	Moderation ModerationStatus `bun:"moderation_status,notnull,default:'Pending'"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// Floor is the minimum acceptable bid amount: the larger of the starting bid
// and the configured minimum bid, never below one.
func (a *Auction) Floor() decimal.Decimal {
	floor := decimal.NewFromInt(1)
	if a.StartingBid.GreaterThan(floor) {
		floor = a.StartingBid
	}
	if a.MinimumBid.GreaterThan(floor) {
		floor = a.MinimumBid
	}
	return floor
}

// NextValidBid is the lowest amount a new bid must reach to be accepted.
func (a *Auction) NextValidBid() decimal.Decimal {
	next := a.CurrentHighestAmount.Add(a.Increment())
	if floor := a.Floor(); floor.GreaterThan(next) {
		return floor
	}
	return next
}

// Increment returns the configured bid increment, defaulting to one.
func (a *Auction) Increment() decimal.Decimal {
	if a.BidIncrement.IsPositive() {
		return a.BidIncrement
	}
	return decimal.NewFromInt(1)
}

// Expired reports whether the auction has passed its expiry timestamp.
func (a *Auction) Expired(now time.Time) bool {
	return a.ExpiryDate != nil && now.After(*a.ExpiryDate)
}

// AcceptsBids reports whether the auction is open for bidding at the given
// instant. Expiry wins over everything else, including the pause flag.
func (a *Auction) AcceptsBids(now time.Time) bool {
	if a.Expired(now) {
		return false
	}
	return a.Status == LifecyclePublished && a.Moderation == ModerationAccepted && !a.IsPaused
}
